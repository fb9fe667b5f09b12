package config

import (
	"fmt"
	"net/url"
	"time"
)

type Config struct {
	Server ServerConfig
	Client ClientConfig
	Notify NotifyConfig
	Log    LogConfig
	UI     UIConfig
}

type ServerConfig struct {
	BaseURL string
}

type ClientConfig struct {
	RequestTimeout string
}

type NotifyConfig struct {
	Duration string
}

type LogConfig struct {
	Level string
	File  string
}

type UIConfig struct {
	Markdown bool
	NoColor  bool
	Width    int
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			BaseURL: "http://localhost:8000",
		},
		Client: ClientConfig{
			RequestTimeout: "120s",
		},
		Notify: NotifyConfig{
			Duration: "3s",
		},
		Log: LogConfig{
			Level: "info",
		},
		UI: UIConfig{
			Markdown: true,
			Width:    80,
		},
	}
}

// Load reads configuration from the JSON file backend and environment
// variables.
//
// The backend is a JSON file at $XDG_CONFIG_HOME/docchat/config.json.
// Environment variables (DOCCHAT_*) override backend values.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid server.base_url %q: must be an absolute http(s) URL", c.Server.BaseURL)
	}
	if _, err := time.ParseDuration(c.Client.RequestTimeout); err != nil {
		return fmt.Errorf("invalid client.request_timeout %q: %w", c.Client.RequestTimeout, err)
	}
	d, err := time.ParseDuration(c.Notify.Duration)
	if err != nil {
		return fmt.Errorf("invalid notify.duration %q: %w", c.Notify.Duration, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid notify.duration %q: must be positive", c.Notify.Duration)
	}
	return nil
}

// RequestTimeout returns the parsed transport timeout. Load has already
// validated it.
func (c Config) RequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Client.RequestTimeout)
	return d
}

// NotifyDuration returns how long a notification stays visible.
func (c Config) NotifyDuration() time.Duration {
	d, _ := time.ParseDuration(c.Notify.Duration)
	return d
}
