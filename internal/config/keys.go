package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.base_url", typ: kString, env: "DOCCHAT_SERVER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Server.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.BaseURL },
	},
	{
		key: "client.request_timeout", typ: kString, env: "DOCCHAT_CLIENT_REQUEST_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Client.RequestTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Client.RequestTimeout },
	},
	{
		key: "notify.duration", typ: kString, env: "DOCCHAT_NOTIFY_DURATION",
		apply:   func(cfg *Config, v any) { cfg.Notify.Duration = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.Duration },
	},
	{
		key: "log.level", typ: kString, env: "DOCCHAT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.file", typ: kString, env: "DOCCHAT_LOG_FILE",
		apply:   func(cfg *Config, v any) { cfg.Log.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.File },
	},
	{
		key: "ui.markdown", typ: kBool, env: "DOCCHAT_UI_MARKDOWN",
		apply:   func(cfg *Config, v any) { cfg.UI.Markdown = v.(bool) },
		extract: func(cfg Config) any { return cfg.UI.Markdown },
	},
	{
		key: "ui.no_color", typ: kBool, env: "DOCCHAT_UI_NO_COLOR",
		apply:   func(cfg *Config, v any) { cfg.UI.NoColor = v.(bool) },
		extract: func(cfg Config) any { return cfg.UI.NoColor },
	},
	{
		key: "ui.width", typ: kInt, env: "DOCCHAT_UI_WIDTH",
		apply:   func(cfg *Config, v any) { cfg.UI.Width = v.(int) },
		extract: func(cfg Config) any { return cfg.UI.Width },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
