package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/kalambet/docchat/internal/config"
	"github.com/kalambet/docchat/internal/logging"
	"github.com/kalambet/docchat/internal/render"
	"github.com/kalambet/docchat/internal/session"
	"github.com/kalambet/docchat/internal/transport"
)

// app carries what every command needs once config is loaded.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	logClose io.Closer
	colored  bool
	width    int
}

var loadApp = func() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if serverURL != "" {
		cfg.Server.BaseURL = serverURL
	}

	logger, closer := logging.New(cfg.Log.Level, cfg.Log.File)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		logClose: closer,
		colored:  !noColor && !cfg.UI.NoColor && isTerminal(os.Stdout),
		width:    cfg.UI.Width,
	}
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 && w < a.width {
		a.width = w
	}
	return a, nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func (a *app) Close() error {
	return a.logClose.Close()
}

func (a *app) newTransport() *transport.Client {
	return transport.NewClient(a.cfg.Server.BaseURL, a.cfg.RequestTimeout(), a.logger)
}

func (a *app) newSession(ctx context.Context) *session.Session {
	return session.New(ctx, a.newTransport(), session.Options{
		NotifyDuration: a.cfg.NotifyDuration(),
		Logger:         a.logger,
	})
}

// renderer returns the answer renderer; markdown falls back to plain text
// when the terminal renderer cannot be built.
func (a *app) renderer() render.Renderer {
	if !a.cfg.UI.Markdown {
		return render.Plain{}
	}
	md, err := render.NewMarkdown(a.width, a.colored)
	if err != nil {
		a.logger.Warn("markdown disabled", "error", err)
		return render.Plain{}
	}
	return md
}
