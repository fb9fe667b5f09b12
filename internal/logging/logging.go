// Package logging builds the process logger. The terminal belongs to the
// chat UI, so logs go to a rotating file.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel maps a config level name to a slog.Level; unknown names map
// to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a logger writing to file (rotated) at level. With no file,
// debug logs go to stderr and anything else is discarded. The returned
// closer releases the file.
func New(level, file string) (*slog.Logger, io.Closer) {
	lvl := ParseLevel(level)

	var w io.Writer
	var closer io.Closer = nopCloser{}
	switch {
	case file != "":
		rotator := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		}
		w, closer = rotator, rotator
	case lvl == slog.LevelDebug:
		w = os.Stderr
	default:
		w = io.Discard
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
