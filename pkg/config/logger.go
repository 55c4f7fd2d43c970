package config

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger builds the process logger from LOG_FORMAT and LOG_LEVEL.
func NewLogger(cfg *Config) *slog.Logger {
	return NewLoggerTo(os.Stdout, cfg)
}

// NewLoggerTo is NewLogger writing to w.
func NewLoggerTo(w io.Writer, cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch s {
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
