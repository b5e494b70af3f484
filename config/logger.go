package config

import (
	"log/slog"
	"os"
	"strings"
)

func NewLogger(m LoggerMode) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(m.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if m.Development {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
