package main

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// InitLogger initializes the structured logger with JSON output.
// Level comes from the argument, falling back to the LOG_LEVEL env var
// (debug/info/warn/error). Logs go to stderr so stdout carries only results.
func InitLogger(w io.Writer, levelStr string) {
	if levelStr == "" {
		levelStr = os.Getenv("LOG_LEVEL")
	}
	level := parseLevel(levelStr)

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	slog.Debug("logger initialized", "level", level.String())
}

func parseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
