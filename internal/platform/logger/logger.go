package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/easelapp/easel-api/internal/config"
)

// Setup initializes and configures the application's logging system based on
// the provided configuration. It creates a structured JSON logger with the
// appropriate log level and sets it as the default logger for the application.
func Setup(cfg config.ServerConfig) (*slog.Logger, error) {
	return setup(cfg, os.Stdout)
}

func setup(cfg config.ServerConfig, out io.Writer) (*slog.Logger, error) {
	level := parseLevel(cfg.LogLevel)
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)

	// Set this logger as the default so the slog package functions
	// (slog.Info, slog.Error, ...) go through it as well.
	slog.SetDefault(logger)
	return logger, nil
}

// parseLevel maps a configured level name to a slog level,
// case-insensitively. Unknown names fall back to info with a warning on
// stderr.
func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	tmp := slog.New(slog.NewTextHandler(os.Stderr, nil))
	tmp.Warn("invalid log level configured, using default level",
		"configured_level", name,
		"default_level", "info")
	return slog.LevelInfo
}
