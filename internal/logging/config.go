package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// GetLogLevel returns the log level from the LOG_LEVEL environment variable.
//
// Supported values (case-insensitive): DEBUG, INFO, WARN or WARNING, ERROR.
// Anything else yields slog.LevelInfo.
func GetLogLevel() slog.Level {
	return ParseLevel(os.Getenv("LOG_LEVEL"))
}

// ParseLevel maps a level name to a slog.Level, defaulting to Info
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds the JSON logger every binary uses, tags it with the component
// name and installs it as the default logger.
func New(component string) *slog.Logger {
	logger := NewWithWriter(os.Stdout, component, GetLogLevel())
	slog.SetDefault(logger)
	return logger
}

// NewWithWriter builds a JSON logger writing to w
func NewWithWriter(w io.Writer, component string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	if component != "" {
		logger = logger.With(slog.String("component", component))
	}
	return logger
}
