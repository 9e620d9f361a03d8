package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvLogLevel is the environment variable that sets the initial level
const EnvLogLevel = "VIEWEDMODELS_LOG_LEVEL"

var (
	// level defaults to warn so CLI output stays quiet
	level  = new(slog.LevelVar)
	logger *slog.Logger
)

func init() {
	level.Set(slog.LevelWarn)
	if l := os.Getenv(EnvLogLevel); l != "" {
		_ = SetLevel(l)
	}
	SetOutput(os.Stderr)
}

// ParseLevel converts debug, info, warn(ing) or error to a slog level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, fmt.Errorf("unknown log level: %q", s)
	}
}

// SetLevel changes the minimum level that is written
func SetLevel(s string) error {
	l, err := ParseLevel(s)
	if err != nil {
		return err
	}
	level.Set(l)
	return nil
}

// SetOutput redirects log output as JSON lines to w
func SetOutput(w io.Writer) {
	logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Debug logs a debug-level message with key/value fields
func Debug(message string, keyvals ...any) {
	logger.Debug(message, keyvals...)
}

// Info logs an info-level message with key/value fields
func Info(message string, keyvals ...any) {
	logger.Info(message, keyvals...)
}

// Warn logs a warning-level message with key/value fields
func Warn(message string, keyvals ...any) {
	logger.Warn(message, keyvals...)
}

// Error logs an error-level message with key/value fields
func Error(message string, keyvals ...any) {
	logger.Error(message, keyvals...)
}
