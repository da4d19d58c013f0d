package env

import (
	"log/slog"
	"strings"
)

// LogLevelKey is the variable ParseLogLevel reads.
const LogLevelKey = "LOG_LEVEL"

// ParseLogLevel reads LOG_LEVEL and returns the matching slog.Level.
// Supported values: "debug", "info", "warn"/"warning", "error".
// Anything else yields fallback.
func ParseLogLevel(fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(Get(LogLevelKey, ""))) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}
