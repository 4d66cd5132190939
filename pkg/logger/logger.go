// Package logger configures the process-wide slog logger.
package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

var (
	initOnce sync.Once
	root     *slog.Logger
)

// InitLogger sets up the default logger. The level can be overridden with
// FAREDIT_LOG_LEVEL (debug, info, warn, error).
func InitLogger() {
	initOnce.Do(func() {
		level := slog.LevelInfo
		switch strings.ToLower(strings.TrimSpace(os.Getenv("FAREDIT_LOG_LEVEL"))) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		handler := tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
		root = slog.New(handler)
		slog.SetDefault(root)
	})
}

// GetLogger returns the configured logger, initializing defaults if needed.
func GetLogger() *slog.Logger {
	InitLogger()
	return root
}
