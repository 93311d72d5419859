package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. Services receive it by
// reference; nothing reads slog's global default.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("CATALOG_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
