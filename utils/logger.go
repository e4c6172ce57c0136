package utils

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(slog.New(slog.NewTextHandler(os.Stdout, nil)))
}

// InitLogger installs the process-wide structured logger.
// format is "json" or "text"; level is debug, info, warn or error.
func InitLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	l := slog.New(handler)
	logger.Store(l)
	slog.SetDefault(l)
	return l
}

// Logger returns the process-wide structured logger.
func Logger() *slog.Logger {
	return logger.Load()
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func LogDebug(message string, args ...any) {
	Logger().Debug(message, args...)
}

func LogInfo(message string, args ...any) {
	Logger().Info(message, args...)
}

func LogWarn(message string, args ...any) {
	Logger().Warn(message, args...)
}

func LogError(message string, args ...any) {
	Logger().Error(message, args...)
}
