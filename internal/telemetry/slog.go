package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a configured level name to a slog.Level; unknown names fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// NewLogger builds a logger writing to w.
//
// format: "json" → JSONHandler, anything else → TextHandler.
// Every record carries the service name so log aggregation can split gateway
// output from the database and proxy logs sharing the same stream.
func NewLogger(w io.Writer, format, level, service string) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	if service != "" {
		logger = logger.With("service", service)
	}
	return logger
}

// SetupLogger installs a stdout logger as the slog default so slog.Info/Warn/Error calls
// elsewhere in the gateway use it without carrying a *slog.Logger around.
func SetupLogger(format, level, service string) {
	slog.SetDefault(NewLogger(os.Stdout, format, level, service))
	slog.Info("logger initialised", "format", format, "level", ParseLevel(level).String())
}
