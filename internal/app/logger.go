package app

import (
	"io"
	"log/slog"
)

// newLogger builds the app's slog.Logger from the config: the format picks
// the handler, and quiet mode overrides whatever level was asked for so only
// errors surface. It does not set the global logger, allowing for isolated
// logger instances.
func newLogger(config *Config, outW io.Writer) *slog.Logger {
	level := parseLevel(config.LogLevel)
	if config.Quiet {
		level = slog.LevelError
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler

	if config.LogFormat == "json" {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}

	return slog.New(handler)
}

func parseLevel(levelStr string) slog.Level {
	switch levelStr {
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
