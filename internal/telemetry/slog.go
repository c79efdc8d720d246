package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// level is shared by every handler SetupLogger installs so SetLevel can
// change verbosity at runtime when the config file is edited.
var level = new(slog.LevelVar)

// ParseLevel maps "debug", "info", "warn"/"warning" and "error"
// (case-insensitive) to a slog.Level. Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// NewHandler builds the handler SetupLogger installs, writing to w.
//
// format: "json" → JSONHandler, anything else → TextHandler.
func NewHandler(w io.Writer, format string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level.Level() == slog.LevelDebug,
	}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SetupLogger installs the default slog logger for the configured format and
// level. All slog.Info/Warn/Error calls elsewhere use it without carrying a
// *slog.Logger around.
func SetupLogger(format, lvl string) {
	level.Set(ParseLevel(lvl))
	slog.SetDefault(slog.New(NewHandler(os.Stdout, format)))
	slog.Info("logger initialised", "format", format, "level", level.Level().String())
}

// SetLevel changes the level of the installed logger.
func SetLevel(lvl string) {
	next := ParseLevel(lvl)
	if next == level.Level() {
		return
	}
	level.Set(next)
	slog.Info("log level changed", "level", next.String())
}

// Level returns the current log level.
func Level() slog.Level {
	return level.Level()
}
