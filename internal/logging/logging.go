// Package logging builds the zerolog logger shared by every component.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	Level  string // trace, debug, info, warn, error; default info
	Format string // json or console; default json
	Output io.Writer
}

// New constructs a logger with a timestamp and the given service name.
func New(service string, cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	zerolog.TimeFieldFormat = time.RFC3339

	return zerolog.New(out).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

// Nop returns a disabled logger, used by tests.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// ParseLevel maps a level name to zerolog; unknown names fall back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
