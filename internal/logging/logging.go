// Package logging builds Pulsewire's structured zerolog logger and a set
// of goroutine-boundary helpers, following the donor ws-server subproject's
// own monitoring/logger.go almost verbatim.
package logging

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config selects the logger's verbosity and output encoding.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, pretty
}

// New builds a zerolog.Logger carrying a fixed service field, timestamps,
// and caller info. JSON output is the production default; pretty output is
// a human-readable console encoding for local development.
func New(cfg Config) zerolog.Logger {
	var output io.Writer = os.Stdout

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "pretty" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Str("service", "pulsewire").
		Logger()
}

// Init installs logger as the package-global zerolog logger, for code paths
// that reach for the global rather than threading a logger through.
func Init(logger zerolog.Logger) {
	log.Logger = logger
}

// LogError logs err with contextual fields.
func LogError(logger zerolog.Logger, err error, msg string, fields map[string]any) {
	event := logger.Error().Err(err)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// RecoverPanic is a deferred goroutine-boundary helper: it logs a recovered
// panic with a stack trace and lets the goroutine unwind normally instead
// of taking the whole process down.
func RecoverPanic(logger zerolog.Logger, goroutineName string, fields map[string]any) {
	if r := recover(); r != nil {
		event := logger.Error().
			Str("goroutine", goroutineName).
			Interface("panic_value", r).
			Str("stack_trace", string(debug.Stack()))
		for k, v := range fields {
			event = event.Interface(k, v)
		}
		event.Msg("goroutine panic recovered")
	}
}
