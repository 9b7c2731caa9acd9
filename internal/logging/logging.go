// Package logging constructs the engine's single process-wide
// zerolog.Logger: console-writer in dev, JSON in production. The
// Orchestrator and the CLI log through a logger built here rather than
// calling log.Printf directly; the Graph Port backends do not log.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger at the given level (any name
// zerolog.ParseLevel accepts; an unrecognised name falls back to Info).
// pretty selects a human-readable console writer instead of the default
// JSON encoding.
func New(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if pretty {
		writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		logger = zerolog.New(writer)
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}
