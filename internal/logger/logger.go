// Package logger builds the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration
type Config struct {
	Level     string    // debug, info, warn, error
	Pretty    bool      // human-readable console output instead of JSON
	Redaction bool      // mask credentials before they are written
	Out       io.Writer // defaults to stdout
}

// New creates a logger and installs it as the global log.Logger.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	writer := cfg.Out
	if writer == nil {
		writer = os.Stdout
	}
	if cfg.Redaction {
		writer = NewRedactor().Wrap(writer)
	}
	if cfg.Pretty {
		writer = zerolog.ConsoleWriter{
			Out:        writer,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()

	log.Logger = logger
	return logger
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Redaction: true,
	}
}
