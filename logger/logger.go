/*
Package logger configures structured logging for the billing engine.

PURPOSE:
  Single place to initialize zerolog. The rest of the codebase either
  uses the package-level helpers or derives a component logger via
  WithComponent so log lines can be filtered per subsystem (api, store,
  matcher).

FORMATS:
  console (default): human-readable, for local development
  json:              machine-readable, for log aggregation in production

SEE ALSO:
  - cmd/server/main.go: reads LOG_LEVEL / LOG_FORMAT and calls Setup
  - api/server.go: request logging middleware built on zerolog
*/
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or a file path
}

// DefaultConfig returns the configuration used when nothing is set in
// the environment.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
		Output: "stdout",
	}
}

// FromEnv builds a Config from LOG_LEVEL, LOG_FORMAT and LOG_OUTPUT,
// falling back to defaults for unset variables.
func FromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("LOG_OUTPUT"); v != "" {
		cfg.Output = v
	}
	return cfg
}

// Setup initializes the global zerolog logger.
func Setup(cfg Config) error {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer
	switch cfg.Output {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		output = file
	}

	if strings.ToLower(cfg.Format) != "json" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	log.Logger = zerolog.New(output).With().
		Timestamp().
		Logger()

	return nil
}

// WithComponent returns a logger with a component field attached.
func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// Info logs an info message.
func Info(msg string) {
	log.Info().Msg(msg)
}

// Error logs an error with a message.
func Error(err error, msg string) {
	log.Error().Err(err).Msg(msg)
}

// Fatal logs a fatal message and exits.
func Fatal(err error, msg string) {
	log.Fatal().Err(err).Msg(msg)
}
