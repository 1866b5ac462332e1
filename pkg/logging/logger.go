// Package logging configures structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a textual log level as found in configuration.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level written.
	Level LogLevel

	// Pretty switches from JSON lines to human-readable console output.
	Pretty bool

	// Service is attached to every line as the "service" field when set.
	Service string

	// Output is where logs go (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns JSON logging at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Service: "catalog-proxy",
		Output:  os.Stderr,
	}
}

// Setup builds the process logger from cfg and installs it as the zerolog
// global logger, so NewLogger and log.Ctx fallbacks share its settings.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.DurationFieldUnit = time.Millisecond

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger

	return logger
}

// parseLevel maps a configured level to zerolog, defaulting to info.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger derives a logger tagged with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Level guidelines:
//
// Debug: cache hit/miss with key, upstream request details, token reuse
// Info: startup/shutdown, token refresh, listing fetch summaries
// Warn: upstream fetch failures answered with empty results, retries
// Error: token acquisition failures, server errors, recovered panics
//
// Common fields:
//   - component: emitting package
//   - query, page, page_size, order: listing parameters
//   - cache_key: response cache key
//   - status_code, error_class, attempt: upstream call outcome
//   - req_id: request correlation id set by the HTTP middleware
