// Package logging configures the process-wide zerolog root logger.
// Components derive their own loggers from the root via
// logger.With().Str("component", ...).Logger().
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration
type Config struct {
	Level         string `json:"level"`
	Output        string `json:"output"`      // "stdout", "stderr", or a file path
	JSONFormat    bool   `json:"json_format"` // JSON output; human-readable console format otherwise
	IncludeCaller bool   `json:"include_caller"`
}

// New creates the root logger from the given configuration
func New(cfg Config) zerolog.Logger {
	var out io.Writer = os.Stdout

	switch cfg.Output {
	case "", "stdout":
	case "stderr":
		out = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			out = file
		}
	}

	if !cfg.JSONFormat {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	logCtx := zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp()
	if cfg.IncludeCaller {
		logCtx = logCtx.Caller()
	}
	return logCtx.Logger()
}

// ParseLevel converts a level string to a zerolog level, defaulting to info
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
