// Package logging wraps charmbracelet/log with AegisMask defaults.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Options configures a logger.
type Options struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string
	// Output defaults to os.Stderr
	Output io.Writer
	// Prefix is the component name
	Prefix string
	// JSON switches to the JSON formatter, used when serving
	JSON bool
}

// ParseLevel converts a string level to log.Level. Unknown levels map to info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// New creates a logger with the given options.
func New(opts Options) *log.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	logger := log.NewWithOptions(out, log.Options{
		Level:           ParseLevel(opts.Level),
		Prefix:          opts.Prefix,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
	})
	if opts.JSON {
		logger.SetFormatter(log.JSONFormatter)
	}
	return logger
}

// NewFile creates a logger appending to path. The returned closer releases
// the file.
func NewFile(path string, opts Options) (*log.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, nil, err
	}
	opts.Output = f
	return New(opts), f, nil
}

var defaultLogger = New(Options{Level: os.Getenv("AEGISMASK_LOG_LEVEL")})

// SetDefault replaces the package-level logger.
func SetDefault(logger *log.Logger) {
	if logger != nil {
		defaultLogger = logger
	}
}

// Default returns the package-level logger.
func Default() *log.Logger {
	return defaultLogger
}

// WithPrefix returns the default logger scoped to a component.
func WithPrefix(prefix string) *log.Logger {
	return defaultLogger.WithPrefix(prefix)
}

// Discard returns a logger that drops everything. Tests use it.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}
