// Package logger builds the charm loggers used across the service.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// New creates a logger with the global level and the text formatter.
func New(prefix string) *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          prefix,
		ReportTimestamp: true,
		Formatter:       log.TextFormatter,
		Level:           log.GetLevel(),
	})
}

// NewWithConfig creates a logger from the configured level and format names.
// Unknown levels fall back to info, unknown formats to text.
func NewWithConfig(w io.Writer, prefix, level, format string) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{
		Prefix:          prefix,
		Level:           ParseLevel(level),
		ReportTimestamp: true,
		Formatter:       ParseFormat(format),
	})
}

// Configure sets the global level and returns the root logger.
func Configure(level, format string) *log.Logger {
	log.SetLevel(ParseLevel(level))
	root := NewWithConfig(os.Stderr, "inkline", level, format)
	log.SetDefault(root)
	return root
}

func ParseLevel(value string) log.Level {
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return log.InfoLevel
	}
	return level
}

func ParseFormat(value string) log.Formatter {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}
