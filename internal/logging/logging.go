// Package logging holds the process-wide logger used by dmabufkit packages.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// L is the global logger instance. It discards all output until Init is called.
var L = newDiscard()

// Options configures the logger initialization.
type Options struct {
	Enabled bool         // If false, all logging is discarded
	Level   logrus.Level // Minimum level. Default: InfoLevel when enabled
	Output  io.Writer    // Destination. Default: os.Stderr
	JSON    bool         // Use the JSON formatter instead of text
}

// Init configures logging. Call from main() before any log calls.
// If opts.Enabled is false, all log output is discarded.
func Init(opts Options) {
	if !opts.Enabled {
		L.SetOutput(io.Discard)
		L.SetLevel(logrus.PanicLevel)
		return
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := opts.Level
	if level == 0 {
		level = logrus.InfoLevel
	}

	L.SetOutput(out)
	L.SetLevel(level)
	if opts.JSON {
		L.SetFormatter(&logrus.JSONFormatter{})
	} else {
		L.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	}
}

// ParseLevel parses a level name, accepting "warn" as well as logrus' own names.
func ParseLevel(s string) (logrus.Level, error) {
	return logrus.ParseLevel(strings.TrimSpace(s))
}

func newDiscard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}
