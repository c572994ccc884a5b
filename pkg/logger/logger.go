// Package logger provides the process-wide structured logger and the
// per-component loggers derived from it.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// Logger is a wrapper around charmbracelet/log.Logger
type Logger struct {
	*log.Logger
}

var (
	instance *Logger
	once     sync.Once
)

// GetLogger returns the singleton logger instance
func GetLogger() *Logger {
	once.Do(func() {
		instance = &Logger{
			Logger: log.NewWithOptions(os.Stderr, log.Options{
				Level:           log.InfoLevel,
				ReportTimestamp: true,
				TimeFormat:      "15:04:05",
			}),
		}
	})
	return instance
}

// For returns a logger tagged with the component name. Level and output are
// taken from the base logger at call time.
func For(component string) *log.Logger {
	return GetLogger().WithPrefix(component)
}

// SetOutput redirects the base logger
func SetOutput(w io.Writer) {
	GetLogger().SetOutput(w)
}

// SetLogLevel sets the log level from a string, unknown values fall back to info
func (l *Logger) SetLogLevel(level string) {
	var logLevel log.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = log.DebugLevel
	case "info", "":
		logLevel = log.InfoLevel
	case "warn", "warning":
		logLevel = log.WarnLevel
	case "error":
		logLevel = log.ErrorLevel
	case "fatal":
		logLevel = log.FatalLevel
	default:
		logLevel = log.InfoLevel
	}
	l.SetLevel(logLevel)
	l.Debug("log level set", "level", level)
}
