package logger

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/zfogg/daybook/internal/cli/config"
)

var logger *log.Logger

// Init logs to the configured file, falling back to stderr
func Init(verbose bool) {
	logLevel := log.InfoLevel
	if verbose {
		logLevel = log.DebugLevel
	}

	var w io.Writer = os.Stderr
	if logFile := config.GetString("log.file"); logFile != "" {
		if f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600); err == nil {
			w = f
		}
	}

	logger = log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          "daybook",
	})
	logger.SetLevel(logLevel)
}

// Debug logs a debug message
func Debug(msg string, args ...interface{}) {
	if logger != nil {
		logger.Debug(msg, args...)
	}
}

// Info logs an info message
func Info(msg string, args ...interface{}) {
	if logger != nil {
		logger.Info(msg, args...)
	}
}

// Warn logs a warning message
func Warn(msg string, args ...interface{}) {
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

// Error logs an error message
func Error(msg string, args ...interface{}) {
	if logger != nil {
		logger.Error(msg, args...)
	}
}
