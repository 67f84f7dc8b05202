package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var defaultLogger *logrus.Logger

func init() {
	defaultLogger = logrus.New()

	// Logs go to stderr so interactive chat output on stdout stays clean
	defaultLogger.SetOutput(os.Stderr)
	defaultLogger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	// Test runs stay silent unless LOG_LEVEL says otherwise
	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		if os.Getenv("GO_ENV") == "test" {
			levelStr = "silent"
		} else {
			levelStr = "info"
		}
	}
	if err := ConfigureFromString(levelStr); err != nil {
		defaultLogger.SetLevel(logrus.InfoLevel)
	}
}

// GetLogger returns the shared logger instance
func GetLogger() *logrus.Logger {
	return defaultLogger
}

// WithName creates a child logger carrying a component name field
func WithName(name string) *logrus.Entry {
	return defaultLogger.WithField("name", name)
}

// WithServer creates a child logger carrying a component name and the MCP
// server the messages concern
func WithServer(name, serverID string) *logrus.Entry {
	return defaultLogger.WithFields(logrus.Fields{"name": name, "server": serverID})
}

// WithFields creates a logger with additional fields
func WithFields(fields logrus.Fields) *logrus.Entry {
	return defaultLogger.WithFields(fields)
}

// SetLevel sets the logging level
func SetLevel(level logrus.Level) {
	defaultLogger.SetLevel(level)
}

// ConfigureFromString applies a level from configuration. "silent" discards
// all output; GO_ENV=test forces silent regardless of the requested level.
func ConfigureFromString(levelStr string) error {
	if os.Getenv("GO_ENV") == "test" || levelStr == "silent" {
		defaultLogger.SetOutput(io.Discard)
		return nil
	}

	level, err := logrus.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		return err
	}
	defaultLogger.SetLevel(level)
	return nil
}
