package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// logging levels
const (
	TRACE = "TRACE"
	DEBUG = "DEBUG"
	INFO  = "INFO"
	WARN  = "WARN"
	ERROR = "ERROR"
)

var logger = newLogger(INFO)

func newLogger(level string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "kafkamux",
		Level:      hclog.LevelFromString(level),
		Output:     os.Stdout,
		TimeFormat: "2006/01/02 15:04:05",
	})
}

// SetLogLevel sets the log level for filtering logs. Unknown levels fall back to INFO.
func SetLogLevel(logLevel string) {
	level := hclog.LevelFromString(strings.ToUpper(logLevel))
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	logger.SetLevel(level)
}

// LogLevel returns the current logging level
func LogLevel() string {
	return strings.ToUpper(logger.GetLevel().String())
}

// Named returns a structured sub-logger for a component
func Named(name string) hclog.Logger {
	return logger.Named(name)
}

// Trace logs a message at TRACE level
func Trace(message string, a ...any) {
	if logger.IsTrace() {
		logger.Trace(fmt.Sprintf(message, a...))
	}
}

// Debug logs a message at DEBUG level
func Debug(message string, a ...any) {
	if logger.IsDebug() {
		logger.Debug(fmt.Sprintf(message, a...))
	}
}

// Info logs a message at INFO level
func Info(message string, a ...any) {
	logger.Info(fmt.Sprintf(message, a...))
}

// Warn logs a message at WARN level
func Warn(message string, a ...any) {
	logger.Warn(fmt.Sprintf(message, a...))
}

// Error logs a message at ERROR level
func Error(message string, a ...any) {
	logger.Error(fmt.Sprintf(message, a...))
}

// Panic exists with a panic
func Panic(message string, a ...any) {
	panic(fmt.Sprintf(message, a...))
}
