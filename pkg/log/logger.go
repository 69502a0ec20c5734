// Structured logging for FileButtons
//
// Keeps the component-logger API used throughout the controller
// (log levels, structured fields, text/JSON output, per-component
// prefixes) on top of logrus.
//
// Copyright (C) 2026  FileButtons Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// DEBUG level for detailed debugging information
	DEBUG LogLevel = iota

	// INFO level for general informational messages
	INFO

	// WARN level for warning messages
	WARN

	// ERROR level for error messages
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) logrus() logrus.Level {
	switch l {
	case DEBUG:
		return logrus.DebugLevel
	case WARN:
		return logrus.WarnLevel
	case ERROR:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func fromLogrus(l logrus.Level) LogLevel {
	switch {
	case l >= logrus.DebugLevel:
		return DEBUG
	case l == logrus.InfoLevel:
		return INFO
	case l == logrus.WarnLevel:
		return WARN
	default:
		return ERROR
	}
}

// ParseLevel parses a string into a LogLevel
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "DEBUG", "TRACE":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// OutputFormat specifies the output format for log messages
type OutputFormat int

const (
	// FormatText outputs human-readable text format
	FormatText OutputFormat = iota
	// FormatJSON outputs machine-readable JSON format
	FormatJSON
)

// ParseFormat parses "text" or "json"
func ParseFormat(s string) OutputFormat {
	if strings.EqualFold(s, "json") {
		return FormatJSON
	}
	return FormatText
}

// Fields is a map of structured logging fields
type Fields map[string]interface{}

const timeFormat = "2006-01-02 15:04:05.000"

// Logger is a component logger. Loggers derived with WithPrefix share
// the same underlying logrus logger (output, level, formatter).
type Logger struct {
	prefix string
	base   *logrus.Logger
	opts   *formatOptions
}

type formatOptions struct {
	mu       sync.Mutex
	colorize bool
	format   OutputFormat
}

// Entry represents a single log entry with fields
type Entry struct {
	entry *logrus.Entry
}

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger
)

// New creates a new logger with the given prefix
func New(prefix string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetLevel(logrus.InfoLevel)
	l := &Logger{
		prefix: prefix,
		base:   base,
		opts: &formatOptions{
			colorize: os.Getenv("NO_COLOR") == "" && isatty.IsTerminal(os.Stderr.Fd()),
			format:   FormatText,
		},
	}
	l.applyFormatter()
	return l
}

func (l *Logger) applyFormatter() {
	l.opts.mu.Lock()
	defer l.opts.mu.Unlock()
	if l.opts.format == FormatJSON {
		l.base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000000000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyMsg: "message",
			},
		})
		return
	}
	l.base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:    true,
		TimestampFormat:  timeFormat,
		ForceColors:      l.opts.colorize,
		DisableColors:    !l.opts.colorize,
		DisableQuote:     true,
		QuoteEmptyFields: true,
	})
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level LogLevel) {
	l.base.SetLevel(level.logrus())
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	return fromLogrus(l.base.GetLevel())
}

// SetWriter sets the output writer (e.g., for testing)
func (l *Logger) SetWriter(w io.Writer) {
	l.base.SetOutput(w)
}

// SetColorize enables or disables colorized output
func (l *Logger) SetColorize(enable bool) {
	l.opts.mu.Lock()
	l.opts.colorize = enable
	l.opts.mu.Unlock()
	l.applyFormatter()
}

// SetFormat sets the output format (FormatText or FormatJSON)
func (l *Logger) SetFormat(format OutputFormat) {
	l.opts.mu.Lock()
	l.opts.format = format
	l.opts.mu.Unlock()
	l.applyFormatter()
}

// SetCaller enables or disables caller info in log output
func (l *Logger) SetCaller(enable bool) {
	l.base.SetReportCaller(enable)
}

// Prefix returns the component name of this logger
func (l *Logger) Prefix() string {
	return l.prefix
}

func (l *Logger) entry() *logrus.Entry {
	if l.prefix == "" {
		return logrus.NewEntry(l.base)
	}
	return l.base.WithField("component", l.prefix)
}

// WithField returns an Entry with the given field
func (l *Logger) WithField(key string, value interface{}) *Entry {
	return &Entry{entry: l.entry().WithField(key, value)}
}

// WithFields returns an Entry with the given fields
func (l *Logger) WithFields(fields Fields) *Entry {
	return &Entry{entry: l.entry().WithFields(logrus.Fields(fields))}
}

// WithError returns an Entry with the error field set
func (l *Logger) WithError(err error) *Entry {
	return &Entry{entry: l.entry().WithError(err)}
}

// Debug logs a message at DEBUG level
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.entry().Debugf(msg, args...)
}

// Info logs a message at INFO level
func (l *Logger) Info(msg string, args ...interface{}) {
	l.entry().Infof(msg, args...)
}

// Warn logs a message at WARN level
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.entry().Warnf(msg, args...)
}

// Error logs a message at ERROR level
func (l *Logger) Error(msg string, args ...interface{}) {
	l.entry().Errorf(msg, args...)
}

// WithPrefix returns a logger for another component sharing this
// logger's output and settings
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{
		prefix: prefix,
		base:   l.base,
		opts:   l.opts,
	}
}

// WithField adds a field to the entry
func (e *Entry) WithField(key string, value interface{}) *Entry {
	return &Entry{entry: e.entry.WithField(key, value)}
}

// WithFields adds multiple fields to the entry
func (e *Entry) WithFields(fields Fields) *Entry {
	return &Entry{entry: e.entry.WithFields(logrus.Fields(fields))}
}

// WithError adds an error field to the entry
func (e *Entry) WithError(err error) *Entry {
	return &Entry{entry: e.entry.WithError(err)}
}

// Debug logs at DEBUG level with fields
func (e *Entry) Debug(msg string) { e.entry.Debug(msg) }

// Info logs at INFO level with fields
func (e *Entry) Info(msg string) { e.entry.Info(msg) }

// Warn logs at WARN level with fields
func (e *Entry) Warn(msg string) { e.entry.Warn(msg) }

// Error logs at ERROR level with fields
func (e *Entry) Error(msg string) { e.entry.Error(msg) }

// Debugf logs formatted message at DEBUG level with fields
func (e *Entry) Debugf(format string, args ...interface{}) { e.entry.Debugf(format, args...) }

// Infof logs formatted message at INFO level with fields
func (e *Entry) Infof(format string, args ...interface{}) { e.entry.Infof(format, args...) }

// Warnf logs formatted message at WARN level with fields
func (e *Entry) Warnf(format string, args ...interface{}) { e.entry.Warnf(format, args...) }

// Errorf logs formatted message at ERROR level with fields
func (e *Entry) Errorf(format string, args ...interface{}) { e.entry.Errorf(format, args...) }

// Package-level functions using default logger

// SetDefaultLogger sets the global default logger
func SetDefaultLogger(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// GetLogger returns a component logger derived from the default logger
func GetLogger(prefix string) *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New("filebuttons")
		ConfigureFromEnv(defaultLogger)
	}
	return defaultLogger.WithPrefix(prefix)
}

// Info logs at INFO level using default logger
func Info(msg string, args ...interface{}) {
	GetLogger("").Info(msg, args...)
}

// Warn logs at WARN level using default logger
func Warn(msg string, args ...interface{}) {
	GetLogger("").Warn(msg, args...)
}

// Error logs at ERROR level using default logger
func Error(msg string, args ...interface{}) {
	GetLogger("").Error(msg, args...)
}

// ConfigureFromEnv applies environment-based configuration to the logger.
// Environment variables:
//   - FILEBUTTONS_LOG_LEVEL: DEBUG, INFO, WARN, ERROR
//   - FILEBUTTONS_LOG_FORMAT: text, json
//   - FILEBUTTONS_LOG_CALLER: any non-empty value enables caller info
//   - NO_COLOR: any non-empty value disables colors
func ConfigureFromEnv(l *Logger) {
	if levelStr := os.Getenv("FILEBUTTONS_LOG_LEVEL"); levelStr != "" {
		l.SetLevel(ParseLevel(levelStr))
	}
	if formatStr := os.Getenv("FILEBUTTONS_LOG_FORMAT"); formatStr != "" {
		l.SetFormat(ParseFormat(formatStr))
	}
	if os.Getenv("FILEBUTTONS_LOG_CALLER") != "" {
		l.SetCaller(true)
	}
	if os.Getenv("NO_COLOR") != "" {
		l.SetColorize(false)
	}
}
