// Package logging is fetchkit's structured logging shim: a thin wrapper
// around the standard log package, nil-safe so a caller who doesn't care
// about logs can hold a nil *Logger instead of wiring a no-op
// implementation. No other fetchkit package takes a Logger.
//
// Grounded on pkg/middleware/logging.go's approach (stdlib log, JSON
// fields, level-prefixed lines) minus the HTTP-specific request/response
// fields, which have no equivalent in an in-process library.
package logging

import (
	"encoding/json"
	"log"
	"os"
)

// Level is a log severity, matching the INFO/WARN/ERROR split the teacher
// uses to branch on HTTP status code.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Fields is a structured key=value payload attached to a log line.
type Fields map[string]interface{}

// Logger logs structured lines. A nil *Logger is valid and discards every
// call, so components can take a *Logger field without a presence check at
// every call site.
type Logger struct {
	std *log.Logger
}

// New wraps std. If std is nil, a new logger writing to os.Stderr with
// log.LstdFlags is used.
func New(std *log.Logger) *Logger {
	if std == nil {
		std = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Logger{std: std}
}

func (l *Logger) log(level Level, message string, fields Fields) {
	if l == nil {
		return
	}
	entry := Fields{"message": message}
	for k, v := range fields {
		entry[k] = v
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.std.Printf("[%s] %s (fields unmarshalable: %v)", level, message, err)
		return
	}
	l.std.Printf("[%s] %s", level, string(data))
}

func (l *Logger) Debug(message string, fields Fields) { l.log(LevelDebug, message, fields) }
func (l *Logger) Info(message string, fields Fields)  { l.log(LevelInfo, message, fields) }
func (l *Logger) Warn(message string, fields Fields)  { l.log(LevelWarn, message, fields) }
func (l *Logger) Error(message string, fields Fields) { l.log(LevelError, message, fields) }
