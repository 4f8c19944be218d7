package logger

import (
	"fmt"
	"time"
)

// AccessEntry describes one completed HTTP request.
type AccessEntry struct {
	RequestID string
	Method    string
	Path      string
	Status    int
	Bytes     int64
	Duration  time.Duration
}

// String renders the entry as a single access line:
// "<request-id> <METHOD> <path> <status> <bytes>B <millis>ms"
func (e AccessEntry) String() string {
	return fmt.Sprintf("%s %s %s %d %dB %dms",
		e.RequestID, e.Method, e.Path, e.Status, e.Bytes, e.Duration.Milliseconds())
}

// AccessLogger is a Logger that also records request access lines.
type AccessLogger interface {
	Logger
	LogAccess(entry AccessEntry)
}

// MultiLogger fans every message out to several loggers.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger; nil entries are skipped.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

func (m *MultiLogger) LogTrace(message string) {
	for _, l := range m.loggers {
		l.LogTrace(message)
	}
}

func (m *MultiLogger) LogDebug(message string) {
	for _, l := range m.loggers {
		l.LogDebug(message)
	}
}

func (m *MultiLogger) LogInfo(message string) {
	for _, l := range m.loggers {
		l.LogInfo(message)
	}
}

func (m *MultiLogger) LogWarn(message string) {
	for _, l := range m.loggers {
		l.LogWarn(message)
	}
}

func (m *MultiLogger) LogError(message string) {
	for _, l := range m.loggers {
		l.LogError(message)
	}
}

// LogAccess forwards to children that record access lines and falls back
// to an info message for the rest.
func (m *MultiLogger) LogAccess(entry AccessEntry) {
	for _, l := range m.loggers {
		if al, ok := l.(AccessLogger); ok {
			al.LogAccess(entry)
			continue
		}
		l.LogInfo(entry.String())
	}
}
