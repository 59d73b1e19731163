// Package testutil holds test doubles shared across kgeval packages.
package testutil

import (
	"sync"

	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
)

// MockLogger implements logging.Logger and records every entry.  Children
// from With and Named write into the parent's record with their fields and
// name attached.
type MockLogger struct {
	rec    *record
	name   string
	fields []logging.Field
}

type record struct {
	mu       sync.Mutex
	messages []LogMessage
}

// LogMessage is one captured entry.
type LogMessage struct {
	Level   string
	Logger  string
	Message string
	Fields  []logging.Field
}

// Field returns the first field named key.
func (m LogMessage) Field(key string) (logging.Field, bool) {
	for _, f := range m.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return logging.Field{}, false
}

func NewMockLogger() *MockLogger {
	return &MockLogger{rec: &record{}}
}

func (m *MockLogger) log(level, msg string, fields []logging.Field) {
	all := make([]logging.Field, 0, len(m.fields)+len(fields))
	all = append(all, m.fields...)
	all = append(all, fields...)

	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	m.rec.messages = append(m.rec.messages, LogMessage{Level: level, Logger: m.name, Message: msg, Fields: all})
}

func (m *MockLogger) Debug(msg string, fields ...logging.Field) { m.log("debug", msg, fields) }
func (m *MockLogger) Info(msg string, fields ...logging.Field)  { m.log("info", msg, fields) }
func (m *MockLogger) Warn(msg string, fields ...logging.Field)  { m.log("warn", msg, fields) }
func (m *MockLogger) Error(msg string, fields ...logging.Field) { m.log("error", msg, fields) }

// Fatal records the entry but does not exit.
func (m *MockLogger) Fatal(msg string, fields ...logging.Field) { m.log("fatal", msg, fields) }

func (m *MockLogger) With(fields ...logging.Field) logging.Logger {
	child := &MockLogger{rec: m.rec, name: m.name}
	child.fields = append(append(child.fields, m.fields...), fields...)
	return child
}

func (m *MockLogger) Named(name string) logging.Logger {
	child := &MockLogger{rec: m.rec, name: name, fields: m.fields}
	if m.name != "" {
		child.name = m.name + "." + name
	}
	return child
}

func (m *MockLogger) Sync() error { return nil }

// GetMessages returns a copy of all logged messages.
func (m *MockLogger) GetMessages() []LogMessage {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	out := make([]LogMessage, len(m.rec.messages))
	copy(out, m.rec.messages)
	return out
}

// Clear removes all logged messages.
func (m *MockLogger) Clear() {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	m.rec.messages = m.rec.messages[:0]
}

// HasMessage reports whether msg was logged at level.
func (m *MockLogger) HasMessage(level, msg string) bool {
	_, ok := m.Find(level, msg)
	return ok
}

// Find returns the first entry logged at level with msg.
func (m *MockLogger) Find(level, msg string) (LogMessage, bool) {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	for _, logged := range m.rec.messages {
		if logged.Level == level && logged.Message == msg {
			return logged, true
		}
	}
	return LogMessage{}, false
}

var _ logging.Logger = (*MockLogger)(nil)
