package mock

import (
	"context"
	"sync"

	"github.com/fwojciec/diffset"
)

// Compile-time interface verification.
var _ diffset.Logger = (*Logger)(nil)

// LogEntry is a single call recorded by Logger.
type LogEntry struct {
	Level  string
	Msg    string
	Err    error
	Fields map[string]any
}

// Logger records log calls. It is safe for concurrent use.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (l *Logger) Debug(_ context.Context, msg string, fields map[string]any) {
	l.record(LogEntry{Level: "debug", Msg: msg, Fields: fields})
}

func (l *Logger) Info(_ context.Context, msg string, fields map[string]any) {
	l.record(LogEntry{Level: "info", Msg: msg, Fields: fields})
}

func (l *Logger) Warn(_ context.Context, msg string, fields map[string]any) {
	l.record(LogEntry{Level: "warn", Msg: msg, Fields: fields})
}

func (l *Logger) Error(_ context.Context, msg string, err error, fields map[string]any) {
	l.record(LogEntry{Level: "error", Msg: msg, Err: err, Fields: fields})
}

// Entries returns a copy of the recorded entries.
func (l *Logger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// Messages returns the recorded messages at level, in call order.
func (l *Logger) Messages(level string) []string {
	var msgs []string
	for _, e := range l.Entries() {
		if e.Level == level {
			msgs = append(msgs, e.Msg)
		}
	}
	return msgs
}

func (l *Logger) record(e LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}
