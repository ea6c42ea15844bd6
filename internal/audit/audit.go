// Package audit keeps a bounded per-replica trail of dispatch events:
// every attempt, breaker transition, and final outcome. The trail backs the
// /health/audit endpoints and is not persisted.
package audit

import (
	"strings"
	"sync"
	"time"
)

// Entry is one recorded dispatch event.
type Entry struct {
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Event         string    `json:"event"`
	Processor     string    `json:"processor,omitempty"`
	Detail        string    `json:"detail,omitempty"`
}

// Log is a thread-safe bounded ring of audit entries.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	size    int
}

// NewLog creates an audit log retaining the last capacity entries.
func NewLog(capacity int) *Log {
	return &Log{entries: make([]Entry, capacity)}
}

// Record appends one entry, stamping it if the caller did not.
func (l *Log) Record(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = e
	l.next = (l.next + 1) % len(l.entries)
	if l.size < len(l.entries) {
		l.size++
	}
}

// All returns the retained entries, oldest first.
func (l *Log) All() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, l.size)
	start := l.next - l.size
	if start < 0 {
		start += len(l.entries)
	}
	for i := 0; i < l.size; i++ {
		out = append(out, l.entries[(start+i)%len(l.entries)])
	}
	return out
}

// ByCorrelation returns the entries for one correlation id, oldest first.
// Matching is case-insensitive.
func (l *Log) ByCorrelation(correlationID string) []Entry {
	var out []Entry
	for _, e := range l.All() {
		if strings.EqualFold(e.CorrelationID, correlationID) {
			out = append(out, e)
		}
	}
	return out
}

// Clear drops every retained entry.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next = 0
	l.size = 0
}
