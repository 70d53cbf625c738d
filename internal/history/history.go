// Package history keeps a bounded in-memory log of engine outcomes for
// operator inspection. The log is append-only with oldest-first eviction
// once the capacity is reached.
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultCapacity bounds the log when no explicit capacity is configured.
const DefaultCapacity = 100

// Kind labels the type of event recorded.
type Kind string

const (
	KindDecision   Kind = "decision"
	KindSizing     Kind = "sizing"
	KindRiskReport Kind = "risk_report"
)

// Entry is one recorded event. Payload holds the event-specific value
// (a gated decision, a position sizing, a risk report) and is treated
// as opaque by this package.
type Entry struct {
	ID        string      `json:"id"`
	Kind      Kind        `json:"kind"`
	Symbol    string      `json:"symbol"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Log is a fixed-capacity ring of entries. Safe for concurrent use;
// writes are serialized, reads return copies.
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
}

// NewLog creates a log holding at most capacity entries. Non-positive
// capacities fall back to DefaultCapacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		log.Warn().
			Int("capacity", capacity).
			Int("default", DefaultCapacity).
			Msg("Invalid history capacity, using default")
		capacity = DefaultCapacity
	}
	return &Log{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
	}
}

// Append records an event and returns the stored entry. The oldest
// entry is evicted once the log is full.
func (l *Log) Append(kind Kind, symbol string, payload interface{}) Entry {
	entry := Entry{
		ID:        uuid.New().String(),
		Kind:      kind,
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == l.capacity {
		copy(l.entries, l.entries[1:])
		l.entries[len(l.entries)-1] = entry
	} else {
		l.entries = append(l.entries, entry)
	}
	return entry
}

// Len returns the number of stored entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// All returns all entries oldest first.
func (l *Log) All() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Recent returns up to n entries, newest first.
func (l *Log) Recent(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || len(l.entries) == 0 {
		return nil
	}
	if n > len(l.entries) {
		n = len(l.entries)
	}

	out := make([]Entry, 0, n)
	for i := len(l.entries) - 1; i >= len(l.entries)-n; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

// BySymbol returns entries for the given symbol, oldest first.
func (l *Log) BySymbol(symbol string) []Entry {
	return l.filter(func(e Entry) bool { return e.Symbol == symbol })
}

// ByKind returns entries of the given kind, oldest first.
func (l *Log) ByKind(kind Kind) []Entry {
	return l.filter(func(e Entry) bool { return e.Kind == kind })
}

func (l *Log) filter(keep func(Entry) bool) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Entry
	for _, e := range l.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
