// Package history keeps a bounded, most-recent-first log of applied results.
package history

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/image-editor/pkg/artifact"
	"github.com/menta2k/image-editor/pkg/types"
)

// DefaultCapacity is the number of entries kept when none is configured.
const DefaultCapacity = 10

// ErrNotFound is returned by Restore for an unknown or evicted entry.
var ErrNotFound = errors.New("history entry not found")

// Entry records one applied result. Entries are never modified once recorded.
type Entry struct {
	ID        string          `json:"id"`
	Kind      types.Kind      `json:"kind"`
	Params    types.Params    `json:"params"`
	Timestamp time.Time       `json:"timestamp"`
	Result    artifact.Handle `json:"result"`
}

// Name returns the display name of the entry's kind.
func (e Entry) Name() string { return e.Kind.DisplayName() }

// BatchParams builds the params of a batch entry from the executed operations.
func BatchParams(ops []types.Operation) types.Params {
	return types.Params{"operations": ops}.Clone()
}

// Log is a fixed-capacity history. It is safe for concurrent use.
type Log struct {
	mu       sync.RWMutex
	capacity int
	entries  []Entry
	now      func() time.Time
}

// New returns an empty log holding at most capacity entries. A non-positive
// capacity selects DefaultCapacity.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{capacity: capacity, now: time.Now}
}

// Record prepends an entry, filling in ID and Timestamp when unset, and
// returns the recorded entry along with any entries evicted to stay within
// capacity.
func (l *Log) Record(e Entry) (Entry, []Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	e.Params = e.Params.Clone()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append([]Entry{e}, l.entries...)

	var evicted []Entry
	if len(l.entries) > l.capacity {
		evicted = append(evicted, l.entries[l.capacity:]...)
		l.entries = l.entries[:l.capacity:l.capacity]
	}
	e.Params = e.Params.Clone()
	return e, evicted
}

// Restore returns the result handle of an entry. The log is not modified.
func (l *Log) Restore(id string) (artifact.Handle, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, e := range l.entries {
		if e.ID == id {
			return e.Result, nil
		}
	}
	return "", ErrNotFound
}

// List returns copies of the entries, newest first.
func (l *Log) List() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		e.Params = e.Params.Clone()
		out[i] = e
	}
	return out
}

// Clear removes every entry and returns them.
func (l *Log) Clear() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	cleared := l.entries
	l.entries = nil
	return cleared
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// References reports whether any entry points at h.
func (l *Log) References(h artifact.Handle) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, e := range l.entries {
		if e.Result == h {
			return true
		}
	}
	return false
}
