// Package memory keeps the recent tasks of a work session.
package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Capacity is the number of entries retained; older entries are evicted first.
const Capacity = 20

// Entry is one completed task.
type Entry struct {
	Task      string    `json:"task"`
	Result    string    `json:"result"`
	Timestamp time.Time `json:"timestamp"`
}

// Memory is a bounded FIFO of entries, safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// New returns an empty Memory.
func New() *Memory {
	return &Memory{}
}

// Add appends e, evicting the oldest entry when full.
func (m *Memory) Add(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	if over := len(m.entries) - Capacity; over > 0 {
		m.entries = append([]Entry(nil), m.entries[over:]...)
	}
}

// Entries returns a copy of the entries, oldest first.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Clear empties the memory.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
}

// Context renders the entries for a model prompt.
func (m *Memory) Context() string {
	entries := m.Entries()
	if len(entries) == 0 {
		return "No prior tasks this session."
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("[%s] %q -> %s", e.Timestamp.Format(time.TimeOnly), e.Task, e.Result))
	}
	return strings.Join(lines, "\n")
}
