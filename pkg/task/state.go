// Package task holds the mutable bookkeeping owned by one work task: the
// per-step retry counters used by the action executor and the observation
// budget and staleness trackers used by the observation guard. A State is
// created when a task starts and discarded when it ends.
package task

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxRetriesPerStep is the number of failed attempts after which a step is
// reported as permanently failed.
const MaxRetriesPerStep = 3

// StepKey normalizes a step description into a retry key: lowercased with
// runs of whitespace collapsed.
func StepKey(description string) string {
	return strings.ToLower(strings.Join(strings.Fields(description), " "))
}

// State is the per-task execution context. Calls within one task are
// sequential; the mutex only guards against misuse from tool goroutines.
type State struct {
	mu        sync.Mutex
	id        string
	startedAt time.Time

	retries map[string]int

	observeCalls    int
	lastSignature   string
	repeatSignature int
}

// NewState creates an empty State for a new task.
func NewState() *State {
	return &State{
		id:        uuid.New().String(),
		startedAt: time.Now(),
		retries:   make(map[string]int),
	}
}

// ID returns the task identifier.
func (s *State) ID() string {
	return s.id
}

// StartedAt returns when the task began.
func (s *State) StartedAt() time.Time {
	return s.startedAt
}

// RecordFailure increments the retry counter for key and returns the new count.
func (s *State) RecordFailure(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries[key]++
	return s.retries[key]
}

// ClearStep removes the retry counter for key.
func (s *State) ClearStep(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.retries, key)
}

// Retries returns the current retry count for key.
func (s *State) Retries(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries[key]
}

// PendingSteps returns the number of steps with a non-zero retry count.
func (s *State) PendingSteps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.retries)
}

// NextObserveCall increments the observation call counter and returns it.
func (s *State) NextObserveCall() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observeCalls++
	return s.observeCalls
}

// ObserveCalls returns how many observation calls were attempted.
func (s *State) ObserveCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observeCalls
}

// TrackSignature compares signature with the previous observation result and
// returns the number of consecutive repeats. An empty signature never counts
// as a repeat.
func (s *State) TrackSignature(signature string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if signature != "" && signature == s.lastSignature {
		s.repeatSignature++
	} else {
		s.repeatSignature = 0
		s.lastSignature = signature
	}
	return s.repeatSignature
}
