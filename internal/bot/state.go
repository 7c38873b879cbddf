package bot

import (
	"sync"
	"time"

	"github.com/example/visawatch/internal/appointment"
)

// RunState is the process-wide state of one monitoring session. All
// mutation goes through its methods; the attempt loop and the reply
// listener share it across goroutines.
type RunState struct {
	mu sync.Mutex

	startedAt           time.Time
	locationIdx         int
	attempts            int
	consecutiveFailures int
	lastSnapshot        time.Time
	lastOutcome         appointment.Outcome
	stopping            bool
}

// Status is a read-only summary of RunState, reported to the operator on
// /status and shown in the web UI.
type Status struct {
	Running             bool
	StartedAt           time.Time
	Attempts            int
	ConsecutiveFailures int
	LastSnapshot        time.Time
	LastOutcome         string
	ActiveLocation      string
}

func NewRunState() *RunState {
	return &RunState{startedAt: time.Now()}
}

// BeginAttempt bumps the attempt counter and returns the new sequence
// number.
func (s *RunState) BeginAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return s.attempts
}

// RecordOutcome stores the attempt's classified result and maintains the
// consecutive-failure counter. Returns the counter's new value.
func (s *RunState) RecordOutcome(out appointment.Outcome) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastOutcome = out
	if out.Failure() {
		s.consecutiveFailures++
	} else {
		s.consecutiveFailures = 0
	}
	return s.consecutiveFailures
}

// MarkSnapshot records the time of the last successful availability read.
func (s *RunState) MarkSnapshot(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSnapshot = at
}

// LocationIndex returns the active rotation index.
func (s *RunState) LocationIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locationIdx
}

// AdvanceLocation rotates to the next of n configured locations.
func (s *RunState) AdvanceLocation(n int) {
	if n < 2 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locationIdx = (s.locationIdx + 1) % n
}

// SetStopping marks the session as shutting down.
func (s *RunState) SetStopping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopping = true
}

func (s *RunState) Snapshot(activeLocation string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:             !s.stopping,
		StartedAt:           s.startedAt,
		Attempts:            s.attempts,
		ConsecutiveFailures: s.consecutiveFailures,
		LastSnapshot:        s.lastSnapshot,
		LastOutcome:         s.lastOutcome.String(),
		ActiveLocation:      activeLocation,
	}
}
