// Package common provides small shared utilities, currently stage timing.
package common

import (
	"fmt"
	"sync"
	"time"
)

// Timer measures a single elapsed duration with an optional name.
type Timer struct {
	start    time.Time
	name     string
	duration time.Duration
}

// NewTimer creates a new running timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// NewNamedTimer creates a new running timer with the given name.
func NewNamedTimer(name string) *Timer {
	return &Timer{name: name, start: time.Now()}
}

// Stop stops the timer and returns the elapsed duration.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// Duration returns the recorded duration (only valid after Stop()).
func (t *Timer) Duration() time.Duration { return t.duration }

// Name returns the timer name (empty string if unnamed).
func (t *Timer) Name() string { return t.name }

// String returns a formatted string representation of the timer.
func (t *Timer) String() string {
	if t.name != "" {
		return fmt.Sprintf("%s: %v", t.name, t.duration)
	}
	return fmt.Sprintf("%v", t.duration)
}

// Stopwatch collects named lap durations, e.g. one per pipeline stage.
// Safe for concurrent use.
type Stopwatch struct {
	mu   sync.Mutex
	laps map[string]time.Duration
}

// NewStopwatch creates an empty stopwatch.
func NewStopwatch() *Stopwatch {
	return &Stopwatch{laps: make(map[string]time.Duration)}
}

// Record stores the duration for a named lap, replacing any previous value.
func (s *Stopwatch) Record(name string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.laps[name] = d
}

// Lap returns the recorded duration for name.
func (s *Stopwatch) Lap(name string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.laps[name]
}

// Total returns the sum of all recorded laps.
func (s *Stopwatch) Total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total time.Duration
	for _, d := range s.laps {
		total += d
	}
	return total
}

// Laps returns a copy of all recorded laps.
func (s *Stopwatch) Laps() map[string]time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Duration, len(s.laps))
	for k, v := range s.laps {
		out[k] = v
	}
	return out
}
