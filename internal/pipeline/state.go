// Package pipeline implements the four-stage marker pipeline: Detection,
// Extraction, Validation and Mapping, sequenced by an orchestrator that owns
// the run state and supports halting, retrying and resetting between stages.
package pipeline

import (
	"sync"
	"time"
)

// Stage identifies a pipeline stage or terminal state.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageDetection  Stage = "detection"
	StageExtraction Stage = "extraction"
	StageValidation Stage = "validation"
	StageMapping    Stage = "mapping"
	StageCompleted  Stage = "completed"
)

// processingStages lists the work stages in execution order.
var processingStages = []Stage{StageDetection, StageExtraction, StageValidation, StageMapping}

// nextStage returns the stage that follows s, with Mapping completing the run.
func nextStage(s Stage) Stage {
	switch s {
	case StageIdle:
		return StageDetection
	case StageDetection:
		return StageExtraction
	case StageExtraction:
		return StageValidation
	case StageValidation:
		return StageMapping
	case StageMapping:
		return StageCompleted
	default:
		return StageCompleted
	}
}

// Snapshot is an immutable view of the run state handed to readers. The
// orchestrator is the single writer; readers never mutate the live state.
type Snapshot struct {
	Stage           Stage                   `json:"stage"`
	Halted          bool                    `json:"halted"`
	HaltReason      string                  `json:"halt_reason,omitempty"`
	Retryable       bool                    `json:"retryable"`
	CompletedStages []Stage                 `json:"completed_stages"`
	StageTimings    map[Stage]time.Duration `json:"stage_timings"`
	VisibleCount    int                     `json:"visible_count"`
	ArtifactCount   int                     `json:"artifact_count"`
	ValidatedCount  int                     `json:"validated_count"`
	Degraded        bool                    `json:"degraded"`
}

// Done reports whether the run has reached a terminal state.
func (s Snapshot) Done() bool {
	return s.Stage == StageCompleted || s.Halted
}

// StageCompleted reports whether the given stage finished successfully.
func (s Snapshot) StageCompleted(stage Stage) bool {
	for _, c := range s.CompletedStages {
		if c == stage {
			return true
		}
	}
	return false
}

// state is the live run state. All mutation goes through the orchestrator.
type state struct {
	mu          sync.Mutex
	stage       Stage
	halted      bool
	haltReason  string
	retryable   bool
	completed   []Stage
	timings     map[Stage]time.Duration
	visible     int
	artifacts   int
	validated   int
	degraded    bool
	subscribers []chan Snapshot
}

func newState() *state {
	return &state{
		stage:   StageIdle,
		timings: make(map[Stage]time.Duration),
	}
}

// snapshotLocked builds a copy of the current state. Callers hold mu.
func (s *state) snapshotLocked() Snapshot {
	completed := make([]Stage, len(s.completed))
	copy(completed, s.completed)
	timings := make(map[Stage]time.Duration, len(s.timings))
	for k, v := range s.timings {
		timings[k] = v
	}
	return Snapshot{
		Stage:           s.stage,
		Halted:          s.halted,
		HaltReason:      s.haltReason,
		Retryable:       s.retryable,
		CompletedStages: completed,
		StageTimings:    timings,
		VisibleCount:    s.visible,
		ArtifactCount:   s.artifacts,
		ValidatedCount:  s.validated,
		Degraded:        s.degraded,
	}
}

// Snapshot returns an immutable copy of the current state.
func (s *state) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers a buffered channel that receives a snapshot after
// every state change. Slow subscribers miss intermediate snapshots rather
// than blocking the orchestrator; terminal snapshots are always delivered.
// The returned cancel func removes the subscription and closes the channel;
// calling it more than once is safe.
func (s *state) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Snapshot, 16)
	s.subscribers = append(s.subscribers, ch)

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, c := range s.subscribers {
			if c == ch {
				s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
				close(c)
				return
			}
		}
	}
	return ch, cancel
}

// update applies fn under the lock and publishes the resulting snapshot.
// Sends happen under the lock so a concurrent cancel cannot close a channel
// mid-publish.
func (s *state) update(fn func(*state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
	snap := s.snapshotLocked()

	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			if snap.Done() {
				// A full buffer must not swallow the terminal snapshot,
				// evict the oldest one to make room.
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- snap:
				default:
				}
			}
		}
	}
}

func (s *state) enterStage(stage Stage) {
	s.update(func(st *state) {
		st.stage = stage
	})
}

func (s *state) completeStage(stage Stage, elapsed time.Duration) {
	s.update(func(st *state) {
		st.completed = append(st.completed, stage)
		st.timings[stage] = elapsed
	})
}

func (s *state) halt(reason string, retryable bool) {
	s.update(func(st *state) {
		st.halted = true
		st.haltReason = reason
		st.retryable = retryable
	})
}

func (s *state) clearHalt() {
	s.update(func(st *state) {
		st.halted = false
		st.haltReason = ""
		st.retryable = false
	})
}

func (s *state) reset() {
	s.update(func(st *state) {
		st.stage = StageIdle
		st.halted = false
		st.haltReason = ""
		st.retryable = false
		st.completed = nil
		st.timings = make(map[Stage]time.Duration)
		st.visible = 0
		st.artifacts = 0
		st.validated = 0
		st.degraded = false
	})
}
