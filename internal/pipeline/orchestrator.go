package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/drawscan/hexmark/internal/common"
	"github.com/drawscan/hexmark/internal/marker"
	"github.com/drawscan/hexmark/internal/provider"
)

// Detector finds marker candidates in raw image bytes.
type Detector interface {
	Detect(ctx context.Context, imageData []byte) ([]marker.Detection, error)
}

// Judge decides whether a single PNG crop is a marker and reads its text.
type Judge interface {
	Judge(ctx context.Context, pngData []byte) (marker.Judgment, error)
}

// ErrCanceled is attached to the run state when the operator cancels a run.
var ErrCanceled = errors.New("run canceled")

// ErrNotHalted is returned by Retry and Reset when the run is not halted.
var ErrNotHalted = errors.New("run is not halted")

// Options configures a pipeline run.
type Options struct {
	DisplayThreshold    float64
	ExtractionThreshold float64
	Upscale             float64
	Enhance             bool
	Padding             float64
	Pacing              time.Duration
	MaxConcurrent       int
	Retry               provider.RetryPolicy
	BreakerThreshold    int
	BreakerCooldown     time.Duration
}

// DefaultOptions returns the standard run settings.
func DefaultOptions() Options {
	return Options{
		DisplayThreshold:    0.5,
		ExtractionThreshold: 0.70,
		Upscale:             4.0,
		Enhance:             true,
		Padding:             0.10,
		Pacing:              time.Second,
		MaxConcurrent:       1,
		Retry:               provider.DefaultRetryPolicy(),
		BreakerThreshold:    5,
		BreakerCooldown:     30 * time.Second,
	}
}

// Orchestrator sequences the four stages over one session. It is the single
// writer of the run state; everything readers see is an immutable snapshot.
type Orchestrator struct {
	opts     Options
	session  *Session
	detector Detector
	judge    Judge
	state    *state
	breaker  *provider.Breaker
	canceled atomic.Bool
	logger   *slog.Logger
}

// NewOrchestrator creates an orchestrator for one run.
func NewOrchestrator(session *Session, detector Detector, judge Judge, opts Options) *Orchestrator {
	return &Orchestrator{
		opts:     opts,
		session:  session,
		detector: detector,
		judge:    judge,
		state:    newState(),
		breaker:  provider.NewBreaker(opts.BreakerThreshold, opts.BreakerCooldown),
		logger:   slog.Default().With("session", session.ID),
	}
}

// Session returns the session this orchestrator runs over.
func (o *Orchestrator) Session() *Session { return o.session }

// Snapshot returns an immutable copy of the current run state.
func (o *Orchestrator) Snapshot() Snapshot { return o.state.Snapshot() }

// Subscribe returns a channel receiving a snapshot after every state change
// and a cancel func that ends the subscription and closes the channel.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) { return o.state.Subscribe() }

// Cancel requests a halt. It takes effect at the next checkpoint; an
// in-flight provider call is never aborted, but no further work is started
// once observed.
func (o *Orchestrator) Cancel() {
	o.canceled.Store(true)
}

func (o *Orchestrator) isCanceled() bool { return o.canceled.Load() }

// Run executes the pipeline from the beginning. The session must be idle.
func (o *Orchestrator) Run(ctx context.Context) error {
	snap := o.state.Snapshot()
	if snap.Stage != StageIdle {
		return fmt.Errorf("run already started (stage %s)", snap.Stage)
	}
	return o.runFrom(ctx, StageDetection)
}

// Retry resumes a halted run at the stage that failed. Outputs of completed
// stages are kept; only the failed stage is re-executed. Retry is refused
// for fatal halts.
func (o *Orchestrator) Retry(ctx context.Context) error {
	snap := o.state.Snapshot()
	if !snap.Halted {
		return ErrNotHalted
	}
	if !snap.Retryable {
		return fmt.Errorf("halt is not retryable: %s", snap.HaltReason)
	}
	o.canceled.Store(false)
	o.state.clearHalt()
	return o.runFrom(ctx, snap.Stage)
}

// Reset discards every artifact of a halted run and returns to idle.
func (o *Orchestrator) Reset() error {
	snap := o.state.Snapshot()
	if !snap.Halted && snap.Stage != StageCompleted && snap.Stage != StageIdle {
		return errors.New("cannot reset a running pipeline")
	}
	if err := o.session.Discard(); err != nil {
		return err
	}
	o.canceled.Store(false)
	o.state.reset()
	return nil
}

// runFrom executes stages sequentially starting at start. Cancellation is
// checked at every stage boundary; a failing stage halts the run with its
// error attached and its partial output discarded.
func (o *Orchestrator) runFrom(ctx context.Context, start Stage) error {
	for stage := start; stage != StageCompleted; stage = nextStage(stage) {
		if o.isCanceled() || ctx.Err() != nil {
			o.state.halt(ErrCanceled.Error(), true)
			return ErrCanceled
		}

		o.state.enterStage(stage)
		o.logger.Info("stage started", "stage", stage)
		timer := common.NewNamedTimer(string(stage))
		err := o.runStage(ctx, stage)
		elapsed := timer.Stop()

		if err != nil {
			if discardErr := o.session.DiscardStageOutput(stage); discardErr != nil {
				o.logger.Warn("failed to discard stage output", "stage", stage, "error", discardErr)
			}
			retryable := retryableFailure(err)
			o.logger.Error("stage failed", "stage", stage, "elapsed", elapsed, "retryable", retryable, "error", err)
			o.state.halt(err.Error(), retryable)
			return err
		}

		o.state.completeStage(stage, elapsed)
		o.logger.Info("stage completed", "stage", stage, "elapsed", elapsed)
	}

	o.state.enterStage(StageCompleted)
	return nil
}

// RunStage executes a single stage against the session's persisted hand-off
// files, for standalone stage invocation. Predecessor outputs must already
// exist on disk; a missing hand-off file fails the stage.
func (o *Orchestrator) RunStage(ctx context.Context, stage Stage) error {
	o.state.enterStage(stage)
	timer := common.NewNamedTimer(string(stage))
	err := o.runStage(ctx, stage)
	elapsed := timer.Stop()
	if err != nil {
		o.logger.Error("stage failed", "stage", stage, "elapsed", elapsed, "error", err)
		o.state.halt(err.Error(), retryableFailure(err))
		return err
	}
	o.state.completeStage(stage, elapsed)
	o.logger.Info("stage completed", "stage", stage, "elapsed", elapsed)
	return nil
}

func (o *Orchestrator) runStage(ctx context.Context, stage Stage) error {
	switch stage {
	case StageDetection:
		return o.runDetection(ctx)
	case StageExtraction:
		return o.runExtraction(ctx)
	case StageValidation:
		return o.runValidation(ctx)
	case StageMapping:
		return o.runMapping(ctx)
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
}

// callProvider wraps a provider call with the circuit breaker and the retry
// policy.
func (o *Orchestrator) callProvider(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if !o.breaker.Allow() {
		return fmt.Errorf("%s provider: %w", name, provider.ErrBreakerOpen)
	}
	err := o.opts.Retry.Do(ctx, name, fn)
	o.breaker.Record(err)
	return err
}

// retryableFailure reports whether a halt caused by err may be retried
// without resetting the session.
func retryableFailure(err error) bool {
	if errors.Is(err, ErrCanceled) {
		return true
	}
	if errors.Is(err, provider.ErrBreakerOpen) {
		return true
	}
	return provider.IsRetryable(err)
}
