package pipeline

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drawscan/hexmark/internal/marker"
	"github.com/drawscan/hexmark/internal/provider"
	"github.com/drawscan/hexmark/internal/reconcile"
	"github.com/drawscan/hexmark/internal/testutil"
)

type fakeDetector struct {
	mu         sync.Mutex
	detections []marker.Detection
	errs       []error
	calls      int
}

func (f *fakeDetector) Detect(_ context.Context, _ []byte) ([]marker.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.calls
	f.calls++
	if call < len(f.errs) && f.errs[call] != nil {
		return nil, f.errs[call]
	}
	return f.detections, nil
}

type fakeJudge struct {
	mu        sync.Mutex
	judgments []marker.Judgment
	errAt     map[int]error
	onCall    func(call int)
	calls     int
}

func (f *fakeJudge) Judge(_ context.Context, _ []byte) (marker.Judgment, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	onCall := f.onCall
	err := f.errAt[call]
	f.mu.Unlock()

	if onCall != nil {
		onCall(call)
	}
	if err != nil {
		return marker.Judgment{}, err
	}
	if call < len(f.judgments) {
		return f.judgments[call], nil
	}
	return marker.Judgment{IsMarker: true, UpperLine: "X", LowerLine: "Y"}, nil
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Pacing = 0
	opts.Retry = provider.RetryPolicy{MaxAttempts: 1, InitialBackoff: time.Millisecond}
	return opts
}

func threeMarkerDrawing(t *testing.T) (*Session, testutil.DrawingConfig) {
	t.Helper()
	config := testutil.DefaultDrawingConfig()
	config.Markers = []testutil.MarkerSpec{
		{Box: marker.Box{Left: 0.05, Top: 0.1, Width: 0.2, Height: 0.2}, UpperLine: "A1", LowerLine: "B2"},
		{Box: marker.Box{Left: 0.4, Top: 0.1, Width: 0.2, Height: 0.2}, UpperLine: "A1", LowerLine: "B2"},
		{Box: marker.Box{Left: 0.7, Top: 0.6, Width: 0.2, Height: 0.2}, UpperLine: "C3", LowerLine: "D4"},
	}
	imgPath := testutil.WriteDrawing(t, t.TempDir(), "drawing.png", config)

	session, err := NewSession(t.TempDir(), "", imgPath)
	require.NoError(t, err)
	return session, config
}

func TestRunCompletes(t *testing.T) {
	session, config := threeMarkerDrawing(t)
	detector := &fakeDetector{detections: testutil.Detections(config, 0.9)}
	judge := &fakeJudge{judgments: []marker.Judgment{
		{IsMarker: true, UpperLine: "A1", LowerLine: "B2"},
		{IsMarker: true, UpperLine: "A1", LowerLine: "B2"},
		{IsMarker: true, UpperLine: "C3", LowerLine: "D4"},
	}}

	orch := NewOrchestrator(session, detector, judge, testOptions())
	require.NoError(t, orch.Run(context.Background()))

	snap := orch.Snapshot()
	assert.Equal(t, StageCompleted, snap.Stage)
	assert.False(t, snap.Halted)
	assert.Equal(t, 3, snap.VisibleCount)
	assert.Equal(t, 3, snap.ArtifactCount)
	assert.Equal(t, 3, snap.ValidatedCount)
	for _, stage := range processingStages {
		assert.True(t, snap.StageCompleted(stage), "stage %s not recorded completed", stage)
		assert.Contains(t, snap.StageTimings, stage)
	}

	// Every stage hand-off file is persisted
	for _, path := range []string{
		session.DetectionsPath(), session.AnnotatedPath(), session.ManifestPath(),
		session.ValidationPath(), session.ValidatedPath(), session.MappedPath(), session.ReportPath(),
	} {
		_, err := os.Stat(path)
		require.NoError(t, err, path)
	}

	var report marker.InstanceReport
	require.NoError(t, marker.ReadJSON(session.ReportPath(), &report))
	assert.Equal(t, 3, report.TotalValidated)
	assert.Equal(t, 2, report.DistinctGroups)
	require.Len(t, report.Duplicates, 1)
	assert.Equal(t, "A1/B2", report.Duplicates[0].Key)
	assert.False(t, report.Degraded())
}

func TestZeroDetectionsHaltsAtMapping(t *testing.T) {
	session, config := threeMarkerDrawing(t)
	// Everything below the display threshold: valid image, empty visible set
	detector := &fakeDetector{detections: testutil.Detections(config, 0.3)}
	judge := &fakeJudge{}

	orch := NewOrchestrator(session, detector, judge, testOptions())
	err := orch.Run(context.Background())
	require.Error(t, err)
	var mapErr *reconcile.MappingError
	require.True(t, errors.As(err, &mapErr))

	snap := orch.Snapshot()
	assert.NotEqual(t, StageCompleted, snap.Stage)
	assert.Equal(t, StageMapping, snap.Stage)
	assert.True(t, snap.Halted)
	assert.False(t, snap.Retryable)

	// Detection, extraction and validation succeeded with empty results
	assert.True(t, snap.StageCompleted(StageDetection))
	assert.True(t, snap.StageCompleted(StageExtraction))
	assert.True(t, snap.StageCompleted(StageValidation))
	assert.Equal(t, 0, judge.calls)

	var results []marker.ValidationResult
	require.NoError(t, marker.ReadJSON(session.ValidationPath(), &results))
	assert.Empty(t, results)

	// The failed stage wrote nothing
	_, err = os.Stat(session.ReportPath())
	assert.True(t, os.IsNotExist(err))
}

func TestCancelMidValidationPreservesRecordedResults(t *testing.T) {
	config := testutil.DefaultDrawingConfig()
	for i := range 5 {
		config.Markers = append(config.Markers, testutil.MarkerSpec{
			Box: marker.Box{Left: 0.05 + float64(i)*0.18, Top: 0.1, Width: 0.15, Height: 0.15},
		})
	}
	imgPath := testutil.WriteDrawing(t, t.TempDir(), "drawing.png", config)
	session, err := NewSession(t.TempDir(), "", imgPath)
	require.NoError(t, err)

	detector := &fakeDetector{detections: testutil.Detections(config, 0.9)}
	judge := &fakeJudge{}

	orch := NewOrchestrator(session, detector, judge, testOptions())
	judge.onCall = func(call int) {
		// Cancel while the second judgment is in flight
		if call == 1 {
			orch.Cancel()
		}
	}

	err = orch.Run(context.Background())
	require.ErrorIs(t, err, ErrCanceled)

	snap := orch.Snapshot()
	assert.True(t, snap.Halted)
	assert.Equal(t, StageValidation, snap.Stage)
	assert.True(t, snap.Retryable)
	assert.False(t, snap.StageCompleted(StageValidation))

	// The two recorded judgments survive the halt
	var results []marker.ValidationResult
	require.NoError(t, marker.ReadJSON(session.ValidationPath(), &results))
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Index)
	assert.Equal(t, 2, results[1].Index)

	// Mapping never ran
	_, err = os.Stat(session.MappedPath())
	assert.True(t, os.IsNotExist(err))
}

func TestRetryResumesAtFailedStage(t *testing.T) {
	session, config := threeMarkerDrawing(t)
	detector := &fakeDetector{detections: testutil.Detections(config, 0.9)}
	judge := &fakeJudge{errAt: map[int]error{
		1: provider.NewHTTPError("vision", 503, errors.New("unavailable")),
	}}

	orch := NewOrchestrator(session, detector, judge, testOptions())
	err := orch.Run(context.Background())
	require.Error(t, err)

	snap := orch.Snapshot()
	assert.True(t, snap.Halted)
	assert.True(t, snap.Retryable)
	assert.Equal(t, StageValidation, snap.Stage)

	// Completed stage outputs remain inspectable after the halt
	_, err = os.Stat(session.DetectionsPath())
	require.NoError(t, err)
	_, err = os.Stat(session.ManifestPath())
	require.NoError(t, err)

	// Provider recovers; retry resumes at validation, not from scratch
	judge.mu.Lock()
	judge.errAt = nil
	judge.mu.Unlock()
	detectorCalls := detector.calls

	require.NoError(t, orch.Retry(context.Background()))
	assert.Equal(t, detectorCalls, detector.calls)

	snap = orch.Snapshot()
	assert.Equal(t, StageCompleted, snap.Stage)
	assert.False(t, snap.Halted)
}

func TestRetryRefusedForFatalHalt(t *testing.T) {
	session, config := threeMarkerDrawing(t)
	detector := &fakeDetector{detections: testutil.Detections(config, 0.3)}

	orch := NewOrchestrator(session, detector, &fakeJudge{}, testOptions())
	require.Error(t, orch.Run(context.Background()))

	err := orch.Retry(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotHalted)
}

func TestRetryRequiresHalt(t *testing.T) {
	session, _ := threeMarkerDrawing(t)
	orch := NewOrchestrator(session, &fakeDetector{}, &fakeJudge{}, testOptions())
	require.ErrorIs(t, orch.Retry(context.Background()), ErrNotHalted)
}

func TestResetDiscardsArtifacts(t *testing.T) {
	session, config := threeMarkerDrawing(t)
	detector := &fakeDetector{detections: testutil.Detections(config, 0.3)}

	orch := NewOrchestrator(session, detector, &fakeJudge{}, testOptions())
	require.Error(t, orch.Run(context.Background()))

	require.NoError(t, orch.Reset())
	snap := orch.Snapshot()
	assert.Equal(t, StageIdle, snap.Stage)
	assert.False(t, snap.Halted)
	assert.Empty(t, snap.CompletedStages)

	entries, err := os.ReadDir(session.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunRefusedWhenAlreadyStarted(t *testing.T) {
	session, config := threeMarkerDrawing(t)
	detector := &fakeDetector{detections: testutil.Detections(config, 0.9)}
	orch := NewOrchestrator(session, detector, &fakeJudge{}, testOptions())
	require.NoError(t, orch.Run(context.Background()))
	require.Error(t, orch.Run(context.Background()))
}

func TestBreakerOpensAfterRepeatedProviderFailures(t *testing.T) {
	session, config := threeMarkerDrawing(t)
	detector := &fakeDetector{detections: testutil.Detections(config, 0.9)}
	judge := &fakeJudge{errAt: map[int]error{
		0: provider.NewHTTPError("vision", 503, errors.New("down")),
		1: provider.NewHTTPError("vision", 503, errors.New("down")),
	}}

	opts := testOptions()
	opts.BreakerThreshold = 2
	opts.BreakerCooldown = time.Hour

	orch := NewOrchestrator(session, detector, judge, opts)
	require.Error(t, orch.Run(context.Background()))

	// First failure halts the run; retry hits the second failure which
	// trips the breaker, so the next retry is refused without a call.
	require.Error(t, orch.Retry(context.Background()))
	calls := judge.calls
	err := orch.Retry(context.Background())
	require.ErrorIs(t, err, provider.ErrBreakerOpen)
	assert.Equal(t, calls, judge.calls)

	snap := orch.Snapshot()
	assert.True(t, snap.Halted)
	assert.True(t, snap.Retryable)
}

func TestSubscribeReceivesTerminalSnapshot(t *testing.T) {
	session, config := threeMarkerDrawing(t)
	detector := &fakeDetector{detections: testutil.Detections(config, 0.9)}
	orch := NewOrchestrator(session, detector, &fakeJudge{}, testOptions())

	updates, cancel := orch.Subscribe()
	defer cancel()
	require.NoError(t, orch.Run(context.Background()))

	var last Snapshot
	for {
		select {
		case snap := <-updates:
			last = snap
			if snap.Done() {
				assert.Equal(t, StageCompleted, snap.Stage)
				return
			}
		default:
			t.Fatalf("terminal snapshot not received, last stage %s", last.Stage)
		}
	}
}

func TestConcurrentValidationKeepsIndexOrder(t *testing.T) {
	session, config := threeMarkerDrawing(t)
	detector := &fakeDetector{detections: testutil.Detections(config, 0.9)}
	judge := &fakeJudge{judgments: []marker.Judgment{
		{IsMarker: true, UpperLine: "A1", LowerLine: "B2"},
		{IsMarker: true, UpperLine: "C3", LowerLine: "D4"},
		{IsMarker: true, UpperLine: "E5", LowerLine: "F6"},
	}}

	opts := testOptions()
	opts.MaxConcurrent = 3

	orch := NewOrchestrator(session, detector, judge, opts)
	require.NoError(t, orch.Run(context.Background()))

	var results []marker.ValidationResult
	require.NoError(t, marker.ReadJSON(session.ValidationPath(), &results))
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, i+1, r.Index)
	}
}
