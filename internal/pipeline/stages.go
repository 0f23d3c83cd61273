package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/drawscan/hexmark/internal/annotate"
	"github.com/drawscan/hexmark/internal/extract"
	"github.com/drawscan/hexmark/internal/marker"
	"github.com/drawscan/hexmark/internal/reconcile"
	"github.com/drawscan/hexmark/internal/utils"
)

// runDetection submits the source image to the detection provider, filters
// the predictions to the display threshold, persists the detection record
// and renders the annotated overlay.
func (o *Orchestrator) runDetection(ctx context.Context) error {
	data, err := os.ReadFile(o.session.ImagePath) //nolint:gosec // G304: operator-provided input path
	if err != nil {
		return fmt.Errorf("read input image: %w", err)
	}
	img, meta, err := utils.LoadImage(o.session.ImagePath)
	if err != nil {
		return err
	}

	var detections []marker.Detection
	err = o.callProvider(ctx, "detection", func(ctx context.Context) error {
		d, derr := o.detector.Detect(ctx, data)
		if derr == nil {
			detections = d
		}
		return derr
	})
	if err != nil {
		return err
	}

	// Below-display-threshold predictions are dropped entirely, provider
	// order is preserved.
	visible := make([]marker.Detection, 0, len(detections))
	for _, d := range detections {
		if d.Confidence >= o.opts.DisplayThreshold {
			visible = append(visible, d)
		}
	}

	record := &marker.DetectionRecord{
		ImagePath:        o.session.ImagePath,
		Width:            meta.Width,
		Height:           meta.Height,
		DisplayThreshold: o.opts.DisplayThreshold,
		Detections:       visible,
	}
	record.Summarize()
	if err := marker.WriteJSON(o.session.DetectionsPath(), record); err != nil {
		return err
	}

	annotated := annotate.Render(img, visible, annotate.Options{
		Upscale:             o.opts.Upscale,
		ExtractionThreshold: o.opts.ExtractionThreshold,
		Enhance:             o.opts.Enhance,
	})
	if err := utils.SaveJPEG(o.session.AnnotatedPath(), annotated); err != nil {
		return err
	}

	o.state.update(func(st *state) { st.visible = len(visible) })
	return nil
}

// runExtraction crops the high-confidence detections into the artifacts
// directory and persists the manifest. Zero surviving detections is a valid
// empty result.
func (o *Orchestrator) runExtraction(_ context.Context) error {
	img, _, err := utils.LoadImage(o.session.ImagePath)
	if err != nil {
		return err
	}
	var record marker.DetectionRecord
	if err := marker.ReadJSON(o.session.DetectionsPath(), &record); err != nil {
		return err
	}

	manifest, err := extract.Extract(img, &record, o.session.ArtifactsDir(), extract.Options{
		Threshold: o.opts.ExtractionThreshold,
		Padding:   o.opts.Padding,
	})
	if err != nil {
		return err
	}
	if err := marker.WriteJSON(o.session.ManifestPath(), manifest); err != nil {
		return err
	}

	o.state.update(func(st *state) { st.artifacts = len(manifest.Artifacts) })
	return nil
}

// runValidation submits every artifact to the vision provider. Sequence
// indices come from the manifest and are fixed before any call is issued.
// Results are persisted after every completed judgment, so a halt preserves
// everything recorded so far. Cancellation is observed between calls; an
// in-flight call finishes but no further one is started.
func (o *Orchestrator) runValidation(ctx context.Context) error {
	var manifest marker.ArtifactManifest
	if err := marker.ReadJSON(o.session.ManifestPath(), &manifest); err != nil {
		return err
	}

	n := len(manifest.Artifacts)
	if n == 0 {
		return marker.WriteJSON(o.session.ValidationPath(), []marker.ValidationResult{})
	}

	if o.opts.MaxConcurrent <= 1 {
		return o.validateSequential(ctx, &manifest)
	}
	return o.validateConcurrent(ctx, &manifest)
}

func (o *Orchestrator) validateSequential(ctx context.Context, manifest *marker.ArtifactManifest) error {
	results := make([]marker.ValidationResult, 0, len(manifest.Artifacts))
	for i, a := range manifest.Artifacts {
		if o.isCanceled() || ctx.Err() != nil {
			return ErrCanceled
		}
		if i > 0 && o.opts.Pacing > 0 {
			select {
			case <-ctx.Done():
				return ErrCanceled
			case <-time.After(o.opts.Pacing):
			}
		}

		res, err := o.validateOne(ctx, a)
		if err != nil {
			return err
		}
		results = append(results, res)
		if err := marker.WriteJSON(o.session.ValidationPath(), results); err != nil {
			return err
		}
		o.state.update(func(st *state) { st.validated = len(results) })
	}
	return nil
}

// validateConcurrent issues judgments with bounded concurrency. Pacing is
// honored between issuances and every completion persists the results
// recorded so far, in sequence-index order.
func (o *Orchestrator) validateConcurrent(ctx context.Context, manifest *marker.ArtifactManifest) error {
	n := len(manifest.Artifacts)
	var (
		mu      sync.Mutex
		done    = make([]*marker.ValidationResult, n)
		firstEr error
	)
	persist := func() error {
		results := make([]marker.ValidationResult, 0, n)
		for _, r := range done {
			if r != nil {
				results = append(results, *r)
			}
		}
		if err := marker.WriteJSON(o.session.ValidationPath(), results); err != nil {
			return err
		}
		o.state.update(func(st *state) { st.validated = len(results) })
		return nil
	}

	sem := make(chan struct{}, o.opts.MaxConcurrent)
	var wg sync.WaitGroup
	interrupted := false

	for i, a := range manifest.Artifacts {
		if o.isCanceled() || ctx.Err() != nil {
			interrupted = true
			break
		}
		mu.Lock()
		failed := firstEr != nil
		mu.Unlock()
		if failed {
			break
		}
		if i > 0 && o.opts.Pacing > 0 {
			select {
			case <-ctx.Done():
				interrupted = true
			case <-time.After(o.opts.Pacing):
			}
			if interrupted {
				break
			}
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(pos int, a marker.Artifact) {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := o.validateOne(ctx, a)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstEr == nil {
					firstEr = err
				}
				return
			}
			done[pos] = &res
			if perr := persist(); perr != nil && firstEr == nil {
				firstEr = perr
			}
		}(i, a)
	}

	wg.Wait()
	mu.Lock()
	err := firstEr
	mu.Unlock()
	if err != nil {
		return err
	}
	if interrupted {
		return ErrCanceled
	}
	return nil
}

func (o *Orchestrator) validateOne(ctx context.Context, a marker.Artifact) (marker.ValidationResult, error) {
	data, err := os.ReadFile(o.session.ArtifactPath(a.File)) //nolint:gosec // G304: manifest-scoped artifact file
	if err != nil {
		return marker.ValidationResult{}, fmt.Errorf("read artifact %d: %w", a.Index, err)
	}

	var judgment marker.Judgment
	err = o.callProvider(ctx, "vision", func(ctx context.Context) error {
		j, jerr := o.judge.Judge(ctx, data)
		if jerr == nil {
			judgment = j
		}
		return jerr
	})
	if err != nil {
		return marker.ValidationResult{}, err
	}

	return marker.ValidationResult{
		Index:         a.Index,
		IsMarker:      judgment.IsMarker,
		UpperLine:     judgment.UpperLine,
		LowerLine:     judgment.LowerLine,
		ConfidenceTag: a.ConfidenceTag(),
		Reason:        judgment.Reason,
		RawText:       judgment.RawText,
	}, nil
}

// runMapping builds the instance report and draws the validated markers
// back onto the original image. An unreadable source image or an empty
// validation set is fatal to the run.
func (o *Orchestrator) runMapping(_ context.Context) error {
	img, _, err := utils.LoadImage(o.session.ImagePath)
	if err != nil {
		return &reconcile.MappingError{Reason: "original image unreadable", Err: err}
	}

	var results []marker.ValidationResult
	if err := marker.ReadJSON(o.session.ValidationPath(), &results); err != nil {
		return err
	}
	var manifest marker.ArtifactManifest
	if err := marker.ReadJSON(o.session.ManifestPath(), &manifest); err != nil {
		return err
	}

	report, mapped, err := reconcile.Reconcile(img, results, &manifest)
	if err != nil {
		return err
	}

	if err := marker.WriteJSON(o.session.ValidatedPath(), marker.MarkersOnly(results)); err != nil {
		return err
	}
	if err := utils.SaveJPEG(o.session.MappedPath(), mapped); err != nil {
		return err
	}
	if err := marker.WriteJSON(o.session.ReportPath(), report); err != nil {
		return err
	}

	o.state.update(func(st *state) { st.degraded = report.Degraded() })
	return nil
}
