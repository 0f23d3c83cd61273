// Package reconcile turns the validated markers into the final instance
// report: markers with identical printed text are grouped as instances of
// the same part, duplicates are surfaced, and every validated marker is
// drawn back onto the source drawing.
package reconcile

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"github.com/drawscan/hexmark/internal/marker"
	"github.com/drawscan/hexmark/internal/utils"
)

// MappingError is a fatal mapping failure: the stage cannot produce a
// report at all, as opposed to producing a degraded one.
type MappingError struct {
	Reason string
	Err    error
}

func (e *MappingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mapping: %s: %v", e.Reason, e.Err)
	}
	return "mapping: " + e.Reason
}

func (e *MappingError) Unwrap() error { return e.Err }

// Map overlay styling.
var (
	mapBoxColor   = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	mapLabelColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const mapLineWidth = 3

// BuildReport groups the validated markers by their exact printed text and
// computes the instance counts. Results judged not to be markers are
// excluded first; an empty remainder is a fatal mapping error because a
// report over nothing is meaningless. Groups are ordered by the sequence
// index of their first member, so repeated runs over the same input produce
// the identical report.
func BuildReport(results []marker.ValidationResult) (*marker.InstanceReport, error) {
	validated := marker.MarkersOnly(results)
	if len(validated) == 0 {
		return nil, &MappingError{Reason: "no validated markers to reconcile"}
	}

	sort.SliceStable(validated, func(i, j int) bool {
		return validated[i].Index < validated[j].Index
	})

	byKey := make(map[string]*marker.InstanceGroup)
	order := make([]string, 0)
	for _, v := range validated {
		key := v.Key()
		g, ok := byKey[key]
		if !ok {
			g = &marker.InstanceGroup{Key: key}
			byKey[key] = g
			order = append(order, key)
		}
		g.Members = append(g.Members, v)
		g.Count++
	}

	report := &marker.InstanceReport{
		TotalValidated: len(validated),
		DistinctGroups: len(order),
		AllInstances:   make([]marker.InstanceGroup, 0, len(order)),
		Summary:        make(map[string]int, len(order)),
	}
	for _, key := range order {
		g := byKey[key]
		report.AllInstances = append(report.AllInstances, *g)
		report.Summary[key] = g.Count
		if g.Count >= 2 {
			report.Duplicates = append(report.Duplicates, *g)
		}
	}
	return report, nil
}

// syntheticBox places a marker whose source box is unknown at a
// deterministic position derived from its sequence index, so it is still
// visible on the map and visually distinct from its neighbors.
func syntheticBox(index int) marker.Box {
	n := float64(index)
	left := 0.1 + mod(n*0.05, 0.8)
	top := 0.1 + mod(n*0.03, 0.8)
	return marker.Box{Left: left, Top: top, Width: 0.04, Height: 0.04}
}

func mod(x, m float64) float64 {
	for x >= m {
		x -= m
	}
	return x
}

// RenderMap draws every validated marker of the report onto a copy of the
// source image, labeled with its sequence index and printed text. Boxes are
// resolved from the artifact manifest; a marker the manifest no longer knows
// gets a synthetic placement and is flagged on the report.
func RenderMap(img image.Image, report *marker.InstanceReport, manifest *marker.ArtifactManifest) *image.RGBA {
	dst := utils.ToRGBA(img)
	width := dst.Bounds().Dx()
	height := dst.Bounds().Dy()

	report.SyntheticPlacements = nil
	for _, g := range report.AllInstances {
		for _, m := range g.Members {
			box, resolved := resolveBox(manifest, m.Index)
			if !resolved {
				box = syntheticBox(m.Index)
				report.SyntheticPlacements = append(report.SyntheticPlacements, m.Index)
			}

			rect := box.ToPixels(width, height)
			utils.DrawRect(dst, rect, mapBoxColor, mapLineWidth)

			label := fmt.Sprintf("#%d (%s)", m.Index, g.Key)
			_, lh := utils.MeasureLabel(label)
			utils.DrawLabel(dst, rect.Min.X, rect.Min.Y-lh-2, label, mapLabelColor, mapBoxColor)
		}
	}
	sort.Ints(report.SyntheticPlacements)
	return dst
}

func resolveBox(manifest *marker.ArtifactManifest, index int) (marker.Box, bool) {
	if manifest == nil {
		return marker.Box{}, false
	}
	a, ok := manifest.Lookup(index)
	if !ok {
		return marker.Box{}, false
	}
	return a.Box, true
}

// Reconcile is the full mapping stage: build the report from the validation
// results, then render the map image. img may be nil when no overlay is
// wanted; the report alone is returned in that case.
func Reconcile(img image.Image, results []marker.ValidationResult, manifest *marker.ArtifactManifest) (*marker.InstanceReport, *image.RGBA, error) {
	report, err := BuildReport(results)
	if err != nil {
		return nil, nil, err
	}
	if img == nil {
		return report, nil, nil
	}
	mapped := RenderMap(img, report, manifest)
	return report, mapped, nil
}
