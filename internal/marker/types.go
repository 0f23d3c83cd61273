// Package marker defines the domain types shared by the hexmark pipeline
// stages: detections, extracted artifacts, validation judgments and the
// instance report. All hand-off between stages happens through these types
// and their persisted JSON forms.
package marker

import (
	"fmt"
	"image"
)

// Box is an axis-aligned bounding box in normalized image coordinates.
// All fields are fractions of the image dimensions in [0,1].
type Box struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Validate checks that the box lies within the unit square.
func (b Box) Validate() error {
	if b.Left < 0 || b.Top < 0 || b.Width < 0 || b.Height < 0 {
		return fmt.Errorf("negative box component: %+v", b)
	}
	if b.Left+b.Width > 1.0+1e-9 || b.Top+b.Height > 1.0+1e-9 {
		return fmt.Errorf("box exceeds unit square: %+v", b)
	}
	return nil
}

// ToPixels converts the normalized box to a pixel rectangle for an image of
// the given dimensions. Coordinates are truncated, matching how the provider
// boxes are interpreted everywhere else in the pipeline.
func (b Box) ToPixels(width, height int) image.Rectangle {
	x := int(b.Left * float64(width))
	y := int(b.Top * float64(height))
	w := int(b.Width * float64(width))
	h := int(b.Height * float64(height))
	return image.Rect(x, y, x+w, y+h)
}

// Detection is a single provider detection in normalized coordinates.
// Detections are immutable once produced.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// DetectionRecord is the persisted output of the detection stage: the source
// image identity plus the visible detections (confidence >= display
// threshold) in provider order.
type DetectionRecord struct {
	ImagePath        string           `json:"image_path"`
	Width            int              `json:"width"`
	Height           int              `json:"height"`
	DisplayThreshold float64          `json:"display_threshold"`
	Detections       []Detection      `json:"detections"`
	Summary          DetectionSummary `json:"summary"`
}

// DetectionSummary aggregates visible detections by label.
type DetectionSummary struct {
	Total   int            `json:"total"`
	ByLabel map[string]int `json:"by_label,omitempty"`
}

// Summarize recomputes the summary from the visible detection list.
func (r *DetectionRecord) Summarize() {
	s := DetectionSummary{ByLabel: make(map[string]int)}
	for _, d := range r.Detections {
		s.Total++
		s.ByLabel[d.Label]++
	}
	if s.Total == 0 {
		s.ByLabel = nil
	}
	r.Summary = s
}

// Survivors returns the detections with confidence >= threshold, preserving
// provider order. Both the extractor and the reconciler derive artifact
// correspondence from this rule, so it lives on the record itself.
func (r *DetectionRecord) Survivors(threshold float64) []Detection {
	out := make([]Detection, 0, len(r.Detections))
	for _, d := range r.Detections {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	return out
}

// Artifact describes one extracted crop in the artifact manifest. The source
// box is persisted here so that later stages never have to re-derive the
// threshold/ordering rule to find it again.
type Artifact struct {
	Index      int     `json:"index"` // 1-based, contiguous, extraction order
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
	File       string  `json:"file"`    // file name relative to the artifacts directory
	Padding    float64 `json:"padding"` // padding ratio applied per side
}

// ConfidenceTag renders the artifact confidence the way artifact files are
// named, e.g. "92%".
func (a Artifact) ConfidenceTag() string {
	return fmt.Sprintf("%d%%", int(a.Confidence*100+0.5))
}

// ArtifactManifest is the persisted output of the extraction stage.
type ArtifactManifest struct {
	ImagePath           string     `json:"image_path"`
	ExtractionThreshold float64    `json:"extraction_threshold"`
	Artifacts           []Artifact `json:"artifacts"`
}

// Lookup returns the artifact with the given sequence index, if present.
func (m *ArtifactManifest) Lookup(index int) (Artifact, bool) {
	for _, a := range m.Artifacts {
		if a.Index == index {
			return a, true
		}
	}
	return Artifact{}, false
}

// Judgment is the structured answer of the vision-language provider for a
// single artifact, before it is tied to a sequence index.
type Judgment struct {
	IsMarker  bool   `json:"is_marker"`
	UpperLine string `json:"upper_line"`
	LowerLine string `json:"lower_line"`
	Reason    string `json:"reason,omitempty"`
	// RawText preserves the provider's free-text answer when the structured
	// parse failed; IsMarker is then a best-effort true so the artifact is
	// never silently dropped.
	RawText string `json:"raw_text,omitempty"`
}

// ValidationResult ties a judgment to the artifact it was made for.
// Immutable once produced.
type ValidationResult struct {
	Index         int    `json:"index"`
	IsMarker      bool   `json:"is_marker"`
	UpperLine     string `json:"upper_line"`
	LowerLine     string `json:"lower_line"`
	ConfidenceTag string `json:"confidence_tag"`
	Reason        string `json:"reason,omitempty"`
	RawText       string `json:"raw_text,omitempty"`
}

// Key is the exact-match grouping key. Case and whitespace are significant;
// no normalization is applied.
func (v ValidationResult) Key() string {
	return v.UpperLine + "/" + v.LowerLine
}

// InstanceGroup is the set of validated markers sharing identical printed
// text. Members are kept in sequence-index order.
type InstanceGroup struct {
	Key     string             `json:"key"`
	Count   int                `json:"count"`
	Members []ValidationResult `json:"members"`
}

// InstanceReport is the persisted output of the mapping stage. It is fully
// recomputed on every reconcile run, never merged incrementally.
type InstanceReport struct {
	TotalValidated int             `json:"total_validated"`
	DistinctGroups int             `json:"distinct_groups"`
	AllInstances   []InstanceGroup `json:"all_instances"`
	Duplicates     []InstanceGroup `json:"duplicates"`
	Summary        map[string]int  `json:"summary"`
	// SyntheticPlacements lists sequence indices whose source box could not
	// be resolved from the manifest and were placed deterministically
	// instead. Non-empty means the run has a correspondence integrity issue.
	SyntheticPlacements []int `json:"synthetic_placements,omitempty"`
}

// Degraded reports whether any marker required synthetic placement.
func (r *InstanceReport) Degraded() bool {
	return len(r.SyntheticPlacements) > 0
}
