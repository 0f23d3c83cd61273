package marker

import (
	"image"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxValidate(t *testing.T) {
	require.NoError(t, Box{Left: 0.1, Top: 0.2, Width: 0.3, Height: 0.4}.Validate())
	require.Error(t, Box{Left: -0.1, Top: 0, Width: 0.1, Height: 0.1}.Validate())
	require.Error(t, Box{Left: 0.9, Top: 0, Width: 0.2, Height: 0.1}.Validate())
	// Boundary box is valid
	require.NoError(t, Box{Left: 0, Top: 0, Width: 1, Height: 1}.Validate())
}

func TestBoxToPixelsTruncates(t *testing.T) {
	b := Box{Left: 0.1, Top: 0.2, Width: 0.05, Height: 0.05}
	rect := b.ToPixels(1000, 800)
	assert.Equal(t, image.Rect(100, 160, 150, 200), rect)

	// Fractional pixel positions truncate, not round
	b = Box{Left: 0.333, Top: 0.333, Width: 0.333, Height: 0.333}
	rect = b.ToPixels(100, 100)
	assert.Equal(t, image.Rect(33, 33, 66, 66), rect)
}

func TestSurvivorsPreservesOrderAndSubset(t *testing.T) {
	record := &DetectionRecord{
		Detections: []Detection{
			{Label: "hexagon", Confidence: 0.95},
			{Label: "hexagon", Confidence: 0.55},
			{Label: "hexagon", Confidence: 0.80},
			{Label: "hexagon", Confidence: 0.65},
		},
	}

	display := record.Survivors(0.5)
	extraction := record.Survivors(0.7)
	require.Len(t, display, 4)
	require.Len(t, extraction, 2)

	// Extraction survivors are a subset of display survivors, in order
	assert.Equal(t, 0.95, extraction[0].Confidence)
	assert.Equal(t, 0.80, extraction[1].Confidence)
	for _, e := range extraction {
		assert.Contains(t, display, e)
	}
}

func TestSummarize(t *testing.T) {
	record := &DetectionRecord{
		Detections: []Detection{
			{Label: "hexagon", Confidence: 0.9},
			{Label: "hexagon", Confidence: 0.8},
			{Label: "circle", Confidence: 0.7},
		},
	}
	record.Summarize()
	assert.Equal(t, 3, record.Summary.Total)
	assert.Equal(t, 2, record.Summary.ByLabel["hexagon"])
	assert.Equal(t, 1, record.Summary.ByLabel["circle"])

	empty := &DetectionRecord{}
	empty.Summarize()
	assert.Equal(t, 0, empty.Summary.Total)
	assert.Nil(t, empty.Summary.ByLabel)
}

func TestConfidenceTag(t *testing.T) {
	assert.Equal(t, "92%", Artifact{Confidence: 0.92}.ConfidenceTag())
	assert.Equal(t, "93%", Artifact{Confidence: 0.925}.ConfidenceTag())
	assert.Equal(t, "100%", Artifact{Confidence: 1.0}.ConfidenceTag())
}

func TestManifestLookup(t *testing.T) {
	m := &ArtifactManifest{Artifacts: []Artifact{
		{Index: 1, File: "a.png"},
		{Index: 2, File: "b.png"},
	}}

	a, ok := m.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, "b.png", a.File)

	_, ok = m.Lookup(3)
	assert.False(t, ok)
}

func TestValidationResultKey(t *testing.T) {
	v := ValidationResult{UpperLine: "A1", LowerLine: "B2"}
	assert.Equal(t, "A1/B2", v.Key())

	// Case and whitespace are significant
	assert.NotEqual(t, v.Key(), ValidationResult{UpperLine: "a1", LowerLine: "B2"}.Key())
	assert.NotEqual(t, v.Key(), ValidationResult{UpperLine: "A1 ", LowerLine: "B2"}.Key())
}

func TestWriteReadJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "detections.json")

	record := &DetectionRecord{
		ImagePath:        "drawing.png",
		Width:            640,
		Height:           480,
		DisplayThreshold: 0.5,
		Detections: []Detection{
			{Label: "hexagon", Confidence: 0.9, Box: Box{Left: 0.1, Top: 0.2, Width: 0.05, Height: 0.05}},
		},
	}
	record.Summarize()
	require.NoError(t, WriteJSON(path, record))

	var got DetectionRecord
	require.NoError(t, ReadJSON(path, &got))
	assert.Equal(t, *record, got)
}

func TestReadJSONMissingFile(t *testing.T) {
	var got DetectionRecord
	err := ReadJSON(filepath.Join(t.TempDir(), "nope.json"), &got)
	require.Error(t, err)
}

func TestMarkersOnly(t *testing.T) {
	results := []ValidationResult{
		{Index: 1, IsMarker: true},
		{Index: 2, IsMarker: false},
		{Index: 3, IsMarker: true},
	}
	got := MarkersOnly(results)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, 3, got[1].Index)

	assert.Empty(t, MarkersOnly(nil))
}

func TestInstanceReportDegraded(t *testing.T) {
	r := &InstanceReport{}
	assert.False(t, r.Degraded())
	r.SyntheticPlacements = []int{3}
	assert.True(t, r.Degraded())
}
