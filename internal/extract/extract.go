// Package extract cuts the high-confidence detections out of the source
// image as padded PNG crops and records them in an artifact manifest.
package extract

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/drawscan/hexmark/internal/marker"
	"github.com/drawscan/hexmark/internal/utils"
)

// Options controls crop extraction.
type Options struct {
	// Threshold is the minimum confidence for a detection to be extracted.
	Threshold float64
	// Padding is the per-side padding ratio relative to the box size.
	Padding float64
}

// DefaultOptions returns the standard extraction settings.
func DefaultOptions() Options {
	return Options{Threshold: 0.70, Padding: 0.10}
}

// ArtifactFileName builds the crop file name for a sequence index and
// confidence, e.g. "hexagon_001_conf_92%.png".
func ArtifactFileName(index int, confidence float64) string {
	return fmt.Sprintf("hexagon_%03d_conf_%d%%.png", index, int(confidence*100+0.5))
}

// CropRect computes the padded pixel rectangle for a normalized box on an
// image of the given dimensions. Pixel coordinates and padding are truncated
// and the result is clamped to the image bounds.
func CropRect(box marker.Box, width, height int, padding float64) image.Rectangle {
	r := box.ToPixels(width, height)
	padX := int(float64(r.Dx()) * padding)
	padY := int(float64(r.Dy()) * padding)

	left := r.Min.X - padX
	top := r.Min.Y - padY
	right := r.Max.X + padX
	bottom := r.Max.Y + padY

	if left < 0 {
		left = 0
	}
	if top < 0 {
		top = 0
	}
	if right > width {
		right = width
	}
	if bottom > height {
		bottom = height
	}
	return image.Rect(left, top, right, bottom)
}

// Extract crops every detection at or above the threshold from img, writes
// the crops as PNG files into outDir and returns the manifest. Sequence
// indices are 1-based and contiguous in detection order; the source box of
// each crop is persisted so later stages can find it again without
// re-deriving the filtering rule.
func Extract(img image.Image, record *marker.DetectionRecord, outDir string, opts Options) (*marker.ArtifactManifest, error) {
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	survivors := record.Survivors(opts.Threshold)
	manifest := &marker.ArtifactManifest{
		ImagePath:           record.ImagePath,
		ExtractionThreshold: opts.Threshold,
		Artifacts:           make([]marker.Artifact, 0, len(survivors)),
	}

	for i, d := range survivors {
		index := i + 1
		rect := CropRect(d.Box, width, height, opts.Padding)
		if rect.Empty() {
			return nil, fmt.Errorf("detection %d has an empty crop region %v", index, rect)
		}

		crop := imaging.Crop(img, rect)
		name := ArtifactFileName(index, d.Confidence)
		if err := utils.SavePNG(filepath.Join(outDir, name), crop); err != nil {
			return nil, fmt.Errorf("save artifact %d: %w", index, err)
		}

		manifest.Artifacts = append(manifest.Artifacts, marker.Artifact{
			Index:      index,
			Label:      d.Label,
			Confidence: d.Confidence,
			Box:        d.Box,
			File:       name,
			Padding:    opts.Padding,
		})
	}

	return manifest, nil
}
