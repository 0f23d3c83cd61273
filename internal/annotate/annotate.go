// Package annotate renders the detection overlay: the source image is
// upscaled and enhanced for legibility, then every visible detection is
// framed in a confidence-tier color.
package annotate

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/drawscan/hexmark/internal/marker"
	"github.com/drawscan/hexmark/internal/utils"
)

// Tier colors. High-confidence candidates (extraction tier) are green,
// the rest red.
var (
	HighConfidenceColor = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	LowConfidenceColor  = color.RGBA{R: 220, G: 0, B: 0, A: 255}
	labelTextColor      = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Options controls the overlay rendering.
type Options struct {
	// Upscale is the resize factor applied before drawing. Must be >= 1.
	Upscale float64
	// ExtractionThreshold separates the green tier from the red tier.
	ExtractionThreshold float64
	// Enhance applies the sharpen/contrast/brightness chain after
	// upscaling. Disabled it leaves the pixels untouched apart from the
	// resize, which helps when the source is already crisp.
	Enhance bool
}

// DefaultOptions returns the standard overlay settings.
func DefaultOptions() Options {
	return Options{Upscale: 4.0, ExtractionThreshold: 0.70, Enhance: true}
}

// LineWidth returns the outline thickness for the given upscale factor.
func LineWidth(upscale float64) int {
	w := int(3 * upscale)
	if w < 3 {
		w = 3
	}
	return w
}

// Upscale resizes img with Lanczos resampling. Factors of 1.0 or below
// return an untouched copy.
func Upscale(img image.Image, factor float64) *image.NRGBA {
	if factor <= 1.0 {
		return imaging.Clone(img)
	}
	b := img.Bounds()
	w := int(float64(b.Dx()) * factor)
	h := int(float64(b.Dy()) * factor)
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// Enhance upscales img and applies the sharpening, contrast and brightness
// adjustments that make small printed text legible to the downstream vision
// provider.
func Enhance(img image.Image, upscale float64) *image.NRGBA {
	out := Upscale(img, upscale)
	out = imaging.Sharpen(out, 1.0)
	out = imaging.AdjustContrast(out, 50)
	out = imaging.AdjustBrightness(out, 10)
	return out
}

// Render draws the visible detections onto an upscaled, optionally enhanced
// copy of img and returns the annotated image. Detections keep provider
// order; the caller is expected to have filtered them to the display
// threshold already.
func Render(img image.Image, detections []marker.Detection, opts Options) *image.RGBA {
	if opts.Upscale < 1.0 {
		opts.Upscale = 1.0
	}

	var canvas *image.NRGBA
	if opts.Enhance {
		canvas = Enhance(img, opts.Upscale)
	} else {
		canvas = Upscale(img, opts.Upscale)
	}
	dst := utils.ToRGBA(canvas)
	width := dst.Bounds().Dx()
	height := dst.Bounds().Dy()
	lineWidth := LineWidth(opts.Upscale)

	for i, d := range detections {
		col := LowConfidenceColor
		if d.Confidence >= opts.ExtractionThreshold {
			col = HighConfidenceColor
		}
		rect := d.Box.ToPixels(width, height)
		utils.DrawRect(dst, rect, col, lineWidth)

		label := fmt.Sprintf("%d: %s %d%%", i+1, d.Label, int(d.Confidence*100+0.5))
		_, lh := utils.MeasureLabel(label)
		y := rect.Min.Y - lh - 2
		utils.DrawLabel(dst, rect.Min.X, y, label, labelTextColor, col)
	}

	return dst
}
