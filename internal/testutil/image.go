// Package testutil provides synthetic drawing images and related helpers
// for tests.
package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/drawscan/hexmark/internal/marker"
)

// DrawingConfig describes a synthetic drawing with marker-like symbols at
// given normalized positions.
type DrawingConfig struct {
	Width      int
	Height     int
	Background color.Color
	Markers    []MarkerSpec
}

// MarkerSpec places one synthetic marker symbol on the drawing.
type MarkerSpec struct {
	Box       marker.Box
	UpperLine string
	LowerLine string
}

// DefaultDrawingConfig returns a plain white 640x480 drawing.
func DefaultDrawingConfig() DrawingConfig {
	return DrawingConfig{
		Width:      640,
		Height:     480,
		Background: color.White,
	}
}

// GenerateDrawing renders a synthetic drawing: a background with an outlined
// box and two text lines for every marker spec. The shapes only need to be
// plausible crop targets, not real hexagons.
func GenerateDrawing(config DrawingConfig) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, config.Width, config.Height))
	bg := config.Background
	if bg == nil {
		bg = color.White
	}
	draw.Draw(img, img.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)

	black := color.RGBA{A: 255}
	for _, m := range config.Markers {
		rect := m.Box.ToPixels(config.Width, config.Height)
		drawOutline(img, rect, black)
		drawText(img, rect.Min.X+4, rect.Min.Y+14, m.UpperLine, black)
		drawText(img, rect.Min.X+4, rect.Min.Y+28, m.LowerLine, black)
	}
	return img
}

func drawOutline(img *image.RGBA, rect image.Rectangle, col color.Color) {
	rect = rect.Intersect(img.Bounds())
	for x := rect.Min.X; x < rect.Max.X; x++ {
		img.Set(x, rect.Min.Y, col)
		img.Set(x, rect.Max.Y-1, col)
	}
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		img.Set(rect.Min.X, y, col)
		img.Set(rect.Max.X-1, y, col)
	}
}

func drawText(img *image.RGBA, x, y int, text string, col color.Color) {
	if text == "" {
		return
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{col},
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// WriteDrawing renders the config and writes it as PNG into dir, returning
// the file path.
func WriteDrawing(t *testing.T, dir, name string, config DrawingConfig) string {
	t.Helper()
	img := GenerateDrawing(config)
	path := filepath.Join(dir, name)
	f, err := os.Create(path) //nolint:gosec // G304: test-owned temp path
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()
	require.NoError(t, png.Encode(f, img))
	return path
}

// Detections builds one detection per marker spec with the given confidence,
// preserving spec order.
func Detections(config DrawingConfig, confidence float64) []marker.Detection {
	out := make([]marker.Detection, 0, len(config.Markers))
	for _, m := range config.Markers {
		out = append(out, marker.Detection{
			Label:      "hexagon",
			Confidence: confidence,
			Box:        m.Box,
		})
	}
	return out
}
