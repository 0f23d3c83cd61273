package utils

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
)

// ImageError represents errors that occur while reading, writing or
// transforming images.
type ImageError struct {
	Operation string
	Err       error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("image %s: %v", e.Operation, e.Err)
}

func (e *ImageError) Unwrap() error { return e.Err }

// FlattenToRGB copies img onto an opaque white background, producing a
// 3-channel image regardless of alpha-channel input.
func FlattenToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// SaveJPEG writes img to path as a maximum-quality JPEG. Alpha is flattened
// first since JPEG has no alpha channel.
func SaveJPEG(path string, img image.Image) error {
	f, err := os.Create(path) //nolint:gosec // G304: session-scoped output path
	if err != nil {
		return &ImageError{Operation: "save", Err: err}
	}
	defer func() { _ = f.Close() }()
	if err := jpeg.Encode(f, FlattenToRGB(img), &jpeg.Options{Quality: 100}); err != nil {
		return &ImageError{Operation: "encode", Err: err}
	}
	return nil
}

// SavePNG writes img to path as a PNG.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path) //nolint:gosec // G304: session-scoped output path
	if err != nil {
		return &ImageError{Operation: "save", Err: err}
	}
	defer func() { _ = f.Close() }()
	if err := png.Encode(f, img); err != nil {
		return &ImageError{Operation: "encode", Err: err}
	}
	return nil
}
