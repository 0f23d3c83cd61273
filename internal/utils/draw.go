package utils

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ToRGBA returns an RGBA copy of img with bounds anchored at the origin.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// DrawRect draws an axis-aligned rectangle outline into dst.
func DrawRect(dst *image.RGBA, rect image.Rectangle, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	rect = rect.Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	// Top and bottom edges
	for t := range thickness {
		yTop := rect.Min.Y + t
		yBot := rect.Max.Y - 1 - t
		for x := rect.Min.X; x < rect.Max.X; x++ {
			dst.Set(x, yTop, col)
			dst.Set(x, yBot, col)
		}
	}
	// Left and right edges
	for t := range thickness {
		xLeft := rect.Min.X + t
		xRight := rect.Max.X - 1 - t
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			dst.Set(xLeft, y, col)
			dst.Set(xRight, y, col)
		}
	}
}

// FillRect fills a rectangle in dst with the given color.
func FillRect(dst *image.RGBA, rect image.Rectangle, col color.Color) {
	rect = rect.Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	draw.Draw(dst, rect, &image.Uniform{col}, image.Point{}, draw.Src)
}

// LabelFace is the fixed-width face used for overlay labels.
var LabelFace = basicfont.Face7x13

// MeasureLabel returns the pixel width and height of text rendered with
// LabelFace.
func MeasureLabel(text string) (int, int) {
	w := font.MeasureString(LabelFace, text).Ceil()
	h := LabelFace.Metrics().Height.Ceil()
	return w, h
}

// DrawLabel renders text with a filled background box whose top-left corner
// is at (x, y). The label is clamped into the image when it would run off
// the top edge.
func DrawLabel(dst *image.RGBA, x, y int, text string, fg, bg color.Color) {
	w, h := MeasureLabel(text)
	if y < dst.Bounds().Min.Y {
		y = dst.Bounds().Min.Y
	}
	FillRect(dst, image.Rect(x, y, x+w+4, y+h+2), bg)
	d := &font.Drawer{
		Dst:  dst,
		Src:  &image.Uniform{fg},
		Face: LabelFace,
		Dot:  fixed.P(x+2, y+LabelFace.Metrics().Ascent.Ceil()+1),
	}
	d.DrawString(text)
}

// ClampRect clamps rect to the given image bounds.
func ClampRect(rect, bounds image.Rectangle) image.Rectangle {
	return rect.Intersect(bounds)
}
