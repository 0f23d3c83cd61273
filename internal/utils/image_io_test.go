package utils

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()
	require.NoError(t, png.Encode(f, img))
}

func TestIsSupportedImage(t *testing.T) {
	assert.True(t, IsSupportedImage("a.png"))
	assert.True(t, IsSupportedImage("a.JPG"))
	assert.True(t, IsSupportedImage("dir/b.tiff"))
	assert.False(t, IsSupportedImage("a.pdf"))
	assert.False(t, IsSupportedImage("a"))
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.png")
	writeTestPNG(t, path, 120, 80)

	img, meta, err := LoadImage(path)
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Equal(t, "png", meta.Format)
	assert.Equal(t, 120, meta.Width)
	assert.Equal(t, 80, meta.Height)
	assert.Positive(t, meta.SizeBytes)
}

func TestLoadImageErrors(t *testing.T) {
	_, _, err := LoadImage("")
	require.Error(t, err)
	var imgErr *ImageError
	require.True(t, errors.As(err, &imgErr))

	_, _, err = LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)

	_, _, err = LoadImage("file.txt")
	require.Error(t, err)
}

func TestFindImages(t *testing.T) {
	dir := t.TempDir()
	writeTestPNG(t, filepath.Join(dir, "b.png"), 4, 4)
	writeTestPNG(t, filepath.Join(dir, "a.png"), 4, 4)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o750))

	paths, err := FindImages(dir)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "a.png"), paths[0])
	assert.Equal(t, filepath.Join(dir, "b.png"), paths[1])
}

func TestFlattenToRGB(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	// Fully transparent pixel should come out white
	flat := FlattenToRGB(img)
	r, g, b, a := flat.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0xffff), b)
	assert.Equal(t, uint32(0xffff), a)
}

func TestSaveJPEGAndPNG(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))

	jpgPath := filepath.Join(dir, "out.jpg")
	require.NoError(t, SaveJPEG(jpgPath, img))
	_, err := os.Stat(jpgPath)
	require.NoError(t, err)

	pngPath := filepath.Join(dir, "out.png")
	require.NoError(t, SavePNG(pngPath, img))
	loaded, meta, err := LoadImage(pngPath)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 8, meta.Width)
}

func TestDrawRect(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	red := color.RGBA{R: 255, A: 255}
	DrawRect(img, image.Rect(5, 5, 15, 15), red, 2)

	// Edge pixels painted, interior untouched
	assert.Equal(t, red, img.RGBAAt(5, 5))
	assert.Equal(t, red, img.RGBAAt(14, 14))
	assert.Equal(t, red, img.RGBAAt(6, 6))
	assert.NotEqual(t, red, img.RGBAAt(10, 10))
}

func TestDrawLabelStaysInBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 40))
	fg := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	bg := color.RGBA{G: 200, A: 255}

	// Negative y is clamped to the top edge, background box is filled
	DrawLabel(img, 2, -10, "#1 (A1/B2)", fg, bg)
	assert.Equal(t, bg, img.RGBAAt(3, 0))
}

func TestMeasureLabel(t *testing.T) {
	w, h := MeasureLabel("abc")
	assert.Equal(t, 3*7, w)
	assert.Equal(t, 13, h)
}
