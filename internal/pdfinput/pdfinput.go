// Package pdfinput turns PDF drawing sets into pipeline inputs by pulling
// the embedded page images out and re-encoding them as PNG files.
package pdfinput

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/drawscan/hexmark/internal/utils"
)

// PageImage is one extracted page image, ready to feed into the pipeline.
type PageImage struct {
	Page int
	Path string
}

// ExtractPages extracts the embedded images of the given pages from a PDF
// into destDir as PNG files and returns them ordered by page, then by
// position on the page. pages may be empty to mean all pages.
func ExtractPages(pdfPath, destDir string, pages []int) ([]PageImage, error) {
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return nil, fmt.Errorf("create destination dir: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "hexmark-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var pageSelect []string
	for _, p := range pages {
		if p < 1 {
			return nil, fmt.Errorf("invalid page number %d", p)
		}
		pageSelect = append(pageSelect, strconv.Itoa(p))
	}

	if err := api.ExtractImagesFile(pdfPath, tempDir, pageSelect, nil); err != nil {
		return nil, fmt.Errorf("extract images from %s: %w", pdfPath, err)
	}

	return collectPages(tempDir, destDir)
}

// collectPages re-encodes every extracted page image as PNG in destDir.
// pdfcpu names its output page_<num>_image_<idx>.<ext>; files that do not
// match or cannot be decoded are skipped.
func collectPages(tempDir, destDir string) ([]PageImage, error) {
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return nil, fmt.Errorf("scan extracted images: %w", err)
	}

	var out []PageImage
	counts := make(map[int]int)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		page, err := pageFromFilename(name)
		if err != nil {
			continue
		}
		img, _, err := utils.LoadImage(filepath.Join(tempDir, name))
		if err != nil {
			continue
		}

		counts[page]++
		outName := fmt.Sprintf("page_%03d_img_%02d.png", page, counts[page])
		outPath := filepath.Join(destDir, outName)
		if err := utils.SavePNG(outPath, img); err != nil {
			return nil, err
		}
		out = append(out, PageImage{Page: page, Path: outPath})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Page != out[j].Page {
			return out[i].Page < out[j].Page
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

func pageFromFilename(name string) (int, error) {
	if !strings.HasPrefix(name, "page_") {
		return 0, errors.New("not a page file")
	}
	parts := strings.Split(name, "_")
	if len(parts) < 2 {
		return 0, errors.New("unexpected file name")
	}
	page, err := strconv.Atoi(parts[1])
	if err != nil || page < 1 {
		return 0, errors.New("invalid page number")
	}
	return page, nil
}
