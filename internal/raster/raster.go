// Package raster turns source documents into per-page PNG rasters.
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultDPI is the render resolution for OCR.
	DefaultDPI = 300

	// DefaultMaxPixels caps a single page raster (width * height).
	DefaultMaxPixels = 200_000_000
)

var (
	// ErrUnreadableDocument is returned when a source cannot be opened or
	// parsed. Fatal.
	ErrUnreadableDocument = errors.New("unreadable document")

	// ErrRasterizerNotFound means the external page renderer is missing.
	// Fatal.
	ErrRasterizerNotFound = errors.New("page rasterizer not found")

	// ErrRender wraps a failed rasterization of one page.
	ErrRender = errors.New("page render failed")

	// ErrImageTooLarge rejects a page whose raster would exceed the pixel
	// ceiling.
	ErrImageTooLarge = errors.New("image exceeds pixel limit")
)

// PageRef describes a page without holding its raster.
// Width and Height are in points.
type PageRef struct {
	Page   int // 1-indexed
	Width  float64
	Height float64
}

// PageImage is a rendered page. It belongs to the chunk that produced it.
type PageImage struct {
	PageRef

	PNG         []byte
	PixelWidth  int
	PixelHeight int
	DPI         float64
}

// Release drops the raster bytes.
func (p *PageImage) Release() {
	p.PNG = nil
}

// Pixels returns the pixel count of the raster.
func (p *PageImage) Pixels() int {
	return p.PixelWidth * p.PixelHeight
}

// Document is a paged source that renders on demand.
type Document interface {
	// Pages lists every page in document order.
	Pages() []PageRef

	// Render rasterizes one page. Safe for concurrent use.
	Render(ctx context.Context, ref PageRef) (*PageImage, error)

	// Close releases resources held by the document.
	Close() error
}

// CheckPixels returns ErrImageTooLarge when w*h exceeds limit. A
// non-positive limit falls back to DefaultMaxPixels.
func CheckPixels(w, h, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if w <= 0 || h <= 0 {
		return nil
	}
	if int64(w)*int64(h) > int64(limit) {
		return fmt.Errorf("%w: %dx%d > %d", ErrImageTooLarge, w, h, limit)
	}
	return nil
}

// pngSize reads only the header of an encoded image.
func pngSize(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
