// Package compose lays recognized text over page rasters and writes the
// searchable PDF.
package compose

import (
	"github.com/jackzampolin/kaidoku/internal/coords"
	"github.com/jackzampolin/kaidoku/internal/fonts"
)

// Page is one composed output page. Width and Height are in points.
type Page struct {
	Index  int // 1-indexed source page
	Width  float64
	Height float64

	// Image is the PNG raster drawn full-page. Nil for a blank page.
	Image []byte

	// Tokens are drawn invisibly with Font. Ignored when Font is nil.
	Tokens []coords.Placed
	Font   *fonts.Font
}

// HasText reports whether the page will carry a text layer.
func (p Page) HasText() bool {
	return p.Font != nil && len(p.Tokens) > 0
}

// Assembler appends composed pages in the order given and writes the
// document on Close.
type Assembler interface {
	AddPage(p Page) error

	// Close writes the document and returns the number of pages written.
	Close() (int, error)
}
