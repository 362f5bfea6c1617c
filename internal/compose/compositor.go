package compose

import (
	"errors"
	"log/slog"

	"github.com/jackzampolin/kaidoku/internal/coords"
	"github.com/jackzampolin/kaidoku/internal/fonts"
	"github.com/jackzampolin/kaidoku/internal/ocr"
	"github.com/jackzampolin/kaidoku/internal/raster"
)

// ErrFontUnavailable marks a page composed without its text layer.
var ErrFontUnavailable = errors.New("no font for text layer")

// DefaultPageSize is used when a page reports no usable size (A4, points).
var DefaultPageSize = [2]float64{595, 842}

// Stats describes what the compositor did with one page.
type Stats struct {
	Placed    int // tokens placed on the page
	Uncovered int // placed tokens with runes missing from the font
	Collapsed int // placed tokens whose box clamped to zero width
}

// Compositor turns a page raster and its filtered tokens into a Page.
type Compositor struct {
	fonts  *fonts.Cache
	logger *slog.Logger
}

// NewCompositor creates a compositor that resolves its font through cache.
// A nil cache composes every page image-only.
func NewCompositor(cache *fonts.Cache, logger *slog.Logger) *Compositor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compositor{
		fonts:  cache,
		logger: logger.With("component", "compositor"),
	}
}

// Compose maps tokens into page space. When no font can be found the page
// keeps its image and the returned error wraps ErrFontUnavailable; the Page
// is still usable.
func (c *Compositor) Compose(img *raster.PageImage, tokens []ocr.WordToken) (Page, Stats, error) {
	page := Page{
		Index:  img.Page,
		Width:  img.Width,
		Height: img.Height,
		Image:  img.PNG,
	}
	if page.Width <= 0 || page.Height <= 0 {
		page.Width, page.Height = DefaultPageSize[0], DefaultPageSize[1]
	}

	var stats Stats
	if len(tokens) == 0 {
		return page, stats, nil
	}

	font, err := c.font()
	if err != nil {
		c.logger.Warn("page has no text layer", "page", img.Page, "tokens", len(tokens), "error", err)
		return page, stats, err
	}

	m := coords.Mapper{DPI: img.DPI, PageWidth: page.Width, PageHeight: page.Height}
	placed := make([]coords.Placed, 0, len(tokens))
	for _, tok := range tokens {
		p := m.Place(tok.Text, tok.BBox)
		if p.Width <= 0 {
			stats.Collapsed++
		}
		if !font.CoversAll(p.Text) {
			stats.Uncovered++
		}
		placed = append(placed, p)
	}
	stats.Placed = len(placed)

	if stats.Uncovered > 0 {
		c.logger.Debug("font lacks glyphs for some words", "page", img.Page, "words", stats.Uncovered, "font", font.Name)
	}
	if stats.Collapsed > 0 {
		c.logger.Debug("words placed at natural width", "page", img.Page, "words", stats.Collapsed)
	}

	page.Tokens = placed
	page.Font = font
	return page, stats, nil
}

// Blank returns an empty page the size of ref.
func (c *Compositor) Blank(ref raster.PageRef) Page {
	p := Page{Index: ref.Page, Width: ref.Width, Height: ref.Height}
	if p.Width <= 0 || p.Height <= 0 {
		p.Width, p.Height = DefaultPageSize[0], DefaultPageSize[1]
	}
	return p
}

func (c *Compositor) font() (*fonts.Font, error) {
	if c.fonts == nil {
		return nil, ErrFontUnavailable
	}
	f, err := c.fonts.Get()
	if err != nil {
		return nil, errors.Join(ErrFontUnavailable, err)
	}
	return f, nil
}
