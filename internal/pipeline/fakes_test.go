package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/jackzampolin/kaidoku/internal/fonts"
	"github.com/jackzampolin/kaidoku/internal/raster"
)

// trackingDoc is an in-memory Document that records how many rendered pages
// are still holding their raster when a new one is rendered.
type trackingDoc struct {
	pages      []raster.PageRef
	png        []byte
	failRender map[int]error

	mu      sync.Mutex
	issued  []*raster.PageImage
	maxLive int
	renders map[int]int
}

func newTrackingDoc(t *testing.T, n int) *trackingDoc {
	t.Helper()
	pages := make([]raster.PageRef, n)
	for i := range pages {
		pages[i] = raster.PageRef{Page: i + 1, Width: 72, Height: 96}
	}
	return &trackingDoc{
		pages:      pages,
		png:        testPNG(t, 300, 400),
		failRender: make(map[int]error),
		renders:    make(map[int]int),
	}
}

func (d *trackingDoc) Pages() []raster.PageRef {
	return d.pages
}

func (d *trackingDoc) Close() error {
	return nil
}

func (d *trackingDoc) Render(ctx context.Context, ref raster.PageRef) (*raster.PageImage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.renders[ref.Page]++
	if err := d.failRender[ref.Page]; err != nil {
		return nil, err
	}

	live := 1
	for _, img := range d.issued {
		if img.PNG != nil {
			live++
		}
	}
	d.maxLive = max(d.maxLive, live)

	img := &raster.PageImage{
		PageRef:     ref,
		PNG:         d.png,
		PixelWidth:  300,
		PixelHeight: 400,
		DPI:         300,
	}
	d.issued = append(d.issued, img)
	return img, nil
}

func (d *trackingDoc) live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, img := range d.issued {
		if img.PNG != nil {
			n++
		}
	}
	return n
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(w/3, h/3, color.Black)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type staticFinder struct {
	font *fonts.Font
	err  error
}

func (s staticFinder) Locate() (*fonts.Font, error) {
	return s.font, s.err
}

func fallbackFonts(t *testing.T) *fonts.Cache {
	t.Helper()
	f, err := fonts.Fallback()
	if err != nil {
		t.Fatalf("Fallback() error = %v", err)
	}
	return fonts.NewCache(staticFinder{font: f})
}

// progressLog collects progress messages.
type progressLog struct {
	mu   sync.Mutex
	msgs []string
}

func (p *progressLog) fn(msg string) {
	p.mu.Lock()
	p.msgs = append(p.msgs, msg)
	p.mu.Unlock()
}

func (p *progressLog) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.msgs...)
}
