package compose

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackzampolin/kaidoku/internal/coords"
	"github.com/jackzampolin/kaidoku/internal/fonts"
	"github.com/jackzampolin/kaidoku/internal/ocr"
	"github.com/jackzampolin/kaidoku/internal/raster"
)

type staticFinder struct {
	font *fonts.Font
	err  error
}

func (s staticFinder) Locate() (*fonts.Font, error) {
	return s.font, s.err
}

func fallbackCache(t *testing.T) *fonts.Cache {
	t.Helper()
	f, err := fonts.Fallback()
	if err != nil {
		t.Fatalf("Fallback() error = %v", err)
	}
	return fonts.NewCache(staticFinder{font: f})
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(w/2, h/2, color.Black)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func pageImage(t *testing.T, page int) *raster.PageImage {
	return &raster.PageImage{
		PageRef:     raster.PageRef{Page: page, Width: 72, Height: 96},
		PNG:         pngBytes(t, 300, 400),
		PixelWidth:  300,
		PixelHeight: 400,
		DPI:         300,
	}
}

func TestCompositor(t *testing.T) {
	tokens := []ocr.WordToken{
		{Text: "hello", BBox: image.Rect(100, 100, 200, 120), Confidence: 90},
		{Text: "world", BBox: image.Rect(210, 100, 290, 120), Confidence: 90},
	}

	t.Run("maps tokens to points", func(t *testing.T) {
		c := NewCompositor(fallbackCache(t), nil)
		page, stats, err := c.Compose(pageImage(t, 3), tokens)
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}
		if page.Index != 3 || page.Width != 72 || page.Height != 96 {
			t.Errorf("page = %d %vx%v", page.Index, page.Width, page.Height)
		}
		if !page.HasText() || stats.Placed != 2 {
			t.Fatalf("expected 2 placed tokens, got %d", stats.Placed)
		}
		first := page.Tokens[0]
		want := coords.Placed{Text: "hello", X: 24, Y: 24, Width: 24, Height: 4.8}
		if first.Text != want.Text || math.Abs(first.X-want.X) > 1e-9 || math.Abs(first.Y-want.Y) > 1e-9 ||
			math.Abs(first.Width-want.Width) > 1e-9 || math.Abs(first.Height-want.Height) > 1e-9 {
			t.Errorf("first token = %+v", first)
		}
	})

	t.Run("counts uncovered runes", func(t *testing.T) {
		c := NewCompositor(fallbackCache(t), nil)
		_, stats, err := c.Compose(pageImage(t, 1), []ocr.WordToken{
			{Text: "漢字", BBox: image.Rect(0, 0, 50, 20), Confidence: 99},
		})
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}
		if stats.Placed != 1 || stats.Uncovered != 1 {
			t.Errorf("stats = %+v, want 1 placed and 1 uncovered", stats)
		}
	})

	t.Run("box outside the page still yields a token", func(t *testing.T) {
		c := NewCompositor(fallbackCache(t), nil)
		page, stats, err := c.Compose(pageImage(t, 1), []ocr.WordToken{
			{Text: "edge", BBox: image.Rect(400, 100, 450, 120), Confidence: 90},
			{Text: "hello", BBox: image.Rect(100, 100, 200, 120), Confidence: 90},
		})
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}
		if stats.Placed != 2 || stats.Collapsed != 1 {
			t.Errorf("stats = %+v, want 2 placed and 1 collapsed", stats)
		}
		if len(page.Tokens) != 2 || page.Tokens[0].Width != 0 || page.Tokens[0].X != 72 {
			t.Errorf("tokens = %+v", page.Tokens)
		}
	})

	t.Run("missing font keeps image only", func(t *testing.T) {
		c := NewCompositor(fonts.NewCache(staticFinder{err: fonts.ErrNoFont}), nil)
		page, _, err := c.Compose(pageImage(t, 1), tokens)
		if !errors.Is(err, ErrFontUnavailable) {
			t.Fatalf("expected ErrFontUnavailable, got %v", err)
		}
		if !errors.Is(err, fonts.ErrNoFont) {
			t.Errorf("expected wrapped ErrNoFont, got %v", err)
		}
		if page.HasText() || len(page.Image) == 0 {
			t.Errorf("page should keep its image and drop text")
		}
	})

	t.Run("no tokens needs no font", func(t *testing.T) {
		c := NewCompositor(nil, nil)
		page, _, err := c.Compose(pageImage(t, 1), nil)
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}
		if page.HasText() {
			t.Error("unexpected text layer")
		}
	})

	t.Run("blank page keeps size", func(t *testing.T) {
		c := NewCompositor(nil, nil)
		p := c.Blank(raster.PageRef{Page: 2, Width: 612, Height: 792})
		if p.Index != 2 || p.Width != 612 || p.Height != 792 || p.Image != nil {
			t.Errorf("blank = %+v", p)
		}
		p = c.Blank(raster.PageRef{Page: 2})
		if p.Width != DefaultPageSize[0] || p.Height != DefaultPageSize[1] {
			t.Errorf("sizeless blank = %vx%v", p.Width, p.Height)
		}
	})
}

func TestPDFAssembler(t *testing.T) {
	t.Run("writes pages with text", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "out.pdf")
		c := NewCompositor(fallbackCache(t), nil)
		a := NewPDFAssembler(out, PDFOptions{Validate: true})

		for i := 1; i <= 3; i++ {
			page, _, err := c.Compose(pageImage(t, i), []ocr.WordToken{
				{Text: "text", BBox: image.Rect(100, 100, 200, 120), Confidence: 90},
			})
			if err != nil {
				t.Fatalf("Compose() error = %v", err)
			}
			if i == 2 {
				page = c.Blank(raster.PageRef{Page: 2, Width: 72, Height: 96})
			}
			if err := a.AddPage(page); err != nil {
				t.Fatalf("AddPage(%d) error = %v", i, err)
			}
		}

		if _, err := os.Stat(out); !os.IsNotExist(err) {
			t.Fatalf("output should not exist before Close")
		}

		n, err := a.Close()
		if err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if n != 3 {
			t.Errorf("Close() = %d pages, want 3", n)
		}

		count, err := PageCount(out)
		if err != nil {
			t.Fatalf("PageCount() error = %v", err)
		}
		if count != 3 {
			t.Errorf("PageCount() = %d, want 3", count)
		}

		data, _ := os.ReadFile(out)
		if !bytes.Contains(data, []byte("/OCProperties")) {
			t.Error("expected optional content in output")
		}
		if !bytes.Contains(data, utf16BE(TextLayerName)) {
			t.Error("expected text layer name in output")
		}
	})

	t.Run("zero pages writes a valid empty document", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "empty.pdf")
		a := NewPDFAssembler(out, PDFOptions{})
		n, err := a.Close()
		if err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if n != 0 {
			t.Errorf("Close() = %d, want 0", n)
		}
		count, err := PageCount(out)
		if err != nil {
			t.Fatalf("PageCount() error = %v", err)
		}
		if count != 0 {
			t.Errorf("PageCount() = %d, want 0", count)
		}
	})

	t.Run("rejects pages after close", func(t *testing.T) {
		a := NewPDFAssembler(filepath.Join(t.TempDir(), "x.pdf"), PDFOptions{})
		a.Close()
		if err := a.AddPage(Page{Index: 1, Width: 10, Height: 10}); err == nil {
			t.Error("expected error after Close")
		}
	})

	t.Run("bad image fails and writes nothing", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "bad.pdf")
		a := NewPDFAssembler(out, PDFOptions{})
		err := a.AddPage(Page{Index: 1, Width: 72, Height: 72, Image: []byte("not a png")})
		if err == nil {
			t.Fatal("expected error for corrupt image")
		}
		if _, err := a.Close(); err == nil {
			t.Error("expected Close to report the sticky error")
		}
		if _, err := os.Stat(out); !os.IsNotExist(err) {
			t.Error("no output should be written")
		}
	})

	t.Run("failure after good pages writes nothing", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "partial.pdf")
		a := NewPDFAssembler(out, PDFOptions{})
		if err := a.AddPage(Page{Index: 1, Width: 72, Height: 96, Image: pngBytes(t, 30, 40)}); err != nil {
			t.Fatalf("AddPage(1) error = %v", err)
		}
		if err := a.AddPage(Page{Index: 2, Width: 72, Height: 96, Image: []byte("not a png")}); err == nil {
			t.Fatal("expected error for corrupt image")
		}
		if err := a.AddPage(Page{Index: 3, Width: 72, Height: 96}); err == nil {
			t.Error("AddPage after a failure should keep failing")
		}
		n, err := a.Close()
		if err == nil {
			t.Fatal("expected Close to report the earlier failure")
		}
		if n != 0 {
			t.Errorf("Close() = %d pages, want 0", n)
		}
		if _, err := os.Stat(out); !os.IsNotExist(err) {
			t.Error("no output should be written")
		}
	})

	t.Run("zero width token is drawn", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "edge.pdf")
		c := NewCompositor(fallbackCache(t), nil)
		page, _, err := c.Compose(pageImage(t, 1), []ocr.WordToken{
			{Text: "edge", BBox: image.Rect(400, 100, 450, 120), Confidence: 90},
		})
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}
		a := NewPDFAssembler(out, PDFOptions{Validate: true})
		if err := a.AddPage(page); err != nil {
			t.Fatalf("AddPage() error = %v", err)
		}
		if _, err := a.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	})
}

// utf16BE encodes s the way fpdf writes text strings in document objects.
func utf16BE(s string) []byte {
	b := []byte{0xfe, 0xff}
	for _, r := range s {
		b = append(b, byte(r>>8), byte(r))
	}
	return b
}

func TestRecordingAssembler(t *testing.T) {
	r := NewRecordingAssembler()
	r.AddPage(Page{Index: 1, Image: []byte{1, 2, 3}})
	r.AddPage(Page{Index: 2})
	n, _ := r.Close()
	if n != 2 || !r.Closed() {
		t.Fatalf("Close() = %d, closed=%v", n, r.Closed())
	}
	pages := r.Pages()
	if pages[0].Image == nil || len(pages[0].Image) != 0 {
		t.Error("image presence should be kept without bytes")
	}
	if pages[1].Image != nil {
		t.Error("blank page should stay blank")
	}
	if err := r.AddPage(Page{Index: 3}); err == nil {
		t.Error("expected error after Close")
	}
}
