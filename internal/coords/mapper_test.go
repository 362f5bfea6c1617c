package coords

import (
	"image"
	"math"
	"testing"
)

const eps = 1e-9

func near(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func TestMapper_Place(t *testing.T) {
	letter := Mapper{DPI: 300, PageWidth: 612, PageHeight: 792}

	t.Run("maps pixel box at 300 dpi", func(t *testing.T) {
		p := letter.Place("word", image.Rect(100, 100, 200, 120))

		if !near(p.X, 24) || !near(p.Y, 24) {
			t.Errorf("origin = (%v,%v), want (24,24)", p.X, p.Y)
		}
		if !near(p.X+p.Width, 48) || !near(p.Y+p.Height, 28.8) {
			t.Errorf("far corner = (%v,%v), want (48,28.8)", p.X+p.Width, p.Y+p.Height)
		}
		if !near(p.Baseline, 28.8) {
			t.Errorf("baseline = %v, want 28.8", p.Baseline)
		}
		if !near(p.FontSize, 4.8*FontSizeRatio) {
			t.Errorf("font size = %v, want %v", p.FontSize, 4.8*FontSizeRatio)
		}
		if p.Text != "word" {
			t.Errorf("text = %q", p.Text)
		}
	})

	t.Run("floors font size", func(t *testing.T) {
		p := letter.Place("i", image.Rect(10, 10, 12, 11))
		if p.FontSize != MinFontSize {
			t.Errorf("font size = %v, want %v", p.FontSize, MinFontSize)
		}
	})

	t.Run("clamps to page box", func(t *testing.T) {
		p := letter.Place("edge", image.Rect(2500, 3250, 2700, 3400))
		if p.X+p.Width > 612+eps {
			t.Errorf("right edge %v beyond page width", p.X+p.Width)
		}
		if p.Baseline > 792+eps {
			t.Errorf("baseline %v beyond page height", p.Baseline)
		}
	})

	t.Run("canonicalizes inverted boxes", func(t *testing.T) {
		p := letter.Place("x", image.Rectangle{Min: image.Pt(200, 120), Max: image.Pt(100, 100)})
		if !near(p.X, 24) || p.Width <= 0 {
			t.Errorf("got X=%v Width=%v", p.X, p.Width)
		}
	})

	t.Run("preserves order along a line", func(t *testing.T) {
		xs := []int{10, 80, 150, 400}
		prev := -1.0
		for _, x := range xs {
			p := letter.Place("w", image.Rect(x, 50, x+40, 70))
			if p.X <= prev {
				t.Fatalf("x=%d mapped to %v, not after %v", x, p.X, prev)
			}
			prev = p.X
		}
	})
}

func TestConversions(t *testing.T) {
	tests := []struct {
		name string
		px   int
		dpi  float64
		pt   float64
	}{
		{"letter width at 300", 2550, 300, 612},
		{"a4 height at 150", 1754, 150, 841.92},
		{"identity at 72", 100, 72, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PixelsToPoints(tt.px, tt.dpi); math.Abs(got-tt.pt) > 1e-6 {
				t.Errorf("PixelsToPoints(%d, %v) = %v, want %v", tt.px, tt.dpi, got, tt.pt)
			}
			if got := PointsToPixels(tt.pt, tt.dpi); got != tt.px {
				t.Errorf("PointsToPixels(%v, %v) = %d, want %d", tt.pt, tt.dpi, got, tt.px)
			}
		})
	}
}
