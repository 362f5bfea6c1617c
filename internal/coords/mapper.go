// Package coords converts OCR pixel boxes into page-point placements.
package coords

import "image"

const (
	// PointsPerInch is the PDF user-space unit.
	PointsPerInch = 72.0

	// MinFontSize keeps invisible glyphs from collapsing to zero size,
	// which some viewers refuse to select.
	MinFontSize = 1.0

	// FontSizeRatio relates box height to font size. Glyph boxes from OCR are
	// tighter than the font's em box, so the full height would overshoot.
	FontSizeRatio = 0.8
)

// Placed is a recognized word positioned in page space.
// Coordinates are points with the origin at the top-left corner of the page.
type Placed struct {
	Text     string
	X        float64
	Y        float64
	Width    float64
	Height   float64
	FontSize float64
	// Baseline is where the glyph origin sits (Y + Height).
	Baseline float64
}

// Mapper converts pixel boxes from a raster rendered at DPI into points on a
// page of PageWidth x PageHeight points.
type Mapper struct {
	DPI        float64
	PageWidth  float64
	PageHeight float64
}

// Scale returns the pixel-to-point factor.
func (m Mapper) Scale() float64 {
	if m.DPI <= 0 {
		return 1
	}
	return PointsPerInch / m.DPI
}

// Place maps a word box. It is a pure function of its inputs.
func (m Mapper) Place(text string, box image.Rectangle) Placed {
	box = box.Canon()
	s := m.Scale()

	x0 := m.clampX(float64(box.Min.X) * s)
	y0 := m.clampY(float64(box.Min.Y) * s)
	x1 := m.clampX(float64(box.Max.X) * s)
	y1 := m.clampY(float64(box.Max.Y) * s)

	h := y1 - y0
	size := h * FontSizeRatio
	if size < MinFontSize {
		size = MinFontSize
	}

	return Placed{
		Text:     text,
		X:        x0,
		Y:        y0,
		Width:    x1 - x0,
		Height:   h,
		FontSize: size,
		Baseline: y1,
	}
}

func (m Mapper) clampX(v float64) float64 {
	return clamp(v, m.PageWidth)
}

func (m Mapper) clampY(v float64) float64 {
	return clamp(v, m.PageHeight)
}

// clamp bounds v to [0, limit]. A non-positive limit means unbounded.
func clamp(v, limit float64) float64 {
	if v < 0 {
		return 0
	}
	if limit > 0 && v > limit {
		return limit
	}
	return v
}

// PixelsToPoints converts a pixel length at dpi to points.
func PixelsToPoints(px int, dpi float64) float64 {
	return Mapper{DPI: dpi}.Scale() * float64(px)
}

// PointsToPixels converts a point length to whole pixels at dpi, rounding
// to nearest.
func PointsToPixels(pt float64, dpi float64) int {
	if dpi <= 0 {
		return int(pt + 0.5)
	}
	return int(pt*dpi/PointsPerInch + 0.5)
}
