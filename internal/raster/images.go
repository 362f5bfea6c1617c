package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/kaidoku/internal/coords"
)

// ImageOptions configures an ImageDocument.
type ImageOptions struct {
	DPI       int
	MaxPixels int
	Logger    *slog.Logger
}

// ImageDocument treats a list of image files as pages of one document.
// Images are turned upright by their EXIF orientation. Every page shares a
// canvas sized to the widest and tallest upright input; each image is scaled
// to fit and centered on white.
type ImageDocument struct {
	paths  []string
	sizes  []image.Point
	orient []int
	canvas image.Point
	dpi    int
	maxPx  int
	logger *slog.Logger
}

// OpenImages reads every image header to size the shared canvas. Files that
// cannot be decoded are fatal. Images over the pixel ceiling are kept and
// fail individually at Render.
func OpenImages(ctx context.Context, paths []string, opts ImageOptions) (*ImageDocument, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dpi := opts.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	maxPx := opts.MaxPixels
	if maxPx <= 0 {
		maxPx = DefaultMaxPixels
	}

	sizes := make([]image.Point, len(paths))
	orients := make([]int, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			size, o, err := probeImage(p)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrUnreadableDocument, filepath.Base(p), err)
			}
			sizes[i] = size
			orients[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var canvas image.Point
	for _, s := range sizes {
		if CheckPixels(s.X, s.Y, maxPx) != nil {
			continue
		}
		canvas.X = max(canvas.X, s.X)
		canvas.Y = max(canvas.Y, s.Y)
	}
	canvas = fitCanvas(canvas, maxPx)

	logger.Debug("opened images", "count", len(paths), "canvas_w", canvas.X, "canvas_h", canvas.Y)

	return &ImageDocument{
		paths:  paths,
		sizes:  sizes,
		orient: orients,
		canvas: canvas,
		dpi:    dpi,
		maxPx:  maxPx,
		logger: logger.With("source", "images"),
	}, nil
}

// Canvas returns the shared page size in pixels.
func (d *ImageDocument) Canvas() image.Point {
	return d.canvas
}

// Pages returns one page per input image, all canvas-sized.
func (d *ImageDocument) Pages() []PageRef {
	w := coords.PixelsToPoints(d.canvas.X, float64(d.dpi))
	h := coords.PixelsToPoints(d.canvas.Y, float64(d.dpi))
	refs := make([]PageRef, len(d.paths))
	for i := range refs {
		refs[i] = PageRef{Page: i + 1, Width: w, Height: h}
	}
	return refs
}

// Close is a no-op.
func (d *ImageDocument) Close() error {
	return nil
}

// Render decodes one image and composes it onto the canvas.
func (d *ImageDocument) Render(ctx context.Context, ref PageRef) (*PageImage, error) {
	idx := ref.Page - 1
	if idx < 0 || idx >= len(d.paths) {
		return nil, fmt.Errorf("%w: page %d out of range", ErrRender, ref.Page)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := d.sizes[idx]
	if err := CheckPixels(size.X, size.Y, d.maxPx); err != nil {
		return nil, fmt.Errorf("page %d: %w", ref.Page, err)
	}

	f, err := os.Open(d.paths[idx])
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", ErrRender, ref.Page, err)
	}
	src, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: decode: %v", ErrRender, ref.Page, err)
	}

	page := Compose(orient(src, d.orient[idx]), d.canvas)

	var buf bytes.Buffer
	if err := png.Encode(&buf, page); err != nil {
		return nil, fmt.Errorf("%w: page %d: encode: %v", ErrRender, ref.Page, err)
	}

	return &PageImage{
		PageRef:     ref,
		PNG:         buf.Bytes(),
		PixelWidth:  d.canvas.X,
		PixelHeight: d.canvas.Y,
		DPI:         float64(d.dpi),
	}, nil
}

// Compose draws src centered on a white canvas, scaled up or down to fit
// while keeping its aspect ratio.
func Compose(src image.Image, canvas image.Point) *image.RGBA {
	dst := image.NewRGBA(image.Rectangle{Max: canvas})
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	if sw == 0 || sh == 0 || canvas.X == 0 || canvas.Y == 0 {
		return dst
	}

	scale := math.Min(float64(canvas.X)/float64(sw), float64(canvas.Y)/float64(sh))
	w := max(1, int(math.Round(float64(sw)*scale)))
	h := max(1, int(math.Round(float64(sh)*scale)))

	off := image.Pt((canvas.X-w)/2, (canvas.Y-h)/2)
	target := image.Rectangle{Min: off, Max: off.Add(image.Pt(w, h))}

	if w == sw && h == sh {
		draw.Draw(dst, target, src, sb.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, target, src, sb, draw.Over, nil)
	}
	return dst
}

// fitCanvas shrinks canvas proportionally until it fits under maxPx.
func fitCanvas(c image.Point, maxPx int) image.Point {
	if CheckPixels(c.X, c.Y, maxPx) == nil {
		return c
	}
	f := math.Sqrt(float64(maxPx) / (float64(c.X) * float64(c.Y)))
	return image.Pt(int(float64(c.X)*f), int(float64(c.Y)*f))
}

// probeImage reads the upright size and EXIF orientation of the image at
// path without decoding its pixels.
func probeImage(path string) (image.Point, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Point{}, 0, err
	}
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return image.Point{}, 0, err
	}

	o := orientNormal
	if format == "jpeg" || format == "tiff" {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return image.Point{}, 0, err
		}
		o = readOrientation(f)
	}

	size := image.Pt(cfg.Width, cfg.Height)
	if swapsAxes(o) {
		size = image.Pt(cfg.Height, cfg.Width)
	}
	return size, o, nil
}

var _ Document = (*ImageDocument)(nil)
