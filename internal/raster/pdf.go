package raster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/jackzampolin/kaidoku/internal/coords"
)

// DefaultPdftoppm is the poppler renderer looked up on PATH.
const DefaultPdftoppm = "pdftoppm"

// PDFOptions configures a PDFDocument.
type PDFOptions struct {
	DPI       int
	MaxPixels int
	Pdftoppm  string // executable; default "pdftoppm"
	Retries   int    // render attempts per page; default 2
	Logger    *slog.Logger
}

// PDFDocument renders pages of a PDF with pdftoppm. Page geometry comes
// from pdfcpu.
type PDFDocument struct {
	path     string
	pages    []PageRef
	dpi      int
	maxPx    int
	pdftoppm string
	retries  uint
	logger   *slog.Logger
}

// LocatePdftoppm resolves the renderer executable.
func LocatePdftoppm(configured string) (string, error) {
	name := configured
	if name == "" {
		name = DefaultPdftoppm
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrRasterizerNotFound, name)
	}
	return p, nil
}

// OpenPDF reads page count and page sizes. A corrupt or encrypted file
// yields ErrUnreadableDocument.
func OpenPDF(path string, opts PDFOptions) (*PDFDocument, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dpi := opts.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	retries := opts.Retries
	if retries <= 0 {
		retries = 2
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	count, err := api.PageCount(f, conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableDocument, filepath.Base(path), err)
	}

	pages := make([]PageRef, count)
	if count > 0 {
		if _, err := f.Seek(0, 0); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
		}
		dims, err := api.PageDims(f, conf)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: page sizes: %v", ErrUnreadableDocument, filepath.Base(path), err)
		}
		for i := range pages {
			pages[i] = PageRef{Page: i + 1}
			if i < len(dims) {
				pages[i].Width = dims[i].Width
				pages[i].Height = dims[i].Height
			}
		}
	}

	logger.Debug("opened pdf", "path", path, "pages", count)

	return &PDFDocument{
		path:     path,
		pages:    pages,
		dpi:      dpi,
		maxPx:    opts.MaxPixels,
		pdftoppm: opts.Pdftoppm,
		retries:  uint(retries),
		logger:   logger.With("source", "pdf"),
	}, nil
}

// Pages returns the page list.
func (d *PDFDocument) Pages() []PageRef {
	return d.pages
}

// Close is a no-op; the file is only held during Render.
func (d *PDFDocument) Close() error {
	return nil
}

// Render rasterizes one page with pdftoppm. The pixel ceiling is checked
// against the expected raster size before anything is rendered.
func (d *PDFDocument) Render(ctx context.Context, ref PageRef) (*PageImage, error) {
	wantW := coords.PointsToPixels(ref.Width, float64(d.dpi))
	wantH := coords.PointsToPixels(ref.Height, float64(d.dpi))
	if err := CheckPixels(wantW, wantH, d.maxPx); err != nil {
		return nil, fmt.Errorf("page %d: %w", ref.Page, err)
	}

	bin, err := LocatePdftoppm(d.pdftoppm)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = retry.Do(
		func() error {
			var rerr error
			data, rerr = d.renderOnce(ctx, bin, ref.Page)
			return rerr
		},
		retry.Context(ctx),
		retry.Attempts(d.retries),
		retry.Delay(250*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, exec.ErrNotFound)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", ErrRender, ref.Page, err)
	}

	w, h, err := pngSize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: decode header: %v", ErrRender, ref.Page, err)
	}
	if err := CheckPixels(w, h, d.maxPx); err != nil {
		return nil, fmt.Errorf("page %d: %w", ref.Page, err)
	}

	// pdftoppm applies /Rotate; pdfcpu reports the unrotated media box.
	if (w > h) != (ref.Width > ref.Height) && ref.Width != ref.Height {
		ref.Width, ref.Height = ref.Height, ref.Width
	}
	if ref.Width <= 0 || ref.Height <= 0 {
		ref.Width = coords.PixelsToPoints(w, float64(d.dpi))
		ref.Height = coords.PixelsToPoints(h, float64(d.dpi))
	}

	d.logger.Debug("page rendered", "page", ref.Page, "px_w", w, "px_h", h)

	return &PageImage{
		PageRef:     ref,
		PNG:         data,
		PixelWidth:  w,
		PixelHeight: h,
		DPI:         float64(d.dpi),
	}, nil
}

// renderOnce runs pdftoppm for a single page into a private temp dir.
func (d *PDFDocument) renderOnce(ctx context.Context, bin string, page int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "kaidoku-page-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	pageStr := strconv.Itoa(page)

	// -singlefile writes <prefix>.png without a page suffix.
	cmd := exec.CommandContext(ctx, bin,
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(d.dpi),
		"-singlefile",
		d.path,
		prefix,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(out))
	}

	data, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	return data, nil
}

var _ Document = (*PDFDocument)(nil)
