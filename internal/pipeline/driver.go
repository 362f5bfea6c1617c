// Package pipeline drives documents through rendering, OCR and assembly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/kaidoku/internal/compose"
	"github.com/jackzampolin/kaidoku/internal/fonts"
	"github.com/jackzampolin/kaidoku/internal/metrics"
	"github.com/jackzampolin/kaidoku/internal/ocr"
	"github.com/jackzampolin/kaidoku/internal/raster"
)

// Fatal errors. Each aborts a run before any page is processed.
var (
	ErrInputNotFound     = errors.New("input not found")
	ErrOutputIsDirectory = errors.New("output path is a directory")
	ErrNoImages          = errors.New("no input images")
	ErrOutputExtension   = errors.New("output must be a .pdf file")
)

// Run modes recorded in the report.
const (
	ModePDF    = "pdf"
	ModeImages = "images"
	ModeText   = "text"
)

// imageExts are inputs handled as raster images rather than PDFs.
var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".tif": true, ".tiff": true, ".bmp": true, ".webp": true,
}

// IsImagePath reports whether path has a supported image extension.
func IsImagePath(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// Config configures a Driver.
type Config struct {
	Engine    ocr.Engine
	Threshold float64
	Workers   int
	Parallel  bool

	DPI           int
	MaxPixels     int
	Pdftoppm      string
	RenderRetries int

	// Fonts resolves the text-layer font. Shared across runs.
	Fonts    *fonts.Cache
	Validate bool
	ShowText bool

	Progress ProgressFunc
	Logger   *slog.Logger

	// NewAssembler overrides the output writer. Nil writes PDFs with
	// compose.PDFAssembler.
	NewAssembler func(output string) compose.Assembler
}

// DefaultConfig returns a Config with every default filled in except the
// engine and fonts.
func DefaultConfig() Config {
	return Config{
		Threshold: ocr.DefaultConfidenceThreshold,
		Parallel:  true,
		DPI:       raster.DefaultDPI,
		MaxPixels: raster.DefaultMaxPixels,
	}
}

// Driver runs conversions. It is safe to reuse across runs.
type Driver struct {
	cfg    Config
	logger *slog.Logger
}

// New validates cfg and creates a driver.
func New(cfg Config) (*Driver, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("%w: no engine configured", ocr.ErrEngineNotFound)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Threshold = ocr.ClampThreshold(cfg.Threshold)
	if cfg.DPI <= 0 {
		cfg.DPI = raster.DefaultDPI
	}
	if cfg.MaxPixels <= 0 {
		cfg.MaxPixels = raster.DefaultMaxPixels
	}
	return &Driver{cfg: cfg, logger: logger}, nil
}

// run is the per-invocation state.
type run struct {
	id      string
	start   time.Time
	logger  *slog.Logger
	report  *Report
	metrics *metrics.Recorder
}

func (d *Driver) begin(mode string, inputs []string, output string) *run {
	id := uuid.NewString()
	start := time.Now()
	return &run{
		id:      id,
		start:   start,
		logger:  d.logger.With("run_id", id, "mode", mode),
		report:  newReport(id, mode, inputs, output, start),
		metrics: metrics.NewRecorder(id),
	}
}

func (d *Driver) scheduler(r *run) *Scheduler {
	return NewScheduler(SchedulerConfig{
		Engine:    d.cfg.Engine,
		Threshold: d.cfg.Threshold,
		Workers:   d.cfg.Workers,
		Parallel:  d.cfg.Parallel,
		RunID:     r.id,
		Metrics:   r.metrics,
		Logger:    r.logger,
	})
}

// Convert writes a searchable copy of the PDF at input to output.
func (d *Driver) Convert(ctx context.Context, input, output string) (*Report, error) {
	r := d.begin(ModePDF, []string{input}, output)

	if err := checkInput(input); err != nil {
		return nil, err
	}
	if err := PrepareOutput(output); err != nil {
		return nil, err
	}
	if err := d.probe(ctx); err != nil {
		return nil, err
	}

	doc, err := d.openPDF(input, r.logger)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	return d.assemble(ctx, r, doc, output)
}

// ConvertImages writes one searchable PDF with a page per input image.
func (d *Driver) ConvertImages(ctx context.Context, inputs []string, output string) (*Report, error) {
	if len(inputs) == 0 {
		return nil, ErrNoImages
	}
	if !strings.EqualFold(filepath.Ext(output), ".pdf") {
		return nil, fmt.Errorf("%w: %s", ErrOutputExtension, output)
	}

	r := d.begin(ModeImages, inputs, output)

	for _, in := range inputs {
		if err := checkInput(in); err != nil {
			return nil, err
		}
	}
	if err := PrepareOutput(output); err != nil {
		return nil, err
	}
	if err := d.probe(ctx); err != nil {
		return nil, err
	}

	doc, err := raster.OpenImages(ctx, inputs, raster.ImageOptions{
		DPI:       d.cfg.DPI,
		MaxPixels: d.cfg.MaxPixels,
		Logger:    r.logger,
	})
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	return d.assemble(ctx, r, doc, output)
}

// ExtractText returns the recognized text of input, a PDF or an image.
func (d *Driver) ExtractText(ctx context.Context, input string) (string, *Report, error) {
	r := d.begin(ModeText, []string{input}, "")

	if err := checkInput(input); err != nil {
		return "", nil, err
	}
	if err := d.probe(ctx); err != nil {
		return "", nil, err
	}

	var doc raster.Document
	var err error
	if IsImagePath(input) {
		doc, err = raster.OpenImages(ctx, []string{input}, raster.ImageOptions{
			DPI:       d.cfg.DPI,
			MaxPixels: d.cfg.MaxPixels,
			Logger:    r.logger,
		})
	} else {
		doc, err = d.openPDF(input, r.logger)
	}
	if err != nil {
		return "", nil, err
	}
	defer doc.Close()

	return d.extract(ctx, r, doc)
}

func (d *Driver) openPDF(input string, logger *slog.Logger) (raster.Document, error) {
	doc, err := raster.OpenPDF(input, raster.PDFOptions{
		DPI:       d.cfg.DPI,
		MaxPixels: d.cfg.MaxPixels,
		Pdftoppm:  d.cfg.Pdftoppm,
		Retries:   d.cfg.RenderRetries,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	if len(doc.Pages()) > 0 {
		if _, err := raster.LocatePdftoppm(d.cfg.Pdftoppm); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (d *Driver) probe(ctx context.Context) error {
	if err := d.cfg.Engine.Probe(ctx); err != nil {
		return fmt.Errorf("ocr engine %s: %w", d.cfg.Engine.Name(), err)
	}
	return nil
}

func (d *Driver) newAssembler(output string, logger *slog.Logger) compose.Assembler {
	if d.cfg.NewAssembler != nil {
		return d.cfg.NewAssembler(output)
	}
	return compose.NewPDFAssembler(output, compose.PDFOptions{
		Validate: d.cfg.Validate,
		ShowText: d.cfg.ShowText,
		Logger:   logger,
	})
}

// assemble composes every page of doc into output. A failed page degrades
// to image-only, or to a blank page when it has no image.
func (d *Driver) assemble(ctx context.Context, r *run, doc raster.Document, output string) (*Report, error) {
	pages := doc.Pages()
	sched := d.scheduler(r)
	asm := d.newAssembler(output, r.logger)
	comp := compose.NewCompositor(d.cfg.Fonts, r.logger)
	prog := newProgress(d.cfg.Progress, len(pages))

	r.logger.Info("conversion started", "pages", len(pages), "workers", sched.ChunkSize(), "threshold", d.cfg.Threshold)

	if len(pages) == 0 {
		r.report.warn("%s", noPagesMessage)
		d.cfg.Progress.emit(noPagesMessage)
		r.logger.Warn("document has no pages")
	}

	var uncovered, collapsed int
	fontFailed := false

	err := sched.Run(ctx, doc, func(ctx context.Context, res PageResult) error {
		if res.Err != nil {
			r.report.addFailure(res.Err)
		}

		var page compose.Page
		if res.Image == nil {
			page = comp.Blank(res.Ref)
		} else {
			start := time.Now()
			var stats compose.Stats
			var err error
			page, stats, err = comp.Compose(res.Image, res.Tokens)
			errType := ""
			if err != nil {
				pe := newPageError(res.Ref.Page, err)
				r.report.addFailure(pe)
				errType = string(pe.Code)
				fontFailed = true
			}
			uncovered += stats.Uncovered
			collapsed += stats.Collapsed
			r.metrics.RecordStage(metrics.RecordOpts{Stage: metrics.StageCompose, Page: res.Ref.Page}, time.Since(start), errType)
		}

		switch {
		case page.HasText():
			r.report.PagesWithText++
		case res.Err == nil && len(res.Tokens) == 0:
			r.report.Textless = append(r.report.Textless, res.Ref.Page)
		}

		if err := asm.AddPage(page); err != nil {
			return fmt.Errorf("assemble page %d: %w", res.Ref.Page, err)
		}
		prog.pageDone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	n, err := asm.Close()
	if err != nil {
		return nil, err
	}
	r.report.Pages = n

	if fontFailed {
		r.report.warn("no usable font found; pages were written without a text layer")
	}
	if uncovered > 0 {
		r.report.warn("%d words contain characters the font cannot draw; they remain searchable", uncovered)
	}
	if collapsed > 0 {
		r.report.warn("%d words had boxes outside the page; they were placed at their natural width", collapsed)
	}

	r.report.finish(r.start, r.metrics)
	r.logger.Info("conversion complete",
		"pages", n,
		"with_text", r.report.PagesWithText,
		"failures", len(r.report.Failures),
		"elapsed_s", r.report.ElapsedSeconds)
	return r.report, nil
}

// extract builds the plain-text rendering of doc from the same single
// engine call per page used for PDFs.
func (d *Driver) extract(ctx context.Context, r *run, doc raster.Document) (string, *Report, error) {
	pages := doc.Pages()
	sched := d.scheduler(r)
	prog := newProgress(d.cfg.Progress, len(pages))

	if len(pages) == 0 {
		r.report.warn("%s", noPagesMessage)
		d.cfg.Progress.emit(noPagesMessage)
	}

	parts := make([]string, 0, len(pages))
	err := sched.Run(ctx, doc, func(ctx context.Context, res PageResult) error {
		if res.Err != nil {
			r.report.addFailure(res.Err)
		}
		text := strings.TrimSpace(ocr.PlainText(res.Tokens))
		if text != "" {
			r.report.PagesWithText++
		} else if res.Err == nil {
			r.report.Textless = append(r.report.Textless, res.Ref.Page)
		}
		parts = append(parts, FormatPageText(res.Ref.Page, text))
		prog.pageDone()
		return nil
	})
	if err != nil {
		return "", nil, err
	}

	r.report.Pages = len(parts)
	r.report.finish(r.start, r.metrics)
	r.logger.Info("extraction complete", "pages", len(parts), "failures", len(r.report.Failures))
	return JoinPageText(parts), r.report, nil
}

// FormatPageText renders one page of text-mode output.
func FormatPageText(page int, text string) string {
	return fmt.Sprintf("--- ページ %d ---\n%s\n", page, strings.TrimSpace(text))
}

// JoinPageText joins formatted pages into the final text. The result always
// ends in exactly one newline.
func JoinPageText(parts []string) string {
	return strings.TrimSpace(strings.Join(parts, "\n")) + "\n"
}

// PrepareOutput creates the parent directory of path. A path naming an
// existing directory is rejected.
func PrepareOutput(path string) error {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return fmt.Errorf("%w: %s", ErrOutputIsDirectory, path)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	return nil
}

func checkInput(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return fmt.Errorf("stat input: %w", err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInputNotFound, path)
	}
	return nil
}
