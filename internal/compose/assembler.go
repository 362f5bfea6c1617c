package compose

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"codeberg.org/go-pdf/fpdf"
	"github.com/moby/sys/atomicwriter"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// TextLayerName is the optional content group holding recognized text.
const TextLayerName = "OCR Text"

// PDFOptions configures a PDFAssembler.
type PDFOptions struct {
	// Validate re-reads the written file with pdfcpu.
	Validate bool

	// ShowText draws the text layer in red instead of invisibly.
	ShowText bool

	Logger *slog.Logger
}

// PDFAssembler builds the output document with fpdf and writes it
// atomically to path on Close. Nothing touches path before Close.
type PDFAssembler struct {
	path   string
	opts   PDFOptions
	logger *slog.Logger

	pdf   *fpdf.Fpdf
	fonts map[string]bool
	pages int
	layer int

	// err is the first AddPage failure. Once set, Close writes nothing.
	err    error
	closed bool
}

// NewPDFAssembler creates an assembler targeting path.
func NewPDFAssembler(path string, opts PDFOptions) *PDFAssembler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pdf := fpdf.New("P", "pt", "", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.SetCreator("kaidoku", true)

	return &PDFAssembler{
		path:   path,
		opts:   opts,
		logger: logger.With("component", "assembler", "output", path),
		pdf:    pdf,
		fonts:  make(map[string]bool),
		layer:  -1,
	}
}

// AddPage appends p as the next page. After a failure every later call
// returns the same error.
func (a *PDFAssembler) AddPage(p Page) error {
	if a.closed {
		return fmt.Errorf("assembler closed")
	}
	if a.err != nil {
		return a.err
	}
	if err := a.addPage(p); err != nil {
		a.err = err
		return err
	}
	a.pages++
	return nil
}

func (a *PDFAssembler) addPage(p Page) error {
	pdf := a.pdf

	pdf.AddPageFormat("P", fpdf.SizeType{Wd: p.Width, Ht: p.Height})

	if len(p.Image) > 0 {
		name := fmt.Sprintf("page-%d", p.Index)
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(p.Image))
		pdf.ImageOptions(name, 0, 0, p.Width, p.Height, false, opts, 0, "")
	}

	if p.HasText() {
		if err := a.drawText(p); err != nil {
			return err
		}
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("page %d: %w", p.Index, err)
	}
	return nil
}

// drawText writes each token at its baseline, stretched horizontally to
// span its box.
func (a *PDFAssembler) drawText(p Page) error {
	pdf := a.pdf
	if !a.fonts[p.Font.Name] {
		pdf.AddUTF8FontFromBytes(p.Font.Name, "", p.Font.Data)
		if err := pdf.Error(); err != nil {
			return fmt.Errorf("register font %s: %w", p.Font.Name, err)
		}
		a.fonts[p.Font.Name] = true
	}
	if a.layer < 0 {
		a.layer = pdf.AddLayer(TextLayerName, true)
	}

	pdf.BeginLayer(a.layer)
	if a.opts.ShowText {
		pdf.SetTextColor(255, 0, 0)
	} else {
		pdf.SetAlpha(0.0, "Normal")
	}

	for _, t := range p.Tokens {
		pdf.SetFont(p.Font.Name, "", t.FontSize)
		w := pdf.GetStringWidth(t.Text)
		// Boxes clamped to nothing keep their natural width.
		if w <= 0 || t.Width <= 0 {
			pdf.Text(t.X, t.Baseline, t.Text)
			continue
		}
		pdf.TransformBegin()
		pdf.TransformScaleX(t.Width/w*100, t.X, t.Baseline)
		pdf.Text(t.X, t.Baseline, t.Text)
		pdf.TransformEnd()
	}

	pdf.SetAlpha(1.0, "Normal")
	pdf.SetTextColor(0, 0, 0)
	pdf.EndLayer()
	return nil
}

// Close writes the document. A document with no pages is still a valid PDF.
// If any AddPage failed, Close returns that error and leaves path untouched.
func (a *PDFAssembler) Close() (int, error) {
	if a.closed {
		return a.pages, a.err
	}
	a.closed = true

	if a.err != nil {
		return 0, fmt.Errorf("build pdf: %w", a.err)
	}
	if err := a.pdf.Error(); err != nil {
		a.err = err
		return 0, fmt.Errorf("build pdf: %w", err)
	}

	if a.pages == 0 {
		var buf bytes.Buffer
		if err := WriteEmpty(&buf); err != nil {
			return 0, err
		}
		if err := atomicwriter.WriteFile(a.path, buf.Bytes(), 0o644); err != nil {
			return 0, fmt.Errorf("write output: %w", err)
		}
	} else {
		// Output only fails on writes here, which the atomic writer turns
		// into a discarded temp file.
		if err := writeAtomic(a.path, a.pdf.Output); err != nil {
			return 0, err
		}
	}

	if a.opts.Validate {
		if err := Validate(a.path); err != nil {
			return a.pages, err
		}
	}

	a.logger.Debug("document written", "pages", a.pages)
	return a.pages, nil
}

// WriteEmpty writes a structurally valid PDF with zero pages.
func WriteEmpty(w io.Writer) error {
	conf := model.NewDefaultConfiguration()
	if err := api.ImportImages(nil, w, nil, pdfcpu.DefaultImportConfig(), conf); err != nil {
		return fmt.Errorf("write empty pdf: %w", err)
	}
	return nil
}

// Validate checks the file at path in relaxed mode.
func Validate(path string) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		return fmt.Errorf("validate %s: %w", path, err)
	}
	return nil
}

// writeAtomic streams write into a temp file beside path and renames it
// into place on Close unless a write to the file failed.
func writeAtomic(path string, write func(io.Writer) error) error {
	f, err := atomicwriter.New(path, 0o644)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// PageCount reads the page count of the PDF at path.
func PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(f, conf)
}

var _ Assembler = (*PDFAssembler)(nil)
