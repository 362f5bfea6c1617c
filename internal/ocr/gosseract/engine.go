//go:build gosseract

// Package gosseract provides an in-process OCR engine backed by libtesseract.
// Build with -tags gosseract; it requires the tesseract and leptonica
// development headers.
package gosseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/jackzampolin/kaidoku/internal/ocr"
)

// EngineName is the registry name of this engine.
const EngineName = "gosseract"

func init() {
	ocr.Register(EngineName, func(opts ocr.Options) (ocr.Engine, error) {
		return New(opts), nil
	})
}

// Engine runs libtesseract through a fresh client per page.
type Engine struct {
	languages   []string
	variables   map[gosseract.SettableVariable]string
	tessdataDir string
	logger      *slog.Logger
}

// New creates an engine. Sanitized --psm and --dpi flags map to tesseract
// variables; other flags have no library equivalent and are ignored.
func New(opts ocr.Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lang := opts.Language
	if lang == "" {
		lang = ocr.DefaultLanguage
	}

	vars := make(map[gosseract.SettableVariable]string)
	args := ocr.SanitizeArgs(opts.Args...)
	for i := 0; i+1 < len(args); i++ {
		switch args[i] {
		case "--psm":
			vars["tessedit_pageseg_mode"] = args[i+1]
		case "--dpi":
			vars["user_defined_dpi"] = args[i+1]
		}
	}

	return &Engine{
		languages:   strings.Split(lang, "+"),
		variables:   vars,
		tessdataDir: opts.TessdataDir,
		logger:      logger.With("engine", EngineName),
	}
}

// Name returns "gosseract".
func (e *Engine) Name() string {
	return EngineName
}

// Probe initializes a client once to confirm the library and language data
// load.
func (e *Engine) Probe(ctx context.Context) error {
	client, err := e.client()
	if err != nil {
		return err
	}
	defer client.Close()

	// Library init is lazy; analysing a blank image forces language data
	// to load.
	if err := client.SetImageFromBytes(blankPNG()); err != nil {
		return fmt.Errorf("%w: %v", ocr.ErrEngineNotFound, err)
	}
	if _, err := client.GetBoundingBoxesVerbose(); err != nil {
		return fmt.Errorf("%w: %v", ocr.ErrLanguageUnavailable, err)
	}

	e.logger.Debug("gosseract probe ok", "version", client.Version(), "languages", e.languages)
	return nil
}

// Recognize runs one layout analysis per image. Plain text is derived from
// the same boxes by the caller.
func (e *Engine) Recognize(ctx context.Context, img ocr.Image) ([]ocr.WordToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, err := e.client()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	if img.DPI > 0 {
		if _, set := e.variables["user_defined_dpi"]; !set {
			if err := client.SetVariable("user_defined_dpi", strconv.Itoa(img.DPI)); err != nil {
				return nil, fmt.Errorf("%w: page %d: set dpi: %v", ocr.ErrRecognize, img.Page, err)
			}
		}
	}
	if err := client.SetImageFromBytes(img.Data); err != nil {
		return nil, fmt.Errorf("%w: page %d: set image: %v", ocr.ErrRecognize, img.Page, err)
	}

	boxes, err := client.GetBoundingBoxesVerbose()
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", ocr.ErrRecognize, img.Page, err)
	}

	tokens := make([]ocr.WordToken, 0, len(boxes))
	for _, b := range boxes {
		text := ocr.NormalizeText(b.Word)
		if text == "" || b.Confidence < 0 {
			continue
		}
		tokens = append(tokens, ocr.WordToken{
			Text:       text,
			BBox:       b.Box,
			Confidence: b.Confidence,
			Block:      b.BlockNum,
			Paragraph:  b.ParNum,
			Line:       b.LineNum,
			Word:       b.WordNum,
		})
	}

	e.logger.Debug("page recognized", "page", img.Page, "words", len(tokens))
	return tokens, nil
}

func (e *Engine) client() (*gosseract.Client, error) {
	client := gosseract.NewClient()
	if e.tessdataDir != "" {
		client.TessdataPrefix = e.tessdataDir
	}
	if err := client.SetLanguage(e.languages...); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ocr.ErrEngineNotFound, err)
	}
	for k, v := range e.variables {
		if err := client.SetVariable(k, v); err != nil {
			client.Close()
			return nil, fmt.Errorf("%w: set %s: %v", ocr.ErrEngineNotFound, k, err)
		}
	}
	return client, nil
}

func blankPNG() []byte {
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

var _ ocr.Engine = (*Engine)(nil)
