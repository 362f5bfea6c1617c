// Package ocr defines the OCR engine boundary and the typed word tokens
// that cross it.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrEngineNotFound means the engine binary or library is not usable.
	// Callers treat it as fatal.
	ErrEngineNotFound = errors.New("ocr engine not found")

	// ErrLanguageUnavailable means the engine runs but lacks trained data
	// for a requested language.
	ErrLanguageUnavailable = errors.New("ocr language data not installed")

	// ErrRecognize wraps a failed recognition of a single image.
	ErrRecognize = errors.New("ocr recognition failed")

	// ErrUnknownEngine is returned by New for unregistered names.
	ErrUnknownEngine = errors.New("unknown ocr engine")
)

// DefaultLanguage is the tesseract language used when none is configured.
const DefaultLanguage = "jpn"

// WordToken is one recognized word in raster pixel space.
type WordToken struct {
	Text       string          `json:"text"`
	BBox       image.Rectangle `json:"bbox"`
	Confidence float64         `json:"confidence"`

	// Layout position as reported by the engine.
	Block     int `json:"block"`
	Paragraph int `json:"paragraph"`
	Line      int `json:"line"`
	Word      int `json:"word"`
}

// Image is an encoded page raster handed to an engine.
type Image struct {
	Page int    // 1-indexed source page
	Data []byte // PNG bytes
	DPI  int
}

// Engine recognizes words in page images.
type Engine interface {
	// Name returns the engine identifier (e.g., "tesseract").
	Name() string

	// Probe verifies the engine can run. Called once before any page work.
	Probe(ctx context.Context) error

	// Recognize runs the engine exactly once over img.
	// Empty output is not an error.
	Recognize(ctx context.Context, img Image) ([]WordToken, error)
}

// Options configures an engine built through New.
type Options struct {
	Language    string
	Binary      string   // executable path for process-based engines
	Args        []string // extra engine flags, sanitized before use
	TessdataDir string
	Logger      *slog.Logger
}

// Factory builds an engine from options.
type Factory func(opts Options) (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes an engine available under name. Later registrations
// replace earlier ones.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// New builds the engine registered under name.
func New(name string, opts Options) (Engine, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %s)", ErrUnknownEngine, name, strings.Join(Engines(), ", "))
	}
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return f(opts)
}

// Engines lists registered engine names in sorted order.
func Engines() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NormalizeText trims and NFC-normalizes engine output so decomposed kana
// and accents embed as single code points.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
