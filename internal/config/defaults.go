package config

import (
	"errors"
	"fmt"
	"unicode"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// ErrInvalidKey is returned when a config key contains invalid characters.
var ErrInvalidKey = errors.New("invalid config key")

// Entry is one configuration key with its default and description.
type Entry struct {
	Key         string `json:"key" yaml:"key"`
	Value       any    `json:"value" yaml:"value"`
	Description string `json:"description" yaml:"description"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		OCR: OCRConfig{
			Engine:              "tesseract",
			Language:            "jpn",
			ConfidenceThreshold: 65,
			Args:                []string{},
		},
		Pipeline: PipelineConfig{
			Workers:  0,
			Parallel: true,
		},
		Render: RenderConfig{
			DPI:       300,
			MaxPixels: 200_000_000,
			Retries:   2,
		},
		Font: FontConfig{
			Dirs:             []string{},
			EmbeddedFallback: true,
		},
		Output: OutputConfig{
			Suffix: "_searchable",
		},
	}
}

// DefaultEntries returns every configuration key with its default value.
// Each key is also settable as KAIDOKU_<KEY> with dots replaced by
// underscores.
func DefaultEntries() []Entry {
	d := DefaultConfig()
	return []Entry{
		// ===================
		// OCR
		// ===================
		{
			Key:         "ocr.engine",
			Value:       d.OCR.Engine,
			Description: "OCR engine: tesseract (child process) or gosseract (requires the gosseract build tag)",
		},
		{
			Key:         "ocr.language",
			Value:       d.OCR.Language,
			Description: "Tesseract language codes joined with +",
		},
		{
			Key:         "ocr.confidence_threshold",
			Value:       d.OCR.ConfidenceThreshold,
			Description: "Words below this confidence (0-100) are not embedded",
		},
		{
			Key:         "ocr.tesseract_path",
			Value:       d.OCR.TesseractPath,
			Description: "Tesseract executable; empty searches TESSERACT_CMD, TESSERACT_PATH and PATH",
		},
		{
			Key:         "ocr.args",
			Value:       d.OCR.Args,
			Description: "Extra tesseract flags (--oem, --psm, --dpi, -l, --tessdata-dir)",
		},
		{
			Key:         "ocr.tessdata_dir",
			Value:       d.OCR.TessdataDir,
			Description: "Directory holding traineddata files",
		},

		// ===================
		// Pipeline
		// ===================
		{
			Key:         "pipeline.workers",
			Value:       d.Pipeline.Workers,
			Description: "Pages processed at once; 0 uses half the CPUs",
		},
		{
			Key:         "pipeline.parallel",
			Value:       d.Pipeline.Parallel,
			Description: "Process pages in parallel; false runs one page at a time",
		},

		// ===================
		// Render
		// ===================
		{
			Key:         "render.dpi",
			Value:       d.Render.DPI,
			Description: "Rasterization resolution for OCR",
		},
		{
			Key:         "render.max_pixels",
			Value:       d.Render.MaxPixels,
			Description: "Pages whose raster would exceed this many pixels are skipped",
		},
		{
			Key:         "render.pdftoppm_path",
			Value:       d.Render.PdftoppmPath,
			Description: "pdftoppm executable; empty searches PATH",
		},
		{
			Key:         "render.retries",
			Value:       d.Render.Retries,
			Description: "Render attempts per page",
		},

		// ===================
		// Font
		// ===================
		{
			Key:         "font.path",
			Value:       d.Font.Path,
			Description: "TrueType font for the text layer; empty searches the system",
		},
		{
			Key:         "font.dirs",
			Value:       d.Font.Dirs,
			Description: "Extra directories searched for fonts",
		},
		{
			Key:         "font.embedded_fallback",
			Value:       d.Font.EmbeddedFallback,
			Description: "Use the built-in Latin font when no system font is found",
		},

		// ===================
		// Output
		// ===================
		{
			Key:         "output.validate",
			Value:       d.Output.Validate,
			Description: "Validate the written PDF",
		},
		{
			Key:         "output.suffix",
			Value:       d.Output.Suffix,
			Description: "Suffix for output names derived from the input",
		},
		{
			Key:         "output.show_text",
			Value:       d.Output.ShowText,
			Description: "Draw the text layer visibly in red for debugging",
		},
	}
}

// GetDefault returns the default entry for a config key.
// Returns nil if no default exists for the key.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// ValidateKey checks if a config key contains only allowed characters.
// Valid keys contain: letters, digits, dots, underscores, and hyphens.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	if key[0] == '.' || key[len(key)-1] == '.' {
		return fmt.Errorf("%w: key cannot start or end with a dot", ErrInvalidKey)
	}
	return nil
}
