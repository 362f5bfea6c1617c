package config

// Config holds kaidoku configuration.
// Stored at: {home}/config.yaml
type Config struct {
	OCR      OCRConfig      `mapstructure:"ocr" yaml:"ocr"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Render   RenderConfig   `mapstructure:"render" yaml:"render"`
	Font     FontConfig     `mapstructure:"font" yaml:"font"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output"`
}

// OCRConfig selects and tunes the OCR engine.
type OCRConfig struct {
	Engine              string   `mapstructure:"engine" yaml:"engine"`                             // "tesseract" or "gosseract"
	Language            string   `mapstructure:"language" yaml:"language"`                         // tesseract language, e.g. "jpn+eng"
	ConfidenceThreshold float64  `mapstructure:"confidence_threshold" yaml:"confidence_threshold"` // 0..100
	TesseractPath       string   `mapstructure:"tesseract_path" yaml:"tesseract_path"`             // supports ${ENV_VAR}
	Args                []string `mapstructure:"args" yaml:"args"`                                 // extra flags, sanitized
	TessdataDir         string   `mapstructure:"tessdata_dir" yaml:"tessdata_dir"`
}

// PipelineConfig controls page scheduling.
type PipelineConfig struct {
	Workers  int  `mapstructure:"workers" yaml:"workers"` // 0 means half the CPUs
	Parallel bool `mapstructure:"parallel" yaml:"parallel"`
}

// RenderConfig controls page rasterization.
type RenderConfig struct {
	DPI          int    `mapstructure:"dpi" yaml:"dpi"`
	MaxPixels    int    `mapstructure:"max_pixels" yaml:"max_pixels"`
	PdftoppmPath string `mapstructure:"pdftoppm_path" yaml:"pdftoppm_path"`
	Retries      int    `mapstructure:"retries" yaml:"retries"`
}

// FontConfig controls the text-layer font search.
type FontConfig struct {
	Path             string   `mapstructure:"path" yaml:"path"`
	Dirs             []string `mapstructure:"dirs" yaml:"dirs"`
	EmbeddedFallback bool     `mapstructure:"embedded_fallback" yaml:"embedded_fallback"`
}

// OutputConfig controls the written document.
type OutputConfig struct {
	Validate bool   `mapstructure:"validate" yaml:"validate"`
	Suffix   string `mapstructure:"suffix" yaml:"suffix"` // appended to derived output names
	ShowText bool   `mapstructure:"show_text" yaml:"show_text"`
}
