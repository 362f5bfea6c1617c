package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// TesseractEngineName is the registry name of the CLI engine.
const TesseractEngineName = "tesseract"

func init() {
	Register(TesseractEngineName, func(opts Options) (Engine, error) {
		return NewTesseract(opts), nil
	})
}

// tesseractEnvVars are checked in order when no binary is configured.
var tesseractEnvVars = []string{"TESSERACT_CMD", "TESSERACT_PATH"}

// windowsInstallPaths are the default installer locations.
var windowsInstallPaths = []string{
	`C:\Program Files\Tesseract-OCR\tesseract.exe`,
	`C:\Program Files (x86)\Tesseract-OCR\tesseract.exe`,
}

// Tesseract runs the tesseract CLI as one child process per page.
type Tesseract struct {
	binary      string
	language    string
	args        []string
	tessdataDir string
	logger      *slog.Logger
}

// NewTesseract creates a CLI engine. The binary is resolved lazily by Probe
// and Recognize.
func NewTesseract(opts Options) *Tesseract {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lang := opts.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	return &Tesseract{
		binary:      opts.Binary,
		language:    lang,
		args:        SanitizeArgs(opts.Args...),
		tessdataDir: opts.TessdataDir,
		logger:      logger.With("engine", TesseractEngineName),
	}
}

// Name returns "tesseract".
func (t *Tesseract) Name() string {
	return TesseractEngineName
}

// LocateTesseract resolves the tesseract executable: the configured path,
// then the environment, then PATH, then platform install locations.
func LocateTesseract(configured string) (string, error) {
	if configured != "" {
		if p, err := exec.LookPath(configured); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("%w: %s", ErrEngineNotFound, configured)
	}

	for _, name := range tesseractEnvVars {
		if v := os.Getenv(name); v != "" {
			if p, err := exec.LookPath(v); err == nil {
				return p, nil
			}
		}
	}

	if p, err := exec.LookPath("tesseract"); err == nil {
		return p, nil
	}

	if runtime.GOOS == "windows" {
		for _, p := range windowsInstallPaths {
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}

	return "", fmt.Errorf("%w: tesseract not on PATH", ErrEngineNotFound)
}

// Probe checks the binary runs and that every requested language is
// installed.
func (t *Tesseract) Probe(ctx context.Context) error {
	bin, err := LocateTesseract(t.binary)
	if err != nil {
		return err
	}

	out, err := exec.CommandContext(ctx, bin, "--version").CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s --version: %v", ErrEngineNotFound, bin, err)
	}
	version := firstLine(out)

	listArgs := []string{"--list-langs"}
	if t.tessdataDir != "" {
		listArgs = append([]string{"--tessdata-dir", t.tessdataDir}, listArgs...)
	}
	out, err = exec.CommandContext(ctx, bin, listArgs...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s --list-langs: %v", ErrEngineNotFound, bin, err)
	}
	installed := parseLangList(out)
	for _, lang := range strings.Split(t.language, "+") {
		if !installed[lang] {
			return fmt.Errorf("%w: %s", ErrLanguageUnavailable, lang)
		}
	}

	t.binary = bin
	t.logger.Debug("tesseract probe ok", "binary", bin, "version", version, "language", t.language)
	return nil
}

// Recognize pipes img through tesseract and parses the TSV result.
func (t *Tesseract) Recognize(ctx context.Context, img Image) ([]WordToken, error) {
	bin, err := LocateTesseract(t.binary)
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, t.commandArgs(img)...)
	cmd.Stdin = bytes.NewReader(img.Data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: page %d: %v: %s", ErrRecognize, img.Page, err, strings.TrimSpace(stderr.String()))
	}

	tokens, err := ParseTSV(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", ErrRecognize, img.Page, err)
	}

	t.logger.Debug("page recognized", "page", img.Page, "words", len(tokens))
	return tokens, nil
}

// commandArgs builds: stdin stdout -l <lang> [--dpi N] [flags...] tsv
func (t *Tesseract) commandArgs(img Image) []string {
	args := []string{"stdin", "stdout"}
	if !hasFlag(t.args, "-l") {
		args = append(args, "-l", t.language)
	}
	if t.tessdataDir != "" && !hasFlag(t.args, "--tessdata-dir") {
		args = append(args, "--tessdata-dir", t.tessdataDir)
	}
	if img.DPI > 0 && !hasFlag(t.args, "--dpi") {
		args = append(args, "--dpi", strconv.Itoa(img.DPI))
	}
	args = append(args, t.args...)
	return append(args, "tsv")
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// parseLangList reads `tesseract --list-langs` output, which starts with a
// "List of available languages" header line.
func parseLangList(b []byte) map[string]bool {
	langs := make(map[string]bool)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, " ") {
			continue
		}
		langs[line] = true
	}
	return langs
}

var _ Engine = (*Tesseract)(nil)
