// Package fonts finds and validates the font used for invisible text.
package fonts

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gofont "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/font/opentype"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	// ErrNoFont is returned when no usable font could be located.
	ErrNoFont = errors.New("no usable font found")

	// ErrUnsupportedFont marks fonts the PDF writer cannot embed: font
	// collections and CFF-flavoured OpenType.
	ErrUnsupportedFont = errors.New("unsupported font format")
)

// EmbeddedName is the family name of the built-in fallback font.
const EmbeddedName = "GoRegular"

// requiredTables are needed by the TrueType subsetter in the PDF writer.
var requiredTables = []string{"glyf", "loca", "cmap", "hmtx"}

// Font is a validated TrueType font ready for embedding.
type Font struct {
	Name string
	Path string // empty for the embedded fallback
	Data []byte

	face *gofont.Face
}

// Embedded reports whether f is the built-in fallback.
func (f *Font) Embedded() bool {
	return f.Path == ""
}

// Covers reports whether the font maps r to a glyph.
func (f *Font) Covers(r rune) bool {
	if f == nil || f.face == nil {
		return false
	}
	_, ok := f.face.NominalGlyph(r)
	return ok
}

// CoversAll reports whether every non-space rune of s has a glyph.
func (f *Font) CoversAll(s string) bool {
	for _, r := range s {
		if r == ' ' {
			continue
		}
		if !f.Covers(r) {
			return false
		}
	}
	return true
}

// Load reads and validates the font at path.
func Load(path string) (*Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	f, err := Parse(name, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.Path = path
	return f, nil
}

// Parse validates data as an embeddable TrueType font.
func Parse(name string, data []byte) (*Font, error) {
	loader, err := opentype.NewLoader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFont, err)
	}
	for _, table := range requiredTables {
		tag := opentype.NewTag(table[0], table[1], table[2], table[3])
		if !loader.HasTable(tag) {
			return nil, fmt.Errorf("%w: missing %s table", ErrUnsupportedFont, table)
		}
	}

	face, err := gofont.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFont, err)
	}

	return &Font{
		Name: sanitizeName(name),
		Data: data,
		face: face,
	}, nil
}

// Fallback returns the embedded Go Regular font. It covers Latin text only.
func Fallback() (*Font, error) {
	return Parse(EmbeddedName, goregular.TTF)
}

// sanitizeName keeps the family name usable as a PDF font key.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r < 0x80 && (r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "Font"
	}
	return b.String()
}
