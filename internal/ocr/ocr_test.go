package ocr

import (
	"errors"
	"image"
	"reflect"
	"testing"
)

func tok(text string, conf float64, block, par, line int) WordToken {
	return WordToken{Text: text, Confidence: conf, Block: block, Paragraph: par, Line: line, BBox: image.Rect(0, 0, 10, 10)}
}

func TestFilter(t *testing.T) {
	tokens := []WordToken{
		tok("keep", 65, 1, 1, 1),
		tok("drop", 64.9, 1, 1, 1),
		tok("  ", 99, 1, 1, 1),
		tok("", 99, 1, 1, 1),
		tok("also", 100, 1, 1, 1),
	}

	t.Run("default threshold keeps boundary value", func(t *testing.T) {
		got := NewFilter(DefaultConfidenceThreshold).Apply(tokens)
		var texts []string
		for _, g := range got {
			texts = append(texts, g.Text)
		}
		want := []string{"keep", "also"}
		if !reflect.DeepEqual(texts, want) {
			t.Errorf("Apply() = %v, want %v", texts, want)
		}
	})

	t.Run("zero threshold still drops blank text", func(t *testing.T) {
		got := NewFilter(0).Apply(tokens)
		if len(got) != 3 {
			t.Errorf("expected 3 tokens, got %d", len(got))
		}
	})

	t.Run("does not modify input", func(t *testing.T) {
		before := append([]WordToken(nil), tokens...)
		NewFilter(90).Apply(tokens)
		if !reflect.DeepEqual(before, tokens) {
			t.Error("input slice was modified")
		}
	})
}

func TestClampThreshold(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-5, 0},
		{0, 0},
		{65, 65},
		{100, 100},
		{250, 100},
	}
	for _, tt := range tests {
		if got := ClampThreshold(tt.in); got != tt.want {
			t.Errorf("ClampThreshold(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPlainText(t *testing.T) {
	t.Run("rebuilds lines and paragraphs", func(t *testing.T) {
		tokens := []WordToken{
			tok("Hello", 90, 1, 1, 1),
			tok("world", 90, 1, 1, 1),
			tok("second", 90, 1, 1, 2),
			tok("line", 90, 1, 1, 2),
			tok("new", 90, 1, 2, 1),
			tok("para", 90, 1, 2, 1),
			tok("block", 90, 2, 1, 1),
		}
		want := "Hello world\nsecond line\n\nnew para\n\nblock"
		if got := PlainText(tokens); got != want {
			t.Errorf("PlainText() = %q, want %q", got, want)
		}
	})

	t.Run("skips blank tokens", func(t *testing.T) {
		tokens := []WordToken{tok(" ", 90, 1, 1, 1), tok("a", 90, 1, 1, 1)}
		if got := PlainText(tokens); got != "a" {
			t.Errorf("PlainText() = %q, want %q", got, "a")
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if got := PlainText(nil); got != "" {
			t.Errorf("PlainText(nil) = %q", got)
		}
	})
}

func TestParseTSV(t *testing.T) {
	tsv := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
		"1\t1\t0\t0\t0\t0\t0\t0\t2550\t3300\t-1\t\n" +
		"4\t1\t1\t1\t1\t0\t100\t100\t500\t40\t-1\t\n" +
		"5\t1\t1\t1\t1\t1\t100\t100\t100\t20\t96.5\t日本語\n" +
		"5\t1\t1\t1\t1\t2\t210\t100\t80\t20\t40.125\tnoise\n" +
		"5\t1\t1\t1\t1\t3\t300\t100\t80\t20\t91\t \n" +
		"5\t1\t1\t1\tbad\t4\t300\t100\t80\t20\t91\tx\n"

	tokens, err := ParseTSV([]byte(tsv))
	if err != nil {
		t.Fatalf("ParseTSV() error = %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("expected 2 word tokens, got %d: %+v", len(tokens), tokens)
	}

	first := tokens[0]
	if first.Text != "日本語" {
		t.Errorf("text = %q", first.Text)
	}
	if first.BBox != image.Rect(100, 100, 200, 120) {
		t.Errorf("bbox = %v", first.BBox)
	}
	if first.Confidence != 96.5 {
		t.Errorf("confidence = %v", first.Confidence)
	}
	if first.Block != 1 || first.Paragraph != 1 || first.Line != 1 || first.Word != 1 {
		t.Errorf("layout = %+v", first)
	}
	if tokens[1].Confidence != 40.125 {
		t.Errorf("second confidence = %v", tokens[1].Confidence)
	}
}

func TestParseTSV_Empty(t *testing.T) {
	for _, in := range []string{"", "level\tpage_num\n", "garbage without tabs\n"} {
		tokens, err := ParseTSV([]byte(in))
		if err != nil {
			t.Errorf("ParseTSV(%q) error = %v", in, err)
		}
		if len(tokens) != 0 {
			t.Errorf("ParseTSV(%q) = %d tokens, want 0", in, len(tokens))
		}
	}
}

func TestSanitizeArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"keeps whitelisted flags", []string{"--oem 1 --psm 6"}, []string{"--oem", "1", "--psm", "6"}},
		{"drops unknown flags with values", []string{"-c tessedit_char_whitelist=abc --psm 3"}, []string{"--psm", "3"}},
		{"drops shell metacharacters", []string{"--psm", "6;rm", "--oem", "1"}, []string{"--psm", "--oem", "1"}},
		{"flag without value", []string{"--dpi --psm 4"}, []string{"--dpi", "--psm", "4"}},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeArgs(tt.in...)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SanitizeArgs(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	t.Run("tesseract is registered", func(t *testing.T) {
		e, err := New(TesseractEngineName, Options{})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if e.Name() != TesseractEngineName {
			t.Errorf("Name() = %s", e.Name())
		}
	})

	t.Run("unknown engine", func(t *testing.T) {
		_, err := New("nope", Options{})
		if !errors.Is(err, ErrUnknownEngine) {
			t.Errorf("expected ErrUnknownEngine, got %v", err)
		}
	})

	t.Run("custom registration", func(t *testing.T) {
		mock := NewMockEngine()
		Register("test-mock", func(Options) (Engine, error) { return mock, nil })
		e, err := New("test-mock", Options{})
		if err != nil || e != Engine(mock) {
			t.Fatalf("New(test-mock) = %v, %v", e, err)
		}
	})
}

func TestNormalizeText(t *testing.T) {
	decomposed := "\u30ab\u3099" // katakana KA + combining voiced mark
	if got := NormalizeText(" " + decomposed + " "); got != "\u30ac" {
		t.Errorf("NormalizeText() = %q, want %q", got, "\u30ac")
	}
}
