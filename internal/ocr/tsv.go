package ocr

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"strconv"
	"strings"
)

// tesseract TSV columns.
const (
	colLevel = iota
	colPage
	colBlock
	colPar
	colLine
	colWord
	colLeft
	colTop
	colWidth
	colHeight
	colConf
	colText
	tsvColumns
)

// wordLevel is the TSV level for individual words.
const wordLevel = 5

// ParseTSV converts tesseract TSV output into word tokens.
// Rows that are not words, lack text, or carry a negative confidence are
// skipped. Malformed rows are skipped rather than failing the page.
func ParseTSV(data []byte) ([]WordToken, error) {
	var tokens []WordToken

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	header := true
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if header {
			header = false
			if strings.HasPrefix(line, "level") {
				continue
			}
		}
		if line == "" {
			continue
		}

		tok, ok := parseRow(strings.Split(line, "\t"))
		if ok {
			tokens = append(tokens, tok)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read tsv: %w", err)
	}
	return tokens, nil
}

func parseRow(cols []string) (WordToken, bool) {
	if len(cols) < tsvColumns-1 {
		return WordToken{}, false
	}

	var n [colConf]int
	for i := colLevel; i < colConf; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(cols[i]))
		if err != nil {
			return WordToken{}, false
		}
		n[i] = v
	}
	if n[colLevel] != wordLevel {
		return WordToken{}, false
	}

	conf, err := strconv.ParseFloat(strings.TrimSpace(cols[colConf]), 64)
	if err != nil || conf < 0 {
		return WordToken{}, false
	}

	var text string
	if len(cols) > colText {
		// Text may itself contain tabs in pathological output.
		text = NormalizeText(strings.Join(cols[colText:], " "))
	}
	if text == "" {
		return WordToken{}, false
	}

	x, y, w, h := n[colLeft], n[colTop], n[colWidth], n[colHeight]
	return WordToken{
		Text:       text,
		BBox:       image.Rect(x, y, x+w, y+h),
		Confidence: conf,
		Block:      n[colBlock],
		Paragraph:  n[colPar],
		Line:       n[colLine],
		Word:       n[colWord],
	}, true
}
