package ocr

import "strings"

// PlainText rebuilds reading-order text from tokens of one page.
// Words on a line are joined by a space, lines by a newline, and a blank
// line separates blocks and paragraphs.
func PlainText(tokens []WordToken) string {
	var (
		lines   []string
		current []string
		started bool
		prev    WordToken
	)

	flush := func() {
		if len(current) > 0 {
			lines = append(lines, strings.Join(current, " "))
			current = current[:0]
		}
	}

	for _, tok := range tokens {
		text := strings.TrimSpace(tok.Text)
		if text == "" {
			continue
		}
		if started {
			switch {
			case tok.Block != prev.Block || tok.Paragraph != prev.Paragraph:
				flush()
				lines = append(lines, "")
			case tok.Line != prev.Line:
				flush()
			}
		}
		current = append(current, text)
		prev = tok
		started = true
	}
	flush()

	return strings.Join(lines, "\n")
}
