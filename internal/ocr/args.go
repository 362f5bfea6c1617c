package ocr

import (
	"regexp"
	"strings"
)

var (
	shellMeta = regexp.MustCompile("[;&|`$(){}<>!\\\\\"'\n\r]")

	allowedFlags = map[string]bool{
		"--oem":          true,
		"--psm":          true,
		"--dpi":          true,
		"-l":             true,
		"--tessdata-dir": true,
	}
)

// SanitizeArgs keeps only whitelisted tesseract flags and their values.
// Tokens carrying shell metacharacters are dropped, as is anything not on
// the whitelist. Input may be a single string with spaces or pre-split.
func SanitizeArgs(raw ...string) []string {
	var tokens []string
	for _, r := range raw {
		tokens = append(tokens, strings.Fields(r)...)
	}

	var out []string
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if shellMeta.MatchString(tok) || !allowedFlags[tok] {
			continue
		}
		out = append(out, tok)
		if i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], "-") {
			if val := tokens[i+1]; !shellMeta.MatchString(val) {
				out = append(out, val)
			}
			i++
		}
	}
	return out
}

// hasFlag reports whether args already set flag.
func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}
