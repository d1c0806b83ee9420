package protocol

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
)

// maxComponentDepth bounds recursion into nested "extra" components.
const maxComponentDepth = 32

var formatCodes = regexp.MustCompile(`(?s)§.`)

// Description flattens a raw JSON description, either a bare string or a rich-text
// component tree, into one normalized line.
func Description(raw []byte) string {
	result := gjson.ParseBytes(raw)
	if !result.Exists() {
		return ""
	}

	var sb strings.Builder
	flatten(result, &sb, 0)

	return NormalizeText(sb.String())
}

func flatten(r gjson.Result, sb *strings.Builder, depth int) {
	if depth > maxComponentDepth {
		return
	}

	switch {
	case r.Type == gjson.String:
		sb.WriteString(r.String())

	case r.IsArray():
		r.ForEach(func(_, v gjson.Result) bool {
			flatten(v, sb, depth+1)
			return true
		})

	case r.IsObject():
		if text := r.Get("text"); text.Exists() {
			sb.WriteString(text.String())
		} else if key := r.Get("translate"); key.Exists() {
			sb.WriteString(key.String())
		}

		if extra := r.Get("extra"); extra.IsArray() {
			flatten(extra, sb, depth+1)
		}
	}
}

// NormalizeText strips legacy § formatting codes and control characters and collapses
// line breaks and tabs to spaces. NormalizeText(NormalizeText(s)) == NormalizeText(s).
func NormalizeText(s string) string {
	s = formatCodes.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n', r == '\r', r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, s)

	return strings.TrimSpace(s)
}
