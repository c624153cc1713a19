// Package polisher normalizes child text before it is embedded.
package polisher

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/docrag/internal/chunk"
)

// space matches the runes unicode.IsSpace accepts; RE2's \s is ASCII only.
const space = `[\s\v\x{85}\p{Z}]`

var (
	spaceRun         = regexp.MustCompile(space + `+`)
	spaceBeforePunct = regexp.MustCompile(space + `+([.,!?;:])`)
	bulletGlyph      = regexp.MustCompile(`•` + space + `*`)
)

// Polish returns a copy of children with each text normalized. Order,
// indices, parent references and embeddings are untouched.
func Polish(children []chunk.Child) []chunk.Child {
	out := make([]chunk.Child, len(children))
	for i, c := range children {
		c.Text = Text(c.Text)
		out[i] = c
	}
	return out
}

// Text applies, in order: whitespace collapse and trim, removal of
// whitespace before punctuation, capitalization of the first letter, and
// bullet glyph replacement. Text(Text(s)) == Text(s).
func Text(s string) string {
	s = tidy(s)
	s = capitalizeFirst(s)
	if strings.Contains(s, "•") {
		// A replaced bullet can leave a trailing space or one before punctuation.
		s = tidy(bulletGlyph.ReplaceAllString(s, "- "))
	}
	return s
}

func tidy(s string) string {
	s = strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
	return spaceBeforePunct.ReplaceAllString(s, "$1")
}

func capitalizeFirst(s string) string {
	for i, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		if !unicode.IsLower(r) {
			return s
		}
		return s[:i] + string(unicode.ToUpper(r)) + s[i+utf8.RuneLen(r):]
	}
	return s
}
