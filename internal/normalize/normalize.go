// Package normalize cleans raw extracted text into the stable form the
// chunk builder computes offsets against.
//
// Normalization is a pure function: identical input always yields
// identical output. Chunk boundary offsets reference positions in the
// normalized text, so any change to these rules invalidates stored
// char_start/char_end values and requires reprocessing.
package normalize

import (
	"strings"
	"unicode"
)

// ligatures maps typographic ligatures and smart punctuation to their
// plain ASCII equivalents. PDF extractors emit these frequently.
var ligatures = map[rune]string{
	'ﬀ': "ff",
	'ﬁ': "fi",
	'ﬂ': "fl",
	'ﬃ': "ffi",
	'ﬄ': "ffl",
	'‘': "'",
	'’': "'",
	'“': `"`,
	'”': `"`,
	'–': "-",
	'—': "-",
	' ': " ",
}

// Normalize cleans raw extracted text. It collapses runs of whitespace
// (tabs, form feeds, carriage returns) to single spaces while
// preserving paragraph breaks as a single newline, strips non-printable
// control characters, and folds common ligature and quote variants.
//
// Normalize never fails; empty input yields empty output.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))

	// pending tracks whitespace seen since the last printable rune:
	// 0 = none, 1 = space, 2 = paragraph break.
	pending := 0
	wrote := false

	for _, r := range raw {
		switch {
		case r == '\n':
			if pending < 2 {
				pending = 2
			}
		case unicode.IsSpace(r):
			if pending < 1 {
				pending = 1
			}
		case unicode.IsControl(r):
			// Strip stray control characters (NUL, VT, ESC, ...).
		default:
			if wrote {
				switch pending {
				case 1:
					b.WriteByte(' ')
				case 2:
					b.WriteByte('\n')
				}
			}
			pending = 0
			wrote = true

			if repl, ok := ligatures[r]; ok {
				b.WriteString(repl)
			} else {
				b.WriteRune(r)
			}
		}
	}

	return b.String()
}
