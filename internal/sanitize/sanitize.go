// Package sanitize maps display text to the subset a thermal printer with a
// limited code page can print.
package sanitize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/unicode/norm"
)

// Accents printed as a trailing apostrophe, the way Italian is written on
// devices without accented glyphs.
const (
	combiningGrave = '\u0300'
	combiningAcute = '\u0301'
)

var nonSpacing = runes.In(unicode.Mn)

var substitutions = map[rune]string{
	'€':      " Euro",
	'£':      " GBP",
	'‘':      "'",
	'’':      "'",
	'‚':      "'",
	'“':      "\"",
	'”':      "\"",
	'„':      "\"",
	'«':      "\"",
	'»':      "\"",
	'–':      "-",
	'—':      "-",
	'…':      "...",
	'\u00a0': " ",
	'\t':     " ",
	'ß':      "ss",
	'æ':      "ae",
	'Æ':      "AE",
	'ø':      "o",
	'Ø':      "O",
	'°':      "o",
}

// Sanitize folds diacritics and substitutes symbols so the result contains
// only printable ASCII and newlines. It is idempotent.
func Sanitize(s string) string {
	if isPrintable(s) {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s))

	var prev rune
	for _, r := range norm.NFD.String(s) {
		switch {
		case r == combiningGrave || r == combiningAcute:
			if unicode.IsLetter(prev) {
				sb.WriteByte('\'')
			}
		case nonSpacing.Contains(r):
			// Dropped: the base letter was already written.
		case r == '\n' || (r >= 0x20 && r < 0x7f):
			sb.WriteRune(r)
		default:
			if sub, ok := substitutions[r]; ok {
				sb.WriteString(sub)
			} else {
				sb.WriteByte('?')
			}
		}
		if !nonSpacing.Contains(r) {
			prev = r
		}
	}

	return sb.String()
}

func isPrintable(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\n' && (c < 0x20 || c >= 0x7f) {
			return false
		}
	}
	return true
}
