// Package textnorm normalizes user queries and rule text: Unicode compatibility folding,
// zero-width stripping, synonym expansion and item-phrase extraction.
package textnorm

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// zeroWidth are formatting characters removed from all text before matching or embedding.
var zeroWidth = strings.NewReplacer(
	"\u200b", "", // zero width space
	"\u200c", "", // zero width non-joiner
	"\u200d", "", // zero width joiner
	"\u2060", "", // word joiner
	"\ufeff", "", // byte order mark
)

// Normalize applies NFKC, strips zero-width characters and trims surrounding space.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(StripZeroWidth(norm.NFKC.String(s)))
}

// StripZeroWidth removes zero-width and BOM characters.
func StripZeroWidth(s string) string {
	return zeroWidth.Replace(s)
}

// FoldKana maps katakana to hiragana so that ペット and ぺっと compare equal.
func FoldKana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'ァ' && r <= 'ヶ' {
			return r - 'ァ' + 'ぁ'
		}
		return r
	}, s)
}
