package textnorm

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultItemPhraseRunes bounds the length of an extracted item phrase.
const DefaultItemPhraseRunes = 32

var (
	quotedSpan = regexp.MustCompile(`「(.+?)」|『(.+?)』|“(.+?)”|"(.+?)"`)
	// particleOrPunct ends the subject of a question: topic/case particles or terminal punctuation.
	particleOrPunct = regexp.MustCompile(`[はをにでがともへ]|[?？。!！、]`)
	leadingQuotes   = regexp.MustCompile(`^[「『“"（(]+`)
	trailingQuotes  = regexp.MustCompile(`[」』”"）)]+$`)
	itemLine        = regexp.MustCompile(`(?m)^品目:[ \t]*(.*)$`)
)

// ExtractItemPhrase isolates the likely subject of a question. A quoted span wins; otherwise the
// text before the first particle or terminal punctuation is used, truncated to maxRunes
// (DefaultItemPhraseRunes when maxRunes <= 0). Falls back to the normalized query.
func ExtractItemPhrase(query string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = DefaultItemPhraseRunes
	}
	q := Normalize(query)
	if m := quotedSpan.FindStringSubmatch(q); m != nil {
		for _, g := range m[1:] {
			if g != "" {
				if s := stripQuotes(g); s != "" {
					return s
				}
			}
		}
	}
	head := q
	if loc := particleOrPunct.FindStringIndex(q); loc != nil {
		head = q[:loc[0]]
	}
	head = stripQuotes(head)
	if head == "" {
		return q
	}
	return strings.TrimSpace(truncateRunes(head, maxRunes))
}

func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	s = leadingQuotes.ReplaceAllString(s, "")
	s = trailingQuotes.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// ItemField parses the item line ("品目: ...") out of a rendered rule document.
func ItemField(content string) string {
	m := itemLine.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// Item match grades, strongest first.
const (
	MatchNone      = 0
	MatchSubstring = 1
	MatchSynonym   = 2
	MatchExact     = 3
)

// MatchItem grades a document's item field against a queried item phrase: exact equality after
// normalization, then synonym-group equivalence, then containment in either direction.
// A nil table skips the synonym grade.
func (t *SynonymTable) MatchItem(docItem, phrase string) int {
	a, b := Normalize(docItem), Normalize(phrase)
	if a == "" || b == "" {
		return MatchNone
	}
	if a == b {
		return MatchExact
	}
	if t != nil && t.Equivalent(a, b) {
		return MatchSynonym
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return MatchSubstring
	}
	return MatchNone
}
