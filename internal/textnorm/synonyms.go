package textnorm

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// DefaultSynonyms is the built-in canonical -> variants table for common disposal items.
func DefaultSynonyms() map[string][]string {
	return map[string][]string{
		"アルミ缶":   {"アルミかん", "アルミカン", "あるみかん", "あるみ缶"},
		"ペットボトル": {"ペット", "ぺっと", "ペットぼとる"},
		"プラスチック": {"プラ", "ぷら", "ぷらすちっく"},
		"テレビ":    {"TV", "tv", "ティーブイ", "てれび"},
		"エアコン":   {"エアーコンディショナー", "クーラー", "えあこん"},
		"缶":      {"かん", "カン"},
		"瓶":      {"びん", "ビン", "ガラス瓶"},
		"冷蔵庫":    {"れいぞうこ", "冷凍庫"},
		"洗濯機":    {"せんたくき"},
		"携帯電話":   {"携帯", "スマホ", "スマートフォン", "けいたい"},
		"乾電池":    {"電池", "でんち", "バッテリー"},
	}
}

// SynonymTable groups interchangeable spellings. Lookups are bidirectional: every member of a
// group can stand in for every other member.
type SynonymTable struct {
	groups [][]string
	group  map[string]int
	// members sorted longest first so that scanning prefers アルミ缶 over 缶.
	members []string
}

// NewSynonymTable builds a table from one or more canonical -> variants maps.
// Terms are normalized; a term already present in another group merges the two entries.
func NewSynonymTable(tables ...map[string][]string) *SynonymTable {
	t := &SynonymTable{group: make(map[string]int)}
	for _, table := range tables {
		canonicals := make([]string, 0, len(table))
		for c := range table {
			canonicals = append(canonicals, c)
		}
		sort.Strings(canonicals)
		for _, c := range canonicals {
			t.add(c, table[c])
		}
	}
	for m := range t.group {
		t.members = append(t.members, m)
	}
	sort.Slice(t.members, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(t.members[i]), utf8.RuneCountInString(t.members[j])
		if li != lj {
			return li > lj
		}
		return t.members[i] < t.members[j]
	})
	return t
}

// DefaultTable returns a table built from DefaultSynonyms.
func DefaultTable() *SynonymTable {
	return NewSynonymTable(DefaultSynonyms())
}

func (t *SynonymTable) add(canonical string, variants []string) {
	terms := make([]string, 0, len(variants)+1)
	for _, s := range append([]string{canonical}, variants...) {
		if s = Normalize(s); s != "" {
			terms = append(terms, s)
		}
	}
	if len(terms) == 0 {
		return
	}
	gi := -1
	for _, s := range terms {
		if g, ok := t.group[s]; ok {
			gi = g
			break
		}
	}
	if gi < 0 {
		gi = len(t.groups)
		t.groups = append(t.groups, nil)
	}
	for _, s := range terms {
		if _, ok := t.group[s]; ok {
			continue
		}
		t.group[s] = gi
		t.groups[gi] = append(t.groups[gi], s)
	}
}

// Len returns the number of synonym groups.
func (t *SynonymTable) Len() int { return len(t.groups) }

// Canonical returns the canonical spelling for term, or term itself when unknown.
func (t *SynonymTable) Canonical(term string) string {
	if g, ok := t.group[term]; ok {
		return t.groups[g][0]
	}
	return term
}

// Equivalent reports whether a and b are distinct spellings of the same group.
func (t *SynonymTable) Equivalent(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	ga, okA := t.group[a]
	gb, okB := t.group[b]
	return okA && okB && ga == gb
}

type segment struct {
	text   string
	member bool
}

// segments splits s into literal runs and synonym members, longest match first.
func (t *SynonymTable) segments(s string) []segment {
	var out []segment
	lit := 0
	for i := 0; i < len(s); {
		matched := ""
		for _, m := range t.members {
			if strings.HasPrefix(s[i:], m) {
				matched = m
				break
			}
		}
		if matched == "" {
			_, size := utf8.DecodeRuneInString(s[i:])
			i += size
			continue
		}
		if lit < i {
			out = append(out, segment{text: s[lit:i]})
		}
		out = append(out, segment{text: matched, member: true})
		i += len(matched)
		lit = i
	}
	if lit < len(s) {
		out = append(out, segment{text: s[lit:]})
	}
	return out
}

// step returns every string produced by substituting all occurrences of one member of s
// with another member of the same group.
func (t *SynonymTable) step(s string) []string {
	segs := t.segments(s)
	var found []string
	seen := make(map[string]bool)
	for _, sg := range segs {
		if sg.member && !seen[sg.text] {
			seen[sg.text] = true
			found = append(found, sg.text)
		}
	}
	var out []string
	for _, from := range found {
		for _, to := range t.groups[t.group[from]] {
			if to == from {
				continue
			}
			var b strings.Builder
			for _, sg := range segs {
				if sg.member && sg.text == from {
					b.WriteString(to)
				} else {
					b.WriteString(sg.text)
				}
			}
			out = append(out, b.String())
		}
	}
	return out
}

// Expand returns query followed by every variant reachable through synonym substitution,
// in discovery order. The result is closed under substitution, so expanding any of its
// elements again yields nothing new. Callers that retrieve per variant bound the count themselves.
func (t *SynonymTable) Expand(query string) []string {
	out := []string{query}
	seen := map[string]struct{}{query: {}}
	for i := 0; i < len(out); i++ {
		for _, next := range t.step(out[i]) {
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			out = append(out, next)
		}
	}
	return out
}

// ExpandAll expands every query and returns the de-duplicated union, preserving order.
func (t *SynonymTable) ExpandAll(queries []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, q := range queries {
		for _, v := range t.Expand(q) {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
