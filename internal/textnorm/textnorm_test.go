package textnorm

import (
	"sort"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"fullwidth ascii", "ＴＶ　", "TV"},
		{"halfwidth katakana", "ｱﾙﾐ缶", "アルミ缶"},
		{"zero width", "ペット\u200bボトル\ufeff", "ペットボトル"},
		{"joiners", "\u200c缶\u200d\u2060", "缶"},
		{"trims", "  瓶\n", "瓶"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFoldKana(t *testing.T) {
	if got := FoldKana("ペットボトル"); got != "ぺっとぼとる" {
		t.Errorf("FoldKana = %q", got)
	}
	if got := FoldKana("缶abc"); got != "缶abc" {
		t.Errorf("non-katakana should be unchanged, got %q", got)
	}
}

func TestSynonymTable_ExpandBothDirections(t *testing.T) {
	table := DefaultTable()

	got := table.Expand("テレビの捨て方")
	if got[0] != "テレビの捨て方" {
		t.Errorf("first variant should be the query itself, got %q", got[0])
	}
	if !contains(got, "TVの捨て方") || !contains(got, "てれびの捨て方") {
		t.Errorf("canonical -> variant expansion missing: %v", got)
	}

	got = table.Expand("スマホの出し方")
	if !contains(got, "携帯電話の出し方") {
		t.Errorf("variant -> canonical expansion missing: %v", got)
	}
	if !contains(got, "けいたいの出し方") {
		t.Errorf("variant -> sibling variant expansion missing: %v", got)
	}
}

func TestSynonymTable_LongestMatchWins(t *testing.T) {
	table := DefaultTable()
	got := table.Expand("アルミ缶")
	if contains(got, "アルミかん") == false {
		t.Fatalf("expected アルミかん in %v", got)
	}
	// 缶 inside アルミ缶 is not a separate occurrence.
	for _, v := range got {
		if v == "アルミカン" || v == "アルミかん" || v == "あるみ缶" || v == "あるみかん" || v == "アルミ缶" {
			continue
		}
		t.Errorf("unexpected variant %q", v)
	}
}

func TestSynonymTable_ExpandIdempotent(t *testing.T) {
	table := DefaultTable()
	queries := []string{
		"アルミ缶はどう捨てますか",
		"ペットボトルとびん",
		"ガラスびん",
		"TVとエアコンと冷蔵庫",
		"スマホの電池",
		"アルミ缶とペットボトルとテレビと冷蔵庫",
		"関係のない質問",
		"",
	}
	for _, q := range queries {
		once := table.Expand(q)
		twice := table.ExpandAll(once)
		if !sameSet(once, twice) {
			t.Errorf("Expand not idempotent for %q:\nonce=%v\ntwice=%v", q, once, twice)
		}
	}
}

func TestSynonymTable_ExpandIsNotTruncated(t *testing.T) {
	got := DefaultTable().Expand("アルミ缶とペットボトルとテレビと冷蔵庫")
	if len(got) <= 64 {
		t.Errorf("len(Expand) = %d, want the full closure", len(got))
	}
	if !contains(got, "あるみかんとぺっととtvとれいぞうこ") {
		t.Error("closure misses the all-variant spelling")
	}
}

func TestSynonymTable_NoMatchReturnsQuery(t *testing.T) {
	got := DefaultTable().Expand("粗大ごみ")
	if len(got) != 1 || got[0] != "粗大ごみ" {
		t.Errorf("Expand = %v", got)
	}
}

func TestSynonymTable_MergeAndEquivalent(t *testing.T) {
	table := NewSynonymTable(DefaultSynonyms(), map[string][]string{
		"スプレー缶": {"スプレーかん", "エアゾール缶"},
		"電池":    {"ボタン電池"},
	})
	if !table.Equivalent("スプレーかん", "エアゾール缶") {
		t.Error("custom group should be equivalent")
	}
	// 電池 already belongs to the 乾電池 group, so ボタン電池 joins it.
	if !table.Equivalent("乾電池", "ボタン電池") {
		t.Error("merged group should be equivalent")
	}
	if table.Canonical("でんち") != "乾電池" {
		t.Errorf("Canonical(でんち) = %q", table.Canonical("でんち"))
	}
	if table.Equivalent("缶", "瓶") {
		t.Error("different groups must not be equivalent")
	}
	if table.Equivalent("", "") {
		t.Error("empty strings are never equivalent")
	}
}

func TestExtractItemPhrase(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"quoted span", "「スプレー缶」の出し方を教えて", "スプレー缶"},
		{"double bracket", "『乾電池』について", "乾電池"},
		{"topic particle", "ペットボトルはどう出しますか？", "ペットボトル"},
		{"object particle", "テレビを捨てたい", "テレビ"},
		{"punctuation", "アルミ缶？", "アルミ缶"},
		{"no particle", "アルミ缶の捨て方", "アルミ缶の捨て方"},
		{"leading particle falls back", "でんち", "でんち"},
		{"fullwidth question mark normalized", "瓶？", "瓶"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractItemPhrase(tt.query, 0); got != tt.want {
				t.Errorf("ExtractItemPhrase(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestExtractItemPhrase_Truncates(t *testing.T) {
	long := "ああああああああああいいいいいいいいいいううううううううううええええええええええ"
	got := ExtractItemPhrase(long, 0)
	if n := len([]rune(got)); n != DefaultItemPhraseRunes {
		t.Errorf("phrase has %d runes, want %d", n, DefaultItemPhraseRunes)
	}
	if got := ExtractItemPhrase(long, 5); got != "あああああ" {
		t.Errorf("custom bound: got %q", got)
	}
}

func TestItemField(t *testing.T) {
	content := "品目: アルミ缶\n出し方: 資源化物\n備考: \nエリア: 全域"
	if got := ItemField(content); got != "アルミ缶" {
		t.Errorf("ItemField = %q", got)
	}
	if got := ItemField("品目:\n出し方: x"); got != "" {
		t.Errorf("empty item line should give empty field, got %q", got)
	}
	if got := ItemField("plain text"); got != "" {
		t.Errorf("no item line: got %q", got)
	}
}

func TestSynonymTable_MatchItem(t *testing.T) {
	table := DefaultTable()
	tests := []struct {
		item, phrase string
		want         int
	}{
		{"アルミ缶", "アルミ缶", MatchExact},
		{"アルミ缶", "ｱﾙﾐ缶", MatchExact},
		{"テレビ", "TV", MatchSynonym},
		{"スプレー缶", "スプレー", MatchSubstring},
		{"缶", "スプレー缶", MatchSubstring},
		{"冷蔵庫", "洗濯機", MatchNone},
		{"", "洗濯機", MatchNone},
	}
	for _, tt := range tests {
		if got := table.MatchItem(tt.item, tt.phrase); got != tt.want {
			t.Errorf("MatchItem(%q, %q) = %d, want %d", tt.item, tt.phrase, got, tt.want)
		}
	}
	var none *SynonymTable
	if got := none.MatchItem("テレビ", "TV"); got != MatchNone {
		t.Errorf("nil table synonym grade = %d", got)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sameSet(a, b []string) bool {
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
