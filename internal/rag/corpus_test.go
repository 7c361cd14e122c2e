package rag

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

var corpusItems = []string{
	"アルミ缶", "ペットボトル", "乾電池", "蛍光灯", "新聞紙", "段ボール",
	"生ごみ", "傘", "自転車", "布団", "電子レンジ", "食用油",
	"割れたガラス", "植木鉢", "ライター", "体温計", "消火器", "タイヤ",
	"衣類", "靴", "ビデオテープ", "フライパン", "鍋", "包丁",
}

func corpusCSV() string {
	var b strings.Builder
	b.WriteString("品名,出し方,備考\n")
	for i, item := range corpusItems {
		fmt.Fprintf(&b, "%s,区分%02dの日に出す,メモ%02d\n", item, i+1, i+1)
	}
	return b.String()
}

func TestService_CorpusTopCandidate(t *testing.T) {
	f := newFixture(t, map[string]string{"kitakyushu.csv": corpusCSV()})
	svc := f.open(t)
	ctx := context.Background()

	if info := svc.SearchInfo(ctx); info.DocumentCount != len(corpusItems) {
		t.Fatalf("DocumentCount = %d, want %d", info.DocumentCount, len(corpusItems))
	} else if info.DiskUsageBytes <= 0 {
		t.Errorf("DiskUsageBytes = %d", info.DiskUsageBytes)
	}

	patterns := []string{"%sの捨て方", "%sは何ごみ？", "「%s」はどう出せばいい？"}
	for _, item := range corpusItems {
		for _, p := range patterns {
			q := fmt.Sprintf(p, item)
			t.Run(q, func(t *testing.T) {
				cands := svc.Search(ctx, q, 0)
				if len(cands) == 0 {
					t.Fatal("no candidates")
				}
				if got := cands[0].Document.Item(); got != item {
					t.Errorf("top item = %q, want %q", got, item)
				}
			})
		}
	}
}

func TestService_CorpusVerbatimAnswers(t *testing.T) {
	f := newFixture(t, map[string]string{"kitakyushu.csv": corpusCSV()})
	svc := f.open(t)
	ctx := context.Background()

	for i, item := range corpusItems {
		res := svc.BlockingQuery(ctx, item+"は何ごみ？", 0, ModeBlocking)
		want := fmt.Sprintf("区分%02dの日に出す", i+1)
		if !strings.HasPrefix(res.Response, want) {
			t.Errorf("%s: Response = %q, want prefix %q", item, res.Response, want)
		}
	}
	if n := len(f.runtime.Calls()); n != 0 {
		t.Errorf("language model called %d times", n)
	}
}
