package analyst

import (
	"strings"
	"unicode/utf8"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/model"
)

const (
	maxHeuristicFacts  = 3
	minSentenceRunes   = 20
	heuristicRelevance = "extracted without generation service"
)

// heuristicFacts 生成服务不可用时，取正文前几句足够长的句子作为低置信度事实
func heuristicFacts(content string, src *model.ExtractedSource) []model.Fact {
	var out []model.Fact
	for _, s := range Sentences(content) {
		if utf8.RuneCountInString(s) < minSentenceRunes {
			continue
		}
		f, err := model.NewFact(s, heuristicRelevance, heuristicConfidence, src.URL, src.Title)
		if err != nil {
			continue
		}
		out = append(out, f)
		if len(out) == maxHeuristicFacts {
			break
		}
	}
	return out
}

// Sentences 按 . ! ? 及换行切分句子，保留句末标点
func Sentences(text string) []string {
	var (
		out []string
		b   strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
		b.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			flush()
			continue
		}
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			// 只在标点后跟空白或结尾时断句，避免切开 3.5、example.com
			if i == len(runes)-1 || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				flush()
			}
		}
	}
	flush()
	return out
}
