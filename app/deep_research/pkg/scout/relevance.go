package scout

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/model"
)

// 相关度权重
const (
	titleWeight   = 0.30
	contentWeight = 0.40
	snippetWeight = 0.20
	successBonus  = 0.05
	domainBonus   = 0.05
)

// terms 按空白切分并转小写，只保留长度大于 2 的词
func terms(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if utf8.RuneCountInString(w) > 2 {
			out[w] = struct{}{}
		}
	}
	return out
}

func overlap(query, field map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	n := 0
	for w := range query {
		if _, ok := field[w]; ok {
			n++
		}
	}
	return float64(n) / float64(len(query))
}

// Relevance 计算来源与子问题的相关度，结果在 [0,1]
func Relevance(question string, src *model.ExtractedSource) float64 {
	q := terms(question)
	if len(q) == 0 {
		return 0
	}

	score := overlap(q, terms(src.Title))*titleWeight +
		overlap(q, terms(src.ExtractedContent))*contentWeight +
		overlap(q, terms(src.Snippet))*snippetWeight

	if src.ExtractionSucceeded {
		score += successBonus
	}
	if model.IsTrustedDomain(src.URL) {
		score += domainBonus
	}
	return model.Clamp01(score)
}

// Rank 为每个来源打分并按相关度降序排列
func Rank(question string, sources []*model.ExtractedSource) []*model.ExtractedSource {
	for _, s := range sources {
		s.RelevanceScore = Relevance(question, s)
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].RelevanceScore > sources[j].RelevanceScore
	})
	return sources
}

// NormalizeURL 去重用的 URL 归一化：小写、去掉协议和末尾斜杠
func NormalizeURL(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	return strings.TrimRight(u, "/")
}

// Dedupe 按归一化 URL 去重，保留第一次出现的条目，丢弃空 URL
func Dedupe(results []model.SearchResult) []model.SearchResult {
	seen := make(map[string]struct{}, len(results))
	out := make([]model.SearchResult, 0, len(results))
	for _, r := range results {
		key := NormalizeURL(r.URL)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
