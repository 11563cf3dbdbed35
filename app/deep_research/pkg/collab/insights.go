package collab

import (
	"fmt"
	"sort"
	"strings"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/engine"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/persona"
)

const (
	defaultConfidence   = 0.7
	maxKeyInsights      = 5
	maxSpecialist       = 3
	minSpecialistChars  = 20
	maxThemes           = 5
	minThemeWordLen     = 5
	maxCrossReferences  = 5
	similarityThreshold = 0.3
)

const themeTrim = `.,!?";()[]{}`

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields("the and or but in on at to for of with by is are was were be been have has had do does did will would could should may might can must shall this that these those a an") {
		stopWords[w] = struct{}{}
	}
}

// digest 从单个角色的研究结果中提取可共享的内容
func digest(p persona.Persona, res *engine.Result) *PersonaResult {
	out := &PersonaResult{
		PersonaID:   p.ID,
		PersonaName: p.Name,
		Success:     res.Success,
		Error:       res.Error,
	}
	if !res.Success {
		return out
	}
	if res.Report != nil {
		out.Report = res.Report.MarkdownText
		out.ExecutiveSummary = executiveSummary(res.Report.MarkdownText)
	}
	out.Confidence = defaultConfidence
	if res.Analysis == nil {
		return out
	}

	answers := res.Analysis.OrderedAnswers()
	var (
		texts []string
		urls  []string
		total float64
	)
	seenURL := make(map[string]struct{})
	var insights []string
	if !res.Analysis.Insights.Fallback {
		insights = append(insights, res.Analysis.Insights.KeyInsights...)
	}
	for _, ans := range answers {
		if ans.AnswerText != "" {
			texts = append(texts, ans.AnswerText)
		}
		for _, kp := range ans.KeyPoints {
			insights = append(insights, kp.Point)
		}
		for _, u := range ans.SourceURLs {
			if _, ok := seenURL[u]; ok {
				continue
			}
			seenURL[u] = struct{}{}
			urls = append(urls, u)
		}
		total += ans.ConfidenceScore
	}
	if len(answers) > 0 {
		out.Confidence = total / float64(len(answers))
	}
	out.Analysis = strings.Join(texts, " ")
	out.KeyInsights = firstUnique(insights, maxKeyInsights)
	out.Sources = urls
	out.SpecialistFindings = specialistFindings(out.Analysis, p.SpecialistKeywords)
	return out
}

func firstUnique(items []string, limit int) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, min(len(items), limit))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
		if len(out) == limit {
			break
		}
	}
	return out
}

// executiveSummary 取报告的 Executive Summary 小节，没有时取正文第一段
func executiveSummary(md string) string {
	md = stripFrontMatter(md)
	lines := strings.Split(md, "\n")

	for i, line := range lines {
		t := strings.TrimSpace(line)
		if !strings.HasPrefix(t, "#") || !strings.Contains(strings.ToLower(t), "executive summary") {
			continue
		}
		var body []string
		for _, l := range lines[i+1:] {
			if strings.HasPrefix(strings.TrimSpace(l), "#") {
				break
			}
			body = append(body, l)
		}
		if s := strings.TrimSpace(strings.Join(body, "\n")); s != "" {
			return s
		}
	}
	return firstParagraph(md)
}

func stripFrontMatter(md string) string {
	if !strings.HasPrefix(md, "---\n") {
		return md
	}
	if end := strings.Index(md[4:], "\n---\n"); end >= 0 {
		return md[4+end+5:]
	}
	return md
}

// firstParagraph 第一个非标题段落
func firstParagraph(text string) string {
	for _, block := range strings.Split(text, "\n\n") {
		var kept []string
		for _, l := range strings.Split(block, "\n") {
			if t := strings.TrimSpace(l); t != "" && !strings.HasPrefix(t, "#") {
				kept = append(kept, t)
			}
		}
		if len(kept) > 0 {
			return strings.Join(kept, " ")
		}
	}
	return ""
}

// specialistFindings 包含角色专业关键词的句子
func specialistFindings(analysis string, keywords []string) []string {
	var out []string
	for _, s := range strings.Split(analysis, ".") {
		s = strings.TrimSpace(s)
		if len(s) <= minSpecialistChars {
			continue
		}
		lower := strings.ToLower(s)
		for _, k := range keywords {
			if strings.Contains(lower, k) {
				out = append(out, s)
				break
			}
		}
		if len(out) == maxSpecialist {
			break
		}
	}
	return out
}

// shareInsights 汇总所有成功角色的洞察、来源与共同主题
func shareInsights(results []*PersonaResult) *SharedContext {
	sc := &SharedContext{
		AverageConfidence: defaultConfidence,
		PersonaCount:      len(results),
	}
	seen := make(map[string]struct{})
	var total float64
	for _, r := range results {
		sc.AllInsights = append(sc.AllInsights, r.KeyInsights...)
		for _, u := range r.Sources {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			sc.UniqueSources = append(sc.UniqueSources, u)
		}
		total += r.Confidence
	}
	if len(results) > 0 {
		sc.AverageConfidence = total / float64(len(results))
	}
	sc.CommonThemes = commonThemes(results)
	sc.CrossReferences = crossReferences(results)
	return sc
}

// commonThemes 按词频取分析文本中的高频词，去停用词，并列时按首次出现顺序
func commonThemes(results []*PersonaResult) []string {
	var b strings.Builder
	for _, r := range results {
		b.WriteString(r.Analysis)
		b.WriteString(" ")
		b.WriteString(r.ExecutiveSummary)
		b.WriteString(" ")
	}

	counts := make(map[string]int)
	var order []string
	for _, w := range strings.Fields(strings.ToLower(b.String())) {
		w = strings.Trim(w, themeTrim)
		if len(w) < minThemeWordLen {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > maxThemes {
		order = order[:maxThemes]
	}
	return order
}

// crossReferences 两两比较角色洞察，保留相似度最高的若干对
func crossReferences(results []*PersonaResult) []CrossReference {
	var refs []CrossReference
	for i, a := range results {
		for _, b := range results[i+1:] {
			for _, ia := range a.KeyInsights {
				for _, ib := range b.KeyInsights {
					if sim := Similarity(ia, ib); sim > similarityThreshold {
						refs = append(refs, CrossReference{
							PersonaA:   a.PersonaID,
							PersonaB:   b.PersonaID,
							InsightA:   ia,
							InsightB:   ib,
							Similarity: sim,
						})
					}
				}
			}
		}
	}
	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].Similarity > refs[j].Similarity
	})
	if len(refs) > maxCrossReferences {
		refs = refs[:maxCrossReferences]
	}
	return refs
}

// Similarity 小写词集合的 Jaccard 相似度
func Similarity(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	union := len(wa)
	inter := 0
	for w := range wb {
		if _, ok := wa[w]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

// priorFindings 前序角色的要点摘要
func priorFindings(prior []*PersonaResult) string {
	if len(prior) == 0 {
		return ""
	}
	parts := []string{"Previous Agent Findings:"}
	for _, r := range prior {
		parts = append(parts, fmt.Sprintf("\n%s Insights:", r.PersonaName))
		for _, kp := range r.KeyInsights {
			parts = append(parts, "• "+kp)
		}
	}
	return strings.Join(parts, "\n")
}

// EnhancedQuery 顺序模式下带有前序角色发现的查询
func EnhancedQuery(query string, prior []*PersonaResult, p persona.Persona) string {
	if len(prior) == 0 {
		return query
	}
	return fmt.Sprintf("Original Query: %s\n\n%s\n\nAs the %s agent, provide your specialized analysis building on these findings.",
		query, priorFindings(prior), p.ID)
}
