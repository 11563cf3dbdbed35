package collab

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/llm"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/logger"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/metrics"
)

const (
	maxKeyFindings     = 7
	maxRecommendations = 5
	minRecommendChars  = 20
	manualExcerptChars = 500
)

var recommendWords = []string{"recommend", "suggest", "should", "consider", "advise"}

var manualRecommendations = []string{
	"Review individual agent findings",
	"Consider multiple perspectives",
	"Verify information from sources",
}

const synthesisPrompt = `Create a comprehensive research synthesis from multiple AI agents who analyzed WEB SEARCH RESULTS.

IMPORTANT: Each agent analyzed real web search results from the internet. Focus on the web-based findings, data, and sources they discovered.

Provide a comprehensive research report with:
1. Executive Summary (3-4 sentences summarizing the web-based findings)
2. Key Findings from Internet Sources (5-7 bullet points with specific data/facts from websites)
3. Cross-Agent Insights (insights that emerged from combining different web sources)
4. Source-Based Confidence Assessment
5. Actionable Recommendations based on the web research
6. Website and source references where applicable

Multi-Agent Web Research Data:
%s

Respond in JSON format:
{
  "executive_summary": "3-4 sentences",
  "detailed_synthesis": "full synthesis in markdown, including recommendations",
  "key_findings": ["finding 1", "finding 2"]
}

Remember: This synthesis should reflect comprehensive internet research findings, not general knowledge.`

type synthesisReply struct {
	ExecutiveSummary  string   `json:"executive_summary"`
	DetailedSynthesis string   `json:"detailed_synthesis"`
	KeyFindings       []string `json:"key_findings"`
}

// synthesize 合并所有角色的结果。生成失败或为空时退回确定性的人工综合
func (m *Manager) synthesize(ctx context.Context, query string, results []*PersonaResult, sc *SharedContext) *Synthesis {
	log := logger.Stage("collab")

	text, err := m.gen.Generate(ctx, llm.Request{Prompt: fmt.Sprintf(synthesisPrompt, synthesisData(query, results, sc))})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		if err == nil {
			err = llm.ErrEmptyResponse
		}
		log.Warnf("综合生成失败，使用人工综合: %v", err)
		metrics.Fallback("collab_synthesis")
		return ManualSynthesis(query, results, sc, m.now())
	}

	var reply synthesisReply
	if err := llm.DecodeObject(text, &reply); err != nil || (reply.DetailedSynthesis == "" && reply.ExecutiveSummary == "") {
		// 非 JSON 的回复按正文处理
		reply = synthesisReply{
			ExecutiveSummary:  firstParagraph(text),
			DetailedSynthesis: text,
			KeyFindings:       bulletLines(text),
		}
	}

	return &Synthesis{
		ExecutiveSummary:     strings.TrimSpace(reply.ExecutiveSummary),
		DetailedSynthesis:    strings.TrimSpace(reply.DetailedSynthesis),
		KeyFindings:          firstUnique(reply.KeyFindings, maxKeyFindings),
		CrossPersonaInsights: crossPersonaInsights(sc),
		ConfidenceAssessment: sc.AverageConfidence,
		Recommendations:      Recommendations(reply.DetailedSynthesis),
		PersonasInvolved:     personaIDs(results),
		TotalSources:         len(sc.UniqueSources),
		Timestamp:            m.now(),
		Method:               SynthesisGenerated,
	}
}

func synthesisData(query string, results []*PersonaResult, sc *SharedContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original Query: %s\n\nAgent Findings Summary:\n", query)
	for _, r := range results {
		fmt.Fprintf(&b, "\n%s:\n", r.PersonaName)
		fmt.Fprintf(&b, "Summary: %s\n", r.ExecutiveSummary)
		fmt.Fprintf(&b, "Key Insights: %s\n", strings.Join(r.KeyInsights, ", "))
		fmt.Fprintf(&b, "Confidence: %.1f%%\n", r.Confidence*100)
	}
	if len(sc.CommonThemes) > 0 {
		fmt.Fprintf(&b, "\nCommon Themes: %s\n", strings.Join(sc.CommonThemes, ", "))
	}
	return b.String()
}

// ManualSynthesis 用每个角色分析的第一句话拼出综合结论，结构与生成结果相同
func ManualSynthesis(query string, results []*PersonaResult, sc *SharedContext, now time.Time) *Synthesis {
	var (
		findings []string
		firsts   []string
		sources  int
	)
	for _, r := range results {
		if r.Analysis != "" {
			first := strings.TrimSuffix(strings.TrimSpace(strings.Split(r.Analysis, ". ")[0]), ".")
			findings = append(findings, fmt.Sprintf("%s Analysis: %s", r.PersonaName, first))
			firsts = append(firsts, first)
		}
		sources += len(r.Sources)
	}

	summary := fmt.Sprintf("Based on research from %d specialized agents analyzing %d sources, ", len(results), sources)
	if len(firsts) > 0 {
		summary += firsts[0] + "."
	} else {
		summary += fmt.Sprintf("comprehensive analysis of '%s' has been completed.", query)
	}

	var b strings.Builder
	b.WriteString("# Comprehensive Research Analysis\n\n")
	fmt.Fprintf(&b, "**Query:** %s\n\n", query)
	fmt.Fprintf(&b, "**Research Summary:** This analysis combines insights from %d specialized AI agents who analyzed %d web sources.\n\n", len(results), sources)
	for _, r := range results {
		if r.Analysis == "" {
			continue
		}
		excerpt := r.Analysis
		if rs := []rune(excerpt); len(rs) > manualExcerptChars {
			excerpt = string(rs[:manualExcerptChars])
		}
		fmt.Fprintf(&b, "## %s Findings\n%s...\n\n", r.PersonaName, excerpt)
	}

	if len(findings) > maxKeyFindings {
		findings = findings[:maxKeyFindings]
	}
	return &Synthesis{
		ExecutiveSummary:     summary,
		DetailedSynthesis:    b.String(),
		KeyFindings:          findings,
		CrossPersonaInsights: crossPersonaInsights(sc),
		ConfidenceAssessment: sc.AverageConfidence,
		Recommendations:      append([]string(nil), manualRecommendations...),
		PersonasInvolved:     personaIDs(results),
		TotalSources:         sources,
		Timestamp:            now,
		Method:               SynthesisManual,
	}
}

func crossPersonaInsights(sc *SharedContext) []string {
	var out []string
	if len(sc.CommonThemes) > 0 {
		out = append(out, "Common research themes identified: "+strings.Join(sc.CommonThemes[:min(3, len(sc.CommonThemes))], ", "))
	}
	for _, ref := range sc.CrossReferences[:min(3, len(sc.CrossReferences))] {
		out = append(out, fmt.Sprintf("Correlation found between %s and %s findings", ref.PersonaA, ref.PersonaB))
	}
	if sc.PersonaCount > 1 {
		out = append(out, fmt.Sprintf("Multi-agent analysis provides %d-perspective validation", sc.PersonaCount))
	}
	return out
}

// Recommendations 提取综合正文中的建议行
func Recommendations(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) <= minRecommendChars || strings.HasPrefix(line, "#") {
			continue
		}
		lower := strings.ToLower(line)
		for _, w := range recommendWords {
			if strings.Contains(lower, w) {
				out = append(out, line)
				break
			}
		}
		if len(out) == maxRecommendations {
			break
		}
	}
	return out
}

// bulletLines 列表项，最多 maxKeyFindings 条
func bulletLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		t := strings.TrimSpace(line)
		item := ""
		switch {
		case strings.HasPrefix(t, "- "), strings.HasPrefix(t, "* "), strings.HasPrefix(t, "• "):
			_, item, _ = strings.Cut(t, " ")
		default:
			if num, rest, ok := strings.Cut(t, ". "); ok && num != "" && strings.Trim(num, "0123456789") == "" {
				item = rest
			}
		}
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
		if len(out) == maxKeyFindings {
			break
		}
	}
	return out
}

func personaIDs(results []*PersonaResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.PersonaID)
	}
	return out
}
