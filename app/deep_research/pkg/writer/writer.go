package writer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/llm"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/logger"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/metrics"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/model"
)

const generatorName = "Deep Research Engine"

// 提示词中各部分的长度上限
const (
	answersLimit   = 3000
	insightsLimit  = 1000
	citationsLimit = 1500
)

var (
	citationRe     = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	sectionRe      = regexp.MustCompile(`(?m)^#+`)
	headerBeforeRe = regexp.MustCompile(`\n(#{1,6})`)
	headerAfterRe  = regexp.MustCompile(`(#{1,6}.*?)\n([^\n#])`)
	listRe         = regexp.MustCompile(`\n([ \t]*[-*+] )`)
	blankLinesRe   = regexp.MustCompile(`\n{3,}`)
)

const reportPrompt = `Generate a comprehensive, evidence-backed research report in Markdown format.

TOPIC: "%[1]s"

RESEARCH DATA:
%[2]s

INSIGHTS:
%[3]s

CITATION MAP:
%[4]s

CRITICAL REQUIREMENTS:
1. MANDATORY INLINE CITATIONS: Every factual statement MUST be followed by [Source Title](URL)
2. NO NUMBERED CITATIONS: Use inline format: [Title](URL)
3. Comprehensive Coverage: Address all aspects from research
4. Professional Structure: Use proper markdown headers and formatting
5. Evidence-Based: Every claim must have source attribution
6. Only cite URLs that appear in the CITATION MAP

STRUCTURE:

# %[1]s

## Executive Summary
[Key findings with citations]

## Introduction
[Context and scope with citations]

## Key Findings
[Main discoveries with heavy citations]

## Detailed Analysis
[In-depth examination with citations for every claim]

## Insights and Implications
[Cross-cutting insights with supporting citations]

## Conclusion
[Summary with key source citations]

## Sources
[Complete list of sources with URLs]

CITATION EXAMPLE:
- "Hydrometallurgical recycling recovers most of the cobalt [Battery Recycling Review](https://example.org/review)."

Generate a complete, professional report. EVERY factual statement must have a source citation.`

// Writer 根据分析结果生成带内联引用的 Markdown 报告
type Writer struct {
	gen llm.Generator
	now func() time.Time
}

// New 创建 Writer
func New(gen llm.Generator) *Writer {
	return &Writer{gen: gen, now: time.Now}
}

// Write 生成报告。起草阶段的任何错误或 panic 都转为回退报告，本方法不会失败
func (w *Writer) Write(ctx context.Context, topic string, analysis *model.AnalysisResult) (report *model.Report) {
	log := logger.Stage("writer")
	if analysis == nil {
		analysis = &model.AnalysisResult{}
	}
	citations := BuildCitationMap(analysis)

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("报告生成异常: %v", r)
			metrics.Fallback("writer")
			report = w.Fallback(topic, analysis, citations)
		}
	}()

	draft, err := w.draft(ctx, topic, analysis, citations)
	if err != nil {
		log.Errorf("报告生成失败，使用回退报告: %v", err)
		metrics.Fallback("writer")
		return w.Fallback(topic, analysis, citations)
	}

	now := w.now()
	text := header(now, generatorName) + Format(draft)
	meta := Metadata(topic, text, analysis)
	meta.GeneratedAt = now

	log.Infof("报告生成完成: %d 词, %d 处引用", meta.WordCount, meta.CitationCount)
	return &model.Report{MarkdownText: text, Metadata: meta, CitationMap: citations}
}

func (w *Writer) draft(ctx context.Context, topic string, analysis *model.AnalysisResult, citations model.CitationMap) (string, error) {
	answers := make(map[string]string, len(analysis.Answers))
	for q, ans := range analysis.Answers {
		answers[q] = ans.AnswerText
	}

	text, err := w.gen.Generate(ctx, llm.Request{
		Prompt: fmt.Sprintf(reportPrompt, topic,
			llm.BoundedJSON(answers, answersLimit),
			llm.BoundedJSON(analysis.Insights, insightsLimit),
			llm.BoundedJSON(citations, citationsLimit)),
		MaxTokens:   4000,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("draft report: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

// Format 规范标题和列表项前后的空行，并把连续 3 个以上换行压缩为一个空行
func Format(report string) string {
	out := strings.TrimSpace(report)
	out = headerBeforeRe.ReplaceAllString(out, "\n\n${1}")
	out = headerAfterRe.ReplaceAllString(out, "${1}\n\n${2}")
	out = listRe.ReplaceAllString(out, "\n\n${1}")
	out = blankLinesRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// CountCitations 统计 [Title](URL) 形式的内联引用
func CountCitations(report string) int {
	return len(citationRe.FindAllStringIndex(report, -1))
}

// CountSections 统计 Markdown 标题行
func CountSections(report string) int {
	return len(sectionRe.FindAllStringIndex(report, -1))
}

// Metadata 计算报告统计信息
func Metadata(topic, report string, analysis *model.AnalysisResult) model.ReportMetadata {
	citations := CountCitations(report)
	return model.ReportMetadata{
		WordCount:           len(strings.Fields(report)),
		CitationCount:       citations,
		SectionCount:        CountSections(report),
		SourcesAnalyzed:     analysis.SourcesAnalyzed,
		ReportQualityScore:  min(float64(citations)*0.1, 1.0),
		SubQuestionsCovered: len(analysis.Answers),
		UserTopic:           topic,
	}
}

func header(t time.Time, generator string) string {
	return fmt.Sprintf("---\nGenerated: %s\nGenerator: %s\nFormat: Evidence-Backed Research Report\n---\n\n",
		t.Format(time.DateTime), generator)
}

// Fallback 固定格式的回退报告，引用数恒为 0
func (w *Writer) Fallback(topic string, analysis *model.AnalysisResult, citations model.CitationMap) *model.Report {
	now := w.now()

	var b strings.Builder
	b.WriteString(header(now, generatorName+" (Fallback Mode)"))
	fmt.Fprintf(&b, "# %s\n\n", topic)
	b.WriteString("## Report Generation Notice\n\n")
	b.WriteString("This report was generated in fallback mode because the report draft could not be produced.\n\n")
	b.WriteString("## Research Summary\n\n")
	fmt.Fprintf(&b, "Research was completed with %d sub-questions analyzed across %d sources.\n\n",
		len(analysis.Answers), analysis.SourcesAnalyzed)
	for _, ans := range analysis.OrderedAnswers() {
		fmt.Fprintf(&b, "- %s\n", ans.Question)
	}
	b.WriteString("\n## Recommendations\n\n")
	b.WriteString("For a complete analysis:\n1. Review the collected research data\n2. Retry report generation\n")

	text := b.String()
	if citations == nil {
		citations = make(model.CitationMap)
	}
	return &model.Report{
		MarkdownText: text,
		Metadata: model.ReportMetadata{
			WordCount:           len(strings.Fields(text)),
			CitationCount:       0,
			SectionCount:        CountSections(text),
			SourcesAnalyzed:     analysis.SourcesAnalyzed,
			SubQuestionsCovered: len(analysis.Answers),
			GeneratedAt:         now,
			UserTopic:           topic,
			FallbackMode:        true,
		},
		CitationMap: citations,
	}
}
