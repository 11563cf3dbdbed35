package writer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/llm"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/model"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newWriter(gen llm.Generator) *Writer {
	w := New(gen)
	w.now = func() time.Time { return fixedNow }
	return w
}

func reply(text string, err error) llm.Generator {
	return llm.GeneratorFunc(func(context.Context, llm.Request) (string, error) {
		return text, err
	})
}

func sampleAnalysis() *model.AnalysisResult {
	q1 := "What recycling methods exist for EV batteries?"
	q2 := "What companies lead EV battery recycling in 2024?"
	return &model.AnalysisResult{
		Questions: []string{q1, q2},
		Answers: map[string]*model.SubQuestionAnswer{
			q1: model.NewSubQuestionAnswer(q1, "Hydrometallurgy and pyrometallurgy.", nil,
				[]string{"https://www.arxiv.org/abs/1", "https://recycling-today.com/a"}, 0.8, 0.7, model.MethodGenerated),
			q2: model.NewSubQuestionAnswer(q2, "Redwood Materials leads.", nil,
				[]string{"https://recycling-today.com/a", "https://energy.gov/report"}, 0.6, 0, model.MethodFallback),
		},
		SourcesAnalyzed: 5,
	}
}

func TestTitleFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://arxiv.org/abs/2401.1", "ArXiv Research Paper"},
		{"https://en.wikipedia.org/wiki/Battery", "Wikipedia"},
		{"https://www.batteryuniversity.com/learn", "Batteryuniversity"},
		{"https://recycling-today.com/a", "Recycling Today"},
		{"https://energy.gov/report", "Energy Gov"},
		{"", "Source"},
		{"not a url", "Source"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, TitleFromURL(tt.url))
		})
	}
}

func TestBuildCitationMap_FirstWriterWinsAndIdempotent(t *testing.T) {
	analysis := sampleAnalysis()

	first := BuildCitationMap(analysis)
	second := BuildCitationMap(analysis)

	assert.Equal(t, first, second)
	require.Len(t, first, 3)
	assert.Equal(t, analysis.Questions[0], first["https://recycling-today.com/a"].OriginSubQuestion)
	assert.Equal(t, analysis.Questions[1], first["https://energy.gov/report"].OriginSubQuestion)
	assert.Equal(t, "ArXiv Research Paper", first["https://www.arxiv.org/abs/1"].Title)

	assert.Empty(t, BuildCitationMap(nil))
}

func TestWrite_Success(t *testing.T) {
	draft := "# EV Battery Recycling\n## Executive Summary\nBatteries are recycled [Review](https://recycling-today.com/a).\n- item [ArXiv](https://www.arxiv.org/abs/1)\n\n\n\nEnd."
	analysis := sampleAnalysis()

	report := newWriter(reply(draft, nil)).Write(context.Background(), "EV Battery Recycling", analysis)

	require.NotNil(t, report)
	assert.True(t, strings.HasPrefix(report.MarkdownText,
		"---\nGenerated: 2026-01-02 03:04:05\nGenerator: Deep Research Engine\nFormat: Evidence-Backed Research Report\n---\n\n# EV Battery Recycling\n\n## Executive Summary\n\nBatteries"))
	assert.NotContains(t, report.MarkdownText, "\n\n\n")

	meta := report.Metadata
	assert.Equal(t, 2, meta.CitationCount)
	assert.Equal(t, 2, meta.SectionCount)
	assert.InDelta(t, 0.2, meta.ReportQualityScore, 1e-9)
	assert.Equal(t, 5, meta.SourcesAnalyzed)
	assert.Equal(t, 2, meta.SubQuestionsCovered)
	assert.Equal(t, len(strings.Fields(report.MarkdownText)), meta.WordCount)
	assert.Equal(t, fixedNow, meta.GeneratedAt)
	assert.False(t, meta.FallbackMode)
	assert.Equal(t, BuildCitationMap(analysis), report.CitationMap)
}

func TestWrite_QualityScoreCapped(t *testing.T) {
	draft := strings.Repeat("Fact [A](https://a.com). ", 15)
	report := newWriter(reply(draft, nil)).Write(context.Background(), "t", sampleAnalysis())
	assert.Equal(t, 15, report.Metadata.CitationCount)
	assert.Equal(t, 1.0, report.Metadata.ReportQualityScore)
}

func TestWrite_FallbackIsTotal(t *testing.T) {
	tests := []struct {
		name string
		gen  llm.Generator
	}{
		{"error", reply("", errors.New("service unavailable"))},
		{"timeout", reply("", llm.ErrTimeout)},
		{"blank", reply("  \n ", nil)},
		{"panic", llm.GeneratorFunc(func(context.Context, llm.Request) (string, error) {
			panic("drafting exploded")
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := sampleAnalysis()
			var report *model.Report
			require.NotPanics(t, func() {
				report = newWriter(tt.gen).Write(context.Background(), "EV Battery Recycling", analysis)
			})
			require.NotNil(t, report)
			assert.Equal(t, 0, report.Metadata.CitationCount)
			assert.True(t, report.Metadata.FallbackMode)
			assert.NotEmpty(t, report.MarkdownText)
			assert.Contains(t, report.MarkdownText, "Fallback Mode")
			assert.Contains(t, report.MarkdownText, "Retry report generation")
			assert.Equal(t, 2, report.Metadata.SubQuestionsCovered)
		})
	}
}

func TestWrite_NilAnalysis(t *testing.T) {
	report := newWriter(reply("", errors.New("down"))).Write(context.Background(), "topic", nil)
	assert.True(t, report.Metadata.FallbackMode)
	assert.Empty(t, report.CitationMap)
}

func TestWrite_CitationMapLimitedToAnswerSources(t *testing.T) {
	analysis := sampleAnalysis()
	allowed := map[string]struct{}{}
	for _, ans := range analysis.Answers {
		for _, u := range ans.SourceURLs {
			allowed[u] = struct{}{}
		}
	}

	// 模型引用了不存在的 URL，但引用表只来自答案
	report := newWriter(reply("# T\nClaim [X](https://invented.example).", nil)).Write(context.Background(), "T", analysis)
	for u := range report.CitationMap {
		assert.Contains(t, allowed, u)
	}
}

func TestFormat(t *testing.T) {
	in := "  # Title\nIntro text\n## Section\n* a\n* b\n\n\n\n\nTail  "
	want := "# Title\n\nIntro text\n\n## Section\n\n* a\n\n* b\n\nTail"
	got := Format(in)
	assert.Equal(t, want, got)
	assert.Equal(t, got, Format(got))
}

func TestCounters(t *testing.T) {
	md := "# A\ntext [one](https://1.com) and [two](http://2.org/x)\n## B\nnot # header\n[broken](\n"
	assert.Equal(t, 2, CountCitations(md))
	assert.Equal(t, 2, CountSections(md))
}
