package analyst

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/llm"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/model"
)

// stubGen 按提示词开头分派到不同的回复
type stubGen struct {
	mu        sync.Mutex
	extract   func(prompt string) (string, error)
	synth     func(prompt string) (string, error)
	insights  func(prompt string) (string, error)
	callCount map[string]int
}

func (s *stubGen) Generate(_ context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	if s.callCount == nil {
		s.callCount = map[string]int{}
	}
	defer s.mu.Unlock()

	switch {
	case strings.HasPrefix(req.Prompt, "Extract specific"):
		s.callCount["extract"]++
		return s.extract(req.Prompt)
	case strings.HasPrefix(req.Prompt, "Synthesize information"):
		s.callCount["synth"]++
		return s.synth(req.Prompt)
	default:
		s.callCount["insights"]++
		return s.insights(req.Prompt)
	}
}

func fixed(text string, err error) func(string) (string, error) {
	return func(string) (string, error) { return text, err }
}

var longText = strings.Repeat("Lithium-ion batteries can be recycled with hydrometallurgical processes. ", 8)

func src(url string, content string, relevance float64, ok bool) *model.ExtractedSource {
	return &model.ExtractedSource{
		SearchResult:        model.SearchResult{Title: "Title " + url, URL: url, Snippet: "snippet"},
		ExtractedContent:    content,
		ContentLength:       len([]rune(content)),
		ExtractionSucceeded: ok,
		RelevanceScore:      relevance,
	}
}

func TestQuality_Tiers(t *testing.T) {
	tests := []struct {
		name string
		src  *model.ExtractedSource
		want float64
	}{
		{"long trusted", src("https://mit.edu/a", strings.Repeat("x", 600), 0.5, true), 0.3 + 0.2 + 0.2 + 0.1},
		{"medium", src("https://a.com", strings.Repeat("x", 250), 0.25, true), 0.2 + 0.1 + 0.2},
		{"short failed", src("https://a.com", strings.Repeat("x", 120), 0.1, false), 0.1 + 0.04},
		{"relevance capped", src("https://a.com", "tiny", 1.0, false), 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Quality(tt.src), 1e-9)
		})
	}
}

func TestSelectQuality_FiltersAndCaps(t *testing.T) {
	sources := []*model.ExtractedSource{
		src("https://a.com/short", "too short", 0.9, true),
		src("https://a.com/irrelevant", longText, 0.1, true),
		src("https://a.com/1", longText, 0.3, false),
		src("https://a.org/2", longText, 0.5, true),
		src("https://a.com/3", longText, 0.4, true),
		src("https://a.com/4", longText, 0.9, true),
		nil,
	}

	got := SelectQuality(sources)
	require.Len(t, got, 3)
	assert.Equal(t, "https://a.com/4", got[0].URL)
	assert.Equal(t, "https://a.org/2", got[1].URL)
	assert.Equal(t, "https://a.com/3", got[2].URL)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].QualityScore, got[i].QualityScore)
	}
	// 被过滤的来源也写入了质量分
	assert.Greater(t, sources[0].QualityScore, 0.0)
}

func scenarioSet() *model.SourceSet {
	set := model.NewSourceSet()
	set.Put("What recycling methods exist for EV batteries?", []*model.ExtractedSource{
		src("https://recycling.org/methods", longText, 0.6, true),
		src("https://news.com/ev", longText, 0.4, false),
	})
	set.Put("What companies lead EV battery recycling in 2024?", []*model.ExtractedSource{
		src("https://market.com/leaders", longText, 0.5, true),
	})
	return set
}

func TestAnalyze_AlwaysTimesOut(t *testing.T) {
	gen := &stubGen{
		extract:  fixed("", llm.ErrTimeout),
		synth:    fixed("", llm.ErrTimeout),
		insights: fixed("", llm.ErrTimeout),
	}
	set := scenarioSet()

	res := New(gen).Analyze(context.Background(), set)

	require.Len(t, res.Answers, 2)
	urls := set.URLs()
	for _, q := range set.Questions {
		ans := res.Answers[q]
		require.NotNil(t, ans)
		assert.Equal(t, 0.6, ans.ConfidenceScore)
		assert.Equal(t, model.MethodFallback, ans.Method)
		assert.NotEmpty(t, ans.AnswerText)
		for _, u := range ans.SourceURLs {
			assert.Contains(t, urls, u)
		}
	}
	assert.Equal(t, FallbackInsights(), res.Insights)
	assert.Equal(t, 3, res.SourcesAnalyzed)
}

func TestAnalyze_GeneratedAnswer(t *testing.T) {
	gen := &stubGen{
		extract: fixed(`Here you go: {"key_information": [{"fact": "Hydrometallurgy recovers 95% of cobalt", "relevance": "method", "confidence": 0.9}], "main_points": ["hydro"], "source_authority": {"appears_reliable": true, "reasoning": "org"}}`, nil),
		synth: fixed("```json\n"+`{"synthesized_answer": "Hydrometallurgy dominates.", "key_points": [{"point": "Hydro", "supporting_sources": ["https://invented.example"], "confidence": 0.8}], "overall_confidence": 0.85, "information_completeness": 0.7}`+"\n```", nil),
		insights: fixed(`{"key_insights": ["Recycling scales"], "thematic_connections": {"scale": ["q1"]}, "knowledge_synthesis": "ok"}`, nil),
	}
	set := scenarioSet()

	res := New(gen).Analyze(context.Background(), set)

	ans := res.Answers["What recycling methods exist for EV batteries?"]
	require.NotNil(t, ans)
	assert.Equal(t, model.MethodGenerated, ans.Method)
	assert.Equal(t, "Hydrometallurgy dominates.", ans.AnswerText)
	assert.Equal(t, 0.85, ans.ConfidenceScore)
	assert.Equal(t, 0.7, ans.CompletenessScore)
	// 来源 URL 只来自实际参与抽取的来源，而不是模型的输出
	assert.ElementsMatch(t, []string{"https://recycling.org/methods", "https://news.com/ev"}, ans.SourceURLs)
	assert.Equal(t, 2, ans.SourcesCount)
	assert.Equal(t, 2, ans.FactsCount)

	assert.Equal(t, []string{"Recycling scales"}, res.Insights.KeyInsights)
	assert.False(t, res.Insights.Fallback)
	assert.Equal(t, set.Questions, res.Questions)
}

func TestAnalyze_MalformedExtractionDropsSource(t *testing.T) {
	gen := &stubGen{
		extract:  fixed("I could not find anything useful.", nil),
		synth:    fixed(`{"synthesized_answer": "unused"}`, nil),
		insights: fixed("not json", nil),
	}

	res := New(gen).Analyze(context.Background(), scenarioSet())
	for _, ans := range res.Answers {
		assert.Equal(t, model.MethodInsufficient, ans.Method)
		assert.Equal(t, 0.0, ans.ConfidenceScore)
		assert.Empty(t, ans.SourceURLs)
		assert.True(t, strings.HasPrefix(ans.AnswerText, "No sufficient information found for: "))
	}
	assert.Zero(t, gen.callCount["synth"])
	assert.True(t, res.Insights.Fallback)
}

func TestAnalyze_SynthesisParseFailureFallsBack(t *testing.T) {
	gen := &stubGen{
		extract: fixed(`{"key_information": [
			{"fact": "Low confidence claim", "confidence": 0.3},
			{"fact": "Strong claim A.", "confidence": 0.95},
			{"fact": "", "confidence": 0.99},
			{"fact": "Strong claim B", "confidence": 0.8}
		]}`, nil),
		synth:    fixed(`{"synthesized_answer": ""}`, nil),
		insights: fixed("", errors.New("boom")),
	}

	set := model.NewSourceSet()
	set.Put("q", []*model.ExtractedSource{src("https://a.com", longText, 0.5, true)})

	res := New(gen).Analyze(context.Background(), set)
	ans := res.Answers["q"]
	assert.Equal(t, "Strong claim A. Strong claim B.", ans.AnswerText)
	assert.Equal(t, 0.6, ans.ConfidenceScore)
	assert.Equal(t, 3, ans.FactsCount)
	assert.Len(t, ans.KeyPoints, 2)
}

func TestAnalyze_EmptySourcesStillAnswered(t *testing.T) {
	gen := &stubGen{insights: fixed("", llm.ErrTimeout)}
	set := model.NewSourceSet()
	set.Put("nothing found", nil)

	res := New(gen).Analyze(context.Background(), set)
	require.Contains(t, res.Answers, "nothing found")
	assert.Equal(t, model.MethodInsufficient, res.Answers["nothing found"].Method)
	assert.Equal(t, model.QualityStat{}, res.QualityStats["nothing found"])
}

func TestAnalyze_ShortContentSkipsGeneration(t *testing.T) {
	gen := &stubGen{insights: fixed("", llm.ErrTimeout)}
	short := src("https://a.com", "short", 0.9, true)
	short.ContentLength = 150 // 完整长度达标但窗口内正文过短

	set := model.NewSourceSet()
	set.Put("q", []*model.ExtractedSource{short})

	res := New(gen).Analyze(context.Background(), set)
	assert.Zero(t, gen.callCount["extract"])
	assert.Equal(t, model.MethodInsufficient, res.Answers["q"].Method)
}

func TestFallbackAnswer_UsesAllFactsWhenNoneConfident(t *testing.T) {
	facts := []model.Fact{
		{Statement: "one", Confidence: 0.2, SourceURL: "u1"},
		{Statement: "two", Confidence: 0.5, SourceURL: "u2"},
		{Statement: "three", Confidence: 0.4, SourceURL: "u3"},
		{Statement: "four", Confidence: 0.1, SourceURL: "u4"},
	}
	ans := FallbackAnswer("q", facts, []string{"u1", "u2", "u2"})
	assert.Equal(t, "two. three. one.", ans.AnswerText)
	assert.Equal(t, []string{"u1", "u2"}, ans.SourceURLs)
	assert.Equal(t, 0.6, ans.ConfidenceScore)

	// 输入不被修改
	assert.Equal(t, "one", facts[0].Statement)
}

func TestSentences(t *testing.T) {
	got := Sentences("Version 3.5 is out. See example.com for details!\nNew line here? yes")
	assert.Equal(t, []string{"Version 3.5 is out.", "See example.com for details!", "New line here?", "yes"}, got)
}
