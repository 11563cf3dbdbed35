package collab

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/engine"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/llm"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/model"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/persona"
)

type call struct {
	query string
	opts  engine.RunOptions
}

// fakeResearcher 按角色返回预设结果，并记录调用
type fakeResearcher struct {
	mu      sync.Mutex
	calls   []call
	results map[string]func() *engine.Result
}

func (f *fakeResearcher) Research(_ context.Context, query string, opts engine.RunOptions) *engine.Result {
	f.mu.Lock()
	f.calls = append(f.calls, call{query, opts})
	fn := f.results[opts.Persona]
	f.mu.Unlock()
	if fn == nil {
		return &engine.Result{Query: query, Error: "no script"}
	}
	return fn()
}

func (f *fakeResearcher) callFor(id string) (call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.opts.Persona == id {
			return c, true
		}
	}
	return call{}, false
}

func okResult(answer string, points, urls []string, conf float64, insights ...string) func() *engine.Result {
	return func() *engine.Result {
		var kps []model.KeyPoint
		for _, p := range points {
			kps = append(kps, model.KeyPoint{Point: p, Confidence: conf})
		}
		ans := model.NewSubQuestionAnswer("q1", answer, kps, urls, conf, 0.5, model.MethodGenerated)
		return &engine.Result{
			Success: true,
			Analysis: &model.AnalysisResult{
				Questions: []string{"q1"},
				Answers:   map[string]*model.SubQuestionAnswer{"q1": ans},
				Insights:  model.Insights{KeyInsights: insights},
			},
			Report: &model.Report{MarkdownText: "---\nGenerated: now\n---\n\n# Report\n\n## Executive Summary\n" + answer + "\n\n## Details\nmore"},
		}
	}
}

func failed(msg string) func() *engine.Result {
	return func() *engine.Result { return &engine.Result{Error: msg} }
}

func reply(text string, err error) llm.Generator {
	return llm.GeneratorFunc(func(context.Context, llm.Request) (string, error) { return text, err })
}

func twoPersonas() *fakeResearcher {
	return &fakeResearcher{results: map[string]func() *engine.Result{
		"doctor": okResult("Metformin remains first-line therapy. It is cheap.",
			[]string{"battery recycling reduces cost"}, []string{"https://a.org", "https://b.org"}, 0.8),
		"market": okResult("The diabetes drug market grows quickly.",
			[]string{"battery recycling reduces emissions"}, []string{"https://b.org"}, 0.6, "Prices are falling"),
	}}
}

func TestRun_Parallel(t *testing.T) {
	r := twoPersonas()
	gen := reply(`{"executive_summary": "Both agree.", "detailed_synthesis": "Summary.\nWe recommend phased adoption of the therapy.\n# Should not count heading line", "key_findings": ["f1", "f2"]}`, nil)
	m := NewManager(r, gen, nil)

	s, err := m.Run(context.Background(), " diabetes drugs ", []string{"doctor", "market"}, "")
	require.NoError(t, err)

	_, err = uuid.Parse(s.ID)
	assert.NoError(t, err)
	assert.Equal(t, ModeParallel, s.Mode)
	assert.Equal(t, StatusCompleted, s.Status)
	assert.Equal(t, []string{"doctor", "market"}, s.PersonaIDs)
	require.Len(t, s.Results, 2)
	assert.Equal(t, "doctor", s.Results[0].PersonaID)
	assert.Equal(t, "Metformin remains first-line therapy. It is cheap.", s.Results[0].ExecutiveSummary)
	assert.Equal(t, []string{"Prices are falling", "battery recycling reduces emissions"}, s.Results[1].KeyInsights)

	for _, id := range []string{"doctor", "market"} {
		c, ok := r.callFor(id)
		require.True(t, ok)
		assert.Equal(t, "diabetes drugs", c.query)
		assert.Empty(t, c.opts.Background)
	}

	sc := s.SharedContext
	require.NotNil(t, sc)
	assert.Equal(t, []string{"https://a.org", "https://b.org"}, sc.UniqueSources)
	assert.InDelta(t, 0.7, sc.AverageConfidence, 1e-9)
	assert.Equal(t, 2, sc.PersonaCount)
	require.Len(t, sc.CrossReferences, 1)
	assert.Equal(t, "doctor", sc.CrossReferences[0].PersonaA)
	assert.InDelta(t, 0.6, sc.CrossReferences[0].Similarity, 1e-9)

	syn := s.Synthesis
	require.NotNil(t, syn)
	assert.Equal(t, SynthesisGenerated, syn.Method)
	assert.Equal(t, "Both agree.", syn.ExecutiveSummary)
	assert.Equal(t, []string{"f1", "f2"}, syn.KeyFindings)
	assert.Equal(t, []string{"We recommend phased adoption of the therapy."}, syn.Recommendations)
	assert.Equal(t, 2, syn.TotalSources)
	assert.Contains(t, syn.CrossPersonaInsights, "Correlation found between doctor and market findings")
	assert.Contains(t, syn.CrossPersonaInsights, "Multi-agent analysis provides 2-perspective validation")

	require.Len(t, s.Communications, 1)
	assert.Equal(t, ActionSynthesis, s.Communications[0].Action)
	assert.Equal(t, 1, s.Communications[0].CrossReferences)
	assert.False(t, s.EndedAt.Before(s.StartedAt))
}

func TestRun_SequentialSharesFindings(t *testing.T) {
	r := twoPersonas()
	m := NewManager(r, reply("", errors.New("down")), nil)

	s, err := m.Run(context.Background(), "diabetes drugs", []string{"doctor", "market"}, ModeSequential)
	require.NoError(t, err)
	require.Len(t, s.Results, 2)

	first, second := s.Results[0], s.Results[1]
	assert.False(t, first.ContextUsed)
	assert.Equal(t, "diabetes drugs", first.EnhancedQuery)
	assert.True(t, second.ContextUsed)
	assert.Equal(t, "Original Query: diabetes drugs\n\n"+
		"Previous Agent Findings:\n\n"+
		"Doctor Agent Insights:\n"+
		"• battery recycling reduces cost\n\n"+
		"As the market agent, provide your specialized analysis building on these findings.", second.EnhancedQuery)
	assert.Equal(t, []string{"Metformin remains first-line therapy"}, first.SpecialistFindings)

	c, ok := r.callFor("market")
	require.True(t, ok)
	assert.Equal(t, "diabetes drugs", c.query)
	assert.Contains(t, c.opts.Background, "Doctor Agent Insights:")
	assert.Contains(t, c.opts.Background, "• battery recycling reduces cost")

	require.Len(t, s.Communications, 3)
	assert.Equal(t, ActionSharedInsights, s.Communications[0].Action)
	assert.Equal(t, "doctor", s.Communications[0].PersonaID)
	assert.Equal(t, 0, s.Communications[0].ContextReceived)
	assert.Equal(t, 1, s.Communications[1].ContextReceived)
	assert.Equal(t, "market shared 2 insights", s.Communications[1].Summary)
	assert.Equal(t, ActionSynthesis, s.Communications[2].Action)
}

func TestRun_ManualSynthesisFallback(t *testing.T) {
	for name, gen := range map[string]llm.Generator{
		"error":   reply("", llm.ErrTimeout),
		"blank":   reply("   ", nil),
		"timeout": llm.WithDeadline(llm.GeneratorFunc(func(ctx context.Context, _ llm.Request) (string, error) { <-ctx.Done(); return "", ctx.Err() }), 10_000_000),
	} {
		t.Run(name, func(t *testing.T) {
			s, err := NewManager(twoPersonas(), gen, nil).Run(context.Background(), "diabetes drugs", []string{"doctor", "market"}, ModeParallel)
			require.NoError(t, err)
			syn := s.Synthesis
			require.NotNil(t, syn)
			assert.Equal(t, SynthesisManual, syn.Method)
			assert.Equal(t, "Based on research from 2 specialized agents analyzing 3 sources, Metformin remains first-line therapy.", syn.ExecutiveSummary)
			assert.Equal(t, []string{
				"Doctor Agent Analysis: Metformin remains first-line therapy",
				"Market Agent Analysis: The diabetes drug market grows quickly",
			}, syn.KeyFindings)
			assert.Equal(t, manualRecommendations, syn.Recommendations)
			assert.Equal(t, 3, syn.TotalSources)
			assert.True(t, strings.HasPrefix(syn.DetailedSynthesis, "# Comprehensive Research Analysis\n\n**Query:** diabetes drugs\n\n"))
			assert.Contains(t, syn.DetailedSynthesis, "## Doctor Agent Findings\n")
		})
	}
}

func TestRun_ProseSynthesis(t *testing.T) {
	text := "## Summary\nRecycling is scaling fast.\n\n- Capacity doubled\n- Costs fell\n1. Regulators should consider stricter targets"
	s, err := NewManager(twoPersonas(), reply(text, nil), nil).Run(context.Background(), "q", []string{"doctor"}, ModeParallel)
	require.NoError(t, err)

	syn := s.Synthesis
	assert.Equal(t, SynthesisGenerated, syn.Method)
	assert.Equal(t, "Recycling is scaling fast.", syn.ExecutiveSummary)
	assert.Equal(t, []string{"Capacity doubled", "Costs fell", "Regulators should consider stricter targets"}, syn.KeyFindings)
	assert.Equal(t, []string{"1. Regulators should consider stricter targets"}, syn.Recommendations)
	assert.NotContains(t, syn.CrossPersonaInsights, "Multi-agent analysis provides 1-perspective validation")
}

func TestRun_PartialAndTotalFailure(t *testing.T) {
	r := &fakeResearcher{results: map[string]func() *engine.Result{
		"doctor": okResult("Metformin remains first-line therapy.", nil, []string{"https://a.org"}, 0.9),
		"market": func() *engine.Result { panic("boom") },
	}}
	s, err := NewManager(r, reply("", errors.New("down")), nil).Run(context.Background(), "q", []string{"doctor", "market"}, ModeParallel)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, s.Status)
	market, ok := s.Result("market")
	require.True(t, ok)
	assert.False(t, market.Success)
	assert.Contains(t, market.Error, "panic: boom")
	assert.Equal(t, []string{"doctor"}, s.Synthesis.PersonasInvolved)

	called := false
	gen := llm.GeneratorFunc(func(context.Context, llm.Request) (string, error) {
		called = true
		return "", nil
	})
	r = &fakeResearcher{results: map[string]func() *engine.Result{"doctor": failed("search down"), "market": failed("search down")}}
	s, err = NewManager(r, gen, nil).Run(context.Background(), "q", []string{"doctor", "market"}, ModeSequential)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, s.Status)
	assert.Nil(t, s.Synthesis)
	assert.Nil(t, s.SharedContext)
	assert.False(t, called)
	assert.Empty(t, s.Communications)
}

func TestRun_CancelledSequential(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := twoPersonas()
	s, err := NewManager(r, reply("", nil), nil).Run(ctx, "q", []string{"doctor", "market"}, ModeSequential)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, s.Status)
	assert.Equal(t, context.Canceled.Error(), s.Error)
	assert.Empty(t, r.calls)
}

func TestRun_Validation(t *testing.T) {
	m := NewManager(twoPersonas(), reply("", nil), nil)
	ctx := context.Background()

	_, err := m.Run(ctx, " ", []string{"doctor"}, ModeParallel)
	assert.ErrorIs(t, err, engine.ErrNoQuery)
	_, err = m.Run(ctx, "q", nil, ModeParallel)
	assert.ErrorIs(t, err, ErrNoPersonas)
	_, err = m.Run(ctx, "q", []string{"doctor", "astrologer"}, ModeParallel)
	assert.ErrorIs(t, err, persona.ErrUnknownPersona)
	_, err = m.Run(ctx, "q", []string{"doctor"}, "round-robin")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("A b", "a B"))
	assert.Equal(t, 0.0, Similarity("", ""))
	assert.Equal(t, 0.0, Similarity("x y", "z"))
	assert.InDelta(t, 0.6, Similarity("battery recycling reduces cost", "battery recycling reduces emissions"), 1e-9)
}

func TestCommonThemes(t *testing.T) {
	got := commonThemes([]*PersonaResult{
		{Analysis: "Recycling, battery recycling. should should should"},
		{Analysis: "(recycling) cobalt battery and the", ExecutiveSummary: "nickel"},
	})
	assert.Equal(t, []string{"recycling", "battery", "cobalt", "nickel"}, got)
}

func TestCrossReferences_TopFive(t *testing.T) {
	a := &PersonaResult{PersonaID: "a", KeyInsights: []string{"w1 w2", "w1 w2 w3", "w1 w3"}}
	b := &PersonaResult{PersonaID: "b", KeyInsights: []string{"w1 w2", "w1 w3"}}
	refs := crossReferences([]*PersonaResult{a, b})
	require.Len(t, refs, 5)
	assert.Equal(t, 1.0, refs[0].Similarity)
	for i := 1; i < len(refs); i++ {
		assert.GreaterOrEqual(t, refs[i-1].Similarity, refs[i].Similarity)
	}
}

func TestExecutiveSummary(t *testing.T) {
	assert.Equal(t, "Key point.", executiveSummary("---\nGenerated: x\n---\n\n# T\n\n## Executive Summary\nKey point.\n\n## Next\nbody"))
	assert.Equal(t, "First para line two", executiveSummary("# Title\n\nFirst para\nline two\n\nSecond"))
	assert.Equal(t, "", executiveSummary(""))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Sequential ")
	require.NoError(t, err)
	assert.Equal(t, ModeSequential, m)
	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeParallel, m)
}
