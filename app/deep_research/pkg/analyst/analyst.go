package analyst

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/fetch"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/llm"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/logger"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/metrics"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/model"
)

const (
	// 短于该长度的正文不送去抽取
	minExtractChars = 50
	// 单个来源送入模型的正文窗口
	contentWindow = 1500
	// 事实与答案序列化后的提示词上限
	factsWindow   = 2500
	answersWindow = 2500

	fallbackConfidence  = 0.6
	highConfidence      = 0.7
	heuristicConfidence = 0.5
	maxFallbackFacts    = 3
)

const extractionPrompt = `Extract specific, factual information from this content to answer the sub-question.

SUB-QUESTION: "%s"
SOURCE: %s

CONTENT:
%s

Extract key facts that directly answer the sub-question. Return ONLY JSON:
{
  "key_information": [
    {"fact": "specific factual statement", "relevance": "how this answers the question", "confidence": 0.9}
  ],
  "main_points": ["key point 1", "key point 2"],
  "source_authority": {"appears_reliable": true, "reasoning": "why reliable or not"}
}

Only extract factual, specific information directly relevant to the sub-question.`

const synthesisPrompt = `Synthesize information from multiple sources to comprehensively answer this question.

QUESTION: "%s"

EXTRACTED FACTS:
%s

SOURCES: %d analyzed

Create a comprehensive answer by:
1. Combining complementary information
2. Identifying the most reliable facts
3. Resolving contradictions
4. Providing complete coverage

Return ONLY JSON:
{
  "synthesized_answer": "comprehensive answer",
  "key_points": [
    {"point": "main point", "supporting_sources": ["url1", "url2"], "confidence": 0.9}
  ],
  "overall_confidence": 0.85,
  "information_completeness": 0.8
}`

const insightsPrompt = `Generate overall insights by connecting information across all sub-questions.

SUB-QUESTION ANSWERS:
%s

Identify:
1. Common themes across sub-questions
2. Connections between different aspects
3. Overarching insights

Return ONLY JSON:
{
  "key_insights": ["insight 1", "insight 2"],
  "thematic_connections": {"theme_1": ["sub-question 1", "sub-question 3"]},
  "knowledge_synthesis": "high-level synthesis"
}`

// 模型 JSON 契约
type extractionReply struct {
	KeyInformation []struct {
		Fact       string  `json:"fact"`
		Relevance  string  `json:"relevance"`
		Confidence float64 `json:"confidence"`
	} `json:"key_information"`
	MainPoints      []string `json:"main_points"`
	SourceAuthority struct {
		AppearsReliable bool   `json:"appears_reliable"`
		Reasoning       string `json:"reasoning"`
	} `json:"source_authority"`
}

type synthesisReply struct {
	SynthesizedAnswer       string           `json:"synthesized_answer"`
	KeyPoints               []model.KeyPoint `json:"key_points"`
	OverallConfidence       float64          `json:"overall_confidence"`
	InformationCompleteness float64          `json:"information_completeness"`
}

type insightsReply struct {
	KeyInsights         []string            `json:"key_insights"`
	ThematicConnections map[string][]string `json:"thematic_connections"`
	KnowledgeSynthesis  string              `json:"knowledge_synthesis"`
}

// sourceFacts 单个来源的抽取结果
type sourceFacts struct {
	source     *model.ExtractedSource
	facts      []model.Fact
	mainPoints []string
}

// Analyzer 跨来源抽取事实并综合子问题答案
type Analyzer struct {
	gen llm.Generator
}

// New 创建 Analyzer
func New(gen llm.Generator) *Analyzer {
	return &Analyzer{gen: gen}
}

// Analyze 按子问题顺序逐个分析，最后生成跨问题洞察。每个子问题都会得到一个答案
func (a *Analyzer) Analyze(ctx context.Context, set *model.SourceSet) *model.AnalysisResult {
	log := logger.Stage("analyst")
	res := &model.AnalysisResult{
		Answers:      make(map[string]*model.SubQuestionAnswer),
		QualityStats: make(map[string]model.QualityStat),
	}
	if set == nil {
		set = model.NewSourceSet()
	}

	for i, q := range set.Questions {
		sources := set.Sources[q]
		log.Infof("[%d/%d] 分析: %s", i+1, len(set.Questions), q)

		answer, stat := a.answerSafe(ctx, q, sources)
		res.Questions = append(res.Questions, q)
		res.Answers[q] = answer
		res.QualityStats[q] = stat
		res.SourcesAnalyzed += len(sources)

		log.Infof("[%d/%d] 基于 %d 个优质来源完成综合 (%s)", i+1, len(set.Questions), stat.QualitySources, answer.Method)
	}

	res.Insights = a.Insights(ctx, res)
	log.Infof("分析完成，共 %d 个来源", res.SourcesAnalyzed)
	return res
}

func (a *Analyzer) answerSafe(ctx context.Context, question string, sources []*model.ExtractedSource) (ans *model.SubQuestionAnswer, stat model.QualityStat) {
	defer func() {
		if r := recover(); r != nil {
			logger.Stage("analyst").Errorf("子问题分析异常 [%s]: %v", question, r)
			ans = model.NewSubQuestionAnswer(question, fmt.Sprintf("Analysis failed: %v", r), nil, nil, 0, 0, model.MethodAnalysisError)
			stat = model.QualityStat{TotalSources: len(sources)}
		}
	}()
	return a.AnswerQuestion(ctx, question, sources)
}

// AnswerQuestion 质量筛选、逐来源抽取、综合答案
func (a *Analyzer) AnswerQuestion(ctx context.Context, question string, sources []*model.ExtractedSource) (*model.SubQuestionAnswer, model.QualityStat) {
	quality := SelectQuality(sources)
	stat := model.QualityStat{TotalSources: len(sources), QualitySources: len(quality)}

	var extracted []sourceFacts
	for _, src := range quality {
		if sf, ok := a.extract(ctx, question, src); ok {
			extracted = append(extracted, sf)
		}
	}
	return a.synthesize(ctx, question, extracted), stat
}

// extract 对单个来源抽取事实。生成失败（超时、网络）时退化为启发式抽取，JSON 解析失败则丢弃该来源
func (a *Analyzer) extract(ctx context.Context, question string, src *model.ExtractedSource) (sourceFacts, bool) {
	log := logger.Stage("analyst")
	content := src.ExtractedContent
	if len([]rune(content)) < minExtractChars {
		return sourceFacts{}, false
	}

	text, err := a.gen.Generate(ctx, llm.Request{
		Prompt:      fmt.Sprintf(extractionPrompt, question, src.URL, fetch.Truncate(content, contentWindow)),
		MaxTokens:   1000,
		Temperature: 0.2,
	})
	if err != nil {
		log.Warnf("事实抽取生成失败，改用启发式抽取 [%s]: %v", src.URL, err)
		metrics.Fallback("analyst_extraction")
		facts := heuristicFacts(content, src)
		return sourceFacts{source: src, facts: facts}, len(facts) > 0
	}

	var reply extractionReply
	if err := llm.DecodeObject(text, &reply); err != nil {
		log.Warnf("事实抽取结果无法解析，跳过来源 [%s]: %v", src.URL, err)
		return sourceFacts{}, false
	}

	sf := sourceFacts{source: src, mainPoints: reply.MainPoints}
	for _, kf := range reply.KeyInformation {
		f, err := model.NewFact(kf.Fact, kf.Relevance, kf.Confidence, src.URL, src.Title)
		if err != nil {
			continue
		}
		sf.facts = append(sf.facts, f)
	}
	return sf, len(sf.facts) > 0
}

// synthesize 综合所有事实；生成或解析失败时按置信度拼接前 3 条事实
func (a *Analyzer) synthesize(ctx context.Context, question string, extracted []sourceFacts) *model.SubQuestionAnswer {
	if len(extracted) == 0 {
		return model.NewSubQuestionAnswer(question, "No sufficient information found for: "+question, nil, nil, 0, 0, model.MethodInsufficient)
	}

	var facts []model.Fact
	urls := make([]string, 0, len(extracted))
	for _, sf := range extracted {
		facts = append(facts, sf.facts...)
		urls = append(urls, sf.source.URL)
	}

	text, err := a.gen.Generate(ctx, llm.Request{
		Prompt:      fmt.Sprintf(synthesisPrompt, question, llm.BoundedJSON(facts, factsWindow), len(extracted)),
		MaxTokens:   1500,
		Temperature: 0.2,
	})
	if err == nil {
		var reply synthesisReply
		if err = llm.DecodeObject(text, &reply); err == nil && strings.TrimSpace(reply.SynthesizedAnswer) == "" {
			err = llm.ErrEmptyResponse
		}
		if err == nil {
			ans := model.NewSubQuestionAnswer(question, reply.SynthesizedAnswer, reply.KeyPoints, urls,
				reply.OverallConfidence, reply.InformationCompleteness, model.MethodGenerated)
			ans.FactsCount = len(facts)
			return ans
		}
	}

	logger.Stage("analyst").Warnf("答案综合失败，使用拼接回退 [%s]: %v", question, err)
	metrics.Fallback("analyst_synthesis")
	return FallbackAnswer(question, facts, urls)
}

// FallbackAnswer 确定性综合：按置信度排序，优先取置信度 >= 0.7 的事实，拼接前 3 条，置信度固定 0.6
func FallbackAnswer(question string, facts []model.Fact, sourceURLs []string) *model.SubQuestionAnswer {
	if len(facts) == 0 {
		return model.NewSubQuestionAnswer(question, "No sufficient information found for: "+question, nil, sourceURLs, 0, 0, model.MethodInsufficient)
	}

	sorted := make([]model.Fact, len(facts))
	copy(sorted, facts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	picked := make([]model.Fact, 0, maxFallbackFacts)
	for _, f := range sorted {
		if f.Confidence >= highConfidence {
			picked = append(picked, f)
		}
	}
	if len(picked) == 0 {
		picked = sorted
	}
	if len(picked) > maxFallbackFacts {
		picked = picked[:maxFallbackFacts]
	}

	parts := make([]string, 0, len(picked))
	points := make([]model.KeyPoint, 0, len(picked))
	for _, f := range picked {
		s := strings.TrimRight(f.Statement, ". ")
		parts = append(parts, s)
		points = append(points, model.KeyPoint{Point: s, SupportingSources: []string{f.SourceURL}, Confidence: f.Confidence})
	}

	ans := model.NewSubQuestionAnswer(question, strings.Join(parts, ". ")+".", points, sourceURLs,
		fallbackConfidence, 0, model.MethodFallback)
	ans.FactsCount = len(facts)
	return ans
}

// Insights 跨子问题洞察，失败时返回固定文案
func (a *Analyzer) Insights(ctx context.Context, res *model.AnalysisResult) model.Insights {
	answers := make(map[string]string, len(res.Answers))
	for q, ans := range res.Answers {
		answers[q] = ans.AnswerText
	}

	text, err := a.gen.Generate(ctx, llm.Request{
		Prompt:      fmt.Sprintf(insightsPrompt, llm.BoundedJSON(answers, answersWindow)),
		MaxTokens:   1000,
		Temperature: 0.3,
	})
	if err == nil {
		var reply insightsReply
		if err = llm.DecodeObject(text, &reply); err == nil && len(reply.KeyInsights) == 0 {
			err = llm.ErrEmptyResponse
		}
		if err == nil {
			return model.Insights{
				KeyInsights:         reply.KeyInsights,
				ThematicConnections: reply.ThematicConnections,
				KnowledgeSynthesis:  reply.KnowledgeSynthesis,
			}
		}
	}

	logger.Stage("analyst").Warnf("洞察生成失败，使用固定文案: %v", err)
	metrics.Fallback("analyst_insights")
	return FallbackInsights()
}

// FallbackInsights 洞察生成失败时的固定结果
func FallbackInsights() model.Insights {
	return model.Insights{
		KeyInsights:        []string{"Analysis completed across multiple sources"},
		KnowledgeSynthesis: "Information synthesized from multiple sources",
		Fallback:           true,
	}
}
