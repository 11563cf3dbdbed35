package model

import (
	"errors"
	"strings"
	"time"
)

// SearchResult 搜索结果条目，由搜索客户端产生，返回后不再修改
type SearchResult struct {
	Title          string `json:"title"`
	URL            string `json:"url"`
	Snippet        string `json:"snippet"`
	SourceQuery    string `json:"source_query"`
	SearchPosition int    `json:"search_position"`
}

// ExtractedSource 带正文与评分的来源，Scout 写入正文和相关度，Analyst 写入质量分
type ExtractedSource struct {
	SearchResult
	ExtractedContent    string  `json:"extracted_content"`
	ContentLength       int     `json:"content_length"`
	ExtractionSucceeded bool    `json:"extraction_succeeded"`
	ExtractionError     string  `json:"extraction_error,omitempty"`
	RelevanceScore      float64 `json:"relevance_score"`
	QualityScore        float64 `json:"quality_score"`
}

// SourceSet 子问题到来源列表的映射，Questions 保留子问题顺序
type SourceSet struct {
	Questions []string                      `json:"questions"`
	Sources   map[string][]*ExtractedSource `json:"sources"`
}

// NewSourceSet 创建空的 SourceSet
func NewSourceSet() *SourceSet {
	return &SourceSet{Sources: make(map[string][]*ExtractedSource)}
}

// Put 写入一个子问题的来源，重复写入只覆盖列表不改变顺序
func (s *SourceSet) Put(question string, sources []*ExtractedSource) {
	if _, ok := s.Sources[question]; !ok {
		s.Questions = append(s.Questions, question)
	}
	if sources == nil {
		sources = []*ExtractedSource{}
	}
	s.Sources[question] = sources
}

// Total 所有子问题的来源总数
func (s *SourceSet) Total() int {
	n := 0
	for _, q := range s.Questions {
		n += len(s.Sources[q])
	}
	return n
}

// URLs 返回全部来源 URL 的集合
func (s *SourceSet) URLs() map[string]struct{} {
	urls := make(map[string]struct{})
	for _, q := range s.Questions {
		for _, src := range s.Sources[q] {
			urls[src.URL] = struct{}{}
		}
	}
	return urls
}

// Fact 单个来源抽取出的原子事实，只聚合不合并
type Fact struct {
	Statement            string  `json:"fact"`
	RelevanceExplanation string  `json:"relevance"`
	Confidence           float64 `json:"confidence"`
	SourceURL            string  `json:"source_url"`
	SourceTitle          string  `json:"source_title"`
}

// ErrEmptyStatement 事实内容为空
var ErrEmptyStatement = errors.New("fact statement is empty")

// NewFact 校验并构造 Fact，置信度被限制在 [0,1]
func NewFact(statement, relevance string, confidence float64, sourceURL, sourceTitle string) (Fact, error) {
	statement = strings.TrimSpace(statement)
	if statement == "" {
		return Fact{}, ErrEmptyStatement
	}
	return Fact{
		Statement:            statement,
		RelevanceExplanation: strings.TrimSpace(relevance),
		Confidence:           Clamp01(confidence),
		SourceURL:            sourceURL,
		SourceTitle:          sourceTitle,
	}, nil
}

// KeyPoint 子问题答案中的要点
type KeyPoint struct {
	Point             string   `json:"point"`
	SupportingSources []string `json:"supporting_sources"`
	Confidence        float64  `json:"confidence"`
}

// SubQuestionAnswer 单个子问题的综合答案，由 Analyst 持有
type SubQuestionAnswer struct {
	Question          string     `json:"question"`
	AnswerText        string     `json:"answer"`
	KeyPoints         []KeyPoint `json:"key_points"`
	SourceURLs        []string   `json:"source_urls"`
	ConfidenceScore   float64    `json:"confidence_score"`
	CompletenessScore float64    `json:"completeness_score"`
	SourcesCount      int        `json:"sources_count"`
	FactsCount        int        `json:"facts_count"`
	Method            string     `json:"method"`
}

// 答案生成方式
const (
	MethodGenerated     = "generated"
	MethodFallback      = "fallback_concatenation"
	MethodInsufficient  = "insufficient_information"
	MethodAnalysisError = "analysis_error"
)

// NewSubQuestionAnswer 校验并构造答案：URL 去重去空，分数限制在 [0,1]，要点去除空项
func NewSubQuestionAnswer(question, answer string, keyPoints []KeyPoint, sourceURLs []string, confidence, completeness float64, method string) *SubQuestionAnswer {
	seen := make(map[string]struct{}, len(sourceURLs))
	urls := make([]string, 0, len(sourceURLs))
	for _, u := range sourceURLs {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	points := make([]KeyPoint, 0, len(keyPoints))
	for _, kp := range keyPoints {
		kp.Point = strings.TrimSpace(kp.Point)
		if kp.Point == "" {
			continue
		}
		kp.Confidence = Clamp01(kp.Confidence)
		points = append(points, kp)
	}
	return &SubQuestionAnswer{
		Question:          question,
		AnswerText:        strings.TrimSpace(answer),
		KeyPoints:         points,
		SourceURLs:        urls,
		ConfidenceScore:   Clamp01(confidence),
		CompletenessScore: Clamp01(completeness),
		SourcesCount:      len(urls),
		Method:            method,
	}
}

// Insights 跨子问题洞察
type Insights struct {
	KeyInsights         []string            `json:"key_insights"`
	ThematicConnections map[string][]string `json:"thematic_connections,omitempty"`
	KnowledgeSynthesis  string              `json:"knowledge_synthesis"`
	Fallback            bool                `json:"fallback,omitempty"`
}

// QualityStat 单个子问题的来源筛选统计
type QualityStat struct {
	TotalSources   int `json:"total_sources"`
	QualitySources int `json:"quality_sources"`
}

// AnalysisResult Analyst 的输出
type AnalysisResult struct {
	Questions       []string                      `json:"questions"`
	Answers         map[string]*SubQuestionAnswer `json:"sub_question_answers"`
	Insights        Insights                      `json:"synthesized_insights"`
	QualityStats    map[string]QualityStat        `json:"source_quality_analysis"`
	SourcesAnalyzed int                           `json:"total_sources_analyzed"`
}

// OrderedAnswers 按子问题顺序返回答案
func (a *AnalysisResult) OrderedAnswers() []*SubQuestionAnswer {
	out := make([]*SubQuestionAnswer, 0, len(a.Answers))
	for _, q := range a.Questions {
		if ans, ok := a.Answers[q]; ok {
			out = append(out, ans)
		}
	}
	return out
}

// CitationEntry 引用元数据，以 URL 为键
type CitationEntry struct {
	URL               string `json:"url"`
	Title             string `json:"title"`
	OriginSubQuestion string `json:"question_context"`
}

// CitationMap URL 到引用元数据的映射，每个 URL 至多一条
type CitationMap map[string]CitationEntry

// ReportMetadata 报告元数据，JSON 键名保持稳定
type ReportMetadata struct {
	WordCount           int       `json:"word_count"`
	CitationCount       int       `json:"citation_count"`
	SectionCount        int       `json:"section_count"`
	SourcesAnalyzed     int       `json:"sources_analyzed"`
	ReportQualityScore  float64   `json:"report_quality_score"`
	SubQuestionsCovered int       `json:"sub_questions_covered"`
	GeneratedAt         time.Time `json:"generation_timestamp"`
	UserTopic           string    `json:"user_topic"`
	FallbackMode        bool      `json:"fallback_mode,omitempty"`
}

// Report 最终报告，生成后不可修改
type Report struct {
	MarkdownText string         `json:"markdown_report"`
	Metadata     ReportMetadata `json:"metadata"`
	CitationMap  CitationMap    `json:"source_citation_map"`
}

// Clamp01 将分数限制在 [0,1]
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
