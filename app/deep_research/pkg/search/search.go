package search

import (
	"context"
	"strings"
)

// Searcher 定义通用的搜索接口
type Searcher interface {
	Search(ctx context.Context, req *Request) (*Response, error)
}

// Locale 搜索地域与语言
type Locale struct {
	GL string // 国家，例如 us
	HL string // 语言，例如 en
}

// Request 通用搜索请求
type Request struct {
	Query         string
	MaxResults    int
	Locale        Locale
	RecencyWindow string // day / week / month / year，空表示不限
	Topic         string // "news" or "general"
}

// Response 通用搜索响应
type Response struct {
	Organic        []Result
	News           []Result
	KnowledgeGraph *KnowledgeGraph
	AnswerBox      *AnswerBox
}

// Result 单条搜索结果
type Result struct {
	Title    string
	URL      string
	Snippet  string
	Position int
	Date     string
	Source   string
	Score    float64
}

// KnowledgeGraph 知识图谱卡片
type KnowledgeGraph struct {
	Title       string
	Type        string
	Description string
	URL         string
	Attributes  map[string]string
}

// AnswerBox 直接答案卡片
type AnswerBox struct {
	Title   string
	Answer  string
	Snippet string
	URL     string
}

// Empty 空响应
func Empty() *Response {
	return &Response{}
}

// CleanQuery 清洗查询：最多保留 12 个词，去掉引号和括号
func CleanQuery(q string) string {
	words := strings.Fields(q)
	if len(words) > 12 {
		words = words[:12]
	}
	q = strings.Join(words, " ")
	return strings.NewReplacer(`"`, "", "(", "", ")", "").Replace(q)
}
