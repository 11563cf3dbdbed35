package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/httputil"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/search"
)

const defaultBaseURL = "https://api.tavily.com/search"

// Client Tavily API 客户端
type Client struct {
	apiKey     string
	baseURL    string
	maxRetries int
	client     *http.Client
}

// NewClient 创建一个新的 Tavily 客户端，baseURL 为空时使用官方地址
func NewClient(apiKey, baseURL string, maxRetries int) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		maxRetries: maxRetries,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Ensure Client implements search.Searcher
var _ search.Searcher = (*Client)(nil)

// SearchRequest Tavily 搜索请求参数
type SearchRequest struct {
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth,omitempty"` // basic or advanced
	Topic         string `json:"topic,omitempty"`        // general or news
	MaxResults    int    `json:"max_results,omitempty"`
	TimeRange     string `json:"time_range,omitempty"` // day / week / month / year
	IncludeAnswer bool   `json:"include_answer,omitempty"`
	Country       string `json:"country,omitempty"`
}

// SearchResponse Tavily 搜索响应
type SearchResponse struct {
	Query   string         `json:"query"`
	Answer  string         `json:"answer"`
	Results []SearchResult `json:"results"`
}

// SearchResult 单个搜索结果
type SearchResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date"`
}

// Search implements search.Searcher
func (c *Client) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	tr := SearchRequest{
		Query:         search.CleanQuery(req.Query),
		SearchDepth:   "basic",
		Topic:         req.Topic,
		MaxResults:    req.MaxResults,
		TimeRange:     req.RecencyWindow,
		IncludeAnswer: true,
	}
	if tr.Topic == "" {
		tr.Topic = "general"
	}
	if tr.MaxResults == 0 {
		tr.MaxResults = 5
	}

	resp, err := c.doSearch(ctx, tr)
	if err != nil {
		return nil, err
	}

	out := &search.Response{}
	for i, r := range resp.Results {
		res := search.Result{
			Title:    r.Title,
			URL:      r.URL,
			Snippet:  r.Content,
			Position: i + 1,
			Date:     r.PublishedDate,
			Score:    r.Score,
		}
		if tr.Topic == "news" {
			out.News = append(out.News, res)
		} else {
			out.Organic = append(out.Organic, res)
		}
	}
	if resp.Answer != "" {
		out.AnswerBox = &search.AnswerBox{Answer: resp.Answer}
	}
	return out, nil
}

// doSearch 执行搜索 (Internal)
func (c *Client) doSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := httputil.DoWithRetry(ctx, c.client, httpReq, c.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily api error (status %d): %s", res.StatusCode, string(body))
	}

	var sr SearchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("unmarshal response failed: %w", err)
	}
	return &sr, nil
}
