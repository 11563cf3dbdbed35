package serper

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

const defaultBaseURL = "https://google.serper.dev/search"

// Client Serper (Google 搜索) API 客户端
type Client struct {
	apiKey     string
	baseURL    string
	maxRetries int
	client     *http.Client
}

// Option 客户端选项
type Option func(*Client)

// WithBaseURL 覆盖接口地址
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient 覆盖 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithMaxRetries 429 最大重试次数
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// NewClient 创建一个新的 Serper 客户端
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		maxRetries: 3,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Ensure Client implements search.Searcher
var _ search.Searcher = (*Client)(nil)

// searchRequest Serper 请求体
type searchRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
	GL  string `json:"gl,omitempty"`
	HL  string `json:"hl,omitempty"`
	TBS string `json:"tbs,omitempty"`
}

// searchResponse Serper 响应体
type searchResponse struct {
	Organic []struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
		Position int    `json:"position"`
		Date     string `json:"date"`
	} `json:"organic"`
	News []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Date    string `json:"date"`
		Source  string `json:"source"`
	} `json:"news"`
	KnowledgeGraph *struct {
		Title       string            `json:"title"`
		Type        string            `json:"type"`
		Description string            `json:"description"`
		Website     string            `json:"website"`
		Attributes  map[string]string `json:"attributes"`
	} `json:"knowledgeGraph"`
	AnswerBox *struct {
		Title   string `json:"title"`
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"answerBox"`
}

// recencyToTBS 将时间窗口映射为 Google 的 tbs 参数
func recencyToTBS(window string) string {
	switch window {
	case "day":
		return "qdr:d"
	case "week":
		return "qdr:w"
	case "month":
		return "qdr:m"
	case "year":
		return "qdr:y"
	}
	return ""
}

// Search implements search.Searcher
func (c *Client) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	payload, err := json.Marshal(searchRequest{
		Q:   search.CleanQuery(req.Query),
		Num: req.MaxResults,
		GL:  req.Locale.GL,
		HL:  req.Locale.HL,
		TBS: recencyToTBS(req.RecencyWindow),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	httpReq.Header.Set("X-API-KEY", c.apiKey)
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
		return nil, fmt.Errorf("serper api error (status %d): %s", res.StatusCode, string(body))
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("unmarshal response failed: %w", err)
	}

	out := &search.Response{}
	for i, r := range sr.Organic {
		pos := r.Position
		if pos == 0 {
			pos = i + 1
		}
		out.Organic = append(out.Organic, search.Result{
			Title:    r.Title,
			URL:      r.Link,
			Snippet:  r.Snippet,
			Position: pos,
			Date:     r.Date,
		})
	}
	for i, r := range sr.News {
		out.News = append(out.News, search.Result{
			Title:    r.Title,
			URL:      r.Link,
			Snippet:  r.Snippet,
			Position: i + 1,
			Date:     r.Date,
			Source:   r.Source,
		})
	}
	if kg := sr.KnowledgeGraph; kg != nil {
		out.KnowledgeGraph = &search.KnowledgeGraph{
			Title:       kg.Title,
			Type:        kg.Type,
			Description: kg.Description,
			URL:         kg.Website,
			Attributes:  kg.Attributes,
		}
	}
	if ab := sr.AnswerBox; ab != nil {
		out.AnswerBox = &search.AnswerBox{
			Title:   ab.Title,
			Answer:  ab.Answer,
			Snippet: ab.Snippet,
			URL:     ab.Link,
		}
	}

	return out, nil
}
