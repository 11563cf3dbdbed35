package searxng

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/search"
)

// Client SearXNG API 客户端
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient 创建一个新的 SearXNG 客户端，timeout 单位为秒
func NewClient(baseURL string, timeout int) *Client {
	t := time.Duration(timeout) * time.Second
	if t == 0 {
		t = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: t},
	}
}

// Ensure Client implements search.Searcher
var _ search.Searcher = (*Client)(nil)

// SearchResponse SearXNG 响应结构
type SearchResponse struct {
	Query   string         `json:"query"`
	Answers []string       `json:"answers"`
	Results []SearchResult `json:"results"`
	Infobox []struct {
		Infobox string `json:"infobox"`
		Content string `json:"content"`
		ID      string `json:"id"`
	} `json:"infoboxes"`
}

// SearchResult SearXNG 单条结果
type SearchResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	PublishedDate string  `json:"publishedDate"`
	Engine        string  `json:"engine"`
	Score         float64 `json:"score"`
}

// Search 执行搜索
func (c *Client) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/search"

	q := u.Query()
	q.Set("q", search.CleanQuery(req.Query))
	q.Set("format", "json")
	if req.Topic == "news" {
		q.Set("categories", "news")
	} else {
		q.Set("categories", "general")
	}
	if req.Locale.HL != "" {
		q.Set("language", req.Locale.HL)
	}
	if req.RecencyWindow != "" {
		q.Set("time_range", req.RecencyWindow)
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	// 添加 User-Agent 避免被简单的反爬虫策略拦截
	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("searxng api error (status %d): %s", res.StatusCode, string(body))
	}

	var sr SearchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode response failed: %w", err)
	}

	out := &search.Response{}
	for i, r := range sr.Results {
		if req.MaxResults > 0 && i >= req.MaxResults {
			break
		}
		out.Organic = append(out.Organic, search.Result{
			Title:    r.Title,
			URL:      r.URL,
			Snippet:  r.Content,
			Position: i + 1,
			Date:     r.PublishedDate,
			Source:   r.Engine,
			Score:    r.Score,
		})
	}
	if len(sr.Answers) > 0 {
		out.AnswerBox = &search.AnswerBox{Answer: sr.Answers[0]}
	}
	if len(sr.Infobox) > 0 {
		ib := sr.Infobox[0]
		out.KnowledgeGraph = &search.KnowledgeGraph{Title: ib.Infobox, Description: ib.Content, URL: ib.ID}
	}
	return out, nil
}
