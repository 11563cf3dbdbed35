package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
)

// 抓取请求使用的浏览器头
const (
	userAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptHeader   = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	acceptLanguage = "en-US,en;q=0.5"
	maxBodyBytes   = 5 << 20
)

// ErrEmptyContent 页面中没有可提取的正文
var ErrEmptyContent = errors.New("no readable content")

// Content 抽取结果。失败时 Text 为搜索摘要，Success 为 false
type Content struct {
	Text    string
	Length  int
	Success bool
	Err     error
}

// Fetcher 根据 URL 获取正文
type Fetcher interface {
	Fetch(ctx context.Context, pageURL, snippet string) Content
}

// Extractor 基于 go-readability 的正文抽取器
type Extractor struct {
	client   *http.Client
	timeout  time.Duration
	maxChars int
}

// NewExtractor 创建抽取器，timeout 为单个请求超时，maxChars 为正文截断长度
func NewExtractor(timeout time.Duration, maxChars int) *Extractor {
	return &Extractor{
		client:   &http.Client{},
		timeout:  timeout,
		maxChars: maxChars,
	}
}

// WithHTTPClient 替换底层 http.Client
func (e *Extractor) WithHTTPClient(c *http.Client) *Extractor {
	e.client = c
	return e
}

var _ Fetcher = (*Extractor)(nil)

// Fetch 抓取并清洗正文，任何错误都回退为摘要
func (e *Extractor) Fetch(ctx context.Context, pageURL, snippet string) Content {
	text, err := e.extract(ctx, pageURL)
	if err != nil {
		return Content{
			Text:    snippet,
			Length:  len([]rune(snippet)),
			Success: false,
			Err:     err,
		}
	}
	return Content{
		Text:    Truncate(text, e.maxChars),
		Length:  len([]rune(text)),
		Success: true,
	}
}

func (e *Extractor) extract(ctx context.Context, pageURL string) (string, error) {
	if pageURL == "" {
		return "", errors.New("empty url")
	}
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguage)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxBodyBytes), parsed)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}

	text := CollapseWhitespace(article.TextContent)
	if text == "" {
		return "", ErrEmptyContent
	}
	return text, nil
}

// CollapseWhitespace 将连续空白压缩为单个空格
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate 按字符截断，不切断多字节字符
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
