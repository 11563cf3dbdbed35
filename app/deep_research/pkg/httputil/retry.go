// Package httputil 提供搜索客户端共用的 HTTP 辅助函数
package httputil

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/logger"
)

// RetryBaseDelay 429 退避的基础时长，测试中可以调小
var RetryBaseDelay = 2 * time.Second

const defaultMaxRetries = 3

// DoWithRetry 执行请求，遇到 429 时按 RetryBaseDelay * 2^n 退避重试。
// maxRetries 为 0 时使用默认值 3；重试耗尽后返回最后一次 429 响应，由调用方处理。
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		r := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			r.Body = body
		}

		resp, err := client.Do(r)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= maxRetries {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		backoff := RetryBaseDelay * time.Duration(1<<attempt)
		logger.Log.Warnf("触发限流 %s，%v 后重试 (%d/%d)", req.URL.Host, backoff, attempt+1, maxRetries)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}
