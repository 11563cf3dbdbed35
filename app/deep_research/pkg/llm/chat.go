package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/config"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/logger"
)

const defaultSystemPrompt = "You are a precise research assistant. Follow the requested output format exactly."

// ChatClient 基于 eino ChatModel 的生成客户端，带限流与 429 重试
type ChatClient struct {
	cm         model.BaseChatModel
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
	defaults   Request
}

// NewChatClient 包装一个已初始化的 ChatModel，limiter 可为 nil
func NewChatClient(cm model.BaseChatModel, limiter *rate.Limiter, defaults Request) *ChatClient {
	return &ChatClient{
		cm:         cm,
		limiter:    limiter,
		maxRetries: 3,
		baseDelay:  2 * time.Second,
		defaults:   defaults,
	}
}

// NewFromConfig 根据配置初始化 OpenAI 兼容的 ChatModel 与限流器
func NewFromConfig(ctx context.Context, llmCfg config.LLMConfig, cc config.ConcurrencyConfig) (*ChatClient, error) {
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: llmCfg.BaseURL,
		APIKey:  llmCfg.APIKey,
		Model:   llmCfg.Model,
		Timeout: llmCfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM 初始化失败: %w", err)
	}

	limit := rate.Limit(float64(cc.RPM) / 60.0)
	limiter := rate.NewLimiter(limit, cc.QPS)
	logger.Log.Infof("限流器已配置: Limit=%.2f req/s, Burst=%d", limit, cc.QPS)

	return NewChatClient(chatModel, limiter, Request{
		MaxTokens:   llmCfg.MaxTokens,
		Temperature: llmCfg.Temperature,
	}), nil
}

// SetRetryPolicy 调整重试次数与基础退避时长
func (c *ChatClient) SetRetryPolicy(maxRetries int, baseDelay time.Duration) {
	c.maxRetries = maxRetries
	c.baseDelay = baseDelay
}

var _ Generator = (*ChatClient)(nil)

// Generate implements Generator
func (c *ChatClient) Generate(ctx context.Context, req Request) (string, error) {
	system := req.System
	if system == "" {
		system = defaultSystemPrompt
	}
	messages := []*schema.Message{
		{Role: schema.System, Content: system},
		{Role: schema.User, Content: req.Prompt},
	}

	var opts []model.Option
	if n := firstPositive(req.MaxTokens, c.defaults.MaxTokens); n > 0 {
		opts = append(opts, model.WithMaxTokens(n))
	}
	if t := req.Temperature; t > 0 {
		opts = append(opts, model.WithTemperature(t))
	} else if c.defaults.Temperature > 0 {
		opts = append(opts, model.WithTemperature(c.defaults.Temperature))
	}

	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		resp, err := c.cm.Generate(ctx, messages, opts...)
		if err != nil {
			if isRateLimited(err) && i < c.maxRetries {
				lastErr = err
				delay := c.baseDelay * time.Duration(1<<i)
				logger.Log.Warnf("LLM 触发限流，%v 后重试 (%d/%d)", delay, i+1, c.maxRetries)
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(delay):
				}
				continue
			}
			return "", err
		}

		text := strings.TrimSpace(resp.Content)
		if text == "" {
			return "", ErrEmptyResponse
		}
		return text, nil
	}
	return "", lastErr
}

func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "too many requests")
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
