package llm

import (
	"context"
	"errors"
)

var (
	// ErrTimeout 生成调用超过截止时间，调用方应走降级路径
	ErrTimeout = errors.New("generation timed out")
	// ErrEmptyResponse 模型返回空文本
	ErrEmptyResponse = errors.New("empty generation response")
)

// Request 文本生成请求
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Generator 文本生成服务，返回原始文本，不保证结构
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc 函数适配器
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate implements Generator
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
