package llm

import (
	"context"
	"time"
)

type deadlineGenerator struct {
	next    Generator
	timeout time.Duration
}

// WithDeadline 为每次生成调用加上硬性墙钟超时。
// 超时后立即返回 ErrTimeout，后台调用收到取消信号后自行退出，其结果被丢弃。
func WithDeadline(g Generator, timeout time.Duration) Generator {
	if timeout <= 0 {
		return g
	}
	return &deadlineGenerator{next: g, timeout: timeout}
}

type generation struct {
	text  string
	err   error
	panic any
}

func (d *deadlineGenerator) Generate(ctx context.Context, req Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	// 缓冲为 1，放弃等待后后台 goroutine 仍能写入并退出
	done := make(chan generation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- generation{panic: r}
			}
		}()
		text, err := d.next.Generate(callCtx, req)
		done <- generation{text: text, err: err}
	}()

	select {
	case g := <-done:
		// 后台调用的 panic 交回调用方 goroutine，由上层阶段统一处理
		if g.panic != nil {
			panic(g.panic)
		}
		if g.err != nil && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return "", ErrTimeout
		}
		return g.text, g.err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "", ErrTimeout
	}
}
