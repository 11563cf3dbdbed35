package llm

import (
	"context"
	"errors"
	"time"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/metrics"
)

type instrumented struct {
	next  Generator
	stage string
}

// Instrumented 按流水线阶段记录生成调用的结果与耗时
func Instrumented(g Generator, stage string) Generator {
	return &instrumented{next: g, stage: stage}
}

func (i *instrumented) Generate(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	text, err := i.next.Generate(ctx, req)
	metrics.GenerationLatency.WithLabelValues(i.stage).Observe(time.Since(start).Seconds())

	outcome := "success"
	switch {
	case errors.Is(err, ErrTimeout):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	metrics.GenerationCalls.WithLabelValues(i.stage, outcome).Inc()
	return text, err
}
