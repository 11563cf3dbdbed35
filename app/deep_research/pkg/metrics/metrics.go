// Package metrics 定义研究流水线的 Prometheus 指标
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 流水线
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_runs_total",
			Help: "Total number of research pipeline runs",
		},
		[]string{"status"}, // status: success, failed
	)

	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deep_research_phase_duration_seconds",
			Help:    "Duration of each pipeline phase in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"phase"},
	)

	// 文本生成
	GenerationCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_generation_calls_total",
			Help: "Total number of text generation calls",
		},
		[]string{"stage", "outcome"}, // outcome: success, error, timeout
	)

	GenerationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deep_research_generation_latency_seconds",
			Help:    "Text generation latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 180},
		},
		[]string{"stage"},
	)

	// 检索与抽取
	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_search_requests_total",
			Help: "Total number of outbound search requests",
		},
		[]string{"outcome"}, // outcome: success, error
	)

	FetchResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_fetch_results_total",
			Help: "Content extraction results",
		},
		[]string{"outcome"}, // outcome: extracted, snippet_fallback
	)

	// 降级
	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_fallbacks_total",
			Help: "Number of times a stage degraded to its fallback path",
		},
		[]string{"stage"},
	)

	// 多角色协作
	CollaborationSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_collaboration_sessions_total",
			Help: "Total number of collaboration sessions",
		},
		[]string{"mode", "synthesis"}, // synthesis: generated, manual_fallback
	)
)

// ObservePhase 记录阶段耗时
func ObservePhase(phase string, d time.Duration) {
	PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// Fallback 记录一次降级
func Fallback(stage string) {
	FallbacksTotal.WithLabelValues(stage).Inc()
}
