// Package metrics holds the prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyforge_ratelimit_decisions_total",
		Help: "Rate limit checks by function and result (allowed, denied, error)",
	}, []string{"function", "result"})

	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyforge_upstream_requests_total",
		Help: "Completion gateway calls by function and HTTP status",
	}, []string{"function", "status"})

	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storyforge_upstream_latency_seconds",
		Help:    "Time until the completion gateway answered (headers only for streams)",
		Buckets: prometheus.DefBuckets,
	}, []string{"function"})

	UsageLogFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyforge_usage_log_failures_total",
		Help: "Usage log writes that failed and were dropped",
	}, []string{"function"})

	PromptTokens = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storyforge_prompt_tokens",
		Help:    "Estimated prompt tokens per upstream request",
		Buckets: []float64{10, 50, 100, 250, 500, 1_000, 2_000, 4_000, 8_000, 16_000},
	}, []string{"function"})

	StreamedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storyforge_chat_streamed_bytes_total",
		Help: "Bytes forwarded from the completion gateway to chat clients",
	})
)
