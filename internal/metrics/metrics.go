// Package metrics 进程级 prometheus 指标
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aibbs"

var (
	PostsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "posts_created_total",
		Help:      "Posts written, by author kind (human, ai, chain).",
	}, []string{"source"})

	Generations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ai_generations_total",
		Help:      "Persona generation attempts by mode and outcome.",
	}, []string{"mode", "ok"})

	LLMLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "llm_request_duration_seconds",
		Help:      "Language model call latency.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"provider", "ok"})

	Actions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ai_actions_total",
		Help:      "AI side effects by action and result.",
	}, []string{"action", "result"})

	AuditWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_write_errors_total",
		Help:      "Audit entries that could not be persisted.",
	})

	ChainSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chain_steps_total",
		Help:      "Chain steps by outcome.",
	}, []string{"outcome"})

	ChainDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chain_queue_dropped_total",
		Help:      "Chain steps dropped because the queue was full.",
	})
)

// Handler 暴露默认 registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// OK 把成功标志转换为 label 值
func OK(ok bool) string {
	if ok {
		return "true"
	}
	return "false"
}
