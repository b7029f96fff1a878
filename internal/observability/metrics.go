// Package observability exposes prometheus metrics for the agent core.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	toolDispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goose",
		Subsystem: "agent",
		Name:      "tool_dispatch_total",
		Help:      "Tool dispatches by routing kind.",
	}, []string{"kind"})

	toolFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goose",
		Subsystem: "agent",
		Name:      "tool_failures_total",
		Help:      "Tool executions that returned an error.",
	}, []string{"kind"})

	toolRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "goose",
		Subsystem: "agent",
		Name:      "tool_rejections_total",
		Help:      "Tool calls rejected by the repetition monitor.",
	})

	toolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "goose",
		Subsystem: "agent",
		Name:      "tool_duration_seconds",
		Help:      "Tool execution latency by routing kind.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	providerTurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goose",
		Subsystem: "agent",
		Name:      "provider_turns_total",
		Help:      "Provider completion turns by outcome.",
	}, []string{"outcome"})
)

// RecordDispatch counts one tool dispatch.
func RecordDispatch(kind string) {
	toolDispatchTotal.WithLabelValues(kind).Inc()
}

// RecordFailure counts one failed tool execution.
func RecordFailure(kind string) {
	toolFailuresTotal.WithLabelValues(kind).Inc()
}

// RecordRejection counts one repetition-monitor rejection.
func RecordRejection() {
	toolRejectionsTotal.Inc()
}

// ObserveDuration records a tool execution latency.
func ObserveDuration(kind string, d time.Duration) {
	toolDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordProviderTurn counts one provider turn ("ok", "context_length",
// "error").
func RecordProviderTurn(outcome string) {
	providerTurnsTotal.WithLabelValues(outcome).Inc()
}
