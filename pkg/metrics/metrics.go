// Package metrics implements the session metrics sink (spec.md §4.8 step
// 3, "Update session metrics (C10)"): per-turn token accounting exposed
// both as Prometheus counters and persisted into the session record.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures the Prometheus registry a Collector exposes.
type Config struct {
	Namespace string
}

// Collector holds the process-wide Prometheus instruments. A nil
// *Collector is valid and every method on it is a no-op, so callers can
// wire metrics only when enabled without branching at every call site.
type Collector struct {
	registry *prometheus.Registry

	turnsTotal       *prometheus.CounterVec
	llmCallsTotal    *prometheus.CounterVec
	tokensInput      *prometheus.CounterVec
	tokensOutput     *prometheus.CounterVec
	toolCallsTotal   *prometheus.CounterVec
	toolErrors       *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	compactionsTotal *prometheus.CounterVec
	sessionsActive   prometheus.Gauge
}

// New builds a Collector with its own registry.
func New(cfg Config) *Collector {
	if cfg.Namespace == "" {
		cfg.Namespace = "goagent"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.turnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: "reply",
		Name:      "turns_total",
		Help:      "Total number of turn-loop iterations executed.",
	}, []string{"model"})

	c.llmCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: "llm",
		Name:      "calls_total",
		Help:      "Total number of provider Complete calls.",
	}, []string{"model"})

	c.tokensInput = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: "llm",
		Name:      "tokens_input_total",
		Help:      "Total input tokens consumed.",
	}, []string{"model"})

	c.tokensOutput = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: "llm",
		Name:      "tokens_output_total",
		Help:      "Total output tokens generated.",
	}, []string{"model"})

	c.toolCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: "tool",
		Name:      "calls_total",
		Help:      "Total number of tool dispatches.",
	}, []string{"tool_name"})

	c.toolErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: "tool",
		Name:      "errors_total",
		Help:      "Total number of tool dispatches that returned an error result.",
	}, []string{"tool_name"})

	c.toolCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: "tool",
		Name:      "call_duration_seconds",
		Help:      "Latency of a dispatched tool call from dispatch to result.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"tool_name"})

	c.compactionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: "compact",
		Name:      "compactions_total",
		Help:      "Total number of auto-compactor summarisation passes run.",
	}, []string{"reason"})

	c.sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Subsystem: "session",
		Name:      "active",
		Help:      "Number of sessions currently running a turn loop.",
	})

	c.registry.MustRegister(c.turnsTotal, c.llmCallsTotal, c.tokensInput,
		c.tokensOutput, c.toolCallsTotal, c.toolErrors, c.toolCallDuration,
		c.compactionsTotal, c.sessionsActive)

	return c
}

// RecordTurn records one provider.Complete call's usage.
func (c *Collector) RecordTurn(model string, inputTokens, outputTokens int) {
	if c == nil {
		return
	}
	c.turnsTotal.WithLabelValues(model).Inc()
	c.llmCallsTotal.WithLabelValues(model).Inc()
	c.tokensInput.WithLabelValues(model).Add(float64(inputTokens))
	c.tokensOutput.WithLabelValues(model).Add(float64(outputTokens))
}

// RecordToolCall records one dispatched tool call's outcome and latency.
func (c *Collector) RecordToolCall(toolName string, duration time.Duration, errored bool) {
	if c == nil {
		return
	}
	c.toolCallsTotal.WithLabelValues(toolName).Inc()
	c.toolCallDuration.WithLabelValues(toolName).Observe(duration.Seconds())
	if errored {
		c.toolErrors.WithLabelValues(toolName).Inc()
	}
}

// RecordCompaction records one completed auto-compactor summarisation
// pass (spec.md §4.6), labeled by why it ran.
func (c *Collector) RecordCompaction(reason string) {
	if c == nil {
		return
	}
	c.compactionsTotal.WithLabelValues(reason).Inc()
}

// SessionStarted/SessionEnded track the sessions_active gauge.
func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}
	c.sessionsActive.Inc()
}

func (c *Collector) SessionEnded() {
	if c == nil {
		return
	}
	c.sessionsActive.Dec()
}

// Handler exposes the collector's registry on a Prometheus scrape endpoint.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}
