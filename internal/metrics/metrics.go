// Package metrics exposes Prometheus collectors for discussion turns, prompt windows,
// model latency and capability executions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "discussion_agent"

// Metrics groups the collectors recorded by the conversation orchestrator.
type Metrics struct {
	turns            *prometheus.CounterVec
	replies          *prometheus.CounterVec
	promptChars      prometheus.Histogram
	promptTokens     prometheus.Histogram
	promptIncluded   prometheus.Histogram
	promptOverBudget prometheus.Counter
	llmLatency       *prometheus.HistogramVec
	actions          *prometheus.CounterVec
}

// New registers the collectors with reg. Pass a fresh registry in tests to avoid
// duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "User turns handled, by outcome.",
		}, []string{"status"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_replies_total",
			Help:      "Agent replies generated, by agent and outcome.",
		}, []string{"agent", "status"}),
		promptChars: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "prompt",
			Name:      "chars",
			Help:      "Characters in each assembled prompt.",
			Buckets:   prometheus.ExponentialBuckets(1000, 2, 8),
		}),
		promptTokens: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "prompt",
			Name:      "estimated_tokens",
			Help:      "Estimated tokens in each assembled prompt.",
			Buckets:   prometheus.ExponentialBuckets(250, 2, 8),
		}),
		promptIncluded: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "prompt",
			Name:      "history_messages",
			Help:      "History messages included in each prompt.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		promptOverBudget: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prompt",
			Name:      "over_budget_total",
			Help:      "Prompts whose history window exceeded what fit the character budget.",
		}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "stream_duration_seconds",
			Help:      "Time from request to the end of the streamed reply.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Capability executions, by capability and outcome.",
		}, []string{"capability", "status"}),
	}

	reg.MustRegister(m.turns, m.replies, m.promptChars, m.promptTokens, m.promptIncluded, m.promptOverBudget, m.llmLatency, m.actions)
	return m
}

// NewNop returns metrics backed by a private registry that nobody scrapes.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) ObserveTurn(status string) {
	m.turns.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveReply(agentID, status string) {
	m.replies.WithLabelValues(agentID, status).Inc()
}

// ObservePrompt records the window statistics of one assembled prompt.
func (m *Metrics) ObservePrompt(chars, tokens, included, withinBudget int) {
	m.promptChars.Observe(float64(chars))
	m.promptTokens.Observe(float64(tokens))
	m.promptIncluded.Observe(float64(included))
	if included > withinBudget {
		m.promptOverBudget.Inc()
	}
}

func (m *Metrics) ObserveLLM(status string, elapsed time.Duration) {
	m.llmLatency.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveAction(capability, status string) {
	m.actions.WithLabelValues(capability, status).Inc()
}
