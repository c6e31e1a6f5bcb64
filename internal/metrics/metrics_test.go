package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTurn("ok")
	m.ObserveReply("eco", "ok")
	m.ObservePrompt(1200, 300, 5, 5)
	m.ObservePrompt(50000, 12000, 3, 0)
	m.ObserveLLM("ok", 250*time.Millisecond)
	m.ObserveAction("current_time", "success")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.promptOverBudget))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("current_time", "success")))

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP discussion_agent_agent_replies_total Agent replies generated, by agent and outcome.
# TYPE discussion_agent_agent_replies_total counter
discussion_agent_agent_replies_total{agent="eco",status="ok"} 1
`), "discussion_agent_agent_replies_total")
	require.NoError(t, err)
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
