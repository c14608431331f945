package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndGauges(t *testing.T) {
	c := New()
	c.Inc(MessagesProcessed)
	c.Inc(MessagesProcessed)
	c.Add(ToolCallsTotal, 5)
	c.SetGauge(ActiveSessions, 3)

	s := c.Snapshot()
	assert.Equal(t, int64(2), s.Counters[MessagesProcessed])
	assert.Equal(t, int64(5), s.Counters[ToolCallsTotal])
	assert.Equal(t, 3.0, s.Gauges[ActiveSessions])
	assert.Equal(t, int64(2), c.Counter(MessagesProcessed))
}

func TestHistogramSummary(t *testing.T) {
	c := New()
	for i := 1; i <= 10; i++ {
		c.Observe(LLMLatencyMS, float64(i))
	}

	h := c.Snapshot().Histograms[LLMLatencyMS]
	assert.Equal(t, 10, h.Count)
	assert.Equal(t, 1.0, h.Min)
	assert.Equal(t, 10.0, h.Max)
	assert.Equal(t, 5.5, h.Avg)
	assert.Equal(t, 6.0, h.P50)
	assert.Nil(t, h.P95)
	assert.Nil(t, h.P99)
}

func TestHistogramPercentilesNeedEnoughData(t *testing.T) {
	c := New()
	for i := 0; i < 100; i++ {
		c.Observe("x", float64(i))
	}
	h := c.Snapshot().Histograms["x"]
	require.NotNil(t, h.P95)
	require.NotNil(t, h.P99)
	assert.Equal(t, 95.0, *h.P95)
	assert.Equal(t, 99.0, *h.P99)
}

func TestHistogramIsBounded(t *testing.T) {
	c := New()
	for i := 0; i < MaxObservations+250; i++ {
		c.Observe("x", float64(i))
	}
	h := c.Snapshot().Histograms["x"]
	assert.Equal(t, MaxObservations, h.Count)
	assert.Equal(t, 250.0, h.Min)
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.Inc("a")
	c.Observe("b", 1)
	c.SetGauge("c", 1)
	assert.Empty(t, c.Snapshot().Counters)
	assert.Zero(t, c.Counter("a"))
}

func TestToolLatencyName(t *testing.T) {
	assert.Equal(t, "tool_search_doctors_ms", ToolLatency("search_doctors"))
}
