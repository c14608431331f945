// Package metrics is a small in-process collector of counters, gauges and
// bounded histograms, rendered as JSON on /metrics.
//
// A nil *Collector is valid and records nothing.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// MaxObservations bounds each histogram to its most recent values.
const MaxObservations = 1000

// Well-known metric names.
const (
	MessagesProcessed = "messages_processed"
	ToolCallsTotal    = "tool_calls_total"
	VoiceCallsTotal   = "voice_calls_total"
	VoiceCallsFailed  = "voice_calls_failed"
	RateLimitedTotal  = "rate_limited_total"
	LLMRetriesTotal   = "llm_retries_total"
	LLMLatencyMS      = "llm_latency_ms"
	RAGLatencyMS      = "rag_latency_ms"
	VoiceCallDuration = "voice_call_duration_s"
	ActiveSessions    = "active_sessions"
	ActiveCalls       = "active_calls"
)

// ToolLatency is the histogram name for a tool's execution time.
func ToolLatency(tool string) string { return "tool_" + tool + "_ms" }

// Collector holds all metrics for the process.
type Collector struct {
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
	started    time.Time
	mu         sync.Mutex
}

// New creates an empty collector.
func New() *Collector {
	return &Collector{
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
		started:    time.Now(),
	}
}

// Inc adds one to a counter.
func (c *Collector) Inc(name string) { c.Add(name, 1) }

// Add adds n to a counter.
func (c *Collector) Add(name string, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.counters[name] += n
	c.mu.Unlock()
}

// SetGauge sets a gauge to v.
func (c *Collector) SetGauge(name string, v float64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.gauges[name] = v
	c.mu.Unlock()
}

// Observe records one histogram value.
func (c *Collector) Observe(name string, v float64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	h := append(c.histograms[name], v)
	if len(h) > MaxObservations {
		h = append([]float64(nil), h[len(h)-MaxObservations:]...)
	}
	c.histograms[name] = h
}

// Since records the milliseconds elapsed since start.
func (c *Collector) Since(name string, start time.Time) {
	c.Observe(name, float64(time.Since(start).Microseconds())/1000)
}

// Summary describes one histogram. P95 needs 20 observations and P99 needs
// 100; below that they are nil.
type Summary struct {
	Count int      `json:"count"`
	Min   float64  `json:"min"`
	Max   float64  `json:"max"`
	Avg   float64  `json:"avg"`
	P50   float64  `json:"p50"`
	P95   *float64 `json:"p95"`
	P99   *float64 `json:"p99"`
}

// Snapshot is a point-in-time copy of every metric.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	Counters      map[string]int64   `json:"counters"`
	Gauges        map[string]float64 `json:"gauges"`
	Histograms    map[string]Summary `json:"histograms"`
}

// Counter returns the current value of a counter.
func (c *Collector) Counter(name string) int64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[name]
}

// Snapshot copies the current state.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		Counters:   map[string]int64{},
		Gauges:     map[string]float64{},
		Histograms: map[string]Summary{},
	}
	if c == nil {
		return s
	}

	c.mu.Lock()
	s.UptimeSeconds = round(time.Since(c.started).Seconds(), 1)
	for k, v := range c.counters {
		s.Counters[k] = v
	}
	for k, v := range c.gauges {
		s.Gauges[k] = v
	}
	hist := make(map[string][]float64, len(c.histograms))
	for k, v := range c.histograms {
		hist[k] = append([]float64(nil), v...)
	}
	c.mu.Unlock()

	for name, values := range hist {
		if len(values) == 0 {
			continue
		}
		s.Histograms[name] = summarize(values)
	}
	return s
}

func summarize(values []float64) Summary {
	sort.Float64s(values)
	n := len(values)
	var sum float64
	for _, v := range values {
		sum += v
	}
	out := Summary{
		Count: n,
		Min:   round(values[0], 2),
		Max:   round(values[n-1], 2),
		Avg:   round(sum/float64(n), 2),
		P50:   round(values[n/2], 2),
	}
	if n >= 20 {
		p := round(values[int(float64(n)*0.95)], 2)
		out.P95 = &p
	}
	if n >= 100 {
		p := round(values[int(float64(n)*0.99)], 2)
		out.P99 = &p
	}
	return out
}

func round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
