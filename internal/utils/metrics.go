// internal/utils/metrics.go
package utils

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector keeps in-process counters, gauges and histograms
type MetricsCollector struct {
	counters   map[string]*int64
	gauges     map[string]*int64
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Histogram tracks count, sum, min and max of observed values
type Histogram struct {
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

// HistogramSnapshot is a point-in-time copy of a Histogram
type HistogramSnapshot struct {
	Count int64 `json:"count"`
	Sum   int64 `json:"sum"`
	Min   int64 `json:"min"`
	Max   int64 `json:"max"`
}

// MetricsSnapshot is what GET /api/metrics returns
type MetricsSnapshot struct {
	Counters   map[string]int64             `json:"counters"`
	Gauges     map[string]int64             `json:"gauges"`
	Histograms map[string]HistogramSnapshot `json:"histograms"`
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// GetMetricsCollector returns the global metrics collector
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsCollector()
	})
	return globalMetrics
}

// NewMetricsCollector creates an empty collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*int64),
		gauges:     make(map[string]*int64),
		histograms: make(map[string]*Histogram),
	}
}

// slot returns the value cell for name, creating it under the write lock
// only on first use.
func (m *MetricsCollector) slot(table map[string]*int64, name string) *int64 {
	m.mu.RLock()
	v, ok := table[name]
	m.mu.RUnlock()
	if ok {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok = table[name]; !ok {
		v = new(int64)
		table[name] = v
	}
	return v
}

// IncrementCounter increments a counter by one
func (m *MetricsCollector) IncrementCounter(name string) {
	atomic.AddInt64(m.slot(m.counters, name), 1)
}

// AddCounter adds value to a counter
func (m *MetricsCollector) AddCounter(name string, value int64) {
	atomic.AddInt64(m.slot(m.counters, name), value)
}

// GetCounterValue reads a counter, zero when it was never touched
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	v, ok := m.counters[name]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(v)
}

// SetGauge sets a gauge
func (m *MetricsCollector) SetGauge(name string, value int64) {
	atomic.StoreInt64(m.slot(m.gauges, name), value)
}

// IncGauge increments a gauge
func (m *MetricsCollector) IncGauge(name string) {
	atomic.AddInt64(m.slot(m.gauges, name), 1)
}

// DecGauge decrements a gauge
func (m *MetricsCollector) DecGauge(name string) {
	atomic.AddInt64(m.slot(m.gauges, name), -1)
}

// GetGauge reads a gauge
func (m *MetricsCollector) GetGauge(name string) int64 {
	m.mu.RLock()
	v, ok := m.gauges[name]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(v)
}

// RecordHistogram records a value in a histogram
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	h, ok := m.histograms[name]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if h, ok = m.histograms[name]; !ok {
			h = &Histogram{min: value, max: value}
			m.histograms[name] = h
		}
		m.mu.Unlock()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	h.min = min(h.min, value)
	h.max = max(h.max, value)
}

// Snapshot copies every metric
func (m *MetricsCollector) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		Counters:   make(map[string]int64, len(m.counters)),
		Gauges:     make(map[string]int64, len(m.gauges)),
		Histograms: make(map[string]HistogramSnapshot, len(m.histograms)),
	}
	for name, v := range m.counters {
		snap.Counters[name] = atomic.LoadInt64(v)
	}
	for name, v := range m.gauges {
		snap.Gauges[name] = atomic.LoadInt64(v)
	}
	for name, h := range m.histograms {
		h.mu.Lock()
		snap.Histograms[name] = HistogramSnapshot{Count: h.count, Sum: h.sum, Min: h.min, Max: h.max}
		h.mu.Unlock()
	}
	return snap
}

// InterviewMetrics records domain metrics on top of a collector
type InterviewMetrics struct {
	metrics *MetricsCollector
	logger  *Logger
}

// NewInterviewMetrics uses the global collector and logger
func NewInterviewMetrics() *InterviewMetrics {
	return NewInterviewMetricsWith(GetMetricsCollector(), GetLogger())
}

// NewInterviewMetricsWith wires explicit dependencies, mostly for tests
func NewInterviewMetricsWith(m *MetricsCollector, logger *Logger) *InterviewMetrics {
	return &InterviewMetrics{metrics: m, logger: logger}
}

// Collector exposes the underlying collector
func (im *InterviewMetrics) Collector() *MetricsCollector {
	return im.metrics
}

// RecordAPIRequest records one HTTP request
func (im *InterviewMetrics) RecordAPIRequest(route, method string, statusCode int, duration time.Duration) {
	im.metrics.IncrementCounter("api_requests_total")
	im.metrics.IncrementCounter("api_requests_" + method + "_" + route)
	im.metrics.IncrementCounter("api_responses_" + strconv.Itoa(statusCode/100) + "xx")
	im.metrics.RecordHistogram("api_response_time_ms", duration.Milliseconds())
}

// RecordTurn records one processed conversation turn
func (im *InterviewMetrics) RecordTurn(intent, matchKind, outcome string, duration time.Duration) {
	im.metrics.IncrementCounter("turns_total")
	im.metrics.IncrementCounter("turns_match_" + matchKind)
	im.metrics.IncrementCounter("turns_outcome_" + outcome)
	im.metrics.IncrementCounter("intent_" + intent)
	im.metrics.RecordHistogram("turn_latency_us", duration.Microseconds())
}

// RecordCompile records a corpus compilation
func (im *InterviewMetrics) RecordCompile(intents, examples, keywords int, duration time.Duration) {
	im.metrics.IncrementCounter("corpus_compiles_total")
	im.metrics.SetGauge("corpus_intents", int64(intents))
	im.metrics.SetGauge("corpus_examples", int64(examples))
	im.metrics.SetGauge("corpus_keywords", int64(keywords))
	im.metrics.RecordHistogram("corpus_compile_time_ms", duration.Milliseconds())
}

// SessionStarted bumps the active session gauge
func (im *InterviewMetrics) SessionStarted() {
	im.metrics.IncrementCounter("sessions_started_total")
	im.metrics.IncGauge("sessions_active")
}

// SessionEnded lowers the active session gauge
func (im *InterviewMetrics) SessionEnded() {
	im.metrics.IncrementCounter("sessions_ended_total")
	im.metrics.DecGauge("sessions_active")
}

// RecordError records an error by type and component
func (im *InterviewMetrics) RecordError(errorType, component string) {
	im.metrics.IncrementCounter("errors_total")
	im.metrics.IncrementCounter("errors_" + errorType)
	im.metrics.IncrementCounter("errors_" + component)
	im.logger.Error("Error recorded", map[string]interface{}{
		"type":      errorType,
		"component": component,
	})
}

// StartMetricsCollection logs a metrics report every interval until ctx ends
func (im *InterviewMetrics) StartMetricsCollection(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := im.metrics.Snapshot()
				im.logger.Info("Periodic metrics report", map[string]interface{}{
					"turns":           snap.Counters["turns_total"],
					"sessions_active": snap.Gauges["sessions_active"],
					"api_requests":    snap.Counters["api_requests_total"],
				})
			}
		}
	}()
}
