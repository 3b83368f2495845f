package utils

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

func TestMetricsCollectorConcurrentCounters(t *testing.T) {
	m := NewMetricsCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementCounter("turns_total")
			m.IncGauge("sessions_active")
		}()
	}
	wg.Wait()

	if got := m.GetCounterValue("turns_total"); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
	if got := m.GetGauge("sessions_active"); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
	if got := m.GetCounterValue("missing"); got != 0 {
		t.Fatalf("missing counter should read 0, got %d", got)
	}
}

func TestHistogramSnapshot(t *testing.T) {
	m := NewMetricsCollector()
	for _, v := range []int64{30, 10, 20} {
		m.RecordHistogram("latency", v)
	}

	h := m.Snapshot().Histograms["latency"]
	if h != (HistogramSnapshot{Count: 3, Sum: 60, Min: 10, Max: 30}) {
		t.Fatalf("unexpected histogram %+v", h)
	}
}

func TestInterviewMetrics(t *testing.T) {
	m := NewMetricsCollector()
	im := NewInterviewMetricsWith(m, NewLogger(&bytes.Buffer{}, INFO))

	im.SessionStarted()
	im.RecordTurn("greeting", "exact", "answered", 150*time.Microsecond)
	im.RecordTurn("general_unclear", "none", "unclear", 90*time.Microsecond)
	im.RecordAPIRequest("/api/sessions", "POST", 201, 3*time.Millisecond)
	im.RecordCompile(11, 60, 80, time.Millisecond)
	im.SessionEnded()

	snap := m.Snapshot()
	checks := map[string]int64{
		"turns_total":            2,
		"turns_match_exact":      1,
		"turns_outcome_unclear":  1,
		"intent_greeting":        1,
		"api_responses_2xx":      1,
		"sessions_started_total": 1,
		"corpus_compiles_total":  1,
	}
	for name, want := range checks {
		if got := snap.Counters[name]; got != want {
			t.Errorf("counter %s = %d, want %d", name, got, want)
		}
	}
	if snap.Gauges["sessions_active"] != 0 || snap.Gauges["corpus_intents"] != 11 {
		t.Errorf("unexpected gauges %v", snap.Gauges)
	}
	if snap.Histograms["turn_latency_us"].Max != 150 {
		t.Errorf("unexpected latency histogram %+v", snap.Histograms["turn_latency_us"])
	}
}
