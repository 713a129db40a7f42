package observability

import (
	"sync"
	"testing"
	"time"
)

func TestChatMetricsCollector_Record(t *testing.T) {
	c := NewChatMetricsCollector()

	c.Record(ChatMetric{Model: "gpt-4o", Latency: 1200 * time.Millisecond, Success: true, TokensUsed: 42})
	c.Record(ChatMetric{Model: "llama3", Success: false, ErrorMessage: "timeout"})

	records := c.Records()
	if len(records) != 2 {
		t.Fatalf("Records() = %d, want 2", len(records))
	}
	if records[0].Model != "gpt-4o" || !records[0].Success {
		t.Errorf("first record = %+v", records[0])
	}
	if records[0].Timestamp.IsZero() {
		t.Error("Record() should stamp the metric")
	}
	if records[1].ErrorMessage != "timeout" {
		t.Errorf("second record = %+v", records[1])
	}
}

func TestChatMetricsCollector_SnapshotIsolated(t *testing.T) {
	c := NewChatMetricsCollector()
	c.Record(ChatMetric{Model: "gpt-4o"})

	snap := c.Records()
	snap[0].Model = "mutated"

	if c.Records()[0].Model != "gpt-4o" {
		t.Error("Records() must return an isolated copy")
	}
}

func TestChatMetricsCollector_Concurrent(t *testing.T) {
	c := NewChatMetricsCollector()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Record(ChatMetric{Model: "gpt-4o", Success: true})
			}
		}()
	}
	wg.Wait()

	if got := len(c.Records()); got != 1000 {
		t.Errorf("Records() = %d, want 1000", got)
	}
}

func TestChatMetricsCollector_Clear(t *testing.T) {
	c := NewChatMetricsCollector()
	c.Record(ChatMetric{Model: "gpt-4o"})
	c.Clear()

	if len(c.Records()) != 0 {
		t.Error("Clear() should drop all records")
	}
}

func TestGlobalMetrics(t *testing.T) {
	defer SetGlobalMetrics(nil)

	if GetGlobalMetrics() != nil {
		SetGlobalMetrics(nil)
	}

	m := &PrometheusMetrics{}
	SetGlobalMetrics(m)

	if GetGlobalMetrics() != Metrics(m) {
		t.Error("GetGlobalMetrics() should return the installed recorder")
	}
}

func TestPrometheusMetrics_NilSafe(t *testing.T) {
	var m *PrometheusMetrics

	// must not panic without instruments
	m.RecordAgentCall(nil, time.Second, 10, nil)
	m.RecordToolExecution(nil, "add", time.Second, nil)
	m.RecordLLMCall(nil, "gpt-4o", time.Second, 1, 2, nil)

	empty := &PrometheusMetrics{}
	empty.RecordAgentCall(nil, time.Second, 10, nil)
	empty.RecordToolExecution(nil, "add", time.Second, nil)
	empty.RecordLLMCall(nil, "gpt-4o", time.Second, 1, 2, nil)
}
