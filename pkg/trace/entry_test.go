package trace

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewEntry_CopiesContext(t *testing.T) {
	tc := NewRoot(RunTypeLLM, "llm.iteration",
		WithSessionID("s-1"),
		WithAgentName("helper"),
		WithModel("gpt-4o"))

	entry := NewEntry(tc, EventLLMRequest)

	if entry.TraceID != tc.TraceID || entry.RunID != tc.RunID {
		t.Error("entry must carry the context's ids")
	}
	if entry.Event != EventLLMRequest {
		t.Errorf("Event = %v, want llm.request", entry.Event)
	}
	if entry.SessionID != "s-1" || entry.AgentName != "helper" || entry.Model != "gpt-4o" {
		t.Errorf("entry must carry session/agent/model: %+v", entry)
	}
	if entry.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestEntry_JSONRoundTrip(t *testing.T) {
	original := Entry{
		Timestamp:    time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
		TraceID:      "t-1",
		RunID:        "r-1",
		RunType:      RunTypeTool,
		Operation:    "tool.add",
		Event:        EventToolResult,
		ParentRunID:  "r-0",
		SessionID:    "s-1",
		AgentName:    "helper",
		Model:        "gpt-4o",
		Status:       StatusSuccess,
		Inputs:       map[string]any{"a": float64(2), "b": float64(3)},
		DurationMS:   12.5,
		InputTokens:  10,
		OutputTokens: 20,
		TotalTokens:  30,
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded Entry
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if !decoded.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", decoded.Timestamp, original.Timestamp)
	}
	decoded.Timestamp = original.Timestamp
	if decoded.TraceID != original.TraceID ||
		decoded.RunID != original.RunID ||
		decoded.Event != original.Event ||
		decoded.Status != original.Status ||
		decoded.DurationMS != original.DurationMS ||
		decoded.TotalTokens != original.TotalTokens {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
	if decoded.Inputs["a"] != float64(2) {
		t.Errorf("Inputs round trip = %v", decoded.Inputs)
	}
}

func TestEntry_OmitsEmptyFields(t *testing.T) {
	entry := Entry{
		Timestamp: time.Now(),
		TraceID:   "t-1",
		RunID:     "r-1",
		RunType:   RunTypeChat,
		Operation: "chat",
		Event:     EventTraceStart,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	s := string(data)
	for _, key := range []string{"parent_run_id", "error_message", "duration_ms", "input_tokens", "cost_usd", "metadata"} {
		if strings.Contains(s, key) {
			t.Errorf("serialized entry should omit empty %q: %s", key, s)
		}
	}
}
