package trace

import (
	"bytes"
	"strings"
	"testing"
)

func entryFor(traceID, runID string, event Event) Entry {
	tc := Context{TraceID: traceID, RunID: runID, RunType: RunTypeChat, Operation: "chat"}
	return NewEntry(tc, event)
}

func TestMemoryStore_SaveAndGet(t *testing.T) {
	store := NewMemoryStore()

	store.Save(entryFor("t-1", "r-1", EventTraceStart))
	store.Save(entryFor("t-1", "r-1", EventTraceEnd))

	entries := store.Get("t-1")
	if len(entries) != 2 {
		t.Fatalf("Get() returned %d entries, want 2", len(entries))
	}
	if entries[0].Event != EventTraceStart || entries[1].Event != EventTraceEnd {
		t.Error("entries must keep save order")
	}
}

func TestMemoryStore_EvictsOldestTrace(t *testing.T) {
	store := NewMemoryStore(WithMaxTraces(2))

	store.Save(entryFor("t-1", "r-1", EventTraceStart))
	store.Save(entryFor("t-2", "r-2", EventTraceStart))
	store.Save(entryFor("t-3", "r-3", EventTraceStart))

	if store.Count() != 2 {
		t.Errorf("Count() = %d, want 2", store.Count())
	}
	if len(store.Get("t-1")) != 0 {
		t.Error("oldest trace should be evicted")
	}
	if len(store.Get("t-2")) != 1 || len(store.Get("t-3")) != 1 {
		t.Error("newer traces should be retained")
	}
}

func TestMemoryStore_EvictionDropsAllEntries(t *testing.T) {
	store := NewMemoryStore(WithMaxTraces(1))

	store.Save(entryFor("t-1", "r-1", EventTraceStart))
	store.Save(entryFor("t-1", "r-1", EventToolCall))
	store.Save(entryFor("t-2", "r-2", EventTraceStart))

	if got := store.Get("t-1"); len(got) != 0 {
		t.Errorf("evicted trace still has %d entries", len(got))
	}
}

func TestMemoryStore_List(t *testing.T) {
	store := NewMemoryStore()

	e1 := entryFor("t-1", "r-1", EventTraceStart)
	e1.SessionID = "s-1"
	e2 := entryFor("t-2", "r-2", EventTraceStart)
	e2.SessionID = "s-2"
	store.Save(e1)
	store.Save(e2)

	all := store.List(ListFilter{})
	if len(all) != 2 {
		t.Fatalf("List() = %d ids, want 2", len(all))
	}

	bySession := store.List(ListFilter{SessionID: "s-2"})
	if len(bySession) != 1 || bySession[0] != "t-2" {
		t.Errorf("List(session s-2) = %v, want [t-2]", bySession)
	}

	limited := store.List(ListFilter{Limit: 1})
	if len(limited) != 1 || limited[0] != "t-2" {
		t.Errorf("List(limit 1) = %v, want newest [t-2]", limited)
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	store := NewMemoryStore()
	store.Save(entryFor("t-1", "r-1", EventTraceStart))

	store.Clear()

	if store.Count() != 0 {
		t.Errorf("Count() = %d after Clear, want 0", store.Count())
	}
}

func TestMemoryStore_Export_JSONL(t *testing.T) {
	store := NewMemoryStore()
	store.Save(entryFor("t-1", "r-1", EventTraceStart))
	store.Save(entryFor("t-1", "r-1", EventTraceEnd))

	var buf bytes.Buffer
	if err := store.Export(&buf, "jsonl"); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Errorf("Export() wrote %d lines, want 2", len(lines))
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "{") {
			t.Errorf("line is not a JSON object: %s", line)
		}
	}
}
