package trace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileStore_WritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	defer store.Close()

	store.Save(entryFor("t-1", "r-1", EventTraceStart))
	store.Save(entryFor("t-1", "r-1", EventTraceEnd))

	wantName := "traces_" + time.Now().Format("2006-01-02") + ".jsonl"
	path := filepath.Join(dir, wantName)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("file has %d lines, want 2", len(lines))
	}

	var entry Entry
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("first line is not valid JSON: %v", err)
	}
	if entry.Event != EventTraceStart {
		t.Errorf("first line event = %v, want trace.start", entry.Event)
	}
}

func TestFileStore_RotatesOnSize(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, WithMaxFileSize(300))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	defer store.Close()

	// each entry serializes well above 100 bytes, so a few saves cross the cap
	for i := 0; i < 6; i++ {
		if err := store.Save(entryFor("t-1", "r-1", EventToolCall)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(files) < 2 {
		t.Fatalf("found %d files, want at least 2 after rotation", len(files))
	}

	today := time.Now().Format("2006-01-02")
	var rotated bool
	for _, f := range files {
		name := f.Name()
		if !strings.HasPrefix(name, "traces_"+today) || !strings.HasSuffix(name, ".jsonl") {
			t.Errorf("unexpected file name: %s", name)
		}
		if name != "traces_"+today+".jsonl" {
			rotated = true
		}
	}
	if !rotated {
		t.Error("expected a timestamp-suffixed rotation file")
	}
}

func TestFileStore_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	store.Save(entryFor("t-1", "r-1", EventTraceStart))
	store.Close()

	store2, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	defer store2.Close()
	store2.Save(entryFor("t-2", "r-2", EventTraceStart))

	data, err := os.ReadFile(store2.Path())
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Errorf("file has %d lines after reopen, want 2 (append-only)", len(lines))
	}
}
