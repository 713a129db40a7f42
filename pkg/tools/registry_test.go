package tools

import (
	"context"
	"errors"
	"testing"
)

func newTestTool(t *testing.T, name string) Tool {
	t.Helper()
	tool, err := NewSchemaTool(name, "test tool", nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("NewSchemaTool() error = %v", err)
	}
	return tool
}

func TestToolRegistry_RegisterAndGet(t *testing.T) {
	r := NewToolRegistry()

	if err := r.RegisterAgentTool(newTestTool(t, "weather")); err != nil {
		t.Fatalf("RegisterAgentTool() error = %v", err)
	}

	tool, ok := r.Get("weather")
	if !ok {
		t.Fatal("Get() should find the registered tool")
	}
	if tool.GetName() != "weather" {
		t.Errorf("GetName() = %v, want weather", tool.GetName())
	}
}

func TestToolRegistry_CaseInsensitive(t *testing.T) {
	r := NewToolRegistry()
	r.RegisterAgentTool(newTestTool(t, "Weather"))

	if _, ok := r.Get("WEATHER"); !ok {
		t.Error("lookup must be case-insensitive")
	}
	if _, ok := r.Get("weather"); !ok {
		t.Error("lookup must be case-insensitive")
	}
}

func TestToolRegistry_AgentCannotShadowSystem(t *testing.T) {
	r := NewToolRegistry()

	if err := r.RegisterSystemTool(newTestTool(t, "search")); err != nil {
		t.Fatalf("RegisterSystemTool() error = %v", err)
	}

	err := r.RegisterAgentTool(newTestTool(t, "Search"))
	if err == nil {
		t.Fatal("agent tool conflicting with system tool must be rejected")
	}
	var regErr *ToolRegistryError
	if !errors.As(err, &regErr) {
		t.Errorf("error type = %T, want *ToolRegistryError", err)
	}
}

func TestToolRegistry_DuplicateRejected(t *testing.T) {
	r := NewToolRegistry()
	r.RegisterAgentTool(newTestTool(t, "add"))

	if err := r.RegisterAgentTool(newTestTool(t, "add")); err == nil {
		t.Error("duplicate agent tool must be rejected")
	}
}

func TestToolRegistry_GetMissing(t *testing.T) {
	r := NewToolRegistry()

	if _, ok := r.Get("missing"); ok {
		t.Error("Get() should return false for unknown tools")
	}
}

func TestToolRegistry_NamesAndCount(t *testing.T) {
	r := NewToolRegistry()
	r.RegisterSystemTool(newTestTool(t, "sys"))
	r.RegisterAgentTool(newTestTool(t, "usr"))

	if r.Count() != 2 {
		t.Errorf("Count() = %d, want 2", r.Count())
	}
	names := r.Names()
	if len(names) != 2 || names[0] != "sys" || names[1] != "usr" {
		t.Errorf("Names() = %v, want [sys usr]", names)
	}
}
