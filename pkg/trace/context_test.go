package trace

import (
	"context"
	"testing"
)

func TestNewRoot(t *testing.T) {
	tc := NewRoot(RunTypeChat, "chat",
		WithSessionID("s-1"),
		WithAgentName("helper"),
		WithModel("gpt-4o"))

	if tc.TraceID == "" {
		t.Error("TraceID should not be empty")
	}
	if tc.RunID == "" {
		t.Error("RunID should not be empty")
	}
	if tc.ParentRunID != "" {
		t.Errorf("ParentRunID = %v, want empty for root", tc.ParentRunID)
	}
	if tc.RunType != RunTypeChat {
		t.Errorf("RunType = %v, want chat", tc.RunType)
	}
	if tc.SessionID != "s-1" || tc.AgentName != "helper" || tc.Model != "gpt-4o" {
		t.Errorf("options not applied: %+v", tc)
	}
	if tc.StartTime.IsZero() {
		t.Error("StartTime should be set")
	}
}

func TestNewRoot_UniqueIDs(t *testing.T) {
	a := NewRoot(RunTypeChat, "chat")
	b := NewRoot(RunTypeChat, "chat")

	if a.TraceID == b.TraceID {
		t.Error("distinct roots must have distinct trace ids")
	}
	if a.RunID == b.RunID {
		t.Error("distinct roots must have distinct run ids")
	}
}

func TestContext_Child(t *testing.T) {
	root := NewRoot(RunTypeChat, "chat",
		WithSessionID("s-1"),
		WithAgentName("helper"),
		WithModel("gpt-4o"))

	child := root.Child(RunTypeTool, "tool.add", map[string]any{"k": "v"})

	if child.TraceID != root.TraceID {
		t.Error("child must inherit trace id")
	}
	if child.RunID == root.RunID {
		t.Error("child must get a fresh run id")
	}
	if child.ParentRunID != root.RunID {
		t.Errorf("ParentRunID = %v, want parent's run id %v", child.ParentRunID, root.RunID)
	}
	if child.SessionID != "s-1" || child.AgentName != "helper" || child.Model != "gpt-4o" {
		t.Errorf("child must inherit session/agent/model: %+v", child)
	}
	if child.RunType != RunTypeTool {
		t.Errorf("RunType = %v, want tool", child.RunType)
	}
	if child.Metadata["k"] != "v" {
		t.Errorf("Metadata = %v, want k=v", child.Metadata)
	}
}

func TestContext_Child_Grandchild(t *testing.T) {
	root := NewRoot(RunTypeChat, "chat")
	llm := root.Child(RunTypeLLM, "llm.iteration", nil)
	tool := llm.Child(RunTypeTool, "tool.add", nil)

	if tool.TraceID != root.TraceID {
		t.Error("grandchild must keep the root trace id")
	}
	if tool.ParentRunID != llm.RunID {
		t.Error("grandchild's parent must be the llm run")
	}
}

func TestAmbient(t *testing.T) {
	ctx := context.Background()

	if _, ok := Current(ctx); ok {
		t.Error("Current() should report no ambient context on a fresh ctx")
	}

	root := NewRoot(RunTypeChat, "chat")
	ctx = WithAmbient(ctx, root)

	got, ok := Current(ctx)
	if !ok {
		t.Fatal("Current() should find the installed context")
	}
	if got.RunID != root.RunID {
		t.Errorf("Current().RunID = %v, want %v", got.RunID, root.RunID)
	}
}

func TestAmbient_Independent(t *testing.T) {
	root := NewRoot(RunTypeChat, "chat")
	base := WithAmbient(context.Background(), root)

	childA := root.Child(RunTypeTool, "tool.a", nil)
	childB := root.Child(RunTypeTool, "tool.b", nil)
	ctxA := WithAmbient(base, childA)
	ctxB := WithAmbient(base, childB)

	gotA, _ := Current(ctxA)
	gotB, _ := Current(ctxB)
	gotBase, _ := Current(base)

	if gotA.RunID != childA.RunID || gotB.RunID != childB.RunID {
		t.Error("each derived ctx must see its own child context")
	}
	if gotBase.RunID != root.RunID {
		t.Error("base ctx must still see the root context")
	}
}
