package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strand-ai/strand/pkg/config"
	"github.com/strand-ai/strand/pkg/llms"
	"github.com/strand-ai/strand/pkg/retry"
	"github.com/strand-ai/strand/pkg/tools"
	"github.com/strand-ai/strand/pkg/trace"
)

func lookupTool(t *testing.T) tools.Tool {
	t.Helper()
	tool, err := tools.NewSchemaTool("lookup", "look up a value",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"key": map[string]any{"type": "string"},
			},
			"required": []any{"key"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			return "value-for-" + args["key"].(string), nil
		})
	require.NoError(t, err)
	return tool
}

func failingTool(t *testing.T) tools.Tool {
	t.Helper()
	tool, err := tools.NewSchemaTool("broken", "always fails", nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("backend unavailable")
		})
	require.NoError(t, err)
	return tool
}

func newTestAgent(t *testing.T, provider llms.Provider, opts ...Option) *Agent {
	t.Helper()
	opts = append([]Option{WithProviderConfig(testProviderConfig())}, opts...)
	a, err := New("helper", provider, opts...)
	require.NoError(t, err)
	return a
}

func TestChat_EmptyMessageRejected(t *testing.T) {
	a := newTestAgent(t, newFakeProvider())

	_, err := a.Chat(context.Background(), "   ")
	var chatErr *ChatError
	require.ErrorAs(t, err, &chatErr)
	assert.Equal(t, KindValidation, chatErr.Kind)
	assert.Zero(t, a.History().Len())
}

func TestChat_PlainText(t *testing.T) {
	provider := newFakeProvider(textTurn("Hello there"))
	store := trace.NewMemoryStore()
	a := newTestAgent(t, provider,
		WithInstructions("Be brief"),
		WithTraceStore(store))

	reply, err := a.Chat(context.Background(), "Hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", reply.Text())

	// system + user on the wire
	req := provider.request(0)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llms.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "Be brief", req.Messages[0].Content)
	assert.Equal(t, llms.RoleUser, req.Messages[1].Role)

	// history got exactly user + assistant
	snap := a.History().Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "Hi", snap[0].Content)
	assert.Equal(t, "Hello there", snap[1].Content)

	// trace carries start, iteration, request, response, end in one trace
	ids := store.List(trace.ListFilter{})
	require.Len(t, ids, 1)
	events := map[trace.Event]bool{}
	for _, e := range store.Get(ids[0]) {
		events[e.Event] = true
	}
	for _, want := range []trace.Event{
		trace.EventTraceStart, trace.EventLLMIterationStart,
		trace.EventLLMRequest, trace.EventLLMResponse, trace.EventTraceEnd,
	} {
		assert.True(t, events[want], "missing event %s", want)
	}
}

func TestChat_HistoryCarriesAcrossTurns(t *testing.T) {
	provider := newFakeProvider(textTurn("first"), textTurn("second"))
	a := newTestAgent(t, provider)

	_, err := a.Chat(context.Background(), "one")
	require.NoError(t, err)
	_, err = a.Chat(context.Background(), "two")
	require.NoError(t, err)

	// second request: prior user+assistant, then the new user message
	req := provider.request(1)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "one", req.Messages[0].Content)
	assert.Equal(t, "first", req.Messages[1].Content)
	assert.Equal(t, "two", req.Messages[2].Content)
}

func TestChat_SingleToolCall(t *testing.T) {
	provider := newFakeProvider(
		toolTurn(llms.ToolCall{ID: "call_1", Name: "lookup", Arguments: map[string]any{"key": "answer"}}),
		textTurn("The value is value-for-answer"),
	)
	a := newTestAgent(t, provider, WithTools(lookupTool(t)))

	reply, err := a.Chat(context.Background(), "look it up")
	require.NoError(t, err)
	assert.Equal(t, "The value is value-for-answer", reply.Text())
	require.Equal(t, 2, provider.requestCount())

	// second request carries assistant tool-call message plus the tool result
	req := provider.request(1)
	require.Len(t, req.Messages, 3)
	assistant := req.Messages[1]
	assert.Equal(t, llms.RoleAssistant, assistant.Role)
	require.Len(t, assistant.ToolCalls, 1)
	toolMsg := req.Messages[2]
	assert.Equal(t, llms.RoleTool, toolMsg.Role)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.Equal(t, "lookup", toolMsg.ToolName)
	assert.Equal(t, "value-for-answer", toolMsg.Content)

	// intermediate messages never land in history
	snap := a.History().Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "The value is value-for-answer", snap[1].Content)
}

func TestChat_ParallelToolFanOutPreservesOrder(t *testing.T) {
	provider := newFakeProvider(
		toolTurn(
			llms.ToolCall{ID: "call_a", Name: "lookup", Arguments: map[string]any{"key": "a"}},
			llms.ToolCall{ID: "call_b", Name: "lookup", Arguments: map[string]any{"key": "b"}},
			llms.ToolCall{ID: "call_c", Name: "lookup", Arguments: map[string]any{"key": "c"}},
		),
		textTurn("done"),
	)
	a := newTestAgent(t, provider, WithTools(lookupTool(t)))

	_, err := a.Chat(context.Background(), "fan out")
	require.NoError(t, err)

	req := provider.request(1)
	require.Len(t, req.Messages, 5)
	assert.Equal(t, "value-for-a", req.Messages[2].Content)
	assert.Equal(t, "value-for-b", req.Messages[3].Content)
	assert.Equal(t, "value-for-c", req.Messages[4].Content)
}

func TestChat_FailingToolBecomesErrorMessage(t *testing.T) {
	provider := newFakeProvider(
		toolTurn(llms.ToolCall{ID: "call_1", Name: "broken", Arguments: map[string]any{}}),
		textTurn("I could not reach the backend"),
	)
	a := newTestAgent(t, provider, WithTools(failingTool(t)))

	reply, err := a.Chat(context.Background(), "try it")
	require.NoError(t, err, "a failing tool must not abort the turn")
	assert.Equal(t, "I could not reach the backend", reply.Text())

	toolMsg := provider.request(1).Messages[2]
	assert.Equal(t, llms.RoleTool, toolMsg.Role)
	assert.Contains(t, toolMsg.Content, "Error:")
	assert.Contains(t, toolMsg.Content, "backend unavailable")
}

func TestChat_ToolChoice(t *testing.T) {
	t.Run("none suppresses tools", func(t *testing.T) {
		provider := newFakeProvider(textTurn("no tools used"))
		a := newTestAgent(t, provider, WithTools(lookupTool(t)))

		_, err := a.Chat(context.Background(), "hi",
			WithToolChoice(llms.ToolChoice{Mode: llms.ToolChoiceNone}))
		require.NoError(t, err)
		assert.Equal(t, llms.ToolChoiceNone, provider.request(0).ToolChoice.Mode)
	})

	t.Run("specific must name a registered tool", func(t *testing.T) {
		provider := newFakeProvider(textTurn("unused"))
		a := newTestAgent(t, provider, WithTools(lookupTool(t)))

		_, err := a.Chat(context.Background(), "hi",
			WithToolChoice(llms.Specific("does_not_exist")))
		var chatErr *ChatError
		require.ErrorAs(t, err, &chatErr)
		assert.Equal(t, KindValidation, chatErr.Kind)
		assert.Contains(t, chatErr.Message, "does_not_exist")
		assert.Zero(t, provider.requestCount())
	})

	t.Run("specific resets to auto after execution", func(t *testing.T) {
		provider := newFakeProvider(
			toolTurn(llms.ToolCall{ID: "call_1", Name: "lookup", Arguments: map[string]any{"key": "x"}}),
			textTurn("done"),
		)
		a := newTestAgent(t, provider, WithTools(lookupTool(t)))

		_, err := a.Chat(context.Background(), "hi",
			WithToolChoice(llms.Specific("lookup")))
		require.NoError(t, err)

		assert.Equal(t, llms.ToolChoiceSpecific, provider.request(0).ToolChoice.Mode)
		assert.Equal(t, llms.ToolChoiceAuto, provider.request(1).ToolChoice.Mode)
	})
}

func TestChat_RetriesRateLimitedCall(t *testing.T) {
	start := time.Now()
	provider := newFakeProvider(
		fakeTurn{err: &retry.RateLimitError{Provider: "openai", Message: "slow down", RetryAfter: 30 * time.Millisecond}},
		textTurn("recovered"),
	)
	a := newTestAgent(t, provider, WithRetryPolicy(retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Factor:      2.0,
	}))

	reply, err := a.Chat(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "recovered", reply.Text())
	assert.Equal(t, 2, provider.requestCount())
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond,
		"the server's retry-after hint must be honored")
}

func TestChat_ProviderFailureLeavesHistoryUntouched(t *testing.T) {
	provider := newFakeProvider(fakeTurn{err: errors.New("model exploded")})
	store := trace.NewMemoryStore()
	a := newTestAgent(t, provider, WithTraceStore(store))

	_, err := a.Chat(context.Background(), "hi")
	var chatErr *ChatError
	require.ErrorAs(t, err, &chatErr)
	assert.Equal(t, KindProvider, chatErr.Kind)
	assert.Zero(t, a.History().Len())

	// trace.end still emitted, with error status
	ids := store.List(trace.ListFilter{})
	require.Len(t, ids, 1)
	var end *trace.Entry
	for _, e := range store.Get(ids[0]) {
		if e.Event == trace.EventTraceEnd {
			entry := e
			end = &entry
		}
	}
	require.NotNil(t, end)
	assert.Equal(t, trace.StatusError, end.Status)
	assert.Equal(t, string(KindProvider), end.ErrorType)
}

func TestChat_IterationCapExceeded(t *testing.T) {
	cfg := &config.ProviderConfig{Provider: config.ProviderOpenAI, MaxToolIterations: 2}
	provider := newFakeProvider(
		toolTurn(llms.ToolCall{ID: "c1", Name: "lookup", Arguments: map[string]any{"key": "a"}}),
		toolTurn(llms.ToolCall{ID: "c2", Name: "lookup", Arguments: map[string]any{"key": "b"}}),
		toolTurn(llms.ToolCall{ID: "c3", Name: "lookup", Arguments: map[string]any{"key": "c"}}),
	)
	a, err := New("helper", provider, WithProviderConfig(cfg), WithTools(lookupTool(t)))
	require.NoError(t, err)

	_, err = a.Chat(context.Background(), "loop forever")
	var chatErr *ChatError
	require.ErrorAs(t, err, &chatErr)
	assert.Equal(t, KindIterationCapExceeded, chatErr.Kind)
	assert.Equal(t, 2, provider.requestCount())
	assert.Zero(t, a.History().Len())
}

func TestChat_CancellationLeavesHistoryUntouched(t *testing.T) {
	provider := newFakeProvider(textTurn("never delivered"))
	a := newTestAgent(t, provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Chat(ctx, "hi")
	var chatErr *ChatError
	require.ErrorAs(t, err, &chatErr)
	assert.Equal(t, KindCancelled, chatErr.Kind)
	assert.Zero(t, a.History().Len())
}

func TestChat_ProviderCleanupRuns(t *testing.T) {
	provider := newFakeProvider(textTurn("hi"))
	a := newTestAgent(t, provider)

	_, err := a.Chat(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, provider.closes)
}

func TestChat_Streaming(t *testing.T) {
	provider := newFakeProvider()
	provider.streams = [][]llms.StreamChunk{
		{
			{Type: llms.ChunkText, Text: "Hel"},
			{Type: llms.ChunkText, Text: "lo"},
			{Type: llms.ChunkDone, Usage: &llms.Usage{InputTokens: 4, OutputTokens: 2, TotalTokens: 6}},
		},
	}
	a := newTestAgent(t, provider, WithConfig(map[string]any{"stream": true}))

	reply, err := a.Chat(context.Background(), "hi")
	require.NoError(t, err)
	require.True(t, reply.IsStream())

	text, err := reply.Wait()
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)

	snap := a.History().Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "Hello", snap[1].Content)
}

func TestChat_StreamingWithToolCall(t *testing.T) {
	provider := newFakeProvider()
	provider.streams = [][]llms.StreamChunk{
		{
			{Type: llms.ChunkToolCall, ToolCall: &llms.ToolCall{ID: "call_1", Name: "lookup", Arguments: map[string]any{"key": "x"}}},
			{Type: llms.ChunkDone, Usage: &llms.Usage{TotalTokens: 5}},
		},
		{
			{Type: llms.ChunkText, Text: "found value-for-x"},
			{Type: llms.ChunkDone, Usage: &llms.Usage{TotalTokens: 7}},
		},
	}
	a := newTestAgent(t, provider,
		WithConfig(map[string]any{"stream": true}),
		WithTools(lookupTool(t)))

	reply, err := a.Chat(context.Background(), "look up x")
	require.NoError(t, err)

	text, err := reply.Wait()
	require.NoError(t, err)
	assert.Equal(t, "found value-for-x", text)
	assert.Equal(t, 2, provider.requestCount())

	// second stream request carries the tool result
	req := provider.request(1)
	last := req.Messages[len(req.Messages)-1]
	assert.Equal(t, llms.RoleTool, last.Role)
	assert.Equal(t, "value-for-x", last.Content)
}

func (f *fakeProvider) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func TestChat_StreamingAbandonedReplyReleasesTurn(t *testing.T) {
	// more chunks than the reply channel buffers, so the turn goroutine
	// must block on forwarding until cancellation lets it out
	chunks := make([]llms.StreamChunk, 0, 151)
	for i := 0; i < 150; i++ {
		chunks = append(chunks, llms.StreamChunk{Type: llms.ChunkText, Text: "x"})
	}
	chunks = append(chunks, llms.StreamChunk{Type: llms.ChunkDone})

	provider := newFakeProvider()
	provider.streams = [][]llms.StreamChunk{chunks}
	a := newTestAgent(t, provider, WithConfig(map[string]any{"stream": true}))

	ctx, cancel := context.WithCancel(context.Background())
	reply, err := a.Chat(ctx, "hi")
	require.NoError(t, err)
	require.True(t, reply.IsStream())

	// abandon the reply without draining it
	cancel()

	assert.Eventually(t, func() bool { return provider.closeCount() == 1 },
		time.Second, 10*time.Millisecond,
		"turn goroutine must finish and run provider cleanup after cancellation")
	assert.Zero(t, a.History().Len())
}

func TestChat_StreamingIterationCapEndsQuietly(t *testing.T) {
	cfg := &config.ProviderConfig{Provider: config.ProviderOpenAI, MaxToolIterations: 1}
	provider := newFakeProvider()
	provider.streams = [][]llms.StreamChunk{
		{
			{Type: llms.ChunkToolCall, ToolCall: &llms.ToolCall{ID: "call_1", Name: "lookup", Arguments: map[string]any{"key": "x"}}},
			{Type: llms.ChunkDone},
		},
	}
	a, err := New("helper", provider,
		WithProviderConfig(cfg),
		WithConfig(map[string]any{"stream": true}),
		WithTools(lookupTool(t)))
	require.NoError(t, err)

	reply, err := a.Chat(context.Background(), "loop")
	require.NoError(t, err)

	// the stream ends without raising; hitting the cap is only a warning
	_, err = reply.Wait()
	require.NoError(t, err)
}
