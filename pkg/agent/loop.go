// Copyright 2025 Strand AI
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/strand-ai/strand/pkg/llms"
	"github.com/strand-ai/strand/pkg/retry"
	"github.com/strand-ai/strand/pkg/tools"
	"github.com/strand-ai/strand/pkg/trace"
)

// runLoop is the non-streaming tool-calling loop. It owns the working
// message list for the turn; the agent history is only updated by the caller
// once the whole turn succeeds.
func (a *Agent) runLoop(ctx context.Context, parent trace.Context, messages []llms.Message, choice llms.ToolChoice) (string, llms.Usage, error) {
	defer a.cleanupProvider(ctx)

	defs := a.toolDefinitions()
	maxIter := a.providerCfg.MaxToolIterations
	var total llms.Usage

	for i := 1; ; i++ {
		if i > maxIter {
			return "", total, &ChatError{
				Kind:    KindIterationCapExceeded,
				Message: fmt.Sprintf("max tool iterations exceeded (%d)", maxIter),
			}
		}

		llmTC := parent.Child(trace.RunTypeLLM, "llm", map[string]any{"iteration": i})
		iterCtx := trace.WithAmbient(ctx, llmTC)
		a.tracer.IterationStart(llmTC, i, maxIter)
		a.tracer.LLMRequest(llmTC, a.provider.Model(), len(messages), len(llms.FilterTools(defs, choice)))

		req := llms.Request{
			Messages:   messages,
			Tools:      defs,
			ToolChoice: choice,
			Options:    a.options(),
		}

		start := time.Now()
		resp, err := retry.DoValue(iterCtx, a.retryPolicy, func(ctx context.Context) (*llms.Response, error) {
			var r *llms.Response
			err := a.limiter.Do(ctx, func(ctx context.Context) error {
				var callErr error
				r, callErr = a.provider.Generate(ctx, req)
				return callErr
			})
			return r, err
		})
		if err != nil {
			return "", total, err
		}

		total = addUsage(total, resp.Usage)
		a.tracer.LLMResponse(llmTC, a.provider.Model(), resp.Text, len(resp.ToolCalls),
			resp.Usage.InputTokens, resp.Usage.OutputTokens, time.Since(start))

		if !resp.HasToolCalls() {
			return resp.Text, total, nil
		}

		messages = append(messages, llms.Message{
			Role:      llms.RoleAssistant,
			Content:   resp.Text,
			Thinking:  resp.Thinking,
			ToolCalls: resp.ToolCalls,
		})
		messages = a.executeToolCalls(iterCtx, messages, resp.ToolCalls)

		// The model has seen the tool results; let it answer freely now
		// instead of being forced into another call.
		choice = llms.ToolChoice{Mode: llms.ToolChoiceAuto}
	}
}

// runStreamLoop is the streaming variant. Token deltas are forwarded to out
// as they arrive; a tool-call indication stops stream consumption, runs the
// tools and re-enters the loop. Hitting the iteration cap ends the stream
// with a warning instead of an error.
func (a *Agent) runStreamLoop(ctx context.Context, parent trace.Context, messages []llms.Message, choice llms.ToolChoice, out chan<- llms.StreamChunk) (string, llms.Usage, error) {
	defer a.cleanupProvider(ctx)

	defs := a.toolDefinitions()
	maxIter := a.providerCfg.MaxToolIterations
	var final strings.Builder
	var total llms.Usage

	for i := 1; ; i++ {
		if i > maxIter {
			a.log.Warn("Max tool iterations exceeded mid-stream, ending stream",
				"agent", a.name,
				"max_iterations", maxIter)
			if !emitChunk(ctx, out, llms.StreamChunk{Type: llms.ChunkDone, Usage: &total}) {
				return "", total, ctx.Err()
			}
			return final.String(), total, nil
		}

		llmTC := parent.Child(trace.RunTypeLLM, "llm", map[string]any{"iteration": i})
		a.tracer.IterationStart(llmTC, i, maxIter)
		a.tracer.LLMRequest(llmTC, a.provider.Model(), len(messages), len(llms.FilterTools(defs, choice)))

		req := llms.Request{
			Messages:   messages,
			Tools:      defs,
			ToolChoice: choice,
			Options:    a.options(),
		}

		start := time.Now()
		iterText, toolCalls, usage, err := a.consumeStream(trace.WithAmbient(ctx, llmTC), req, out)
		if err != nil {
			return "", total, err
		}

		total = addUsage(total, usage)
		final.WriteString(iterText)
		a.tracer.LLMResponse(llmTC, a.provider.Model(), iterText, len(toolCalls),
			usage.InputTokens, usage.OutputTokens, time.Since(start))

		if len(toolCalls) == 0 {
			if !emitChunk(ctx, out, llms.StreamChunk{Type: llms.ChunkDone, Usage: &total}) {
				return "", total, ctx.Err()
			}
			return final.String(), total, nil
		}

		messages = append(messages, llms.Message{
			Role:      llms.RoleAssistant,
			Content:   iterText,
			ToolCalls: toolCalls,
		})
		messages = a.executeToolCalls(trace.WithAmbient(ctx, llmTC), messages, toolCalls)
		choice = llms.ToolChoice{Mode: llms.ToolChoiceAuto}
	}
}

// consumeStream opens one provider stream under the rate limiter and reads
// it until completion or a tool-call indication. On tool calls the in-flight
// stream is cancelled and drained so the provider goroutine can exit before
// the next iteration starts.
func (a *Agent) consumeStream(ctx context.Context, req llms.Request, out chan<- llms.StreamChunk) (string, []llms.ToolCall, llms.Usage, error) {
	if err := a.limiter.Acquire(ctx); err != nil {
		return "", nil, llms.Usage{}, err
	}
	defer a.limiter.Release()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := a.provider.GenerateStreaming(streamCtx, req)
	if err != nil {
		return "", nil, llms.Usage{}, err
	}

	var text strings.Builder
	var toolCalls []llms.ToolCall
	var usage llms.Usage

consume:
	for chunk := range ch {
		switch chunk.Type {
		case llms.ChunkText:
			text.WriteString(chunk.Text)
			if !emitChunk(ctx, out, chunk) {
				cancel()
				for range ch {
				}
				return "", nil, llms.Usage{}, ctx.Err()
			}
		case llms.ChunkThinking:
			if !emitChunk(ctx, out, chunk) {
				cancel()
				for range ch {
				}
				return "", nil, llms.Usage{}, ctx.Err()
			}
		case llms.ChunkToolCall:
			toolCalls = append(toolCalls, *chunk.ToolCall)
		case llms.ChunkDone:
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
			break consume
		case llms.ChunkError:
			cancel()
			for range ch {
			}
			return "", nil, llms.Usage{}, chunk.Err
		}
	}

	// Stop the provider goroutine and drain whatever it already buffered.
	cancel()
	for range ch {
	}

	if usage.TotalTokens == 0 {
		usage = llms.Usage{OutputTokens: llms.EstimateTokens(text.String())}
		usage.TotalTokens = usage.OutputTokens
	}
	return text.String(), toolCalls, usage, nil
}

// executeToolCalls fans the calls out in parallel and appends one tool
// message per result, preserving call order. Failed tools become messages
// starting with "Error:" so the model can see and react to the failure.
func (a *Agent) executeToolCalls(ctx context.Context, messages []llms.Message, calls []llms.ToolCall) []llms.Message {
	execCalls := make([]tools.Call, len(calls))
	for i, c := range calls {
		execCalls[i] = tools.Call{ID: c.ID, Name: c.Name, Arguments: c.Arguments}
	}

	results := a.executor.ExecuteMany(ctx, execCalls, a.state, true)

	for i, result := range results {
		content := result.Content
		if !result.Success {
			content = "Error: " + result.Error
		}
		messages = append(messages, llms.Message{
			Role:       llms.RoleTool,
			Content:    content,
			ToolCallID: calls[i].ID,
			ToolName:   calls[i].Name,
		})
	}
	return messages
}

// emitChunk forwards a chunk to the turn's output channel unless the turn
// context is gone. A caller that cancels and abandons a streaming Reply
// without draining it must not pin the turn goroutine once the buffer fills.
func emitChunk(ctx context.Context, out chan<- llms.StreamChunk, chunk llms.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// cleanupProvider runs provider cleanup (local-model unload for Ollama) on
// the finally path. It survives turn cancellation and never masks the turn's
// outcome.
func (a *Agent) cleanupProvider(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := a.provider.Close(cleanupCtx); err != nil {
		a.log.Warn("Provider cleanup failed", "provider", a.provider.Name(), "error", err)
	}
}

func addUsage(a, b llms.Usage) llms.Usage {
	return llms.Usage{
		InputTokens:  a.InputTokens + b.InputTokens,
		OutputTokens: a.OutputTokens + b.OutputTokens,
		TotalTokens:  a.TotalTokens + b.TotalTokens,
	}
}
