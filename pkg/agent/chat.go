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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/strand-ai/strand/pkg/llms"
	"github.com/strand-ai/strand/pkg/observability"
	"github.com/strand-ai/strand/pkg/trace"
)

// ChatOption customizes a single turn.
type ChatOption func(*chatOptions)

type chatOptions struct {
	toolChoice llms.ToolChoice
}

// WithToolChoice constrains tool use for this turn: none, required, or a
// specific tool.
func WithToolChoice(choice llms.ToolChoice) ChatOption {
	return func(o *chatOptions) { o.toolChoice = choice }
}

// Chat runs one conversation turn. On success the user message and the
// assistant response are appended to history as one transactional step; on
// any failure (including cancellation) history is left untouched and the
// error surfaces as a *ChatError. trace.end is always emitted before
// returning.
func (a *Agent) Chat(ctx context.Context, userMessage string, opts ...ChatOption) (*Reply, error) {
	if strings.TrimSpace(userMessage) == "" {
		return nil, &ChatError{Kind: KindValidation, Message: "user message cannot be empty"}
	}

	var turn chatOptions
	for _, opt := range opts {
		opt(&turn)
	}
	if turn.toolChoice.Mode == llms.ToolChoiceSpecific {
		if _, ok := a.registry.Get(turn.toolChoice.ToolName); !ok {
			return nil, &ChatError{
				Kind:    KindValidation,
				Message: fmt.Sprintf("tool choice requires unknown tool %q", turn.toolChoice.ToolName),
			}
		}
	}

	root := trace.NewRoot(trace.RunTypeChat, "chat",
		trace.WithAgentName(a.name),
		trace.WithModel(a.provider.Model()),
	)
	ctx = trace.WithAmbient(ctx, root)

	tracer := otel.Tracer(observability.TracerName)
	ctx, span := tracer.Start(ctx, observability.SpanAgentChat,
		oteltrace.WithAttributes(
			attribute.String(observability.AttrAgentName, a.name),
			attribute.String(observability.AttrProvider, a.provider.Name()),
			attribute.String(observability.AttrModel, a.provider.Model()),
		))

	a.tracer.TraceStart(root, map[string]any{
		"message_preview": a.tracer.Preview(userMessage),
	})

	userMsg := llms.Message{Role: llms.RoleUser, Content: userMessage}
	messages := a.assembleMessages(userMsg)

	if a.settings.Stream {
		return a.chatStreaming(ctx, span, root, userMsg, messages, turn.toolChoice)
	}
	return a.chatSync(ctx, span, root, userMsg, messages, turn.toolChoice)
}

// assembleMessages builds the provider message list: optional system
// instructions, the history snapshot, then the new user message.
func (a *Agent) assembleMessages(userMsg llms.Message) []llms.Message {
	var messages []llms.Message
	if a.instructions != "" {
		messages = append(messages, llms.Message{Role: llms.RoleSystem, Content: a.instructions})
	}
	messages = append(messages, a.history.Snapshot()...)
	return append(messages, userMsg)
}

func (a *Agent) chatSync(ctx context.Context, span oteltrace.Span, root trace.Context, userMsg llms.Message, messages []llms.Message, choice llms.ToolChoice) (*Reply, error) {
	start := time.Now()
	text, usage, err := a.runLoop(ctx, root, messages, choice)
	if err != nil {
		chatErr := wrapChatError(err)
		a.finishTurn(ctx, span, root, nil, usage, time.Since(start), chatErr)
		return nil, chatErr
	}

	a.history.AppendTurn(userMsg, llms.Message{Role: llms.RoleAssistant, Content: text})
	a.finishTurn(ctx, span, root, map[string]any{
		"response_preview": a.tracer.Preview(text),
		"total_tokens":     usage.TotalTokens,
	}, usage, time.Since(start), nil)

	return &Reply{text: text}, nil
}

func (a *Agent) chatStreaming(ctx context.Context, span oteltrace.Span, root trace.Context, userMsg llms.Message, messages []llms.Message, choice llms.ToolChoice) (*Reply, error) {
	out := make(chan llms.StreamChunk, 100)
	start := time.Now()

	go func() {
		defer close(out)

		text, usage, err := a.runStreamLoop(ctx, root, messages, choice, out)
		if err != nil {
			chatErr := wrapChatError(err)
			a.finishTurn(ctx, span, root, nil, usage, time.Since(start), chatErr)
			emitChunk(ctx, out, llms.StreamChunk{Type: llms.ChunkError, Err: chatErr})
			return
		}

		a.history.AppendTurn(userMsg, llms.Message{Role: llms.RoleAssistant, Content: text})
		a.finishTurn(ctx, span, root, map[string]any{
			"response_preview": a.tracer.Preview(text),
			"total_tokens":     usage.TotalTokens,
		}, usage, time.Since(start), nil)
	}()

	return &Reply{stream: out}, nil
}

// finishTurn emits trace.end, closes the otel span and records agent-level
// metrics. Runs exactly once per turn, success or failure.
func (a *Agent) finishTurn(ctx context.Context, span oteltrace.Span, root trace.Context, outputs map[string]any, usage llms.Usage, duration time.Duration, chatErr *ChatError) {
	if chatErr != nil {
		a.tracer.TraceEnd(root, nil, string(chatErr.Kind), chatErr)
		span.RecordError(chatErr)
		span.SetStatus(codes.Error, chatErr.Error())
	} else {
		a.tracer.TraceEnd(root, outputs, "", nil)
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	if m := observability.GetGlobalMetrics(); m != nil {
		var err error
		if chatErr != nil {
			err = chatErr
		}
		m.RecordAgentCall(ctx, duration, usage.TotalTokens, err)
	}
}
