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

// Package llms holds the provider-neutral message model and the Provider
// implementations for OpenAI-compatible and Ollama endpoints.
package llms

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one conversation turn in provider-neutral form.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Thinking  string     `json:"thinking,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Set on tool-result messages. ToolCallID is what OpenAI keys results by,
	// ToolName is what Ollama keys them by; the loop fills both.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

// ToolCall is a model-emitted request to invoke a tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDefinition is the model-visible description of a tool.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Usage carries token accounting for one provider call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is the normalized non-streaming provider result. Exactly one of
// Text and ToolCalls is meaningful; HasToolCalls distinguishes them.
type Response struct {
	Text      string
	Thinking  string
	ToolCalls []ToolCall
	Usage     Usage
}

func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Stream chunk kinds.
const (
	ChunkText     = "text"
	ChunkThinking = "thinking"
	ChunkToolCall = "tool_call"
	ChunkDone     = "done"
	ChunkError    = "error"
)

// StreamChunk is one event on a provider token stream.
type StreamChunk struct {
	Type     string
	Text     string
	ToolCall *ToolCall
	Usage    *Usage
	Err      error
}

// Tool choice modes.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceNone     = "none"
	ToolChoiceRequired = "required"
	ToolChoiceSpecific = "specific"
)

// ToolChoice constrains which tools the model may call on a request.
// The zero value means auto.
type ToolChoice struct {
	Mode     string
	ToolName string
}

// Specific builds a tool choice forcing the named tool.
func Specific(name string) ToolChoice {
	return ToolChoice{Mode: ToolChoiceSpecific, ToolName: name}
}

// FilterTools applies tool-choice semantics at the tools-list level, which
// also simulates forced choice on providers without native support:
// none suppresses all tools, specific narrows the list to the one tool,
// auto and required pass everything through.
func FilterTools(tools []ToolDefinition, choice ToolChoice) []ToolDefinition {
	switch choice.Mode {
	case ToolChoiceNone:
		return nil
	case ToolChoiceSpecific:
		for _, t := range tools {
			if t.Name == choice.ToolName {
				return []ToolDefinition{t}
			}
		}
		return nil
	default:
		return tools
	}
}

// Options are per-request sampling settings. Nil fields are omitted so each
// provider applies its own defaults.
type Options struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
	TopK        *int

	// Think is a bool, or one of "low", "medium", "high" for models with
	// tunable reasoning effort. Nil leaves thinking untouched.
	Think any
}

// Request is one provider call.
type Request struct {
	Messages   []Message
	Tools      []ToolDefinition
	ToolChoice ToolChoice
	Options    Options
}

// Provider is a chat-completion backend. Generate returns the normalized
// final response; GenerateStreaming yields chunks on a channel that is closed
// when the stream ends. Close releases provider resources (for local runners
// this unloads the model) and is best-effort.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req Request) (*Response, error)
	GenerateStreaming(ctx context.Context, req Request) (<-chan StreamChunk, error)
	Close(ctx context.Context) error
}
