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

package trace

import "time"

// Event identifies a life-cycle moment. The set is closed.
type Event string

const (
	EventTraceStart         Event = "trace.start"
	EventTraceEnd           Event = "trace.end"
	EventToolCall           Event = "tool.call"
	EventToolResult         Event = "tool.result"
	EventLLMRequest         Event = "llm.request"
	EventLLMResponse        Event = "llm.response"
	EventLLMIterationStart  Event = "llm.iteration.start"
	EventToolExecutionStart Event = "tool.execution.start"
	EventToolLog            Event = "tool.log"
)

// Status of a traced operation.
type Status string

const (
	StatusStarted Status = "started"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry is the persisted unit of tracing. Optional fields are omitted from
// JSON to keep trace files compact.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id"`
	RunID     string    `json:"run_id"`
	RunType   RunType   `json:"run_type"`
	Operation string    `json:"operation"`
	Event     Event     `json:"event"`

	ParentRunID string `json:"parent_run_id,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	AgentName   string `json:"agent_name,omitempty"`
	Model       string `json:"model,omitempty"`

	Status     Status         `json:"status,omitempty"`
	Inputs     map[string]any `json:"inputs,omitempty"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	DurationMS float64        `json:"duration_ms,omitempty"`

	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
	TotalTokens  int     `json:"total_tokens,omitempty"`
	CostUSD      float64 `json:"cost_usd,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorStack   string `json:"error_stack,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewEntry builds an entry for the given context and event, stamped now.
func NewEntry(tc Context, event Event) Entry {
	return Entry{
		Timestamp:   time.Now(),
		TraceID:     tc.TraceID,
		RunID:       tc.RunID,
		RunType:     tc.RunType,
		Operation:   tc.Operation,
		Event:       event,
		ParentRunID: tc.ParentRunID,
		SessionID:   tc.SessionID,
		AgentName:   tc.AgentName,
		Model:       tc.Model,
		Metadata:    copyMetadata(tc.Metadata),
	}
}
