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

// Package trace implements hierarchical execution tracing: an immutable
// per-operation context propagated through context.Context, typed entries,
// and pluggable stores. Saving is best-effort; tracing never fails the
// operation being traced.
package trace

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunType classifies a traced unit.
type RunType string

const (
	RunTypeChat  RunType = "chat"
	RunTypeLLM   RunType = "llm"
	RunTypeTool  RunType = "tool"
	RunTypeChain RunType = "chain"
	RunTypeAgent RunType = "agent"
)

// Context is an immutable per-operation trace identifier. TraceID is stable
// across a whole turn; RunID is unique per operation. Copy freely.
type Context struct {
	TraceID     string
	RunID       string
	ParentRunID string
	RunType     RunType
	Operation   string
	SessionID   string
	AgentName   string
	Model       string
	Metadata    map[string]any
	StartTime   time.Time
}

// RootOption customizes a root trace context.
type RootOption func(*Context)

func WithSessionID(sessionID string) RootOption {
	return func(c *Context) { c.SessionID = sessionID }
}

func WithAgentName(agentName string) RootOption {
	return func(c *Context) { c.AgentName = agentName }
}

func WithModel(model string) RootOption {
	return func(c *Context) { c.Model = model }
}

func WithMetadata(metadata map[string]any) RootOption {
	return func(c *Context) { c.Metadata = copyMetadata(metadata) }
}

// NewRoot creates a trace context with fresh trace and run ids and no parent.
func NewRoot(runType RunType, operation string, opts ...RootOption) Context {
	c := Context{
		TraceID:   uuid.New().String(),
		RunID:     uuid.New().String(),
		RunType:   runType,
		Operation: operation,
		StartTime: time.Now(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Child derives a context for a nested operation: fresh run id, this
// context's run id as parent, inherited trace/session/agent/model.
func (c Context) Child(runType RunType, operation string, metadata map[string]any) Context {
	return Context{
		TraceID:     c.TraceID,
		RunID:       uuid.New().String(),
		ParentRunID: c.RunID,
		RunType:     runType,
		Operation:   operation,
		SessionID:   c.SessionID,
		AgentName:   c.AgentName,
		Model:       c.Model,
		Metadata:    copyMetadata(metadata),
		StartTime:   time.Now(),
	}
}

func copyMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}

type ambientKey struct{}

// WithAmbient installs tc as the ambient trace context. Each derived
// context.Context carries its own value, so parallel tool fan-out sees each
// tool's own child context and concurrent turns stay independent.
func WithAmbient(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ambientKey{}, tc)
}

// Current reads the ambient trace context.
func Current(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ambientKey{}).(Context)
	return tc, ok
}
