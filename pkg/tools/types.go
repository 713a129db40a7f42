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

// Package tools implements the tool registry, argument validation and
// injection, and the executor that fans tool calls out under child trace
// contexts.
package tools

import (
	"context"
	"time"
)

// Tool is a callable capability exposed to the model. Implementations are
// shared-immutable after registration.
type Tool interface {
	GetName() string
	GetDescription() string
	GetInfo() ToolInfo
	// Execute runs the tool with validated and injected arguments. A failing
	// tool returns its error here; the executor converts it into a failure
	// result rather than propagating.
	Execute(ctx context.Context, args map[string]any) (ToolResult, error)
}

// InjectKind marks a parameter as filled from the ambient call context
// instead of the model's JSON arguments.
type InjectKind string

const (
	InjectNone       InjectKind = ""
	InjectToolCallID InjectKind = "tool_call_id"
	InjectState      InjectKind = "state"
	InjectLogger     InjectKind = "logger"
)

// ToolParameter describes one input parameter.
type ToolParameter struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Description string         `json:"description,omitempty"`
	Required    bool           `json:"required,omitempty"`
	Default     any            `json:"default,omitempty"`
	Enum        []string       `json:"enum,omitempty"`
	Items       map[string]any `json:"items,omitempty"`
	Inject      InjectKind     `json:"-"`
}

// ToolInfo is a tool's self-description. RawSchema, when set, is the
// authoritative JSON schema (class-like tools); otherwise the schema is
// derived from Parameters.
type ToolInfo struct {
	Name        string
	Description string
	Parameters  []ToolParameter
	RawSchema   map[string]any
}

// Schema returns the JSON schema for the model-visible arguments. Injected
// parameters are excluded; the model never sees them.
func (i ToolInfo) Schema() map[string]any {
	if i.RawSchema != nil {
		return i.RawSchema
	}

	properties := make(map[string]any)
	var required []string
	for _, p := range i.Parameters {
		if p.Inject != InjectNone {
			continue
		}
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			enum := make([]any, len(p.Enum))
			for j, e := range p.Enum {
				enum[j] = e
			}
			prop["enum"] = enum
		}
		if p.Items != nil {
			prop["items"] = p.Items
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// InjectedParameters returns the parameters filled by the injector.
func (i ToolInfo) InjectedParameters() []ToolParameter {
	var out []ToolParameter
	for _, p := range i.Parameters {
		if p.Inject != InjectNone {
			out = append(out, p)
		}
	}
	return out
}

// ToolResult is the outcome of one tool invocation.
type ToolResult struct {
	ToolName      string         `json:"tool_name"`
	Success       bool           `json:"success"`
	Content       string         `json:"content,omitempty"`
	Error         string         `json:"error,omitempty"`
	ExecutionTime time.Duration  `json:"execution_time"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}
