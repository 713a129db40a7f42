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

package tools

import (
	"context"
	"fmt"
	"time"
)

// SchemaTool is a class-like tool carrying its own JSON schema. The handler
// receives the validated and injected argument map.
type SchemaTool struct {
	name        string
	description string
	info        ToolInfo
	handler     func(ctx context.Context, args map[string]any) (any, error)
}

// SchemaToolOption customizes a SchemaTool.
type SchemaToolOption func(*SchemaTool)

// WithInjectedParam declares a parameter filled by the injector instead of
// the model.
func WithInjectedParam(name string, kind InjectKind) SchemaToolOption {
	return func(t *SchemaTool) {
		t.info.Parameters = append(t.info.Parameters, ToolParameter{
			Name:   name,
			Inject: kind,
		})
	}
}

// NewSchemaTool creates a tool from an explicit JSON schema and handler.
func NewSchemaTool(name, description string, schema map[string]any, handler func(ctx context.Context, args map[string]any) (any, error), opts ...SchemaToolOption) (*SchemaTool, error) {
	if name == "" {
		return nil, fmt.Errorf("tool name cannot be empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("tool handler cannot be nil")
	}
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	t := &SchemaTool{
		name:        name,
		description: description,
		info: ToolInfo{
			Name:        name,
			Description: description,
			RawSchema:   schema,
		},
		handler: handler,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *SchemaTool) GetName() string        { return t.name }
func (t *SchemaTool) GetDescription() string { return t.description }
func (t *SchemaTool) GetInfo() ToolInfo      { return t.info }

func (t *SchemaTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	start := time.Now()

	value, err := t.handler(ctx, args)
	elapsed := time.Since(start)
	if err != nil {
		return ToolResult{
			ToolName:      t.name,
			Success:       false,
			Error:         err.Error(),
			ExecutionTime: elapsed,
		}, err
	}

	return ToolResult{
		ToolName:      t.name,
		Success:       true,
		Content:       Stringify(value),
		ExecutionTime: elapsed,
	}, nil
}
