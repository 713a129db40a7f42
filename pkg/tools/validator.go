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
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator checks model-supplied arguments against a tool's input schema.
// Compiled schemas are cached by tool name; tool names are unique per
// registry so the cache never goes stale.
type Validator struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

// NewValidator creates an empty validator.
func NewValidator() *Validator {
	return &Validator{
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Validate rejects args that are missing required fields, carry mismatched
// types, or hold enum values outside their set.
func (v *Validator) Validate(info ToolInfo, args map[string]any) error {
	schema, err := v.schemaFor(info)
	if err != nil {
		return &ValidationError{Tool: info.Name, Message: "schema compilation failed", Err: err}
	}

	// round-trip so nested values carry plain JSON types
	normalized, err := normalizeArgs(args)
	if err != nil {
		return &ValidationError{Tool: info.Name, Message: "arguments are not JSON-representable", Err: err}
	}

	if err := schema.Validate(normalized); err != nil {
		return &ValidationError{Tool: info.Name, Message: err.Error(), Err: err}
	}
	return nil
}

func (v *Validator) schemaFor(info ToolInfo) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if schema, ok := v.compiled[info.Name]; ok {
		return schema, nil
	}

	raw, err := json.Marshal(info.Schema())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	url := fmt.Sprintf("tool://%s/schema.json", info.Name)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	v.compiled[info.Name] = schema
	return schema, nil
}

func normalizeArgs(args map[string]any) (any, error) {
	if args == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
