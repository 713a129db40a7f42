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
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/invopop/jsonschema"
)

// FuncTool wraps a plain function as a Tool. The input schema is inferred
// from the argument struct's fields at construction time. Fields tagged
// `inject:"tool_call_id"`, `inject:"state"` or `inject:"logger"` are filled
// by the argument injector and hidden from the model; they should also carry
// `json:"-"`.
type FuncTool[A any] struct {
	name        string
	description string
	info        ToolInfo
	injected    map[string][]int // param name -> struct field index
	fn          func(ctx context.Context, args A) (any, error)
}

// NewFuncTool wraps fn as a tool named name. A must be a struct.
func NewFuncTool[A any](name, description string, fn func(ctx context.Context, args A) (any, error)) (*FuncTool[A], error) {
	if name == "" {
		return nil, fmt.Errorf("tool name cannot be empty")
	}
	if fn == nil {
		return nil, fmt.Errorf("tool function cannot be nil")
	}

	argType := reflect.TypeOf((*A)(nil)).Elem()
	if argType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("tool argument type must be a struct, got %s", argType.Kind())
	}

	params, injected := reflectParameters(argType)
	schema, err := inferSchema(argType)
	if err != nil {
		return nil, fmt.Errorf("failed to infer schema for tool '%s': %w", name, err)
	}

	return &FuncTool[A]{
		name:        name,
		description: description,
		info: ToolInfo{
			Name:        name,
			Description: description,
			Parameters:  params,
			RawSchema:   schema,
		},
		injected: injected,
		fn:       fn,
	}, nil
}

func (f *FuncTool[A]) GetName() string        { return f.name }
func (f *FuncTool[A]) GetDescription() string { return f.description }
func (f *FuncTool[A]) GetInfo() ToolInfo      { return f.info }

// Execute decodes args into the argument struct, sets injected fields, and
// invokes the wrapped function.
func (f *FuncTool[A]) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	start := time.Now()

	filtered := make(map[string]any, len(args))
	for k, v := range args {
		filtered[k] = v
	}
	injectedValues := make(map[string]any)
	for name := range f.injected {
		if v, ok := filtered[name]; ok {
			injectedValues[name] = v
			delete(filtered, name)
		}
	}

	var a A
	raw, err := json.Marshal(filtered)
	if err == nil {
		err = json.Unmarshal(raw, &a)
	}
	if err != nil {
		decodeErr := fmt.Errorf("failed to decode arguments: %w", err)
		return ToolResult{
			ToolName:      f.name,
			Success:       false,
			Error:         decodeErr.Error(),
			ExecutionTime: time.Since(start),
		}, decodeErr
	}

	f.setInjectedFields(&a, injectedValues)

	value, err := f.fn(ctx, a)
	elapsed := time.Since(start)
	if err != nil {
		return ToolResult{
			ToolName:      f.name,
			Success:       false,
			Error:         err.Error(),
			ExecutionTime: elapsed,
		}, err
	}

	return ToolResult{
		ToolName:      f.name,
		Success:       true,
		Content:       Stringify(value),
		ExecutionTime: elapsed,
	}, nil
}

func (f *FuncTool[A]) setInjectedFields(a *A, values map[string]any) {
	v := reflect.ValueOf(a).Elem()
	for name, index := range f.injected {
		raw, ok := values[name]
		if !ok || raw == nil {
			continue
		}
		field := v.FieldByIndex(index)
		rv := reflect.ValueOf(raw)
		if rv.Type().AssignableTo(field.Type()) {
			field.Set(rv)
		}
	}
}

// reflectParameters builds parameter metadata from the argument struct.
func reflectParameters(t reflect.Type) ([]ToolParameter, map[string][]int) {
	var params []ToolParameter
	injected := make(map[string][]int)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		if kind := InjectKind(field.Tag.Get("inject")); kind != InjectNone {
			name := snakeCase(field.Name)
			params = append(params, ToolParameter{
				Name:   name,
				Type:   schemaType(field.Type),
				Inject: kind,
			})
			injected[name] = field.Index
			continue
		}

		name := field.Name
		required := true
		if tag := field.Tag.Get("json"); tag != "" {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" {
					required = false
				}
			}
		}
		if field.Type.Kind() == reflect.Ptr {
			required = false
		}

		params = append(params, ToolParameter{
			Name:     name,
			Type:     schemaType(field.Type),
			Required: required,
		})
	}

	return params, injected
}

// inferSchema reflects the argument struct into a JSON schema. Unknown keys
// are tolerated so model-supplied values for injected parameters can be
// overwritten rather than rejected.
func inferSchema(t reflect.Type) (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}

	schema := reflector.ReflectFromType(t)
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}

func schemaType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Ptr:
		return schemaType(t.Elem())
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	default:
		return "object"
	}
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 && !unicode.IsUpper(rune(s[i-1])) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Stringify renders a tool's return value as the string fed back to the
// model. Strings pass through; everything else is JSON-encoded.
func Stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
