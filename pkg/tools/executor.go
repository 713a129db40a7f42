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
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/strand-ai/strand/pkg/observability"
	"github.com/strand-ai/strand/pkg/trace"
)

// Call is one model-emitted tool invocation. Arguments takes precedence over
// RawArguments when both are set.
type Call struct {
	ID           string
	Name         string
	Arguments    map[string]any
	RawArguments string
}

// Executor resolves, validates, injects and invokes tools inside child trace
// contexts. It never propagates a tool's internal failure; every call yields
// a ToolResult.
type Executor struct {
	registry  *ToolRegistry
	validator *Validator
	tracer    *trace.Logger
}

// NewExecutor creates an executor over the given registry. tracer may be nil
// when tracing is not wanted.
func NewExecutor(registry *ToolRegistry, tracer *trace.Logger) *Executor {
	return &Executor{
		registry:  registry,
		validator: NewValidator(),
		tracer:    tracer,
	}
}

// Execute runs one tool call. state is the agent-state snapshot made
// available to injected parameters.
func (e *Executor) Execute(ctx context.Context, call Call, state map[string]any) ToolResult {
	start := time.Now()

	args := call.Arguments
	if args == nil && call.RawArguments != "" {
		if err := json.Unmarshal([]byte(call.RawArguments), &args); err != nil {
			return ToolResult{
				ToolName:      call.Name,
				Success:       false,
				Error:         fmt.Sprintf("failed to parse tool arguments: %v", err),
				ExecutionTime: time.Since(start),
			}
		}
	}
	if args == nil {
		args = map[string]any{}
	}

	tool, ok := e.registry.Get(call.Name)
	if !ok {
		return ToolResult{
			ToolName: call.Name,
			Success:  false,
			Error: fmt.Sprintf("tool '%s' not found (available: %s)",
				call.Name, strings.Join(e.registry.Names(), ", ")),
			ExecutionTime: time.Since(start),
		}
	}

	// child trace context, ambient for the whole invocation
	var toolCtx trace.Context
	if parent, ok := trace.Current(ctx); ok {
		toolCtx = parent.Child(trace.RunTypeTool, "tool."+tool.GetName(), nil)
	} else {
		toolCtx = trace.NewRoot(trace.RunTypeTool, "tool."+tool.GetName())
	}
	ctx = trace.WithAmbient(ctx, toolCtx)

	if e.tracer != nil {
		e.tracer.ToolCall(toolCtx, tool.GetName(), call.ID, args)
	}

	otelTracer := otel.Tracer(observability.TracerName)
	ctx, span := otelTracer.Start(ctx, observability.SpanToolExecute,
		oteltrace.WithAttributes(attribute.String(observability.AttrToolName, tool.GetName())))
	defer span.End()

	result := e.invoke(ctx, tool, call, args, state)
	result.ExecutionTime = time.Since(start)

	var resultErr error
	if !result.Success {
		resultErr = fmt.Errorf("%s", result.Error)
		span.RecordError(resultErr)
		span.SetStatus(codes.Error, result.Error)
	}

	if m := observability.GetGlobalMetrics(); m != nil {
		m.RecordToolExecution(ctx, tool.GetName(), result.ExecutionTime, resultErr)
	}
	if e.tracer != nil {
		preview := result.Content
		if !result.Success {
			preview = result.Error
		}
		e.tracer.ToolResult(toolCtx, tool.GetName(), call.ID, preview, result.ExecutionTime, resultErr)
	}

	return result
}

// invoke validates, injects and runs the tool, converting panics and errors
// into failure results.
func (e *Executor) invoke(ctx context.Context, tool Tool, call Call, args, state map[string]any) (result ToolResult) {
	info := tool.GetInfo()

	defer func() {
		if r := recover(); r != nil {
			result = ToolResult{
				ToolName: tool.GetName(),
				Success:  false,
				Error:    fmt.Sprintf("tool panicked: %v", r),
			}
		}
	}()

	if err := e.validator.Validate(info, args); err != nil {
		return ToolResult{
			ToolName: tool.GetName(),
			Success:  false,
			Error:    err.Error(),
		}
	}

	callInfo := CallInfo{
		ToolCallID: call.ID,
		State:      state,
	}
	if e.tracer != nil {
		if tc, ok := trace.Current(ctx); ok {
			callInfo.Logger = e.tracer.ToolLogger(tc)
		}
	}
	injected := Inject(info, args, callInfo)

	result, err := tool.Execute(ctx, injected)
	result.ToolName = tool.GetName()
	if err != nil {
		result.Success = false
		if result.Error == "" {
			result.Error = err.Error()
		}
	}
	return result
}

// ExecuteMany runs all calls and returns results preserving the input order.
// With parallel=true the calls fan out concurrently, each under its own
// child trace context; one failure never cancels siblings.
func (e *Executor) ExecuteMany(ctx context.Context, calls []Call, state map[string]any, parallel bool) []ToolResult {
	if len(calls) == 0 {
		return nil
	}

	if e.tracer != nil {
		if tc, ok := trace.Current(ctx); ok {
			names := make([]string, len(calls))
			for i, c := range calls {
				names[i] = c.Name
			}
			e.tracer.ToolExecutionStart(tc, names)
		}
	}

	results := make([]ToolResult, len(calls))

	if !parallel {
		for i, call := range calls {
			results[i] = e.Execute(ctx, call, state)
		}
		return results
	}

	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.Execute(ctx, call, state)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
