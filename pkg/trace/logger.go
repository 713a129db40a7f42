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

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultPreviewLimit = 200
	maxPayloadLimit     = 10000
)

// Logger translates orchestrator events into trace entries and human log
// lines. Store failures are logged and dropped; tracing never raises into
// the orchestrator.
type Logger struct {
	store        Store
	log          *slog.Logger
	previewLimit int
}

// LoggerOption customizes a Logger.
type LoggerOption func(*Logger)

// WithSlog overrides the human log sink.
func WithSlog(log *slog.Logger) LoggerOption {
	return func(l *Logger) { l.log = log }
}

// WithPreviewLimit overrides the preview truncation bound.
func WithPreviewLimit(limit int) LoggerOption {
	return func(l *Logger) {
		if limit > 0 && limit <= maxPayloadLimit {
			l.previewLimit = limit
		}
	}
}

// NewLogger creates a trace logger writing entries to store.
func NewLogger(store Store, opts ...LoggerOption) *Logger {
	l := &Logger{
		store:        store,
		log:          slog.Default(),
		previewLimit: defaultPreviewLimit,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// save persists best-effort. A store failure must never abort the traced
// operation.
func (l *Logger) save(entry Entry) {
	if l.store == nil {
		return
	}
	if err := l.store.Save(entry); err != nil {
		l.log.Warn("Failed to save trace entry",
			"event", entry.Event,
			"trace_id", entry.TraceID,
			"error", err)
	}
}

// Preview truncates s to the preview bound with an ellipsis marker.
func (l *Logger) Preview(s string) string {
	if len(s) <= l.previewLimit {
		return s
	}
	return s[:l.previewLimit] + "..."
}

// TraceStart emits trace.start with status=started.
func (l *Logger) TraceStart(tc Context, inputs map[string]any) {
	l.log.Info("🚀 Starting "+tc.Operation,
		"trace_id", tc.TraceID,
		"run_id", tc.RunID,
		"run_type", string(tc.RunType))

	entry := NewEntry(tc, EventTraceStart)
	entry.Status = StatusStarted
	entry.Inputs = inputs
	l.save(entry)
}

// TraceEnd emits trace.end with duration and terminal status. A non-nil err
// marks the trace failed and records the error fields.
func (l *Logger) TraceEnd(tc Context, outputs map[string]any, errType string, err error) {
	duration := float64(time.Since(tc.StartTime).Microseconds()) / 1000.0

	entry := NewEntry(tc, EventTraceEnd)
	entry.Outputs = outputs
	entry.DurationMS = duration

	if err != nil {
		entry.Status = StatusError
		entry.ErrorMessage = err.Error()
		entry.ErrorType = errType
		l.log.Warn("💥 Failed "+tc.Operation,
			"trace_id", tc.TraceID,
			"duration_ms", duration,
			"error", err)
	} else {
		entry.Status = StatusSuccess
		l.log.Info("🏁 Completed "+tc.Operation,
			"trace_id", tc.TraceID,
			"duration_ms", duration)
	}
	l.save(entry)
}

// IterationStart emits llm.iteration.start.
func (l *Logger) IterationStart(tc Context, iteration, maxIterations int) {
	l.log.Debug("🔄 Tool loop iteration",
		"iteration", iteration,
		"max_iterations", maxIterations)

	entry := NewEntry(tc, EventLLMIterationStart)
	entry.Data = map[string]any{
		"iteration":      iteration,
		"max_iterations": maxIterations,
	}
	l.save(entry)
}

// LLMRequest emits llm.request.
func (l *Logger) LLMRequest(tc Context, model string, messagesCount, toolsAvailable int) {
	l.log.Debug("🧠 LLM request",
		"model", model,
		"messages", messagesCount,
		"tools", toolsAvailable)

	entry := NewEntry(tc, EventLLMRequest)
	entry.Data = map[string]any{
		"model":           model,
		"messages_count":  messagesCount,
		"tools_available": toolsAvailable,
	}
	l.save(entry)
}

// LLMResponse emits llm.response with token counts and a response preview.
func (l *Logger) LLMResponse(tc Context, model, response string, toolCallsCount int, inputTokens, outputTokens int, duration time.Duration) {
	durationMS := float64(duration.Microseconds()) / 1000.0
	hasToolCalls := toolCallsCount > 0

	l.log.Debug("💬 LLM response",
		"model", model,
		"has_tool_calls", hasToolCalls,
		"tool_calls", toolCallsCount,
		"duration_ms", durationMS)

	entry := NewEntry(tc, EventLLMResponse)
	entry.Data = map[string]any{
		"model":            model,
		"response_preview": l.Preview(response),
		"has_tool_calls":   hasToolCalls,
		"tool_calls_count": toolCallsCount,
	}
	entry.InputTokens = inputTokens
	entry.OutputTokens = outputTokens
	entry.TotalTokens = inputTokens + outputTokens
	entry.DurationMS = durationMS
	l.save(entry)
}

// ToolExecutionStart emits tool.execution.start for a fan-out of N tools.
func (l *Logger) ToolExecutionStart(tc Context, toolNames []string) {
	l.log.Info("⚡ Executing tools",
		"count", len(toolNames),
		"tools", toolNames)

	entry := NewEntry(tc, EventToolExecutionStart)
	entry.Data = map[string]any{
		"tool_count": len(toolNames),
		"tool_names": toolNames,
	}
	l.save(entry)
}

// ToolCall emits tool.call just before a tool runs.
func (l *Logger) ToolCall(tc Context, toolName, toolCallID string, inputs map[string]any) {
	l.log.Info("🔧 Calling tool "+toolName,
		"tool_call_id", toolCallID)

	entry := NewEntry(tc, EventToolCall)
	entry.Status = StatusStarted
	entry.Inputs = inputs
	entry.Data = map[string]any{
		"tool_name":    toolName,
		"tool_call_id": toolCallID,
	}
	l.save(entry)
}

// ToolResult emits tool.result with duration and a result preview.
func (l *Logger) ToolResult(tc Context, toolName, toolCallID, result string, duration time.Duration, err error) {
	durationMS := float64(duration.Microseconds()) / 1000.0

	entry := NewEntry(tc, EventToolResult)
	entry.DurationMS = durationMS
	entry.Data = map[string]any{
		"tool_name":      toolName,
		"tool_call_id":   toolCallID,
		"result_preview": l.Preview(result),
	}

	if err != nil {
		entry.Status = StatusError
		entry.ErrorMessage = err.Error()
		l.log.Warn("❌ Tool failed "+toolName,
			"tool_call_id", toolCallID,
			"duration_ms", durationMS,
			"error", err)
	} else {
		entry.Status = StatusSuccess
		l.log.Info("✅ Tool completed "+toolName,
			"tool_call_id", toolCallID,
			"duration_ms", durationMS)
	}
	l.save(entry)
}

// ToolLog emits tool.log for a message from inside tool code.
func (l *Logger) ToolLog(tc Context, level, message string) {
	l.log.Log(context.Background(), slogLevel(level), "🪵 "+message,
		"tool", tc.Operation,
		"trace_id", tc.TraceID)

	entry := NewEntry(tc, EventToolLog)
	entry.Data = map[string]any{
		"level":   level,
		"message": message,
	}
	l.save(entry)
}

func slogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ToolLogger is the logger handed to tools through argument injection. Every
// message becomes a tool.log entry bound to the tool's trace context.
type ToolLogger struct {
	logger *Logger
	tc     Context
}

// ToolLogger binds a tool-facing logger to tc.
func (l *Logger) ToolLogger(tc Context) *ToolLogger {
	return &ToolLogger{logger: l, tc: tc}
}

func (t *ToolLogger) Debug(message string) { t.logger.ToolLog(t.tc, "debug", message) }
func (t *ToolLogger) Info(message string)  { t.logger.ToolLog(t.tc, "info", message) }
func (t *ToolLogger) Warn(message string)  { t.logger.ToolLog(t.tc, "warn", message) }
func (t *ToolLogger) Error(message string) { t.logger.ToolLog(t.tc, "error", message) }
