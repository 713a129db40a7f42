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

package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/strand-ai/strand/pkg/config"
	"github.com/strand-ai/strand/pkg/httpclient"
	"github.com/strand-ai/strand/pkg/observability"
	"github.com/strand-ai/strand/pkg/retry"
)

// OpenAIProvider speaks the chat completions API over SSE for streaming.
type OpenAIProvider struct {
	cfg        *config.ProviderConfig
	model      string
	httpClient *httpclient.Client
}

type openaiRequest struct {
	Model               string               `json:"model"`
	Messages            []openaiMessage      `json:"messages"`
	MaxTokens           *int                 `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int                 `json:"max_completion_tokens,omitempty"`
	Temperature         *float64             `json:"temperature,omitempty"`
	TopP                *float64             `json:"top_p,omitempty"`
	Stream              bool                 `json:"stream,omitempty"`
	StreamOptions       *openaiStreamOptions `json:"stream_options,omitempty"`
	Tools               []openaiTool         `json:"tools,omitempty"`
	ToolChoice          any                  `json:"tool_choice,omitempty"`
	ReasoningEffort     string               `json:"reasoning_effort,omitempty"`
}

type openaiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiTool struct {
	Type     string             `json:"type"`
	Function openaiToolFunction `json:"function"`
}

type openaiToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type openaiToolCall struct {
	Index    int                `json:"index,omitempty"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function openaiFunctionCall `json:"function"`
}

type openaiFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openaiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content   string           `json:"content"`
			ToolCalls []openaiToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage openaiUsage  `json:"usage"`
	Error *openaiError `json:"error,omitempty"`
}

type openaiStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content   string           `json:"content,omitempty"`
			Reasoning string           `json:"reasoning,omitempty"`
			ToolCalls []openaiToolCall `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openaiUsage `json:"usage,omitempty"`
	Error *openaiError `json:"error,omitempty"`
}

// NewOpenAIProvider builds an OpenAI provider for the given model. A nil cfg
// is loaded from OPENAI_* environment variables.
func NewOpenAIProvider(cfg *config.ProviderConfig, model string) (*OpenAIProvider, error) {
	if cfg == nil {
		cfg = config.ProviderConfigFromEnv(config.ProviderOpenAI)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if model == "" {
		return nil, fmt.Errorf("openai provider requires a model name")
	}

	httpClient := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		httpclient.WithMaxRetries(0),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
	)

	return &OpenAIProvider{
		cfg:        cfg,
		model:      model,
		httpClient: httpClient,
	}, nil
}

func (p *OpenAIProvider) Name() string  { return config.ProviderOpenAI }
func (p *OpenAIProvider) Model() string { return p.model }

// Close is a no-op; the hosted API holds no per-client state.
func (p *OpenAIProvider) Close(ctx context.Context) error { return nil }

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	tracer := otel.Tracer(observability.TracerName)
	ctx, span := tracer.Start(ctx, observability.SpanLLMGenerate,
		oteltrace.WithAttributes(
			attribute.String(observability.AttrProvider, p.Name()),
			attribute.String(observability.AttrModel, p.model),
			attribute.Bool("llm.streaming", false),
		))
	defer span.End()

	fail := func(err error) (*Response, error) {
		err = retry.Classify(p.Name(), p.cfg.Timeout, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if m := observability.GetGlobalMetrics(); m != nil {
			m.RecordLLMCall(ctx, p.model, time.Since(start), 0, 0, err)
		}
		observability.RecordChatMetric(observability.ChatMetric{
			Model:        p.model,
			Provider:     p.Name(),
			Latency:      time.Since(start),
			Success:      false,
			ErrorMessage: err.Error(),
		})
		return nil, err
	}

	wire, err := p.buildRequest(req, false)
	if err != nil {
		return fail(err)
	}

	resp, err := p.post(ctx, wire)
	if err != nil {
		return fail(err)
	}

	if resp.Error != nil {
		return fail(fmt.Errorf("openai api error: %s", resp.Error.Message))
	}
	if len(resp.Choices) == 0 {
		return fail(fmt.Errorf("openai returned no choices"))
	}

	choice := resp.Choices[0]
	result := &Response{
		Text: choice.Message.Content,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	result.Usage = fillUsage(result.Usage, result.Text)

	if len(choice.Message.ToolCalls) > 0 {
		result.ToolCalls, err = parseOpenAIToolCalls(choice.Message.ToolCalls)
		if err != nil {
			return fail(err)
		}
	}

	span.SetAttributes(
		attribute.Int(observability.AttrTokensIn, result.Usage.InputTokens),
		attribute.Int(observability.AttrTokensOut, result.Usage.OutputTokens),
		attribute.Int(observability.AttrToolCalls, len(result.ToolCalls)),
	)
	span.SetStatus(codes.Ok, "")
	if m := observability.GetGlobalMetrics(); m != nil {
		m.RecordLLMCall(ctx, p.model, time.Since(start),
			result.Usage.InputTokens, result.Usage.OutputTokens, nil)
	}
	observability.RecordChatMetric(observability.ChatMetric{
		Model:            p.model,
		Provider:         p.Name(),
		Latency:          time.Since(start),
		TokensUsed:       result.Usage.TotalTokens,
		PromptTokens:     result.Usage.InputTokens,
		CompletionTokens: result.Usage.OutputTokens,
		Success:          true,
	})

	return result, nil
}

func (p *OpenAIProvider) GenerateStreaming(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	wire, err := p.buildRequest(req, true)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk, 100)
	go func() {
		defer close(out)
		start := time.Now()
		metric := observability.ChatMetric{
			Model:    p.model,
			Provider: p.Name(),
			Success:  true,
		}
		if err := p.stream(ctx, wire, out); err != nil {
			err = retry.Classify(p.Name(), p.cfg.Timeout, err)
			metric.Success = false
			metric.ErrorMessage = err.Error()
			out <- StreamChunk{Type: ChunkError, Err: err}
		}
		metric.Latency = time.Since(start)
		observability.RecordChatMetric(metric)
	}()
	return out, nil
}

func (p *OpenAIProvider) buildRequest(req Request, stream bool) (openaiRequest, error) {
	messages := make([]openaiMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		m := openaiMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		if len(msg.ToolCalls) > 0 {
			m.ToolCalls = make([]openaiToolCall, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				argsJSON, err := json.Marshal(tc.Arguments)
				if err != nil {
					return openaiRequest{}, fmt.Errorf("failed to marshal tool call arguments: %w", err)
				}
				m.ToolCalls[i] = openaiToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openaiFunctionCall{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				}
			}
		}
		messages = append(messages, m)
	}

	wire := openaiRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   stream,
		TopP:     req.Options.TopP,
	}
	if stream {
		wire.StreamOptions = &openaiStreamOptions{IncludeUsage: true}
	}

	reasoning := isReasoningModel(p.model)
	if reasoning {
		// Reasoning models accept only the default temperature and want
		// max_completion_tokens instead of max_tokens.
		wire.MaxCompletionTokens = req.Options.MaxTokens
		wire.ReasoningEffort = reasoningEffort(req.Options.Think)
	} else {
		wire.Temperature = req.Options.Temperature
		wire.MaxTokens = req.Options.MaxTokens
	}

	tools := FilterTools(req.Tools, req.ToolChoice)
	if len(tools) > 0 {
		wire.Tools = make([]openaiTool, len(tools))
		for i, t := range tools {
			wire.Tools[i] = openaiTool{
				Type: "function",
				Function: openaiToolFunction{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			}
		}
		switch req.ToolChoice.Mode {
		case ToolChoiceRequired:
			wire.ToolChoice = "required"
		case ToolChoiceSpecific:
			wire.ToolChoice = map[string]any{
				"type":     "function",
				"function": map[string]any{"name": req.ToolChoice.ToolName},
			}
		default:
			wire.ToolChoice = "auto"
		}
	}

	return wire, nil
}

func (p *OpenAIProvider) post(ctx context.Context, wire openaiRequest) (*openaiResponse, error) {
	resp, err := p.send(ctx, wire)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out openaiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// send posts the request and normalizes non-2xx outcomes into errors that
// keep the httpclient retry-after hint intact for the retry driver.
func (p *OpenAIProvider) send(ctx context.Context, wire openaiRequest) (*http.Response, error) {
	requestBody, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/chat/completions", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if apiErr := parseOpenAIErrorBody(body); apiErr != nil {
				return nil, fmt.Errorf("openai api error (status %d): %s: %w",
					resp.StatusCode, apiErr.Message, err)
			}
		}
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if apiErr := parseOpenAIErrorBody(body); apiErr != nil {
			return nil, fmt.Errorf("openai api error (status %d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("openai request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

func (p *OpenAIProvider) stream(ctx context.Context, wire openaiRequest, out chan<- StreamChunk) error {
	resp, err := p.send(ctx, wire)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return err
	}

	reader := bufio.NewReader(resp.Body)
	toolCalls := make(map[int]*openaiToolCall)
	var usage *Usage

	flushToolCalls := func() error {
		// delta indices may be sparse; sort instead of assuming 0..n-1
		indices := make([]int, 0, len(toolCalls))
		for idx := range toolCalls {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		accumulated := make([]openaiToolCall, 0, len(toolCalls))
		for _, idx := range indices {
			accumulated = append(accumulated, *toolCalls[idx])
		}
		parsed, err := parseOpenAIToolCalls(accumulated)
		if err != nil {
			return err
		}
		for i := range parsed {
			out <- StreamChunk{Type: ChunkToolCall, ToolCall: &parsed[i]}
		}
		return nil
	}

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}

		line = bytes.TrimSpace(line)
		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		line = line[len("data: "):]
		if bytes.Equal(line, []byte("[DONE]")) {
			break
		}

		var chunk openaiStreamResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return fmt.Errorf("openai api error: %s", chunk.Error.Message)
		}
		if chunk.Usage != nil {
			usage = &Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				TotalTokens:  chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Reasoning != "" {
			out <- StreamChunk{Type: ChunkThinking, Text: choice.Delta.Reasoning}
		}
		if choice.Delta.Content != "" {
			out <- StreamChunk{Type: ChunkText, Text: choice.Delta.Content}
		}

		for _, delta := range choice.Delta.ToolCalls {
			if existing, ok := toolCalls[delta.Index]; ok {
				existing.Function.Arguments += delta.Function.Arguments
				if delta.Function.Name != "" {
					existing.Function.Name = delta.Function.Name
				}
			} else {
				tc := delta
				toolCalls[delta.Index] = &tc
			}
		}

		if choice.FinishReason == "tool_calls" || (choice.FinishReason == "stop" && len(toolCalls) > 0) {
			if err := flushToolCalls(); err != nil {
				return err
			}
			toolCalls = make(map[int]*openaiToolCall)
		}
	}

	out <- StreamChunk{Type: ChunkDone, Usage: usage}
	return nil
}

func parseOpenAIToolCalls(wire []openaiToolCall) ([]ToolCall, error) {
	result := make([]ToolCall, len(wire))
	for i, tc := range wire {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("failed to parse arguments for tool '%s': %w", tc.Function.Name, err)
			}
		}
		if args == nil {
			args = map[string]any{}
		}
		result[i] = ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args}
	}
	return result, nil
}

func parseOpenAIErrorBody(body []byte) *openaiError {
	if len(body) == 0 {
		return nil
	}
	var wrapper struct {
		Error openaiError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error.Message != "" {
		return &wrapper.Error
	}
	return nil
}

// isReasoningModel reports whether the model is an o-series or gpt-5 family
// model, which require max_completion_tokens and fixed temperature.
func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	switch m {
	case "o1", "o3", "o4", "gpt-5":
		return true
	}
	for _, prefix := range []string{"o1-", "o3-", "o4-", "gpt-5-"} {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

// reasoningEffort maps the think setting onto reasoning_effort levels.
func reasoningEffort(think any) string {
	switch v := think.(type) {
	case bool:
		if v {
			return "medium"
		}
	case string:
		switch v {
		case "low", "medium", "high":
			return v
		}
	}
	return ""
}
