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
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/strand-ai/strand/pkg/config"
	"github.com/strand-ai/strand/pkg/httpclient"
	"github.com/strand-ai/strand/pkg/observability"
	"github.com/strand-ai/strand/pkg/retry"
)

// OllamaProvider speaks the /api/chat NDJSON protocol of a local Ollama
// runner. Close unloads the model so local memory is released.
type OllamaProvider struct {
	cfg        *config.ProviderConfig
	model      string
	httpClient *httpclient.Client
	log        *slog.Logger
}

type ollamaRequest struct {
	Model     string          `json:"model"`
	Messages  []ollamaMessage `json:"messages"`
	Stream    bool            `json:"stream"`
	Options   *ollamaOptions  `json:"options,omitempty"`
	Tools     []ollamaTool    `json:"tools,omitempty"`
	Think     any             `json:"think,omitempty"`
	KeepAlive *int            `json:"keep_alive,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Thinking  string           `json:"thinking,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ollamaToolCall struct {
	Function struct {
		Index     int            `json:"index,omitempty"`
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error,omitempty"`
}

// NewOllamaProvider builds an Ollama provider for the given model. A nil cfg
// is loaded from OLLAMA_* environment variables.
func NewOllamaProvider(cfg *config.ProviderConfig, model string) (*OllamaProvider, error) {
	if cfg == nil {
		cfg = config.ProviderConfigFromEnv(config.ProviderOllama)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if model == "" {
		return nil, fmt.Errorf("ollama provider requires a model name")
	}

	httpClient := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		httpclient.WithMaxRetries(0),
		httpclient.WithHeaderParser(httpclient.ParseOllamaHeaders),
	)

	return &OllamaProvider{
		cfg:        cfg,
		model:      model,
		httpClient: httpClient,
		log:        slog.Default(),
	}, nil
}

func (p *OllamaProvider) Name() string  { return config.ProviderOllama }
func (p *OllamaProvider) Model() string { return p.model }

// Close asks the runner to unload the model. Best-effort: a failure is logged
// and swallowed so it never masks the outcome of the turn.
func (p *OllamaProvider) Close(ctx context.Context) error {
	zero := 0
	wire := ollamaRequest{
		Model:     p.model,
		Messages:  []ollamaMessage{},
		Stream:    false,
		KeepAlive: &zero,
	}

	resp, err := p.send(ctx, wire)
	if resp != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	if err != nil {
		p.log.Warn("Failed to unload ollama model", "model", p.model, "error", err)
	}
	return nil
}

func (p *OllamaProvider) Generate(ctx context.Context, req Request) (*Response, error) {
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

	wire := p.buildRequest(req, false)

	resp, err := p.post(ctx, wire)
	if err != nil {
		return fail(err)
	}
	if resp.Error != "" {
		return fail(fmt.Errorf("ollama api error: %s", resp.Error))
	}

	result := &Response{
		Text:     resp.Message.Content,
		Thinking: resp.Message.Thinking,
		Usage: Usage{
			InputTokens:  resp.PromptEvalCount,
			OutputTokens: resp.EvalCount,
		},
	}
	result.Usage = fillUsage(result.Usage, result.Text)
	if len(resp.Message.ToolCalls) > 0 {
		result.ToolCalls = parseOllamaToolCalls(resp.Message.ToolCalls)
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

func (p *OllamaProvider) GenerateStreaming(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	wire := p.buildRequest(req, true)

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

func (p *OllamaProvider) buildRequest(req Request, stream bool) ollamaRequest {
	messages := make([]ollamaMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		m := ollamaMessage{
			Role:     msg.Role,
			Content:  msg.Content,
			Thinking: msg.Thinking,
			ToolName: msg.ToolName,
		}
		if len(msg.ToolCalls) > 0 {
			m.ToolCalls = make([]ollamaToolCall, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				args := tc.Arguments
				if args == nil {
					args = map[string]any{}
				}
				m.ToolCalls[i].Function.Index = i
				m.ToolCalls[i].Function.Name = tc.Name
				m.ToolCalls[i].Function.Arguments = args
			}
		}
		messages = append(messages, m)
	}

	wire := ollamaRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   stream,
		Think:    req.Options.Think,
	}

	if req.Options.Temperature != nil || req.Options.MaxTokens != nil ||
		req.Options.TopP != nil || req.Options.TopK != nil {
		wire.Options = &ollamaOptions{
			Temperature: req.Options.Temperature,
			NumPredict:  req.Options.MaxTokens,
			TopP:        req.Options.TopP,
			TopK:        req.Options.TopK,
		}
	}

	tools := FilterTools(req.Tools, req.ToolChoice)
	if len(tools) > 0 {
		wire.Tools = make([]ollamaTool, len(tools))
		for i, t := range tools {
			wire.Tools[i] = ollamaTool{
				Type: "function",
				Function: ollamaToolFunction{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			}
		}
	}

	return wire
}

func (p *OllamaProvider) post(ctx context.Context, wire ollamaRequest) (*ollamaResponse, error) {
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

	var out ollamaResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

func (p *OllamaProvider) send(ctx context.Context, wire ollamaRequest) (*http.Response, error) {
	requestBody, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	baseURL := strings.TrimSuffix(p.cfg.BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		baseURL+"/api/chat", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if msg := parseOllamaErrorBody(body); msg != "" {
				return nil, fmt.Errorf("ollama api error (status %d): %s: %w", resp.StatusCode, msg, err)
			}
		}
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if msg := parseOllamaErrorBody(body); msg != "" {
			return nil, fmt.Errorf("ollama api error (status %d): %s", resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("ollama request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

func (p *OllamaProvider) stream(ctx context.Context, wire ollamaRequest, out chan<- StreamChunk) error {
	resp, err := p.send(ctx, wire)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return err
	}

	reader := bufio.NewReader(resp.Body)
	toolCalls := make(map[int]*ollamaToolCall)

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var chunk ollamaResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			return fmt.Errorf("ollama api error: %s", chunk.Error)
		}

		if chunk.Message.Thinking != "" {
			out <- StreamChunk{Type: ChunkThinking, Text: chunk.Message.Thinking}
		}
		if chunk.Message.Content != "" {
			out <- StreamChunk{Type: ChunkText, Text: chunk.Message.Content}
		}

		for _, tc := range chunk.Message.ToolCalls {
			idx := tc.Function.Index
			if idx < 0 {
				idx = len(toolCalls)
			}
			if existing, ok := toolCalls[idx]; ok {
				for k, v := range tc.Function.Arguments {
					existing.Function.Arguments[k] = v
				}
			} else {
				copied := tc
				if copied.Function.Arguments == nil {
					copied.Function.Arguments = map[string]any{}
				}
				toolCalls[idx] = &copied
			}
		}

		if chunk.Done {
			if len(toolCalls) > 0 {
				indices := make([]int, 0, len(toolCalls))
				for idx := range toolCalls {
					indices = append(indices, idx)
				}
				sort.Ints(indices)
				accumulated := make([]ollamaToolCall, 0, len(toolCalls))
				for _, idx := range indices {
					accumulated = append(accumulated, *toolCalls[idx])
				}
				parsed := parseOllamaToolCalls(accumulated)
				for i := range parsed {
					out <- StreamChunk{Type: ChunkToolCall, ToolCall: &parsed[i]}
				}
			}
			out <- StreamChunk{Type: ChunkDone, Usage: &Usage{
				InputTokens:  chunk.PromptEvalCount,
				OutputTokens: chunk.EvalCount,
				TotalTokens:  chunk.PromptEvalCount + chunk.EvalCount,
			}}
			break
		}
	}

	return nil
}

// parseOllamaToolCalls normalizes wire calls. Ollama does not assign call
// ids, so each call gets a fresh uuid-backed one.
func parseOllamaToolCalls(wire []ollamaToolCall) []ToolCall {
	result := make([]ToolCall, len(wire))
	for i, tc := range wire {
		args := tc.Function.Arguments
		if args == nil {
			args = map[string]any{}
		}
		result[i] = ToolCall{
			ID:        "call_" + uuid.NewString(),
			Name:      tc.Function.Name,
			Arguments: args,
		}
	}
	return result
}

func parseOllamaErrorBody(body []byte) string {
	var wrapper struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil {
		return wrapper.Error
	}
	return ""
}
