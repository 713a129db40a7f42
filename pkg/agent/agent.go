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

// Package agent runs the chat orchestration: provider tool-calling loop,
// bounded conversation history, and the ChatError taxonomy.
package agent

import (
	"log/slog"

	"github.com/strand-ai/strand/pkg/config"
	"github.com/strand-ai/strand/pkg/llms"
	"github.com/strand-ai/strand/pkg/ratelimit"
	"github.com/strand-ai/strand/pkg/retry"
	"github.com/strand-ai/strand/pkg/tools"
	"github.com/strand-ai/strand/pkg/trace"
)

// Agent binds a provider, a tool set and a conversation history into one
// chat participant. Concurrent turns on the same Agent are not supported;
// callers serialize or spawn distinct Agents.
type Agent struct {
	name         string
	instructions string
	provider     llms.Provider
	providerCfg  *config.ProviderConfig
	settings     config.AgentSettings
	history      *History
	registry     *tools.ToolRegistry
	executor     *tools.Executor
	tracer       *trace.Logger
	retryPolicy  retry.Policy
	limiter      *ratelimit.Limiter
	state        map[string]any
	log          *slog.Logger

	rawSettings map[string]any
	agentTools  []tools.Tool
	historySize int
	traceStore  trace.Store
}

// Option customizes an Agent at construction.
type Option func(*Agent)

// WithInstructions sets the system prompt prepended to every turn.
func WithInstructions(instructions string) Option {
	return func(a *Agent) { a.instructions = instructions }
}

// WithConfig supplies the agent config map, validated against the closed key
// set (temperature, max_tokens, top_p, top_k, think, stream).
func WithConfig(raw map[string]any) Option {
	return func(a *Agent) { a.rawSettings = raw }
}

// WithTools registers agent-scoped tools. Names conflicting with system
// tools are rejected.
func WithTools(agentTools ...tools.Tool) Option {
	return func(a *Agent) { a.agentTools = append(a.agentTools, agentTools...) }
}

// WithRegistry replaces the tool registry, typically one pre-loaded with
// system tools.
func WithRegistry(r *tools.ToolRegistry) Option {
	return func(a *Agent) { a.registry = r }
}

// WithHistorySize bounds the conversation window.
func WithHistorySize(n int) Option {
	return func(a *Agent) { a.historySize = n }
}

// WithTraceStore directs trace entries to store instead of the default
// in-memory one.
func WithTraceStore(store trace.Store) Option {
	return func(a *Agent) { a.traceStore = store }
}

// WithState sets the agent-state snapshot handed to injected tool params.
func WithState(state map[string]any) Option {
	return func(a *Agent) { a.state = state }
}

// WithRetryPolicy overrides the provider-call retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(a *Agent) { a.retryPolicy = p }
}

// WithProviderConfig overrides the provider resilience settings (iteration
// cap, timeout) otherwise read from the environment.
func WithProviderConfig(cfg *config.ProviderConfig) Option {
	return func(a *Agent) { a.providerCfg = cfg }
}

// New constructs an Agent over the given provider. All configuration
// failures surface here as ChatError with kind ConfigurationError; a
// constructed Agent never fails on config during a turn.
func New(name string, provider llms.Provider, opts ...Option) (*Agent, error) {
	if name == "" {
		return nil, &ChatError{Kind: KindConfiguration, Message: "agent name cannot be empty"}
	}
	if provider == nil {
		return nil, &ChatError{Kind: KindConfiguration, Message: "agent requires a provider"}
	}

	a := &Agent{
		name:        name,
		provider:    provider,
		retryPolicy: retry.DefaultPolicy(),
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	settings, err := config.ParseAgentSettings(a.rawSettings)
	if err != nil {
		return nil, &ChatError{Kind: KindConfiguration, Message: "invalid agent config", Err: err}
	}
	a.settings = settings

	if a.providerCfg == nil {
		a.providerCfg = config.ProviderConfigFromEnv(provider.Name())
	}
	a.providerCfg.SetDefaults()

	if a.registry == nil {
		a.registry = tools.NewToolRegistry()
	}
	for _, t := range a.agentTools {
		if err := a.registry.RegisterAgentTool(t); err != nil {
			return nil, &ChatError{Kind: KindConfiguration, Message: "failed to register agent tool", Err: err}
		}
	}

	if a.traceStore == nil {
		a.traceStore = trace.NewMemoryStore()
	}
	a.tracer = trace.NewLogger(a.traceStore)
	a.executor = tools.NewExecutor(a.registry, a.tracer)
	a.history = NewHistory(a.historySize)
	a.limiter = ratelimit.For(provider.Name())

	return a, nil
}

func (a *Agent) Name() string               { return a.name }
func (a *Agent) Instructions() string       { return a.instructions }
func (a *Agent) Provider() llms.Provider    { return a.provider }
func (a *Agent) History() *History          { return a.history }
func (a *Agent) Tools() *tools.ToolRegistry { return a.registry }

// toolDefinitions builds the model-visible tool list from the registry.
func (a *Agent) toolDefinitions() []llms.ToolDefinition {
	list := a.registry.List()
	defs := make([]llms.ToolDefinition, len(list))
	for i, t := range list {
		defs[i] = llms.ToolDefinition{
			Name:        t.GetName(),
			Description: t.GetDescription(),
			Parameters:  t.GetInfo().Schema(),
		}
	}
	return defs
}

// options maps the agent settings onto per-request provider options.
func (a *Agent) options() llms.Options {
	return llms.Options{
		Temperature: a.settings.Temperature,
		MaxTokens:   a.settings.MaxTokens,
		TopP:        a.settings.TopP,
		TopK:        a.settings.TopK,
		Think:       a.settings.Think,
	}
}
