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
	"strings"

	"github.com/strand-ai/strand/pkg/registry"
)

// ToolRegistry holds two namespaces: system tools (built-in, process-wide)
// and agent tools (per-agent, user-supplied). Names are case-insensitive; an
// agent tool may not shadow a system tool.
type ToolRegistry struct {
	system *registry.BaseRegistry[Tool]
	agent  *registry.BaseRegistry[Tool]
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		system: registry.NewBaseRegistry[Tool](),
		agent:  registry.NewBaseRegistry[Tool](),
	}
}

func toolKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// RegisterSystemTool adds a built-in tool.
func (r *ToolRegistry) RegisterSystemTool(tool Tool) error {
	key := toolKey(tool.GetName())
	if key == "" {
		return NewToolRegistryError("register", "tool name cannot be empty", nil)
	}
	if err := r.system.Register(key, tool); err != nil {
		return NewToolRegistryError("register", "system tool '"+key+"'", err)
	}
	return nil
}

// RegisterAgentTool adds a user-supplied tool. Conflicts with system tools
// are rejected at registration, never at call time.
func (r *ToolRegistry) RegisterAgentTool(tool Tool) error {
	key := toolKey(tool.GetName())
	if key == "" {
		return NewToolRegistryError("register", "tool name cannot be empty", nil)
	}
	if _, exists := r.system.Get(key); exists {
		return NewToolRegistryError("register",
			"tool name '"+key+"' conflicts with a system tool", nil)
	}
	if err := r.agent.Register(key, tool); err != nil {
		return NewToolRegistryError("register", "agent tool '"+key+"'", err)
	}
	return nil
}

// Get resolves a tool by case-insensitive name, system namespace first.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	key := toolKey(name)
	if tool, ok := r.system.Get(key); ok {
		return tool, true
	}
	return r.agent.Get(key)
}

// List returns all tools, system first, each namespace in registration order.
func (r *ToolRegistry) List() []Tool {
	return append(r.system.List(), r.agent.List()...)
}

// Names returns all registered names, system first.
func (r *ToolRegistry) Names() []string {
	return append(r.system.Names(), r.agent.Names()...)
}

// Count returns the total number of registered tools.
func (r *ToolRegistry) Count() int {
	return r.system.Count() + r.agent.Count()
}
