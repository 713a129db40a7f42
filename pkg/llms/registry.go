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
	"fmt"

	"github.com/strand-ai/strand/pkg/config"
	"github.com/strand-ai/strand/pkg/registry"
)

// ProviderRegistry holds constructed providers keyed by name. The provider
// set is closed to {openai, ollama} by string but extensible by registration.
type ProviderRegistry struct {
	*registry.BaseRegistry[Provider]
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{BaseRegistry: registry.NewBaseRegistry[Provider]()}
}

// RegisterProvider adds a provider under its own name.
func (r *ProviderRegistry) RegisterProvider(p Provider) error {
	return r.Register(p.Name(), p)
}

// NewProvider constructs a provider from the closed supported set. cfg may be
// nil to load from environment variables.
func NewProvider(name string, cfg *config.ProviderConfig, model string) (Provider, error) {
	switch name {
	case config.ProviderOpenAI:
		return NewOpenAIProvider(cfg, model)
	case config.ProviderOllama:
		return NewOllamaProvider(cfg, model)
	default:
		return nil, fmt.Errorf("unsupported provider: %s (supported: %v)", name, config.SupportedProviders)
	}
}
