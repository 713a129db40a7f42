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

package config

import (
	"fmt"
	"time"
)

// Supported provider names.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// SupportedProviders is the closed set of provider names accepted at Agent
// construction. Extensible by registration, not by string.
var SupportedProviders = []string{ProviderOpenAI, ProviderOllama}

// IsSupportedProvider reports whether name is in the supported set.
func IsSupportedProvider(name string) bool {
	for _, p := range SupportedProviders {
		if p == name {
			return true
		}
	}
	return false
}

// ProviderConfig holds the per-provider connection and resilience settings.
type ProviderConfig struct {
	Provider              string        `json:"provider"`
	APIKey                string        `json:"api_key,omitempty"`
	BaseURL               string        `json:"base_url,omitempty"`
	Timeout               time.Duration `json:"timeout,omitempty"`
	MaxRetries            int           `json:"max_retries,omitempty"`
	MaxToolIterations     int           `json:"max_tool_iterations,omitempty"`
	MaxConcurrentRequests int           `json:"max_concurrent_requests,omitempty"`
}

// SetDefaults fills zero-valued fields with provider defaults.
func (c *ProviderConfig) SetDefaults() {
	if c.BaseURL == "" {
		switch c.Provider {
		case ProviderOpenAI:
			c.BaseURL = "https://api.openai.com/v1"
		case ProviderOllama:
			c.BaseURL = "http://localhost:11434"
		}
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.MaxToolIterations == 0 {
		c.MaxToolIterations = 100
	}
	if c.MaxConcurrentRequests == 0 {
		switch c.Provider {
		case ProviderOllama:
			c.MaxConcurrentRequests = 30
		default:
			c.MaxConcurrentRequests = 100
		}
	}
}

// Validate checks the configuration for consistency.
func (c *ProviderConfig) Validate() error {
	if !IsSupportedProvider(c.Provider) {
		return fmt.Errorf("unsupported provider: %s (supported: %v)", c.Provider, SupportedProviders)
	}
	if c.Provider == ProviderOpenAI && c.APIKey == "" {
		return fmt.Errorf("openai provider requires an API key (set OPENAI_API_KEY)")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.MaxToolIterations < 1 {
		return fmt.Errorf("max_tool_iterations must be at least 1")
	}
	if c.MaxConcurrentRequests < 1 {
		return fmt.Errorf("max_concurrent_requests must be at least 1")
	}
	return nil
}

// ProviderConfigFromEnv builds a ProviderConfig for the given provider from
// <PREFIX>_API_KEY, <PREFIX>_BASE_URL, <PREFIX>_TIMEOUT, <PREFIX>_MAX_RETRIES,
// <PREFIX>_MAX_TOOL_ITERATIONS and <PREFIX>_MAX_CONCURRENT_REQUESTS,
// then applies defaults.
func ProviderConfigFromEnv(provider string) *ProviderConfig {
	prefix := EnvPrefix(provider)

	cfg := &ProviderConfig{
		Provider:              provider,
		APIKey:                GetProviderAPIKey(provider),
		BaseURL:               envString(prefix+"_BASE_URL", ""),
		Timeout:               envDuration(prefix+"_TIMEOUT", 0),
		MaxRetries:            envInt(prefix+"_MAX_RETRIES", 0),
		MaxToolIterations:     envInt(prefix+"_MAX_TOOL_ITERATIONS", 0),
		MaxConcurrentRequests: envInt(prefix+"_MAX_CONCURRENT_REQUESTS", 0),
	}
	cfg.SetDefaults()
	return cfg
}
