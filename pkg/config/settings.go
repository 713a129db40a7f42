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

import "fmt"

// AgentSettings are the per-agent sampling knobs. Nil pointer fields mean
// "not set", letting each provider apply its own defaults.
type AgentSettings struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
	TopK        *int
	Think       any
	Stream      bool
}

// agentSettingKeys is the closed set of recognized agent config keys.
var agentSettingKeys = map[string]bool{
	"temperature": true,
	"max_tokens":  true,
	"top_p":       true,
	"top_k":       true,
	"think":       true,
	"stream":      true,
}

// ParseAgentSettings validates raw against the closed key set and value
// ranges. Unknown keys and out-of-range values are rejected; this runs once
// at Agent construction, never during a turn.
func ParseAgentSettings(raw map[string]any) (AgentSettings, error) {
	var s AgentSettings

	for key := range raw {
		if !agentSettingKeys[key] {
			return s, fmt.Errorf("unknown agent config key: %q", key)
		}
	}

	if v, ok := raw["temperature"]; ok {
		f, err := toFloat(v)
		if err != nil {
			return s, fmt.Errorf("temperature: %w", err)
		}
		if f < 0 || f > 2 {
			return s, fmt.Errorf("temperature must be between 0.0 and 2.0, got %v", f)
		}
		s.Temperature = &f
	}
	if v, ok := raw["max_tokens"]; ok {
		n, err := toInt(v)
		if err != nil {
			return s, fmt.Errorf("max_tokens: %w", err)
		}
		if n <= 0 {
			return s, fmt.Errorf("max_tokens must be positive, got %d", n)
		}
		s.MaxTokens = &n
	}
	if v, ok := raw["top_p"]; ok {
		f, err := toFloat(v)
		if err != nil {
			return s, fmt.Errorf("top_p: %w", err)
		}
		if f < 0 || f > 1 {
			return s, fmt.Errorf("top_p must be between 0.0 and 1.0, got %v", f)
		}
		s.TopP = &f
	}
	if v, ok := raw["top_k"]; ok {
		n, err := toInt(v)
		if err != nil {
			return s, fmt.Errorf("top_k: %w", err)
		}
		if n <= 0 {
			return s, fmt.Errorf("top_k must be positive, got %d", n)
		}
		s.TopK = &n
	}
	if v, ok := raw["think"]; ok {
		switch t := v.(type) {
		case bool:
			s.Think = t
		case string:
			if t != "low" && t != "medium" && t != "high" {
				return s, fmt.Errorf(`think must be a bool or one of "low", "medium", "high", got %q`, t)
			}
			s.Think = t
		default:
			return s, fmt.Errorf(`think must be a bool or one of "low", "medium", "high", got %T`, v)
		}
	}
	if v, ok := raw["stream"]; ok {
		b, ok := v.(bool)
		if !ok {
			return s, fmt.Errorf("stream must be a bool, got %T", v)
		}
		s.Stream = b
	}

	return s, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("expected an integer, got %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}
