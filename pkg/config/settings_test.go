package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAgentSettings(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		wantErr string
	}{
		{name: "empty config", raw: nil},
		{
			name: "all keys valid",
			raw: map[string]any{
				"temperature": 0.7,
				"max_tokens":  1024,
				"top_p":       0.9,
				"top_k":       40,
				"think":       "high",
				"stream":      true,
			},
		},
		{name: "unknown key", raw: map[string]any{"temprature": 0.5}, wantErr: "unknown agent config key"},
		{name: "temperature too high", raw: map[string]any{"temperature": 2.5}, wantErr: "between 0.0 and 2.0"},
		{name: "temperature wrong type", raw: map[string]any{"temperature": "hot"}, wantErr: "expected a number"},
		{name: "max_tokens zero", raw: map[string]any{"max_tokens": 0}, wantErr: "must be positive"},
		{name: "max_tokens fractional", raw: map[string]any{"max_tokens": 10.5}, wantErr: "expected an integer"},
		{name: "top_p out of range", raw: map[string]any{"top_p": 1.2}, wantErr: "between 0.0 and 1.0"},
		{name: "top_k negative", raw: map[string]any{"top_k": -1}, wantErr: "must be positive"},
		{name: "think invalid string", raw: map[string]any{"think": "maximum"}, wantErr: "think must be a bool"},
		{name: "think wrong type", raw: map[string]any{"think": 3}, wantErr: "think must be a bool"},
		{name: "stream wrong type", raw: map[string]any{"stream": "yes"}, wantErr: "stream must be a bool"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAgentSettings(tt.raw)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestParseAgentSettings_Values(t *testing.T) {
	s, err := ParseAgentSettings(map[string]any{
		"temperature": 0.3,
		"max_tokens":  500,
		"think":       true,
	})
	require.NoError(t, err)

	require.NotNil(t, s.Temperature)
	assert.Equal(t, 0.3, *s.Temperature)
	require.NotNil(t, s.MaxTokens)
	assert.Equal(t, 500, *s.MaxTokens)
	assert.Equal(t, true, s.Think)
	assert.Nil(t, s.TopP)
	assert.Nil(t, s.TopK)
	assert.False(t, s.Stream)
}

func TestParseAgentSettings_IntAsFloat(t *testing.T) {
	// JSON decoding yields float64 for every number
	s, err := ParseAgentSettings(map[string]any{
		"temperature": 1,
		"max_tokens":  float64(2048),
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, *s.Temperature)
	assert.Equal(t, 2048, *s.MaxTokens)
}
