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

package observability

import (
	"sync"
	"time"
)

// ChatMetric is one provider call's record. The collector exposes these as a
// stream for export; serialization format is the exporter's concern.
type ChatMetric struct {
	Model            string        `json:"model"`
	Provider         string        `json:"provider,omitempty"`
	Latency          time.Duration `json:"latency_ms"`
	TokensUsed       int           `json:"tokens_used,omitempty"`
	PromptTokens     int           `json:"prompt_tokens,omitempty"`
	CompletionTokens int           `json:"completion_tokens,omitempty"`
	Timestamp        time.Time     `json:"timestamp"`
	Success          bool          `json:"success"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	TimeToFirstToken time.Duration `json:"time_to_first_token_ms,omitempty"`
}

// ChatMetricsCollector accumulates per-call records in memory.
type ChatMetricsCollector struct {
	mu      sync.Mutex
	records []ChatMetric
}

// NewChatMetricsCollector creates an empty collector.
func NewChatMetricsCollector() *ChatMetricsCollector {
	return &ChatMetricsCollector{}
}

// Record appends one call record, stamping it if needed.
func (c *ChatMetricsCollector) Record(m ChatMetric) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, m)
}

// Records returns a snapshot of all records in arrival order.
func (c *ChatMetricsCollector) Records() []ChatMetric {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChatMetric, len(c.records))
	copy(out, c.records)
	return out
}

// Clear drops all records.
func (c *ChatMetricsCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = nil
}

var globalChatMetrics = NewChatMetricsCollector()

// RecordChatMetric appends one call record to the process-wide collector.
// Providers call this once per Generate or stream, success or failure.
func RecordChatMetric(m ChatMetric) {
	globalChatMetrics.Record(m)
}

// ChatMetrics returns the process-wide per-call record collector.
func ChatMetrics() *ChatMetricsCollector {
	return globalChatMetrics
}
