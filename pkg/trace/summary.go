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

import "time"

// Summary aggregates all entries sharing a trace id.
type Summary struct {
	TraceID       string    `json:"trace_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	DurationMS    float64   `json:"duration_ms"`
	Status        Status    `json:"status"`
	RunCount      int       `json:"run_count"`
	ToolCallCount int       `json:"tool_call_count"`
	InputTokens   int       `json:"input_tokens"`
	OutputTokens  int       `json:"output_tokens"`
	TotalTokens   int       `json:"total_tokens"`
	CostUSD       float64   `json:"cost_usd"`
	ErrorCount    int       `json:"error_count"`
	Entries       []Entry   `json:"entries"`
}

// Summarize aggregates entries of a single trace, in the given order.
func Summarize(entries []Entry) Summary {
	s := Summary{Status: StatusStarted}
	if len(entries) == 0 {
		return s
	}

	s.TraceID = entries[0].TraceID
	s.StartTime = entries[0].Timestamp
	s.EndTime = entries[len(entries)-1].Timestamp
	s.DurationMS = float64(s.EndTime.Sub(s.StartTime).Microseconds()) / 1000.0
	s.Entries = entries

	runs := make(map[string]struct{})
	for _, entry := range entries {
		runs[entry.RunID] = struct{}{}

		if entry.Event == EventToolCall {
			s.ToolCallCount++
		}
		if entry.Status == StatusError {
			s.ErrorCount++
		}
		s.InputTokens += entry.InputTokens
		s.OutputTokens += entry.OutputTokens
		s.TotalTokens += entry.TotalTokens
		s.CostUSD += entry.CostUSD

		// terminal status comes from the root trace.end
		if entry.Event == EventTraceEnd && entry.ParentRunID == "" {
			s.Status = entry.Status
		}
	}
	s.RunCount = len(runs)

	return s
}
