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

import "github.com/strand-ai/strand/pkg/trace"

// CallInfo is the ambient context of one tool invocation, the source of
// injected parameter values.
type CallInfo struct {
	ToolCallID string
	State      map[string]any
	Logger     *trace.ToolLogger
}

// Inject fills the tool's injected parameters from info. Applied after
// validation. Model-supplied values for injected parameters are overwritten;
// applying Inject twice with the same info yields the same result.
func Inject(toolInfo ToolInfo, args map[string]any, info CallInfo) map[string]any {
	out := make(map[string]any, len(args)+3)
	for k, v := range args {
		out[k] = v
	}

	for _, p := range toolInfo.InjectedParameters() {
		switch p.Inject {
		case InjectToolCallID:
			out[p.Name] = info.ToolCallID
		case InjectState:
			out[p.Name] = info.State
		case InjectLogger:
			out[p.Name] = info.Logger
		}
	}
	return out
}
