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

// Span names.
const (
	TracerName      = "strand"
	SpanLLMGenerate = "llm.generate"
	SpanLLMStream   = "llm.generate_streaming"
	SpanToolExecute = "tool.execute"
	SpanAgentChat   = "agent.chat"
)

// Attribute keys.
const (
	AttrProvider  = "llm.provider"
	AttrModel     = "llm.model"
	AttrToolName  = "tool.name"
	AttrAgentName = "agent.name"
	AttrTokensIn  = "llm.tokens.input"
	AttrTokensOut = "llm.tokens.output"
	AttrToolCalls = "llm.tool_calls"
	AttrIteration = "llm.iteration"
)
