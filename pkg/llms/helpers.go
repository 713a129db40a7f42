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

// EstimateTokens approximates a token count for providers that omit usage.
// Rough heuristic: one token per four characters of text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// fillUsage completes missing usage fields, estimating output tokens from the
// response text when the provider reported nothing.
func fillUsage(u Usage, responseText string) Usage {
	if u.TotalTokens == 0 && u.InputTokens == 0 && u.OutputTokens == 0 {
		u.OutputTokens = EstimateTokens(responseText)
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	return u
}
