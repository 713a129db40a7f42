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

package agent

import (
	"sync"

	"github.com/strand-ai/strand/pkg/llms"
)

// DefaultHistorySize bounds an agent's conversation window.
const DefaultHistorySize = 100

// History is a bounded FIFO of conversation messages. When full, the oldest
// message is dropped; the middle is never touched.
type History struct {
	mu       sync.Mutex
	max      int
	messages []llms.Message
}

// NewHistory creates a history bounded to max messages. Non-positive max
// falls back to DefaultHistorySize.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultHistorySize
	}
	return &History{max: max}
}

// Append pushes m, evicting the oldest message when the bound is reached.
func (h *History) Append(m llms.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.push(m)
}

// AppendTurn pushes the user message and the assistant reply as one atomic
// step, so a failed turn never leaves a dangling user message.
func (h *History) AppendTurn(user, assistant llms.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.push(user)
	h.push(assistant)
}

func (h *History) push(m llms.Message) {
	if len(h.messages) >= h.max {
		h.messages = h.messages[1:]
	}
	h.messages = append(h.messages, m)
}

// Snapshot returns a copy safe to hand to a provider call.
func (h *History) Snapshot() []llms.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]llms.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Clear drops all messages.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}

// Len reports the current message count.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}
