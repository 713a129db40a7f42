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
	"strings"

	"github.com/strand-ai/strand/pkg/llms"
)

// Reply is the outcome of a chat turn: either a final string or a live token
// stream, depending on the agent's stream setting. Wait converts either form
// into the full response text.
type Reply struct {
	text   string
	stream <-chan llms.StreamChunk
}

// IsStream reports whether the reply carries a token stream.
func (r *Reply) IsStream() bool {
	return r.stream != nil
}

// Text returns the final response for a non-streaming reply. For streaming
// replies it is empty until the stream has been drained via Wait.
func (r *Reply) Text() string {
	return r.text
}

// Stream returns the chunk channel for a streaming reply, nil otherwise.
// An error partway through the stream arrives as a ChunkError chunk and
// terminates the channel.
func (r *Reply) Stream() <-chan llms.StreamChunk {
	return r.stream
}

// Wait drains the stream (if any) and returns the concatenated response
// text. For non-streaming replies it returns immediately.
func (r *Reply) Wait() (string, error) {
	if r.stream == nil {
		return r.text, nil
	}

	var b strings.Builder
	for chunk := range r.stream {
		switch chunk.Type {
		case llms.ChunkText:
			b.WriteString(chunk.Text)
		case llms.ChunkError:
			return b.String(), chunk.Err
		}
	}
	r.text = b.String()
	return r.text, nil
}
