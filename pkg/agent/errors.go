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
	"context"
	"errors"
	"fmt"

	"github.com/strand-ai/strand/pkg/retry"
)

// ErrorKind classifies a ChatError. The kind string doubles as the
// error_type recorded on trace.end entries.
type ErrorKind string

const (
	KindConfiguration        ErrorKind = "ConfigurationError"
	KindValidation           ErrorKind = "ValidationError"
	KindProvider             ErrorKind = "ProviderError"
	KindIterationCapExceeded ErrorKind = "IterationCapExceeded"
	KindCancelled            ErrorKind = "Cancelled"
)

// ChatError wraps every failure surfaced from a chat turn, carrying the
// original cause.
type ChatError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ChatError) Error() string {
	if e.Message != "" && e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *ChatError) Unwrap() error {
	return e.Err
}

// wrapChatError normalizes err into a *ChatError. Typed provider errors are
// checked first: an exhausted-retry timeout wraps context.DeadlineExceeded in
// its chain, and must not be mistaken for caller cancellation. Everything
// else not already classified becomes a provider failure.
func wrapChatError(err error) *ChatError {
	var chatErr *ChatError
	if errors.As(err, &chatErr) {
		return chatErr
	}
	var timeoutErr *retry.APITimeoutError
	var rateLimitErr *retry.RateLimitError
	if errors.As(err, &timeoutErr) || errors.As(err, &rateLimitErr) {
		return &ChatError{Kind: KindProvider, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ChatError{Kind: KindCancelled, Err: err}
	}
	return &ChatError{Kind: KindProvider, Err: err}
}
