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

package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/strand-ai/strand/pkg/httpclient"
)

// RateLimitError is a provider rate-limit rejection. RetryAfter carries the
// server's backoff hint and takes precedence over computed delays.
type RateLimitError struct {
	Provider   string
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited: %s (retry after %v)", e.Provider, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Message)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

func (e *RateLimitError) IsRetryable() bool {
	return true
}

// APITimeoutError is a provider call that exceeded its per-call timeout.
// Distinguished from logic errors so callers can treat it as transient.
type APITimeoutError struct {
	Provider string
	Timeout  time.Duration
	Err      error
}

func (e *APITimeoutError) Error() string {
	return fmt.Sprintf("%s call timed out after %v", e.Provider, e.Timeout)
}

func (e *APITimeoutError) Unwrap() error {
	return e.Err
}

func (e *APITimeoutError) IsRetryable() bool {
	return true
}

type retryable interface {
	IsRetryable() bool
}

// IsRetryable reports whether err is transient. Typed retryable errors and
// network timeouts qualify; everything else propagates immediately.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// Classify normalizes a provider transport error into the typed taxonomy:
// timeouts become *APITimeoutError, HTTP 429 becomes *RateLimitError. Other
// errors pass through unchanged.
func Classify(provider string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}

	var httpErr *httpclient.RetryableError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{
			Provider:   provider,
			Message:    httpErr.Message,
			RetryAfter: httpErr.RetryAfter,
			Err:        err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &APITimeoutError{Provider: provider, Timeout: timeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &APITimeoutError{Provider: provider, Timeout: timeout, Err: err}
	}

	return err
}
