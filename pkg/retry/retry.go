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

// Package retry wraps operations with bounded-attempt exponential backoff.
// Rate-limit errors carrying a Retry-After hint sleep for the hinted duration
// instead of the computed delay.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/strand-ai/strand/pkg/config"
	"github.com/strand-ai/strand/pkg/httpclient"
)

// Policy controls retry behavior for one operation.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int
	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration
	// Factor multiplies the delay after each failed attempt.
	Factor float64
	// Jitter applies a multiplicative +-10% to each computed delay.
	Jitter bool
	// Retryable overrides the default transient-error classification.
	Retryable func(error) bool
	// OnRetry is invoked before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns the standard policy: 3 attempts, 0.5s base delay,
// factor 2.0, jitter on.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Factor:      2.0,
		Jitter:      true,
	}
}

// Do runs op under the policy. The last error is returned once attempts are
// exhausted; non-retryable errors propagate immediately. When resilience is
// disabled via RESILIENCE_ENABLED=false, op runs exactly once.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue runs op under the policy and returns its value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if !config.ResilienceEnabled() {
		maxAttempts = 1
	}

	isRetryable := p.Retryable
	if isRetryable == nil {
		isRetryable = IsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == maxAttempts {
			return zero, lastErr
		}

		delay := p.delayFor(attempt, err)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		slog.Debug("Retrying after transient error",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay", delay,
			"error", err)

		if err := sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry interrupted: %w", err)
		}
	}

	return zero, lastErr
}

// delayFor computes the backoff before the next attempt. A Retry-After hint
// on the error wins over the exponential schedule.
func (p Policy) delayFor(attempt int, err error) time.Duration {
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) && rateLimitErr.RetryAfter > 0 {
		return rateLimitErr.RetryAfter
	}
	var httpErr *httpclient.RetryableError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	factor := p.Factor
	if factor <= 0 {
		factor = 2.0
	}
	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= factor
	}

	if p.Jitter {
		// multiplicative jitter in [0.9, 1.1]
		delay *= 0.9 + 0.2*rand.Float64()
	}

	return time.Duration(delay)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
