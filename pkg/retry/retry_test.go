package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/strand-ai/strand/pkg/httpclient"
)

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	p := DefaultPolicy()

	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Factor: 2.0}

	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &RateLimitError{Provider: "openai", Message: "slow down"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	// fails twice then succeeds: total attempts = 3
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_NonRetryablePropagatesImmediately(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}
	boom := errors.New("bad request")

	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Do() error = %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_ExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &APITimeoutError{Provider: "ollama", Timeout: time.Second}
	})
	if err == nil {
		t.Fatal("Do() expected error after exhausting attempts")
	}
	var timeoutErr *APITimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Errorf("error type = %T, want *APITimeoutError", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_HonorsRetryAfterHint(t *testing.T) {
	calls := 0
	retryAfter := 50 * time.Millisecond
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}

	start := time.Now()
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &RateLimitError{Provider: "openai", RetryAfter: retryAfter}
		}
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (exactly one retry)", calls)
	}
	if elapsed < retryAfter {
		t.Errorf("elapsed = %v, want >= %v (Retry-After honored)", elapsed, retryAfter)
	}
}

func TestDo_DelaysNonDecreasing(t *testing.T) {
	var delays []time.Duration
	p := Policy{
		MaxAttempts: 4,
		BaseDelay:   time.Millisecond,
		Factor:      2.0,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			delays = append(delays, delay)
		},
	}

	_ = p.Do(context.Background(), func(ctx context.Context) error {
		return &APITimeoutError{Provider: "openai", Timeout: time.Second}
	})

	if len(delays) != 3 {
		t.Fatalf("retries = %d, want 3", len(delays))
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] < delays[i-1] {
			t.Errorf("delay[%d] = %v < delay[%d] = %v, want non-decreasing", i, delays[i], i-1, delays[i-1])
		}
	}
}

func TestDo_Jitter_StaysWithinBounds(t *testing.T) {
	base := 100 * time.Millisecond
	p := Policy{MaxAttempts: 2, BaseDelay: base, Factor: 2.0, Jitter: true}

	for i := 0; i < 50; i++ {
		d := p.delayFor(1, &APITimeoutError{Provider: "openai"})
		lo := time.Duration(float64(base) * 0.9)
		hi := time.Duration(float64(base) * 1.1)
		if d < lo || d > hi {
			t.Fatalf("delayFor() = %v, want within [%v, %v]", d, lo, hi)
		}
	}
}

func TestDo_ResilienceDisabled_SingleAttempt(t *testing.T) {
	t.Setenv("RESILIENCE_ENABLED", "false")

	calls := 0
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}

	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &RateLimitError{Provider: "openai"}
	})
	if err == nil {
		t.Fatal("Do() expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (passthrough when resilience disabled)", calls)
	}
}

func TestDo_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, BaseDelay: time.Second}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, func(ctx context.Context) error {
		return &RateLimitError{Provider: "openai"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}

func TestDoValue(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}
	calls := 0

	got, err := DoValue(context.Background(), p, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &APITimeoutError{Provider: "openai", Timeout: time.Second}
		}
		return "answer", nil
	})
	if err != nil {
		t.Fatalf("DoValue() error = %v", err)
	}
	if got != "answer" {
		t.Errorf("DoValue() = %v, want 'answer'", got)
	}
}

func TestClassify_RateLimit(t *testing.T) {
	httpErr := &httpclient.RetryableError{
		StatusCode: http.StatusTooManyRequests,
		Message:    "rate limited",
		RetryAfter: 2 * time.Second,
	}
	wrapped := fmt.Errorf("request failed: %w", httpErr)

	err := Classify("openai", time.Minute, wrapped)

	var rateLimitErr *RateLimitError
	if !errors.As(err, &rateLimitErr) {
		t.Fatalf("error type = %T, want *RateLimitError", err)
	}
	if rateLimitErr.RetryAfter != 2*time.Second {
		t.Errorf("RetryAfter = %v, want 2s", rateLimitErr.RetryAfter)
	}
	if rateLimitErr.Provider != "openai" {
		t.Errorf("Provider = %v, want openai", rateLimitErr.Provider)
	}
}

func TestClassify_Timeout(t *testing.T) {
	err := Classify("ollama", 30*time.Second, context.DeadlineExceeded)

	var timeoutErr *APITimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error type = %T, want *APITimeoutError", err)
	}
	if timeoutErr.Provider != "ollama" {
		t.Errorf("Provider = %v, want ollama", timeoutErr.Provider)
	}
}

func TestClassify_PassthroughOtherErrors(t *testing.T) {
	boom := errors.New("malformed response")
	if got := Classify("openai", time.Second, boom); !errors.Is(got, boom) {
		t.Errorf("Classify() = %v, want passthrough of %v", got, boom)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", &RateLimitError{}, true},
		{"timeout", &APITimeoutError{}, true},
		{"http retryable", &httpclient.RetryableError{StatusCode: 503}, true},
		{"wrapped retryable", fmt.Errorf("x: %w", &RateLimitError{}), true},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
