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

// Package ratelimit bounds concurrent outbound calls per provider with a
// counting semaphore. Saturated limiters block rather than drop; callers are
// already bounded by iteration caps and tool counts.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/strand-ai/strand/pkg/config"
)

// Default concurrency caps per provider class.
const (
	DefaultOpenAIConcurrency = 100
	DefaultOllamaConcurrency = 30
)

// Limiter is a per-provider bounded semaphore. The zero value is not usable;
// construct with NewLimiter or For.
type Limiter struct {
	provider string
	max      int64
	sem      *semaphore.Weighted
	current  atomic.Int64
	enabled  bool
}

// Stats is a snapshot of limiter state.
type Stats struct {
	Provider      string `json:"provider"`
	MaxConcurrent int64  `json:"max_concurrent"`
	Current       int64  `json:"current"`
	Available     int64  `json:"available"`
}

// NewLimiter creates a limiter allowing maxConcurrent simultaneous calls.
// When resilience is disabled the limiter is a passthrough.
func NewLimiter(provider string, maxConcurrent int) *Limiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Limiter{
		provider: provider,
		max:      int64(maxConcurrent),
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		enabled:  config.ResilienceEnabled(),
	}
}

// Acquire blocks until a slot is free or ctx is done. Every successful
// Acquire must be paired with Release on all exit paths.
func (l *Limiter) Acquire(ctx context.Context) error {
	if !l.enabled {
		return nil
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.current.Add(1)
	return nil
}

// Release frees a slot acquired with Acquire.
func (l *Limiter) Release() {
	if !l.enabled {
		return
	}
	l.current.Add(-1)
	l.sem.Release(1)
}

// Do runs fn while holding a slot.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn(ctx)
}

// Stats returns a snapshot of the limiter's counters.
func (l *Limiter) Stats() Stats {
	current := l.current.Load()
	return Stats{
		Provider:      l.provider,
		MaxConcurrent: l.max,
		Current:       current,
		Available:     l.max - current,
	}
}

var (
	mu       sync.Mutex
	limiters = make(map[string]*Limiter)
)

// For returns the process-wide limiter for a provider, creating it on first
// use. The cap comes from <PREFIX>_MAX_CONCURRENT_REQUESTS, falling back to
// the provider-class default.
func For(provider string) *Limiter {
	mu.Lock()
	defer mu.Unlock()

	if l, ok := limiters[provider]; ok {
		return l
	}

	cfg := config.ProviderConfigFromEnv(provider)
	l := NewLimiter(provider, cfg.MaxConcurrentRequests)
	limiters[provider] = l
	return l
}

// Reset drops all process-wide limiters. Intended for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	limiters = make(map[string]*Limiter)
}
