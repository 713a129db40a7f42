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

package trace

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

const defaultMaxTraces = 1000

// MemoryStore keeps entries grouped by trace id, bounded to maxTraces
// distinct traces in insertion order. On overflow the oldest trace and all
// its entries are evicted. A single mutex guards everything; throughput is
// not the goal.
type MemoryStore struct {
	mu        sync.Mutex
	maxTraces int
	entries   map[string][]Entry
	order     []string
}

// MemoryOption customizes a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMaxTraces bounds the number of distinct traces retained.
func WithMaxTraces(max int) MemoryOption {
	return func(s *MemoryStore) {
		if max > 0 {
			s.maxTraces = max
		}
	}
}

// NewMemoryStore creates an in-memory store holding up to 1000 traces by
// default.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		maxTraces: defaultMaxTraces,
		entries:   make(map[string][]Entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save appends the entry under its trace id, evicting the oldest trace when
// the bound is exceeded.
func (s *MemoryStore) Save(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.TraceID]; !exists {
		if len(s.order) >= s.maxTraces {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.entries, oldest)
		}
		s.order = append(s.order, entry.TraceID)
	}

	s.entries[entry.TraceID] = append(s.entries[entry.TraceID], entry)
	return nil
}

// Get returns the entries of one trace in save order.
func (s *MemoryStore) Get(traceID string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.entries[traceID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Limit     int
	Since     time.Time
	SessionID string
	AgentName string
}

// List returns trace ids in insertion order, newest last, matching the
// filter. A trace matches when its first entry does.
func (s *MemoryStore) List(filter ListFilter) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, id := range s.order {
		entries := s.entries[id]
		if len(entries) == 0 {
			continue
		}
		first := entries[0]
		if !filter.Since.IsZero() && first.Timestamp.Before(filter.Since) {
			continue
		}
		if filter.SessionID != "" && first.SessionID != filter.SessionID {
			continue
		}
		if filter.AgentName != "" && first.AgentName != filter.AgentName {
			continue
		}
		ids = append(ids, id)
	}

	if filter.Limit > 0 && len(ids) > filter.Limit {
		ids = ids[len(ids)-filter.Limit:]
	}
	return ids
}

// Count returns the number of retained traces.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Clear drops all traces.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string][]Entry)
	s.order = nil
}

// Export writes retained entries to w. Format "jsonl" emits one entry per
// line; "json" emits a single array. When ids is empty all traces export.
func (s *MemoryStore) Export(w io.Writer, format string, ids ...string) error {
	s.mu.Lock()
	if len(ids) == 0 {
		ids = append([]string(nil), s.order...)
	}
	var all []Entry
	for _, id := range ids {
		all = append(all, s.entries[id]...)
	}
	s.mu.Unlock()

	if format == "json" {
		enc := json.NewEncoder(w)
		return enc.Encode(all)
	}

	enc := json.NewEncoder(w)
	for _, entry := range all {
		if err := enc.Encode(entry); err != nil {
			return err
		}
	}
	return nil
}
