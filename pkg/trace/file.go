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
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const defaultMaxFileSize = 100 * 1024 * 1024 // 100 MB

// FileStore appends one JSON object per line to a dated file under dir.
// Writes are serialized; readers may stream existing files without locking
// writers. When the current file exceeds the size threshold, writing moves to
// a file carrying a timestamp suffix.
type FileStore struct {
	mu      sync.Mutex
	dir     string
	maxSize int64

	file *os.File
	path string
	size int64
	date string

	now func() time.Time
}

// FileOption customizes a FileStore.
type FileOption func(*FileStore)

// WithMaxFileSize overrides the 100 MB rotation threshold.
func WithMaxFileSize(bytes int64) FileOption {
	return func(s *FileStore) {
		if bytes > 0 {
			s.maxSize = bytes
		}
	}
}

// NewFileStore creates a store writing under dir, creating it if needed.
func NewFileStore(dir string, opts ...FileOption) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}

	s := &FileStore{
		dir:     dir,
		maxSize: defaultMaxFileSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Save appends the entry as one JSON line.
func (s *FileStore) Save(entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureFile(int64(len(data))); err != nil {
		return err
	}

	n, err := s.file.Write(data)
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	return nil
}

// ensureFile opens the dated file for today, rotating to a timestamp-suffixed
// file when the size threshold would be exceeded. Caller holds the mutex.
func (s *FileStore) ensureFile(incoming int64) error {
	today := s.now().Format("2006-01-02")

	if s.file != nil && s.date == today && s.size+incoming <= s.maxSize {
		return nil
	}

	var path string
	switch {
	case s.file == nil || s.date != today:
		path = filepath.Join(s.dir, fmt.Sprintf("traces_%s.jsonl", today))
	default:
		// size rotation
		path = filepath.Join(s.dir, fmt.Sprintf("traces_%s_%s.jsonl",
			today, s.now().Format("150405")))
	}

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat trace file: %w", err)
	}

	s.file = file
	s.path = path
	s.size = info.Size()
	s.date = today
	return nil
}

// Path returns the file currently being written, empty before the first save.
func (s *FileStore) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Close releases the underlying file handle.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
