package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const batchSize = 10 // Number of records to batch before writing

// FileStore appends description records to per-source JSON files under a
// base directory. Records are batched in memory and flushed when the batch
// fills or the store closes.
type FileStore struct {
	mu      sync.Mutex
	pending []Record
	baseDir string
}

// NewFileStore creates a file-backed history store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory '%s': %w", baseDir, err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Save adds a record to the batch and flushes when the batch is full.
func (s *FileStore) Save(_ context.Context, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, rec)

	if len(s.pending) >= batchSize {
		return s.flush()
	}
	return nil
}

// Close flushes any remaining records.
func (s *FileStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flush(); err != nil {
		fmt.Fprintf(os.Stderr, "error flushing description history: %v\n", err)
	}
}

// flush merges the pending batch into the per-source files. Caller holds
// the mutex.
func (s *FileStore) flush() error {
	if len(s.pending) == 0 {
		return nil
	}

	bySource := make(map[string][]Record)
	for _, rec := range s.pending {
		bySource[rec.Source] = append(bySource[rec.Source], rec)
	}

	for source, recs := range bySource {
		if err := s.appendRecords(source, recs); err != nil {
			return err
		}
	}

	s.pending = nil
	return nil
}

func (s *FileStore) appendRecords(source string, recs []Record) error {
	dir := filepath.Join(s.baseDir, source)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create source directory '%s': %w", dir, err)
	}
	path := filepath.Join(dir, "descriptions.json")

	var existing []Record
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("failed to unmarshal existing history: %w", err)
		}
	}

	all := append(existing, recs...)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create history file: %w", err)
	}
	defer file.Close()

	if err := json.NewEncoder(file).Encode(all); err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	return nil
}
