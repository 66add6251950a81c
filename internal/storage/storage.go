// Package storage persists frame descriptions as an optional history of
// what the live feed has seen. The core request path never depends on it:
// saves are best-effort and failures stay in the logs.
package storage

import (
	"context"
	"time"
)

// Record is one described frame (or single image, with Frame and Timestamp
// zero) attributed to a named source.
type Record struct {
	Source      string    `json:"source"`
	Frame       int       `json:"frame"`
	Timestamp   float64   `json:"timestamp"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the description history backend.
type Store interface {
	// Save persists a single record.
	Save(ctx context.Context, rec Record) error

	// Close flushes pending writes and releases the backend.
	Close()
}

// NewNoop returns a store that drops every record, used when history is
// disabled.
func NewNoop() Store {
	return noopStore{}
}

type noopStore struct{}

func (noopStore) Save(context.Context, Record) error { return nil }
func (noopStore) Close()                             {}
