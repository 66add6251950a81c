// Package engine abstracts the vision-language inference collaborator.
package engine

import (
	"context"
	"errors"
)

// ErrInference reports a failed or timed-out inference call. Batch callers
// treat it as a per-item failure, never as fatal for the whole batch.
var ErrInference = errors.New("inference failed")

// Engine produces a natural-language description for a JPEG image. The
// backing model is loaded once at process startup and shared read-only
// across requests; implementations must be safe for concurrent use.
type Engine interface {
	Describe(ctx context.Context, jpegData []byte) (string, error)
}
