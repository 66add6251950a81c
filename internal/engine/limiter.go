package engine

import (
	"context"
	"fmt"
	"time"
)

// limited caps simultaneous calls into the wrapped engine and bounds each
// call with a timeout. Vision models on commodity hardware often cannot
// serve more than one or two requests at a time, so the ceiling protects
// the collaborator from a fan-out of frame captions.
type limited struct {
	inner   Engine
	sem     chan struct{}
	timeout time.Duration
}

// Limited wraps inner with a concurrency ceiling and a per-call timeout.
// maxConcurrent <= 0 serializes calls; timeout <= 0 disables the bound.
func Limited(inner Engine, maxConcurrent int, timeout time.Duration) Engine {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &limited{
		inner:   inner,
		sem:     make(chan struct{}, maxConcurrent),
		timeout: timeout,
	}
}

func (l *limited) Describe(ctx context.Context, jpegData []byte) (string, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrInference, ctx.Err())
	}
	defer func() { <-l.sem }()

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	desc, err := l.inner.Describe(ctx, jpegData)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInference, err)
	}
	return desc, nil
}
