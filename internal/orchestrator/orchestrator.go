// Package orchestrator composes hashing, caching, normalization and
// inference into the describe-image and describe-video operations.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bdougie/livefeed/internal/desccache"
	"github.com/bdougie/livefeed/internal/engine"
	"github.com/bdougie/livefeed/internal/extractor"
	"github.com/bdougie/livefeed/internal/fingerprint"
	"github.com/bdougie/livefeed/internal/normalizer"
	"github.com/bdougie/livefeed/internal/storage"
)

// maxFrameWorkers bounds the per-video caption fan-out. The engine wrapper
// enforces its own inference ceiling; this only keeps goroutine dispatch
// proportional to useful work.
const maxFrameWorkers = 4

// errorPrefix marks error-carrying descriptions; they stand in for a result
// in batch output but are never cached or persisted.
const errorPrefix = "Error:"

var (
	// ErrEmptyInput reports a request with no media bytes.
	ErrEmptyInput = errors.New("empty input")

	// ErrInvalidType reports a content type or filename that does not look
	// like a supported video.
	ErrInvalidType = errors.New("invalid file type")

	// ErrNoFrames reports a video from which no frames could be sampled.
	ErrNoFrames = errors.New("no frames extracted")
)

var videoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".avi": true,
}

// MediaBlob is the raw media received at request ingress. It is consumed by
// one request and never persisted.
type MediaBlob struct {
	Data        []byte
	ContentType string
	Filename    string
}

// FrameDescription is one described video frame, in frame emission order.
type FrameDescription struct {
	Frame       int     `json:"frame"`
	Timestamp   float64 `json:"timestamp"`
	Description string  `json:"description"`
}

// FrameSampler extracts an ordered frame sequence from video bytes.
type FrameSampler interface {
	Sample(ctx context.Context, video []byte, interval int) ([]extractor.Frame, error)
}

// Orchestrator serves describe requests against a shared cache and a shared
// engine handle. Safe for concurrent use by many in-flight requests.
type Orchestrator struct {
	logger   *slog.Logger
	cache    *desccache.Cache
	engine   engine.Engine
	sampler  FrameSampler
	store    storage.Store
	interval int
}

// New wires the orchestrator. store may be a noop; interval <= 0 falls back
// to the sampler default.
func New(logger *slog.Logger, cache *desccache.Cache, eng engine.Engine, sampler FrameSampler, store storage.Store, interval int) *Orchestrator {
	if interval <= 0 {
		interval = extractor.DefaultInterval
	}
	return &Orchestrator{
		logger:   logger,
		cache:    cache,
		engine:   eng,
		sampler:  sampler,
		store:    store,
		interval: interval,
	}
}

// Describe produces a description for a single image. Inference failures
// come back as an "Error: ..." description rather than an error so callers
// batching many frames are never blocked by one failure; validation and
// decode failures are real errors.
func (o *Orchestrator) Describe(ctx context.Context, blob MediaBlob) (string, error) {
	desc, err := o.describeBytes(ctx, blob.Data)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(desc, errorPrefix) {
		o.persist(ctx, storage.Record{
			Source:      sourceName(blob.Filename),
			Description: desc,
		})
	}
	return desc, nil
}

// DescribeVideo samples blob into frames and describes each one, returning
// results strictly in frame emission order. Frame captioning runs in
// parallel; each subtask writes into its own slot so completion order never
// reorders the output. One bad frame never discards the rest.
func (o *Orchestrator) DescribeVideo(ctx context.Context, blob MediaBlob, interval int) ([]FrameDescription, error) {
	if len(blob.Data) == 0 {
		return nil, ErrEmptyInput
	}
	if !isVideo(blob.ContentType, blob.Filename) {
		return nil, fmt.Errorf("%w: %s (%s)", ErrInvalidType, blob.ContentType, blob.Filename)
	}
	if interval <= 0 {
		interval = o.interval
	}

	frames, err := o.sampler.Sample(ctx, blob.Data, interval)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}

	source := sourceName(blob.Filename)
	results := make([]FrameDescription, len(frames))

	var g errgroup.Group
	g.SetLimit(maxFrameWorkers)
	for _, frame := range frames {
		// Once cancellation is observed, dispatched calls finish but no
		// new frames are sent to the engine.
		if ctx.Err() != nil {
			results[frame.Index] = FrameDescription{
				Frame:       frame.Index,
				Timestamp:   frame.Timestamp,
				Description: fmt.Sprintf("Error: request cancelled - %v", ctx.Err()),
			}
			continue
		}

		g.Go(func() error {
			desc, err := o.describeBytes(ctx, frame.Data)
			if err != nil {
				o.logger.Error("frame processing failed", "source", source, "frame", frame.Index, "error", err)
				desc = fmt.Sprintf("Error: failed to process frame - %v", err)
			} else if !strings.HasPrefix(desc, errorPrefix) {
				o.persist(ctx, storage.Record{
					Source:      source,
					Frame:       frame.Index,
					Timestamp:   frame.Timestamp,
					Description: desc,
				})
			}
			// Each subtask owns its slot, so completion order cannot
			// reorder the output.
			results[frame.Index] = FrameDescription{
				Frame:       frame.Index,
				Timestamp:   frame.Timestamp,
				Description: desc,
			}
			return nil
		})
	}
	g.Wait()

	return results, nil
}

// describeBytes is the single-image pipeline: fingerprint, cache lookup,
// decode, normalize, infer, cache fill. Only successful descriptions are
// cached.
func (o *Orchestrator) describeBytes(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyInput
	}

	fp := fingerprint.Sum(data)
	if desc, ok := o.cache.Lookup(fp); ok {
		o.logger.Debug("description cache hit", "fingerprint", fp.String())
		return desc, nil
	}

	img, err := normalizer.Decode(data)
	if err != nil {
		return "", err
	}
	normalized, err := normalizer.EncodeJPEG(normalizer.Normalize(img))
	if err != nil {
		return "", err
	}

	desc, err := o.engine.Describe(ctx, normalized)
	if err != nil {
		o.logger.Error("inference call failed", "fingerprint", fp.String(), "error", err)
		return fmt.Sprintf("Error: failed to process image - %v", err), nil
	}

	o.cache.Insert(fp, desc)
	return desc, nil
}

// persist hands a record to the history store without blocking the request
// or tying the write to its cancellation. Failures are logged only.
func (o *Orchestrator) persist(ctx context.Context, rec storage.Record) {
	if o.store == nil {
		return
	}
	go func(ctx context.Context) {
		if err := o.store.Save(ctx, rec); err != nil {
			o.logger.Error("failed to persist description", "source", rec.Source, "frame", rec.Frame, "error", err)
		}
	}(context.WithoutCancel(ctx))
}

func isVideo(contentType, filename string) bool {
	if strings.HasPrefix(contentType, "video/") {
		return true
	}
	return videoExtensions[strings.ToLower(filepath.Ext(filename))]
}

func sourceName(filename string) string {
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if name == "" || name == "." {
		return "live-feed"
	}
	return name
}
