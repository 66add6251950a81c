package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bdougie/livefeed/internal/desccache"
	"github.com/bdougie/livefeed/internal/extractor"
	"github.com/bdougie/livefeed/internal/storage"
)

type stubEngine struct {
	mu    sync.Mutex
	calls int
	fail  bool
	delay time.Duration
}

func (s *stubEngine) Describe(ctx context.Context, _ []byte) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.fail {
		return "", errors.New("engine exploded")
	}
	return "a quiet street corner at dusk", nil
}

func (s *stubEngine) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubSampler struct {
	frames []extractor.Frame
	err    error
}

func (s *stubSampler) Sample(context.Context, []byte, int) ([]extractor.Frame, error) {
	return s.frames, s.err
}

type captureStore struct {
	mu      sync.Mutex
	records []storage.Record
}

func (c *captureStore) Save(_ context.Context, rec storage.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return nil
}

func (c *captureStore) Close() {}

func (c *captureStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func testJPEG(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func newTestOrchestrator(eng *stubEngine, sampler FrameSampler, store storage.Store) *Orchestrator {
	logger := slog.New(slog.DiscardHandler)
	return New(logger, desccache.New(desccache.DefaultCapacity), eng, sampler, store, 30)
}

func TestDescribeSecondCallIsCacheHit(t *testing.T) {
	eng := &stubEngine{}
	o := newTestOrchestrator(eng, &stubSampler{}, storage.NewNoop())

	blob := MediaBlob{Data: testJPEG(t, color.RGBA{R: 255, A: 255}), ContentType: "image/jpeg"}

	first, err := o.Describe(context.Background(), blob)
	require.NoError(t, err)
	second, err := o.Describe(context.Background(), blob)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, eng.callCount(), "second call must be served from cache")
}

func TestDescribeEmptyInput(t *testing.T) {
	o := newTestOrchestrator(&stubEngine{}, &stubSampler{}, storage.NewNoop())
	_, err := o.Describe(context.Background(), MediaBlob{})
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestDescribeMalformedImage(t *testing.T) {
	o := newTestOrchestrator(&stubEngine{}, &stubSampler{}, storage.NewNoop())
	_, err := o.Describe(context.Background(), MediaBlob{Data: []byte("not an image")})
	require.Error(t, err)
}

func TestDescribeInferenceFailureIsNotCached(t *testing.T) {
	eng := &stubEngine{fail: true}
	o := newTestOrchestrator(eng, &stubSampler{}, storage.NewNoop())

	blob := MediaBlob{Data: testJPEG(t, color.RGBA{G: 255, A: 255})}

	desc, err := o.Describe(context.Background(), blob)
	require.NoError(t, err, "inference failure surfaces as an error description, not an error")
	require.True(t, strings.HasPrefix(desc, "Error:"), "got %q", desc)

	// No cache fill happened, so a retry reaches the engine again.
	_, err = o.Describe(context.Background(), blob)
	require.NoError(t, err)
	require.Equal(t, 2, eng.callCount())
}

func TestDescribeVideoValidatesInput(t *testing.T) {
	o := newTestOrchestrator(&stubEngine{}, &stubSampler{}, storage.NewNoop())

	_, err := o.DescribeVideo(context.Background(), MediaBlob{}, 30)
	require.ErrorIs(t, err, ErrEmptyInput)

	blob := MediaBlob{Data: []byte("data"), ContentType: "text/plain", Filename: "notes.txt"}
	_, err = o.DescribeVideo(context.Background(), blob, 30)
	require.ErrorIs(t, err, ErrInvalidType)
}

func TestDescribeVideoAcceptsVideoSuffix(t *testing.T) {
	sampler := &stubSampler{err: fmt.Errorf("%w: no such container", extractor.ErrOpen)}
	o := newTestOrchestrator(&stubEngine{}, sampler, storage.NewNoop())

	// Content type is useless but the filename looks like a video, so the
	// request reaches the sampler.
	blob := MediaBlob{Data: []byte("data"), ContentType: "application/octet-stream", Filename: "clip.MOV"}
	_, err := o.DescribeVideo(context.Background(), blob, 30)
	require.ErrorIs(t, err, extractor.ErrOpen)
}

func TestDescribeVideoNoFrames(t *testing.T) {
	o := newTestOrchestrator(&stubEngine{}, &stubSampler{}, storage.NewNoop())

	blob := MediaBlob{Data: []byte("data"), ContentType: "video/mp4", Filename: "clip.mp4"}
	_, err := o.DescribeVideo(context.Background(), blob, 30)
	require.ErrorIs(t, err, ErrNoFrames)
}

func TestDescribeVideoPartialFailureKeepsOrder(t *testing.T) {
	frames := []extractor.Frame{
		{Index: 0, Timestamp: 0, Data: testJPEG(t, color.RGBA{R: 10, A: 255})},
		{Index: 1, Timestamp: 30, Data: testJPEG(t, color.RGBA{R: 80, A: 255})},
		{Index: 2, Timestamp: 60, Data: []byte("corrupted frame bytes")},
		{Index: 3, Timestamp: 90, Data: testJPEG(t, color.RGBA{R: 200, A: 255})},
	}
	eng := &stubEngine{delay: 5 * time.Millisecond}
	o := newTestOrchestrator(eng, &stubSampler{frames: frames}, storage.NewNoop())

	blob := MediaBlob{Data: []byte("data"), ContentType: "video/mp4", Filename: "clip.mp4"}
	results, err := o.DescribeVideo(context.Background(), blob, 30)
	require.NoError(t, err)
	require.Len(t, results, 4)

	for i, r := range results {
		require.Equal(t, i, r.Frame)
		require.Equal(t, float64(i*30), r.Timestamp)
	}

	require.True(t, strings.HasPrefix(results[2].Description, "Error:"), "corrupt frame should carry an error marker, got %q", results[2].Description)
	for _, i := range []int{0, 1, 3} {
		require.Equal(t, "a quiet street corner at dusk", results[i].Description)
	}
}

func TestDescribeVideoCancelledBeforeDispatch(t *testing.T) {
	frames := []extractor.Frame{
		{Index: 0, Timestamp: 0, Data: testJPEG(t, color.RGBA{B: 40, A: 255})},
		{Index: 1, Timestamp: 30, Data: testJPEG(t, color.RGBA{B: 90, A: 255})},
	}
	eng := &stubEngine{}
	o := newTestOrchestrator(eng, &stubSampler{frames: frames}, storage.NewNoop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	blob := MediaBlob{Data: []byte("data"), ContentType: "video/mp4", Filename: "clip.mp4"}
	results, err := o.DescribeVideo(ctx, blob, 30)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		require.Contains(t, r.Description, "cancelled")
	}
	require.Equal(t, 0, eng.callCount(), "no frames may be dispatched after cancellation")
}

func TestDescribeVideoPersistsFrameRecords(t *testing.T) {
	frames := []extractor.Frame{
		{Index: 0, Timestamp: 0, Data: testJPEG(t, color.RGBA{R: 30, G: 30, A: 255})},
		{Index: 1, Timestamp: 30, Data: testJPEG(t, color.RGBA{R: 30, G: 200, A: 255})},
	}
	store := &captureStore{}
	o := newTestOrchestrator(&stubEngine{}, &stubSampler{frames: frames}, store)

	blob := MediaBlob{Data: []byte("data"), ContentType: "video/mp4", Filename: "porch-cam.mp4"}
	_, err := o.DescribeVideo(context.Background(), blob, 30)
	require.NoError(t, err)

	// Persistence is asynchronous by design.
	require.Eventually(t, func() bool { return store.count() == 2 }, time.Second, 10*time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	for _, rec := range store.records {
		require.Equal(t, "porch-cam", rec.Source)
		require.NotEmpty(t, rec.Description)
	}
}
