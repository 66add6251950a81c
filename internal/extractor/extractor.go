// Package extractor turns a video byte stream into an ordered, interval-sampled
// sequence of still-image frames.
package extractor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
)

// DefaultInterval keeps every 30th decoded frame when the caller does not
// specify a sampling interval.
const DefaultInterval = 30

var (
	// ErrOpen reports a video container that could not be opened at all.
	ErrOpen = errors.New("failed to open video")

	// ErrExtraction reports a decode failure after the container was opened.
	ErrExtraction = errors.New("failed to extract frames")
)

// Frame is one sampled still image. Index is the position in emission order
// (0,1,2,...), not the decode-position counter; Timestamp is Index times the
// sampling interval, in seconds.
type Frame struct {
	Index     int
	Timestamp float64
	Data      []byte
}

// Sampler extracts JPEG frames from video bytes with ffmpeg. Frames are
// decoded in container order; every interval-th decoded frame (0-indexed)
// is kept.
type Sampler struct {
	logger     *slog.Logger
	ffmpegPath string
}

// NewSampler creates a sampler that shells out to ffmpeg on PATH.
func NewSampler(logger *slog.Logger) *Sampler {
	return &Sampler{logger: logger, ffmpegPath: "ffmpeg"}
}

// Sample decodes video and returns every interval-th frame as JPEG bytes.
// An interval larger than the frame count yields exactly the first frame;
// an empty or zero-duration video yields an empty slice. The video bytes
// are staged in a temp file which is removed on every exit path; removal
// failures are logged, never propagated, so they cannot mask the result.
func (s *Sampler) Sample(ctx context.Context, video []byte, interval int) ([]Frame, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	tmp, err := os.CreateTemp("", "livefeed-video-*.bin")
	if err != nil {
		return nil, fmt.Errorf("%w: staging temp file: %v", ErrOpen, err)
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil {
			s.logger.Error("failed to remove temp video file", "path", tmp.Name(), "error", err)
		}
	}()

	if _, err := tmp.Write(video); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("%w: writing temp file: %v", ErrOpen, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("%w: closing temp file: %v", ErrOpen, err)
	}

	// Stream every decoded frame to stdout as JPEG; sampling happens on
	// the Go side so index and timestamp assignment stay in one place.
	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-i", tmp.Name(),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting ffmpeg: %v", ErrOpen, err)
	}

	frames, scanErr := sampleStream(stdout, interval)
	waitErr := cmd.Wait()

	if scanErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, scanErr)
	}
	if waitErr != nil {
		if len(frames) == 0 {
			return nil, fmt.Errorf("%w: %v (%s)", ErrOpen, waitErr, lastLine(stderr.Bytes()))
		}
		return nil, fmt.Errorf("%w: %v (%s)", ErrExtraction, waitErr, lastLine(stderr.Bytes()))
	}

	s.logger.Debug("sampled video frames", "interval", interval, "frames", len(frames))
	return frames, nil
}

// sampleStream scans a concatenated-JPEG stream, counting every decoded
// frame and keeping those whose decode position is congruent to 0 modulo
// interval. Emitted indices are output-sequence positions.
func sampleStream(r io.Reader, interval int) ([]Frame, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	var frames []Frame
	decodePos := 0
	for {
		data, err := readJPEG(br)
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return nil, err
		}
		if decodePos%interval == 0 {
			idx := len(frames)
			frames = append(frames, Frame{
				Index:     idx,
				Timestamp: float64(idx * interval),
				Data:      data,
			})
		}
		decodePos++
	}
}

// readJPEG consumes one JPEG image (SOI through EOI) from the stream.
// Returns io.EOF only on a clean end between images; a stream that ends
// mid-image is a decode error. Within entropy-coded data 0xFF is always
// escaped, so a literal FFD9 reliably terminates the image.
func readJPEG(br *bufio.Reader) ([]byte, error) {
	// Scan to the next SOI marker, tolerating stray bytes between images.
	for {
		b, err := br.ReadByte()
		if err != nil {
			return nil, io.EOF
		}
		if b != 0xFF {
			continue
		}
		nb, err := br.ReadByte()
		if err != nil {
			return nil, io.EOF
		}
		if nb == 0xD8 {
			break
		}
		if nb == 0xFF {
			// Could itself start a marker; put it back.
			br.UnreadByte()
		}
	}

	buf := []byte{0xFF, 0xD8}
	prev := byte(0)
	for {
		b, err := br.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("truncated frame at offset %d: %w", len(buf), io.ErrUnexpectedEOF)
		}
		buf = append(buf, b)
		if prev == 0xFF && b == 0xD9 {
			return buf, nil
		}
		prev = b
	}
}

func lastLine(out []byte) []byte {
	out = bytes.TrimSpace(out)
	if i := bytes.LastIndexByte(out, '\n'); i >= 0 {
		out = out[i+1:]
	}
	return out
}
