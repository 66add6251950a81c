// Package embeddings generates text embeddings for description records
// through a bounded worker pool backed by the Ollama embeddings endpoint.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const (
	defaultWorkers = 4
	queueSize      = 100
	requestTimeout = 30 * time.Second
)

// Result is the outcome of one embedding request.
type Result struct {
	Content   string
	Embedding []float32
	Error     error
}

type work struct {
	content string
	result  chan<- Result
}

// Service generates embeddings asynchronously, memoizing by content so
// repeated descriptions (a common live-feed pattern) cost one API call.
type Service struct {
	numWorkers int
	queue      chan work
	memo       sync.Map
	wg         sync.WaitGroup

	client   *http.Client
	endpoint string
	model    string
}

// NewService starts numWorkers embedding workers against the Ollama host at
// baseURL (e.g. "http://localhost:11434") using the given embedding model.
func NewService(numWorkers int, baseURL, model string) *Service {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}

	s := &Service{
		numWorkers: numWorkers,
		queue:      make(chan work, queueSize),
		client:     &http.Client{Timeout: requestTimeout},
		endpoint:   baseURL + "/api/embeddings",
		model:      model,
	}
	s.startWorkers()
	return s
}

func (s *Service) startWorkers() {
	for i := 0; i < s.numWorkers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for w := range s.queue {
				if cached, ok := s.memo.Load(w.content); ok {
					w.result <- Result{Content: w.content, Embedding: cached.([]float32)}
					continue
				}

				embedding, err := s.generate(context.Background(), w.content)
				if err == nil {
					s.memo.Store(w.content, embedding)
				}
				w.result <- Result{Content: w.content, Embedding: embedding, Error: err}
			}
		}()
	}
}

// Get requests an embedding asynchronously. The returned channel receives
// exactly one Result. When the queue is full the result is an immediate
// error instead of blocking the caller.
func (s *Service) Get(content string) <-chan Result {
	resultChan := make(chan Result, 1)

	select {
	case s.queue <- work{content: content, result: resultChan}:
	default:
		resultChan <- Result{
			Content: content,
			Error:   fmt.Errorf("embedding queue is full, try again later"),
		}
		close(resultChan)
	}

	return resultChan
}

// Embed is the synchronous form of Get, honoring ctx while waiting.
func (s *Service) Embed(ctx context.Context, content string) ([]float32, error) {
	select {
	case res := <-s.Get(content):
		return res.Embedding, res.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (s *Service) generate(ctx context.Context, content string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: s.model, Prompt: content})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding request returned status %d", resp.StatusCode)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embedding response was empty")
	}
	return parsed.Embedding, nil
}

// Close shuts down the service and waits for in-flight work to drain.
func (s *Service) Close() {
	close(s.queue)
	s.wg.Wait()
}
