package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeOllama(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/api/embeddings", r.URL.Path)

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Model)

		json.NewEncoder(w).Encode(embeddingResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
}

func TestEmbedRoundTrip(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOllama(t, &calls)
	defer srv.Close()

	svc := NewService(2, srv.URL, "nomic-embed-text")
	defer svc.Close()

	vec, err := svc.Embed(context.Background(), "a dog in a park")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedMemoizesByContent(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOllama(t, &calls)
	defer srv.Close()

	svc := NewService(1, srv.URL, "nomic-embed-text")
	defer svc.Close()

	_, err := svc.Embed(context.Background(), "same description")
	require.NoError(t, err)
	_, err = svc.Embed(context.Background(), "same description")
	require.NoError(t, err)

	require.Equal(t, int32(1), calls.Load(), "repeated content should hit the memo")
}

func TestEmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	svc := NewService(1, srv.URL, "missing-model")
	defer svc.Close()

	_, err := svc.Embed(context.Background(), "anything")
	require.Error(t, err)
}
