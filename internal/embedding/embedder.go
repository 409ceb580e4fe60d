// Package embedding turns profile text into vectors through a remote
// provider, with caching, rate limiting and timeouts around the call.
package embedding

import (
	"context"
	"errors"
)

var (
	// ErrEmbeddingUnavailable is returned when the provider fails or times out.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrEmptyInput is returned for empty text.
	ErrEmptyInput = errors.New("empty embedding input")
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// Name identifies the provider and model, e.g. "gemini/gemini-embedding-001".
	Name() string
	Close() error
}

// IsFallback reports whether e produces placeholder vectors rather than
// genuine embeddings.
func IsFallback(e Embedder) bool {
	if g, ok := e.(*Guarded); ok {
		e = g.inner
	}
	_, ok := e.(*MockEmbedder)
	return ok
}
