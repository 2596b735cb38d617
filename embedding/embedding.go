// Package embedding defines the embedding-provider boundary used by the
// index backends and provides an OpenAI-backed implementation. Vector
// dimensionality is a property of the embedding model; a backend's storage
// schema must match it.
package embedding

import "context"

// Embedder turns text into a fixed-length vector. Implementations must be
// safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Func adapts a plain function to the Embedder interface. Useful for tests.
type Func func(ctx context.Context, text string) ([]float32, error)

// Embed implements Embedder.
func (f Func) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}
