// Package embeddings defines the Provider interface for vector embedding
// backends.
//
// The self-hosted knowledge store embeds search queries with one of these
// providers and matches them against pre-embedded documents. All vectors
// produced by a single Provider instance share one dimensionality.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over a text-embedding backend.
//
// Callers must not mix vectors from different Provider instances in the same
// similarity computation unless both use the same model and space.
type Provider interface {
	// Embed computes the embedding vector for a single text string. Returns a
	// float32 slice of length Dimensions() or an error if the request fails
	// or ctx is cancelled.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes vectors for a slice of texts in one provider call.
	// The i-th element of the result corresponds to texts[i]. On error the
	// entire result is nil; partial results are not returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector this provider
	// produces.
	Dimensions() int

	// ModelID returns the provider-specific model identifier, for logging and
	// for ensuring one corpus is never mixed across models.
	ModelID() string
}
