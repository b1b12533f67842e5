// Package km defines the Provider interface for knowledge-base retrieval
// backends.
//
// Retrieval takes the corrected transcript plus its keywords and returns
// scored documents that ground the generated answer. Implementations must be
// safe for concurrent use.
package km

import (
	"context"

	"github.com/AmityCo/answercore/pkg/types"
)

// DefaultMaxResults caps the merged result set fed to the generator.
const DefaultMaxResults = 10

// Query is one retrieval request.
type Query struct {
	// Text is the corrected transcript.
	Text string

	// Keywords are searched alongside Text; results are merged.
	Keywords []string

	// KnowledgeID selects the organisation's knowledge base.
	KnowledgeID string

	// Language is the BCP-47 tag of the question.
	Language string

	// MaxResults caps the merged result set. Zero means [DefaultMaxResults].
	MaxResults int
}

// Provider is the abstraction over a retrieval backend.
type Provider interface {
	// Search returns documents matching q, ordered by reranker score
	// descending. An empty result is not an error.
	Search(ctx context.Context, q Query) (types.KMResult, error)
}
