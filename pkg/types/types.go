// Package types defines the shared types used across the answercore packages.
//
// These form the lingua franca between the provider adapters and the answer
// pipeline. Each package defines its own domain types; cross-cutting data
// structures live here to avoid circular imports.
package types

// Message roles. The wire values match the OpenAI-compatible chat schema.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in a conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the text content of the turn.
	Content string `json:"content"`
}

// ValidationResult is the outcome of transcript validation: the corrected
// transcript plus the search keywords derived from it.
type ValidationResult struct {
	Correction string   `json:"correction"`
	Keywords   []string `json:"keywords"`
}

// Document is one knowledge-base document returned by retrieval.
type Document struct {
	ID              string         `json:"id"`
	Content         string         `json:"content"`
	PublicID        string         `json:"publicId,omitempty"`
	SampleQuestions []string       `json:"sampleQuestions,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// KMHit is a scored retrieval match.
type KMHit struct {
	DocumentID    string   `json:"documentId"`
	Document      Document `json:"document"`
	Score         float64  `json:"score"`
	RerankerScore float64  `json:"rerankerScore"`
}

// KMResult is the retrieval response surfaced on the stream and fed to the
// generator as context.
type KMResult struct {
	Data  []KMHit `json:"data"`
	Total int     `json:"total"`
}
