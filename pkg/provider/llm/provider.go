// Package llm defines the Provider interface for the answer-generation model
// backends.
//
// A provider wraps a remote chat-completions API (OpenAI-compatible or Groq)
// and exposes a uniform streaming interface so the answer pipeline never
// couples to a specific SDK.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends
// or when the supplied context is cancelled.
package llm

import (
	"context"

	"github.com/AmityCo/answercore/pkg/types"
)

// FinishReasonError is the FinishReason carried by a [Chunk] that surfaces a
// mid-stream backend failure. The chunk's Text holds the error message.
const FinishReasonError = "error"

// CompletionRequest carries everything the model needs to produce a response.
type CompletionRequest struct {
	// SystemPrompt is injected ahead of the conversation as a system message.
	SystemPrompt string

	// Messages is the ordered conversation. The last message is the user turn
	// that drives the response.
	Messages []types.Message

	// Temperature controls output randomness. The pipeline runs close to
	// greedy decoding (0.01) for answer stability.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content. May be empty on the final chunk.
	Text string

	// FinishReason is set on the final chunk: "stop", "length", or
	// [FinishReasonError]. Empty for non-final chunks.
	FinishReason string
}

// Provider is the abstraction over a chat-completion backend.
//
// Implementations must propagate context cancellation promptly: when ctx is
// cancelled the stream channel must close as quickly as possible.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only channel
	// emitting chunks as they arrive. The channel is closed by the
	// implementation when generation finishes or ctx is cancelled.
	//
	// Callers must drain the channel. Errors after the stream has opened are
	// surfaced as a chunk with FinishReason [FinishReasonError]; the error
	// return is non-nil only for failures that prevent the stream from
	// starting.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req and waits for the full response text. Convenience
	// wrapper for callers that do not need incremental output.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
