// Package validator defines the Provider interface for transcript validation
// backends.
//
// A validator takes the raw transcript (optionally with the original audio and
// recent conversation turns) and returns a corrected transcript plus the
// search keywords to use for retrieval. Implementations must be safe for
// concurrent use.
package validator

import (
	"context"

	"github.com/AmityCo/answercore/pkg/types"
)

// Request carries one validation call. Prompts arrive fully rendered; template
// fetching and placeholder substitution are the caller's concern.
type Request struct {
	// SystemPrompt is the validator's system instruction.
	SystemPrompt string

	// TranscriptPrompt is the user-facing prompt holding the transcript and
	// any folded-in conversation history.
	TranscriptPrompt string

	// Audio is the original utterance as WAV bytes. Empty means text-only
	// validation.
	Audio []byte

	// Language is the BCP-47 tag of the utterance.
	Language string
}

// Provider is the abstraction over a validation backend.
type Provider interface {
	// Validate returns the corrected transcript and derived keywords.
	Validate(ctx context.Context, req Request) (types.ValidationResult, error)
}
