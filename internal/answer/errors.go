package answer

import "errors"

// Pipeline error kinds. Each maps to a specific degradation path in the flow:
// recoverable kinds keep the stream going, the others terminate it.
var (
	// ErrBadRequest marks requests rejected before the pipeline starts.
	ErrBadRequest = errors.New("answer: bad request")

	// ErrUpstreamUnavailable marks a required template that could not be
	// fetched and had no cached fallback. The pipeline cannot proceed.
	ErrUpstreamUnavailable = errors.New("answer: upstream unavailable")

	// ErrValidatorFailed marks a validator error. Recovered by falling back
	// to the transcript unchanged.
	ErrValidatorFailed = errors.New("answer: validator failed")

	// ErrKMFailed marks a knowledge-search error. Recovered by continuing
	// with an empty document set.
	ErrKMFailed = errors.New("answer: knowledge search failed")

	// ErrLLMFailed marks a generation error mid-stream. The text producer
	// closes; synthesis drains what it already has.
	ErrLLMFailed = errors.New("answer: generation failed")
)
