// Package mock provides a test double for the tts.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/AmityCo/answercore/pkg/provider/tts"
)

// Call records a single Synthesize invocation.
type Call struct {
	SSML string
	Auth tts.Auth
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Audio, MediaType, and Err are returned by Synthesize. A nil Audio with
	// nil Err yields a small placeholder blob.
	Audio     []byte
	MediaType string
	Err       error

	// SynthesizeFn, if set, overrides the canned response entirely.
	SynthesizeFn func(ctx context.Context, ssml string, auth tts.Auth) ([]byte, string, error)

	// CallLog records every invocation in order.
	CallLog []Call
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize records the call and returns the configured response.
func (p *Provider) Synthesize(ctx context.Context, ssml string, auth tts.Auth) ([]byte, string, error) {
	p.mu.Lock()
	p.CallLog = append(p.CallLog, Call{SSML: ssml, Auth: auth})
	fn := p.SynthesizeFn
	audio, mediaType, err := p.Audio, p.MediaType, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, ssml, auth)
	}
	if err != nil {
		return nil, "", err
	}
	if audio == nil {
		audio = []byte("RIFFmock")
	}
	if mediaType == "" {
		mediaType = "audio/wav"
	}
	return audio, mediaType, nil
}

// Calls returns a copy of the recorded invocations.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.CallLog))
	copy(out, p.CallLog)
	return out
}
