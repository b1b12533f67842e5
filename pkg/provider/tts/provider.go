// Package tts defines the Provider interface for text-to-speech vendors.
//
// A provider renders one SSML document into a complete audio blob. Streaming
// assembly, buffering, and caching sit above this interface; the vendor call
// itself is synchronous.
//
// Implementors must be safe for concurrent use.
package tts

import "context"

// Auth carries the per-organisation vendor credentials. Credentials arrive
// with each request because every organisation brings its own subscription.
type Auth struct {
	// SubscriptionKey authenticates against the vendor.
	SubscriptionKey string

	// Region selects the vendor's regional endpoint.
	Region string
}

// Provider is the abstraction over a speech-synthesis backend.
type Provider interface {
	// Synthesize renders ssml into audio, returning the blob and its media
	// type. Implementations must respect ctx cancellation.
	Synthesize(ctx context.Context, ssml string, auth Auth) (audio []byte, mediaType string, err error)
}
