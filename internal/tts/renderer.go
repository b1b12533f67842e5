package tts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AmityCo/answercore/internal/audiocache"
	"github.com/AmityCo/answercore/internal/observe"
	"github.com/AmityCo/answercore/internal/orgconfig"
	"github.com/AmityCo/answercore/pkg/provider/tts"
)

// audioExtension is the container format the vendor is asked for.
const audioExtension = "wav"

// Renderer turns text prefixes into audio, reading through the shared audio
// cache. Cache writes happen behind the response so a slow store never delays
// the stream. Safe for concurrent use.
type Renderer struct {
	cache   audiocache.Store
	vendor  tts.Provider
	metrics *observe.Metrics
}

// NewRenderer wires a vendor behind the given cache store.
func NewRenderer(cache audiocache.Store, vendor tts.Provider) *Renderer {
	return &Renderer{
		cache:   cache,
		vendor:  vendor,
		metrics: observe.DefaultMetrics(),
	}
}

// Job carries everything a single synthesis needs beyond the text itself.
type Job struct {
	Language    string
	Voice       orgconfig.VoiceModel
	Auth        tts.Auth
	Transformer *Transformer
}

// Render synthesises text using the job's voice, consulting the cache first.
// The cache key is derived from the raw text, so a later request for the same
// prefix hits regardless of phoneme table contents at render time.
func (r *Renderer) Render(ctx context.Context, text string, job Job) (audiocache.Entry, error) {
	key := audiocache.Key(text, job.Language, job.Voice.Name, audioExtension)

	entry, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("audio cache read failed", "key", key, "error", err)
	}
	r.metrics.RecordCacheLookup(ctx, "tts_audio", ok)
	if ok {
		return entry, nil
	}

	transformed := text
	if job.Transformer != nil {
		transformed = job.Transformer.Apply(text)
	}
	ssml := BuildSSML(transformed, job.Language, job.Voice)

	start := time.Now()
	audio, mediaType, err := r.vendor.Synthesize(ctx, ssml, job.Auth)
	r.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		r.metrics.RecordProviderError(ctx, "azure", "tts")
		return audiocache.Entry{}, fmt.Errorf("tts: synthesize: %w", err)
	}

	entry = audiocache.Entry{Audio: audio, MediaType: mediaType}

	// Write-behind: the caller gets its audio immediately and the store
	// catches up on its own time, detached from request cancellation.
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := r.cache.Put(bg, key, entry); err != nil {
			slog.Warn("audio cache write failed", "key", key, "error", err)
		}
	}()

	return entry, nil
}
