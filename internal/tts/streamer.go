package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/AmityCo/answercore/internal/audiocache"
	"github.com/AmityCo/answercore/internal/fetchcache"
	"github.com/AmityCo/answercore/internal/orgconfig"
	"github.com/AmityCo/answercore/internal/sse"
	"github.com/AmityCo/answercore/pkg/provider/tts"
)

// SinkComponent is the completion-registry name the streamer claims on its
// sink. The stream cannot complete until the streamer reports all audio done.
const SinkComponent = "tts_processing"

// FallbackVoice is used when an organisation has a speech subscription but no
// voice for the requested language or its default.
const FallbackVoice = "es-ES-XimenaMultilingualNeural"

// audioEvent is the payload of a tts_audio stream event.
type audioEvent struct {
	Text        string `json:"text"`
	Language    string `json:"language"`
	AudioData   string `json:"audio_data"`
	AudioFormat string `json:"audio_format"`
	AudioSize   int    `json:"audio_size"`
	ChunkIndex  int    `json:"chunk_index"`
}

// Streamer fans streamed answer text into per-language buffers and emits the
// synthesised audio onto an event sink. One streamer serves one request.
//
// When the organisation has no speech subscription the streamer runs inert:
// text is discarded, but the sink component is still registered and completed
// so the stream lifecycle stays uniform.
type Streamer struct {
	ctx      context.Context
	cfg      *orgconfig.Config
	renderer *Renderer
	fetcher  *fetchcache.Fetcher
	sink     *sse.Sink

	enabled bool
	auth    tts.Auth

	mu      sync.Mutex
	buffers map[string]*Buffer
	closed  bool
	drained int
}

// NewStreamer registers the tts component on sink and returns a streamer
// bound to the request context. Returns an error only if the sink has already
// completed.
func NewStreamer(ctx context.Context, cfg *orgconfig.Config, renderer *Renderer, fetcher *fetchcache.Fetcher, sink *sse.Sink) (*Streamer, error) {
	if err := sink.Register(SinkComponent); err != nil {
		return nil, fmt.Errorf("tts: register sink component: %w", err)
	}

	s := &Streamer{
		ctx:      ctx,
		cfg:      cfg,
		renderer: renderer,
		fetcher:  fetcher,
		sink:     sink,
		buffers:  make(map[string]*Buffer),
	}
	if cfg.TTSEnabled() {
		s.enabled = true
		s.auth = tts.Auth{
			SubscriptionKey: cfg.TTS.Azure.SubscriptionKey,
			Region:          cfg.TTS.Azure.Region,
		}
	}
	return s, nil
}

// AddText routes a text fragment to the buffer for its language, creating the
// buffer (and loading its phoneme tables) on first use.
func (s *Streamer) AddText(text, language string) {
	if !s.enabled || text == "" {
		return
	}
	if buf := s.bufferFor(language); buf != nil {
		buf.Append(text)
	}
}

// bufferFor returns the language's buffer, creating it on first use. Phoneme
// tables can take a network fetch to load on a cold cache, so the job is
// resolved without the lock held; a losing racer discards its job and uses
// the winner's buffer.
func (s *Streamer) bufferFor(language string) *Buffer {
	key := strings.ToLower(language)

	s.mu.Lock()
	buf, ok := s.buffers[key]
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil
	}
	if ok {
		return buf
	}

	job := s.jobFor(language)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if buf, ok := s.buffers[key]; ok {
		return buf
	}
	buf = s.newBuffer(language, job)
	s.buffers[key] = buf
	return buf
}

// jobFor resolves the voice and phoneme transformer for one language.
func (s *Streamer) jobFor(language string) Job {
	voice, ok := s.cfg.VoiceModel(language)
	if !ok {
		voice = orgconfig.VoiceModel{Language: language, Name: FallbackVoice}
		slog.Warn("no voice model configured, using fallback",
			"language", language, "voice", FallbackVoice)
	}
	return Job{
		Language:    language,
		Voice:       voice,
		Auth:        s.auth,
		Transformer: s.transformerFor(voice),
	}
}

// newBuffer wires the callbacks for one language's buffer. Caller holds mu.
func (s *Streamer) newBuffer(language string, job Job) *Buffer {
	chunkIndex := 0
	return NewBuffer(s.ctx, s.renderer, job, BufferConfig{
		OnAudio: func(text string, entry audiocache.Entry) {
			// Sequential per buffer, so the captured index needs no lock.
			s.sink.Emit(sse.Data(sse.TypeTTSAudio, audioEvent{
				Text:        text,
				Language:    language,
				AudioData:   base64.StdEncoding.EncodeToString(entry.Audio),
				AudioFormat: entry.MediaType,
				AudioSize:   len(entry.Audio),
				ChunkIndex:  chunkIndex,
			}))
			chunkIndex++
		},
		OnError: func(text string, err error) {
			slog.Warn("dropping prefix after synthesis failure",
				"language", language, "text_len", len(text), "error", err)
		},
		OnDrained: s.bufferDrained,
	})
}

// transformerFor merges the org-wide and per-voice phoneme tables.
func (s *Streamer) transformerFor(voice orgconfig.VoiceModel) *Transformer {
	urls := []string{}
	if s.cfg.TTS != nil && s.cfg.TTS.Azure != nil {
		urls = append(urls, s.cfg.TTS.Azure.PhonemeURL)
	}
	urls = append(urls, voice.PhonemeURL)
	return NewTransformer(LoadPhonemeTables(s.ctx, s.fetcher, urls...))
}

// FlushAll forces every buffer to flush whatever it holds, regardless of
// word count. Called when text generation finishes.
func (s *Streamer) FlushAll() {
	s.mu.Lock()
	bufs := s.snapshotLocked()
	s.mu.Unlock()

	for _, b := range bufs {
		b.Flush()
	}
}

// Close flushes and shuts down all buffers. The sink component is marked
// complete once every buffer has drained; with no buffers it completes
// immediately. Idempotent.
func (s *Streamer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	bufs := s.snapshotLocked()
	s.mu.Unlock()

	if len(bufs) == 0 {
		s.sink.MarkComplete(SinkComponent)
		return
	}
	for _, b := range bufs {
		b.Close()
	}
}

// bufferDrained counts drained buffers and completes the sink component when
// the last one reports in.
func (s *Streamer) bufferDrained() {
	s.mu.Lock()
	s.drained++
	done := s.closed && s.drained == len(s.buffers)
	s.mu.Unlock()

	if done {
		s.sink.MarkComplete(SinkComponent)
	}
}

func (s *Streamer) snapshotLocked() []*Buffer {
	bufs := make([]*Buffer, 0, len(s.buffers))
	for _, b := range s.buffers {
		bufs = append(bufs, b)
	}
	return bufs
}
