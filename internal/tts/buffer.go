package tts

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/AmityCo/answercore/internal/audiocache"
)

const (
	// DefaultMinWords is how many words accumulate before a flush.
	DefaultMinWords = 3

	// DefaultMaxWait bounds how long a short fragment sits before it is
	// flushed anyway.
	DefaultMaxWait = 2 * time.Second
)

// Buffer accumulates streamed text for one language/voice pair and flushes it
// to synthesis in whole-word batches. A flush happens when at least MinWords
// words are buffered or when MaxWait elapses since the first unflushed
// fragment arrived. Word-count flushes cut at the last word boundary and keep
// a trailing partial word buffered; only the timer and Close send the buffer
// out whole.
//
// Synthesis runs on a single worker per buffer, so audio callbacks fire in
// the exact order the text was flushed. Append, Flush, and Close are safe to
// call from multiple goroutines.
type Buffer struct {
	renderer *Renderer
	job      Job

	minWords int
	maxWait  time.Duration

	// onAudio receives each synthesised prefix in flush order.
	onAudio func(text string, entry audiocache.Entry)
	// onError receives synthesis failures; the failed prefix is dropped.
	onError func(text string, err error)
	// onDrained fires exactly once, after Close when every queued prefix has
	// been synthesised or dropped.
	onDrained func()

	ctx context.Context

	mu       sync.Mutex
	cond     *sync.Cond
	pending  strings.Builder
	queue    []string
	inFlight int
	closed   bool
	timer    *time.Timer
}

// BufferConfig bundles the knobs and callbacks for [NewBuffer]. Zero MinWords
// and MaxWait take the defaults; nil callbacks are replaced with no-ops.
type BufferConfig struct {
	MinWords  int
	MaxWait   time.Duration
	OnAudio   func(text string, entry audiocache.Entry)
	OnError   func(text string, err error)
	OnDrained func()
}

// NewBuffer starts a buffer and its synthesis worker. The context bounds
// in-flight vendor calls; the worker itself always drains the queue so
// onDrained fires even after cancellation.
func NewBuffer(ctx context.Context, renderer *Renderer, job Job, cfg BufferConfig) *Buffer {
	if cfg.MinWords <= 0 {
		cfg.MinWords = DefaultMinWords
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWait
	}
	if cfg.OnAudio == nil {
		cfg.OnAudio = func(string, audiocache.Entry) {}
	}
	if cfg.OnError == nil {
		cfg.OnError = func(string, error) {}
	}
	if cfg.OnDrained == nil {
		cfg.OnDrained = func() {}
	}

	b := &Buffer{
		renderer:  renderer,
		job:       job,
		minWords:  cfg.MinWords,
		maxWait:   cfg.MaxWait,
		onAudio:   cfg.OnAudio,
		onError:   cfg.OnError,
		onDrained: cfg.OnDrained,
		ctx:       ctx,
	}
	b.cond = sync.NewCond(&b.mu)
	go b.worker()
	return b
}

// Append adds a text fragment. Fragments arriving after Close are discarded.
func (b *Buffer) Append(fragment string) {
	if fragment == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	if b.pending.Len() == 0 {
		b.armTimerLocked()
	}
	b.pending.WriteString(fragment)

	if wordCount(b.pending.String()) >= b.minWords {
		b.flushBoundaryLocked()
	}
}

// Flush forces any buffered text out regardless of word count.
func (b *Buffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// Close flushes the remainder and shuts the buffer down. The worker finishes
// whatever is queued, then fires onDrained.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.flushLocked()
	b.closed = true
	b.cond.Broadcast()
}

// InFlight reports how many flushed prefixes have not finished synthesis.
func (b *Buffer) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight
}

// flushLocked moves all pending text onto the worker queue, a trailing
// partial word included. Used by the timer, Flush, and Close. Caller holds mu.
func (b *Buffer) flushLocked() {
	text := b.pending.String()
	b.pending.Reset()
	b.enqueueLocked(text)
}

// flushBoundaryLocked flushes the longest prefix ending on a word boundary,
// provided it still holds at least minWords words. The remainder stays in
// pending with the timer re-armed so a partial word cannot sit forever.
// Caller holds mu.
func (b *Buffer) flushBoundaryLocked() {
	head, tail, ok := boundaryCut(b.pending.String())
	if !ok || wordCount(head) < b.minWords {
		return
	}
	b.pending.Reset()
	b.pending.WriteString(tail)
	b.enqueueLocked(head)
	if b.pending.Len() > 0 {
		b.armTimerLocked()
	}
}

// enqueueLocked hands one batch to the worker and clears the timer. Caller
// holds mu.
func (b *Buffer) enqueueLocked(text string) {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	b.queue = append(b.queue, text)
	b.inFlight++
	b.cond.Signal()
}

// armTimerLocked starts the max-wait timer for the fragment that just opened
// an empty buffer. Caller holds mu.
func (b *Buffer) armTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.maxWait, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed {
			return
		}
		b.timer = nil
		b.flushLocked()
	})
}

// worker consumes the queue one prefix at a time, preserving order. It exits
// after Close once the queue is empty, then signals drained.
func (b *Buffer) worker() {
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 && b.closed {
			b.mu.Unlock()
			break
		}
		text := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		entry, err := b.renderer.Render(b.ctx, text, b.job)
		if err != nil {
			b.onError(text, err)
		} else {
			b.onAudio(text, entry)
		}

		b.mu.Lock()
		b.inFlight--
		b.mu.Unlock()
	}
	b.onDrained()
}

// wordCount counts whitespace-separated words.
func wordCount(s string) int {
	return len(strings.Fields(s))
}

// boundaryCut splits s at its last word boundary: head holds only complete
// words, tail a trailing partial word. ok is false when s contains no
// boundary at all.
func boundaryCut(s string) (head, tail string, ok bool) {
	if s == "" {
		return "", "", false
	}
	if r, _ := utf8.DecodeLastRuneInString(s); unicode.IsSpace(r) || endsWord(r) {
		return s, "", true
	}
	i := strings.LastIndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return "", s, false
	}
	_, size := utf8.DecodeRuneInString(s[i:])
	return s[:i], s[i+size:], true
}

// endsWord reports whether r terminates a word even without trailing
// whitespace.
func endsWord(r rune) bool {
	switch r {
	case '.', '!', '?', ',', ';', ':', '。', '、', '！', '？':
		return true
	}
	return false
}
