package tts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AmityCo/answercore/internal/audiocache"
	"github.com/AmityCo/answercore/internal/orgconfig"
	"github.com/AmityCo/answercore/pkg/provider/tts"
	ttsmock "github.com/AmityCo/answercore/pkg/provider/tts/mock"
)

// bufferHarness collects synthesis results from a buffer under test.
type bufferHarness struct {
	mu      sync.Mutex
	texts   []string
	errs    []error
	drained chan struct{}
}

func newBufferHarness() *bufferHarness {
	return &bufferHarness{drained: make(chan struct{})}
}

func (h *bufferHarness) config(minWords int, maxWait time.Duration) BufferConfig {
	return BufferConfig{
		MinWords: minWords,
		MaxWait:  maxWait,
		OnAudio: func(text string, _ audiocache.Entry) {
			h.mu.Lock()
			h.texts = append(h.texts, text)
			h.mu.Unlock()
		},
		OnError: func(_ string, err error) {
			h.mu.Lock()
			h.errs = append(h.errs, err)
			h.mu.Unlock()
		},
		OnDrained: func() { close(h.drained) },
	}
}

func (h *bufferHarness) wait(t *testing.T) []string {
	t.Helper()
	select {
	case <-h.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("buffer did not drain")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.texts...)
}

func testRenderer(vendor tts.Provider) *Renderer {
	return NewRenderer(audiocache.NewMemory(0), vendor)
}

func testJob() Job {
	return Job{
		Language: "en-US",
		Voice:    orgconfig.VoiceModel{Language: "en-US", Name: "en-US-AvaNeural"},
		Auth:     tts.Auth{SubscriptionKey: "key", Region: "southeastasia"},
	}
}

func TestBufferFlushesAtMinWords(t *testing.T) {
	t.Parallel()

	vendor := &ttsmock.Provider{}
	h := newBufferHarness()
	b := NewBuffer(context.Background(), testRenderer(vendor), testJob(), h.config(3, time.Minute))

	b.Append("Hello ")
	b.Append("world ")
	b.Append("this")
	b.Close()

	texts := h.wait(t)
	if len(texts) != 1 || texts[0] != "Hello world this" {
		t.Fatalf("synthesised = %q, want one call with %q", texts, "Hello world this")
	}
	if calls := vendor.Calls(); len(calls) != 1 {
		t.Errorf("vendor calls = %d, want 1", len(calls))
	}
}

func TestBufferFlushesShortTextOnTimeout(t *testing.T) {
	t.Parallel()

	vendor := &ttsmock.Provider{}
	h := newBufferHarness()
	b := NewBuffer(context.Background(), testRenderer(vendor), testJob(), h.config(3, 50*time.Millisecond))

	start := time.Now()
	b.Append("Hi")

	// The single short word must go out on the timer, not sit forever.
	deadline := time.After(3 * time.Second)
	for {
		if len(vendor.Calls()) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timeout flush never happened")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("flushed after %v, before the max wait elapsed", elapsed)
	}

	b.Close()
	texts := h.wait(t)
	if len(texts) != 1 || texts[0] != "Hi" {
		t.Fatalf("synthesised = %q, want [Hi]", texts)
	}
}

func TestBufferPreservesAllWordsInOrder(t *testing.T) {
	t.Parallel()

	vendor := &ttsmock.Provider{}
	h := newBufferHarness()
	b := NewBuffer(context.Background(), testRenderer(vendor), testJob(), h.config(3, time.Minute))

	words := []string{"the", "quick", "brown", "fox", "jumps", "over", "the", "lazy", "dog"}
	for _, w := range words {
		b.Append(w + " ")
	}
	b.Close()

	texts := h.wait(t)
	var got []string
	for _, text := range texts {
		got = append(got, strings.Fields(text)...)
	}
	if strings.Join(got, " ") != strings.Join(words, " ") {
		t.Fatalf("reassembled %q, want %q", got, words)
	}
	if len(texts) < 2 {
		t.Errorf("expected multiple flushes for %d words, got %d", len(words), len(texts))
	}
}

func TestBufferCutsAtWordBoundary(t *testing.T) {
	t.Parallel()

	vendor := &ttsmock.Provider{}
	h := newBufferHarness()
	b := NewBuffer(context.Background(), testRenderer(vendor), testJob(), h.config(3, time.Minute))

	// Token fragments routinely split words mid-way; a word-count flush must
	// not cut inside one.
	b.Append("Hello wo")
	b.Append("rld this is par")
	b.Append("tial text")
	b.Close()

	texts := h.wait(t)
	want := []string{"Hello world this is", "partial text"}
	if len(texts) != 2 || texts[0] != want[0] || texts[1] != want[1] {
		t.Fatalf("synthesised = %q, want %q", texts, want)
	}
}

func TestBufferHoldsPartialWordBelowBoundary(t *testing.T) {
	t.Parallel()

	vendor := &ttsmock.Provider{}
	h := newBufferHarness()
	b := NewBuffer(context.Background(), testRenderer(vendor), testJob(), h.config(3, time.Minute))

	// Three words counted, but cutting at the boundary would leave only two.
	// Nothing may go out until Close sends the buffer whole.
	b.Append("one two thr")
	if len(vendor.Calls()) != 0 {
		t.Fatalf("flushed %d batches before a boundary was available", len(vendor.Calls()))
	}
	b.Close()

	texts := h.wait(t)
	if len(texts) != 1 || texts[0] != "one two thr" {
		t.Fatalf("synthesised = %q, want [one two thr]", texts)
	}
}

func TestBufferSentenceEndIsABoundary(t *testing.T) {
	t.Parallel()

	vendor := &ttsmock.Provider{}
	h := newBufferHarness()
	b := NewBuffer(context.Background(), testRenderer(vendor), testJob(), h.config(3, time.Minute))

	b.Append("It is done.")
	b.Close()

	texts := h.wait(t)
	if len(texts) != 1 || texts[0] != "It is done." {
		t.Fatalf("synthesised = %q, want [It is done.]", texts)
	}
	// The terminator made the whole buffer cuttable before Close.
	if calls := vendor.Calls(); len(calls) != 1 {
		t.Errorf("vendor calls = %d, want 1", len(calls))
	}
}

func TestBufferDropsFailedPrefixAndContinues(t *testing.T) {
	t.Parallel()

	var calls int
	var callsMu sync.Mutex
	vendor := &ttsmock.Provider{
		SynthesizeFn: func(_ context.Context, _ string, _ tts.Auth) ([]byte, string, error) {
			callsMu.Lock()
			calls++
			n := calls
			callsMu.Unlock()
			if n == 1 {
				return nil, "", errors.New("vendor down")
			}
			return []byte("audio"), "audio/wav", nil
		},
	}

	h := newBufferHarness()
	b := NewBuffer(context.Background(), testRenderer(vendor), testJob(), h.config(3, time.Minute))

	b.Append("one two three ")
	b.Append("four five six")
	b.Close()

	texts := h.wait(t)
	if len(texts) != 1 || texts[0] != "four five six" {
		t.Fatalf("synthesised = %q, want only the second batch", texts)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.errs) != 1 {
		t.Errorf("errors = %v, want exactly one", h.errs)
	}
}

func TestBufferIgnoresAppendsAfterClose(t *testing.T) {
	t.Parallel()

	vendor := &ttsmock.Provider{}
	h := newBufferHarness()
	b := NewBuffer(context.Background(), testRenderer(vendor), testJob(), h.config(3, time.Minute))

	b.Close()
	b.Append("too late now friend")

	if texts := h.wait(t); len(texts) != 0 {
		t.Fatalf("synthesised = %q, want none", texts)
	}
}
