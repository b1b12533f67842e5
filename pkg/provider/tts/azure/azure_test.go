package azure

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/AmityCo/answercore/pkg/provider/tts"
)

func TestSynthesizeSendsVendorHeaders(t *testing.T) {
	t.Parallel()

	var gotSSML string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Ocp-Apim-Subscription-Key"); got != "key-123" {
			t.Errorf("subscription key header = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/ssml+xml" {
			t.Errorf("content type = %q", got)
		}
		if got := r.Header.Get("X-Microsoft-OutputFormat"); got != OutputFormat {
			t.Errorf("output format = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		gotSSML = string(body)
		w.Write([]byte("RIFFfake-wav-bytes"))
	}))
	t.Cleanup(srv.Close)

	c := New(WithEndpoint(srv.URL))
	audio, mediaType, err := c.Synthesize(context.Background(),
		"<speak>hello</speak>", tts.Auth{SubscriptionKey: "key-123"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(audio) != "RIFFfake-wav-bytes" {
		t.Errorf("audio = %q", audio)
	}
	if mediaType != MediaType {
		t.Errorf("media type = %q, want %q", mediaType, MediaType)
	}
	if gotSSML != "<speak>hello</speak>" {
		t.Errorf("ssml body = %q", gotSSML)
	}
}

func TestSynthesizeRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("RIFFok"))
	}))
	t.Cleanup(srv.Close)

	c := New(WithEndpoint(srv.URL))
	audio, _, err := c.Synthesize(context.Background(), "<speak/>", tts.Auth{SubscriptionKey: "k"})
	if err != nil {
		t.Fatalf("synthesize after retries: %v", err)
	}
	if string(audio) != "RIFFok" {
		t.Errorf("audio = %q", audio)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("vendor calls = %d, want 3", got)
	}
}

func TestSynthesizeDoesNotRetryAuthFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c := New(WithEndpoint(srv.URL))
	if _, _, err := c.Synthesize(context.Background(), "<speak/>", tts.Auth{SubscriptionKey: "k"}); err == nil {
		t.Fatal("expected error on 401")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("vendor calls = %d, want 1 (no retry)", got)
	}
}

func TestSynthesizeRequiresKey(t *testing.T) {
	t.Parallel()

	c := New()
	if _, _, err := c.Synthesize(context.Background(), "<speak/>", tts.Auth{}); err == nil {
		t.Fatal("expected error for missing subscription key")
	}
}
