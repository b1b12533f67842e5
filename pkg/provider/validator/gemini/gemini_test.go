package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AmityCo/answercore/pkg/provider/validator"
)

// newTestServer returns a server answering generateContent with the given
// payload text and captures the decoded request.
func newTestServer(t *testing.T, payloadText string) (*httptest.Server, *generateRequest) {
	t.Helper()
	captured := &generateRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		resp := map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": payloadText}}}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestValidateWithAudio(t *testing.T) {
	t.Parallel()

	srv, captured := newTestServer(t, `{"correction":"where is the elevator","searchTerms":["elevator","location"]}`)
	p, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	got, err := p.Validate(context.Background(), validator.Request{
		SystemPrompt:     "You correct transcripts.",
		TranscriptPrompt: "Transcript: where is the elevataw",
		Audio:            []byte("RIFF fake wav"),
		Language:         "en-US",
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	if got.Correction != "where is the elevator" {
		t.Errorf("correction = %q", got.Correction)
	}
	if len(got.Keywords) != 2 || got.Keywords[0] != "elevator" {
		t.Errorf("keywords = %v", got.Keywords)
	}

	if captured.SystemInstruction == nil {
		t.Fatal("system instruction missing from request")
	}
	if len(captured.Contents) != 1 || len(captured.Contents[0].Parts) != 2 {
		t.Fatalf("request contents = %+v, want one content with audio + text parts", captured.Contents)
	}
	audioPart := captured.Contents[0].Parts[0]
	if audioPart.InlineData == nil || audioPart.InlineData.MimeType != "audio/wav" {
		t.Errorf("first part = %+v, want inline wav data", audioPart)
	}
	if captured.GenerationConfig.ResponseMimeType != "application/json" {
		t.Errorf("response mime type = %q", captured.GenerationConfig.ResponseMimeType)
	}
}

func TestValidateTextOnly(t *testing.T) {
	t.Parallel()

	srv, captured := newTestServer(t, `{"correction":"hello","searchTerms":[]}`)
	p, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	got, err := p.Validate(context.Background(), validator.Request{
		TranscriptPrompt: "Transcript: hello",
		Language:         "en-US",
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.Correction != "hello" {
		t.Errorf("correction = %q", got.Correction)
	}
	if got.Keywords == nil {
		t.Error("keywords must be an empty slice, not nil")
	}
	if len(captured.Contents[0].Parts) != 1 {
		t.Errorf("text-only request has %d parts, want 1", len(captured.Contents[0].Parts))
	}
}

func TestValidateUpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	p, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := p.Validate(context.Background(), validator.Request{TranscriptPrompt: "x"}); err == nil {
		t.Fatal("expected error on upstream failure")
	}
}

func TestNewRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}
