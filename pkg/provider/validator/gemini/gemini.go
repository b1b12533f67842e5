// Package gemini implements transcript validation on the Gemini
// generateContent REST API.
//
// The model receives the validator system instruction, the transcript prompt,
// and, when available, the original utterance as inline WAV data. It responds
// with a JSON object carrying the corrected transcript and search terms.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AmityCo/answercore/pkg/provider/validator"
	"github.com/AmityCo/answercore/pkg/types"
)

// DefaultModel is the validation model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultTimeout = 30 * time.Second
)

// Provider implements [validator.Provider] against the Gemini API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

var _ validator.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithModel overrides [DefaultModel].
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the API base URL. Used in tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// New creates a Gemini validator.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:  apiKey,
		model:   DefaultModel,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ── wire types ───────────────────────────────────────────────────────────────

type generateRequest struct {
	SystemInstruction *content         `json:"system_instruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// validationPayload is the JSON document the model is instructed to return.
type validationPayload struct {
	Correction  string   `json:"correction"`
	SearchTerms []string `json:"searchTerms"`
}

// ── Provider ─────────────────────────────────────────────────────────────────

// Validate implements [validator.Provider].
func (p *Provider) Validate(ctx context.Context, req validator.Request) (types.ValidationResult, error) {
	var parts []part
	if len(req.Audio) > 0 {
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: "audio/wav",
			Data:     base64.StdEncoding.EncodeToString(req.Audio),
		}})
	}
	parts = append(parts, part{Text: req.TranscriptPrompt})

	body := generateRequest{
		Contents:         []content{{Role: "user", Parts: parts}},
		GenerationConfig: generationConfig{ResponseMimeType: "application/json"},
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.SystemPrompt}}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return types.ValidationResult{}, fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, p.model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return types.ValidationResult{}, fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return types.ValidationResult{}, fmt.Errorf("gemini: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return types.ValidationResult{}, fmt.Errorf("gemini: status %d: %s", resp.StatusCode, raw)
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return types.ValidationResult{}, fmt.Errorf("gemini: decode response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return types.ValidationResult{}, fmt.Errorf("gemini: empty candidates in response")
	}

	var vp validationPayload
	if err := json.Unmarshal([]byte(gr.Candidates[0].Content.Parts[0].Text), &vp); err != nil {
		return types.ValidationResult{}, fmt.Errorf("gemini: parse validation payload: %w", err)
	}

	keywords := vp.SearchTerms
	if keywords == nil {
		keywords = []string{}
	}
	return types.ValidationResult{Correction: vp.Correction, Keywords: keywords}, nil
}
