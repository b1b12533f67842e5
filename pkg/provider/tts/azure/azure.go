// Package azure implements speech synthesis on the Azure Cognitive Services
// REST API.
//
// One POST per SSML document against the regional endpoint, authenticated by
// subscription key. Output is RIFF PCM (WAV), which downstream caching and
// the event stream carry unchanged.
package azure

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AmityCo/answercore/pkg/provider/tts"
)

// DefaultRegion is used when the organisation does not configure one.
const DefaultRegion = "southeastasia"

// OutputFormat is the audio format requested from the vendor. RIFF output is
// a complete WAV stream, so blobs are playable as-is.
const OutputFormat = "riff-16khz-16bit-mono-pcm"

// MediaType is the media type of blobs produced with [OutputFormat].
const MediaType = "audio/wav"

const (
	defaultTimeout = 20 * time.Second
	maxAttempts    = 3
	retryBackoff   = 500 * time.Millisecond
)

// Client implements [tts.Provider] against the Azure speech endpoint.
type Client struct {
	client *http.Client

	// endpointFor builds the synthesis URL for a region. Swapped in tests.
	endpointFor func(region string) string
}

var _ tts.Provider = (*Client)(nil)

// Option is a functional option for Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithEndpoint pins every region to a fixed URL. Used in tests.
func WithEndpoint(url string) Option {
	return func(cl *Client) {
		cl.endpointFor = func(string) string { return url }
	}
}

// New creates an Azure speech client.
func New(opts ...Option) *Client {
	c := &Client{
		client: &http.Client{Timeout: defaultTimeout},
		endpointFor: func(region string) string {
			return fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", region)
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Synthesize implements [tts.Provider]. Transient vendor failures (429, 5xx)
// are retried with a short backoff; other failures return immediately.
func (c *Client) Synthesize(ctx context.Context, ssml string, auth tts.Auth) ([]byte, string, error) {
	if auth.SubscriptionKey == "" {
		return nil, "", fmt.Errorf("azure tts: subscription key must not be empty")
	}
	region := auth.Region
	if region == "" {
		region = DefaultRegion
	}
	url := c.endpointFor(region)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(retryBackoff * time.Duration(attempt-1)):
			case <-ctx.Done():
				return nil, "", ctx.Err()
			}
		}

		audio, retryable, err := c.synthesizeOnce(ctx, url, ssml, auth.SubscriptionKey)
		if err == nil {
			return audio, MediaType, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, "", fmt.Errorf("azure tts: synthesize: %w", lastErr)
}

// synthesizeOnce performs a single synthesis POST. The bool return reports
// whether the failure is worth retrying.
func (c *Client) synthesizeOnce(ctx context.Context, url, ssml, key string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(ssml))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", key)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", OutputFormat)
	req.Header.Set("User-Agent", "answercore")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retryable, err
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, false, fmt.Errorf("empty audio response")
	}
	return audio, false, nil
}
