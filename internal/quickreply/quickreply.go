// Package quickreply short-circuits the answer pipeline for questions an
// organisation has scripted answers for.
//
// Scripts are fetched from a hosted endpoint through the shared template
// fetch cache, so lookups stay in-process for the cache TTL. Matching uses
// Jaro-Winkler similarity over normalised transcripts, which tolerates the
// small recognition errors speech transcripts carry while still requiring a
// near-exact question.
package quickreply

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/AmityCo/answercore/internal/fetchcache"
)

// DefaultThreshold is the minimum Jaro-Winkler score for a match.
const DefaultThreshold = 0.92

// Reply is one scripted answer.
type Reply struct {
	Question string         `json:"question"`
	Answer   string         `json:"answer"`
	Language string         `json:"language,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// HasAnswer reports whether the reply carries answer text. Replies without
// one are metadata-only: their metadata is attached to the stream and the
// normal pipeline still runs.
func (r Reply) HasAnswer() bool {
	return strings.TrimSpace(r.Answer) != ""
}

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithThreshold sets the minimum similarity score. Default: 0.92.
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.threshold = threshold
	}
}

// Matcher looks transcripts up against an organisation's quick-reply scripts.
// Safe for concurrent use; all state lives in the shared fetch cache.
type Matcher struct {
	fetcher   *fetchcache.Fetcher
	baseURL   string
	threshold float64
}

// New returns a matcher backed by the quick-reply endpoint at baseURL.
func New(fetcher *fetchcache.Fetcher, baseURL string, opts ...Option) *Matcher {
	m := &Matcher{
		fetcher:   fetcher,
		baseURL:   baseURL,
		threshold: DefaultThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the best-scoring reply for transcript, restricted to replies
// whose language is empty or equals the request language. The second return
// is false when nothing clears the threshold.
func (m *Matcher) Match(ctx context.Context, orgID, configID, transcript, language string) (Reply, bool, error) {
	norm := normalise(transcript)
	if norm == "" {
		return Reply{}, false, nil
	}

	replies, err := m.load(ctx, orgID, configID)
	if err != nil {
		return Reply{}, false, err
	}

	var (
		best      Reply
		bestScore float64
	)
	for _, r := range replies {
		if r.Language != "" && !strings.EqualFold(r.Language, language) {
			continue
		}
		score := matchr.JaroWinkler(norm, normalise(r.Question), false)
		if score > bestScore {
			best, bestScore = r, score
		}
	}

	if bestScore < m.threshold {
		return Reply{}, false, nil
	}
	return best, true, nil
}

// load fetches and decodes the script list for one org/config pair.
func (m *Matcher) load(ctx context.Context, orgID, configID string) ([]Reply, error) {
	u := fmt.Sprintf("%s?orgId=%s&configId=%s",
		m.baseURL, url.QueryEscape(orgID), url.QueryEscape(configID))

	body, err := m.fetcher.Fetch(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("quickreply: fetch scripts: %w", err)
	}

	var replies []Reply
	if err := json.Unmarshal(body, &replies); err != nil {
		return nil, fmt.Errorf("quickreply: decode scripts: %w", err)
	}
	return replies, nil
}

// normalise lowercases, strips punctuation, and collapses whitespace so
// "What's your name?" and "whats your name" compare equal.
func normalise(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
