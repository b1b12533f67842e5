// Package amity implements knowledge retrieval against the hosted KM search
// API.
//
// A batch search fans the corrected transcript and every keyword out as
// parallel queries, merges the hits de-duplicated by document id, and returns
// the best-scored documents first.
package amity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AmityCo/answercore/pkg/provider/km"
	"github.com/AmityCo/answercore/pkg/types"
)

const defaultTimeout = 15 * time.Second

// maxParallelQueries bounds the fan-out of one batch search.
const maxParallelQueries = 5

// Client implements [km.Provider] against the hosted search endpoint.
type Client struct {
	url    string
	token  string
	client *http.Client
}

var _ km.Provider = (*Client)(nil)

// Option is a functional option for Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// New creates a client for the search API at url authenticating with the
// given bearer token.
func New(url, token string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("amity: url must not be empty")
	}
	c := &Client{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// searchRequest is the wire shape of a single query.
type searchRequest struct {
	Content     string `json:"content"`
	KnowledgeID int    `json:"knowledgeId"`
	Language    string `json:"language"`
}

// Search implements [km.Provider]. The transcript and each keyword run as
// separate upstream queries in parallel; a failed sub-query fails the batch.
func (c *Client) Search(ctx context.Context, q km.Query) (types.KMResult, error) {
	queries := make([]string, 0, 1+len(q.Keywords))
	if q.Text != "" {
		queries = append(queries, q.Text)
	}
	for _, kw := range q.Keywords {
		if kw != "" {
			queries = append(queries, kw)
		}
	}
	if len(queries) == 0 {
		return types.KMResult{Data: []types.KMHit{}}, nil
	}

	var (
		mu   sync.Mutex
		hits []types.KMHit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelQueries)
	for _, query := range queries {
		g.Go(func() error {
			res, err := c.searchOne(gctx, query, q)
			if err != nil {
				return err
			}
			mu.Lock()
			hits = append(hits, res.Data...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.KMResult{}, err
	}

	merged := mergeHits(hits, q.MaxResults)
	return types.KMResult{Data: merged, Total: len(merged)}, nil
}

// searchOne performs a single upstream query.
func (c *Client) searchOne(ctx context.Context, content string, q km.Query) (types.KMResult, error) {
	kid, err := strconv.Atoi(q.KnowledgeID)
	if err != nil {
		return types.KMResult{}, fmt.Errorf("amity: knowledge id %q is not numeric: %w", q.KnowledgeID, err)
	}

	payload, err := json.Marshal(searchRequest{
		Content:     content,
		KnowledgeID: kid,
		Language:    q.Language,
	})
	if err != nil {
		return types.KMResult{}, fmt.Errorf("amity: marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return types.KMResult{}, fmt.Errorf("amity: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return types.KMResult{}, fmt.Errorf("amity: search %q: %w", content, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return types.KMResult{}, fmt.Errorf("amity: search %q: status %d: %s", content, resp.StatusCode, raw)
	}

	var result types.KMResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return types.KMResult{}, fmt.Errorf("amity: decode response: %w", err)
	}
	return result, nil
}

// mergeHits de-duplicates by document id (keeping the best reranker score),
// sorts by reranker score descending, and caps the result.
func mergeHits(hits []types.KMHit, maxResults int) []types.KMHit {
	if maxResults <= 0 {
		maxResults = km.DefaultMaxResults
	}

	best := make(map[string]types.KMHit, len(hits))
	for _, h := range hits {
		prev, seen := best[h.DocumentID]
		if !seen || h.RerankerScore > prev.RerankerScore {
			best[h.DocumentID] = h
		}
	}

	merged := make([]types.KMHit, 0, len(best))
	for _, h := range best {
		merged = append(merged, h)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].RerankerScore > merged[j].RerankerScore
	})

	if len(merged) > maxResults {
		merged = merged[:maxResults]
	}
	return merged
}
