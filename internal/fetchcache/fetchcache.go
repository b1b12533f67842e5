// Package fetchcache is the cached HTTP layer for small text assets: prompt
// templates, phoneme tables, quick-reply scripts. Entries live for a TTL with
// an early-refresh window, so hot templates are served from memory while a
// background fetch keeps them fresh. Concurrent misses for one URL coalesce
// into a single upstream request.
package fetchcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrUnavailable is returned when the upstream fetch fails and no cached body
// (fresh or stale) exists to fall back to.
var ErrUnavailable = errors.New("fetchcache: upstream unavailable")

// Defaults for the cache policy. An entry younger than the early-refresh age
// is served as-is; between early refresh and TTL it is served while a
// background refresh runs; past the TTL it is refetched synchronously.
const (
	DefaultTTL          = 15 * time.Minute
	DefaultEarlyRefresh = 12 * time.Minute
	DefaultFetchTimeout = 10 * time.Second
)

type entry struct {
	body      []byte
	fetchedAt time.Time
}

// Fetcher caches HTTP GET bodies keyed by URL. Process-wide; safe for
// concurrent use.
type Fetcher struct {
	client       *http.Client
	ttl          time.Duration
	earlyRefresh time.Duration
	fetchTimeout time.Duration

	mu      sync.RWMutex
	entries map[string]*entry

	group singleflight.Group

	// now is swapped in tests to control entry ageing.
	now func() time.Time
}

// Option configures a [Fetcher].
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client used for upstream fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithTTL overrides the cache TTL and early-refresh age. earlyRefresh must be
// less than ttl.
func WithTTL(ttl, earlyRefresh time.Duration) Option {
	return func(f *Fetcher) {
		f.ttl = ttl
		f.earlyRefresh = earlyRefresh
	}
}

// WithFetchTimeout overrides the per-request timeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.fetchTimeout = d }
}

// New creates a Fetcher with the default policy.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:       &http.Client{},
		ttl:          DefaultTTL,
		earlyRefresh: DefaultEarlyRefresh,
		fetchTimeout: DefaultFetchTimeout,
		entries:      make(map[string]*entry),
		now:          time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch returns the body at url, from cache when possible.
//
// Bodies are returned as raw bytes; callers that expect text treat them as
// UTF-8. Concurrent cold fetches for the same URL perform one upstream
// request and share its result.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.RLock()
	e := f.entries[url]
	f.mu.RUnlock()

	if e != nil {
		age := f.now().Sub(e.fetchedAt)
		switch {
		case age < f.earlyRefresh:
			return e.body, nil
		case age < f.ttl:
			f.refreshInBackground(ctx, url)
			return e.body, nil
		}
	}

	body, err, _ := f.group.Do(url, func() (any, error) {
		return f.fetchAndStore(ctx, url)
	})
	if err != nil {
		if e != nil {
			slog.Warn("template refetch failed, serving stale entry",
				"url", url, "error", err)
			return e.body, nil
		}
		return nil, err
	}
	return body.([]byte), nil
}

// refreshInBackground starts a coalesced refresh for url. The refresh runs on
// a context detached from the caller's cancellation so a finished request does
// not abort it.
func (f *Fetcher) refreshInBackground(ctx context.Context, url string) {
	bg := context.WithoutCancel(ctx)
	go func() {
		_, err, _ := f.group.Do(url, func() (any, error) {
			return f.fetchAndStore(bg, url)
		})
		if err != nil {
			slog.Warn("template background refresh failed", "url", url, "error", err)
		}
	}()
}

// fetchAndStore performs the upstream GET and records the result.
func (f *Fetcher) fetchAndStore(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetchcache: build request for %q: %w", url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrUnavailable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %q: status %d", ErrUnavailable, url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: read body: %v", ErrUnavailable, url, err)
	}

	f.mu.Lock()
	f.entries[url] = &entry{body: body, fetchedAt: f.now()}
	f.mu.Unlock()

	return body, nil
}
