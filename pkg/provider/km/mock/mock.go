// Package mock provides a test double for the km.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/AmityCo/answercore/pkg/provider/km"
	"github.com/AmityCo/answercore/pkg/types"
)

// Provider is a mock implementation of km.Provider.
type Provider struct {
	mu sync.Mutex

	// Result and Err are returned by Search.
	Result types.KMResult
	Err    error

	// Calls records every query, in order.
	Calls []km.Query
}

var _ km.Provider = (*Provider)(nil)

// Search records the call and returns the configured result.
func (p *Provider) Search(_ context.Context, q km.Query) (types.KMResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, q)
	return p.Result, p.Err
}

// CallCount returns the number of recorded calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
