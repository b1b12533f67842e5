// Package mock provides a test double for the validator.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/AmityCo/answercore/pkg/provider/validator"
	"github.com/AmityCo/answercore/pkg/types"
)

// Provider is a mock implementation of validator.Provider.
type Provider struct {
	mu sync.Mutex

	// Result and Err are returned by Validate.
	Result types.ValidationResult
	Err    error

	// Calls records every request, in order.
	Calls []validator.Request
}

var _ validator.Provider = (*Provider)(nil)

// Validate records the call and returns the configured result.
func (p *Provider) Validate(_ context.Context, req validator.Request) (types.ValidationResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req)
	return p.Result, p.Err
}

// CallCount returns the number of recorded calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
