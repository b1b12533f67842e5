// Package anyllm provides an llm.Provider backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider client.
//
// The answer pipeline routes on the configured generator model name: a
// "groq/" prefix selects the Groq backend (prefix stripped), anything else is
// treated as an OpenAI model.
//
// Usage:
//
//	p, err := anyllm.ForModel("groq/llama-3.3-70b-versatile", anyllm.Keys{Groq: "gsk-..."})
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/AmityCo/answercore/pkg/provider/llm"
)

// GroqPrefix marks a generator model name as served by Groq.
const GroqPrefix = "groq/"

// Keys holds the per-backend API keys an organisation configures.
type Keys struct {
	OpenAI string
	Groq   string
}

// Provider implements [llm.Provider] by wrapping any-llm-go.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

var _ llm.Provider = (*Provider)(nil)

// ForModel creates a Provider for the given generator model name, routing to
// Groq when the name carries [GroqPrefix] and to OpenAI otherwise.
func ForModel(model string, keys Keys) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	if rest, ok := strings.CutPrefix(model, GroqPrefix); ok {
		backend, err := groq.New(anyllmlib.WithAPIKey(keys.Groq))
		if err != nil {
			return nil, fmt.Errorf("anyllm: create groq backend: %w", err)
		}
		return &Provider{backend: backend, model: rest}, nil
	}

	backend, err := anyllmoai.New(anyllmlib.WithAPIKey(keys.OpenAI))
	if err != nil {
		return nil, fmt.Errorf("anyllm: create openai backend: %w", err)
	}
	return &Provider{backend: backend, model: model}, nil
}

// Model returns the backend-facing model name (routing prefix stripped).
func (p *Provider) Model() string {
	return p.model
}

// StreamCompletion implements [llm.Provider].
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	params := p.buildParams(req)

	backendChunks, backendErrs := p.backend.CompletionStream(ctx, params)

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)

		for chunk := range backendChunks {
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]

			out := llm.Chunk{
				Text:         choice.Delta.Content,
				FinishReason: choice.FinishReason,
			}

			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
		}

		// Backend errors surface after the chunk channel drains.
		if err := <-backendErrs; err != nil {
			select {
			case ch <- llm.Chunk{FinishReason: llm.FinishReasonError, Text: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return "", fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anyllm: empty choices in response")
	}
	return resp.Choices[0].Message.ContentString(), nil
}

// buildParams converts a CompletionRequest into anyllm CompletionParams.
func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message

	if req.SystemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, anyllmlib.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: messages,
	}
	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}
	return params
}
