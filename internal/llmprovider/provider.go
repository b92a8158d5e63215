// Package llmprovider wraps an OpenAI-compatible chat completion API
// behind ports.LLMProvider (C6).
package llmprovider

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/atlasvoice/assistant/internal/adapters/circuitbreaker"
	"github.com/atlasvoice/assistant/internal/ports"
)

// CompletionTimeout bounds a single completion call.
const CompletionTimeout = 2 * time.Minute

// Provider implements ports.LLMProvider using go-openai against any
// OpenAI-compatible endpoint.
type Provider struct {
	client  *openai.Client
	model   string
	breaker *circuitbreaker.CircuitBreaker
}

// New creates a Provider. baseURL may point at a local or third-party
// OpenAI-compatible server; apiKey may be empty for unauthenticated backends.
func New(baseURL, apiKey, model string) *Provider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Provider{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

// Complete sends a single-turn prompt and returns the model's text response.
func (p *Provider) Complete(ctx context.Context, prompt string, params ports.CompletionParams) (string, error) {
	var result string
	err := p.breaker.Execute(func() error {
		var err error
		result, err = p.doComplete(ctx, prompt, params)
		return err
	})
	return result, err
}

func (p *Provider) doComplete(ctx context.Context, prompt string, params ports.CompletionParams) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, CompletionTimeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(params.Temperature),
		MaxTokens:   params.MaxTokens,
	}
	if params.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return resp.Choices[0].Message.Content, nil
}
