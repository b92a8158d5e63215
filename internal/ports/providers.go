package ports

import "context"

// EmbeddingProvider (C5) is a narrow adapter contract: text in, vector out.
// Timeout and retry policy are configuration-driven in the adapter.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// CompletionParams controls an LLM completion call.
type CompletionParams struct {
	Temperature float64
	MaxTokens   int
	// JSONMode requests the provider constrain output to valid JSON, for
	// callers (classifier, voter, decomposer) that must parse the result.
	JSONMode bool
}

// LLMProvider (C6) is a narrow adapter contract: prompt in, text out.
// Callers needing structured output parse the returned text as JSON
// themselves and must treat unparsable responses as a provider error.
type LLMProvider interface {
	Complete(ctx context.Context, prompt string, params CompletionParams) (string, error)
}
