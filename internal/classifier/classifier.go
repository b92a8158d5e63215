// Package classifier implements the Retrieval Classifier (C7): RAG example
// retrieval against the Vector Store, LLM classification, and the
// ten-signal weighted confidence score from spec §4.6.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/atlasvoice/assistant/internal/domain"
	"github.com/atlasvoice/assistant/internal/domain/models"
	"github.com/atlasvoice/assistant/internal/ports"
	"github.com/atlasvoice/assistant/internal/ptr"
)

// Config bundles the tunables sourced from config.RAGConfidenceConfig.
type Config struct {
	Weights          models.ConfidenceWeights
	AcceptThreshold  float64
	MinExamples      int
	MaxLatency       time.Duration
	SimilarityFloor  float64
}

// Classifier implements C7's primary (non-MoE) classification path.
type Classifier struct {
	embedder ports.EmbeddingProvider
	vectors  ports.VectorStore
	llm      ports.LLMProvider
	cfg      Config
}

// New creates a Classifier.
func New(embedder ports.EmbeddingProvider, vectors ports.VectorStore, llm ports.LLMProvider, cfg Config) *Classifier {
	return &Classifier{embedder: embedder, vectors: vectors, llm: llm, cfg: cfg}
}

// Input bundles one classification request's context.
type Input struct {
	Utterance      string
	KnownIntents   []string
	MaxExamples    int
	SimilarityFloor *float64
	UsedFallback   bool // set by a caller re-invoking with degraded parameters
	HasContextMeta bool
}

// llmResponse is the strict JSON shape the classification prompt demands.
type llmResponse struct {
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities"`
	Reasoning  string            `json:"reasoning"`
}

// Classify performs one primary classification attempt: embed, retrieve,
// prompt, parse, and score.
func (c *Classifier) Classify(ctx context.Context, in Input) (*models.ClassificationResult, error) {
	start := time.Now()

	queryVec, err := c.embedder.Embed(ctx, in.Utterance)
	if err != nil {
		return nil, domain.NewDomainError(err, "embed utterance")
	}

	k := in.MaxExamples
	if k <= 0 {
		k = models.DefaultMaxRAGExamples
	}
	floor := in.SimilarityFloor
	if floor == nil {
		floor = ptr.To(c.cfg.SimilarityFloor)
	}
	retrieved, err := c.vectors.SearchTopK(ctx, queryVec, k, floor)
	if err != nil {
		return nil, domain.NewDomainError(err, "search examples")
	}

	prompt := buildPrompt(in.Utterance, retrieved, in.KnownIntents)
	raw, err := c.llm.Complete(ctx, prompt, ports.CompletionParams{Temperature: 0.1, MaxTokens: 512, JSONMode: true})
	if err != nil {
		return nil, domain.NewDomainError(err, "llm classification call")
	}

	parsed, err := parseResponse(raw)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrUnparsableResponse, err.Error())
	}

	latency := time.Since(start)
	signals := buildSignals(parsed.Confidence, retrieved, parsed.Intent, latency, c.cfg.MaxLatency, in.HasContextMeta, len(prompt))
	weighted := signals.Weighted(c.cfg.Weights)
	final := clamp01(weighted * qualityFactor(len(retrieved), c.cfg.MinExamples, latency, c.cfg.MaxLatency, in.UsedFallback))

	docIDs := make([]string, 0, len(retrieved))
	for _, d := range retrieved {
		docIDs = append(docIDs, d.Document.DocID)
	}

	return &models.ClassificationResult{
		IntentID:      parsed.Intent,
		Confidence:    final,
		ExamplesUsed:  docIDs,
		FallbackLevel: models.FallbackNone,
		Reasoning:     parsed.Reasoning,
		Entities:      parsed.Entities,
		Latency:       latency,
	}, nil
}

// Accepted reports whether result clears the configured accept threshold.
func (c *Classifier) Accepted(result *models.ClassificationResult) bool {
	return result.Confidence >= c.cfg.AcceptThreshold
}

func buildPrompt(utterance string, examples []models.ScoredDocument, knownIntents []string) string {
	var b strings.Builder
	b.WriteString("You are an intent classifier for a voice assistant.\n")
	b.WriteString("Utterance: ")
	b.WriteString(utterance)
	b.WriteString("\n\n")

	if len(examples) > 0 {
		b.WriteString("Similar labeled examples:\n")
		for _, ex := range examples {
			fmt.Fprintf(&b, "- %q => intent: %s (similarity %.2f)\n", ex.Document.Content, ex.Document.IntentID, ex.Similarity)
		}
		b.WriteString("\n")
	}

	if len(knownIntents) > 0 {
		b.WriteString("Known intents: ")
		b.WriteString(strings.Join(knownIntents, ", "))
		b.WriteString("\n\n")
	}

	b.WriteString("Respond with a single JSON object with exactly these fields: ")
	b.WriteString(`{"intent": string, "confidence": number between 0 and 1, "entities": object of string to string, "reasoning": string}. `)
	b.WriteString("Respond with JSON only, no prose.")
	return b.String()
}

func parseResponse(raw string) (*llmResponse, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var parsed llmResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("unparsable classifier response: %w", err)
	}
	if parsed.Intent == "" {
		return nil, fmt.Errorf("classifier response missing intent field")
	}
	parsed.Confidence = clamp01(parsed.Confidence)
	return &parsed, nil
}
