package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/atlasvoice/assistant/internal/domain/models"
	"github.com/atlasvoice/assistant/internal/ports"
)

// LLM is C10's second extraction strategy: structured extraction via a
// prompt enumerating the requested entity types.
type LLM struct {
	provider ports.LLMProvider
}

// NewLLM constructs the LLM-based extractor.
func NewLLM(provider ports.LLMProvider) *LLM {
	return &LLM{provider: provider}
}

type llmEntityResponse struct {
	Entities []struct {
		Type       string  `json:"type"`
		Value      string  `json:"value"`
		Confidence float64 `json:"confidence"`
	} `json:"entities"`
}

// Extract asks the LLM to find instances of wantedTypes in utterance and
// returns them tagged as source "llm". An empty or unparsable response
// yields no entities rather than an error, so a struggling LLM strategy
// never blocks the other two strategies' results from merging.
func (l *LLM) Extract(ctx context.Context, utterance string, wantedTypes []string) []models.ExtractedEntity {
	if l.provider == nil || len(wantedTypes) == 0 {
		return nil
	}
	prompt := buildExtractionPrompt(utterance, wantedTypes)
	raw, err := l.provider.Complete(ctx, prompt, ports.CompletionParams{Temperature: 0.1, MaxTokens: 400, JSONMode: true})
	if err != nil {
		return nil
	}
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var parsed llmEntityResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil
	}

	out := make([]models.ExtractedEntity, 0, len(parsed.Entities))
	for _, e := range parsed.Entities {
		if e.Type == "" || e.Value == "" {
			continue
		}
		out = append(out, models.ExtractedEntity{
			Type:       e.Type,
			Value:      e.Value,
			Confidence: clamp01(e.Confidence),
			Source:     "llm",
		})
	}
	return out
}

func buildExtractionPrompt(utterance string, wantedTypes []string) string {
	var b strings.Builder
	b.WriteString("Extract the following entity types from the utterance if present: ")
	b.WriteString(strings.Join(wantedTypes, ", "))
	b.WriteString("\nUtterance: ")
	b.WriteString(utterance)
	b.WriteString("\n")
	fmt.Fprintf(&b, `Respond with JSON only: {"entities":[{"type":string,"value":string,"confidence":number 0-1}]}`)
	return b.String()
}
