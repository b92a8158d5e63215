// Package intent composes the Retrieval Classifier (C7), MoE Voting Engine
// (C8), and Graduated Fallback (C9) into the single classification step
// described by spec §2's data flow: "C7 classifies ...; if MoE enabled, C7
// delegates to C8; if classification weak, C9 degrades."
package intent

import (
	"context"

	"github.com/atlasvoice/assistant/internal/classifier"
	"github.com/atlasvoice/assistant/internal/domain/models"
	"github.com/atlasvoice/assistant/internal/fallback"
	"github.com/atlasvoice/assistant/internal/moe"
	"github.com/atlasvoice/assistant/internal/ptr"
)

// Engine is the composing entry point used by callers instead of reaching
// into classifier/moe/fallback directly.
type Engine struct {
	classifier *classifier.Classifier
	moe        *moe.Engine
	fallback   *fallback.Engine
	moeEnabled bool
}

// New constructs an Engine. moeEngine may be nil to disable MoE voting
// outright, independent of moeEnabled (useful for tests that never built
// participants).
func New(c *classifier.Classifier, moeEngine *moe.Engine, f *fallback.Engine, moeEnabled bool) *Engine {
	return &Engine{classifier: c, moe: moeEngine, fallback: f, moeEnabled: moeEnabled}
}

// Input bundles one classification request across all three components.
type Input struct {
	RequestID      string
	Utterance      string
	KnownIntents   []string
	MaxExamples    int
	History        string
	SessionMeta    fallback.SessionMeta
	HasContextMeta bool
}

// Output reports which path produced the final result: the primary
// classifier, an MoE voting round, or a fallback level.
type Output struct {
	Result      *models.ClassificationResult
	VotingRound *models.VotingRound // nil unless MoE actually ran
}

// Classify runs the primary path (MoE round if enabled, else the single
// classifier) and, if its confidence is too weak to accept, invokes
// graduated fallback.
func (e *Engine) Classify(ctx context.Context, in Input) (*Output, error) {
	if e.moeEnabled && e.moe != nil {
		round, err := e.moe.Round(ctx, in.RequestID, moe.Input{
			Utterance:    in.Utterance,
			KnownIntents: in.KnownIntents,
			History:      in.History,
		})
		if err != nil {
			return nil, err
		}
		result := consensusToResult(round.Consensus)
		if e.classifier.Accepted(result) {
			return &Output{Result: result, VotingRound: round}, nil
		}
		degraded, err := e.degrade(ctx, in)
		if err != nil {
			return nil, err
		}
		return &Output{Result: degraded, VotingRound: round}, nil
	}

	result, err := e.classifier.Classify(ctx, classifier.Input{
		Utterance:      in.Utterance,
		KnownIntents:   in.KnownIntents,
		MaxExamples:    in.MaxExamples,
		HasContextMeta: in.HasContextMeta,
	})
	if err != nil {
		return nil, err
	}
	if e.classifier.Accepted(result) {
		return &Output{Result: result}, nil
	}
	degraded, err := e.degrade(ctx, in)
	if err != nil {
		return nil, err
	}
	return &Output{Result: degraded}, nil
}

// degrade invokes C9, wiring level 1's reclassification back through the
// primary classifier at a lowered similarity floor, as spec §4.8 level 1
// requires.
func (e *Engine) degrade(ctx context.Context, in Input) (*models.ClassificationResult, error) {
	if e.fallback == nil {
		return nil, nil
	}
	reclassify := func(ctx context.Context, floor float64) (*models.ClassificationResult, error) {
		return e.classifier.Classify(ctx, classifier.Input{
			Utterance:       in.Utterance,
			KnownIntents:    in.KnownIntents,
			MaxExamples:     in.MaxExamples,
			SimilarityFloor: ptr.To(floor),
			UsedFallback:    true,
			HasContextMeta:  in.HasContextMeta,
		})
	}
	return e.fallback.Degrade(ctx, in.Utterance, in.SessionMeta, reclassify)
}

// consensusToResult adapts an MoE Consensus to C7's ClassificationResult
// shape so callers downstream of classification never need to branch on
// which path produced it.
func consensusToResult(c *models.Consensus) *models.ClassificationResult {
	if c == nil {
		return &models.ClassificationResult{FallbackLevel: models.FallbackNone}
	}
	return &models.ClassificationResult{
		IntentID:      c.FinalIntent,
		Confidence:    c.Confidence,
		Reasoning:     c.Reasoning,
		Entities:      c.Entities,
		FallbackLevel: models.FallbackNone,
	}
}
