package classifier

import (
	"math"
	"time"

	"github.com/atlasvoice/assistant/internal/domain/models"
)

// buildSignals derives the ten inputs to the weighted confidence formula
// (spec §4.6) from one classification attempt's raw measurements.
func buildSignals(llmConfidence float64, retrieved []models.ScoredDocument, chosenIntent string, latency, maxLatency time.Duration, hasMetadata bool, promptLen int) models.ConfidenceSignals {
	return models.ConfidenceSignals{
		LLMSelfConfidence:       clamp01(llmConfidence),
		MeanRetrievalSimilarity: meanSimilarity(retrieved),
		IntentConsistency:       intentConsistency(retrieved, chosenIntent),
		RetrievalCountScaled:    retrievalCountScaled(retrieved),
		SemanticDiversity:       semanticDiversity(retrieved),
		TemporalConfidence:      temporalConfidence(latency, maxLatency),
		EmbeddingQuality:        embeddingQuality(retrieved),
		SimilarityEntropy:       similarityEntropyNormalized(retrieved),
		ContextualBonus:         contextualBonus(hasMetadata, len(retrieved)),
		PromptRobustness:        promptRobustness(promptLen),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func meanSimilarity(docs []models.ScoredDocument) float64 {
	if len(docs) == 0 {
		return 0
	}
	var sum float64
	for _, d := range docs {
		sum += d.Similarity
	}
	return clamp01(sum / float64(len(docs)))
}

// intentConsistency is the fraction of retrieved examples sharing the
// classifier's chosen intent.
func intentConsistency(docs []models.ScoredDocument, chosenIntent string) float64 {
	if len(docs) == 0 {
		return 0
	}
	var matching int
	for _, d := range docs {
		if d.Document != nil && d.Document.IntentID == chosenIntent {
			matching++
		}
	}
	return float64(matching) / float64(len(docs))
}

// retrievalCountScaled saturates at 5 retrieved examples.
func retrievalCountScaled(docs []models.ScoredDocument) float64 {
	const saturation = 5.0
	return clamp01(float64(len(docs)) / saturation)
}

func similarities(docs []models.ScoredDocument) []float64 {
	sims := make([]float64, len(docs))
	for i, d := range docs {
		sims[i] = d.Similarity
	}
	return sims
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// semanticDiversity: 1 - stddev of retrieved similarities. Tightly
// clustered similarities indicate a semantically coherent retrieval set.
func semanticDiversity(docs []models.ScoredDocument) float64 {
	if len(docs) == 0 {
		return 0
	}
	return clamp01(1 - stddev(similarities(docs)))
}

// temporalConfidence buckets latency into coarse bands: faster classifies
// score higher, relative to maxLatency.
func temporalConfidence(latency, maxLatency time.Duration) float64 {
	if maxLatency <= 0 {
		return 0.5
	}
	ratio := float64(latency) / float64(maxLatency)
	switch {
	case ratio <= 0.25:
		return 1.0
	case ratio <= 0.5:
		return 0.8
	case ratio <= 0.75:
		return 0.6
	case ratio <= 1.0:
		return 0.4
	default:
		return 0.2
	}
}

// embeddingQuality: 1 - stddev of similarities, same signal shape as
// semantic diversity but interpreted as embedding-space tightness; kept
// distinct per spec's ten-signal enumeration since deployments may weight
// them independently.
func embeddingQuality(docs []models.ScoredDocument) float64 {
	if len(docs) < 2 {
		return clamp01(meanSimilarity(docs))
	}
	return clamp01(1 - stddev(similarities(docs)))
}

// similarityEntropyNormalized computes Shannon entropy over the
// normalized similarity distribution and rescales to [0,1], where lower
// entropy (similarities concentrated on one intent) yields higher
// confidence, so the signal returned is 1 - normalizedEntropy.
func similarityEntropyNormalized(docs []models.ScoredDocument) float64 {
	if len(docs) == 0 {
		return 0
	}
	var total float64
	var intents []string
	byIntent := make(map[string]float64)
	for _, d := range docs {
		if d.Similarity <= 0 {
			continue
		}
		intentID := ""
		if d.Document != nil {
			intentID = d.Document.IntentID
		}
		if _, seen := byIntent[intentID]; !seen {
			intents = append(intents, intentID)
		}
		byIntent[intentID] += d.Similarity
		total += d.Similarity
	}
	if total == 0 {
		return 0
	}
	var entropy float64
	for _, intentID := range intents {
		p := byIntent[intentID] / total
		entropy -= p * math.Log2(p)
	}
	maxEntropy := math.Log2(float64(len(docs)))
	if maxEntropy == 0 {
		return 1
	}
	return clamp01(1 - entropy/maxEntropy)
}

// contextualBonus rewards the presence of session metadata and a
// non-trivial retrieval set, a small additive nudge rather than a
// dominant signal.
func contextualBonus(hasMetadata bool, retrievedCount int) float64 {
	var bonus float64
	if hasMetadata {
		bonus += 0.5
	}
	if retrievedCount > 0 {
		bonus += 0.5
	}
	return clamp01(bonus)
}

// promptRobustness scores prompt length/structure cues: very short
// prompts (little context to ground the LLM) score lower.
func promptRobustness(promptLen int) float64 {
	const target = 200
	if promptLen <= 0 {
		return 0
	}
	return clamp01(float64(promptLen) / float64(target))
}

// qualityFactor penalizes the raw weighted score for structural
// weaknesses per spec §4.6 step 5: fewer than minExamples retrieved,
// latency exceeding maxLatency, or any fallback use.
func qualityFactor(retrievedCount, minExamples int, latency, maxLatency time.Duration, usedFallback bool) float64 {
	factor := 1.0
	if retrievedCount < minExamples {
		factor *= 0.85
	}
	if maxLatency > 0 && latency > maxLatency {
		factor *= 0.9
	}
	if usedFallback {
		factor *= 0.8
	}
	return factor
}
