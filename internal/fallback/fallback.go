// Package fallback implements Graduated Fallback (C9): five increasingly
// coarse classification strategies tried in order when the primary
// classifier's confidence is weak, stopping at the first that meets the
// degradation floor.
package fallback

import (
	"context"
	"sort"
	"strings"

	"github.com/atlasvoice/assistant/internal/domain/models"
)

// SessionMeta is the session metadata level 4 inspects: time of day,
// location, and device type.
type SessionMeta struct {
	TimeOfDay  string // "morning", "afternoon", "evening", "night"
	DeviceType string
	Location   string
}

// ContextRule maps a SessionMeta predicate to a plausible default intent
// for level 4 (context analysis).
type ContextRule struct {
	Match      func(SessionMeta) bool
	Intent     string
	Confidence float64
}

// Config controls C9's behavior (spec §6 rag.fallback.* keys).
type Config struct {
	EnableGradualDegradation    bool
	SimilarityReductionFactor   float64
	MinConfidenceForDegradation float64
	LevelEnabled                [5]bool

	// Level 2: general-domain lexical heuristics, category -> intent.
	Greetings map[string]string // e.g. "hola" -> "saludo"
	Thanks    map[string]string
	Goodbyes  map[string]string
	HelpWords map[string]string

	// Level 3: configurable keyword -> intent table.
	KeywordMap map[string][]string

	// Level 4: context rules evaluated in order, first match wins.
	ContextRules []ContextRule

	// Level 5: the generic fallback intent and its minimum confidence.
	HelpIntent     string
	HelpConfidence float64
}

// Reclassify re-runs the primary classifier at a lowered similarity
// floor, used by level 1. Implemented by *classifier.Classifier's
// Classify method adapted to this narrow signature by the composing
// caller (see internal/intent).
type Reclassify func(ctx context.Context, similarityFloor float64) (*models.ClassificationResult, error)

// Engine runs the graduated fallback ladder.
type Engine struct {
	cfg Config
}

// New creates an Engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Degrade tries levels 1-5 in ascending order, accepting the first whose
// confidence meets MinConfidenceForDegradation, and records the accepted
// level and reason on the result. reclassify services level 1; meta
// services level 4. utterance is normalized (lowercased, trimmed) for the
// lexical levels.
func (e *Engine) Degrade(ctx context.Context, utterance string, meta SessionMeta, reclassify Reclassify) (*models.ClassificationResult, error) {
	if !e.cfg.EnableGradualDegradation {
		return e.level5(), nil
	}

	normalized := strings.ToLower(strings.TrimSpace(utterance))

	if e.levelEnabled(1) && reclassify != nil {
		floor := e.cfg.SimilarityReductionFactor
		result, err := reclassify(ctx, floor)
		if err == nil && result != nil {
			penalized := result.Confidence * 0.8 // 20% confidence penalty
			if penalized >= e.cfg.MinConfidenceForDegradation {
				result.Confidence = penalized
				result.FallbackLevel = models.FallbackReducedSimilarity
				result.Reasoning = "accepted at reduced similarity floor after 20% confidence penalty"
				return result, nil
			}
		}
	}

	const heuristicConfidence, keywordConfidence = 0.75, 0.5

	if e.levelEnabled(2) && heuristicConfidence >= e.cfg.MinConfidenceForDegradation {
		if intent, ok := e.heuristicMatch(normalized); ok {
			return &models.ClassificationResult{
				IntentID:      intent,
				Confidence:    heuristicConfidence,
				FallbackLevel: models.FallbackGeneralHeuristics,
				Reasoning:     "matched a general-domain lexical heuristic",
			}, nil
		}
	}

	if e.levelEnabled(3) && keywordConfidence >= e.cfg.MinConfidenceForDegradation {
		if intent, ok := e.keywordMatch(normalized); ok {
			return &models.ClassificationResult{
				IntentID:      intent,
				Confidence:    keywordConfidence,
				FallbackLevel: models.FallbackKeywordMapping,
				Reasoning:     "matched the configured keyword table",
			}, nil
		}
	}

	if e.levelEnabled(4) {
		for _, rule := range e.cfg.ContextRules {
			if rule.Match(meta) && rule.Confidence >= e.cfg.MinConfidenceForDegradation {
				return &models.ClassificationResult{
					IntentID:      rule.Intent,
					Confidence:    rule.Confidence,
					FallbackLevel: models.FallbackContextAnalysis,
					Reasoning:     "accepted a context-derived default intent",
				}, nil
			}
		}
	}

	return e.level5(), nil
}

func (e *Engine) levelEnabled(level int) bool {
	return e.cfg.LevelEnabled[level-1]
}

func (e *Engine) level5() *models.ClassificationResult {
	help := e.cfg.HelpIntent
	if help == "" {
		help = "help"
	}
	conf := e.cfg.HelpConfidence
	if conf <= 0 {
		conf = 0.1
	}
	return &models.ClassificationResult{
		IntentID:      help,
		Confidence:    conf,
		FallbackLevel: models.FallbackGeneric,
		Reasoning:     "exhausted all prior fallback levels, returning the generic help intent",
	}
}

func (e *Engine) heuristicMatch(utterance string) (string, bool) {
	tables := []map[string]string{e.cfg.Greetings, e.cfg.Thanks, e.cfg.Goodbyes, e.cfg.HelpWords}
	for _, table := range tables {
		for phrase, intent := range table {
			if strings.Contains(utterance, phrase) {
				return intent, true
			}
		}
	}
	return "", false
}

// keywordScore pairs a candidate intent with the metrics used to rank
// keyword matches: earliest position wins, ties broken by frequency.
type keywordScore struct {
	intent   string
	position int
	count    int
}

func (e *Engine) keywordMatch(utterance string) (string, bool) {
	var scores []keywordScore
	for intent, keywords := range e.cfg.KeywordMap {
		earliest := -1
		count := 0
		for _, kw := range keywords {
			idx := strings.Index(utterance, strings.ToLower(kw))
			if idx < 0 {
				continue
			}
			count++
			if earliest == -1 || idx < earliest {
				earliest = idx
			}
		}
		if count > 0 {
			scores = append(scores, keywordScore{intent: intent, position: earliest, count: count})
		}
	}
	if len(scores) == 0 {
		return "", false
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].position != scores[j].position {
			return scores[i].position < scores[j].position
		}
		if scores[i].count != scores[j].count {
			return scores[i].count > scores[j].count
		}
		return scores[i].intent < scores[j].intent
	})
	return scores[0].intent, true
}
