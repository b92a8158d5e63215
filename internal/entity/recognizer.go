package entity

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/atlasvoice/assistant/internal/domain/models"
	"github.com/atlasvoice/assistant/internal/ports"
)

// Config controls C10's behavior (spec §6 entity.* keys).
type Config struct {
	ConfidenceFloor float64
}

// Recognizer runs the pattern, LLM, and context strategies concurrently
// and merges their results.
type Recognizer struct {
	pattern *Pattern
	llm     *LLM
	ctxStrat *Context
	cfg     Config
}

// New constructs a Recognizer. llmProvider may be nil to disable the LLM
// strategy (e.g. in tests or cost-constrained deployments); the other two
// strategies still run.
func New(llmProvider ports.LLMProvider, cfg Config) *Recognizer {
	return &Recognizer{
		pattern:  NewPattern(),
		llm:      NewLLM(llmProvider),
		ctxStrat: NewContext(),
		cfg:      cfg,
	}
}

// Input bundles one extraction call's request context.
type Input struct {
	Utterance   string
	WantedTypes []string
	Context     *models.Context
	RecentTurns []*models.Turn
}

// Recognize runs all three strategies via errgroup.Group and merges their
// output: for each (type, normalized value) pair, the highest-confidence
// extraction wins; results below cfg.ConfidenceFloor are discarded.
func (r *Recognizer) Recognize(ctx context.Context, in Input) ([]models.ExtractedEntity, error) {
	var patternResult, llmResult, contextResult []models.ExtractedEntity

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		patternResult = r.pattern.Extract(in.Utterance)
		return nil
	})
	g.Go(func() error {
		llmResult = r.llm.Extract(gctx, in.Utterance, in.WantedTypes)
		return nil
	})
	g.Go(func() error {
		contextResult = r.ctxStrat.Extract(in.Context, in.RecentTurns, in.WantedTypes)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := make([]models.ExtractedEntity, 0, len(patternResult)+len(llmResult)+len(contextResult))
	all = append(all, patternResult...)
	all = append(all, llmResult...)
	all = append(all, contextResult...)

	return r.merge(all), nil
}

// mergeKey identifies an entity by type and a normalized form of its
// value, so "Madrid" and "madrid" collapse to the same candidate.
func mergeKey(e models.ExtractedEntity) string {
	return e.Type + "\x00" + strings.ToLower(strings.TrimSpace(e.Value))
}

func (r *Recognizer) merge(all []models.ExtractedEntity) []models.ExtractedEntity {
	best := make(map[string]models.ExtractedEntity)
	for _, e := range all {
		key := mergeKey(e)
		if existing, ok := best[key]; !ok || e.Confidence > existing.Confidence {
			best[key] = e
		}
	}

	out := make([]models.ExtractedEntity, 0, len(best))
	for _, e := range best {
		if e.Confidence < r.cfg.ConfidenceFloor {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Value < out[j].Value
	})
	return out
}
