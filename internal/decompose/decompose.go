// Package decompose implements the Subtask Decomposer (C12): producing
// candidate Subtasks from an utterance via two strategies (LLM and
// pattern), unioned and deduplicated.
package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/atlasvoice/assistant/internal/domain/models"
	"github.com/atlasvoice/assistant/internal/entity"
	id "github.com/atlasvoice/assistant/internal/idgen"
	"github.com/atlasvoice/assistant/internal/ports"
)

// Config controls C12's behavior (spec §6 decompose.* keys).
type Config struct {
	MaxSubtasks int
	// ConnectorWords splits an utterance into clauses for the pattern
	// strategy, e.g. " y ", " si ", " luego ", " después ".
	ConnectorWords []string
}

var defaultConnectors = []string{" y ", " si ", " luego ", " después ", " entonces ", ", "}

// Decomposer runs the LLM and pattern decomposition strategies.
type Decomposer struct {
	llm         ports.LLMProvider
	pattern     *entity.Pattern
	clauseSplit *regexp.Regexp
	cfg         Config
}

// New constructs a Decomposer. llm may be nil to disable the LLM
// strategy; pattern decomposition always runs.
func New(llm ports.LLMProvider, cfg Config) *Decomposer {
	if len(cfg.ConnectorWords) == 0 {
		cfg.ConnectorWords = defaultConnectors
	}
	parts := make([]string, len(cfg.ConnectorWords))
	for i, c := range cfg.ConnectorWords {
		parts[i] = regexp.QuoteMeta(c)
	}
	return &Decomposer{
		llm:         llm,
		pattern:     entity.NewPattern(),
		clauseSplit: regexp.MustCompile(strings.Join(parts, "|")),
		cfg:         cfg,
	}
}

// Input bundles one decomposition call's request context.
type Input struct {
	Utterance        string
	Context          *models.Context
	AvailableActions []*models.ToolAction
}

// Decompose runs both strategies and returns their union, deduplicated by
// (action_id, canonicalized entities), the higher-confidence candidate
// winning on conflict.
func (d *Decomposer) Decompose(ctx context.Context, in Input) ([]*models.Subtask, error) {
	patternResults := d.patternDecompose(in)

	var llmResults []*models.Subtask
	if d.llm != nil {
		var err error
		llmResults, err = d.llmDecompose(ctx, in)
		if err != nil {
			llmResults = nil
		}
	}

	all := make([]*models.Subtask, 0, len(patternResults)+len(llmResults))
	all = append(all, patternResults...)
	all = append(all, llmResults...)
	return dedupe(all), nil
}

// patternDecompose splits the utterance into clauses by connector words,
// matches each clause against the available actions by keyword overlap,
// and extracts entities from the matched clause via the pattern entity
// strategy.
func (d *Decomposer) patternDecompose(in Input) []*models.Subtask {
	clauses := d.clauseSplit.Split(in.Utterance, -1)
	var out []*models.Subtask
	for _, clause := range clauses {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		action := matchAction(clause, in.AvailableActions)
		if action == nil {
			continue
		}
		entMap := make(map[string]string)
		for _, e := range d.pattern.Extract(clause) {
			entMap[e.Type] = e.Value
		}
		out = append(out, &models.Subtask{
			SubtaskID:   id.NewSubtask(),
			ActionID:    action.ActionID,
			Description: clause,
			Entities:    entMap,
			Priority:    models.PriorityMedium,
			Confidence:  0.55,
			Status:      models.SubtaskPending,
		})
	}
	return out
}

// matchAction scores each available action by how many of its action_id's
// underscore-separated tokens appear in the clause, returning the
// highest-scoring action, or nil if none match at all.
func matchAction(clause string, actions []*models.ToolAction) *models.ToolAction {
	normalized := strings.ToLower(clause)
	var best *models.ToolAction
	bestScore := 0
	for _, a := range actions {
		score := 0
		for _, token := range strings.Split(a.ActionID, "_") {
			if token == "" {
				continue
			}
			if strings.Contains(normalized, strings.ToLower(token)) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = a
		}
	}
	if bestScore == 0 {
		return nil
	}
	return best
}

type llmSubtask struct {
	ActionID    string            `json:"action_id"`
	Description string            `json:"description"`
	Entities    map[string]string `json:"entities"`
	Confidence  float64           `json:"confidence"`
}

type llmDecomposeResponse struct {
	Subtasks []llmSubtask `json:"subtasks"`
}

func (d *Decomposer) llmDecompose(ctx context.Context, in Input) ([]*models.Subtask, error) {
	prompt := buildDecomposePrompt(in, d.cfg.MaxSubtasks)
	raw, err := d.llm.Complete(ctx, prompt, ports.CompletionParams{Temperature: 0.2, MaxTokens: 800, JSONMode: true})
	if err != nil {
		return nil, err
	}
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var parsed llmDecomposeResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("unparsable decomposition response: %w", err)
	}

	limit := len(parsed.Subtasks)
	if d.cfg.MaxSubtasks > 0 && limit > d.cfg.MaxSubtasks {
		limit = d.cfg.MaxSubtasks
	}

	out := make([]*models.Subtask, 0, limit)
	for i := 0; i < limit; i++ {
		s := parsed.Subtasks[i]
		if s.ActionID == "" {
			continue
		}
		out = append(out, &models.Subtask{
			SubtaskID:   id.NewSubtask(),
			ActionID:    s.ActionID,
			Description: s.Description,
			Entities:    s.Entities,
			Priority:    models.PriorityMedium,
			Confidence:  clamp01(s.Confidence),
			Status:      models.SubtaskPending,
		})
	}
	return out, nil
}

func buildDecomposePrompt(in Input, maxSubtasks int) string {
	var b strings.Builder
	b.WriteString("Decompose the following voice assistant request into one or more concrete actions.\n")
	b.WriteString("Utterance: ")
	b.WriteString(in.Utterance)
	b.WriteString("\nAvailable actions:\n")
	for _, a := range in.AvailableActions {
		fmt.Fprintf(&b, "- %s\n", a.ActionID)
	}
	if maxSubtasks > 0 {
		fmt.Fprintf(&b, "Return at most %d subtasks.\n", maxSubtasks)
	}
	b.WriteString(`Respond with JSON only: {"subtasks":[{"action_id":string,"description":string,"entities":object,"confidence":number 0-1}]}`)
	return b.String()
}

// canonicalizeEntities renders entities as a deterministic string for use
// in the dedupe key, independent of map iteration order.
func canonicalizeEntities(entities map[string]string) string {
	keys := make([]string, 0, len(entities))
	for k := range entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s;", k, entities[k])
	}
	return b.String()
}

func dedupe(subtasks []*models.Subtask) []*models.Subtask {
	best := make(map[string]*models.Subtask)
	order := make([]string, 0, len(subtasks))
	for _, st := range subtasks {
		key := st.ActionID + "\x00" + canonicalizeEntities(st.Entities)
		if existing, ok := best[key]; !ok || st.Confidence > existing.Confidence {
			if _, seen := best[key]; !seen {
				order = append(order, key)
			}
			best[key] = st
		}
	}
	out := make([]*models.Subtask, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
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
