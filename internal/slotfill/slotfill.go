// Package slotfill implements the Slot-Filling State Machine (C11):
// merging newly extracted entities into an intent's required slots,
// computing what is still missing, and generating follow-up questions
// until the intent is Ready for decomposition or abandoned.
package slotfill

import (
	"context"
	"fmt"
	"strings"

	"github.com/atlasvoice/assistant/internal/domain/models"
	"github.com/atlasvoice/assistant/internal/ports"
)

// DefaultMaxAttempts is applied when Config.MaxAttempts is unset.
const DefaultMaxAttempts = 3

// Config controls C11's behavior (spec §6 slotfill.* keys).
type Config struct {
	MaxAttempts int
	// GenericQuestions is the per-type fallback question used when an
	// intent has no slot-specific template and the LLM question fails or
	// is disabled, keyed by slot/entity type.
	GenericQuestions map[string]string
}

// Engine runs one intent's slot-filling turns.
type Engine struct {
	llm ports.LLMProvider
	cfg Config
}

// New constructs an Engine. llm may be nil to disable the dynamic
// question-generation tier; the template and generic-default tiers still
// apply.
func New(llm ports.LLMProvider, cfg Config) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Engine{llm: llm, cfg: cfg}
}

// State tracks one in-progress slot-filling session plus the confidence
// of each currently filled value, which models.SlotFillSession itself
// does not carry (Merge needs both the new and prior confidence to
// decide whether to overwrite).
type State struct {
	Session     *models.SlotFillSession
	Confidences map[string]float64
}

// NewState starts gathering for intentID.
func NewState(intentID string) *State {
	return &State{
		Session:     models.NewSlotFillSession(intentID),
		Confidences: make(map[string]float64),
	}
}

// Result is the outcome of one ProcessTurn call.
type Result struct {
	Session       *models.SlotFillSession
	Ready         bool
	Question      string
	Abandoned     bool
	AbandonedSlot string
}

// ProcessTurn implements spec §4.10 steps 1-5: merge extracted entities
// into the slot-filling state, compute what is missing, and either
// transition to Ready, ask a follow-up question, or abandon the slot
// after MaxAttempts.
func (e *Engine) ProcessTurn(ctx context.Context, intent *models.IntentDefinition, st *State, extracted []models.ExtractedEntity) (*Result, error) {
	newValues, newConfidences := highestConfidencePerType(extracted)
	st.Session.Merge(newValues, newConfidences, st.Confidences)
	for slot, value := range st.Session.Filled {
		if value == newValues[slot] {
			if conf, ok := newConfidences[slot]; ok {
				if existing, tracked := st.Confidences[slot]; !tracked || conf > existing {
					st.Confidences[slot] = conf
				}
			}
		}
	}

	missing := models.Missing(intent.RequiredSlots, st.Session.Filled)
	if len(missing) == 0 {
		if err := transition(st.Session, models.SlotFillReady); err != nil {
			return nil, err
		}
		return &Result{Session: st.Session, Ready: true}, nil
	}

	if err := transition(st.Session, models.SlotFillGathering); err != nil {
		return nil, err
	}

	next := missing[0]
	st.Session.Attempts[next]++
	if st.Session.Attempts[next] > e.cfg.MaxAttempts {
		st.Session.AbandonedSlot = next
		if err := transition(st.Session, models.SlotFillError); err != nil {
			return nil, err
		}
		return &Result{Session: st.Session, Abandoned: true, AbandonedSlot: next}, nil
	}

	question := e.question(ctx, intent, next)
	return &Result{Session: st.Session, Question: question}, nil
}

func transition(sess *models.SlotFillSession, to models.SlotFillState) error {
	if err := models.ValidateSlotFillTransition(sess.State, to); err != nil {
		return err
	}
	sess.State = to
	return nil
}

// highestConfidencePerType collapses a batch of extracted entities
// (which may contain more than one candidate for the same slot type) to
// the single highest-confidence value per type.
func highestConfidencePerType(extracted []models.ExtractedEntity) (map[string]string, map[string]float64) {
	values := make(map[string]string)
	confidences := make(map[string]float64)
	for _, e := range extracted {
		if existing, ok := confidences[e.Type]; ok && existing >= e.Confidence {
			continue
		}
		values[e.Type] = e.Value
		confidences[e.Type] = e.Confidence
	}
	return values, confidences
}

// question picks the first available tier: the intent's slot-specific
// template, a dynamic LLM-generated question, then a generic per-type
// default.
func (e *Engine) question(ctx context.Context, intent *models.IntentDefinition, slot string) string {
	if tmpl, ok := intent.SlotPromptTemplates[slot]; ok && strings.TrimSpace(tmpl) != "" {
		return tmpl
	}
	if e.llm != nil {
		if q, err := e.llmQuestion(ctx, intent, slot); err == nil && strings.TrimSpace(q) != "" {
			return q
		}
	}
	if q, ok := e.cfg.GenericQuestions[slot]; ok && q != "" {
		return q
	}
	return fmt.Sprintf("¿Cuál es el valor de %s?", slot)
}

func (e *Engine) llmQuestion(ctx context.Context, intent *models.IntentDefinition, slot string) (string, error) {
	prompt := fmt.Sprintf(
		"A voice assistant is gathering information to fulfill the intent %q (%s). "+
			"It still needs the value for the slot %q. Write one short, natural follow-up "+
			"question in Spanish asking the user for it. Respond with only the question.",
		intent.IntentID, intent.Description, slot,
	)
	raw, err := e.llm.Complete(ctx, prompt, ports.CompletionParams{Temperature: 0.4, MaxTokens: 60})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}
