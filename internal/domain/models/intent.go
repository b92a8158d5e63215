package models

import "errors"

var (
	errIntentMissingID          = errors.New("intent_id is required")
	errIntentMissingDescription = errors.New("description is required")
	errIntentMissingExamples    = errors.New("at least one example utterance is required")
	errIntentMissingToolAction  = errors.New("tool_action_id is required")
)

// IntentDefinition is one entry in the declarative intent catalogue (C2).
// Loaded from a CatalogueSource and hot-reloaded on checksum change.
type IntentDefinition struct {
	IntentID            string            `json:"intent_id" yaml:"intent_id"`
	Description         string            `json:"description" yaml:"description"`
	ExpertDomain        string            `json:"expert_domain" yaml:"expert_domain"`
	ExampleUtterances   []string          `json:"example_utterances" yaml:"example_utterances"`
	RequiredSlots       []string          `json:"required_slots" yaml:"required_slots"`
	OptionalSlots       []string          `json:"optional_slots" yaml:"optional_slots"`
	SlotPromptTemplates map[string]string `json:"slot_prompt_templates" yaml:"slot_prompt_templates"`
	ToolActionID        string            `json:"tool_action_id" yaml:"tool_action_id"`
	ConfidenceThreshold float64           `json:"confidence_threshold" yaml:"confidence_threshold"`
	MaxRAGExamples      int               `json:"max_rag_examples" yaml:"max_rag_examples"`
}

// DefaultConfidenceThreshold and DefaultMaxRAGExamples are applied when a
// catalogue entry omits them, per C2's validation rule.
const (
	DefaultConfidenceThreshold = 0.7
	DefaultMaxRAGExamples      = 5
)

// ApplyDefaults fills in threshold/max_examples when unset, matching C2's
// "defaults applied for threshold and max_examples" validation rule.
func (d *IntentDefinition) ApplyDefaults() {
	if d.ConfidenceThreshold == 0 {
		d.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if d.MaxRAGExamples == 0 {
		d.MaxRAGExamples = DefaultMaxRAGExamples
	}
}

// Validate checks the per-intent invariants from C2: at least one example,
// a non-empty description, and a tool_action_id. Whether the tool_action_id
// resolves against the tool action registry is checked by the caller
// (a missing reference is a warning, not a hard validation failure).
func (d *IntentDefinition) Validate() error {
	if d.IntentID == "" {
		return errIntentMissingID
	}
	if d.Description == "" {
		return errIntentMissingDescription
	}
	if len(d.ExampleUtterances) == 0 {
		return errIntentMissingExamples
	}
	if d.ToolActionID == "" {
		return errIntentMissingToolAction
	}
	return nil
}

// RequiresSlot reports whether slotName is in this intent's required slots.
func (d *IntentDefinition) RequiresSlot(slotName string) bool {
	for _, s := range d.RequiredSlots {
		if s == slotName {
			return true
		}
	}
	return false
}

// Catalogue is an immutable snapshot of the intent catalogue, safe to share
// across goroutines. Readers always observe a whole snapshot, never a
// partial merge, because the holder swaps *Catalogue atomically.
type Catalogue struct {
	Intents  map[string]*IntentDefinition
	Checksum string
}

// NewCatalogue builds a Catalogue from a slice of definitions, applying
// defaults and indexing by intent_id.
func NewCatalogue(defs []*IntentDefinition, checksum string) *Catalogue {
	idx := make(map[string]*IntentDefinition, len(defs))
	for _, d := range defs {
		d.ApplyDefaults()
		idx[d.IntentID] = d
	}
	return &Catalogue{Intents: idx, Checksum: checksum}
}

// Lookup returns the intent definition by id, or nil if not present.
func (c *Catalogue) Lookup(intentID string) *IntentDefinition {
	if c == nil {
		return nil
	}
	return c.Intents[intentID]
}

// IDs returns every intent_id in the catalogue, used to build the
// classifier's "set of known intents" prompt fragment.
func (c *Catalogue) IDs() []string {
	ids := make([]string, 0, len(c.Intents))
	for id := range c.Intents {
		ids = append(ids, id)
	}
	return ids
}
