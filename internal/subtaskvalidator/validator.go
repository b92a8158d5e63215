// Package subtaskvalidator implements the Subtask Validator (C13):
// checking each candidate subtask from C12 against the tool action
// registry and entity rules, dropping (not silently patching) any that
// fail, and uniquifying duplicate subtask ids.
package subtaskvalidator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/atlasvoice/assistant/internal/domain/models"
	"github.com/atlasvoice/assistant/internal/entity"
	"github.com/atlasvoice/assistant/internal/ports"
)

const maxDescriptionLength = 500

// DropReason records why a subtask was dropped from the batch.
type DropReason struct {
	SubtaskID string
	ActionID  string
	Reason    string
}

// Validator checks subtasks against the tool action registry's declared
// schemas and the entity package's per-type normalization rules.
type Validator struct {
	actions         ports.ToolActionRegistry
	entityValidator *entity.Validator
}

// New constructs a Validator.
func New(actions ports.ToolActionRegistry) *Validator {
	return &Validator{actions: actions, entityValidator: entity.NewValidator()}
}

// ValidateBatch checks every subtask against spec §4.12's rules: unknown
// action_id, missing/mistyped required entities, out-of-batch dependency
// references, and malformed descriptions all drop the subtask rather
// than patch it. Confidence is clamped to [0,1] and duplicate subtask_ids
// are uniquified by suffixing, the only corrections applied in place.
func (v *Validator) ValidateBatch(subtasks []*models.Subtask) ([]*models.Subtask, []DropReason) {
	batchIDs := make(map[string]bool, len(subtasks))
	for _, st := range subtasks {
		batchIDs[st.SubtaskID] = true
	}

	seenIDs := make(map[string]int, len(subtasks))
	kept := make([]*models.Subtask, 0, len(subtasks))
	var dropped []DropReason

	for _, st := range subtasks {
		if reason := v.validateOne(st, batchIDs); reason != "" {
			dropped = append(dropped, DropReason{SubtaskID: st.SubtaskID, ActionID: st.ActionID, Reason: reason})
			continue
		}
		st.SubtaskID = uniquify(st.SubtaskID, seenIDs)
		st.Confidence = clamp01(st.Confidence)
		kept = append(kept, st)
	}
	return kept, dropped
}

func uniquify(id string, seen map[string]int) string {
	n := seen[id]
	seen[id] = n + 1
	if n == 0 {
		return id
	}
	return fmt.Sprintf("%s-%d", id, n)
}

func (v *Validator) validateOne(st *models.Subtask, batchIDs map[string]bool) string {
	desc := strings.TrimSpace(st.Description)
	if desc == "" {
		return "empty description"
	}
	if len(desc) > maxDescriptionLength {
		return "description exceeds 500 characters"
	}
	st.Description = desc

	action := v.actions.Lookup(st.ActionID)
	if action == nil {
		return fmt.Sprintf("unknown action_id %q", st.ActionID)
	}

	for _, dep := range st.Dependencies {
		if dep == st.SubtaskID {
			return "self-referential dependency"
		}
		if !batchIDs[dep] {
			return fmt.Sprintf("dependency %q not present in batch", dep)
		}
	}

	if st.Entities == nil {
		st.Entities = make(map[string]string)
	}
	for _, param := range action.RequiredParams() {
		value, ok := st.Entities[param.Name]
		if !ok || strings.TrimSpace(value) == "" {
			return fmt.Sprintf("missing required entity %q", param.Name)
		}
		if reason := v.validateParam(param, value, st); reason != "" {
			return reason
		}
	}
	return ""
}

func (v *Validator) validateParam(param models.ParamSchema, value string, st *models.Subtask) string {
	switch param.Type {
	case "number":
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Sprintf("entity %q is not numeric", param.Name)
		}
	case "bool":
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Sprintf("entity %q is not boolean", param.Name)
		}
	case "enum":
		if !contains(param.Enum, value) {
			return fmt.Sprintf("entity %q value %q is not one of %v", param.Name, value, param.Enum)
		}
	}

	if !isKnownEntityType(param.Name) {
		return ""
	}
	normalized, verr := v.entityValidator.Validate(models.ExtractedEntity{Type: param.Name, Value: value, Confidence: 1})
	if verr != nil {
		return fmt.Sprintf("entity %q: %s", param.Name, verr.Reason)
	}
	st.Entities[param.Name] = normalized.Value
	return ""
}

func isKnownEntityType(t string) bool {
	switch t {
	case "location", "time", "date", "temperature", "genre", "room":
		return true
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
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
