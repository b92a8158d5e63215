// Package toolregistry implements the Tool Action Registry (C3): a
// catalogue of callable external actions and their schemas, with typed
// dispatch validation in place of reflective argument parsing (per
// spec §9's redesign guidance).
package toolregistry

import (
	"context"
	"fmt"
	"strconv"

	"github.com/atlasvoice/assistant/internal/domain/models"
	"github.com/atlasvoice/assistant/internal/ports"
)

// Registry implements ports.ToolActionRegistry over an in-memory map of
// actions plus a pluggable ports.ToolExecutor that performs the actual
// invocation/rollback.
type Registry struct {
	actions  map[string]*models.ToolAction
	executor ports.ToolExecutor
}

// New creates a Registry from a fixed set of actions and an executor.
func New(actions []*models.ToolAction, executor ports.ToolExecutor) *Registry {
	idx := make(map[string]*models.ToolAction, len(actions))
	for _, a := range actions {
		idx[a.ActionID] = a
	}
	return &Registry{actions: idx, executor: executor}
}

// Lookup implements ports.ToolActionRegistry.
func (r *Registry) Lookup(actionID string) *models.ToolAction {
	return r.actions[actionID]
}

// Validate implements ports.ToolActionRegistry: a typed dispatch table
// walk over the declared InputSchema, reporting missing required
// parameters, undeclared extras, and type errors, rather than reflecting
// over a Go struct.
func (r *Registry) Validate(actionID string, args map[string]string) ports.ValidationResult {
	action := r.actions[actionID]
	if action == nil {
		return ports.ValidationResult{Valid: false, Missing: []string{"action_id"}}
	}

	result := ports.ValidationResult{Valid: true, TypeErrors: map[string]string{}}
	declared := action.ParamNames()

	for _, p := range action.RequiredParams() {
		if _, ok := args[p.Name]; !ok {
			result.Missing = append(result.Missing, p.Name)
			result.Valid = false
		}
	}
	for name, value := range args {
		p, ok := declared[name]
		if !ok {
			result.Extra = append(result.Extra, name)
			result.Valid = false
			continue
		}
		if err := checkType(p, value); err != "" {
			result.TypeErrors[name] = err
			result.Valid = false
		}
	}
	return result
}

// checkType returns a non-empty message when value does not conform to
// p's declared type.
func checkType(p models.ParamSchema, value string) string {
	switch p.Type {
	case "number":
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Sprintf("%q is not a valid number", value)
		}
	case "bool":
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Sprintf("%q is not a valid bool", value)
		}
	case "enum":
		for _, e := range p.Enum {
			if e == value {
				return ""
			}
		}
		return fmt.Sprintf("%q is not one of %v", value, p.Enum)
	}
	return ""
}

// Invoke implements ports.ToolActionRegistry: validates then delegates to
// the registered executor. Validation failures are returned as an error
// whose message lists the missing, extra and ill-typed arguments; the
// executor is not called and arguments are never silently corrected.
func (r *Registry) Invoke(ctx context.Context, actionID string, args map[string]string) (map[string]any, error) {
	action := r.actions[actionID]
	if action == nil {
		return nil, fmt.Errorf("tool action %q not found", actionID)
	}
	if v := r.Validate(actionID, args); !v.Valid {
		return nil, fmt.Errorf("invalid arguments for action %q: missing=%v extra=%v type_errors=%v",
			actionID, v.Missing, v.Extra, v.TypeErrors)
	}
	return r.executor.Invoke(ctx, action, args)
}

// Rollback implements ports.ToolActionRegistry.
func (r *Registry) Rollback(ctx context.Context, actionID string, args map[string]string, priorResult map[string]any) error {
	action := r.actions[actionID]
	if action == nil {
		return fmt.Errorf("tool action %q not found", actionID)
	}
	if !action.RollbackCapable {
		return fmt.Errorf("action %q does not declare rollback capability", actionID)
	}
	return r.executor.Rollback(ctx, action, args, priorResult)
}
