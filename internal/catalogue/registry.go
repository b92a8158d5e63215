// Package catalogue implements the Intent Config Registry (C2): a
// declarative, hot-reloadable catalogue of IntentDefinitions, atomically
// swapped so concurrent readers always observe a whole snapshot.
package catalogue

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/atlasvoice/assistant/internal/domain/models"
	"github.com/atlasvoice/assistant/internal/ports"
)

// Registry implements ports.IntentRegistry over a CatalogueSource,
// checksumming the source on Reload and swapping the live catalogue only
// when the checksum changed.
type Registry struct {
	source    ports.CatalogueSource
	actions   ports.ToolActionRegistry // optional, used only to warn on dangling tool_action_id refs
	current   atomic.Pointer[models.Catalogue]
	checksum  atomic.Pointer[string]
	onWarning func(format string, args ...any)
}

// New creates a Registry backed by source. actions may be nil; when set,
// Reload logs (via onWarning) intents whose tool_action_id does not
// resolve, per C2's "warn if missing" validation rule. onWarning may be
// nil to discard warnings.
func New(source ports.CatalogueSource, actions ports.ToolActionRegistry, onWarning func(string, ...any)) *Registry {
	if onWarning == nil {
		onWarning = func(string, ...any) {}
	}
	return &Registry{source: source, actions: actions, onWarning: onWarning}
}

// Current implements ports.IntentRegistry.
func (r *Registry) Current() *models.Catalogue {
	return r.current.Load()
}

// Lookup implements ports.IntentRegistry.
func (r *Registry) Lookup(intentID string) *models.IntentDefinition {
	return r.Current().Lookup(intentID)
}

// Reload implements ports.IntentRegistry: checksum the source, and only
// parse/validate/swap when the checksum differs from what is currently
// loaded. Returns whether a swap occurred.
func (r *Registry) Reload(ctx context.Context) (bool, error) {
	sum, err := r.source.Checksum(ctx)
	if err != nil {
		return false, fmt.Errorf("checksum catalogue source: %w", err)
	}

	if prev := r.checksum.Load(); prev != nil && *prev == sum {
		return false, nil
	}

	defs, err := r.source.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load catalogue source: %w", err)
	}
	if err := r.validate(defs); err != nil {
		return false, err
	}

	next := models.NewCatalogue(defs, sum)
	r.current.Store(next)
	r.checksum.Store(&sum)
	return true, nil
}

// validate enforces C2's per-intent checks (delegated to
// IntentDefinition.Validate) plus the registry-level tool_action_id
// cross-reference warning.
func (r *Registry) validate(defs []*models.IntentDefinition) error {
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("intent %q: %w", d.IntentID, err)
		}
		if seen[d.IntentID] {
			return fmt.Errorf("duplicate intent_id %q in catalogue", d.IntentID)
		}
		seen[d.IntentID] = true

		if r.actions != nil && r.actions.Lookup(d.ToolActionID) == nil {
			r.onWarning("intent %q references unknown tool_action_id %q", d.IntentID, d.ToolActionID)
		}
	}
	return nil
}
