package ports

import (
	"context"

	"github.com/atlasvoice/assistant/internal/domain/models"
)

// CatalogueSource is the declarative backing for the Intent Config
// Registry (C2). Both the YAML file adapter and the Postgres-table
// adapter implement this, so hot-reload checksumming works over either.
type CatalogueSource interface {
	// Checksum returns a content hash of the current source state, cheap
	// enough to poll periodically for change detection.
	Checksum(ctx context.Context) (string, error)
	// Load parses and returns the full set of intent definitions.
	Load(ctx context.Context) ([]*models.IntentDefinition, error)
}

// IntentRegistry is C2's read interface, backed by an atomically-swapped
// *models.Catalogue so concurrent readers never observe a partial merge.
type IntentRegistry interface {
	Current() *models.Catalogue
	Lookup(intentID string) *models.IntentDefinition
	// Reload re-reads the source, validates, and swaps the catalogue if
	// the checksum changed. Returns whether a swap occurred.
	Reload(ctx context.Context) (bool, error)
}

// ToolActionSource is the declarative/persisted backing for the Tool
// Action Registry (C3), mirroring CatalogueSource's shape.
type ToolActionSource interface {
	Load(ctx context.Context) ([]*models.ToolAction, error)
}

// ToolExecutor invokes a registered action's adapter. Implementations
// declare idempotency and rollback capability on the models.ToolAction
// itself; the orchestrator relies on those flags, not on ToolExecutor.
type ToolExecutor interface {
	Invoke(ctx context.Context, action *models.ToolAction, args map[string]string) (map[string]any, error)
	// Rollback invokes the compensating operation for a previously
	// completed invocation, when action.RollbackCapable is true.
	Rollback(ctx context.Context, action *models.ToolAction, args map[string]string, priorResult map[string]any) error
}

// ValidationResult is C3's typed Validate outcome.
type ValidationResult struct {
	Valid   bool
	Missing []string
	Extra   []string
	TypeErrors map[string]string
}

// ToolActionRegistry is C3's read + validate interface.
type ToolActionRegistry interface {
	Lookup(actionID string) *models.ToolAction
	Validate(actionID string, args map[string]string) ValidationResult
	Invoke(ctx context.Context, actionID string, args map[string]string) (map[string]any, error)
	Rollback(ctx context.Context, actionID string, args map[string]string, priorResult map[string]any) error
}
