package ports

import (
	"context"
	"time"

	"github.com/atlasvoice/assistant/internal/domain/models"
)

// SessionStore is C1's contract: sessions, turns, and context with TTL,
// compression, and versioning, backed by a write-through KV store.
type SessionStore interface {
	// CreateOrLoad returns the session for sessionID, creating one in the
	// Active state if sessionID is empty or not found.
	CreateOrLoad(ctx context.Context, sessionID, userID string) (*models.Session, error)
	// AppendTurn records turn on the session and persists write-through.
	AppendTurn(ctx context.Context, sessionID string, turn *models.Turn) error
	// UpdateContext applies mutator to the session's current context and
	// persists the result; mutator must not retain the pointer it receives.
	UpdateContext(ctx context.Context, sessionID string, mutator func(*models.Context) error) error
	// Delete removes the session from cache and the backing store.
	Delete(ctx context.Context, sessionID string) error
	// ListExpired returns session ids whose idle TTL has elapsed as of now.
	ListExpired(ctx context.Context, now time.Time) ([]string, error)
	// Compact writes a summary of the session's turns into the context's
	// conversation summary, keeps the prior context as a version, and
	// increments compression_level; the turns themselves are kept.
	Compact(ctx context.Context, sessionID string) error
	// RestoreVersion replaces current context with version index's
	// snapshot and appends a new version recording the restore.
	RestoreVersion(ctx context.Context, sessionID string, index int) error
	// Stats exposes cache hit/miss counters for observability.
	Stats() SessionStoreStats
}

// SessionStoreStats is a point-in-time snapshot of session-store cache
// performance counters.
type SessionStoreStats struct {
	CacheHits   int64
	CacheMisses int64
	Evictions   int64
}

// KVStore is the underlying key-value store consumed by SessionStore: an
// external collaborator, accessed only through get/set/delete with
// per-key TTL and expiry scans.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// ScanKeys returns every key matching pattern, whatever its TTL;
	// SessionStore.ListExpired loads each one and checks expiry itself.
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}
