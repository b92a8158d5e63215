// Package session implements the Session Store (C1): write-through
// persistence of sessions, turns, and context over a KV backend, with an
// in-process LRU read cache, deflate compression above a size threshold,
// and bounded context-version history.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/flate"

	"github.com/atlasvoice/assistant/internal/domain"
	"github.com/atlasvoice/assistant/internal/domain/models"
	id "github.com/atlasvoice/assistant/internal/idgen"
	"github.com/atlasvoice/assistant/internal/ports"
)

const schemaVersion = 1

const keyPrefix = "session:"

// record is the unit of persistence: the session aggregate plus its
// retained context-version history, which lives outside models.Session
// because it is a storage concern, not a domain invariant.
type record struct {
	Session  *models.Session         `json:"session"`
	Versions []models.ContextVersion `json:"versions"`
}

// envelope is the wire format written to the KV store.
type envelope struct {
	Compressed    bool   `json:"compressed"`
	SchemaVersion int    `json:"schema_version"`
	Payload       []byte `json:"payload"`
}

// Store implements ports.SessionStore.
type Store struct {
	kv    ports.KVStore
	cache *lru.Cache[string, *cacheEntry]

	ttl               time.Duration
	cacheStaleness    time.Duration
	compressThreshold int
	maxVersions       int

	hits      int64
	misses    int64
	evictions int64
}

type cacheEntry struct {
	rec      *record
	cachedAt time.Time
}

// Config bundles the tunables sourced from config.SessionConfig.
type Config struct {
	TTL               time.Duration
	CacheSize         int
	CacheStaleness    time.Duration
	CompressThreshold int
	MaxVersions       int
}

// New creates a Store backed by kv.
func New(kv ports.KVStore, cfg Config) (*Store, error) {
	s := &Store{
		kv:                kv,
		ttl:               cfg.TTL,
		cacheStaleness:    cfg.CacheStaleness,
		compressThreshold: cfg.CompressThreshold,
		maxVersions:       cfg.MaxVersions,
	}
	cache, err := lru.NewWithEvict[string, *cacheEntry](cfg.CacheSize, func(string, *cacheEntry) {
		atomic.AddInt64(&s.evictions, 1)
	})
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

func (s *Store) key(sessionID string) string {
	return keyPrefix + sessionID
}

// CreateOrLoad implements ports.SessionStore.
func (s *Store) CreateOrLoad(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	if sessionID == "" {
		sessionID = id.New(id.PrefixSession)
	}

	rec, ok := s.fromCache(sessionID)
	if ok {
		return rec.Session, nil
	}

	rec, err := s.load(ctx, sessionID)
	if err != nil {
		if err == domain.ErrSessionNotFound {
			rec = &record{Session: models.NewSession(sessionID, userID, s.ttl, time.Now())}
			if saveErr := s.save(ctx, sessionID, rec); saveErr != nil {
				return nil, saveErr
			}
			return rec.Session, nil
		}
		return nil, err
	}
	s.cache.Add(sessionID, &cacheEntry{rec: rec, cachedAt: time.Now()})
	return rec.Session, nil
}

// AppendTurn implements ports.SessionStore.
func (s *Store) AppendTurn(ctx context.Context, sessionID string, turn *models.Turn) error {
	rec, err := s.loadForMutation(ctx, sessionID)
	if err != nil {
		return err
	}
	rec.Session.AppendTurn(turn, time.Now())
	return s.save(ctx, sessionID, rec)
}

// UpdateContext implements ports.SessionStore.
func (s *Store) UpdateContext(ctx context.Context, sessionID string, mutator func(*models.Context) error) error {
	rec, err := s.loadForMutation(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := mutator(rec.Session.Context); err != nil {
		return err
	}
	return s.save(ctx, sessionID, rec)
}

// Delete implements ports.SessionStore.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.cache.Remove(sessionID)
	if err := s.kv.Delete(ctx, s.key(sessionID)); err != nil {
		return fmt.Errorf("delete session %q: %w", sessionID, err)
	}
	return nil
}

// ListExpired implements ports.SessionStore.
func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]string, error) {
	keys, err := s.kv.ScanKeys(ctx, keyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}

	var expired []string
	for _, key := range keys {
		sessionID := strings.TrimPrefix(key, keyPrefix)
		rec, err := s.load(ctx, sessionID)
		if err != nil {
			continue
		}
		if rec.Session.IsExpired(now) {
			expired = append(expired, sessionID)
		}
	}
	return expired, nil
}

// Compact implements ports.SessionStore: it folds the retained turns'
// user text into the context's ConversationSummary, retires the prior
// context into version history, and bumps CompressionLevel. The turns
// themselves stay on the session.
func (s *Store) Compact(ctx context.Context, sessionID string) error {
	rec, err := s.loadForMutation(ctx, sessionID)
	if err != nil {
		return err
	}

	snapshot := rec.Session.Context.Clone()
	rec.Versions = append(rec.Versions, models.ContextVersion{
		Index:     len(rec.Versions),
		Snapshot:  snapshot,
		CreatedAt: time.Now(),
	})
	if len(rec.Versions) > s.maxVersions {
		rec.Versions = rec.Versions[len(rec.Versions)-s.maxVersions:]
	}

	rec.Session.Context.ConversationSummary = summarize(rec.Session.Turns, rec.Session.Context.ConversationSummary)
	rec.Session.Context.CompressionLevel++

	return s.save(ctx, sessionID, rec)
}

// RestoreVersion implements ports.SessionStore.
func (s *Store) RestoreVersion(ctx context.Context, sessionID string, index int) error {
	rec, err := s.loadForMutation(ctx, sessionID)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(rec.Versions) {
		return domain.NewDomainError(domain.ErrContextVersionGap, fmt.Sprintf("version %d not found", index))
	}

	restored := rec.Versions[index].Snapshot.Clone()
	rec.Versions = append(rec.Versions, models.ContextVersion{
		Index:     len(rec.Versions),
		Snapshot:  rec.Session.Context.Clone(),
		CreatedAt: time.Now(),
	})
	if len(rec.Versions) > s.maxVersions {
		rec.Versions = rec.Versions[len(rec.Versions)-s.maxVersions:]
	}
	rec.Session.Context = restored

	return s.save(ctx, sessionID, rec)
}

// Stats implements ports.SessionStore.
func (s *Store) Stats() ports.SessionStoreStats {
	return ports.SessionStoreStats{
		CacheHits:   atomic.LoadInt64(&s.hits),
		CacheMisses: atomic.LoadInt64(&s.misses),
		Evictions:   atomic.LoadInt64(&s.evictions),
	}
}

func (s *Store) fromCache(sessionID string) (*record, bool) {
	entry, ok := s.cache.Get(sessionID)
	if !ok {
		atomic.AddInt64(&s.misses, 1)
		return nil, false
	}
	if time.Since(entry.cachedAt) > s.cacheStaleness {
		s.cache.Remove(sessionID)
		atomic.AddInt64(&s.misses, 1)
		return nil, false
	}
	atomic.AddInt64(&s.hits, 1)
	return entry.rec, true
}

// loadForMutation loads a session for a caller about to mutate it, failing
// with ErrSessionNotFound rather than creating one, since mutation
// operations assume the session already exists.
func (s *Store) loadForMutation(ctx context.Context, sessionID string) (*record, error) {
	if rec, ok := s.fromCache(sessionID); ok {
		return rec, nil
	}
	return s.load(ctx, sessionID)
}

func (s *Store) load(ctx context.Context, sessionID string) (*record, error) {
	raw, err := s.kv.Get(ctx, s.key(sessionID))
	if err != nil {
		return nil, domain.ErrSessionNotFound
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode session envelope %q: %w", sessionID, err)
	}

	payload := env.Payload
	if env.Compressed {
		decompressed, err := inflate(env.Payload)
		if err != nil {
			// Decompression failures fall back to treating the payload as
			// uncompressed, per the store's documented failure semantics.
			payload = env.Payload
		} else {
			payload = decompressed
		}
	}

	var rec record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decode session payload %q: %w", sessionID, err)
	}

	s.cache.Add(sessionID, &cacheEntry{rec: &rec, cachedAt: time.Now()})
	return &rec, nil
}

func (s *Store) save(ctx context.Context, sessionID string, rec *record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session payload %q: %w", sessionID, err)
	}

	env := envelope{SchemaVersion: schemaVersion, Payload: payload}
	if len(payload) > s.compressThreshold {
		compressed, err := deflate(payload)
		if err == nil {
			env.Compressed = true
			env.Payload = compressed
		}
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode session envelope %q: %w", sessionID, err)
	}

	if err := s.kv.Set(ctx, s.key(sessionID), raw, s.ttl); err != nil {
		return fmt.Errorf("persist session %q: %w", sessionID, err)
	}

	s.cache.Add(sessionID, &cacheEntry{rec: rec, cachedAt: time.Now()})
	return nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	return io.ReadAll(r)
}

// summarize appends the user text of every turn to the prior summary;
// Compact is its only caller, so it stays simple and deterministic.
func summarize(turns []*models.Turn, priorSummary string) string {
	if len(turns) == 0 {
		return priorSummary
	}
	var b strings.Builder
	if priorSummary != "" {
		b.WriteString(priorSummary)
		b.WriteString(" ")
	}
	for _, t := range turns {
		if t.UserText == "" {
			continue
		}
		b.WriteString(t.UserText)
		b.WriteString(" ")
	}
	return strings.TrimSpace(b.String())
}
