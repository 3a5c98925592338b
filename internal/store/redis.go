package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swapfolio/ledger-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateRun(ctx context.Context, run *model.AnalysisRun) error {
	if err := s.primary.CreateRun(ctx, run); err != nil {
		return err
	}
	s.cacheRun(ctx, run)
	return nil
}

func (s *CachedStore) InsertLedgerEntries(ctx context.Context, runID string, entries []model.LedgerEntry) error {
	if err := s.primary.InsertLedgerEntries(ctx, runID, entries); err != nil {
		return err
	}
	// Invalidate ledger cache; next read will re-populate.
	s.rdb.Del(ctx, ledgerKey(runID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetRun(ctx context.Context, id string) (*model.AnalysisRun, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, runKey(id)).Bytes()
	if err == nil {
		var run model.AnalysisRun
		if json.Unmarshal(data, &run) == nil {
			return &run, nil
		}
	}

	// Cache miss: read from primary.
	run, err := s.primary.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheRun(ctx, run)
	return run, nil
}

func (s *CachedStore) GetLedgerEntries(ctx context.Context, runID string) ([]model.LedgerEntry, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, ledgerKey(runID)).Bytes()
	if err == nil {
		var entries []model.LedgerEntry
		if json.Unmarshal(data, &entries) == nil {
			return entries, nil
		}
	}

	// Cache miss.
	entries, err := s.primary.GetLedgerEntries(ctx, runID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(entries); err == nil {
		s.rdb.Set(ctx, ledgerKey(runID), data, s.ttl)
	}
	return entries, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListRuns(ctx context.Context) ([]model.AnalysisRun, error) {
	return s.primary.ListRuns(ctx)
}

func (s *CachedStore) GetLedgerEntryByDay(ctx context.Context, runID string, day int64) (*model.LedgerEntry, error) {
	return s.primary.GetLedgerEntryByDay(ctx, runID, day)
}

// --- Cache helpers ---

func (s *CachedStore) cacheRun(ctx context.Context, run *model.AnalysisRun) {
	if data, err := json.Marshal(run); err == nil {
		s.rdb.Set(ctx, runKey(run.ID), data, s.ttl)
	}
}

func runKey(id string) string     { return fmt.Sprintf("run:%s", id) }
func ledgerKey(id string) string  { return fmt.Sprintf("ledger:%s", id) }
