package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/swapfolio/ledger-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[string]*model.AnalysisRun
	ledgers map[string][]model.LedgerEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[string]*model.AnalysisRun),
		ledgers: make(map[string][]model.LedgerEntry),
	}
}

func (s *MemoryStore) CreateRun(_ context.Context, run *model.AnalysisRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}

	// Store a copy to avoid external mutation.
	copy := *run
	s.runs[run.ID] = &copy
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (*model.AnalysisRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	copy := *run
	return &copy, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.AnalysisRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.AnalysisRun, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, *run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

func (s *MemoryStore) InsertLedgerEntries(_ context.Context, runID string, entries []model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledgers[runID] = append(s.ledgers[runID], entries...)
	return nil
}

func (s *MemoryStore) GetLedgerEntries(_ context.Context, runID string) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.ledgers[runID]
	result := make([]model.LedgerEntry, len(entries))
	copy(result, entries)
	return result, nil
}

func (s *MemoryStore) GetLedgerEntryByDay(_ context.Context, runID string, day int64) (*model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.ledgers[runID] {
		if e.Date.Unix() == day {
			copy := e
			return &copy, nil
		}
	}
	return nil, fmt.Errorf("run %s day %d: %w", runID, day, ErrNotFound)
}
