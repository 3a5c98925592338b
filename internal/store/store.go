// Package store defines the persistence interface for analysis runs and
// their computed ledgers. Implementations include PostgreSQL (source of
// truth), Redis (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/swapfolio/ledger-engine/internal/model"
)

// ErrNotFound is returned when a run or ledger entry does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Analysis runs ---

	// CreateRun persists a new analysis run.
	CreateRun(ctx context.Context, run *model.AnalysisRun) error

	// GetRun retrieves a run by its ID.
	GetRun(ctx context.Context, id string) (*model.AnalysisRun, error)

	// ListRuns returns all runs, newest first.
	ListRuns(ctx context.Context) ([]model.AnalysisRun, error)

	// --- Day-indexed ledger ---

	// InsertLedgerEntries appends a run's computed ledger. Entries are
	// immutable once written.
	InsertLedgerEntries(ctx context.Context, runID string, entries []model.LedgerEntry) error

	// GetLedgerEntries returns a run's full ledger in date order.
	GetLedgerEntries(ctx context.Context, runID string) ([]model.LedgerEntry, error)

	// GetLedgerEntryByDay returns the entry for one day-start unix key.
	GetLedgerEntryByDay(ctx context.Context, runID string, day int64) (*model.LedgerEntry, error)
}
