package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/swapfolio/ledger-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision;
// the swap list and volume map ride along as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.AnalysisRun) error {
	volume, err := json.Marshal(run.TotalVolume)
	if err != nil {
		return fmt.Errorf("marshal total volume: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO analysis_runs (id, address, asset, start_date, end_date, swap_count,
		                            final_balance, realized_profit, fee_cost, total_volume, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::JSONB, $11)`,
		run.ID, run.Address, run.Asset, run.StartDate, run.EndDate, run.SwapCount,
		run.FinalBalance.String(), run.RealizedProfit.String(), run.FeeCost.String(),
		volume, run.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.AnalysisRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, address, asset, start_date, end_date, swap_count,
		        final_balance::TEXT, realized_profit::TEXT, fee_cost::TEXT,
		        total_volume, created_at
		 FROM analysis_runs WHERE id = $1`, id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context) ([]model.AnalysisRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, address, asset, start_date, end_date, swap_count,
		        final_balance::TEXT, realized_profit::TEXT, fee_cost::TEXT,
		        total_volume, created_at
		 FROM analysis_runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.AnalysisRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) InsertLedgerEntries(ctx context.Context, runID string, entries []model.LedgerEntry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		swaps, err := json.Marshal(e.Swaps)
		if err != nil {
			return fmt.Errorf("marshal swaps for %s: %w", e.Date.Format("2006-01-02"), err)
		}
		batch.Queue(
			`INSERT INTO ledger_entries (run_id, day, date, asset_price, native_price, swaps,
			                             balance, avg_cost_price, realized_profit, fee_cost, negative_balance)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::JSONB,
			         $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11)`,
			runID, e.Date.Unix(), e.Date,
			e.AssetPrice.String(), e.NativePrice.String(), swaps,
			e.Balance.String(), e.AvgCostPrice.String(),
			e.RealizedProfit.String(), e.FeeCost.String(), e.NegativeBalance,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert ledger entries for run %s: %w", runID, err)
		}
	}
	return nil
}

func (s *PostgresStore) GetLedgerEntries(ctx context.Context, runID string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT date, asset_price::TEXT, native_price::TEXT, swaps,
		        balance::TEXT, avg_cost_price::TEXT, realized_profit::TEXT, fee_cost::TEXT,
		        negative_balance
		 FROM ledger_entries WHERE run_id = $1 ORDER BY day`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) GetLedgerEntryByDay(ctx context.Context, runID string, day int64) (*model.LedgerEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT date, asset_price::TEXT, native_price::TEXT, swaps,
		        balance::TEXT, avg_cost_price::TEXT, realized_profit::TEXT, fee_cost::TEXT,
		        negative_balance
		 FROM ledger_entries WHERE run_id = $1 AND day = $2`, runID, day)

	entry, err := scanLedgerEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("run %s day %d: %w", runID, day, ErrNotFound)
		}
		return nil, fmt.Errorf("get ledger entry %s/%d: %w", runID, day, err)
	}
	return entry, nil
}

// --- Row scanning helpers ---

type pgxRow interface {
	Scan(dest ...any) error
}

func scanRun(row pgxRow) (*model.AnalysisRun, error) {
	var run model.AnalysisRun
	var balanceS, profitS, feeS string
	var volume []byte

	if err := row.Scan(&run.ID, &run.Address, &run.Asset, &run.StartDate, &run.EndDate,
		&run.SwapCount, &balanceS, &profitS, &feeS, &volume, &run.CreatedAt); err != nil {
		return nil, err
	}

	run.FinalBalance, _ = decimal.NewFromString(balanceS)
	run.RealizedProfit, _ = decimal.NewFromString(profitS)
	run.FeeCost, _ = decimal.NewFromString(feeS)
	if len(volume) > 0 {
		if err := json.Unmarshal(volume, &run.TotalVolume); err != nil {
			return nil, fmt.Errorf("unmarshal total volume: %w", err)
		}
	}
	return &run, nil
}

func scanLedgerEntry(row pgxRow) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	var assetS, nativeS, balanceS, avgS, profitS, feeS string
	var swaps []byte

	if err := row.Scan(&e.Date, &assetS, &nativeS, &swaps,
		&balanceS, &avgS, &profitS, &feeS, &e.NegativeBalance); err != nil {
		return nil, err
	}

	e.AssetPrice, _ = decimal.NewFromString(assetS)
	e.NativePrice, _ = decimal.NewFromString(nativeS)
	e.Balance, _ = decimal.NewFromString(balanceS)
	e.AvgCostPrice, _ = decimal.NewFromString(avgS)
	e.RealizedProfit, _ = decimal.NewFromString(profitS)
	e.FeeCost, _ = decimal.NewFromString(feeS)
	if len(swaps) > 0 {
		if err := json.Unmarshal(swaps, &e.Swaps); err != nil {
			return nil, fmt.Errorf("unmarshal swaps: %w", err)
		}
	}
	return &e, nil
}
