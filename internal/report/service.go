// Package report provides the HTTP handlers and orchestration for running
// cost-basis analyses: fetching transfer and price data, reconciling swaps,
// folding the ledger, and serving the persisted results.
//
// All monetary values use shopspring/decimal — never float64 for money.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/swapfolio/ledger-engine/internal/ledger"
	"github.com/swapfolio/ledger-engine/internal/metrics"
	"github.com/swapfolio/ledger-engine/internal/model"
	"github.com/swapfolio/ledger-engine/internal/pricing"
	"github.com/swapfolio/ledger-engine/internal/reconcile"
	"github.com/swapfolio/ledger-engine/internal/store"
)

const dateLayout = "2006-01-02"

// TransferSource fetches an account's transfer history from a block
// explorer. Implemented by etherscan.Client.
type TransferSource interface {
	TokenTransfers(ctx context.Context, address string) ([]model.TransferRecord, error)
	NativeTransactions(ctx context.Context, address string) ([]model.TransferRecord, error)
}

// PriceSource fetches a coin's historical daily price series. Implemented
// by coingecko.Client.
type PriceSource interface {
	MarketChart(ctx context.Context, coinID string) (pricing.Series, error)
}

// Defaults fills in analysis parameters a request omits.
type Defaults struct {
	Address      string
	Asset        string
	AssetCoinID  string
	NativeCoinID string
	NativeSymbol string
	Start        time.Time
	End          time.Time
	Precision    int32
}

// Service handles analysis operations. Uses a mutex to serialize analysis
// runs (single-instance); fetches for one run already happen back-to-back,
// and concurrent runs would just contend on the upstream rate limits.
type Service struct {
	store     store.Store
	transfers TransferSource
	prices    PriceSource
	defaults  Defaults
	mu        sync.Mutex
	wsHub     *WSHub // optional WebSocket hub for completion broadcasts
}

// NewService creates a new report service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, transfers TransferSource, prices PriceSource, defaults Defaults, hub *WSHub) *Service {
	return &Service{
		store:     st,
		transfers: transfers,
		prices:    prices,
		defaults:  defaults,
		wsHub:     hub,
	}
}

// --- Request/Response types ---

// CreateAnalysisRequest is the JSON body for POST /api/v1/analyses.
// Every field is optional; omitted fields fall back to the configured
// defaults.
type CreateAnalysisRequest struct {
	Address      string `json:"address"`
	Asset        string `json:"asset"`
	AssetCoinID  string `json:"asset_coin_id"`
	NativeCoinID string `json:"native_coin_id"`
	StartDate    string `json:"start_date"` // YYYY-MM-DD
	EndDate      string `json:"end_date"`   // YYYY-MM-DD
}

// --- HTTP Handlers ---

// CreateAnalysis handles POST /api/v1/analyses.
// Runs the full pipeline synchronously and returns the persisted run.
func (s *Service) CreateAnalysis(w http.ResponseWriter, r *http.Request) {
	var req CreateAnalysisRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	params, err := s.resolve(req)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Serialize analysis runs.
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	run, err := s.runAnalysis(r.Context(), params)
	metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("error").Inc()
		slog.Error("analysis failed",
			"address", params.Address,
			"asset", params.Asset,
			"err", err,
		)
		writeError(w, err.Error(), http.StatusBadGateway)
		return
	}
	metrics.AnalysesTotal.WithLabelValues("success").Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(run)
}

// ListAnalyses handles GET /api/v1/analyses.
func (s *Service) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context())
	if err != nil {
		writeError(w, "failed to list analyses", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []model.AnalysisRun{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}

// GetAnalysis handles GET /api/v1/analyses/{runID}.
func (s *Service) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, "analysis not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

// GetLedger handles GET /api/v1/analyses/{runID}/ledger.
// Returns the run's full day-by-day ledger in date order.
func (s *Service) GetLedger(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	if _, err := s.store.GetRun(r.Context(), runID); err != nil {
		writeError(w, "analysis not found", http.StatusNotFound)
		return
	}

	entries, err := s.store.GetLedgerEntries(r.Context(), runID)
	if err != nil {
		writeError(w, "failed to load ledger", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// GetLedgerDay handles GET /api/v1/analyses/{runID}/ledger/{day}.
// Day is either a day-start unix timestamp or a YYYY-MM-DD date.
func (s *Service) GetLedgerDay(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	day, err := parseDay(chi.URLParam(r, "day"))
	if err != nil {
		writeError(w, "day must be a unix timestamp or YYYY-MM-DD date", http.StatusBadRequest)
		return
	}

	entry, err := s.store.GetLedgerEntryByDay(r.Context(), runID, day)
	if err != nil {
		writeError(w, "ledger entry not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

// --- Pipeline ---

// resolve merges a request with the configured defaults and validates the
// resulting window.
func (s *Service) resolve(req CreateAnalysisRequest) (Defaults, error) {
	params := s.defaults
	if req.Address != "" {
		params.Address = req.Address
	}
	if req.Asset != "" {
		params.Asset = req.Asset
	}
	if req.AssetCoinID != "" {
		params.AssetCoinID = req.AssetCoinID
	}
	if req.NativeCoinID != "" {
		params.NativeCoinID = req.NativeCoinID
	}
	if req.StartDate != "" {
		t, err := time.Parse(dateLayout, req.StartDate)
		if err != nil {
			return Defaults{}, fmt.Errorf("start_date: %w", err)
		}
		params.Start = t
	}
	if req.EndDate != "" {
		t, err := time.Parse(dateLayout, req.EndDate)
		if err != nil {
			return Defaults{}, fmt.Errorf("end_date: %w", err)
		}
		params.End = t
	}
	if !params.End.After(params.Start) {
		return Defaults{}, ledger.ErrInvalidWindow
	}
	return params, nil
}

// runAnalysis executes the full pipeline: fetch, reconcile, fold, persist.
// The four upstream feeds are independent and fetched in parallel; the
// fold itself is strictly sequential.
func (s *Service) runAnalysis(ctx context.Context, params Defaults) (*model.AnalysisRun, error) {
	var (
		tokenTxs, nativeTxs       []model.TransferRecord
		assetPrices, nativePrices pricing.Series
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tokenTxs, err = s.fetchTransfers(gctx, params.Address)
		return err
	})
	g.Go(func() (err error) {
		nativeTxs, err = s.fetchNative(gctx, params.Address)
		return err
	})
	g.Go(func() (err error) {
		assetPrices, err = s.fetchPrices(gctx, params.AssetCoinID)
		return err
	})
	g.Go(func() (err error) {
		nativePrices, err = s.fetchPrices(gctx, params.NativeCoinID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	assetTxs := reconcile.FilterAssetHashes(tokenTxs, params.Asset)
	unified := reconcile.MergePaired(assetTxs, nativeTxs, params.Address)

	agg := &reconcile.Aggregator{
		Asset:        params.Asset,
		NativeSymbol: params.NativeSymbol,
		NativePrices: nativePrices,
	}
	swaps, err := agg.Aggregate(unified)
	if err != nil {
		return nil, err
	}

	hashes := make(map[string]bool, len(unified))
	for _, tx := range unified {
		hashes[tx.Hash] = true
	}
	if dropped := len(hashes) - len(swaps); dropped > 0 {
		metrics.DegenerateSwapsDropped.Add(float64(dropped))
	}

	engine, err := ledger.NewEngine(ledger.Config{
		Asset:     params.Asset,
		Start:     params.Start,
		End:       params.End,
		Precision: params.Precision,
	}, assetPrices, nativePrices)
	if err != nil {
		return nil, err
	}

	result, err := engine.Run(swaps, nativeTxs)
	if err != nil {
		return nil, err
	}
	metrics.SwapsProcessed.Add(float64(len(swaps)))

	final := result.Final()
	run := &model.AnalysisRun{
		ID:             uuid.New().String(),
		Address:        params.Address,
		Asset:          params.Asset,
		StartDate:      params.Start,
		EndDate:        params.End,
		SwapCount:      len(swaps),
		FinalBalance:   final.Balance,
		RealizedProfit: final.RealizedProfit,
		FeeCost:        final.FeeCost,
		TotalVolume:    reconcile.TotalVolume(swaps),
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("persisting run: %w", err)
	}
	if err := s.store.InsertLedgerEntries(ctx, run.ID, result.Entries); err != nil {
		return nil, fmt.Errorf("persisting ledger: %w", err)
	}

	slog.Info("analysis completed",
		"run_id", run.ID,
		"address", run.Address,
		"asset", run.Asset,
		"swaps", run.SwapCount,
		"final_balance", run.FinalBalance.String(),
		"realized_profit", run.RealizedProfit.String(),
		"fee_cost", run.FeeCost.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:           "analysis_completed",
			RunID:          run.ID,
			Address:        run.Address,
			Asset:          run.Asset,
			SwapCount:      run.SwapCount,
			FinalBalance:   run.FinalBalance.String(),
			RealizedProfit: run.RealizedProfit.String(),
			FeeCost:        run.FeeCost.String(),
		})
	}

	return run, nil
}

// --- Timed fetch wrappers ---

func (s *Service) fetchTransfers(ctx context.Context, address string) ([]model.TransferRecord, error) {
	start := time.Now()
	records, err := s.transfers.TokenTransfers(ctx, address)
	metrics.FetchDuration.WithLabelValues("explorer").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("fetching token transfers: %w", err)
	}
	return records, nil
}

func (s *Service) fetchNative(ctx context.Context, address string) ([]model.TransferRecord, error) {
	start := time.Now()
	records, err := s.transfers.NativeTransactions(ctx, address)
	metrics.FetchDuration.WithLabelValues("explorer").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("fetching native transactions: %w", err)
	}
	return records, nil
}

func (s *Service) fetchPrices(ctx context.Context, coinID string) (pricing.Series, error) {
	start := time.Now()
	series, err := s.prices.MarketChart(ctx, coinID)
	metrics.FetchDuration.WithLabelValues("market").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("fetching prices for %s: %w", coinID, err)
	}
	return series, nil
}

// parseDay accepts a day-start unix timestamp or a calendar date.
func parseDay(raw string) (int64, error) {
	if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ts, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
