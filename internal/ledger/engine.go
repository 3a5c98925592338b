// Package ledger implements the cost-basis accounting engine: a strictly
// sequential fold of the ordered swap sequence into a day-by-day ledger of
// balance, weighted-average cost, realized profit, and fee cost.
//
// The engine is pure batch computation. All inputs — swaps, native
// transactions, both price series — are materialized before the fold
// begins; nothing blocks or suspends mid-fold, and no step may be
// reordered because each day's state depends on the previous day's.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/swapfolio/ledger-engine/internal/model"
	"github.com/swapfolio/ledger-engine/internal/pricing"
)

var (
	// ErrMissingFeeRecord is returned when a swap's hash has no matching
	// native transaction to charge gas against. This is an upstream
	// data-integrity problem and must never be defaulted to zero.
	ErrMissingFeeRecord = errors.New("ledger: no native transaction found for fee lookup")

	// ErrInvalidWindow is returned when the analysis window is empty or
	// inverted.
	ErrInvalidWindow = errors.New("ledger: end date must be after start date")
)

// Config holds the engine parameters. Day boundaries are UTC-anchored.
type Config struct {
	Asset string // traded-asset ticker, e.g. "RPL"
	Start time.Time
	End   time.Time

	// Precision is the number of decimal places the balance is rounded to
	// after a sell, absorbing float drift from repeated division upstream.
	Precision int32
}

// Engine folds swaps into a day-indexed ledger.
type Engine struct {
	cfg          Config
	assetPrices  pricing.Series
	nativePrices pricing.Series
}

// NewEngine validates the window and price series and returns an engine.
// Both series must be non-empty: an empty series would otherwise only
// surface as an error deep inside the fold.
func NewEngine(cfg Config, assetPrices, nativePrices pricing.Series) (*Engine, error) {
	if !cfg.End.After(cfg.Start) {
		return nil, ErrInvalidWindow
	}
	if len(assetPrices) == 0 || len(nativePrices) == 0 {
		return nil, pricing.ErrEmptySeries
	}
	return &Engine{cfg: cfg, assetPrices: assetPrices, nativePrices: nativePrices}, nil
}

// ApplyBuy returns the state after buying amount units at price:
// the new average cost is the balance-weighted mean of the previous
// position and the new entry. Realized profit is untouched.
func ApplyBuy(st model.LedgerState, amount, price decimal.Decimal) model.LedgerState {
	newBalance := st.Balance.Add(amount)
	if newBalance.IsZero() {
		// A buy that exactly closes a negative balance leaves no position
		// to carry a cost basis for.
		st.AvgCostPrice = decimal.Zero
		st.Balance = newBalance
		return st
	}
	weighted := st.Balance.Mul(st.AvgCostPrice).Add(amount.Mul(price))
	st.AvgCostPrice = weighted.Div(newBalance)
	st.Balance = newBalance
	return st
}

// ApplySell returns the state after selling amount units at price.
// Selling never changes the cost basis of the remaining units; it
// realizes amount × (price − avgCost) of profit and rounds the balance
// to the configured precision.
func ApplySell(st model.LedgerState, amount, price decimal.Decimal, precision int32) model.LedgerState {
	st.Balance = st.Balance.Sub(amount).Round(precision)
	st.RealizedProfit = st.RealizedProfit.Add(amount.Mul(price.Sub(st.AvgCostPrice)))
	return st
}

// Run folds the swap sequence into one LedgerEntry per calendar day of
// the window. Swaps must be in chronological order; nativeTxs is the
// native transaction set the fee lookup joins against.
func (e *Engine) Run(swaps []model.Swap, nativeTxs []model.TransferRecord) (model.Ledger, error) {
	gasByHash := make(map[string]int64, len(nativeTxs))
	for _, tx := range nativeTxs {
		gasByHash[tx.Hash] = tx.GasUsed
	}

	days := e.dayBounds()
	st := model.LedgerState{
		Balance:        decimal.Zero,
		AvgCostPrice:   decimal.Zero,
		RealizedProfit: decimal.Zero,
		FeeCost:        decimal.Zero,
	}

	entries := make([]model.LedgerEntry, 0, len(days)-1)
	next := 0 // cursor into swaps; buckets consume them in order

	for i := 1; i < len(days); i++ {
		prevStart := days[i-1].Unix()
		currStart := days[i].Unix()

		var daySwaps []model.Swap
		for next < len(swaps) && swaps[next].Timestamp < currStart {
			if swaps[next].Timestamp >= prevStart {
				daySwaps = append(daySwaps, swaps[next])
			}
			next++
		}

		for _, sw := range daySwaps {
			var err error
			st, err = e.apply(st, sw, gasByHash)
			if err != nil {
				return model.Ledger{}, err
			}
		}

		assetPrice, err := e.assetPrices.At(currStart)
		if err != nil {
			return model.Ledger{}, fmt.Errorf("asset price for %s: %w", days[i].Format("2006-01-02"), err)
		}
		nativePrice, err := e.nativePrices.At(currStart)
		if err != nil {
			return model.Ledger{}, fmt.Errorf("native price for %s: %w", days[i].Format("2006-01-02"), err)
		}

		entry := model.LedgerEntry{
			Date:            days[i],
			AssetPrice:      assetPrice,
			NativePrice:     nativePrice,
			Swaps:           daySwaps,
			Balance:         st.Balance,
			AvgCostPrice:    st.AvgCostPrice,
			RealizedProfit:  st.RealizedProfit,
			FeeCost:         st.FeeCost,
			NegativeBalance: st.Balance.IsNegative(),
		}
		if entry.NegativeBalance {
			slog.Warn("balance went negative, continuing",
				"date", days[i].Format("2006-01-02"),
				"balance", st.Balance.String(),
			)
		}
		entries = append(entries, entry)
	}

	return model.Ledger{Entries: entries}, nil
}

// apply runs one swap's state transition plus its fee charge.
func (e *Engine) apply(st model.LedgerState, sw model.Swap, gasByHash map[string]int64) (model.LedgerState, error) {
	assetNet := sw.Trade[e.cfg.Asset]
	amount := assetNet.Abs()

	if assetNet.IsPositive() {
		st = ApplyBuy(st, amount, sw.Price)
	} else {
		st = ApplySell(st, amount, sw.Price, e.cfg.Precision)
	}

	gas, ok := gasByHash[sw.Hash]
	if !ok {
		return st, fmt.Errorf("%w: %s", ErrMissingFeeRecord, sw.Hash)
	}
	// Raw gas units scaled by 1e9, matching the explorer feed's semantics.
	st.FeeCost = st.FeeCost.Add(decimal.New(gas, -9))
	return st, nil
}

// dayBounds returns the UTC day starts from Start through End inclusive.
// Bucket i covers [days[i-1], days[i]) and is reported under days[i].
func (e *Engine) dayBounds() []time.Time {
	start := time.Date(e.cfg.Start.Year(), e.cfg.Start.Month(), e.cfg.Start.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(e.cfg.End.Year(), e.cfg.End.Month(), e.cfg.End.Day(), 0, 0, 0, 0, time.UTC)

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
