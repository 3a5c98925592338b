// Package model defines the core domain types shared across the ledger engine.
// All amounts and prices use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReferenceSymbol is the bucket all USD-pegged stablecoin legs collapse
// into, and the unit the native leg is converted to during aggregation.
const ReferenceSymbol = "USD"

// TransferRecord is one transfer leg as reported by the explorer API,
// parsed out of its string-typed wire format. A transaction hash is not
// unique: a swap carries one record per leg sharing the same hash.
type TransferRecord struct {
	Hash         string          `json:"hash"`
	BlockNumber  int64           `json:"block_number"`
	Timestamp    int64           `json:"timestamp"` // unix seconds
	From         string          `json:"from"`
	To           string          `json:"to"`
	Value        decimal.Decimal `json:"value"` // raw integer amount, scaled by 10^TokenDecimal
	TokenSymbol  string          `json:"token_symbol"`
	TokenDecimal int             `json:"token_decimal"`

	// Only populated on native-currency records.
	GasUsed int64 `json:"gas_used,omitempty"`
}

// UnifiedTransaction is a TransferRecord after the paired-hash merge:
// Value is normalized to real units and the record is annotated with its
// role relative to the analyzed account.
type UnifiedTransaction struct {
	TransferRecord

	// IsSwap is true iff the hash appears more than once in the unified
	// set, i.e. the record is one leg of a multi-leg atomic transaction.
	IsSwap bool `json:"is_swap"`

	// IsBuy is true iff the analyzed account is the receiving address.
	IsBuy bool `json:"is_buy"`
}

// Swap is the netted view of one atomic transaction, keyed by hash.
// Trade maps normalized symbol → signed net amount (buys positive, sells
// negative); the native leg has already been converted to reference units.
// Immutable once built by the aggregator.
type Swap struct {
	Hash        string                     `json:"hash"`
	Timestamp   int64                      `json:"timestamp"`
	BlockNumber int64                      `json:"block_number"`
	Trade       map[string]decimal.Decimal `json:"trade"`
	Price       decimal.Decimal            `json:"price"` // abs(trade[USD] / trade[asset])
}

// LedgerState is the running accounting state threaded through the
// cost-basis fold. It is passed and returned by value; each transition
// produces a new state rather than mutating the previous one.
type LedgerState struct {
	Balance        decimal.Decimal `json:"balance"`
	AvgCostPrice   decimal.Decimal `json:"avg_cost_price"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
	FeeCost        decimal.Decimal `json:"fee_cost"`
}

// LedgerEntry is one calendar day of the analysis window: the day's
// reference prices, the swaps applied that day (possibly none), and the
// LedgerState snapshot after applying them.
type LedgerEntry struct {
	Date        time.Time       `json:"date"` // UTC day start closing the bucket
	AssetPrice  decimal.Decimal `json:"asset_price"`
	NativePrice decimal.Decimal `json:"native_price"`
	Swaps       []Swap          `json:"swaps"`

	Balance        decimal.Decimal `json:"balance"`
	AvgCostPrice   decimal.Decimal `json:"avg_cost_price"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
	FeeCost        decimal.Decimal `json:"fee_cost"`

	// NegativeBalance marks a day on which sells exceeded the tracked
	// balance — a data-quality signal, not a failure.
	NegativeBalance bool `json:"negative_balance,omitempty"`
}

// State returns the entry's LedgerState snapshot.
func (e LedgerEntry) State() LedgerState {
	return LedgerState{
		Balance:        e.Balance,
		AvgCostPrice:   e.AvgCostPrice,
		RealizedProfit: e.RealizedProfit,
		FeeCost:        e.FeeCost,
	}
}

// Ledger is the ordered day-by-day output of the cost-basis engine.
type Ledger struct {
	Entries []LedgerEntry `json:"entries"`
}

// Index returns the day-indexed mapping (key = day-start unix timestamp)
// that consumers such as charts and reports read.
func (l Ledger) Index() map[int64]LedgerEntry {
	idx := make(map[int64]LedgerEntry, len(l.Entries))
	for _, e := range l.Entries {
		idx[e.Date.Unix()] = e
	}
	return idx
}

// Final returns the state after the last day, or a zero state for an
// empty ledger.
func (l Ledger) Final() LedgerState {
	if len(l.Entries) == 0 {
		return LedgerState{}
	}
	return l.Entries[len(l.Entries)-1].State()
}

// AnalysisRun records one execution of the engine over a fetched batch.
type AnalysisRun struct {
	ID        string    `json:"id" db:"id"`
	Address   string    `json:"address" db:"address"`
	Asset     string    `json:"asset" db:"asset"`
	StartDate time.Time `json:"start_date" db:"start_date"`
	EndDate   time.Time `json:"end_date" db:"end_date"`
	SwapCount int       `json:"swap_count" db:"swap_count"`

	// Final running state, denormalized for run listings.
	FinalBalance   decimal.Decimal `json:"final_balance" db:"final_balance"`
	RealizedProfit decimal.Decimal `json:"realized_profit" db:"realized_profit"`
	FeeCost        decimal.Decimal `json:"fee_cost" db:"fee_cost"`

	// TotalVolume is the sum of absolute traded amounts per normalized
	// symbol across all swaps in the run.
	TotalVolume map[string]decimal.Decimal `json:"total_volume"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
