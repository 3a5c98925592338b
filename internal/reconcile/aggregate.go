package reconcile

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/swapfolio/ledger-engine/internal/model"
	"github.com/swapfolio/ledger-engine/internal/pricing"
)

// Aggregator folds unified transfer legs into one Swap per hash, valuing
// the native leg in reference currency via the native price series.
type Aggregator struct {
	// Asset is the traded-asset ticker after normalization, e.g. "RPL".
	Asset string

	// NativeSymbol is the synthetic ticker stamped on native-currency
	// records, e.g. "ETH".
	NativeSymbol string

	// NativePrices values native legs in reference currency as of each
	// swap's timestamp.
	NativePrices pricing.Series
}

// Aggregate groups the unified set by hash and nets per-symbol amounts
// into Swaps, ascending by block number. Degenerate swaps — hashes whose
// net traded-asset amount is exactly zero, such as plain transfers that
// happened to pair with a native leg — are dropped rather than producing
// a division by zero downstream.
func (a *Aggregator) Aggregate(txs []model.UnifiedTransaction) ([]model.Swap, error) {
	grouped := make(map[string][]model.UnifiedTransaction)
	for _, tx := range txs {
		grouped[tx.Hash] = append(grouped[tx.Hash], tx)
	}

	swaps := make([]model.Swap, 0, len(grouped))
	for hash, legs := range grouped {
		sw, ok, err := a.buildSwap(hash, legs)
		if err != nil {
			return nil, err
		}
		if !ok {
			slog.Debug("dropping degenerate swap", "hash", hash, "asset", a.Asset)
			continue
		}
		swaps = append(swaps, sw)
	}

	sort.Slice(swaps, func(i, j int) bool {
		return swaps[i].BlockNumber < swaps[j].BlockNumber
	})
	return swaps, nil
}

// buildSwap nets one hash's legs. Stablecoin symbols collapse into the
// reference bucket; the native leg is netted in native units first, then
// converted at the swap timestamp and summed into the same reference
// accumulator (never overwriting stablecoin legs).
func (a *Aggregator) buildSwap(hash string, legs []model.UnifiedTransaction) (model.Swap, bool, error) {
	trade := make(map[string]decimal.Decimal)
	nativeNet := decimal.Zero

	sw := model.Swap{
		Hash:        hash,
		Timestamp:   legs[0].Timestamp,
		BlockNumber: legs[0].BlockNumber,
	}

	for _, leg := range legs {
		amount := leg.Value
		if !leg.IsBuy {
			amount = amount.Neg()
		}
		switch {
		case leg.TokenSymbol == a.NativeSymbol:
			nativeNet = nativeNet.Add(amount)
		case strings.Contains(leg.TokenSymbol, "USD"):
			trade[model.ReferenceSymbol] = trade[model.ReferenceSymbol].Add(amount)
		default:
			trade[leg.TokenSymbol] = trade[leg.TokenSymbol].Add(amount)
		}
	}

	if !nativeNet.IsZero() {
		nativePrice, err := a.NativePrices.At(sw.Timestamp)
		if err != nil {
			return model.Swap{}, false, fmt.Errorf("valuing native leg of %s: %w", hash, err)
		}
		trade[model.ReferenceSymbol] = trade[model.ReferenceSymbol].Add(nativeNet.Mul(nativePrice))
	}

	assetNet := trade[a.Asset]
	if assetNet.IsZero() {
		return model.Swap{}, false, nil
	}

	sw.Trade = trade
	sw.Price = trade[model.ReferenceSymbol].Div(assetNet).Abs()
	return sw, true, nil
}

// TotalVolume sums absolute traded amounts per normalized symbol across
// all swaps, for the run summary.
func TotalVolume(swaps []model.Swap) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal)
	for _, sw := range swaps {
		for symbol, amount := range sw.Trade {
			totals[symbol] = totals[symbol].Add(amount.Abs())
		}
	}
	return totals
}
