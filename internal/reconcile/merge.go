// Package reconcile matches raw transfer legs into swaps: the paired-hash
// merge of the token and native transfer feeds, and the per-hash
// aggregation that nets leg amounts into one Swap with an execution price.
package reconcile

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/swapfolio/ledger-engine/internal/model"
)

// FilterAssetHashes keeps the token-transfer records whose hash carries at
// least one leg of the traded asset. All legs of a qualifying hash survive,
// including stablecoin counter-legs; transfers of other tokens in unrelated
// transactions are dropped.
func FilterAssetHashes(records []model.TransferRecord, asset string) []model.TransferRecord {
	hashes := make(map[string]bool)
	for _, r := range records {
		if r.TokenSymbol == asset {
			hashes[r.Hash] = true
		}
	}

	var out []model.TransferRecord
	for _, r := range records {
		if hashes[r.Hash] {
			out = append(out, r)
		}
	}
	return out
}

// MergePaired inner-joins the token-transfer and native-transfer feeds on
// transaction hash: a record survives iff its hash appears in both sets.
// Matching is by set membership, not count equality — two token legs in one
// transaction still qualify as long as a native leg shares the hash.
//
// Surviving records are annotated (IsSwap when the hash has more than one
// leg in the unified set, IsBuy when the account is the receiver), their
// values normalized by 10^tokenDecimal, and the result sorted ascending by
// block number.
func MergePaired(assetTxs, nativeTxs []model.TransferRecord, account string) []model.UnifiedTransaction {
	assetHashes := make(map[string]bool, len(assetTxs))
	for _, r := range assetTxs {
		assetHashes[r.Hash] = true
	}
	nativeHashes := make(map[string]bool, len(nativeTxs))
	for _, r := range nativeTxs {
		nativeHashes[r.Hash] = true
	}

	var merged []model.TransferRecord
	for _, r := range assetTxs {
		if nativeHashes[r.Hash] {
			merged = append(merged, r)
		}
	}
	for _, r := range nativeTxs {
		if assetHashes[r.Hash] {
			merged = append(merged, r)
		}
	}

	legCount := make(map[string]int, len(merged))
	for _, r := range merged {
		legCount[r.Hash]++
	}

	unified := make([]model.UnifiedTransaction, 0, len(merged))
	for _, r := range merged {
		u := model.UnifiedTransaction{
			TransferRecord: r,
			IsSwap:         legCount[r.Hash] > 1,
			IsBuy:          strings.EqualFold(r.To, account),
		}
		u.Value = normalize(r.Value, r.TokenDecimal)
		unified = append(unified, u)
	}

	sort.SliceStable(unified, func(i, j int) bool {
		return unified[i].BlockNumber < unified[j].BlockNumber
	})
	return unified
}

// normalize scales a raw integer amount by 10^decimals. Raw values must
// never be compared or summed across differing decimals.
func normalize(raw decimal.Decimal, decimals int) decimal.Decimal {
	return raw.Shift(int32(-decimals))
}
