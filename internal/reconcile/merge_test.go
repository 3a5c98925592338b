package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/swapfolio/ledger-engine/internal/model"
)

const account = "0x29ed7cD3CB3e6173A18Cd9a7F32397D5A2B138dD"

func rec(hash string, block int64, symbol string, rawValue int64, decimals int, to string) model.TransferRecord {
	return model.TransferRecord{
		Hash:         hash,
		BlockNumber:  block,
		Timestamp:    block * 100,
		From:         "0xcounterparty",
		To:           to,
		Value:        decimal.NewFromInt(rawValue),
		TokenSymbol:  symbol,
		TokenDecimal: decimals,
	}
}

func TestFilterAssetHashes_KeepsWholeQualifyingHash(t *testing.T) {
	records := []model.TransferRecord{
		rec("0xaaa", 1, "RPL", 100, 18, account),
		rec("0xaaa", 1, "USDC", 500, 6, "0xpool"), // counter-leg of the RPL swap
		rec("0xbbb", 2, "USDC", 700, 6, account),  // unrelated USDC transfer
	}

	got := FilterAssetHashes(records, "RPL")
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	for _, r := range got {
		if r.Hash != "0xaaa" {
			t.Errorf("unexpected hash %s in filtered set", r.Hash)
		}
	}
}

func TestMergePaired_InnerJoinByHash(t *testing.T) {
	assetTxs := []model.TransferRecord{
		rec("0xswap", 10, "RPL", 5, 0, account),
		rec("0xlonely", 11, "RPL", 5, 0, account), // no native counterpart
	}
	nativeTxs := []model.TransferRecord{
		rec("0xswap", 10, "ETH", 1, 0, "0xpool"),
		rec("0xorphan", 12, "ETH", 1, 0, account), // no asset counterpart
	}

	got := MergePaired(assetTxs, nativeTxs, account)
	if len(got) != 2 {
		t.Fatalf("expected 2 unified records, got %d", len(got))
	}
	for _, u := range got {
		if u.Hash != "0xswap" {
			t.Errorf("record %s should not survive the join", u.Hash)
		}
		if !u.IsSwap {
			t.Errorf("paired record should be flagged IsSwap")
		}
	}
}

func TestMergePaired_DuplicateHashWithinOneSet(t *testing.T) {
	// Two asset legs in one transaction still qualify when a native leg
	// shares the hash; membership matters, not count equality.
	assetTxs := []model.TransferRecord{
		rec("0xmulti", 10, "RPL", 5, 0, account),
		rec("0xmulti", 10, "USDT", 9, 0, "0xpool"),
	}
	nativeTxs := []model.TransferRecord{
		rec("0xmulti", 10, "ETH", 1, 0, "0xpool"),
	}

	got := MergePaired(assetTxs, nativeTxs, account)
	if len(got) != 3 {
		t.Fatalf("expected 3 unified records, got %d", len(got))
	}
}

func TestMergePaired_IsBuyCaseInsensitive(t *testing.T) {
	assetTxs := []model.TransferRecord{
		rec("0xswap", 10, "RPL", 5, 0, "0X29ED7CD3CB3E6173A18CD9A7F32397D5A2B138DD"),
	}
	nativeTxs := []model.TransferRecord{
		rec("0xswap", 10, "ETH", 1, 0, "0xpool"),
	}

	got := MergePaired(assetTxs, nativeTxs, account)
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	var sawBuy, sawSell bool
	for _, u := range got {
		if u.TokenSymbol == "RPL" {
			sawBuy = u.IsBuy
		}
		if u.TokenSymbol == "ETH" {
			sawSell = !u.IsBuy
		}
	}
	if !sawBuy {
		t.Error("uppercase receiver address should still count as a buy")
	}
	if !sawSell {
		t.Error("leg sent to the pool should not count as a buy")
	}
}

func TestMergePaired_NormalizesValueByDecimals(t *testing.T) {
	assetTxs := []model.TransferRecord{
		rec("0xswap", 10, "RPL", 1500, 3, account),
	}
	nativeTxs := []model.TransferRecord{
		rec("0xswap", 10, "ETH", 2_000_000_000_000_000_000, 18, "0xpool"),
	}

	got := MergePaired(assetTxs, nativeTxs, account)
	for _, u := range got {
		switch u.TokenSymbol {
		case "RPL":
			if !u.Value.Equal(decimal.NewFromFloat(1.5)) {
				t.Errorf("RPL value = %s, want 1.5", u.Value)
			}
		case "ETH":
			if !u.Value.Equal(decimal.NewFromInt(2)) {
				t.Errorf("ETH value = %s, want 2", u.Value)
			}
		}
	}
}

func TestMergePaired_SortedByBlockNumber(t *testing.T) {
	assetTxs := []model.TransferRecord{
		rec("0xlate", 30, "RPL", 5, 0, account),
		rec("0xearly", 10, "RPL", 5, 0, account),
	}
	nativeTxs := []model.TransferRecord{
		rec("0xlate", 30, "ETH", 1, 0, "0xpool"),
		rec("0xearly", 10, "ETH", 1, 0, "0xpool"),
	}

	got := MergePaired(assetTxs, nativeTxs, account)
	for i := 1; i < len(got); i++ {
		if got[i].BlockNumber < got[i-1].BlockNumber {
			t.Fatalf("unified set not sorted by block number: %d before %d",
				got[i-1].BlockNumber, got[i].BlockNumber)
		}
	}
}
