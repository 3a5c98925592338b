package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/swapfolio/ledger-engine/internal/model"
	"github.com/swapfolio/ledger-engine/internal/pricing"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func flatSeries(price float64) pricing.Series {
	return pricing.Series{{TimestampMillis: 0, Price: d(price)}}
}

func date(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func swap(hash string, ts time.Time, assetAmount, price float64) model.Swap {
	return model.Swap{
		Hash:      hash,
		Timestamp: ts.Unix(),
		Trade: map[string]decimal.Decimal{
			"RPL": d(assetAmount),
			"USD": d(-assetAmount * price),
		},
		Price: d(price),
	}
}

func nativeTx(hash string, gasUsed int64) model.TransferRecord {
	return model.TransferRecord{Hash: hash, TokenSymbol: "ETH", GasUsed: gasUsed}
}

func newTestEngine(t *testing.T, start, end time.Time) *Engine {
	t.Helper()
	eng, err := NewEngine(Config{
		Asset:     "RPL",
		Start:     start,
		End:       end,
		Precision: 3,
	}, flatSeries(12), flatSeries(2000))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng
}

// --- State transition tests ---

func TestApplyBuy_WeightedAverageInvariant(t *testing.T) {
	// After buys a1..an at p1..pn with no sells, the average cost must
	// equal sum(ai*pi)/sum(ai).
	buys := []struct{ amount, price float64 }{
		{100, 10}, {50, 16}, {25, 4}, {3.5, 40},
	}

	st := model.LedgerState{}
	var totalCost, totalAmount decimal.Decimal
	for _, b := range buys {
		st = ApplyBuy(st, d(b.amount), d(b.price))
		totalCost = totalCost.Add(d(b.amount).Mul(d(b.price)))
		totalAmount = totalAmount.Add(d(b.amount))
	}

	want := totalCost.Div(totalAmount)
	tolerance := d(0.0000001)
	if st.AvgCostPrice.Sub(want).Abs().GreaterThan(tolerance) {
		t.Errorf("avg cost = %s, want %s", st.AvgCostPrice, want)
	}
	if !st.Balance.Equal(totalAmount) {
		t.Errorf("balance = %s, want %s", st.Balance, totalAmount)
	}
	if !st.RealizedProfit.IsZero() {
		t.Errorf("buys must not realize profit, got %s", st.RealizedProfit)
	}
}

func TestApplySell_DoesNotChangeCostBasis(t *testing.T) {
	st := model.LedgerState{}
	st = ApplyBuy(st, d(100), d(10))

	avgBefore := st.AvgCostPrice
	st = ApplySell(st, d(40), d(15), 3)

	if !st.AvgCostPrice.Equal(avgBefore) {
		t.Errorf("sell changed avg cost: %s → %s", avgBefore, st.AvgCostPrice)
	}
	if !st.Balance.Equal(d(60)) {
		t.Errorf("balance = %s, want 60", st.Balance)
	}
	if !st.RealizedProfit.Equal(d(200)) {
		t.Errorf("realized profit = %s, want 200", st.RealizedProfit)
	}
}

func TestApplySell_RoundsBalance(t *testing.T) {
	st := model.LedgerState{Balance: d(10), AvgCostPrice: d(1)}
	st = ApplySell(st, d(3.0001234), d(1), 3)
	if !st.Balance.Equal(d(7)) {
		t.Errorf("balance = %s, want 7 after rounding to 3 places", st.Balance)
	}
}

func TestApplyBuy_ClosingNegativeBalance(t *testing.T) {
	st := model.LedgerState{Balance: d(-5), AvgCostPrice: d(10)}
	st = ApplyBuy(st, d(5), d(20))
	if !st.Balance.IsZero() {
		t.Errorf("balance = %s, want 0", st.Balance)
	}
	if !st.AvgCostPrice.IsZero() {
		t.Errorf("flat position should carry no cost basis, got %s", st.AvgCostPrice)
	}
}

// --- Full fold tests ---

func TestRun_BuyThenSellScenario(t *testing.T) {
	// Buy 100 at 10 on day one, sell 40 at 15 on day two:
	// day one → balance 100, avg 10, profit 0
	// day two → balance 60, avg 10, profit 40*(15-10) = 200
	start := date(2021, time.February, 1)
	eng := newTestEngine(t, start, date(2021, time.February, 4))

	buy := swap("0xbuy", start.Add(10*time.Hour), 100, 10)
	sell := swap("0xsell", start.Add(34*time.Hour), -40, 15)
	native := []model.TransferRecord{nativeTx("0xbuy", 2_000_000_000), nativeTx("0xsell", 1_000_000_000)}

	led, err := eng.Run([]model.Swap{buy, sell}, native)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(led.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(led.Entries))
	}

	day1 := led.Entries[0]
	if !day1.Balance.Equal(d(100)) || !day1.AvgCostPrice.Equal(d(10)) || !day1.RealizedProfit.IsZero() {
		t.Errorf("day one state = %+v, want balance=100 avg=10 profit=0", day1.State())
	}
	if len(day1.Swaps) != 1 || day1.Swaps[0].Hash != "0xbuy" {
		t.Errorf("day one should carry the buy swap, got %+v", day1.Swaps)
	}
	if !day1.FeeCost.Equal(d(2)) {
		t.Errorf("day one fee cost = %s, want 2", day1.FeeCost)
	}

	day2 := led.Entries[1]
	if !day2.Balance.Equal(d(60)) {
		t.Errorf("day two balance = %s, want 60", day2.Balance)
	}
	if !day2.AvgCostPrice.Equal(d(10)) {
		t.Errorf("day two avg cost = %s, want 10", day2.AvgCostPrice)
	}
	if !day2.RealizedProfit.Equal(d(200)) {
		t.Errorf("day two profit = %s, want 200", day2.RealizedProfit)
	}
	if !day2.FeeCost.Equal(d(3)) {
		t.Errorf("day two fee cost = %s, want 3", day2.FeeCost)
	}

	// Quiet third day snapshots the same state with no swaps.
	day3 := led.Entries[2]
	if len(day3.Swaps) != 0 {
		t.Errorf("quiet day should carry no swaps, got %d", len(day3.Swaps))
	}
	if !day3.Balance.Equal(d(60)) || !day3.RealizedProfit.Equal(d(200)) {
		t.Errorf("quiet day must carry forward state, got %+v", day3.State())
	}
}

func TestRun_DailyPricesStamped(t *testing.T) {
	eng := newTestEngine(t, date(2021, time.February, 1), date(2021, time.February, 3))
	led, err := eng.Run(nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, e := range led.Entries {
		if !e.AssetPrice.Equal(d(12)) {
			t.Errorf("asset price = %s, want 12", e.AssetPrice)
		}
		if !e.NativePrice.Equal(d(2000)) {
			t.Errorf("native price = %s, want 2000", e.NativePrice)
		}
	}
}

func TestRun_IndexKeyedByDayStart(t *testing.T) {
	eng := newTestEngine(t, date(2021, time.February, 1), date(2021, time.February, 3))
	led, err := eng.Run(nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	idx := led.Index()
	if len(idx) != 2 {
		t.Fatalf("expected 2 indexed days, got %d", len(idx))
	}
	for _, day := range []time.Time{date(2021, time.February, 2), date(2021, time.February, 3)} {
		if _, ok := idx[day.Unix()]; !ok {
			t.Errorf("missing index key for %s", day.Format("2006-01-02"))
		}
	}
}

func TestRun_MissingFeeRecord(t *testing.T) {
	start := date(2021, time.February, 1)
	eng := newTestEngine(t, start, date(2021, time.February, 3))

	buy := swap("0xorphan", start.Add(time.Hour), 10, 10)
	_, err := eng.Run([]model.Swap{buy}, nil)
	if !errors.Is(err, ErrMissingFeeRecord) {
		t.Errorf("expected ErrMissingFeeRecord, got %v", err)
	}
}

func TestRun_NegativeBalanceFlaggedNotFatal(t *testing.T) {
	start := date(2021, time.February, 1)
	eng := newTestEngine(t, start, date(2021, time.February, 3))

	// Sell with no tracked prior acquisition.
	sell := swap("0xsell", start.Add(time.Hour), -5, 20)
	led, err := eng.Run([]model.Swap{sell}, []model.TransferRecord{nativeTx("0xsell", 0)})
	if err != nil {
		t.Fatalf("negative balance must not fail the run: %v", err)
	}

	day1 := led.Entries[0]
	if !day1.Balance.Equal(d(-5)) {
		t.Errorf("balance = %s, want -5", day1.Balance)
	}
	if !day1.NegativeBalance {
		t.Error("entry should be flagged as negative-balance")
	}
}

func TestRun_SwapOutsideWindowIgnored(t *testing.T) {
	start := date(2021, time.February, 1)
	eng := newTestEngine(t, start, date(2021, time.February, 3))

	early := swap("0xearly", start.Add(-48*time.Hour), 10, 10)
	late := swap("0xlate", date(2021, time.March, 1), 10, 10)
	led, err := eng.Run([]model.Swap{early, late}, []model.TransferRecord{
		nativeTx("0xearly", 1), nativeTx("0xlate", 1),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, e := range led.Entries {
		if len(e.Swaps) != 0 {
			t.Errorf("out-of-window swaps must not be applied, day %s has %d", e.Date, len(e.Swaps))
		}
		if !e.Balance.IsZero() {
			t.Errorf("balance should stay zero, got %s", e.Balance)
		}
	}
}

func TestNewEngine_Validation(t *testing.T) {
	cfg := Config{Asset: "RPL", Start: date(2021, 2, 2), End: date(2021, 2, 1), Precision: 3}
	if _, err := NewEngine(cfg, flatSeries(1), flatSeries(1)); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("expected ErrInvalidWindow, got %v", err)
	}

	cfg.End = date(2021, 2, 5)
	if _, err := NewEngine(cfg, nil, flatSeries(1)); !errors.Is(err, pricing.ErrEmptySeries) {
		t.Errorf("expected ErrEmptySeries for empty asset series, got %v", err)
	}
	if _, err := NewEngine(cfg, flatSeries(1), nil); !errors.Is(err, pricing.ErrEmptySeries) {
		t.Errorf("expected ErrEmptySeries for empty native series, got %v", err)
	}
}
