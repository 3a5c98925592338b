// Package pricing implements the historical price lookup used to value
// native-currency legs and to stamp daily reference prices on the ledger.
//
// A Series is an ascending-by-timestamp sequence of daily close samples.
// Lookup is a forward-looking "ceiling" lookup: the first sample at or
// after the query time wins, and queries past the end of the series fall
// back flat to the last sample. No interpolation — simplicity over
// accuracy, and the asymmetry is intentional.
package pricing

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// ErrEmptySeries is returned when a lookup is attempted against a series
// with no samples.
var ErrEmptySeries = errors.New("pricing: price series is empty")

// Point is a single (timestamp, price) sample. Timestamps are in
// milliseconds, matching the market-data API wire format.
type Point struct {
	TimestampMillis int64           `json:"timestamp_millis"`
	Price           decimal.Decimal `json:"price"`
}

// Series is an ascending-by-timestamp price series.
type Series []Point

// At returns the price as of the given unix-seconds timestamp: the first
// sample whose timestamp is >= ts*1000, or the last sample if the query
// is beyond the end of the series.
func (s Series) At(unixSeconds int64) (decimal.Decimal, error) {
	if len(s) == 0 {
		return decimal.Decimal{}, ErrEmptySeries
	}
	queryMillis := unixSeconds * 1000
	i := sort.Search(len(s), func(i int) bool {
		return s[i].TimestampMillis >= queryMillis
	})
	if i == len(s) {
		return s[len(s)-1].Price, nil
	}
	return s[i].Price, nil
}

// Sorted reports whether the series is ascending by timestamp. Sources
// are expected to deliver sorted data; this is a cheap sanity check at
// the ingestion edge.
func (s Series) Sorted() bool {
	for i := 1; i < len(s); i++ {
		if s[i].TimestampMillis < s[i-1].TimestampMillis {
			return false
		}
	}
	return true
}
