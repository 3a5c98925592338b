// Package coingecko retrieves historical daily price series from the
// CoinGecko market-chart API.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/swapfolio/ledger-engine/internal/pricing"
)

// Client communicates with the CoinGecko API. No API key is required for
// the public market-chart endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new market-data client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// marketChart is the wire shape: prices is a list of [millis, price]
// pairs, ascending by timestamp.
type marketChart struct {
	Prices [][2]json.Number `json:"prices"`
}

// MarketChart fetches the full daily USD price history for a coin and
// returns it as a pricing.Series. Empty or unsorted payloads are
// rejected here so lookups downstream never have to.
func (c *Client) MarketChart(ctx context.Context, coinID string) (pricing.Series, error) {
	endpoint := fmt.Sprintf("%s/api/v3/coins/%s/market_chart?vs_currency=usd&days=max", c.baseURL, coinID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("market-data API returned status %d: %s", resp.StatusCode, string(body))
	}

	var chart marketChart
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(chart.Prices) == 0 {
		return nil, fmt.Errorf("market chart for %s: %w", coinID, pricing.ErrEmptySeries)
	}

	series := make(pricing.Series, 0, len(chart.Prices))
	for _, p := range chart.Prices {
		millis, err := p[0].Int64()
		if err != nil {
			// Some gateways serialize the millis as a float.
			f, ferr := p[0].Float64()
			if ferr != nil {
				return nil, fmt.Errorf("parsing timestamp %q: %w", p[0], err)
			}
			millis = int64(f)
		}
		price, err := decimal.NewFromString(p[1].String())
		if err != nil {
			return nil, fmt.Errorf("parsing price %q: %w", p[1], err)
		}
		series = append(series, pricing.Point{TimestampMillis: millis, Price: price})
	}

	if !series.Sorted() {
		return nil, fmt.Errorf("market chart for %s is not ascending by timestamp", coinID)
	}
	return series, nil
}
