package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMarketChart_ParsesSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/coins/rocket-pool/market_chart" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("vs_currency") != "usd" {
			t.Errorf("expected vs_currency=usd, got %s", r.URL.Query().Get("vs_currency"))
		}
		w.Write([]byte(`{"prices":[[1612137600000,24.5],[1612224000000,26.75]]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	series, err := client.MarketChart(context.Background(), "rocket-pool")
	if err != nil {
		t.Fatalf("MarketChart: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("expected 2 points, got %d", len(series))
	}
	if series[0].TimestampMillis != 1612137600000 {
		t.Errorf("timestamp = %d, want 1612137600000", series[0].TimestampMillis)
	}
	if !series[1].Price.Equal(decimal.NewFromFloat(26.75)) {
		t.Errorf("price = %s, want 26.75", series[1].Price)
	}
}

func TestMarketChart_EmptySeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"prices":[]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	if _, err := client.MarketChart(context.Background(), "ethereum"); err == nil {
		t.Fatal("expected error for empty price series")
	}
}

func TestMarketChart_UnsortedSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"prices":[[2000,1.0],[1000,2.0]]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	if _, err := client.MarketChart(context.Background(), "ethereum"); err == nil {
		t.Fatal("expected error for unsorted price series")
	}
}
