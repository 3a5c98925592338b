// Package config loads service configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// addressRegex matches a 0x-prefixed 20-byte hex account address.
var addressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

var (
	ErrInvalidAddress = errors.New("config: invalid account address")
	ErrInvalidWindow  = errors.New("config: END_DATE must be after START_DATE")
)

const dateLayout = "2006-01-02"

// Config holds the full service configuration. Analysis parameters act as
// defaults; API requests may override them per run.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	ExplorerAPIKey  string
	ExplorerBaseURL string
	MarketBaseURL   string

	Address      string
	Asset        string
	AssetCoinID  string
	NativeCoinID string
	NativeSymbol string
	Start        time.Time
	End          time.Time
	Precision    int32
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first if present; real environment
// variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	cfg := &Config{
		Port:            getenv("PORT", "8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		ExplorerAPIKey:  os.Getenv("ETHERSCAN_API_KEY"),
		ExplorerBaseURL: getenv("ETHERSCAN_BASE_URL", "https://api.etherscan.io"),
		MarketBaseURL:   getenv("COINGECKO_BASE_URL", "https://api.coingecko.com"),
		Address:         getenv("ACCOUNT_ADDRESS", "0x29ed7cD3CB3e6173A18Cd9a7F32397D5A2B138dD"),
		Asset:           getenv("ASSET", "RPL"),
		AssetCoinID:     getenv("ASSET_COIN_ID", "rocket-pool"),
		NativeCoinID:    getenv("NATIVE_COIN_ID", "ethereum"),
		NativeSymbol:    getenv("NATIVE_SYMBOL", "ETH"),
	}

	if !addressRegex.MatchString(cfg.Address) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, cfg.Address)
	}

	var err error
	if cfg.Start, err = parseDate("START_DATE", "2021-02-01"); err != nil {
		return nil, err
	}
	if cfg.End, err = parseDate("END_DATE", "2023-01-14"); err != nil {
		return nil, err
	}
	if !cfg.End.After(cfg.Start) {
		return nil, ErrInvalidWindow
	}

	precision, err := strconv.ParseInt(getenv("PRECISION", "3"), 10, 32)
	if err != nil || precision < 0 {
		return nil, fmt.Errorf("config: invalid PRECISION: %s", os.Getenv("PRECISION"))
	}
	cfg.Precision = int32(precision)

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDate(key, fallback string) (time.Time, error) {
	raw := getenv(key, fallback)
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: invalid %s %q: %w", key, raw, err)
	}
	return t, nil
}
