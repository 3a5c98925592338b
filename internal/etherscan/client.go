// Package etherscan retrieves an account's transfer history from the
// Etherscan-compatible explorer API and parses the string-typed wire
// format into validated domain records.
package etherscan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/swapfolio/ledger-engine/internal/model"
)

// NativeSymbol is the synthetic ticker stamped on native-currency
// records; the explorer reports no symbol for them.
const NativeSymbol = "ETH"

const nativeDecimals = 18

// Client communicates with the explorer account API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new explorer API client.
func NewClient(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// envelope is the explorer response wrapper. Status "1" means OK;
// "0" with message "No transactions found" is an empty result, not an
// error.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// wireRecord is one transfer row as the API delivers it: everything is a
// string, re-parsed here exactly once into typed fields.
type wireRecord struct {
	Hash         string `json:"hash"`
	BlockNumber  string `json:"blockNumber"`
	TimeStamp    string `json:"timeStamp"`
	From         string `json:"from"`
	To           string `json:"to"`
	Value        string `json:"value"`
	TokenSymbol  string `json:"tokenSymbol"`
	TokenDecimal string `json:"tokenDecimal"`
	IsError      string `json:"isError"`
	GasUsed      string `json:"gasUsed"`
}

// TokenTransfers returns all token-transfer events for the account.
func (c *Client) TokenTransfers(ctx context.Context, address string) ([]model.TransferRecord, error) {
	rows, err := c.fetch(ctx, "tokentx", address)
	if err != nil {
		return nil, err
	}

	records := make([]model.TransferRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := parseRecord(row)
		if err != nil {
			return nil, fmt.Errorf("token transfer %s: %w", row.Hash, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// NativeTransactions returns the account's native-currency transaction
// list, with errored/reverted transactions dropped at the edge and each
// record stamped with the synthetic native ticker and 18 decimals.
func (c *Client) NativeTransactions(ctx context.Context, address string) ([]model.TransferRecord, error) {
	rows, err := c.fetch(ctx, "txlist", address)
	if err != nil {
		return nil, err
	}

	records := make([]model.TransferRecord, 0, len(rows))
	for _, row := range rows {
		if row.IsError != "0" {
			continue
		}
		rec, err := parseRecord(row)
		if err != nil {
			return nil, fmt.Errorf("native transaction %s: %w", row.Hash, err)
		}
		rec.TokenSymbol = NativeSymbol
		rec.TokenDecimal = nativeDecimals
		if row.GasUsed != "" {
			rec.GasUsed, err = strconv.ParseInt(row.GasUsed, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("native transaction %s: gasUsed %q: %w", row.Hash, row.GasUsed, err)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// fetch calls one account action and unwraps the response envelope.
func (c *Client) fetch(ctx context.Context, action, address string) ([]wireRecord, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", action)
	params.Set("address", address)
	params.Set("apikey", c.apiKey)

	fullURL := c.baseURL + "/api?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
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
		return nil, fmt.Errorf("explorer API returned status %d: %s", resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if env.Status != "1" {
		// "0" + empty result array is how the API reports no activity.
		var empty []wireRecord
		if json.Unmarshal(env.Result, &empty) == nil && len(empty) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("explorer API error: %s", env.Message)
	}

	var rows []wireRecord
	if err := json.Unmarshal(env.Result, &rows); err != nil {
		return nil, fmt.Errorf("decoding result rows: %w", err)
	}
	return rows, nil
}

// parseRecord converts one wire row into a typed TransferRecord. Value
// stays a raw integer amount; scaling by tokenDecimal happens during the
// paired-hash merge.
func parseRecord(row wireRecord) (model.TransferRecord, error) {
	block, err := strconv.ParseInt(row.BlockNumber, 10, 64)
	if err != nil {
		return model.TransferRecord{}, fmt.Errorf("blockNumber %q: %w", row.BlockNumber, err)
	}
	ts, err := strconv.ParseInt(row.TimeStamp, 10, 64)
	if err != nil {
		return model.TransferRecord{}, fmt.Errorf("timeStamp %q: %w", row.TimeStamp, err)
	}
	value, err := decimal.NewFromString(row.Value)
	if err != nil {
		return model.TransferRecord{}, fmt.Errorf("value %q: %w", row.Value, err)
	}

	decimals := 0
	if row.TokenDecimal != "" {
		decimals, err = strconv.Atoi(row.TokenDecimal)
		if err != nil {
			return model.TransferRecord{}, fmt.Errorf("tokenDecimal %q: %w", row.TokenDecimal, err)
		}
	}

	return model.TransferRecord{
		Hash:         row.Hash,
		BlockNumber:  block,
		Timestamp:    ts,
		From:         row.From,
		To:           row.To,
		Value:        value,
		TokenSymbol:  row.TokenSymbol,
		TokenDecimal: decimals,
	}, nil
}
