// Package oracle fetches market data and balances from the off-chain data
// service. Network failures and server errors are reported as transient so
// callers can retry on the next cycle; client errors are permanent.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"zenmode/internal/domain"
)

// Client is an HTTP client for the market data oracle
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new oracle client
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
		log: log.With().Str("client", "oracle").Logger(),
	}
}

type snapshotResponse struct {
	Prices    map[string]float64 `json:"prices"`
	Volume    float64            `json:"volume"`
	Timestamp int64              `json:"timestamp"`
}

// GetMarketSnapshot fetches current prices and volume
func (c *Client) GetMarketSnapshot(ctx context.Context) (*domain.MarketData, error) {
	var result snapshotResponse
	if err := c.get(ctx, "/v1/market/snapshot", nil, &result); err != nil {
		return nil, err
	}

	return &domain.MarketData{
		Prices:    result.Prices,
		Volume:    result.Volume,
		Timestamp: time.Unix(result.Timestamp, 0),
	}, nil
}

type balanceResponse struct {
	Amount   string `json:"amount"`
	Decimals int    `json:"decimals"`
}

// GetBalance fetches a user's balance of a token, in smallest units
func (c *Client) GetBalance(ctx context.Context, address, token string) (*domain.Balance, error) {
	params := url.Values{}
	params.Add("address", address)
	params.Add("token", token)

	var result balanceResponse
	if err := c.get(ctx, "/v1/balance", params, &result); err != nil {
		return nil, err
	}

	amount, ok := new(big.Int).SetString(result.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("oracle returned invalid balance amount %q", result.Amount)
	}

	return &domain.Balance{
		Amount:   amount,
		Decimals: result.Decimals,
	}, nil
}

type historyResponse struct {
	Prices []float64 `json:"prices"`
}

// GetPriceHistory fetches up to limit recent prices for a token, oldest first
func (c *Client) GetPriceHistory(ctx context.Context, token string, limit int) ([]float64, error) {
	params := url.Values{}
	params.Add("token", token)
	params.Add("limit", strconv.Itoa(limit))

	var result historyResponse
	if err := c.get(ctx, "/v1/prices/history", params, &result); err != nil {
		return nil, err
	}
	return result.Prices, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Transient("oracle", fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		body, _ := io.ReadAll(resp.Body)
		return domain.Transient("oracle", fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, string(body)))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Transient("oracle", fmt.Errorf("failed to read response body: %w", err))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse oracle response: %w", err)
	}
	return nil
}
