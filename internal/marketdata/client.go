package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Quote is the raw per-symbol payload from the market-data collaborator.
// Every price field is optional; the provider resolves them in preference
// order. An unknown symbol is a nil Quote, not an error.
type Quote struct {
	CurrentPrice       *float64 `json:"currentPrice"`
	RegularMarketPrice *float64 `json:"regularMarketPrice"`
	PreviousClose      *float64 `json:"previousClose"`
	Open               *float64 `json:"open"`
	LastPrice          *float64 `json:"lastPrice"`
	Currency           string   `json:"currency"`
	MarketCap          *float64 `json:"marketCap"`
	TrailingPE         *float64 `json:"trailingPE"`
	DividendYield      *float64 `json:"dividendYield"`
	FiftyTwoWeekHigh   *float64 `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow    *float64 `json:"fiftyTwoWeekLow"`
	Volume             *int64   `json:"volume"`
	AverageVolume      *int64   `json:"averageVolume"`
	MarketState        string   `json:"marketState"`
}

// Client abstracts the external market-data source. Both calls return
// (nil, nil) for symbols the source does not know; errors are reserved for
// transport-level failures.
type Client interface {
	Quote(ctx context.Context, symbol string) (*Quote, error)
	DailyClose(ctx context.Context, symbol string) (*float64, error)
}

// HTTPClient talks to a quote API over plain HTTP.
type HTTPClient struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) httpClient() *http.Client {
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return c.Client
}

// Quote fetches the current quote payload for symbol.
func (c *HTTPClient) Quote(ctx context.Context, symbol string) (*Quote, error) {
	endpoint := fmt.Sprintf("%s/quote?symbol=%s", c.BaseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("quote %s: status %d: %s", symbol, resp.StatusCode, body)
	}

	var quote Quote
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, fmt.Errorf("quote %s: decode: %w", symbol, err)
	}
	return &quote, nil
}

// DailyClose fetches the most recent daily closing price for symbol.
func (c *HTTPClient) DailyClose(ctx context.Context, symbol string) (*float64, error) {
	endpoint := fmt.Sprintf("%s/history/daily?symbol=%s&limit=1", c.BaseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("history %s: status %d: %s", symbol, resp.StatusCode, body)
	}

	var payload struct {
		Closes []float64 `json:"closes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("history %s: decode: %w", symbol, err)
	}
	if len(payload.Closes) == 0 {
		return nil, nil
	}
	close := payload.Closes[len(payload.Closes)-1]
	return &close, nil
}
