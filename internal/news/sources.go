package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Source is one news provider in the fallback chain. A source is disabled only
// by configuration absence at startup; a failing active source is skipped for
// the call and retried on the next one.
type Source interface {
	Name() string
	Active() bool
	Fetch(ctx context.Context, symbol string, limit int) ([]Article, error)
}

// PolygonSource is the primary provider. Inactive without an API key.
type PolygonSource struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
	gate    *rateGate
}

func NewPolygonSource(apiKey, baseURL string) *PolygonSource {
	if baseURL == "" {
		baseURL = "https://api.polygon.io"
	}
	return &PolygonSource{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 15 * time.Second},
		gate:    newRateGate("Polygon.io", 4, 15*time.Second, 30*time.Second),
	}
}

func (s *PolygonSource) Name() string { return "Polygon.io" }

func (s *PolygonSource) Active() bool { return s.APIKey != "" }

func (s *PolygonSource) Fetch(ctx context.Context, symbol string, limit int) ([]Article, error) {
	if !s.gate.take() {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/v2/reference/news?ticker=%s&limit=%d&order=desc",
		s.BaseURL, url.QueryEscape(symbol), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		s.gate.backoff()
		return nil, fmt.Errorf("polygon news %s: rate limited", symbol)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("polygon news %s: status %d: %s", symbol, resp.StatusCode, body)
	}

	var payload struct {
		Results []struct {
			Title        string `json:"title"`
			ArticleURL   string `json:"article_url"`
			PublishedUTC string `json:"published_utc"`
			Description  string `json:"description"`
			Publisher    struct {
				Name string `json:"name"`
			} `json:"publisher"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("polygon news %s: decode: %w", symbol, err)
	}

	articles := make([]Article, 0, len(payload.Results))
	for _, item := range payload.Results {
		source := item.Publisher.Name
		if source == "" {
			source = "Unknown"
		}
		articles = append(articles, Article{
			Title:        item.Title,
			URL:          item.ArticleURL,
			PublishedUTC: item.PublishedUTC,
			Source:       source,
			Summary:      truncateSummary(item.Description),
		})
	}
	return articles, nil
}

// YahooSource is the first fallback provider.
type YahooSource struct {
	BaseURL string
	Client  *http.Client
	gate    *rateGate
}

func NewYahooSource(baseURL string) *YahooSource {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	return &YahooSource{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 15 * time.Second},
		gate:    newRateGate("Yahoo Finance", 0, 2*time.Second, 10*time.Second),
	}
}

func (s *YahooSource) Name() string { return "Yahoo Finance" }

func (s *YahooSource) Active() bool { return true }

func (s *YahooSource) Fetch(ctx context.Context, symbol string, limit int) ([]Article, error) {
	if !s.gate.take() {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/news?symbol=%s&count=%d", s.BaseURL, url.QueryEscape(symbol), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		s.gate.backoff()
		return nil, fmt.Errorf("yahoo news %s: rate limited", symbol)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("yahoo news %s: status %d: %s", symbol, resp.StatusCode, body)
	}

	var payload struct {
		Items []struct {
			Content struct {
				Title   string `json:"title"`
				PubDate string `json:"pubDate"`
				Summary string `json:"summary"`
				Provider struct {
					DisplayName string `json:"displayName"`
				} `json:"provider"`
				CanonicalURL struct {
					URL string `json:"url"`
				} `json:"canonicalUrl"`
			} `json:"content"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("yahoo news %s: decode: %w", symbol, err)
	}

	var articles []Article
	for _, item := range payload.Items {
		if len(articles) >= limit {
			break
		}
		content := item.Content
		pubDate := content.PubDate
		if pubDate == "" {
			pubDate = time.Now().UTC().Format(time.RFC3339)
		}
		source := content.Provider.DisplayName
		if source == "" {
			source = "Yahoo Finance"
		}
		articles = append(articles, Article{
			Title:        content.Title,
			URL:          content.CanonicalURL.URL,
			PublishedUTC: pubDate,
			Source:       source,
			Summary:      truncateSummary(content.Summary),
		})
	}
	return articles, nil
}

// MockSource is the guaranteed last-resort provider: templated synthetic
// articles, except for symbols on the denylist (asset classes the mock content
// was not written for), which get nothing rather than fabricated headlines.
type MockSource struct {
	Denylist map[string]bool
}

func NewMockSource() *MockSource {
	return &MockSource{
		Denylist: map[string]bool{
			"BTC-USD": true,
			"ETH-USD": true,
			"PSLV":    true,
			"GOLD":    true,
			"SLV":     true,
		},
	}
}

func (s *MockSource) Name() string { return "Mock Data" }

func (s *MockSource) Active() bool { return true }

func (s *MockSource) Fetch(ctx context.Context, symbol string, limit int) ([]Article, error) {
	if s.Denylist[symbol] {
		log.Info().Str("symbol", symbol).Msg("No mock news for denylisted symbol")
		return nil, nil
	}

	earnings := fmt.Sprintf("Latest earnings report for %s shows strong performance across key metrics.", symbol)
	technical := "Technical indicators suggest positive momentum for this stock."
	articles := []Article{
		{
			Title:        fmt.Sprintf("%s Earnings Report Shows Strong Performance", symbol),
			URL:          "https://example.com/news/1",
			PublishedUTC: "2025-01-06T14:30:00Z",
			Source:       "Financial Times (Mock)",
			Summary:      &earnings,
		},
		{
			Title:        fmt.Sprintf("Technical Analysis: %s Shows Bullish Patterns", symbol),
			URL:          "https://example.com/news/2",
			PublishedUTC: "2025-01-06T13:15:00Z",
			Source:       "MarketWatch (Mock)",
			Summary:      &technical,
		},
	}
	if limit < len(articles) {
		articles = articles[:limit]
	}
	return articles, nil
}

// truncateSummary caps provider summaries at 200 characters; empty input maps
// to absent. Truncation is on rune boundaries so multi-byte text stays valid.
func truncateSummary(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if runes := []rune(s); len(runes) > 200 {
		s = string(runes[:200])
	}
	return &s
}
