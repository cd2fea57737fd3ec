package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"stockfolio-backend/internal/domain"
	"stockfolio-backend/internal/pkg/validation"
)

// DefaultFetchWorkers bounds the multi-symbol fetch pool.
const DefaultFetchWorkers = 10

// indexSymbols are the tickers reported by MarketSummary.
var indexSymbols = map[string]string{
	"^GSPC": "S&P 500",
	"^DJI":  "Dow Jones",
	"^IXIC": "NASDAQ",
	"^VIX":  "VIX",
}

// Provider produces best-effort current prices for symbols, with write-through
// caching and bounded concurrent multi-symbol fetches.
type Provider struct {
	client  Client
	cache   *Cache
	workers int
	loc     *time.Location
	now     func() time.Time
}

// ProviderOption customizes a Provider.
type ProviderOption func(*Provider)

// WithWorkers sets the fetch pool width.
func WithWorkers(n int) ProviderOption {
	return func(p *Provider) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithExchangeTimezone sets the timezone used by the market-hours fallback.
// Unknown names keep UTC.
func WithExchangeTimezone(name string) ProviderOption {
	return func(p *Provider) {
		if loc, err := time.LoadLocation(name); err == nil {
			p.loc = loc
		} else {
			log.Warn().Str("timezone", name).Msg("Unknown exchange timezone, using UTC")
		}
	}
}

// NewProvider builds a Provider around a market-data client and a price cache.
func NewProvider(client Client, cache *Cache, opts ...ProviderOption) *Provider {
	p := &Provider{
		client:  client,
		cache:   cache,
		workers: DefaultFetchWorkers,
		loc:     time.UTC,
		now:     time.Now,
	}
	if p.cache == nil {
		p.cache = NewCache(DefaultCacheTTL)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetPrice returns the current snapshot for one symbol, or (Snapshot{}, false)
// when no price is obtainable. Failures never surface as errors; callers treat
// absence as "data unavailable now".
func (p *Provider) GetPrice(ctx context.Context, symbol string, useCache bool) (Snapshot, bool) {
	symbol = validation.NormalizeSymbol(symbol)

	if symbol == domain.CashSymbol {
		return p.cashSnapshot(), true
	}

	if useCache {
		if snapshot, ok := p.cache.Get(symbol); ok {
			log.Debug().Str("symbol", symbol).Msg("Price cache hit")
			return snapshot, true
		}
	}

	quote, err := p.client.Quote(ctx, symbol)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("Quote fetch failed")
		quote = nil
	}

	price := resolvePrice(quote)
	if price == nil {
		if close, err := p.client.DailyClose(ctx, symbol); err != nil {
			log.Debug().Err(err).Str("symbol", symbol).Msg("History fetch failed")
		} else if close != nil {
			log.Info().Str("symbol", symbol).Msg("Using historical close price")
			price = close
		}
	}
	if price == nil {
		log.Warn().Str("symbol", symbol).Msg("No price data available")
		return Snapshot{}, false
	}

	snapshot := Snapshot{
		Symbol:      symbol,
		Price:       *price,
		Currency:    "USD",
		MarketState: p.marketState(quote),
		LastUpdated: p.now(),
	}
	if quote != nil {
		if quote.Currency != "" {
			snapshot.Currency = quote.Currency
		}
		snapshot.MarketCap = quote.MarketCap
		snapshot.PERatio = quote.TrailingPE
		snapshot.DividendYield = quote.DividendYield
		snapshot.FiftyTwoWeekHigh = quote.FiftyTwoWeekHigh
		snapshot.FiftyTwoWeekLow = quote.FiftyTwoWeekLow
		snapshot.Volume = quote.Volume
		snapshot.AvgVolume = quote.AverageVolume
	}

	if useCache {
		p.cache.Set(symbol, snapshot)
	}
	log.Info().Str("symbol", symbol).Float64("price", snapshot.Price).Msg("Fetched price")
	return snapshot, true
}

// GetPrices fetches snapshots for many symbols. Cached symbols are served
// first; the rest fan out over a bounded worker pool. A failed symbol is
// simply absent from nothing but its own entry.
func (p *Provider) GetPrices(ctx context.Context, symbols []string, useCache bool) map[string]*Snapshot {
	results := make(map[string]*Snapshot, len(symbols))
	var toFetch []string

	for _, raw := range symbols {
		symbol := validation.NormalizeSymbol(raw)
		if _, seen := results[symbol]; seen {
			continue
		}
		results[symbol] = nil
		if useCache && symbol != domain.CashSymbol {
			if snapshot, ok := p.cache.Get(symbol); ok {
				s := snapshot
				results[symbol] = &s
				continue
			}
		}
		toFetch = append(toFetch, symbol)
	}

	if len(toFetch) == 0 {
		return results
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan string)
	)
	workers := p.workers
	if workers > len(toFetch) {
		workers = len(toFetch)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				snapshot, ok := p.GetPrice(ctx, symbol, false)
				if !ok {
					continue
				}
				if useCache && symbol != domain.CashSymbol {
					p.cache.Set(symbol, snapshot)
				}
				mu.Lock()
				s := snapshot
				results[symbol] = &s
				mu.Unlock()
			}
		}()
	}
	for _, symbol := range toFetch {
		jobs <- symbol
	}
	close(jobs)
	wg.Wait()

	return results
}

// RefreshPrices fetches fresh snapshots for all symbols, bypassing the cache.
func (p *Provider) RefreshPrices(ctx context.Context, symbols []string) map[string]*Snapshot {
	log.Info().Int("count", len(symbols)).Msg("Refreshing prices")
	results := p.GetPrices(ctx, symbols, false)

	updated := 0
	for _, snapshot := range results {
		if snapshot != nil {
			updated++
		}
	}
	log.Info().Int("updated", updated).Int("total", len(symbols)).Msg("Price refresh complete")
	return results
}

// Validate reports whether a fetch for symbol would yield at least one price
// field. The cash sentinel is always valid.
func (p *Provider) Validate(ctx context.Context, symbol string) bool {
	symbol = validation.NormalizeSymbol(symbol)
	if symbol == "" {
		return false
	}
	if symbol == domain.CashSymbol {
		return true
	}
	quote, err := p.client.Quote(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Symbol validation failed")
		return false
	}
	return resolvePrice(quote) != nil
}

// ValidateSymbols validates many symbols, keyed by normalized symbol.
func (p *Provider) ValidateSymbols(ctx context.Context, symbols []string) map[string]bool {
	results := make(map[string]bool, len(symbols))
	for _, raw := range symbols {
		symbol := validation.NormalizeSymbol(raw)
		results[symbol] = p.Validate(ctx, symbol)
	}
	return results
}

// MarketSummary reports the major index snapshots plus cache statistics.
func (p *Provider) MarketSummary(ctx context.Context) map[string]interface{} {
	indices := make(map[string]interface{}, len(indexSymbols))
	for symbol, name := range indexSymbols {
		if snapshot, ok := p.GetPrice(ctx, symbol, true); ok {
			indices[name] = map[string]interface{}{
				"symbol":       symbol,
				"price":        snapshot.Price,
				"last_updated": snapshot.LastUpdated,
			}
		}
	}
	return map[string]interface{}{
		"indices":      indices,
		"cache_info":   p.cache.Stats(),
		"last_updated": p.now(),
	}
}

// ClearCache drops all cached snapshots.
func (p *Provider) ClearCache() {
	p.cache.Clear()
	log.Info().Msg("Price cache cleared")
}

// CacheStats exposes the underlying cache statistics.
func (p *Provider) CacheStats() CacheStats {
	return p.cache.Stats()
}

func (p *Provider) cashSnapshot() Snapshot {
	one := 1.0
	return Snapshot{
		Symbol:           domain.CashSymbol,
		Price:            1.0,
		Currency:         "USD",
		FiftyTwoWeekHigh: &one,
		FiftyTwoWeekLow:  &one,
		MarketState:      StateAlwaysOpen,
		LastUpdated:      p.now(),
	}
}

// resolvePrice applies the field preference order: current price, regular
// market price, previous close, open, then the fast-path last trade.
func resolvePrice(quote *Quote) *float64 {
	if quote == nil {
		return nil
	}
	for _, field := range []*float64{
		quote.CurrentPrice,
		quote.RegularMarketPrice,
		quote.PreviousClose,
		quote.Open,
		quote.LastPrice,
	} {
		if field != nil {
			return field
		}
	}
	return nil
}

// marketState uses the source's own state when it is one of the known values,
// otherwise falls back to exchange hours (weekdays 09:30-16:00) in the
// configured exchange timezone.
func (p *Provider) marketState(quote *Quote) string {
	if quote != nil {
		switch quote.MarketState {
		case StateRegular, StateClosed, StatePre, StatePost, StateAlwaysOpen:
			return quote.MarketState
		}
	}

	now := p.now().In(p.loc)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return StateClosed
	}
	open := time.Date(now.Year(), now.Month(), now.Day(), 9, 30, 0, 0, p.loc)
	close := time.Date(now.Year(), now.Month(), now.Day(), 16, 0, 0, 0, p.loc)
	switch {
	case now.Before(open):
		return StatePre
	case now.After(close):
		return StatePost
	default:
		return StateRegular
	}
}
