package news

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

// DefaultCacheTTL is how long a persisted news payload stays valid.
const DefaultCacheTTL = 4 * time.Hour

// DefaultMaxArticles bounds a single symbol's fetched article set.
const DefaultMaxArticles = 5

// Chain tries news sources in fixed priority order until one yields articles.
// The chain itself is stateless across calls apart from each source's own
// rate-limit bookkeeping.
type Chain struct {
	sources     []Source
	cacheTTL    time.Duration
	maxArticles int
	now         func() time.Time
}

// ChainOption customizes a Chain.
type ChainOption func(*Chain)

// WithCacheTTL overrides the news cache validity window.
func WithCacheTTL(ttl time.Duration) ChainOption {
	return func(c *Chain) {
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// NewChain builds the default chain: Polygon (when an API key is configured),
// Yahoo, then the mock fallback.
func NewChain(polygonAPIKey string, opts ...ChainOption) *Chain {
	c := &Chain{
		sources: []Source{
			NewPolygonSource(polygonAPIKey, ""),
			NewYahooSource(""),
			NewMockSource(),
		},
		cacheTTL:    DefaultCacheTTL,
		maxArticles: DefaultMaxArticles,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	active := 0
	for _, s := range c.sources {
		if s.Active() {
			active++
		}
	}
	log.Info().Int("sources", len(c.sources)).Int("active", active).Msg("News source chain initialized")
	return c
}

// NewChainWithSources builds a chain over an explicit source list.
func NewChainWithSources(sources []Source, opts ...ChainOption) *Chain {
	c := &Chain{
		sources:     sources,
		cacheTTL:    DefaultCacheTTL,
		maxArticles: DefaultMaxArticles,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetNews returns articles from the first source that yields any, freshest
// first. Errors and empty results fall through to the next source.
func (c *Chain) GetNews(ctx context.Context, symbol string, limit int) []Article {
	if limit <= 0 {
		limit = c.maxArticles
	}

	for _, source := range c.sources {
		if !source.Active() {
			continue
		}
		articles, err := source.Fetch(ctx, symbol, limit)
		if err != nil {
			log.Error().Err(err).Str("source", source.Name()).Str("symbol", symbol).Msg("News source failed")
			continue
		}
		if len(articles) == 0 {
			log.Info().Str("source", source.Name()).Str("symbol", symbol).Msg("No articles, trying next source")
			continue
		}
		log.Info().Str("source", source.Name()).Str("symbol", symbol).Int("count", len(articles)).Msg("Got articles")
		if len(articles) > limit {
			articles = articles[:limit]
		}
		return articles
	}

	log.Warn().Str("symbol", symbol).Msg("All news sources yielded nothing")
	return nil
}

// IsCacheValid reports whether a stored payload fetched at lastUpdate is still
// inside the cache window.
func (c *Chain) IsCacheValid(lastUpdate *time.Time) bool {
	if lastUpdate == nil {
		return false
	}
	return c.now().Sub(*lastUpdate) < c.cacheTTL
}

// GetOrRefresh returns cached articles when the payload is still valid,
// otherwise performs a full chain fetch. The second result reports whether a
// fresh fetch happened, so the caller can persist the new payload.
func (c *Chain) GetOrRefresh(ctx context.Context, symbol string, lastUpdate *time.Time, cached datatypes.JSON) ([]Article, bool) {
	if c.IsCacheValid(lastUpdate) && len(cached) > 0 {
		log.Info().Str("symbol", symbol).Msg("Using cached news")
		return ParsePayload(cached), false
	}

	log.Info().Str("symbol", symbol).Msg("Fetching fresh news")
	return c.GetNews(ctx, symbol, c.maxArticles), true
}

// RefreshMany fetches news for several symbols with a small spacing between
// them to stay polite to the providers.
func (c *Chain) RefreshMany(ctx context.Context, symbols []string) map[string][]Article {
	results := make(map[string][]Article, len(symbols))
	for i, symbol := range symbols {
		if i > 0 {
			time.Sleep(time.Second)
		}
		results[symbol] = c.GetNews(ctx, symbol, c.maxArticles)
	}
	return results
}
