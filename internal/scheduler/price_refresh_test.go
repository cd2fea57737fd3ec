package scheduler

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"stockfolio-backend/internal/domain"
	"stockfolio-backend/internal/marketdata"
)

type fixedClient struct {
	prices map[string]float64
}

func (c *fixedClient) Quote(_ context.Context, symbol string) (*marketdata.Quote, error) {
	price, ok := c.prices[symbol]
	if !ok {
		return nil, nil
	}
	return &marketdata.Quote{CurrentPrice: &price, Currency: "USD"}, nil
}

func (c *fixedClient) DailyClose(_ context.Context, _ string) (*float64, error) {
	return nil, nil
}

func TestPriceRefreshJob(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Portfolio{}, &domain.Holding{}, &domain.Watchlist{}, &domain.WatchedItem{}))

	portfolio := domain.Portfolio{Name: "Growth"}
	require.NoError(t, db.Create(&portfolio).Error)
	require.NoError(t, db.Create(&domain.Holding{PortfolioID: portfolio.PortfolioID, Symbol: "AAPL", Shares: 10, TargetAllocation: 50}).Error)
	require.NoError(t, db.Create(&domain.Holding{PortfolioID: portfolio.PortfolioID, Symbol: domain.CashSymbol, Shares: 100, TargetAllocation: 50}).Error)

	watchlist := domain.Watchlist{Name: "Tech"}
	require.NoError(t, db.Create(&watchlist).Error)
	require.NoError(t, db.Create(&domain.WatchedItem{WatchlistID: watchlist.WatchlistID, Symbol: "AAPL"}).Error)
	require.NoError(t, db.Create(&domain.WatchedItem{WatchlistID: watchlist.WatchlistID, Symbol: "ZZZZ"}).Error)

	provider := marketdata.NewProvider(&fixedClient{prices: map[string]float64{"AAPL": 175}}, marketdata.NewCache(marketdata.DefaultCacheTTL))
	job := &PriceRefreshJob{DB: db, Prices: provider}
	assert.Equal(t, "price-refresh", job.Name())
	require.NoError(t, job.Run())

	var holding domain.Holding
	require.NoError(t, db.Where("symbol = ?", "AAPL").First(&holding).Error)
	require.NotNil(t, holding.LastPrice)
	assert.Equal(t, 175.0, *holding.LastPrice)

	var item domain.WatchedItem
	require.NoError(t, db.Where("watchlist_id = ? AND symbol = ?", watchlist.WatchlistID, "AAPL").First(&item).Error)
	require.NotNil(t, item.LastPrice)
	assert.Equal(t, 175.0, *item.LastPrice)

	var missing domain.WatchedItem
	require.NoError(t, db.Where("watchlist_id = ? AND symbol = ?", watchlist.WatchlistID, "ZZZZ").First(&missing).Error)
	assert.Nil(t, missing.LastPrice)
}
