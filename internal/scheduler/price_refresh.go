package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"stockfolio-backend/internal/domain"
	"stockfolio-backend/internal/marketdata"
)

// PriceRefreshJob periodically refreshes stored prices for every portfolio
// holding and watched item so valuations stay warm between user visits.
type PriceRefreshJob struct {
	DB      *gorm.DB
	Prices  *marketdata.Provider
	Timeout time.Duration
}

func (j *PriceRefreshJob) Name() string { return "price-refresh" }

func (j *PriceRefreshJob) Run() error {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	symbols, err := j.collectSymbols(ctx)
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		return nil
	}

	snapshots := j.Prices.RefreshPrices(ctx, symbols)

	updated := 0
	failed := 0
	for symbol, snapshot := range snapshots {
		if snapshot == nil {
			failed++
			continue
		}
		if err := j.DB.WithContext(ctx).Model(&domain.Holding{}).
			Where("symbol = ?", symbol).
			Update("last_price", snapshot.Price).Error; err != nil {
			return err
		}
		if err := j.DB.WithContext(ctx).Model(&domain.WatchedItem{}).
			Where("symbol = ?", symbol).
			Update("last_price", snapshot.Price).Error; err != nil {
			return err
		}
		updated++
	}

	log.Info().
		Int("symbols", len(symbols)).
		Int("updated", updated).
		Int("failed", failed).
		Msg("periodic price refresh complete")
	return nil
}

// collectSymbols gathers the distinct non-cash symbols across all portfolios
// and watchlists.
func (j *PriceRefreshJob) collectSymbols(ctx context.Context) ([]string, error) {
	var holdingSymbols []string
	err := j.DB.WithContext(ctx).Model(&domain.Holding{}).
		Distinct("symbol").Pluck("symbol", &holdingSymbols).Error
	if err != nil {
		return nil, err
	}
	var watchedSymbols []string
	err = j.DB.WithContext(ctx).Model(&domain.WatchedItem{}).
		Distinct("symbol").Pluck("symbol", &watchedSymbols).Error
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(holdingSymbols)+len(watchedSymbols))
	var symbols []string
	for _, symbol := range append(holdingSymbols, watchedSymbols...) {
		if symbol == domain.CashSymbol || seen[symbol] {
			continue
		}
		seen[symbol] = true
		symbols = append(symbols, symbol)
	}
	return symbols, nil
}
