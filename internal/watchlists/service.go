package watchlists

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"stockfolio-backend/internal/domain"
	"stockfolio-backend/internal/marketdata"
	"stockfolio-backend/internal/news"
	"stockfolio-backend/internal/pkg/validation"
)

// PriceSource is the slice of the market-data provider watchlists need.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string, useCache bool) (marketdata.Snapshot, bool)
	RefreshPrices(ctx context.Context, symbols []string) map[string]*marketdata.Snapshot
	ValidateSymbols(ctx context.Context, symbols []string) map[string]bool
}

// NewsSource is the slice of the news chain watchlists need.
type NewsSource interface {
	GetOrRefresh(ctx context.Context, symbol string, lastUpdate *time.Time, cached datatypes.JSON) ([]news.Article, bool)
}

// Service encapsulates watchlist operations.
type Service struct {
	DB     *gorm.DB
	Prices PriceSource
	News   NewsSource
}

// List returns all watchlists ordered by name.
func (s *Service) List(ctx context.Context) ([]domain.Watchlist, error) {
	var watchlists []domain.Watchlist
	if err := s.DB.WithContext(ctx).Order("name").Find(&watchlists).Error; err != nil {
		return nil, err
	}
	return watchlists, nil
}

// Get returns one watchlist by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Watchlist, error) {
	var watchlist domain.Watchlist
	err := s.DB.WithContext(ctx).Where("watchlist_id = ?", id).First(&watchlist).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWatchlistNotFound
		}
		return nil, err
	}
	return &watchlist, nil
}

// Create makes a new empty watchlist. Names are unique.
func (s *Service) Create(ctx context.Context, name string) (*domain.Watchlist, error) {
	name = strings.TrimSpace(name)
	if !validation.IsValidName(name) {
		return nil, errors.New("watchlist name cannot be empty")
	}

	var count int64
	if err := s.DB.WithContext(ctx).Model(&domain.Watchlist{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrDuplicateName
	}

	watchlist := &domain.Watchlist{Name: name}
	if err := s.DB.WithContext(ctx).Create(watchlist).Error; err != nil {
		return nil, err
	}
	return watchlist, nil
}

// Update renames a watchlist.
func (s *Service) Update(ctx context.Context, id uuid.UUID, name string) (*domain.Watchlist, error) {
	name = strings.TrimSpace(name)
	if !validation.IsValidName(name) {
		return nil, errors.New("watchlist name cannot be empty")
	}

	watchlist, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := s.DB.WithContext(ctx).Model(&domain.Watchlist{}).
		Where("name = ? AND watchlist_id <> ?", name, id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrDuplicateName
	}

	watchlist.Name = name
	if err := s.DB.WithContext(ctx).Save(watchlist).Error; err != nil {
		return nil, err
	}
	return watchlist, nil
}

// Delete removes a watchlist and cascades to its items.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("watchlist_id = ?", id).Delete(&domain.WatchedItem{}).Error; err != nil {
			return err
		}
		return tx.Where("watchlist_id = ?", id).Delete(&domain.Watchlist{}).Error
	})
}

// Items returns all watched items ordered by their display position.
func (s *Service) Items(ctx context.Context, watchlistID uuid.UUID) ([]domain.WatchedItem, error) {
	var items []domain.WatchedItem
	err := s.DB.WithContext(ctx).
		Where("watchlist_id = ?", watchlistID).
		Order("order_index, symbol").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// GetItem returns one watched item by watchlist and symbol.
func (s *Service) GetItem(ctx context.Context, watchlistID uuid.UUID, symbol string) (*domain.WatchedItem, error) {
	symbol = validation.NormalizeSymbol(symbol)
	var item domain.WatchedItem
	err := s.DB.WithContext(ctx).
		Where("watchlist_id = ? AND symbol = ?", watchlistID, symbol).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

// AddItem appends a symbol to a watchlist, fetching its current price
// best-effort, and places it at the end of the display order.
func (s *Service) AddItem(ctx context.Context, watchlistID uuid.UUID, symbol string, notes *string) (*domain.WatchedItem, error) {
	symbol = validation.NormalizeSymbol(symbol)
	if symbol == "" || !validation.IsValidSymbol(symbol) {
		return nil, fmt.Errorf("invalid symbol %q", symbol)
	}
	if !validation.IsValidNotes(notes) {
		return nil, errors.New("notes cannot exceed 500 characters")
	}
	if _, err := s.Get(ctx, watchlistID); err != nil {
		return nil, err
	}
	if _, err := s.GetItem(ctx, watchlistID, symbol); err == nil {
		return nil, ErrDuplicateSymbol
	} else if !errors.Is(err, ErrItemNotFound) {
		return nil, err
	}

	var lastPrice *float64
	if snapshot, ok := s.Prices.GetPrice(ctx, symbol, true); ok {
		lastPrice = &snapshot.Price
	}

	var count int64
	if err := s.DB.WithContext(ctx).Model(&domain.WatchedItem{}).
		Where("watchlist_id = ?", watchlistID).Count(&count).Error; err != nil {
		return nil, err
	}

	item := &domain.WatchedItem{
		WatchlistID: watchlistID,
		Symbol:      symbol,
		Notes:       notes,
		LastPrice:   lastPrice,
		OrderIndex:  int(count),
	}
	if err := s.DB.WithContext(ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateItem replaces an item's notes.
func (s *Service) UpdateItem(ctx context.Context, watchlistID uuid.UUID, symbol string, notes *string) (*domain.WatchedItem, error) {
	if !validation.IsValidNotes(notes) {
		return nil, errors.New("notes cannot exceed 500 characters")
	}
	item, err := s.GetItem(ctx, watchlistID, symbol)
	if err != nil {
		return nil, err
	}
	item.Notes = notes
	if err := s.DB.WithContext(ctx).Model(item).Update("notes", notes).Error; err != nil {
		return nil, err
	}
	return item, nil
}

// DeleteItem removes a symbol from a watchlist.
func (s *Service) DeleteItem(ctx context.Context, watchlistID uuid.UUID, symbol string) error {
	item, err := s.GetItem(ctx, watchlistID, symbol)
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Delete(item).Error
}

// Reorder rewrites the display order from a full symbol list. The list must
// contain exactly the watchlist's symbols.
func (s *Service) Reorder(ctx context.Context, watchlistID uuid.UUID, symbolOrder []string) error {
	items, err := s.Items(ctx, watchlistID)
	if err != nil {
		return err
	}

	bySymbol := make(map[string]*domain.WatchedItem, len(items))
	for i := range items {
		bySymbol[items[i].Symbol] = &items[i]
	}

	normalized := make([]string, len(symbolOrder))
	requested := make(map[string]bool, len(symbolOrder))
	for i, symbol := range symbolOrder {
		normalized[i] = validation.NormalizeSymbol(symbol)
		requested[normalized[i]] = true
	}

	var missing, extra []string
	for symbol := range bySymbol {
		if !requested[symbol] {
			missing = append(missing, symbol)
		}
	}
	for symbol := range requested {
		if _, ok := bySymbol[symbol]; !ok {
			extra = append(extra, symbol)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		var parts []string
		if len(missing) > 0 {
			parts = append(parts, "missing symbols in order: "+strings.Join(missing, ", "))
		}
		if len(extra) > 0 {
			parts = append(parts, "extra symbols in order: "+strings.Join(extra, ", "))
		}
		return errors.New(strings.Join(parts, "; "))
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for index, symbol := range normalized {
			if err := tx.Model(&domain.WatchedItem{}).
				Where("item_id = ?", bySymbol[symbol].ItemID).
				Update("order_index", index).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// RefreshResult reports the outcome of a bulk price refresh.
type RefreshResult struct {
	UpdatedCount  int      `json:"updated_count"`
	FailedCount   int      `json:"failed_count"`
	TotalCount    int      `json:"total_count"`
	FailedSymbols []string `json:"failed_symbols,omitempty"`
	Message       string   `json:"message"`
}

// RefreshPrices re-fetches prices for every watched item, bypassing the cache.
func (s *Service) RefreshPrices(ctx context.Context, watchlistID uuid.UUID) (*RefreshResult, error) {
	if _, err := s.Get(ctx, watchlistID); err != nil {
		return nil, err
	}
	items, err := s.Items(ctx, watchlistID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return &RefreshResult{Message: "No items to update"}, nil
	}

	symbols := make([]string, len(items))
	for i, item := range items {
		symbols[i] = item.Symbol
	}
	snapshots := s.Prices.RefreshPrices(ctx, symbols)

	result := &RefreshResult{TotalCount: len(items)}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range items {
			item := &items[i]
			snapshot := snapshots[item.Symbol]
			if snapshot == nil {
				result.FailedCount++
				result.FailedSymbols = append(result.FailedSymbols, item.Symbol)
				continue
			}
			if err := tx.Model(&domain.WatchedItem{}).
				Where("item_id = ?", item.ItemID).
				Update("last_price", snapshot.Price).Error; err != nil {
				return err
			}
			result.UpdatedCount++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save price updates: %w", err)
	}

	result.Message = fmt.Sprintf("Updated %d/%d prices", result.UpdatedCount, result.TotalCount)
	return result, nil
}

// RefreshItemPrice refreshes a single item's price, bypassing the cache.
func (s *Service) RefreshItemPrice(ctx context.Context, watchlistID uuid.UUID, symbol string) (float64, error) {
	item, err := s.GetItem(ctx, watchlistID, symbol)
	if err != nil {
		return 0, err
	}
	snapshot, ok := s.Prices.GetPrice(ctx, item.Symbol, false)
	if !ok {
		return 0, fmt.Errorf("failed to fetch price for %s", item.Symbol)
	}
	if err := s.DB.WithContext(ctx).Model(item).Update("last_price", snapshot.Price).Error; err != nil {
		return 0, err
	}
	return snapshot.Price, nil
}

// ItemNews returns an item's news, serving the stored payload while it is
// within the news cache TTL and refreshing through the source chain when it
// is stale. Refreshed payloads are persisted alongside the item.
func (s *Service) ItemNews(ctx context.Context, watchlistID uuid.UUID, symbol string, limit int) ([]news.Article, bool, error) {
	item, err := s.GetItem(ctx, watchlistID, symbol)
	if err != nil {
		return nil, false, err
	}

	articles, fresh := s.News.GetOrRefresh(ctx, item.Symbol, item.LastNewsUpdate, item.NewsData)
	if fresh {
		fetchedAt := time.Now().UTC()
		payload, err := news.MarshalPayload(articles, fetchedAt)
		if err != nil {
			// Serve the fresh articles even if persisting the cache fails.
			log.Warn().Err(err).Str("symbol", item.Symbol).Msg("failed to encode news payload")
		} else {
			err = s.DB.WithContext(ctx).Model(item).Updates(map[string]interface{}{
				"news_data":        payload,
				"last_news_update": fetchedAt,
			}).Error
			if err != nil {
				log.Warn().Err(err).Str("symbol", item.Symbol).Msg("failed to persist news payload")
			}
		}
	}
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}
	return articles, fresh, nil
}

// Summary holds quick watchlist statistics.
type Summary struct {
	TotalItems      int     `json:"total_items"`
	ItemsWithPrices int     `json:"items_with_prices"`
	ItemsWithNotes  int     `json:"items_with_notes"`
	PriceCoverage   float64 `json:"price_coverage"`
	AveragePrice    float64 `json:"average_price"`
}

// Summary computes quick statistics over a watchlist.
func (s *Service) Summary(ctx context.Context, watchlistID uuid.UUID) (*Summary, error) {
	items, err := s.Items(ctx, watchlistID)
	if err != nil {
		return nil, err
	}

	out := &Summary{TotalItems: len(items)}
	priceSum := 0.0
	for _, item := range items {
		if item.LastPrice != nil {
			out.ItemsWithPrices++
			priceSum += *item.LastPrice
		}
		if item.Notes != nil && *item.Notes != "" {
			out.ItemsWithNotes++
		}
	}
	if out.TotalItems > 0 {
		out.PriceCoverage = float64(out.ItemsWithPrices) / float64(out.TotalItems) * 100
	}
	if out.ItemsWithPrices > 0 {
		out.AveragePrice = priceSum / float64(out.ItemsWithPrices)
	}
	return out, nil
}

// SymbolValidation reports which watched symbols the market-data source
// recognizes.
type SymbolValidation struct {
	ValidSymbols   []string        `json:"valid_symbols"`
	InvalidSymbols []string        `json:"invalid_symbols"`
	AllValid       bool            `json:"all_valid"`
	Results        map[string]bool `json:"validation_results"`
}

// ValidateSymbols checks every watched symbol against the market-data source.
func (s *Service) ValidateSymbols(ctx context.Context, watchlistID uuid.UUID) (*SymbolValidation, error) {
	items, err := s.Items(ctx, watchlistID)
	if err != nil {
		return nil, err
	}
	out := &SymbolValidation{AllValid: true, Results: map[string]bool{}}
	if len(items) == 0 {
		return out, nil
	}

	symbols := make([]string, len(items))
	for i, item := range items {
		symbols[i] = item.Symbol
	}
	out.Results = s.Prices.ValidateSymbols(ctx, symbols)
	for symbol, valid := range out.Results {
		if valid {
			out.ValidSymbols = append(out.ValidSymbols, symbol)
		} else {
			out.InvalidSymbols = append(out.InvalidSymbols, symbol)
		}
	}
	out.AllValid = len(out.InvalidSymbols) == 0
	return out, nil
}
