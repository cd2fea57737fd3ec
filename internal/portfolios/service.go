package portfolios

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"stockfolio-backend/internal/domain"
	"stockfolio-backend/internal/marketdata"
	"stockfolio-backend/internal/pkg/validation"
)

// PriceSource is the slice of the market-data provider the portfolio service
// needs; satisfied by *marketdata.Provider.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string, useCache bool) (marketdata.Snapshot, bool)
	RefreshPrices(ctx context.Context, symbols []string) map[string]*marketdata.Snapshot
	ValidateSymbols(ctx context.Context, symbols []string) map[string]bool
}

// Service encapsulates portfolio and holding operations.
type Service struct {
	DB     *gorm.DB
	Prices PriceSource
}

// HoldingInput is the validated payload for creating/updating a holding.
type HoldingInput struct {
	Symbol           string  `json:"symbol"`
	Shares           float64 `json:"shares"`
	TargetAllocation float64 `json:"target_allocation"`
}

func (in *HoldingInput) validate() error {
	in.Symbol = validation.NormalizeSymbol(in.Symbol)
	if in.Symbol == "" {
		return errors.New("symbol cannot be empty")
	}
	if !validation.IsValidSymbol(in.Symbol) {
		return fmt.Errorf("invalid symbol %q", in.Symbol)
	}
	if !validation.IsValidShares(in.Shares) {
		return errors.New("shares must be non-negative")
	}
	if !validation.IsValidTargetAllocation(in.TargetAllocation) {
		return errors.New("target allocation must be between 0.01 and 100")
	}
	return nil
}

// List returns all portfolios ordered by name.
func (s *Service) List(ctx context.Context) ([]domain.Portfolio, error) {
	var portfolios []domain.Portfolio
	if err := s.DB.WithContext(ctx).Order("name").Find(&portfolios).Error; err != nil {
		return nil, err
	}
	return portfolios, nil
}

// Get returns one portfolio by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Portfolio, error) {
	var portfolio domain.Portfolio
	err := s.DB.WithContext(ctx).Where("portfolio_id = ?", id).First(&portfolio).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPortfolioNotFound
		}
		return nil, err
	}
	return &portfolio, nil
}

// Create makes a new empty portfolio. Names are unique across portfolios.
func (s *Service) Create(ctx context.Context, name string) (*domain.Portfolio, error) {
	name = strings.TrimSpace(name)
	if !validation.IsValidName(name) {
		return nil, errors.New("portfolio name cannot be empty")
	}

	var count int64
	if err := s.DB.WithContext(ctx).Model(&domain.Portfolio{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrDuplicateName
	}

	portfolio := &domain.Portfolio{Name: name}
	if err := s.DB.WithContext(ctx).Create(portfolio).Error; err != nil {
		return nil, err
	}
	return portfolio, nil
}

// Update renames a portfolio, preserving name uniqueness.
func (s *Service) Update(ctx context.Context, id uuid.UUID, name string) (*domain.Portfolio, error) {
	name = strings.TrimSpace(name)
	if !validation.IsValidName(name) {
		return nil, errors.New("portfolio name cannot be empty")
	}

	portfolio, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := s.DB.WithContext(ctx).Model(&domain.Portfolio{}).
		Where("name = ? AND portfolio_id <> ?", name, id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrDuplicateName
	}

	portfolio.Name = name
	if err := s.DB.WithContext(ctx).Save(portfolio).Error; err != nil {
		return nil, err
	}
	return portfolio, nil
}

// Delete removes a portfolio and cascades to its holdings.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("portfolio_id = ?", id).Delete(&domain.Holding{}).Error; err != nil {
			return err
		}
		return tx.Where("portfolio_id = ?", id).Delete(&domain.Portfolio{}).Error
	})
}

// Holdings returns a portfolio's holdings sorted by symbol.
func (s *Service) Holdings(ctx context.Context, portfolioID uuid.UUID) ([]domain.Holding, error) {
	var holdings []domain.Holding
	err := s.DB.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Order("symbol").
		Find(&holdings).Error
	if err != nil {
		return nil, err
	}
	return holdings, nil
}

// GetHolding returns one holding by portfolio and symbol.
func (s *Service) GetHolding(ctx context.Context, portfolioID uuid.UUID, symbol string) (*domain.Holding, error) {
	symbol = validation.NormalizeSymbol(symbol)
	var holding domain.Holding
	err := s.DB.WithContext(ctx).
		Where("portfolio_id = ? AND symbol = ?", portfolioID, symbol).
		First(&holding).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHoldingNotFound
		}
		return nil, err
	}
	return &holding, nil
}

// AddHolding appends a holding to a portfolio. Symbols are unique within one
// portfolio.
func (s *Service) AddHolding(ctx context.Context, portfolioID uuid.UUID, in HoldingInput) (*domain.Holding, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, portfolioID); err != nil {
		return nil, err
	}
	if _, err := s.GetHolding(ctx, portfolioID, in.Symbol); err == nil {
		return nil, ErrDuplicateHolding
	} else if !errors.Is(err, ErrHoldingNotFound) {
		return nil, err
	}

	holding := &domain.Holding{
		PortfolioID:      portfolioID,
		Symbol:           in.Symbol,
		Shares:           in.Shares,
		TargetAllocation: in.TargetAllocation,
	}
	if err := s.DB.WithContext(ctx).Create(holding).Error; err != nil {
		return nil, err
	}
	return holding, nil
}

// UpdateHolding mutates shares and target allocation of an existing holding.
func (s *Service) UpdateHolding(ctx context.Context, portfolioID uuid.UUID, symbol string, shares, target float64) (*domain.Holding, error) {
	in := HoldingInput{Symbol: symbol, Shares: shares, TargetAllocation: target}
	if err := in.validate(); err != nil {
		return nil, err
	}

	holding, err := s.GetHolding(ctx, portfolioID, in.Symbol)
	if err != nil {
		return nil, err
	}
	holding.Shares = shares
	holding.TargetAllocation = target
	if err := s.DB.WithContext(ctx).Save(holding).Error; err != nil {
		return nil, err
	}
	return holding, nil
}

// DeleteHolding removes one holding from a portfolio.
func (s *Service) DeleteHolding(ctx context.Context, portfolioID uuid.UUID, symbol string) error {
	holding, err := s.GetHolding(ctx, portfolioID, symbol)
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Delete(holding).Error
}

// RefreshResult reports the outcome of a bulk price refresh.
type RefreshResult struct {
	UpdatedCount  int      `json:"updated_count"`
	FailedCount   int      `json:"failed_count"`
	TotalCount    int      `json:"total_count"`
	FailedSymbols []string `json:"failed_symbols,omitempty"`
	Message       string   `json:"message"`
}

// RefreshPrices re-fetches prices for every holding, bypassing the cache, and
// stores the results. Individual symbol failures are reported, not fatal.
func (s *Service) RefreshPrices(ctx context.Context, portfolioID uuid.UUID) (*RefreshResult, error) {
	if _, err := s.Get(ctx, portfolioID); err != nil {
		return nil, err
	}
	holdings, err := s.Holdings(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return &RefreshResult{Message: "No holdings to update"}, nil
	}

	symbols := make([]string, len(holdings))
	for i, h := range holdings {
		symbols[i] = h.Symbol
	}
	snapshots := s.Prices.RefreshPrices(ctx, symbols)

	result := &RefreshResult{TotalCount: len(holdings)}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range holdings {
			holding := &holdings[i]
			snapshot := snapshots[holding.Symbol]
			if snapshot == nil {
				result.FailedCount++
				result.FailedSymbols = append(result.FailedSymbols, holding.Symbol)
				continue
			}
			holding.LastPrice = &snapshot.Price
			if err := tx.Model(&domain.Holding{}).
				Where("holding_id = ?", holding.HoldingID).
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

// RefreshHoldingPrice refreshes the price of a single holding, bypassing the
// cache. Returns the new price.
func (s *Service) RefreshHoldingPrice(ctx context.Context, portfolioID uuid.UUID, symbol string) (float64, error) {
	holding, err := s.GetHolding(ctx, portfolioID, symbol)
	if err != nil {
		return 0, err
	}

	snapshot, ok := s.Prices.GetPrice(ctx, holding.Symbol, false)
	if !ok {
		return 0, fmt.Errorf("failed to fetch price for %s", holding.Symbol)
	}

	if err := s.DB.WithContext(ctx).Model(holding).Update("last_price", snapshot.Price).Error; err != nil {
		return 0, err
	}
	return snapshot.Price, nil
}

// HoldingBreakdown is one row of a portfolio valuation.
type HoldingBreakdown struct {
	Symbol            string   `json:"symbol"`
	Shares            float64  `json:"shares"`
	CurrentPrice      *float64 `json:"current_price"`
	CurrentValue      float64  `json:"current_value"`
	TargetAllocation  float64  `json:"target_allocation"`
	CurrentAllocation float64  `json:"current_allocation"`
}

// AllocationDriftEntry flags a holding whose current allocation strays from
// target by more than one percentage point.
type AllocationDriftEntry struct {
	Symbol  string  `json:"symbol"`
	Target  float64 `json:"target"`
	Current float64 `json:"current"`
	Drift   float64 `json:"drift"`
}

// Valuation aggregates a portfolio's market value and allocation analysis.
type Valuation struct {
	TotalValue         float64                `json:"total_value"`
	Holdings           []HoldingBreakdown     `json:"holdings_breakdown"`
	TotalTarget        float64                `json:"total_target_allocation"`
	IsAllocationValid  bool                   `json:"is_allocation_valid"`
	SignificantDrifts  []AllocationDriftEntry `json:"significant_drifts"`
	HoldingsWithPrices int                    `json:"holdings_with_prices"`
	TotalHoldings      int                    `json:"total_holdings"`
	PriceCoverage      float64                `json:"price_coverage"`
}

// Valuation computes totals and allocation percentages. Holdings without a
// price contribute zero value; the whole call never fails for partial data.
func (s *Service) Valuation(ctx context.Context, portfolioID uuid.UUID) (*Valuation, error) {
	if _, err := s.Get(ctx, portfolioID); err != nil {
		return nil, err
	}
	holdings, err := s.Holdings(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	v := &Valuation{TotalHoldings: len(holdings)}
	for _, h := range holdings {
		value := h.CurrentValue()
		row := HoldingBreakdown{
			Symbol:           h.Symbol,
			Shares:           h.Shares,
			CurrentPrice:     h.LastPrice,
			CurrentValue:     value,
			TargetAllocation: h.TargetAllocation,
		}
		if h.IsCash() || h.LastPrice != nil {
			v.TotalValue += value
			v.HoldingsWithPrices++
		}
		v.TotalTarget += h.TargetAllocation
		v.Holdings = append(v.Holdings, row)
	}

	if v.TotalValue > 0 {
		for i := range v.Holdings {
			row := &v.Holdings[i]
			if row.CurrentValue > 0 {
				row.CurrentAllocation = row.CurrentValue / v.TotalValue * 100
			}
			if drift := row.CurrentAllocation - row.TargetAllocation; math.Abs(drift) > 1.0 {
				v.SignificantDrifts = append(v.SignificantDrifts, AllocationDriftEntry{
					Symbol:  row.Symbol,
					Target:  row.TargetAllocation,
					Current: row.CurrentAllocation,
					Drift:   drift,
				})
			}
		}
	}
	v.IsAllocationValid = math.Abs(v.TotalTarget-100.0) < 0.01
	if len(holdings) > 0 {
		v.PriceCoverage = float64(v.HoldingsWithPrices) / float64(len(holdings)) * 100
	}
	return v, nil
}

// SymbolValidation reports which of a portfolio's symbols the market-data
// source recognizes.
type SymbolValidation struct {
	ValidSymbols   []string        `json:"valid_symbols"`
	InvalidSymbols []string        `json:"invalid_symbols"`
	AllValid       bool            `json:"all_valid"`
	Results        map[string]bool `json:"validation_results"`
}

// ValidateSymbols checks every holding's symbol against the market-data source.
func (s *Service) ValidateSymbols(ctx context.Context, portfolioID uuid.UUID) (*SymbolValidation, error) {
	holdings, err := s.Holdings(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	out := &SymbolValidation{AllValid: true, Results: map[string]bool{}}
	if len(holdings) == 0 {
		return out, nil
	}

	symbols := make([]string, len(holdings))
	for i, h := range holdings {
		symbols[i] = h.Symbol
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

// Summary holds quick portfolio statistics.
type Summary struct {
	TotalHoldings      int     `json:"total_holdings"`
	TotalValue         float64 `json:"total_value"`
	TotalTarget        float64 `json:"total_target_allocation"`
	IsAllocationValid  bool    `json:"is_allocation_valid"`
	HoldingsWithPrices int     `json:"holdings_with_prices"`
}

// Summary computes quick portfolio statistics.
func (s *Service) Summary(ctx context.Context, portfolioID uuid.UUID) (*Summary, error) {
	holdings, err := s.Holdings(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	out := &Summary{TotalHoldings: len(holdings)}
	for _, h := range holdings {
		if h.IsCash() || h.LastPrice != nil {
			out.TotalValue += h.CurrentValue()
			out.HoldingsWithPrices++
		}
		out.TotalTarget += h.TargetAllocation
	}
	out.IsAllocationValid = math.Abs(out.TotalTarget-100.0) < 0.01
	return out, nil
}

// ImportResult reports a CSV import outcome.
type ImportResult struct {
	ImportedCount int      `json:"imported_count"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings,omitempty"`
	Success       bool     `json:"success"`
}

// ImportCSV replaces a portfolio's holdings with the rows of an import file.
// A file with any validation error imports nothing, so a bad upload can never
// destroy existing holdings. The replace is a single transaction: a commit
// failure restores the previous holdings.
func (s *Service) ImportCSV(ctx context.Context, portfolioID uuid.UUID, r io.Reader) (*ImportResult, error) {
	if _, err := s.Get(ctx, portfolioID); err != nil {
		return nil, err
	}

	parsed := ParseHoldingsCSV(r)
	result := &ImportResult{Errors: parsed.Errors, Warnings: parsed.Warnings}
	if len(parsed.Errors) > 0 || len(parsed.Holdings) == 0 {
		return result, nil
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("portfolio_id = ?", portfolioID).Delete(&domain.Holding{}).Error; err != nil {
			return err
		}
		for _, row := range parsed.Holdings {
			holding := domain.Holding{
				PortfolioID:      portfolioID,
				Symbol:           row.Symbol,
				Shares:           row.Shares,
				TargetAllocation: row.Allocation,
			}
			if err := tx.Create(&holding).Error; err != nil {
				return err
			}
			result.ImportedCount++
		}
		return nil
	})
	if err != nil {
		result.ImportedCount = 0
		return nil, fmt.Errorf("failed to save holdings: %w", err)
	}

	result.Success = true
	log.Info().Str("portfolio_id", portfolioID.String()).Int("imported", result.ImportedCount).Msg("CSV import complete")
	return result, nil
}
