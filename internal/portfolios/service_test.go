package portfolios

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"stockfolio-backend/internal/domain"
	"stockfolio-backend/internal/marketdata"
)

type stubPriceSource struct {
	prices map[string]float64
}

func (s *stubPriceSource) snapshot(symbol string) (marketdata.Snapshot, bool) {
	price, ok := s.prices[symbol]
	if !ok {
		return marketdata.Snapshot{}, false
	}
	return marketdata.Snapshot{
		Symbol:      symbol,
		Price:       price,
		Currency:    "USD",
		MarketState: marketdata.StateRegular,
		LastUpdated: time.Now().UTC(),
	}, true
}

func (s *stubPriceSource) GetPrice(_ context.Context, symbol string, _ bool) (marketdata.Snapshot, bool) {
	return s.snapshot(symbol)
}

func (s *stubPriceSource) RefreshPrices(_ context.Context, symbols []string) map[string]*marketdata.Snapshot {
	out := make(map[string]*marketdata.Snapshot, len(symbols))
	for _, symbol := range symbols {
		if snap, ok := s.snapshot(symbol); ok {
			copied := snap
			out[symbol] = &copied
		} else {
			out[symbol] = nil
		}
	}
	return out
}

func (s *stubPriceSource) ValidateSymbols(_ context.Context, symbols []string) map[string]bool {
	out := make(map[string]bool, len(symbols))
	for _, symbol := range symbols {
		_, ok := s.snapshot(symbol)
		out[symbol] = ok
	}
	return out
}

func setupPortfolioTest(t *testing.T, prices map[string]float64) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Portfolio{}, &domain.Holding{}))
	if prices == nil {
		prices = map[string]float64{}
	}
	return &Service{DB: db, Prices: &stubPriceSource{prices: prices}}, db
}

func TestCreatePortfolio_DuplicateName(t *testing.T) {
	svc, _ := setupPortfolioTest(t, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, "Growth")
	require.NoError(t, err)

	_, err = svc.Create(ctx, "Growth")
	assert.ErrorIs(t, err, ErrDuplicateName)

	_, err = svc.Create(ctx, "  ")
	assert.Error(t, err)
}

func TestGetPortfolio_NotFound(t *testing.T) {
	svc, _ := setupPortfolioTest(t, nil)
	_, err := svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrPortfolioNotFound)
}

func TestUpdatePortfolio_RenameAndConflict(t *testing.T) {
	svc, _ := setupPortfolioTest(t, nil)
	ctx := context.Background()

	a, err := svc.Create(ctx, "Alpha")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "Beta")
	require.NoError(t, err)

	renamed, err := svc.Update(ctx, a.PortfolioID, "Gamma")
	require.NoError(t, err)
	assert.Equal(t, "Gamma", renamed.Name)

	_, err = svc.Update(ctx, a.PortfolioID, "Beta")
	assert.ErrorIs(t, err, ErrDuplicateName)

	// Rename to own name is a no-op, not a conflict.
	_, err = svc.Update(ctx, a.PortfolioID, "Gamma")
	assert.NoError(t, err)
}

func TestDeletePortfolio_CascadesHoldings(t *testing.T) {
	svc, db := setupPortfolioTest(t, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, "Growth")
	require.NoError(t, err)
	_, err = svc.AddHolding(ctx, p.PortfolioID, HoldingInput{Symbol: "AAPL", Shares: 10, TargetAllocation: 100})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, p.PortfolioID))

	var count int64
	require.NoError(t, db.Model(&domain.Holding{}).Where("portfolio_id = ?", p.PortfolioID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAddHolding_Validation(t *testing.T) {
	svc, _ := setupPortfolioTest(t, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, "Growth")
	require.NoError(t, err)

	h, err := svc.AddHolding(ctx, p.PortfolioID, HoldingInput{Symbol: "aapl", Shares: 10, TargetAllocation: 40})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", h.Symbol)

	_, err = svc.AddHolding(ctx, p.PortfolioID, HoldingInput{Symbol: "AAPL", Shares: 1, TargetAllocation: 10})
	assert.ErrorIs(t, err, ErrDuplicateHolding)

	_, err = svc.AddHolding(ctx, p.PortfolioID, HoldingInput{Symbol: "GOOGL", Shares: -1, TargetAllocation: 10})
	assert.Error(t, err)

	_, err = svc.AddHolding(ctx, p.PortfolioID, HoldingInput{Symbol: "GOOGL", Shares: 1, TargetAllocation: 101})
	assert.Error(t, err)

	_, err = svc.AddHolding(ctx, p.PortfolioID, HoldingInput{Symbol: "bad symbol!", Shares: 1, TargetAllocation: 10})
	assert.Error(t, err)

	// Cash is always a valid symbol.
	cash, err := svc.AddHolding(ctx, p.PortfolioID, HoldingInput{Symbol: "$CASH", Shares: 500, TargetAllocation: 10})
	require.NoError(t, err)
	assert.Equal(t, domain.CashSymbol, cash.Symbol)
}

func TestUpdateAndDeleteHolding(t *testing.T) {
	svc, _ := setupPortfolioTest(t, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, "Growth")
	require.NoError(t, err)
	_, err = svc.AddHolding(ctx, p.PortfolioID, HoldingInput{Symbol: "AAPL", Shares: 10, TargetAllocation: 40})
	require.NoError(t, err)

	updated, err := svc.UpdateHolding(ctx, p.PortfolioID, "aapl", 20, 60)
	require.NoError(t, err)
	assert.Equal(t, 20.0, updated.Shares)
	assert.Equal(t, 60.0, updated.TargetAllocation)

	_, err = svc.UpdateHolding(ctx, p.PortfolioID, "MSFT", 1, 10)
	assert.ErrorIs(t, err, ErrHoldingNotFound)

	require.NoError(t, svc.DeleteHolding(ctx, p.PortfolioID, "AAPL"))
	assert.ErrorIs(t, svc.DeleteHolding(ctx, p.PortfolioID, "AAPL"), ErrHoldingNotFound)
}

func TestHoldings_SortedBySymbol(t *testing.T) {
	svc, _ := setupPortfolioTest(t, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, "Growth")
	require.NoError(t, err)
	for _, symbol := range []string{"MSFT", "AAPL", "GOOGL"} {
		_, err = svc.AddHolding(ctx, p.PortfolioID, HoldingInput{Symbol: symbol, Shares: 1, TargetAllocation: 10})
		require.NoError(t, err)
	}

	holdings, err := svc.Holdings(ctx, p.PortfolioID)
	require.NoError(t, err)
	require.Len(t, holdings, 3)
	assert.Equal(t, "AAPL", holdings[0].Symbol)
	assert.Equal(t, "GOOGL", holdings[1].Symbol)
	assert.Equal(t, "MSFT", holdings[2].Symbol)
}

func TestRefreshPrices_PartialFailure(t *testing.T) {
	svc, db := setupPortfolioTest(t, map[string]float64{"AAPL": 150})
	ctx := context.Background()

	p, err := svc.Create(ctx, "Growth")
	require.NoError(t, err)
	_, err = svc.AddHolding(ctx, p.PortfolioID, HoldingInput{Symbol: "AAPL", Shares: 10, TargetAllocation: 50})
	require.NoError(t, err)
	_, err = svc.AddHolding(ctx, p.PortfolioID, HoldingInput{Symbol: "ZZZZ", Shares: 5, TargetAllocation: 50})
	require.NoError(t, err)

	result, err := svc.RefreshPrices(ctx, p.PortfolioID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.UpdatedCount)
	assert.Equal(t, 1, result.FailedCount)
	assert.Equal(t, []string{"ZZZZ"}, result.FailedSymbols)

	var holding domain.Holding
	require.NoError(t, db.Where("portfolio_id = ? AND symbol = ?", p.PortfolioID, "AAPL").First(&holding).Error)
	require.NotNil(t, holding.LastPrice)
	assert.Equal(t, 150.0, *holding.LastPrice)
}

func TestRefreshPrices_NoHoldings(t *testing.T) {
	svc, _ := setupPortfolioTest(t, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, "Empty")
	require.NoError(t, err)

	result, err := svc.RefreshPrices(ctx, p.PortfolioID)
	require.NoError(t, err)
	assert.Zero(t, result.TotalCount)
	assert.Equal(t, "No holdings to update", result.Message)
}

func TestRefreshHoldingPrice(t *testing.T) {
	svc, _ := setupPortfolioTest(t, map[string]float64{"AAPL": 187.5})
	ctx := context.Background()

	p, err := svc.Create(ctx, "Growth")
	require.NoError(t, err)
	_, err = svc.AddHolding(ctx, p.PortfolioID, HoldingInput{Symbol: "AAPL", Shares: 10, TargetAllocation: 100})
	require.NoError(t, err)

	price, err := svc.RefreshHoldingPrice(ctx, p.PortfolioID, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 187.5, price)

	holding, err := svc.GetHolding(ctx, p.PortfolioID, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, holding.LastPrice)
	assert.Equal(t, 187.5, *holding.LastPrice)
}

func TestValuation_AllocationsAndDrift(t *testing.T) {
	svc, _ := setupPortfolioTest(t, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, "Growth")
	require.NoError(t, err)

	seed := []struct {
		symbol string
		shares float64
		target float64
		price  float64
	}{
		{"AAPL", 10, 40, 150},
		{"GOOGL", 5, 30, 2500},
		{"MSFT", 8, 20, 300},
		{"TSLA", 2, 10, 800},
	}
	for _, row := range seed {
		h, err := svc.AddHolding(ctx, p.PortfolioID, HoldingInput{Symbol: row.symbol, Shares: row.shares, TargetAllocation: row.target})
		require.NoError(t, err)
		price := row.price
		require.NoError(t, svc.DB.Model(h).Update("last_price", &price).Error)
	}

	v, err := svc.Valuation(ctx, p.PortfolioID)
	require.NoError(t, err)
	assert.InDelta(t, 18000.0, v.TotalValue, 0.001)
	assert.True(t, v.IsAllocationValid)
	assert.Equal(t, 4, v.HoldingsWithPrices)
	assert.Equal(t, 100.0, v.PriceCoverage)

	bySymbol := map[string]HoldingBreakdown{}
	for _, row := range v.Holdings {
		bySymbol[row.Symbol] = row
	}
	assert.InDelta(t, 12500.0/18000.0*100, bySymbol["GOOGL"].CurrentAllocation, 0.001)

	// GOOGL sits ~39.4 points above its 30% target.
	var googlDrift *AllocationDriftEntry
	for i := range v.SignificantDrifts {
		if v.SignificantDrifts[i].Symbol == "GOOGL" {
			googlDrift = &v.SignificantDrifts[i]
		}
	}
	require.NotNil(t, googlDrift)
	assert.Greater(t, googlDrift.Drift, 30.0)
}

func TestValuation_MissingPricesContributeZero(t *testing.T) {
	svc, _ := setupPortfolioTest(t, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, "Growth")
	require.NoError(t, err)
	h, err := svc.AddHolding(ctx, p.PortfolioID, HoldingInput{Symbol: "AAPL", Shares: 10, TargetAllocation: 50})
	require.NoError(t, err)
	price := 150.0
	require.NoError(t, svc.DB.Model(h).Update("last_price", &price).Error)
	_, err = svc.AddHolding(ctx, p.PortfolioID, HoldingInput{Symbol: "GOOGL", Shares: 5, TargetAllocation: 50})
	require.NoError(t, err)

	v, err := svc.Valuation(ctx, p.PortfolioID)
	require.NoError(t, err)
	assert.InDelta(t, 1500.0, v.TotalValue, 0.001)
	assert.Equal(t, 1, v.HoldingsWithPrices)
	assert.Equal(t, 2, v.TotalHoldings)
	assert.InDelta(t, 50.0, v.PriceCoverage, 0.001)
}

func TestValidateSymbols(t *testing.T) {
	svc, _ := setupPortfolioTest(t, map[string]float64{"AAPL": 150})
	ctx := context.Background()

	p, err := svc.Create(ctx, "Growth")
	require.NoError(t, err)
	_, err = svc.AddHolding(ctx, p.PortfolioID, HoldingInput{Symbol: "AAPL", Shares: 10, TargetAllocation: 50})
	require.NoError(t, err)
	_, err = svc.AddHolding(ctx, p.PortfolioID, HoldingInput{Symbol: "ZZZZ", Shares: 5, TargetAllocation: 50})
	require.NoError(t, err)

	result, err := svc.ValidateSymbols(ctx, p.PortfolioID)
	require.NoError(t, err)
	assert.False(t, result.AllValid)
	assert.Equal(t, []string{"AAPL"}, result.ValidSymbols)
	assert.Equal(t, []string{"ZZZZ"}, result.InvalidSymbols)
}

func TestImportCSV_ReplacesHoldings(t *testing.T) {
	svc, _ := setupPortfolioTest(t, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, "Growth")
	require.NoError(t, err)
	_, err = svc.AddHolding(ctx, p.PortfolioID, HoldingInput{Symbol: "OLD", Shares: 1, TargetAllocation: 100})
	require.NoError(t, err)

	csv := "Symbol,Shares,Allocation\nAAPL,10,60\nGOOGL,5,40\n"
	result, err := svc.ImportCSV(ctx, p.PortfolioID, strings.NewReader(csv))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.ImportedCount)

	holdings, err := svc.Holdings(ctx, p.PortfolioID)
	require.NoError(t, err)
	require.Len(t, holdings, 2)
	assert.Equal(t, "AAPL", holdings[0].Symbol)
	assert.Equal(t, "GOOGL", holdings[1].Symbol)
}

func TestImportCSV_InvalidFileKeepsExistingHoldings(t *testing.T) {
	svc, _ := setupPortfolioTest(t, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, "Growth")
	require.NoError(t, err)
	_, err = svc.AddHolding(ctx, p.PortfolioID, HoldingInput{Symbol: "AAPL", Shares: 10, TargetAllocation: 100})
	require.NoError(t, err)

	result, err := svc.ImportCSV(ctx, p.PortfolioID, strings.NewReader("Symbol,Shares\nAAPL,10\n"))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Zero(t, result.ImportedCount)

	holdings, err := svc.Holdings(ctx, p.PortfolioID)
	require.NoError(t, err)
	assert.Len(t, holdings, 1)
}

func TestImportCSV_PartiallyInvalidFileImportsNothing(t *testing.T) {
	svc, _ := setupPortfolioTest(t, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, "Growth")
	require.NoError(t, err)
	_, err = svc.AddHolding(ctx, p.PortfolioID, HoldingInput{Symbol: "MSFT", Shares: 8, TargetAllocation: 100})
	require.NoError(t, err)

	// One valid row plus one bad symbol: the valid subset must not replace
	// the existing holdings.
	csv := "Symbol,Shares,Allocation\nAAPL,10,60\nBAD!!,5,40\n"
	result, err := svc.ImportCSV(ctx, p.PortfolioID, strings.NewReader(csv))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Zero(t, result.ImportedCount)
	assert.NotEmpty(t, result.Errors)

	holdings, err := svc.Holdings(ctx, p.PortfolioID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "MSFT", holdings[0].Symbol)
}
