package rebalancing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"stockfolio-backend/internal/domain"
)

const (
	// DefaultTolerance is the allocation drift threshold in percentage points.
	DefaultTolerance = 2.0
	// DefaultCostRate is the assumed transaction cost as a fraction of notional.
	DefaultCostRate = 0.005

	// minTradeShares discards trades too small to be economically meaningful.
	minTradeShares = 0.1
	// minMeaningfulValue flags portfolios too small for cost-effective trading.
	minMeaningfulValue = 1000.0
)

// Transaction is a single buy/sell recommendation.
type Transaction struct {
	Symbol           string  `json:"symbol"`
	Action           string  `json:"action"` // BUY or SELL
	Shares           float64 `json:"shares"`
	CurrentPrice     float64 `json:"current_price"`
	TransactionValue float64 `json:"transaction_value"`
	TransactionCost  float64 `json:"transaction_cost"`
	Reason           string  `json:"reason"`
}

// Drift is the allocation drift of a single holding.
type Drift struct {
	Symbol            string  `json:"symbol"`
	CurrentAllocation float64 `json:"current_allocation"`
	TargetAllocation  float64 `json:"target_allocation"`
	Drift             float64 `json:"drift"`
	DriftPercentage   float64 `json:"drift_percentage"`
	CurrentValue      float64 `json:"current_value"`
	TargetValue       float64 `json:"target_value"`
	ValueDifference   float64 `json:"value_difference"`
}

// Analysis is a complete rebalancing analysis for one portfolio.
type Analysis struct {
	PortfolioID          uuid.UUID     `json:"portfolio_id"`
	TotalValue           float64       `json:"total_value"`
	IsBalanced           bool          `json:"is_balanced"`
	ToleranceThreshold   float64       `json:"tolerance_threshold"`
	AllocationDrifts     []Drift       `json:"allocation_drifts"`
	Transactions         []Transaction `json:"transactions"`
	TotalTransactionCost float64       `json:"total_transaction_cost"`
	EstimatedFinalValue  float64       `json:"estimated_final_value"`
	AnalysisTimestamp    time.Time     `json:"analysis_timestamp"`
}

// AnalyzeOptions override the engine defaults for one analysis.
type AnalyzeOptions struct {
	Tolerance *float64
	CostRate  *float64
}

// Engine computes allocation drift and the trades that restore targets.
// Analysis is pure computation over stored holdings; only Execute in live
// mode mutates state.
type Engine struct {
	DB        *gorm.DB
	Tolerance float64
	CostRate  float64

	mu        sync.Mutex
	executing map[uuid.UUID]*sync.Mutex
}

// NewEngine builds an engine with the given drift tolerance (percentage
// points) and transaction cost rate (fraction of notional). Zero values fall
// back to the defaults.
func NewEngine(db *gorm.DB, tolerance, costRate float64) *Engine {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if costRate <= 0 {
		costRate = DefaultCostRate
	}
	return &Engine{
		DB:        db,
		Tolerance: tolerance,
		CostRate:  costRate,
		executing: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (e *Engine) holdings(ctx context.Context, portfolioID uuid.UUID) ([]domain.Holding, error) {
	var portfolio domain.Portfolio
	err := e.DB.WithContext(ctx).Where("portfolio_id = ?", portfolioID).First(&portfolio).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPortfolioNotFound
		}
		return nil, err
	}
	var holdings []domain.Holding
	err = e.DB.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Order("symbol").
		Find(&holdings).Error
	if err != nil {
		return nil, err
	}
	return holdings, nil
}

// effectivePrice returns the trading price of a holding: 1.0 for the cash
// sentinel, otherwise the stored price or absent.
func effectivePrice(h *domain.Holding) (float64, bool) {
	if h.IsCash() {
		return 1.0, true
	}
	if h.LastPrice == nil {
		return 0, false
	}
	return *h.LastPrice, true
}

func holdingValue(h *domain.Holding) (float64, bool) {
	price, ok := effectivePrice(h)
	if !ok {
		return 0, false
	}
	return h.Shares * price, true
}

// Analyze computes allocation drifts and, when any holding strays beyond
// tolerance, the buy/sell list that restores targets net of modeled costs.
func (e *Engine) Analyze(ctx context.Context, portfolioID uuid.UUID, opts *AnalyzeOptions) (*Analysis, error) {
	tolerance := e.Tolerance
	costRate := e.CostRate
	if opts != nil {
		if opts.Tolerance != nil {
			tolerance = *opts.Tolerance
		}
		if opts.CostRate != nil {
			costRate = *opts.CostRate
		}
	}

	holdings, err := e.holdings(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return nil, ErrNoHoldings
	}

	totalValue := 0.0
	for i := range holdings {
		if value, ok := holdingValue(&holdings[i]); ok {
			totalValue += value
		}
	}
	if totalValue <= 0 {
		return nil, ErrNoMarketValue
	}

	drifts := calculateDrifts(holdings, totalValue)

	isBalanced := true
	for _, d := range drifts {
		if math.Abs(d.Drift) > tolerance {
			isBalanced = false
			break
		}
	}

	analysis := &Analysis{
		PortfolioID:         portfolioID,
		TotalValue:          totalValue,
		IsBalanced:          isBalanced,
		ToleranceThreshold:  tolerance,
		AllocationDrifts:    drifts,
		Transactions:        []Transaction{},
		EstimatedFinalValue: totalValue,
		AnalysisTimestamp:   time.Now().UTC(),
	}

	if !isBalanced {
		analysis.Transactions, analysis.TotalTransactionCost = generateTransactions(holdings, drifts, tolerance, costRate)
		analysis.EstimatedFinalValue = totalValue - analysis.TotalTransactionCost
	}
	return analysis, nil
}

// calculateDrifts emits one drift record per holding in holding order.
// Holdings without a price contribute zero current value rather than failing
// the analysis.
func calculateDrifts(holdings []domain.Holding, totalValue float64) []Drift {
	drifts := make([]Drift, 0, len(holdings))
	for i := range holdings {
		h := &holdings[i]
		currentValue, _ := holdingValue(h)
		currentAllocation := currentValue / totalValue * 100

		drift := currentAllocation - h.TargetAllocation
		driftPercentage := 0.0
		if h.TargetAllocation > 0 {
			driftPercentage = drift / h.TargetAllocation * 100
		}
		targetValue := totalValue * h.TargetAllocation / 100

		drifts = append(drifts, Drift{
			Symbol:            h.Symbol,
			CurrentAllocation: currentAllocation,
			TargetAllocation:  h.TargetAllocation,
			Drift:             drift,
			DriftPercentage:   driftPercentage,
			CurrentValue:      currentValue,
			TargetValue:       targetValue,
			ValueDifference:   currentValue - targetValue,
		})
	}
	return drifts
}

func generateTransactions(holdings []domain.Holding, drifts []Drift, tolerance, costRate float64) ([]Transaction, float64) {
	driftBySymbol := make(map[string]Drift, len(drifts))
	for _, d := range drifts {
		driftBySymbol[d.Symbol] = d
	}

	transactions := []Transaction{}
	totalCost := 0.0

	for i := range holdings {
		h := &holdings[i]
		price, ok := effectivePrice(h)
		if !ok {
			log.Warn().Str("symbol", h.Symbol).Msg("skipping holding with no current price")
			continue
		}

		d := driftBySymbol[h.Symbol]
		// Holdings within tolerance are left untouched to bound trading.
		if math.Abs(d.Drift) <= tolerance {
			continue
		}

		sharesChange := (d.TargetValue - d.CurrentValue) / price
		action := "BUY"
		if sharesChange < 0 {
			action = "SELL"
		}
		sharesChange = math.Abs(sharesChange)
		if sharesChange < minTradeShares {
			continue
		}

		value := sharesChange * price
		cost := value * costRate
		totalCost += cost

		var reason string
		if d.Drift > 0 {
			reason = fmt.Sprintf("Overweight by %.1f%% (%.1f%% relative)", d.Drift, d.DriftPercentage)
		} else {
			reason = fmt.Sprintf("Underweight by %.1f%% (%.1f%% relative)", math.Abs(d.Drift), math.Abs(d.DriftPercentage))
		}

		transactions = append(transactions, Transaction{
			Symbol:           h.Symbol,
			Action:           action,
			Shares:           sharesChange,
			CurrentPrice:     price,
			TransactionValue: value,
			TransactionCost:  cost,
			Reason:           reason,
		})
	}
	return transactions, totalCost
}

// Summary is a quick view of rebalancing needs without the transaction list.
type Summary struct {
	NeedsRebalancing         bool    `json:"needs_rebalancing"`
	TotalValue               float64 `json:"total_value"`
	ToleranceThreshold       float64 `json:"tolerance_threshold"`
	SignificantDriftsCount   int     `json:"significant_drifts_count"`
	MaxDrift                 float64 `json:"max_drift"`
	TransactionCount         int     `json:"transaction_count"`
	EstimatedTransactionCost float64 `json:"estimated_transaction_cost"`
	CostPercentage           float64 `json:"cost_percentage"`
}

// Summarize runs a full analysis and condenses it.
func (e *Engine) Summarize(ctx context.Context, portfolioID uuid.UUID) (*Summary, error) {
	analysis, err := e.Analyze(ctx, portfolioID, nil)
	if err != nil {
		return nil, err
	}

	out := &Summary{
		NeedsRebalancing:         !analysis.IsBalanced,
		TotalValue:               analysis.TotalValue,
		ToleranceThreshold:       analysis.ToleranceThreshold,
		TransactionCount:         len(analysis.Transactions),
		EstimatedTransactionCost: analysis.TotalTransactionCost,
	}
	for _, d := range analysis.AllocationDrifts {
		abs := math.Abs(d.Drift)
		if abs > out.MaxDrift {
			out.MaxDrift = abs
		}
		if abs > analysis.ToleranceThreshold {
			out.SignificantDriftsCount++
		}
	}
	if analysis.TotalValue > 0 {
		out.CostPercentage = analysis.TotalTransactionCost / analysis.TotalValue * 100
	}
	return out, nil
}

// ExecutionResult reports the outcome of Execute.
type ExecutionResult struct {
	Success           bool     `json:"success"`
	Message           string   `json:"message"`
	TransactionsCount int      `json:"transactions_count"`
	TotalCost         float64  `json:"total_cost"`
	Executed          bool     `json:"executed"`
	Warnings          []string `json:"warnings,omitempty"`
}

func (e *Engine) portfolioLock(portfolioID uuid.UUID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.executing[portfolioID]
	if !ok {
		lock = &sync.Mutex{}
		e.executing[portfolioID] = lock
	}
	return lock
}

// Execute applies a previously computed transaction list to the portfolio's
// holdings. Dry-run (the safe default) touches nothing and returns a summary.
// Live mode applies every mutation inside one database transaction, so a
// commit failure rolls the whole batch back. Drift is not re-validated here;
// callers are expected to analyze immediately before executing.
func (e *Engine) Execute(ctx context.Context, portfolioID uuid.UUID, transactions []Transaction, dryRun bool) (*ExecutionResult, error) {
	if dryRun {
		totalCost := 0.0
		for _, tx := range transactions {
			totalCost += tx.TransactionCost
		}
		return &ExecutionResult{
			Success:           true,
			Message:           "Dry run completed successfully",
			TransactionsCount: len(transactions),
			TotalCost:         totalCost,
		}, nil
	}

	lock := e.portfolioLock(portfolioID)
	lock.Lock()
	defer lock.Unlock()

	result := &ExecutionResult{}
	err := e.DB.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var holdings []domain.Holding
		if err := dbtx.Where("portfolio_id = ?", portfolioID).Find(&holdings).Error; err != nil {
			return err
		}
		bySymbol := make(map[string]*domain.Holding, len(holdings))
		for i := range holdings {
			bySymbol[holdings[i].Symbol] = &holdings[i]
		}

		for _, tx := range transactions {
			holding, ok := bySymbol[tx.Symbol]
			if !ok {
				log.Warn().Str("symbol", tx.Symbol).Msg("holding not found, skipping transaction")
				result.Warnings = append(result.Warnings, fmt.Sprintf("Holding %s not found, skipped", tx.Symbol))
				continue
			}

			newShares := holding.Shares
			if strings.EqualFold(tx.Action, "BUY") {
				newShares += tx.Shares
			} else {
				newShares -= tx.Shares
			}
			// Shares never go negative even if the analysis was stale.
			if newShares < 0 {
				log.Warn().Str("symbol", tx.Symbol).Msg("transaction would result in negative shares, clamping to zero")
				result.Warnings = append(result.Warnings, fmt.Sprintf("Sell of %s clamped at zero shares", tx.Symbol))
				newShares = 0
			}

			if err := dbtx.Model(&domain.Holding{}).
				Where("holding_id = ?", holding.HoldingID).
				Update("shares", newShares).Error; err != nil {
				return err
			}
			holding.Shares = newShares
			result.TransactionsCount++
			result.TotalCost += tx.TransactionCost
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute rebalancing: %w", err)
	}

	result.Success = true
	result.Executed = true
	result.Message = fmt.Sprintf("Successfully executed %d transactions", result.TransactionsCount)
	log.Info().
		Str("portfolio_id", portfolioID.String()).
		Int("transactions", result.TransactionsCount).
		Float64("total_cost", result.TotalCost).
		Msg("rebalancing executed")
	return result, nil
}

// FeasibilityResult distinguishes blocking issues from soft warnings.
type FeasibilityResult struct {
	Feasible           bool     `json:"feasible"`
	Issues             []string `json:"issues"`
	Warnings           []string `json:"warnings"`
	TotalValue         float64  `json:"total_value"`
	HoldingsCount      int      `json:"holdings_count"`
	HoldingsWithPrices int      `json:"holdings_with_prices"`
}

// Feasibility validates whether a portfolio can be rebalanced at all. Issues
// block rebalancing; warnings do not.
func (e *Engine) Feasibility(ctx context.Context, portfolioID uuid.UUID) (*FeasibilityResult, error) {
	result := &FeasibilityResult{Issues: []string{}, Warnings: []string{}}

	holdings, err := e.holdings(ctx, portfolioID)
	if err != nil {
		if errors.Is(err, ErrPortfolioNotFound) {
			result.Issues = append(result.Issues, "Portfolio not found")
			return result, nil
		}
		return nil, err
	}
	if len(holdings) == 0 {
		result.Issues = append(result.Issues, "Portfolio has no holdings")
		return result, nil
	}
	result.HoldingsCount = len(holdings)

	var missingPrices []string
	totalTarget := 0.0
	var zeroTargets []string
	for i := range holdings {
		h := &holdings[i]
		if value, ok := holdingValue(h); ok {
			result.TotalValue += value
			result.HoldingsWithPrices++
		} else {
			missingPrices = append(missingPrices, h.Symbol)
		}
		totalTarget += h.TargetAllocation
		if h.TargetAllocation <= 0 {
			zeroTargets = append(zeroTargets, h.Symbol)
		}
	}

	if len(missingPrices) > 0 {
		result.Issues = append(result.Issues, "Missing current prices for: "+strings.Join(missingPrices, ", "))
	}
	if math.Abs(totalTarget-100.0) > 0.1 {
		result.Issues = append(result.Issues, fmt.Sprintf("Target allocations sum to %.1f%% instead of 100%%", totalTarget))
	}
	if len(zeroTargets) > 0 {
		result.Warnings = append(result.Warnings, "Holdings with zero target allocation: "+strings.Join(zeroTargets, ", "))
	}
	if result.TotalValue <= 0 {
		result.Issues = append(result.Issues, "Portfolio has no current market value")
	} else if result.TotalValue < minMeaningfulValue {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Portfolio value ($%.2f) may be too small for cost-effective rebalancing", result.TotalValue))
	}

	result.Feasible = len(result.Issues) == 0
	return result, nil
}
