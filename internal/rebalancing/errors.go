package rebalancing

import "errors"

var (
	// ErrPortfolioNotFound means the referenced portfolio does not exist.
	ErrPortfolioNotFound = errors.New("Portfolio not found")
	// ErrNoHoldings means the portfolio is empty and cannot be analyzed.
	ErrNoHoldings = errors.New("Portfolio has no holdings")
	// ErrNoMarketValue means no holding carries a price yet.
	ErrNoMarketValue = errors.New("Portfolio has no current market value. Please refresh stock prices first.")
)
