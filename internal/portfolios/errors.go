package portfolios

import "errors"

var (
	// ErrPortfolioNotFound: the referenced portfolio does not exist.
	ErrPortfolioNotFound = errors.New("portfolio not found")
	// ErrHoldingNotFound: the referenced holding does not exist in the portfolio.
	ErrHoldingNotFound = errors.New("holding not found")
	// ErrDuplicateName: a portfolio with this name already exists.
	ErrDuplicateName = errors.New("portfolio with this name already exists")
	// ErrDuplicateHolding: the portfolio already holds this symbol.
	ErrDuplicateHolding = errors.New("holding for this symbol already exists in the portfolio")
)
