package validation

import (
	"regexp"
	"strings"

	"stockfolio-backend/internal/domain"
)

// symbolRe accepts exchange tickers like AAPL, BRK-B, BTC-USD, ^GSPC.
var symbolRe = regexp.MustCompile(`^[A-Z0-9^][A-Z0-9.\-]{0,9}$`)

// NormalizeSymbol trims and uppercases a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// IsValidSymbol reports whether the (normalized) symbol is well formed.
// The cash sentinel is always valid.
func IsValidSymbol(symbol string) bool {
	s := NormalizeSymbol(symbol)
	if s == domain.CashSymbol {
		return true
	}
	return symbolRe.MatchString(s)
}

// IsValidName reports whether a portfolio/watchlist name is non-blank.
func IsValidName(name string) bool {
	return strings.TrimSpace(name) != ""
}

// IsValidShares: share counts (or dollar amounts for cash) are non-negative.
func IsValidShares(shares float64) bool {
	return shares >= 0
}

// IsValidTargetAllocation: percentage points in (0, 100].
func IsValidTargetAllocation(target float64) bool {
	return target > 0 && target <= 100
}

// IsValidNotes: watched-item notes are nullable and capped at 500 characters.
func IsValidNotes(notes *string) bool {
	return notes == nil || len(*notes) <= 500
}
