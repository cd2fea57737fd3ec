package marketdata

import "time"

// Market states reported on a Snapshot.
const (
	StateRegular    = "REGULAR"
	StateClosed     = "CLOSED"
	StatePre        = "PRE"
	StatePost       = "POST"
	StateAlwaysOpen = "ALWAYS_OPEN"
	StateUnknown    = "UNKNOWN"
)

// Snapshot is an immutable point-in-time price observation for one symbol.
// Later fetches supersede earlier snapshots; a snapshot is never mutated.
type Snapshot struct {
	Symbol           string    `json:"symbol"`
	Price            float64   `json:"price"`
	Currency         string    `json:"currency"`
	MarketCap        *float64  `json:"market_cap"`
	PERatio          *float64  `json:"pe_ratio"`
	DividendYield    *float64  `json:"dividend_yield"`
	FiftyTwoWeekHigh *float64  `json:"fifty_two_week_high"`
	FiftyTwoWeekLow  *float64  `json:"fifty_two_week_low"`
	Volume           *int64    `json:"volume"`
	AvgVolume        *int64    `json:"avg_volume"`
	MarketState      string    `json:"market_state"`
	LastUpdated      time.Time `json:"last_updated"`
}
