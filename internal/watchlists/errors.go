package watchlists

import "errors"

var (
	ErrWatchlistNotFound = errors.New("Watchlist not found")
	ErrItemNotFound      = errors.New("Watched item not found")
	ErrDuplicateName     = errors.New("A watchlist with this name already exists")
	ErrDuplicateSymbol   = errors.New("Stock is already in this watchlist")
)
