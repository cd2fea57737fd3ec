package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Watchlist is a named collection of tracked symbols. Names are unique.
type Watchlist struct {
	WatchlistID uuid.UUID     `gorm:"column:watchlist_id;type:uuid;primaryKey" json:"watchlist_id"`
	Name        string        `gorm:"column:name;type:varchar(100);not null;uniqueIndex" json:"name"`
	Items       []WatchedItem `gorm:"foreignKey:WatchlistID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	CreatedAt   time.Time     `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"column:updated_at" json:"updated_at"`
}

func (Watchlist) TableName() string {
	return "watchlists"
}

func (w *Watchlist) BeforeCreate(tx *gorm.DB) error {
	if w.WatchlistID == uuid.Nil {
		w.WatchlistID = uuid.New()
	}
	return nil
}

// WatchedItem is one tracked symbol inside a watchlist. NewsData caches the
// last fetched article payload; LastNewsUpdate drives the 4h news cache check.
type WatchedItem struct {
	ItemID         uuid.UUID      `gorm:"column:item_id;type:uuid;primaryKey" json:"item_id"`
	WatchlistID    uuid.UUID      `gorm:"column:watchlist_id;type:uuid;not null;index:idx_watched_items_list_symbol,unique" json:"watchlist_id"`
	Symbol         string         `gorm:"column:symbol;type:varchar(10);not null;index:idx_watched_items_list_symbol,unique" json:"symbol"`
	Notes          *string        `gorm:"column:notes;type:varchar(500)" json:"notes"`
	LastPrice      *float64       `gorm:"column:last_price" json:"last_price"`
	NewsData       datatypes.JSON `gorm:"column:news_data" json:"news_data,omitempty"`
	LastNewsUpdate *time.Time     `gorm:"column:last_news_update" json:"last_news_update"`
	OrderIndex     int            `gorm:"column:order_index;not null;default:0" json:"order_index"`
	CreatedAt      time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (WatchedItem) TableName() string {
	return "watched_items"
}

func (i *WatchedItem) BeforeCreate(tx *gorm.DB) error {
	if i.ItemID == uuid.Nil {
		i.ItemID = uuid.New()
	}
	return nil
}
