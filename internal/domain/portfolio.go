package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CashSymbol is the reserved symbol for cash positions. For cash holdings the
// Shares column stores a dollar amount, not a share count.
const CashSymbol = "$CASH"

// Portfolio is a named collection of holdings. Names are unique across all
// portfolios.
type Portfolio struct {
	PortfolioID uuid.UUID `gorm:"column:portfolio_id;type:uuid;primaryKey" json:"portfolio_id"`
	Name        string    `gorm:"column:name;type:varchar(100);not null;uniqueIndex" json:"name"`
	Holdings    []Holding `gorm:"foreignKey:PortfolioID;constraint:OnDelete:CASCADE" json:"holdings,omitempty"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Portfolio) TableName() string {
	return "portfolios"
}

// BeforeCreate: never insert zero UUID for primary key; generate random when not set.
func (p *Portfolio) BeforeCreate(tx *gorm.DB) error {
	if p.PortfolioID == uuid.Nil {
		p.PortfolioID = uuid.New()
	}
	return nil
}

// Holding is one position inside a portfolio. Symbols are unique per portfolio.
type Holding struct {
	HoldingID        uuid.UUID `gorm:"column:holding_id;type:uuid;primaryKey" json:"holding_id"`
	PortfolioID      uuid.UUID `gorm:"column:portfolio_id;type:uuid;not null;index:idx_holdings_portfolio_symbol,unique" json:"portfolio_id"`
	Symbol           string    `gorm:"column:symbol;type:varchar(10);not null;index:idx_holdings_portfolio_symbol,unique" json:"symbol"`
	Shares           float64   `gorm:"column:shares;not null;default:0" json:"shares"`
	TargetAllocation float64   `gorm:"column:target_allocation;not null" json:"target_allocation"`
	LastPrice        *float64  `gorm:"column:last_price" json:"last_price"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Holding) TableName() string {
	return "holdings"
}

func (h *Holding) BeforeCreate(tx *gorm.DB) error {
	if h.HoldingID == uuid.Nil {
		h.HoldingID = uuid.New()
	}
	return nil
}

// IsCash reports whether this holding is the cash pseudo-position.
func (h *Holding) IsCash() bool {
	return h.Symbol == CashSymbol
}

// CurrentValue returns the market value of the holding. Cash positions are
// worth their Shares amount directly; priced positions are shares * last price;
// unpriced positions contribute zero.
func (h *Holding) CurrentValue() float64 {
	if h.IsCash() {
		return h.Shares
	}
	if h.LastPrice == nil {
		return 0
	}
	return h.Shares * *h.LastPrice
}
