// Package domain provides core domain models and types for the exchange.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide represents the direction of a trade
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// Validate checks that the side is one of the known values
func (s TradeSide) Validate() error {
	switch s {
	case TradeSideBuy, TradeSideSell:
		return nil
	}
	return fmt.Errorf("unknown trade side: %q", string(s))
}

// InvestorAccount holds an investor's cash balance.
// Accounts are created lazily on first trade and never deleted.
type InvestorAccount struct {
	CreatedAt   time.Time       `json:"created_at"`
	InvestorID  string          `json:"investor_id"`
	CashBalance decimal.Decimal `json:"cash_balance"`
}

// Company is a tradable entity with a fixed share supply.
// CurrentPrice and Valuation are revised only by the pricing step
// of a committed trade.
type Company struct {
	CreatedAt    time.Time       `json:"created_at"`
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Valuation    decimal.Decimal `json:"valuation"`
	TotalShares  int64           `json:"total_shares"`
}

// Holding is one investor's position in one company.
// AvgPrice is the volume-weighted cost basis; it is recomputed on
// every buy and left untouched by sells.
type Holding struct {
	LastUpdated time.Time       `json:"last_updated"`
	InvestorID  string          `json:"investor_id"`
	CompanyID   string          `json:"company_id"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	Shares      int64           `json:"shares"`
}

// VestingGrant is an immutable block of gifted shares that cannot be
// sold before VestsAt. Grants are issued administratively; the trade
// engine only reads them.
type VestingGrant struct {
	VestsAt    time.Time `json:"vests_at"`
	CreatedAt  time.Time `json:"created_at"`
	InvestorID string    `json:"investor_id"`
	CompanyID  string    `json:"company_id"`
	ID         int64     `json:"id"`
	Shares     int64     `json:"shares"`
}

// Vested reports whether the grant has unlocked as of the given time.
func (g VestingGrant) Vested(asOf time.Time) bool {
	return !g.VestsAt.After(asOf)
}

// Trade is an append-only history entry for one executed trade.
// Price is the execution price, i.e. the company price before the
// trade's own impact was applied.
type Trade struct {
	ExecutedAt time.Time       `json:"executed_at"`
	ID         string          `json:"id"`
	InvestorID string          `json:"investor_id"`
	CompanyID  string          `json:"company_id"`
	Side       TradeSide       `json:"side"`
	Price      decimal.Decimal `json:"price"`
	TotalValue decimal.Decimal `json:"total_value"`
	Shares     int64           `json:"shares"`
}

// PricePoint is an append-only price snapshot written after every
// trade, independent of the trade record, for chart reconstruction.
type PricePoint struct {
	RecordedAt time.Time       `json:"recorded_at"`
	CompanyID  string          `json:"company_id"`
	Price      decimal.Decimal `json:"price"`
}
