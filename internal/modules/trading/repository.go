// Package trading orchestrates trade execution and keeps the
// append-only trade and price history.
package trading

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/exchange/internal/database"
	"github.com/aristath/exchange/internal/domain"
)

const tradeColumns = `id, investor_id, company_id, side, shares, price, total_value, executed_at`

// Repository handles the append-only trades and price_history tables.
// Appends take a Queryer so they run inside the engine's transaction;
// history reads run against the connection directly.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new trade repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "trading").Logger(),
	}
}

// AppendTrade inserts one immutable trade record.
func (r *Repository) AppendTrade(q database.Queryer, trade domain.Trade) error {
	if err := trade.Side.Validate(); err != nil {
		return fmt.Errorf("failed to append trade: %w", err)
	}
	if trade.Shares <= 0 {
		return fmt.Errorf("failed to append trade: share count must be positive, got %d", trade.Shares)
	}

	query := `
		INSERT INTO trades (id, investor_id, company_id, side, shares, price, total_value, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.Exec(query,
		trade.ID,
		trade.InvestorID,
		trade.CompanyID,
		string(trade.Side),
		trade.Shares,
		trade.Price.String(),
		trade.TotalValue.String(),
		trade.ExecutedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append trade: %w", err)
	}

	return nil
}

// AppendPricePoint inserts one immutable price snapshot.
func (r *Repository) AppendPricePoint(q database.Queryer, point domain.PricePoint) error {
	query := `INSERT INTO price_history (company_id, price, recorded_at) VALUES (?, ?, ?)`

	_, err := q.Exec(query, point.CompanyID, point.Price.String(), point.RecordedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to append price point: %w", err)
	}

	return nil
}

// GetHistory retrieves trade history, most recent first.
func (r *Repository) GetHistory(limit int) ([]domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + ` FROM trades
		ORDER BY executed_at DESC, id DESC
		LIMIT ?
	`
	return r.queryTrades(query, limit)
}

// GetByInvestor retrieves an investor's trades, most recent first.
func (r *Repository) GetByInvestor(investorID string, limit int) ([]domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + ` FROM trades
		WHERE investor_id = ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ?
	`
	return r.queryTrades(query, investorID, limit)
}

// GetByCompany retrieves a company's trades, most recent first.
func (r *Repository) GetByCompany(companyID string, limit int) ([]domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + ` FROM trades
		WHERE company_id = ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ?
	`
	return r.queryTrades(query, companyID, limit)
}

// GetPriceHistory retrieves a company's price snapshots, oldest first.
// A limit of 0 returns everything.
func (r *Repository) GetPriceHistory(companyID string, limit int) ([]domain.PricePoint, error) {
	query := `
		SELECT company_id, price, recorded_at FROM price_history
		WHERE company_id = ?
		ORDER BY recorded_at ASC, id ASC
	`
	args := []interface{}{companyID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		var price string
		var recordedAt int64

		if err := rows.Scan(&p.CompanyID, &price, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", price, err)
		}
		p.RecordedAt = time.Unix(recordedAt, 0).UTC()

		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price history: %w", err)
	}

	return points, nil
}

func (r *Repository) queryTrades(query string, args ...interface{}) ([]domain.Trade, error) {
	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var trade domain.Trade
		var side, price, totalValue string
		var executedAt int64

		err := rows.Scan(
			&trade.ID,
			&trade.InvestorID,
			&trade.CompanyID,
			&side,
			&trade.Shares,
			&price,
			&totalValue,
			&executedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}

		trade.Side = domain.TradeSide(side)
		if trade.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("invalid trade price %q: %w", price, err)
		}
		if trade.TotalValue, err = decimal.NewFromString(totalValue); err != nil {
			return nil, fmt.Errorf("invalid trade value %q: %w", totalValue, err)
		}
		trade.ExecutedAt = time.Unix(executedAt, 0).UTC()

		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}
