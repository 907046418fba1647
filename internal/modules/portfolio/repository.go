// Package portfolio manages per-investor holdings and the read-side
// portfolio views.
package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/exchange/internal/database"
	"github.com/aristath/exchange/internal/domain"
)

// Repository handles holding database operations. Mutations take a
// Queryer so the trade engine can run them inside its transaction.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new holding repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// Get returns one holding, or nil if the investor holds nothing in the
// company.
func (r *Repository) Get(q database.Queryer, investorID, companyID string) (*domain.Holding, error) {
	query := `
		SELECT investor_id, company_id, shares, avg_price, last_updated
		FROM holdings
		WHERE investor_id = ? AND company_id = ?
	`

	holding, err := scanHolding(q.QueryRow(query, investorID, companyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holding: %w", err)
	}

	return &holding, nil
}

// GetAllForInvestor returns all of an investor's holdings.
func (r *Repository) GetAllForInvestor(investorID string) ([]domain.Holding, error) {
	query := `
		SELECT investor_id, company_id, shares, avg_price, last_updated
		FROM holdings
		WHERE investor_id = ?
		ORDER BY company_id ASC
	`

	rows, err := r.db.Conn().Query(query, investorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var h domain.Holding
		var avgPrice string
		var lastUpdated int64

		if err := rows.Scan(&h.InvestorID, &h.CompanyID, &h.Shares, &avgPrice, &lastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		if h.AvgPrice, err = decimal.NewFromString(avgPrice); err != nil {
			return nil, fmt.Errorf("invalid avg price %q: %w", avgPrice, err)
		}
		h.LastUpdated = time.Unix(lastUpdated, 0).UTC()

		holdings = append(holdings, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return holdings, nil
}

// TotalSharesForCompany sums all investors' holdings in one company.
func (r *Repository) TotalSharesForCompany(q database.Queryer, companyID string) (int64, error) {
	query := `SELECT COALESCE(SUM(shares), 0) FROM holdings WHERE company_id = ?`

	var total int64
	if err := q.QueryRow(query, companyID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum holdings: %w", err)
	}

	return total, nil
}

// AddShares applies a buy to the holding: creates it at the execution
// price, or recomputes the weighted-average cost basis:
//
//	avg' = (oldShares*oldAvg + shares*price) / (oldShares + shares)
//
// Returns the resulting share count.
func (r *Repository) AddShares(q database.Queryer, investorID, companyID string, shares int64, price decimal.Decimal) (int64, error) {
	if shares <= 0 {
		return 0, fmt.Errorf("share count must be positive, got %d", shares)
	}

	existing, err := r.Get(q, investorID, companyID)
	if err != nil {
		return 0, err
	}

	now := time.Now().Unix()

	if existing == nil {
		query := `
			INSERT INTO holdings (investor_id, company_id, shares, avg_price, last_updated)
			VALUES (?, ?, ?, ?, ?)
		`
		if _, err := q.Exec(query, investorID, companyID, shares, price.String(), now); err != nil {
			return 0, fmt.Errorf("failed to create holding: %w", err)
		}
		return shares, nil
	}

	oldCost := decimal.NewFromInt(existing.Shares).Mul(existing.AvgPrice)
	addedCost := decimal.NewFromInt(shares).Mul(price)
	newShares := existing.Shares + shares
	newAvg := oldCost.Add(addedCost).Div(decimal.NewFromInt(newShares))

	query := `
		UPDATE holdings SET shares = ?, avg_price = ?, last_updated = ?
		WHERE investor_id = ? AND company_id = ?
	`
	if _, err := q.Exec(query, newShares, newAvg.String(), now, investorID, companyID); err != nil {
		return 0, fmt.Errorf("failed to update holding: %w", err)
	}

	return newShares, nil
}

// RemoveShares applies a sell to the holding: decrements the share
// count, deleting the row when it reaches exactly 0. The cost basis is
// never recomputed on a sell. Returns the remaining share count.
func (r *Repository) RemoveShares(q database.Queryer, investorID, companyID string, shares int64) (int64, error) {
	if shares <= 0 {
		return 0, fmt.Errorf("share count must be positive, got %d", shares)
	}

	existing, err := r.Get(q, investorID, companyID)
	if err != nil {
		return 0, err
	}
	if existing == nil {
		return 0, fmt.Errorf("no holding for investor %q in company %q", investorID, companyID)
	}
	if existing.Shares < shares {
		return 0, fmt.Errorf("holding has %d shares, cannot remove %d", existing.Shares, shares)
	}

	remaining := existing.Shares - shares

	if remaining == 0 {
		query := `DELETE FROM holdings WHERE investor_id = ? AND company_id = ?`
		if _, err := q.Exec(query, investorID, companyID); err != nil {
			return 0, fmt.Errorf("failed to delete emptied holding: %w", err)
		}
		return 0, nil
	}

	query := `
		UPDATE holdings SET shares = ?, last_updated = ?
		WHERE investor_id = ? AND company_id = ?
	`
	if _, err := q.Exec(query, remaining, time.Now().Unix(), investorID, companyID); err != nil {
		return 0, fmt.Errorf("failed to update holding: %w", err)
	}

	return remaining, nil
}

func scanHolding(row *sql.Row) (domain.Holding, error) {
	var h domain.Holding
	var avgPrice string
	var lastUpdated int64

	err := row.Scan(&h.InvestorID, &h.CompanyID, &h.Shares, &avgPrice, &lastUpdated)
	if err != nil {
		return h, err
	}

	if h.AvgPrice, err = decimal.NewFromString(avgPrice); err != nil {
		return h, fmt.Errorf("invalid avg price %q: %w", avgPrice, err)
	}
	h.LastUpdated = time.Unix(lastUpdated, 0).UTC()

	return h, nil
}
