// Package companies manages the tradable company records.
package companies

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

const companyColumns = `id, name, current_price, valuation, total_shares, created_at`

// Repository handles company database operations. Company creation is
// an administrative concern; the trade engine only reads companies and
// updates their price through the pricing step.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new company repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "companies").Logger(),
	}
}

// Create inserts a new company with its initial price and fixed supply.
func (r *Repository) Create(company domain.Company) error {
	if company.TotalShares <= 0 {
		return fmt.Errorf("total shares must be positive, got %d", company.TotalShares)
	}
	if !company.CurrentPrice.IsPositive() {
		return fmt.Errorf("initial price must be positive, got %s", company.CurrentPrice)
	}

	valuation := decimal.NewFromInt(company.TotalShares).Mul(company.CurrentPrice)

	query := `
		INSERT INTO companies (id, name, current_price, valuation, total_shares, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Conn().Exec(query,
		company.ID,
		company.Name,
		company.CurrentPrice.String(),
		valuation.String(),
		company.TotalShares,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}

	r.log.Info().
		Str("company_id", company.ID).
		Str("price", company.CurrentPrice.String()).
		Int64("total_shares", company.TotalShares).
		Msg("Company created")

	return nil
}

// Get returns a company, or nil if it does not exist. Pass the engine's
// transaction handle to read the price inside the trade's scope.
func (r *Repository) Get(q database.Queryer, companyID string) (*domain.Company, error) {
	query := "SELECT " + companyColumns + " FROM companies WHERE id = ?"

	company, err := scanCompany(q.QueryRow(query, companyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}

	return &company, nil
}

// List returns all companies ordered by name.
func (r *Repository) List() ([]domain.Company, error) {
	query := "SELECT " + companyColumns + " FROM companies ORDER BY name ASC"

	rows, err := r.db.Conn().Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", err)
	}
	defer rows.Close()

	var result []domain.Company
	for rows.Next() {
		var company domain.Company
		var price, valuation string
		var createdAt int64

		if err := rows.Scan(&company.ID, &company.Name, &price, &valuation, &company.TotalShares, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}

		if company.CurrentPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", price, err)
		}
		if company.Valuation, err = decimal.NewFromString(valuation); err != nil {
			return nil, fmt.Errorf("invalid valuation %q: %w", valuation, err)
		}
		company.CreatedAt = time.Unix(createdAt, 0).UTC()

		result = append(result, company)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating companies: %w", err)
	}

	return result, nil
}

// UpdatePrice persists a new price and its matching valuation. Only the
// trade engine's pricing step calls this, inside the trade transaction.
func (r *Repository) UpdatePrice(q database.Queryer, companyID string, price, valuation decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("price must stay positive, got %s", price)
	}

	query := `UPDATE companies SET current_price = ?, valuation = ? WHERE id = ?`

	res, err := q.Exec(query, price.String(), valuation.String(), companyID)
	if err != nil {
		return fmt.Errorf("failed to update company price: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check price update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("company %q not found for price update", companyID)
	}

	return nil
}

func scanCompany(row *sql.Row) (domain.Company, error) {
	var company domain.Company
	var price, valuation string
	var createdAt int64

	err := row.Scan(&company.ID, &company.Name, &price, &valuation, &company.TotalShares, &createdAt)
	if err != nil {
		return company, err
	}

	if company.CurrentPrice, err = decimal.NewFromString(price); err != nil {
		return company, fmt.Errorf("invalid price %q: %w", price, err)
	}
	if company.Valuation, err = decimal.NewFromString(valuation); err != nil {
		return company, fmt.Errorf("invalid valuation %q: %w", valuation, err)
	}
	company.CreatedAt = time.Unix(createdAt, 0).UTC()

	return company, nil
}
