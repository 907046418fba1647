package vesting

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/exchange/internal/database"
	"github.com/aristath/exchange/internal/domain"
)

// Repository handles vesting grant database operations. Grants are
// issued administratively and immutable afterwards; the trade engine
// only reads them.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new vesting grant repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "vesting").Logger(),
	}
}

// GetGrants returns all grants for an investor/company pair, sorted by
// vesting date ascending.
func (r *Repository) GetGrants(q database.Queryer, investorID, companyID string) ([]domain.VestingGrant, error) {
	query := `
		SELECT id, investor_id, company_id, shares, vests_at, created_at
		FROM vesting_grants
		WHERE investor_id = ? AND company_id = ?
		ORDER BY vests_at ASC
	`

	rows, err := q.Query(query, investorID, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query vesting grants: %w", err)
	}
	defer rows.Close()

	var grants []domain.VestingGrant
	for rows.Next() {
		var g domain.VestingGrant
		var vestsAt, createdAt int64

		if err := rows.Scan(&g.ID, &g.InvestorID, &g.CompanyID, &g.Shares, &vestsAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan vesting grant: %w", err)
		}

		g.VestsAt = time.Unix(vestsAt, 0).UTC()
		g.CreatedAt = time.Unix(createdAt, 0).UTC()
		grants = append(grants, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vesting grants: %w", err)
	}

	return grants, nil
}

// Create inserts a new grant (administrative gift issuance).
func (r *Repository) Create(grant domain.VestingGrant) (int64, error) {
	if grant.Shares <= 0 {
		return 0, fmt.Errorf("grant shares must be positive, got %d", grant.Shares)
	}

	query := `
		INSERT INTO vesting_grants (investor_id, company_id, shares, vests_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	res, err := r.db.Conn().Exec(query,
		grant.InvestorID,
		grant.CompanyID,
		grant.Shares,
		grant.VestsAt.Unix(),
		time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create vesting grant: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get vesting grant id: %w", err)
	}

	r.log.Info().
		Str("investor_id", grant.InvestorID).
		Str("company_id", grant.CompanyID).
		Int64("shares", grant.Shares).
		Time("vests_at", grant.VestsAt).
		Msg("Vesting grant created")

	return id, nil
}
