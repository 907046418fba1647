package portfolio

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/exchange/internal/database"
	"github.com/aristath/exchange/internal/domain"
	"github.com/aristath/exchange/internal/modules/vesting"
)

// CompanyProvider supplies company data for portfolio views.
type CompanyProvider interface {
	Get(q database.Queryer, companyID string) (*domain.Company, error)
}

// GrantProvider supplies vesting grants for portfolio views.
type GrantProvider interface {
	GetGrants(q database.Queryer, investorID, companyID string) ([]domain.VestingGrant, error)
}

// Position is one holding enriched with market and vesting data for
// display by the surrounding system.
type Position struct {
	NextUnlock     *time.Time      `json:"next_unlock,omitempty"`
	CompanyID      string          `json:"company_id"`
	CompanyName    string          `json:"company_name"`
	AvgPrice       decimal.Decimal `json:"avg_price"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	MarketValue    decimal.Decimal `json:"market_value"`
	UnrealizedPL   decimal.Decimal `json:"unrealized_pl"`
	Shares         int64           `json:"shares"`
	SellableShares int64           `json:"sellable_shares"`
	LockedShares   int64           `json:"locked_shares"`
}

// Summary is an investor's full portfolio view.
type Summary struct {
	InvestorID  string          `json:"investor_id"`
	CashBalance decimal.Decimal `json:"cash_balance"`
	TotalValue  decimal.Decimal `json:"total_value"` // Cash + market value of all positions
	Positions   []Position      `json:"positions"`
}

// AccountProvider supplies account data for portfolio views.
type AccountProvider interface {
	Get(q database.Queryer, investorID string) (*domain.InvestorAccount, error)
}

// Service builds read-side portfolio summaries. It never mutates state.
type Service struct {
	db        *database.DB
	holdings  *Repository
	companies CompanyProvider
	accounts  AccountProvider
	grants    GrantProvider
	now       func() time.Time
	log       zerolog.Logger
}

// NewService creates a new portfolio service
func NewService(
	db *database.DB,
	holdings *Repository,
	companies CompanyProvider,
	accounts AccountProvider,
	grants GrantProvider,
	log zerolog.Logger,
) *Service {
	return &Service{
		db:        db,
		holdings:  holdings,
		companies: companies,
		accounts:  accounts,
		grants:    grants,
		now:       time.Now,
		log:       log.With().Str("service", "portfolio").Logger(),
	}
}

// GetSummary returns the investor's cash balance and enriched positions.
// An investor with no account yet gets an empty summary, mirroring the
// engine's lazy account creation.
func (s *Service) GetSummary(investorID string) (*Summary, error) {
	conn := s.db.Conn()

	summary := &Summary{
		InvestorID:  investorID,
		CashBalance: decimal.Zero,
		Positions:   []Position{},
	}

	account, err := s.accounts.Get(conn, investorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account != nil {
		summary.CashBalance = account.CashBalance
	}

	holdings, err := s.holdings.GetAllForInvestor(investorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get holdings: %w", err)
	}

	asOf := s.now()
	total := summary.CashBalance

	for _, h := range holdings {
		company, err := s.companies.Get(conn, h.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("failed to get company %s: %w", h.CompanyID, err)
		}
		if company == nil {
			s.log.Warn().Str("company_id", h.CompanyID).Msg("Holding references unknown company, skipping")
			continue
		}

		grants, err := s.grants.GetGrants(conn, investorID, h.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("failed to get grants for %s: %w", h.CompanyID, err)
		}
		breakdown := vesting.Resolve(h.Shares, grants, asOf)

		sharesDec := decimal.NewFromInt(h.Shares)
		marketValue := sharesDec.Mul(company.CurrentPrice)
		costBasis := sharesDec.Mul(h.AvgPrice)

		summary.Positions = append(summary.Positions, Position{
			CompanyID:      h.CompanyID,
			CompanyName:    company.Name,
			Shares:         h.Shares,
			AvgPrice:       h.AvgPrice,
			CurrentPrice:   company.CurrentPrice,
			MarketValue:    marketValue,
			UnrealizedPL:   marketValue.Sub(costBasis),
			SellableShares: breakdown.Sellable,
			LockedShares:   breakdown.Locked,
			NextUnlock:     breakdown.NextUnlock,
		})

		total = total.Add(marketValue)
	}

	summary.TotalValue = total
	return summary, nil
}
