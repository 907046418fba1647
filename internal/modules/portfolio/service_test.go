package portfolio

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/exchange/internal/database"
	"github.com/aristath/exchange/internal/domain"
	"github.com/aristath/exchange/internal/modules/accounts"
	"github.com/aristath/exchange/internal/modules/companies"
	"github.com/aristath/exchange/internal/modules/vesting"
	exchangetesting "github.com/aristath/exchange/internal/testing"
)

func newService(t *testing.T) (*Service, *database.DB, func()) {
	t.Helper()

	db, cleanup := exchangetesting.NewTestDB(t, "ledger")
	log := zerolog.New(nil).Level(zerolog.Disabled)

	svc := NewService(
		db,
		NewRepository(db, log),
		companies.NewRepository(db, log),
		accounts.NewRepository(db, log),
		vesting.NewRepository(db, log),
		log,
	)
	return svc, db, cleanup
}

func TestGetSummary_UnknownInvestorIsEmpty(t *testing.T) {
	svc, _, cleanup := newService(t)
	defer cleanup()

	summary, err := svc.GetSummary("nobody")
	require.NoError(t, err)

	assert.Equal(t, "nobody", summary.InvestorID)
	assert.True(t, summary.CashBalance.IsZero())
	assert.True(t, summary.TotalValue.IsZero())
	assert.Empty(t, summary.Positions)
	assert.NotNil(t, summary.Positions, "positions must serialize as [], not null")
}

func TestGetSummary_EnrichedPositions(t *testing.T) {
	svc, db, cleanup := newService(t)
	defer cleanup()

	log := zerolog.New(nil).Level(zerolog.Disabled)
	accountRepo := accounts.NewRepository(db, log)
	companyRepo := companies.NewRepository(db, log)
	holdingRepo := NewRepository(db, log)
	grantRepo := vesting.NewRepository(db, log)

	_, err := accountRepo.GetOrCreate(db.Conn(), "inv-1")
	require.NoError(t, err)
	_, err = accountRepo.Credit(db.Conn(), "inv-1", decimal.NewFromInt(500))
	require.NoError(t, err)

	require.NoError(t, companyRepo.Create(domain.Company{
		ID: "acme", Name: "Acme Corp", CurrentPrice: decimal.NewFromInt(120), TotalShares: 10000,
	}))

	// 10 shares bought at an average of 100, now worth 120 each
	_, err = holdingRepo.AddShares(db.Conn(), "inv-1", "acme", 10, decimal.NewFromInt(100))
	require.NoError(t, err)

	// 4 of them are gifted and unvested
	vestsAt := time.Now().UTC().AddDate(0, 1, 0)
	_, err = grantRepo.Create(domain.VestingGrant{InvestorID: "inv-1", CompanyID: "acme", Shares: 4, VestsAt: vestsAt})
	require.NoError(t, err)

	summary, err := svc.GetSummary("inv-1")
	require.NoError(t, err)

	assert.True(t, summary.CashBalance.Equal(decimal.NewFromInt(500)))
	require.Len(t, summary.Positions, 1)

	pos := summary.Positions[0]
	assert.Equal(t, "Acme Corp", pos.CompanyName)
	assert.Equal(t, int64(10), pos.Shares)
	assert.True(t, pos.MarketValue.Equal(decimal.NewFromInt(1200)))
	// P/L: 10 * (120 - 100)
	assert.True(t, pos.UnrealizedPL.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, int64(6), pos.SellableShares)
	assert.Equal(t, int64(4), pos.LockedShares)
	require.NotNil(t, pos.NextUnlock)

	// Total = cash + market value
	assert.True(t, summary.TotalValue.Equal(decimal.NewFromInt(1700)))
}
