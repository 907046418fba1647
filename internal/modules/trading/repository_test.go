package trading

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/exchange/internal/database"
	"github.com/aristath/exchange/internal/domain"
	exchangetesting "github.com/aristath/exchange/internal/testing"
)

func newTradeRepo(t *testing.T) (*Repository, *database.DB, func()) {
	t.Helper()
	db, cleanup := exchangetesting.NewTestDB(t, "ledger")
	repo := NewRepository(db, zerolog.New(nil).Level(zerolog.Disabled))
	return repo, db, cleanup
}

func makeTrade(investorID, companyID string, side domain.TradeSide, shares int64, executedAt time.Time) domain.Trade {
	price := decimal.NewFromInt(100)
	return domain.Trade{
		ID:         uuid.New().String(),
		InvestorID: investorID,
		CompanyID:  companyID,
		Side:       side,
		Shares:     shares,
		Price:      price,
		TotalValue: price.Mul(decimal.NewFromInt(shares)),
		ExecutedAt: executedAt,
	}
}

func TestAppendTradeAndGetHistory(t *testing.T) {
	repo, db, cleanup := newTradeRepo(t)
	defer cleanup()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		trade := makeTrade("inv-1", "acme", domain.TradeSideBuy, int64(i+1), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.AppendTrade(db.Conn(), trade))
	}

	trades, err := repo.GetHistory(10)
	require.NoError(t, err)
	require.Len(t, trades, 3)

	// Most recent first
	assert.Equal(t, int64(3), trades[0].Shares)
	assert.Equal(t, int64(1), trades[2].Shares)
	assert.True(t, trades[0].ExecutedAt.After(trades[2].ExecutedAt))
}

func TestGetHistory_RespectsLimit(t *testing.T) {
	repo, db, cleanup := newTradeRepo(t)
	defer cleanup()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.AppendTrade(db.Conn(),
			makeTrade("inv-1", "acme", domain.TradeSideBuy, 1, base.Add(time.Duration(i)*time.Second))))
	}

	trades, err := repo.GetHistory(2)
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestGetByInvestorAndCompany(t *testing.T) {
	repo, db, cleanup := newTradeRepo(t)
	defer cleanup()

	now := time.Now().UTC()
	require.NoError(t, repo.AppendTrade(db.Conn(), makeTrade("inv-1", "acme", domain.TradeSideBuy, 10, now)))
	require.NoError(t, repo.AppendTrade(db.Conn(), makeTrade("inv-1", "zeta", domain.TradeSideBuy, 20, now)))
	require.NoError(t, repo.AppendTrade(db.Conn(), makeTrade("inv-2", "acme", domain.TradeSideSell, 5, now)))

	byInvestor, err := repo.GetByInvestor("inv-1", 10)
	require.NoError(t, err)
	require.Len(t, byInvestor, 2)
	for _, trade := range byInvestor {
		assert.Equal(t, "inv-1", trade.InvestorID)
	}

	byCompany, err := repo.GetByCompany("acme", 10)
	require.NoError(t, err)
	require.Len(t, byCompany, 2)
	for _, trade := range byCompany {
		assert.Equal(t, "acme", trade.CompanyID)
	}
}

func TestAppendTrade_RejectsInvalidRecord(t *testing.T) {
	repo, db, cleanup := newTradeRepo(t)
	defer cleanup()

	bad := makeTrade("inv-1", "acme", domain.TradeSide("SHORT"), 1, time.Now())
	assert.Error(t, repo.AppendTrade(db.Conn(), bad))

	zeroShares := makeTrade("inv-1", "acme", domain.TradeSideBuy, 0, time.Now())
	assert.Error(t, repo.AppendTrade(db.Conn(), zeroShares))
}

func TestPriceHistory_OldestFirst(t *testing.T) {
	repo, db, cleanup := newTradeRepo(t)
	defer cleanup()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		point := domain.PricePoint{
			CompanyID:  "acme",
			Price:      decimal.RequireFromString(fmt.Sprintf("100.%d", i)),
			RecordedAt: base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, repo.AppendPricePoint(db.Conn(), point))
	}
	require.NoError(t, repo.AppendPricePoint(db.Conn(), domain.PricePoint{
		CompanyID: "zeta", Price: decimal.NewFromInt(7), RecordedAt: base,
	}))

	points, err := repo.GetPriceHistory("acme", 0)
	require.NoError(t, err)
	require.Len(t, points, 4)

	assert.True(t, points[0].Price.Equal(decimal.RequireFromString("100.0")))
	assert.True(t, points[3].Price.Equal(decimal.RequireFromString("100.3")))

	limited, err := repo.GetPriceHistory("acme", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
