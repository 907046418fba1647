package vesting

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/exchange/internal/domain"
	exchangetesting "github.com/aristath/exchange/internal/testing"
)

func TestRepository_CreateAndGetSorted(t *testing.T) {
	db, cleanup := exchangetesting.NewTestDB(t, "ledger")
	defer cleanup()

	log := zerolog.New(nil).Level(zerolog.Disabled)
	repo := NewRepository(db, log)

	later := time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)
	earlier := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	// Insert out of order
	_, err := repo.Create(domain.VestingGrant{InvestorID: "inv-1", CompanyID: "acme", Shares: 40, VestsAt: later})
	require.NoError(t, err)
	_, err = repo.Create(domain.VestingGrant{InvestorID: "inv-1", CompanyID: "acme", Shares: 60, VestsAt: earlier})
	require.NoError(t, err)

	// Grant for another pair must not leak in
	_, err = repo.Create(domain.VestingGrant{InvestorID: "inv-2", CompanyID: "acme", Shares: 10, VestsAt: earlier})
	require.NoError(t, err)

	grants, err := repo.GetGrants(db.Conn(), "inv-1", "acme")
	require.NoError(t, err)
	require.Len(t, grants, 2)

	assert.Equal(t, int64(60), grants[0].Shares, "grants must be sorted by vesting date ascending")
	assert.True(t, grants[0].VestsAt.Equal(earlier))
	assert.Equal(t, int64(40), grants[1].Shares)
	assert.True(t, grants[1].VestsAt.Equal(later))
}

func TestRepository_CreateRejectsNonPositiveShares(t *testing.T) {
	db, cleanup := exchangetesting.NewTestDB(t, "ledger")
	defer cleanup()

	repo := NewRepository(db, zerolog.New(nil).Level(zerolog.Disabled))

	_, err := repo.Create(domain.VestingGrant{InvestorID: "inv-1", CompanyID: "acme", Shares: 0, VestsAt: time.Now()})
	assert.Error(t, err)
}

func TestRepository_GetGrantsEmpty(t *testing.T) {
	db, cleanup := exchangetesting.NewTestDB(t, "ledger")
	defer cleanup()

	repo := NewRepository(db, zerolog.New(nil).Level(zerolog.Disabled))

	grants, err := repo.GetGrants(db.Conn(), "nobody", "acme")
	assert.NoError(t, err)
	assert.Empty(t, grants)
}
