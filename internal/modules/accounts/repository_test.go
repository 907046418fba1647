package accounts

import (
	"database/sql"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/exchange/internal/database"
	exchangetesting "github.com/aristath/exchange/internal/testing"
)

func newRepo(t *testing.T) (*Repository, *database.DB, func()) {
	t.Helper()
	db, cleanup := exchangetesting.NewTestDB(t, "ledger")
	repo := NewRepository(db, zerolog.New(nil).Level(zerolog.Disabled))
	return repo, db, cleanup
}

func TestGetOrCreate_CreatesZeroBalanceAccount(t *testing.T) {
	repo, db, cleanup := newRepo(t)
	defer cleanup()

	account, err := repo.GetOrCreate(db.Conn(), "inv-1")
	require.NoError(t, err)

	assert.Equal(t, "inv-1", account.InvestorID)
	assert.True(t, account.CashBalance.IsZero())
}

func TestGetOrCreate_IsIdempotent(t *testing.T) {
	repo, db, cleanup := newRepo(t)
	defer cleanup()

	_, err := repo.GetOrCreate(db.Conn(), "inv-1")
	require.NoError(t, err)

	_, err = repo.Credit(db.Conn(), "inv-1", decimal.NewFromInt(500))
	require.NoError(t, err)

	// Second GetOrCreate must not reset the balance
	account, err := repo.GetOrCreate(db.Conn(), "inv-1")
	require.NoError(t, err)
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(500)))
}

func TestGet_MissingAccountReturnsNil(t *testing.T) {
	repo, db, cleanup := newRepo(t)
	defer cleanup()

	account, err := repo.Get(db.Conn(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestCreditAndDebit(t *testing.T) {
	repo, db, cleanup := newRepo(t)
	defer cleanup()

	_, err := repo.GetOrCreate(db.Conn(), "inv-1")
	require.NoError(t, err)

	balance, err := repo.Credit(db.Conn(), "inv-1", decimal.RequireFromString("100.50"))
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("100.50")))

	balance, err = repo.Debit(db.Conn(), "inv-1", decimal.RequireFromString("0.50"))
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)))
}

func TestDebit_RejectsOverdraft(t *testing.T) {
	repo, db, cleanup := newRepo(t)
	defer cleanup()

	_, err := repo.GetOrCreate(db.Conn(), "inv-1")
	require.NoError(t, err)
	_, err = repo.Credit(db.Conn(), "inv-1", decimal.NewFromInt(10))
	require.NoError(t, err)

	_, err = repo.Debit(db.Conn(), "inv-1", decimal.NewFromInt(11))
	assert.Error(t, err)

	// Balance untouched
	account, err := repo.Get(db.Conn(), "inv-1")
	require.NoError(t, err)
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(10)))
}

func TestGetOrCreate_ConcurrentFirstTouch(t *testing.T) {
	repo, db, cleanup := newRepo(t)
	defer cleanup()

	// Two first trades by the same investor against different companies
	// run under different locks, so the bootstrap upsert races with
	// itself. Every caller must succeed.
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.GetOrCreate(db.Conn(), "inv-1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	account, err := repo.Get(db.Conn(), "inv-1")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.True(t, account.CashBalance.IsZero())
}

func TestCredit_ConcurrentDepositsSerialize(t *testing.T) {
	repo, db, cleanup := newRepo(t)
	defer cleanup()

	_, err := repo.GetOrCreate(db.Conn(), "inv-1")
	require.NoError(t, err)

	// Each credit is a read-modify-write; run inside a transaction, none
	// may be lost to a concurrent writer.
	const deposits = 50
	var wg sync.WaitGroup
	errs := make(chan error, deposits)
	for i := 0; i < deposits; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- database.WithTransaction(db.Conn(), func(tx *sql.Tx) error {
				_, err := repo.Credit(tx, "inv-1", decimal.NewFromInt(1))
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	account, err := repo.Get(db.Conn(), "inv-1")
	require.NoError(t, err)
	assert.True(t, account.CashBalance.Equal(decimal.NewFromInt(deposits)),
		"lost update: expected balance %d, got %s", deposits, account.CashBalance)
}

func TestDebit_RejectsNegativeAmount(t *testing.T) {
	repo, db, cleanup := newRepo(t)
	defer cleanup()

	_, err := repo.GetOrCreate(db.Conn(), "inv-1")
	require.NoError(t, err)

	_, err = repo.Debit(db.Conn(), "inv-1", decimal.NewFromInt(-5))
	assert.Error(t, err)

	_, err = repo.Credit(db.Conn(), "inv-1", decimal.NewFromInt(-5))
	assert.Error(t, err)
}
