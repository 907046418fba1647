// Package accounts manages investor cash balances.
package accounts

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

// Repository handles investor account database operations. Balance
// mutations take a Queryer so the trade engine can run them inside its
// transaction.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new account repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "accounts").Logger(),
	}
}

// Get returns an account, or nil if it does not exist.
func (r *Repository) Get(q database.Queryer, investorID string) (*domain.InvestorAccount, error) {
	query := `SELECT investor_id, cash_balance, created_at FROM accounts WHERE investor_id = ?`

	account, err := scanAccount(q.QueryRow(query, investorID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

// GetOrCreate returns the account, creating it with a zero balance if
// absent. Creation is an idempotent upsert: one investor's first trades
// against two different companies run under different locks, so two
// transactions may bootstrap the same account concurrently and both
// must succeed.
func (r *Repository) GetOrCreate(q database.Queryer, investorID string) (domain.InvestorAccount, error) {
	query := `
		INSERT INTO accounts (investor_id, cash_balance, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(investor_id) DO NOTHING
	`
	res, err := q.Exec(query, investorID, decimal.Zero.String(), time.Now().UTC().Unix())
	if err != nil {
		return domain.InvestorAccount{}, fmt.Errorf("failed to create account: %w", err)
	}
	if created, err := res.RowsAffected(); err == nil && created > 0 {
		r.log.Debug().Str("investor_id", investorID).Msg("Account created lazily")
	}

	account, err := r.Get(q, investorID)
	if err != nil {
		return domain.InvestorAccount{}, err
	}
	if account == nil {
		return domain.InvestorAccount{}, fmt.Errorf("account %q missing after upsert", investorID)
	}

	return *account, nil
}

// Credit adds amount to the balance and returns the new balance.
func (r *Repository) Credit(q database.Queryer, investorID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("credit amount must not be negative, got %s", amount)
	}

	account, err := r.Get(q, investorID)
	if err != nil {
		return decimal.Zero, err
	}
	if account == nil {
		return decimal.Zero, fmt.Errorf("account %q not found", investorID)
	}

	newBalance := account.CashBalance.Add(amount)
	if err := r.setBalance(q, investorID, newBalance); err != nil {
		return decimal.Zero, err
	}

	return newBalance, nil
}

// Debit subtracts amount from the balance and returns the new balance.
// The balance must never go negative; callers validate funds first and
// this guard backs them up.
func (r *Repository) Debit(q database.Queryer, investorID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("debit amount must not be negative, got %s", amount)
	}

	account, err := r.Get(q, investorID)
	if err != nil {
		return decimal.Zero, err
	}
	if account == nil {
		return decimal.Zero, fmt.Errorf("account %q not found", investorID)
	}

	newBalance := account.CashBalance.Sub(amount)
	if newBalance.IsNegative() {
		return decimal.Zero, fmt.Errorf("debit of %s would leave account %q negative (balance %s)",
			amount, investorID, account.CashBalance)
	}

	if err := r.setBalance(q, investorID, newBalance); err != nil {
		return decimal.Zero, err
	}

	return newBalance, nil
}

func (r *Repository) setBalance(q database.Queryer, investorID string, balance decimal.Decimal) error {
	query := `UPDATE accounts SET cash_balance = ? WHERE investor_id = ?`
	if _, err := q.Exec(query, balance.String(), investorID); err != nil {
		return fmt.Errorf("failed to update account balance: %w", err)
	}
	return nil
}

func scanAccount(row *sql.Row) (domain.InvestorAccount, error) {
	var account domain.InvestorAccount
	var balance string
	var createdAt int64

	if err := row.Scan(&account.InvestorID, &balance, &createdAt); err != nil {
		return account, err
	}

	parsed, err := decimal.NewFromString(balance)
	if err != nil {
		return account, fmt.Errorf("invalid cash balance %q: %w", balance, err)
	}

	account.CashBalance = parsed
	account.CreatedAt = time.Unix(createdAt, 0).UTC()
	return account, nil
}
