package trading

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/exchange/internal/database"
	"github.com/aristath/exchange/internal/domain"
	"github.com/aristath/exchange/internal/modules/pricing"
	"github.com/aristath/exchange/internal/modules/vesting"
)

// AccountStore is the account access the engine needs.
type AccountStore interface {
	GetOrCreate(q database.Queryer, investorID string) (domain.InvestorAccount, error)
	Credit(q database.Queryer, investorID string, amount decimal.Decimal) (decimal.Decimal, error)
	Debit(q database.Queryer, investorID string, amount decimal.Decimal) (decimal.Decimal, error)
}

// CompanyStore is the company access the engine needs.
type CompanyStore interface {
	Get(q database.Queryer, companyID string) (*domain.Company, error)
	UpdatePrice(q database.Queryer, companyID string, price, valuation decimal.Decimal) error
}

// HoldingStore is the holding access the engine needs.
type HoldingStore interface {
	Get(q database.Queryer, investorID, companyID string) (*domain.Holding, error)
	AddShares(q database.Queryer, investorID, companyID string, shares int64, price decimal.Decimal) (int64, error)
	RemoveShares(q database.Queryer, investorID, companyID string, shares int64) (int64, error)
}

// GrantStore is the vesting grant access the engine needs.
type GrantStore interface {
	GetGrants(q database.Queryer, investorID, companyID string) ([]domain.VestingGrant, error)
}

// TradeLog is the append-only history access the engine needs.
type TradeLog interface {
	AppendTrade(q database.Queryer, trade domain.Trade) error
	AppendPricePoint(q database.Queryer, point domain.PricePoint) error
}

// Request is one buy or sell order for the engine.
type Request struct {
	InvestorID string           `json:"investor_id"`
	CompanyID  string           `json:"company_id"`
	Side       domain.TradeSide `json:"type"`
	Shares     int64            `json:"shares"`
}

// Result is the final state returned after a committed trade. Price is
// the execution (pre-trade) price on the trade record; NewCompanyPrice
// is the price after this trade's impact.
type Result struct {
	Trade              domain.Trade    `json:"trade"`
	NewBalance         decimal.Decimal `json:"new_balance"`
	NewCompanyPrice    decimal.Decimal `json:"new_company_price"`
	NewPortfolioShares int64           `json:"new_portfolio_shares"`
}

// Engine executes trades end-to-end: validation, vesting check, balance
// and holding mutation, price update, and history append, as one atomic
// unit per trade.
//
// Trades against the same company are serialized by a per-company lock
// held across the whole transaction, so each trade's pricing step sees
// the price left by the previous one. Trades against different
// companies run in parallel. The engine never retries; contention and
// storage failures are returned as retryable errors for the caller.
type Engine struct {
	db        *database.DB
	accounts  AccountStore
	companies CompanyStore
	holdings  HoldingStore
	grants    GrantStore
	tradeLog  TradeLog
	locks     *companyLocks
	lockWait  time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewEngine creates a new trade engine
func NewEngine(
	db *database.DB,
	accounts AccountStore,
	companies CompanyStore,
	holdings HoldingStore,
	grants GrantStore,
	tradeLog TradeLog,
	lockWait time.Duration,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		db:        db,
		accounts:  accounts,
		companies: companies,
		holdings:  holdings,
		grants:    grants,
		tradeLog:  tradeLog,
		locks:     newCompanyLocks(),
		lockWait:  lockWait,
		now:       time.Now,
		log:       log.With().Str("service", "trade_engine").Logger(),
	}
}

// Execute runs one trade. On any failure the ledger is left untouched:
// validation failures return before any write, and writes happen inside
// a single transaction that rolls back as a whole.
func (e *Engine) Execute(req Request) (*Result, error) {
	if req.Shares <= 0 {
		return nil, domain.NewInvalidRequest("share count must be a positive integer")
	}
	if err := req.Side.Validate(); err != nil {
		return nil, domain.NewInvalidRequest(err.Error())
	}

	// Existence check before taking the lock: lock entries live for the
	// process lifetime, so unknown company IDs must never create one.
	// The authoritative read happens again inside the transaction.
	known, err := e.companies.Get(e.db.Conn(), req.CompanyID)
	if err != nil {
		return nil, domain.NewStorageFailure(err)
	}
	if known == nil {
		return nil, domain.NewCompanyNotFound(req.CompanyID)
	}

	if !e.locks.Acquire(req.CompanyID, e.lockWait) {
		e.log.Warn().
			Str("company_id", req.CompanyID).
			Dur("waited", e.lockWait).
			Msg("Trade lock acquisition timed out")
		return nil, domain.NewContention(req.CompanyID, e.lockWait)
	}
	defer e.locks.Release(req.CompanyID)

	var result *Result
	err = database.WithTransaction(e.db.Conn(), func(tx *sql.Tx) error {
		var txErr error
		result, txErr = e.executeInTx(tx, req)
		return txErr
	})
	if err != nil {
		var tradeErr *domain.TradeError
		if errors.As(err, &tradeErr) {
			return nil, tradeErr
		}
		e.log.Error().Err(err).
			Str("investor_id", req.InvestorID).
			Str("company_id", req.CompanyID).
			Msg("Trade transaction failed")
		return nil, domain.NewStorageFailure(err)
	}

	e.log.Info().
		Str("trade_id", result.Trade.ID).
		Str("investor_id", req.InvestorID).
		Str("company_id", req.CompanyID).
		Str("side", string(req.Side)).
		Int64("shares", req.Shares).
		Str("price", result.Trade.Price.String()).
		Str("new_price", result.NewCompanyPrice.String()).
		Msg("Trade executed")

	return result, nil
}

func (e *Engine) executeInTx(tx *sql.Tx, req Request) (*Result, error) {
	company, err := e.companies.Get(tx, req.CompanyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, domain.NewCompanyNotFound(req.CompanyID)
	}

	account, err := e.accounts.GetOrCreate(tx, req.InvestorID)
	if err != nil {
		return nil, err
	}

	// Execution price is always the pre-trade price.
	execPrice := company.CurrentPrice
	totalValue := decimal.NewFromInt(req.Shares).Mul(execPrice)

	var newBalance decimal.Decimal
	var newShares int64
	var newPrice decimal.Decimal

	switch req.Side {
	case domain.TradeSideBuy:
		if account.CashBalance.LessThan(totalValue) {
			return nil, domain.NewInsufficientFunds(totalValue.String(), account.CashBalance.String())
		}

		if newBalance, err = e.accounts.Debit(tx, req.InvestorID, totalValue); err != nil {
			return nil, err
		}
		if newShares, err = e.holdings.AddShares(tx, req.InvestorID, req.CompanyID, req.Shares, execPrice); err != nil {
			return nil, err
		}

		newPrice = pricing.AfterBuy(execPrice, company.TotalShares, req.Shares)

	case domain.TradeSideSell:
		holding, err := e.holdings.Get(tx, req.InvestorID, req.CompanyID)
		if err != nil {
			return nil, err
		}
		held := int64(0)
		if holding != nil {
			held = holding.Shares
		}
		if held < req.Shares {
			return nil, domain.NewInsufficientShares(held, req.Shares)
		}

		grants, err := e.grants.GetGrants(tx, req.InvestorID, req.CompanyID)
		if err != nil {
			return nil, err
		}
		breakdown := vesting.Resolve(held, grants, e.now())
		if breakdown.Sellable < req.Shares {
			return nil, domain.NewSharesLocked(breakdown.Sellable, breakdown.Locked, req.Shares, breakdown.NextUnlock)
		}

		if newBalance, err = e.accounts.Credit(tx, req.InvestorID, totalValue); err != nil {
			return nil, err
		}
		if newShares, err = e.holdings.RemoveShares(tx, req.InvestorID, req.CompanyID, req.Shares); err != nil {
			return nil, err
		}

		newPrice = pricing.AfterSell(execPrice, company.TotalShares, req.Shares)
	}

	executedAt := e.now().UTC()
	trade := domain.Trade{
		ID:         uuid.New().String(),
		InvestorID: req.InvestorID,
		CompanyID:  req.CompanyID,
		Side:       req.Side,
		Shares:     req.Shares,
		Price:      execPrice,
		TotalValue: totalValue,
		ExecutedAt: executedAt,
	}
	if err := e.tradeLog.AppendTrade(tx, trade); err != nil {
		return nil, err
	}

	valuation := pricing.Valuation(company.TotalShares, newPrice)
	if err := e.companies.UpdatePrice(tx, req.CompanyID, newPrice, valuation); err != nil {
		return nil, err
	}

	point := domain.PricePoint{
		CompanyID:  req.CompanyID,
		Price:      newPrice,
		RecordedAt: executedAt,
	}
	if err := e.tradeLog.AppendPricePoint(tx, point); err != nil {
		return nil, err
	}

	return &Result{
		Trade:              trade,
		NewBalance:         newBalance,
		NewPortfolioShares: newShares,
		NewCompanyPrice:    newPrice,
	}, nil
}
