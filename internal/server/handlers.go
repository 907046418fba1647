package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/exchange/internal/database"
	"github.com/aristath/exchange/internal/domain"
	"github.com/aristath/exchange/internal/modules/accounts"
	"github.com/aristath/exchange/internal/modules/charts"
	"github.com/aristath/exchange/internal/modules/companies"
	"github.com/aristath/exchange/internal/modules/portfolio"
	"github.com/aristath/exchange/internal/modules/trading"
	"github.com/aristath/exchange/internal/modules/vesting"
)

// Handlers contains the HTTP handlers for the exchange API
type Handlers struct {
	db               *database.DB
	engine           *trading.Engine
	tradeRepo        *trading.Repository
	companyRepo      *companies.Repository
	accountRepo      *accounts.Repository
	grantRepo        *vesting.Repository
	portfolioService *portfolio.Service
	chartsService    *charts.Service
	log              zerolog.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(
	db *database.DB,
	engine *trading.Engine,
	tradeRepo *trading.Repository,
	companyRepo *companies.Repository,
	accountRepo *accounts.Repository,
	grantRepo *vesting.Repository,
	portfolioService *portfolio.Service,
	chartsService *charts.Service,
	log zerolog.Logger,
) *Handlers {
	return &Handlers{
		db:               db,
		engine:           engine,
		tradeRepo:        tradeRepo,
		companyRepo:      companyRepo,
		accountRepo:      accountRepo,
		grantRepo:        grantRepo,
		portfolioService: portfolioService,
		chartsService:    chartsService,
		log:              log.With().Str("handler", "api").Logger(),
	}
}

// HandleExecuteTrade runs one buy or sell
// POST /api/trades
func (h *Handlers) HandleExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req trading.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeTradeError(w, domain.NewInvalidRequest("malformed request body"))
		return
	}

	result, err := h.engine.Execute(req)
	if err != nil {
		var tradeErr *domain.TradeError
		if errors.As(err, &tradeErr) {
			writeTradeError(w, tradeErr)
			return
		}
		h.log.Error().Err(err).Msg("Trade execution failed")
		http.Error(w, "trade execution failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":               "ok",
		"trade":                result.Trade,
		"new_balance":          result.NewBalance,
		"new_portfolio_shares": result.NewPortfolioShares,
		"new_company_price":    result.NewCompanyPrice,
	})
}

// HandleGetTrades returns trade history
// GET /api/trades?limit=50
func (h *Handlers) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.tradeRepo.GetHistory(parseLimit(r, 50))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get trade history")
		http.Error(w, "failed to get trade history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trades": trades})
}

// HandleGetInvestorTrades returns one investor's trade history
// GET /api/investors/{investorID}/trades?limit=50
func (h *Handlers) HandleGetInvestorTrades(w http.ResponseWriter, r *http.Request) {
	investorID := chi.URLParam(r, "investorID")

	trades, err := h.tradeRepo.GetByInvestor(investorID, parseLimit(r, 50))
	if err != nil {
		h.log.Error().Err(err).Str("investor_id", investorID).Msg("Failed to get investor trades")
		http.Error(w, "failed to get trades", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trades": trades})
}

// HandleGetPortfolio returns an investor's portfolio summary
// GET /api/investors/{investorID}/portfolio
func (h *Handlers) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	investorID := chi.URLParam(r, "investorID")

	summary, err := h.portfolioService.GetSummary(investorID)
	if err != nil {
		h.log.Error().Err(err).Str("investor_id", investorID).Msg("Failed to build portfolio summary")
		http.Error(w, "failed to get portfolio", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleDeposit reflects externally settled cash into an investor's
// balance. Settlement itself happens outside this system.
// POST /api/investors/{investorID}/deposits
func (h *Handlers) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	investorID := chi.URLParam(r, "investorID")

	var body struct {
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || !amount.IsPositive() {
		http.Error(w, "amount must be a positive decimal", http.StatusBadRequest)
		return
	}

	// One transaction for the read-modify-write: concurrent deposits, or
	// a deposit racing a trade's debit, must serialize instead of
	// overwriting each other's balance.
	var newBalance decimal.Decimal
	err = database.WithTransaction(h.db.Conn(), func(tx *sql.Tx) error {
		if _, err := h.accountRepo.GetOrCreate(tx, investorID); err != nil {
			return err
		}
		newBalance, err = h.accountRepo.Credit(tx, investorID, amount)
		return err
	})
	if err != nil {
		h.log.Error().Err(err).Str("investor_id", investorID).Msg("Failed to credit deposit")
		http.Error(w, "failed to credit deposit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"new_balance": newBalance,
	})
}

// HandleListCompanies returns all companies
// GET /api/companies
func (h *Handlers) HandleListCompanies(w http.ResponseWriter, r *http.Request) {
	list, err := h.companyRepo.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list companies")
		http.Error(w, "failed to list companies", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"companies": list})
}

// HandleCreateCompany registers a new tradable company
// POST /api/companies
func (h *Handlers) HandleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Price       string `json:"price"`
		TotalShares int64  `json:"total_shares"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if body.ID == "" || body.Name == "" {
		http.Error(w, "id and name are required", http.StatusBadRequest)
		return
	}

	price, err := decimal.NewFromString(body.Price)
	if err != nil || !price.IsPositive() {
		http.Error(w, "price must be a positive decimal", http.StatusBadRequest)
		return
	}

	company := domain.Company{
		ID:           body.ID,
		Name:         body.Name,
		CurrentPrice: price,
		TotalShares:  body.TotalShares,
	}
	if err := h.companyRepo.Create(company); err != nil {
		h.log.Error().Err(err).Str("company_id", body.ID).Msg("Failed to create company")
		http.Error(w, "failed to create company", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"status": "ok"})
}

// HandleGetCompanyTrades returns a company's trade history
// GET /api/companies/{companyID}/trades?limit=50
func (h *Handlers) HandleGetCompanyTrades(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyID")

	trades, err := h.tradeRepo.GetByCompany(companyID, parseLimit(r, 50))
	if err != nil {
		h.log.Error().Err(err).Str("company_id", companyID).Msg("Failed to get company trades")
		http.Error(w, "failed to get trades", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trades": trades})
}

// HandleGetPriceHistory returns a company's price chart data
// GET /api/companies/{companyID}/prices?aggregate=daily
func (h *Handlers) HandleGetPriceHistory(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyID")

	var points []charts.DataPoint
	var err error
	if r.URL.Query().Get("aggregate") == "daily" {
		points, err = h.chartsService.GetDaily(companyID)
	} else {
		points, err = h.chartsService.GetRaw(companyID, parseLimit(r, 0))
	}
	if err != nil {
		h.log.Error().Err(err).Str("company_id", companyID).Msg("Failed to get price history")
		http.Error(w, "failed to get price history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"points": points})
}

// HandleCreateGrant issues a vesting grant (administrative)
// POST /api/vesting/grants
func (h *Handlers) HandleCreateGrant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		InvestorID string `json:"investor_id"`
		CompanyID  string `json:"company_id"`
		VestsAt    string `json:"vests_at"` // RFC3339
		Shares     int64  `json:"shares"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if body.InvestorID == "" || body.CompanyID == "" || body.Shares <= 0 {
		http.Error(w, "investor_id, company_id and positive shares are required", http.StatusBadRequest)
		return
	}

	vestsAt, err := time.Parse(time.RFC3339, body.VestsAt)
	if err != nil {
		http.Error(w, "vests_at must be RFC3339", http.StatusBadRequest)
		return
	}

	id, err := h.grantRepo.Create(domain.VestingGrant{
		InvestorID: body.InvestorID,
		CompanyID:  body.CompanyID,
		Shares:     body.Shares,
		VestsAt:    vestsAt,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create vesting grant")
		http.Error(w, "failed to create grant", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"status": "ok", "id": id})
}

// Helpers

func parseLimit(r *http.Request, def int) int {
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeTradeError maps an ErrorKind to an HTTP status and writes the
// structured failure body.
func writeTradeError(w http.ResponseWriter, err *domain.TradeError) {
	status := http.StatusInternalServerError
	switch err.Kind {
	case domain.ErrInvalidRequest:
		status = http.StatusBadRequest
	case domain.ErrCompanyNotFound:
		status = http.StatusNotFound
	case domain.ErrInsufficientFunds, domain.ErrInsufficientShares, domain.ErrSharesLocked:
		status = http.StatusConflict
	case domain.ErrContention:
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	case domain.ErrStorageFailure:
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, map[string]interface{}{
		"status":    "error",
		"kind":      err.Kind,
		"message":   err.Message,
		"retryable": err.Retryable,
		"details":   err.Details,
	})
}
