// Package server provides the HTTP server and routing for the exchange.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/exchange/internal/database"
	"github.com/aristath/exchange/internal/modules/accounts"
	"github.com/aristath/exchange/internal/modules/charts"
	"github.com/aristath/exchange/internal/modules/companies"
	"github.com/aristath/exchange/internal/modules/portfolio"
	"github.com/aristath/exchange/internal/modules/trading"
	"github.com/aristath/exchange/internal/modules/vesting"
)

// Config holds server configuration
type Config struct {
	Log              zerolog.Logger
	LedgerDB         *database.DB
	Engine           *trading.Engine
	TradeRepo        *trading.Repository
	CompanyRepo      *companies.Repository
	AccountRepo      *accounts.Repository
	GrantRepo        *vesting.Repository
	PortfolioService *portfolio.Service
	ChartsService    *charts.Service
	Port             int
	DevMode          bool
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	handlers       *Handlers
	systemHandlers *SystemHandlers
	port           int
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		handlers: NewHandlers(
			cfg.LedgerDB,
			cfg.Engine,
			cfg.TradeRepo,
			cfg.CompanyRepo,
			cfg.AccountRepo,
			cfg.GrantRepo,
			cfg.PortfolioService,
			cfg.ChartsService,
			cfg.Log,
		),
		systemHandlers: NewSystemHandlers(cfg.LedgerDB, cfg.Log),
		port:           cfg.Port,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	if devMode {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		// Trade execution and history
		r.Post("/trades", s.handlers.HandleExecuteTrade)
		r.Get("/trades", s.handlers.HandleGetTrades)

		// Investor state
		r.Get("/investors/{investorID}/portfolio", s.handlers.HandleGetPortfolio)
		r.Get("/investors/{investorID}/trades", s.handlers.HandleGetInvestorTrades)
		r.Post("/investors/{investorID}/deposits", s.handlers.HandleDeposit)

		// Companies and price history
		r.Get("/companies", s.handlers.HandleListCompanies)
		r.Post("/companies", s.handlers.HandleCreateCompany)
		r.Get("/companies/{companyID}/trades", s.handlers.HandleGetCompanyTrades)
		r.Get("/companies/{companyID}/prices", s.handlers.HandleGetPriceHistory)

		// Administrative vesting grant issuance
		r.Post("/vesting/grants", s.handlers.HandleCreateGrant)

		// System
		r.Get("/system/health", s.systemHandlers.HandleHealth)
	})
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the router for tests
func (s *Server) Router() http.Handler {
	return s.router
}
