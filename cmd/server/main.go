// Package main is the entry point for the exchange share-trading engine.
// It wires the ledger database, repositories, trade engine, and HTTP
// server, then runs until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/exchange/internal/config"
	"github.com/aristath/exchange/internal/database"
	"github.com/aristath/exchange/internal/modules/accounts"
	"github.com/aristath/exchange/internal/modules/charts"
	"github.com/aristath/exchange/internal/modules/companies"
	"github.com/aristath/exchange/internal/modules/portfolio"
	"github.com/aristath/exchange/internal/modules/trading"
	"github.com/aristath/exchange/internal/modules/vesting"
	"github.com/aristath/exchange/internal/reliability"
	"github.com/aristath/exchange/internal/server"
	"github.com/aristath/exchange/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting exchange")

	// Single ledger database: accounts, companies, holdings, grants, and
	// the append-only trade/price history all live in one file so a trade
	// commits or rolls back as a whole.
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	if err := ledgerDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate ledger database")
	}

	// Repositories
	accountRepo := accounts.NewRepository(ledgerDB, log)
	companyRepo := companies.NewRepository(ledgerDB, log)
	holdingRepo := portfolio.NewRepository(ledgerDB, log)
	grantRepo := vesting.NewRepository(ledgerDB, log)
	tradeRepo := trading.NewRepository(ledgerDB, log)

	// Services
	engine := trading.NewEngine(
		ledgerDB,
		accountRepo,
		companyRepo,
		holdingRepo,
		grantRepo,
		tradeRepo,
		cfg.LockTimeout,
		log,
	)
	portfolioService := portfolio.NewService(ledgerDB, holdingRepo, companyRepo, accountRepo, grantRepo, log)
	chartsService := charts.NewService(tradeRepo, log)

	// Nightly ledger maintenance
	maintenance := reliability.NewMaintenanceJob(ledgerDB, log)
	cronScheduler, err := reliability.StartScheduler(maintenance, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start maintenance scheduler")
	}

	srv := server.New(server.Config{
		Log:              log,
		LedgerDB:         ledgerDB,
		Engine:           engine,
		TradeRepo:        tradeRepo,
		CompanyRepo:      companyRepo,
		AccountRepo:      accountRepo,
		GrantRepo:        grantRepo,
		PortfolioService: portfolioService,
		ChartsService:    chartsService,
		Port:             cfg.Port,
		DevMode:          cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	cronScheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Exchange stopped")
}
