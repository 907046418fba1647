// Package reliability contains ledger maintenance jobs.
package reliability

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/exchange/internal/database"
)

// MaintenanceJob performs nightly ledger maintenance: integrity check
// and WAL checkpoint. Trades themselves are never scheduled; this only
// keeps the database file healthy over long uptimes.
type MaintenanceJob struct {
	db  *database.DB
	log zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(db *database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:  db,
		log: log.With().Str("job", "maintenance").Logger(),
	}
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() {
	j.log.Info().Msg("Starting ledger maintenance")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Msg("Ledger integrity check failed")
		return
	}

	// Checkpoint the WAL to prevent bloat
	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Ledger maintenance completed")
}

// StartScheduler registers the job on a nightly cron (2 AM) and starts
// it. The returned cron can be stopped on shutdown.
func StartScheduler(job *MaintenanceJob, log zerolog.Logger) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddJob("0 2 * * *", job); err != nil {
		return nil, err
	}
	c.Start()
	log.Info().Msg("Maintenance scheduler started")
	return c, nil
}
