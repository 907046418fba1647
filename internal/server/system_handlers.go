package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/exchange/internal/database"
)

// SystemHandlers serves system status endpoints
type SystemHandlers struct {
	ledgerDB *database.DB
	log      zerolog.Logger
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(ledgerDB *database.DB, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		ledgerDB: ledgerDB,
		log:      log.With().Str("handler", "system").Logger(),
	}
}

// HandleHealth reports database and host health
// GET /api/system/health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"

	dbStatus := "ok"
	if err := h.ledgerDB.QuickCheck(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Ledger health check failed")
		dbStatus = "unreachable"
		status = "degraded"
	}

	payload := map[string]interface{}{
		"status": status,
		"ledger": dbStatus,
		"time":   time.Now().UTC().Format(time.RFC3339),
	}

	// Host metrics are best-effort; failures degrade the payload, not the endpoint
	if vm, err := mem.VirtualMemory(); err == nil {
		payload["memory_used_percent"] = vm.UsedPercent
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		payload["cpu_percent"] = percents[0]
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}
