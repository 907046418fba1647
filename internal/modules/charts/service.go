// Package charts provides services for generating chart data from the
// price history.
package charts

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/exchange/internal/domain"
)

// DataPoint represents a single point on a chart
type DataPoint struct {
	Time  string `json:"time"`  // YYYY-MM-DD for daily, RFC3339 for raw
	Value string `json:"value"` // Price as a decimal string
}

// HistoryProvider supplies raw price snapshots.
type HistoryProvider interface {
	GetPriceHistory(companyID string, limit int) ([]domain.PricePoint, error)
}

// Service provides chart data operations
type Service struct {
	history HistoryProvider
	log     zerolog.Logger
}

// NewService creates a new charts service
func NewService(history HistoryProvider, log zerolog.Logger) *Service {
	return &Service{
		history: history,
		log:     log.With().Str("service", "charts").Logger(),
	}
}

// GetRaw returns every price snapshot for a company, oldest first.
// A limit of 0 returns the full history.
func (s *Service) GetRaw(companyID string, limit int) ([]DataPoint, error) {
	points, err := s.history.GetPriceHistory(companyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}

	result := make([]DataPoint, 0, len(points))
	for _, p := range points {
		result = append(result, DataPoint{
			Time:  p.RecordedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			Value: p.Price.String(),
		})
	}

	return result, nil
}

// GetDaily aggregates the price history to one closing price per day,
// oldest first. The last snapshot of each day wins.
func (s *Service) GetDaily(companyID string) ([]DataPoint, error) {
	points, err := s.history.GetPriceHistory(companyID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}

	closes := make(map[string]string)
	for _, p := range points {
		day := p.RecordedAt.UTC().Format("2006-01-02")
		// Points arrive oldest first, so later snapshots overwrite
		closes[day] = p.Price.String()
	}

	days := make([]string, 0, len(closes))
	for day := range closes {
		days = append(days, day)
	}
	sort.Strings(days)

	result := make([]DataPoint, 0, len(days))
	for _, day := range days {
		result = append(result, DataPoint{Time: day, Value: closes[day]})
	}

	return result, nil
}
