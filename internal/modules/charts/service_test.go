package charts

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/exchange/internal/domain"
)

type stubHistory struct {
	points []domain.PricePoint
	err    error
}

func (s *stubHistory) GetPriceHistory(companyID string, limit int) ([]domain.PricePoint, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit > 0 && limit < len(s.points) {
		return s.points[:limit], nil
	}
	return s.points, nil
}

func point(price string, at time.Time) domain.PricePoint {
	return domain.PricePoint{
		CompanyID:  "acme",
		Price:      decimal.RequireFromString(price),
		RecordedAt: at,
	}
}

func TestGetRaw(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	history := &stubHistory{points: []domain.PricePoint{
		point("100", at),
		point("100.001", at.Add(time.Hour)),
	}}

	svc := NewService(history, zerolog.New(nil).Level(zerolog.Disabled))

	data, err := svc.GetRaw("acme", 0)
	require.NoError(t, err)
	require.Len(t, data, 2)

	assert.Equal(t, "2026-05-01T09:30:00Z", data[0].Time)
	assert.Equal(t, "100", data[0].Value)
	assert.Equal(t, "100.001", data[1].Value)
}

func TestGetRaw_EmptyHistory(t *testing.T) {
	svc := NewService(&stubHistory{}, zerolog.New(nil).Level(zerolog.Disabled))

	data, err := svc.GetRaw("acme", 0)
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.NotNil(t, data, "empty history must serialize as [], not null")
}

func TestGetDaily_LastSnapshotOfDayWins(t *testing.T) {
	day1 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	history := &stubHistory{points: []domain.PricePoint{
		point("100", day1),
		point("101", day1.Add(2*time.Hour)),
		point("102", day1.Add(7*time.Hour)),
		point("99", day2),
	}}

	svc := NewService(history, zerolog.New(nil).Level(zerolog.Disabled))

	data, err := svc.GetDaily("acme")
	require.NoError(t, err)
	require.Len(t, data, 2)

	assert.Equal(t, "2026-05-01", data[0].Time)
	assert.Equal(t, "102", data[0].Value, "closing price is the day's last snapshot")
	assert.Equal(t, "2026-05-02", data[1].Time)
	assert.Equal(t, "99", data[1].Value)
}

func TestGetDaily_PropagatesError(t *testing.T) {
	svc := NewService(&stubHistory{err: errors.New("boom")}, zerolog.New(nil).Level(zerolog.Disabled))

	_, err := svc.GetDaily("acme")
	assert.Error(t, err)
}
