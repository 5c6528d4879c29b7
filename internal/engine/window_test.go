package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fundingarb/internal/models"
)

func TestNextWindowAnchoredToMidnightUTC(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	w := NextWindow(now, 8*time.Hour)
	assert.Equal(t, time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC), w.Settlement)

	// exactly on a boundary rolls to the next one
	boundary := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	w = NextWindow(boundary, 8*time.Hour)
	assert.Equal(t, time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC), w.Settlement)

	// just before a boundary keeps it
	w = NextWindow(boundary.Add(-time.Second), 8*time.Hour)
	assert.Equal(t, boundary, w.Settlement)
}

func TestNextWindowPure(t *testing.T) {
	now := time.Date(2026, 3, 1, 3, 17, 9, 0, time.UTC)
	a := NextWindow(now, 4*time.Hour)
	b := NextWindow(now, 4*time.Hour)
	assert.Equal(t, a, b)
}

func TestNextWindowDefaultsInterval(t *testing.T) {
	now := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)
	w := NextWindow(now, 0)
	assert.Equal(t, 8*time.Hour, w.Interval)
	assert.Equal(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), w.Settlement)
}

func TestWindowFromRatePrefersExchangeSettlement(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	published := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC) // off-anchor schedule

	w := WindowFromRate(models.FundingRate{
		NextSettlement: published,
		Interval:       4 * time.Hour,
	}, now)
	assert.Equal(t, published, w.Settlement)
	assert.Equal(t, 4*time.Hour, w.Interval)

	// a stale published settlement falls back to the anchored derivation
	w = WindowFromRate(models.FundingRate{
		NextSettlement: now.Add(-time.Hour),
		Interval:       8 * time.Hour,
	}, now)
	assert.Equal(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), w.Settlement)
}

func TestWindowLeads(t *testing.T) {
	w := FundingWindow{Settlement: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), Interval: 8 * time.Hour}
	assert.Equal(t, time.Date(2026, 3, 1, 7, 59, 45, 0, time.UTC), w.PrecheckAt(15*time.Second))
	assert.Equal(t, time.Date(2026, 3, 1, 7, 59, 55, 0, time.UTC), w.ActionAt(5*time.Second))
}
