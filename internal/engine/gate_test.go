package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingarb/internal/models"
)

func rateObs(rate float64, observedAt time.Time) models.FundingRate {
	return models.FundingRate{
		Symbol:     "BTCUSDT",
		Rate:       rate,
		Interval:   8 * time.Hour,
		ObservedAt: observedAt,
	}
}

func TestShouldEnterNegativeDirection(t *testing.T) {
	now := time.Date(2026, 3, 1, 7, 59, 45, 0, time.UTC)

	assert.Equal(t, GateEnter, ShouldEnter(rateObs(-0.008, now), -0.005, DirectionNegative, now))
	assert.Equal(t, GateEnter, ShouldEnter(rateObs(-0.005, now), -0.005, DirectionNegative, now))
	assert.Equal(t, GateSkip, ShouldEnter(rateObs(-0.003, now), -0.005, DirectionNegative, now))
	assert.Equal(t, GateSkip, ShouldEnter(rateObs(0.002, now), -0.005, DirectionNegative, now))
}

func TestShouldEnterPositiveDirection(t *testing.T) {
	now := time.Date(2026, 3, 1, 7, 59, 45, 0, time.UTC)

	assert.Equal(t, GateEnter, ShouldEnter(rateObs(0.008, now), 0.005, DirectionPositive, now))
	assert.Equal(t, GateSkip, ShouldEnter(rateObs(0.003, now), 0.005, DirectionPositive, now))
	assert.Equal(t, GateSkip, ShouldEnter(rateObs(-0.008, now), 0.005, DirectionPositive, now))
}

func TestShouldEnterStaleIsUnknown(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	// observation older than one funding interval never counts as a skip
	stale := rateObs(-0.02, now.Add(-9*time.Hour))
	assert.Equal(t, GateUnknown, ShouldEnter(stale, -0.005, DirectionNegative, now))

	// zero observation timestamp likewise
	assert.Equal(t, GateUnknown, ShouldEnter(rateObs(-0.02, time.Time{}), -0.005, DirectionNegative, now))

	// just inside the interval still counts
	fresh := rateObs(-0.02, now.Add(-7*time.Hour))
	assert.Equal(t, GateEnter, ShouldEnter(fresh, -0.005, DirectionNegative, now))
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("Negative")
	require.NoError(t, err)
	assert.Equal(t, DirectionNegative, d)
	assert.Equal(t, models.PositionSideShort, d.EntryPositionSide())

	d, err = ParseDirection("positive")
	require.NoError(t, err)
	assert.Equal(t, models.PositionSideLong, d.EntryPositionSide())

	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}
