package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingarb/internal/models"
)

// A streamed mark stamped with exchange wall-clock time must stay usable
// when the engine runs on a shifted clock, instead of being discarded as
// stale and forcing a REST round trip on every stop check.
func TestFreshMarkWithShiftedClock(t *testing.T) {
	fake := newFakeAdapter(time.Now().Add(time.Hour), -0.008, 100)

	ch := make(chan models.MarkPrice, 1)
	ch <- models.MarkPrice{Symbol: "BTCUSDT", Price: 123.45, Timestamp: time.Now()}

	exec := NewExecutor(testTradeConfig(), fake, nil, nil,
		NewOffsetClock(time.Date(2026, 2, 28, 23, 59, 0, 0, time.UTC)), ch, testLogger())

	mark, ok := exec.freshMark(context.Background(), models.MarkPrice{})
	require.True(t, ok)
	assert.InDelta(t, 123.45, mark.Price, 1e-9)
}

// A mark older than the staleness bound still falls back to REST.
func TestFreshMarkFallsBackOnStaleStream(t *testing.T) {
	fake := newFakeAdapter(time.Now().Add(time.Hour), -0.008, 100)

	ch := make(chan models.MarkPrice, 1)
	ch <- models.MarkPrice{Symbol: "BTCUSDT", Price: 123.45, Timestamp: time.Now().Add(-time.Minute)}

	exec := NewExecutor(testTradeConfig(), fake, nil, nil, NewRealClock(), ch, testLogger())

	mark, ok := exec.freshMark(context.Background(), models.MarkPrice{})
	require.True(t, ok)
	assert.InDelta(t, 100, mark.Price, 1e-9)
}
