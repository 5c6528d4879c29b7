package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fundingarb/internal/models"
)

func TestCalcClosePriceShort(t *testing.T) {
	// rate -0.8%, buffer 0.5%: buy-back sits 1.3% below the open
	got := CalcClosePrice(100, -0.008, 0.005, models.PositionSideShort)
	assert.InDelta(t, 98.70, got, 1e-9)
}

func TestCalcClosePriceLong(t *testing.T) {
	got := CalcClosePrice(100, 0.008, 0.005, models.PositionSideLong)
	assert.InDelta(t, 101.30, got, 1e-9)
}

func TestCalcClosePriceDeterministic(t *testing.T) {
	a := CalcClosePrice(27345.5, -0.0123, 0.005, models.PositionSideShort)
	b := CalcClosePrice(27345.5, -0.0123, 0.005, models.PositionSideShort)
	assert.Equal(t, a, b)
}

func TestStopBreached(t *testing.T) {
	// short stops when the mark rises past open*(1+threshold)
	assert.False(t, StopBreached(100, 100.05, 0.001, models.PositionSideShort))
	assert.True(t, StopBreached(100, 100.15, 0.001, models.PositionSideShort))

	// long stops when it falls past open*(1-threshold)
	assert.False(t, StopBreached(100, 99.95, 0.001, models.PositionSideLong))
	assert.True(t, StopBreached(100, 99.85, 0.001, models.PositionSideLong))

	// garbage prices never trigger
	assert.False(t, StopBreached(0, 100, 0.001, models.PositionSideShort))
	assert.False(t, StopBreached(100, 0, 0.001, models.PositionSideLong))
}

func TestRoundDown(t *testing.T) {
	assert.InDelta(t, 98.7, RoundDown(98.7345, 0.1), 1e-9)
	assert.InDelta(t, 0.003, RoundDown(0.00399, 0.001), 1e-9)
	assert.Equal(t, 5.0, RoundDown(5.0, 0))
}

func TestSizeQuantity(t *testing.T) {
	// 100 USDT at mark 25000, lot 0.001
	assert.InDelta(t, 0.004, SizeQuantity(100, 25000, 0.001, 0.001), 1e-9)

	// below min qty sizes to zero
	assert.Zero(t, SizeQuantity(10, 25000, 0.001, 0.001))

	assert.Zero(t, SizeQuantity(100, 0, 0.001, 0.001))
}
