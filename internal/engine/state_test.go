package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingarb/internal/models"
)

func TestCloseStatusTransitions(t *testing.T) {
	o := &ArbitrageOrder{CloseStatus: models.CloseStatusNone}

	require.NoError(t, o.SetCloseStatus(models.CloseStatusPending))
	require.NoError(t, o.SetCloseStatus(models.CloseStatusCancelled))

	// a cancelled close never goes back to pending; a new close means a new order
	assert.Error(t, o.SetCloseStatus(models.CloseStatusPending))
	assert.Error(t, o.SetCloseStatus(models.CloseStatusFilled))
	assert.Equal(t, models.CloseStatusCancelled, o.CloseStatus)
}

func TestCloseStatusTerminalFromPending(t *testing.T) {
	for _, terminal := range []models.CloseStatus{
		models.CloseStatusFilled,
		models.CloseStatusCancelled,
		models.CloseStatusStopTriggered,
	} {
		o := &ArbitrageOrder{CloseStatus: models.CloseStatusNone}
		require.NoError(t, o.SetCloseStatus(models.CloseStatusPending))
		require.NoError(t, o.SetCloseStatus(terminal))
		// setting the same status again is a no-op, not an error
		require.NoError(t, o.SetCloseStatus(terminal))
	}
}

func TestMarkCancelRequestedOnce(t *testing.T) {
	o := &ArbitrageOrder{}
	assert.True(t, o.MarkCancelRequested())
	assert.False(t, o.MarkCancelRequested())
	assert.False(t, o.MarkCancelRequested())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "IDLE", StateIdle.String())
	assert.Equal(t, "OPEN_FILLED", StateOpenFilled.String())
	assert.Equal(t, "DONE", StateDone.String())
}
