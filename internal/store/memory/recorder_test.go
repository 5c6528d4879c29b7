package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingarb/internal/store"
)

func TestRecordOpenIdempotent(t *testing.T) {
	rec := NewRecorder()
	ctx := context.Background()

	open := store.TradeOpen{
		Symbol:    "BTCUSDT",
		Exchange:  "bybit",
		OpenTime:  time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		OpenPrice: 100,
		Quantity:  1,
		Leverage:  10,
		Direction: "SHORT",
		OrderID:   "ord-1",
	}

	id1, err := rec.RecordOpen(ctx, open)
	require.NoError(t, err)

	// same (exchange, symbol, open_time) returns the existing record
	id2, err := rec.RecordOpen(ctx, open)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, rec.Len())

	// a different open time is a new record
	open.OpenTime = open.OpenTime.Add(8 * time.Hour)
	id3, err := rec.RecordOpen(ctx, open)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
	assert.Equal(t, 2, rec.Len())
}

func TestRecordClose(t *testing.T) {
	rec := NewRecorder()
	ctx := context.Background()

	id, err := rec.RecordOpen(ctx, store.TradeOpen{
		Symbol: "BTCUSDT", Exchange: "bybit",
		OpenTime: time.Now(), OpenPrice: 100,
	})
	require.NoError(t, err)

	err = rec.RecordClose(ctx, id, store.TradeClose{
		ClosePrice:   98.7,
		CloseOrderID: "ord-2",
		CloseStatus:  "FILLED",
		CloseTime:    time.Now(),
	})
	require.NoError(t, err)

	_, closeRec, ok := rec.Get(id)
	require.True(t, ok)
	require.NotNil(t, closeRec)
	assert.Equal(t, "FILLED", closeRec.CloseStatus)
	assert.InDelta(t, 98.7, closeRec.ClosePrice, 1e-9)
}

func TestRecordCloseUnknownID(t *testing.T) {
	rec := NewRecorder()
	err := rec.RecordClose(context.Background(), 42, store.TradeClose{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
