// Package store persists trade records. Each monitoring task writes only the
// record it created, so implementations never need cross-task coordination
// beyond the uniqueness constraint on (exchange, symbol, open_time).
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: record not found")

type TradeOpen struct {
	Symbol    string
	Exchange  string
	OpenTime  time.Time
	OpenPrice float64
	Quantity  float64
	Leverage  int
	Direction string
	OrderID   string
	Margin    float64
}

type TradeClose struct {
	ClosePrice   float64
	CloseOrderID string
	CloseStatus  string
	CloseTime    time.Time
}

// Recorder is the narrow append/update contract the engine writes through.
// RecordOpen is idempotent on (exchange, symbol, open_time): a duplicate open
// returns the id of the existing record instead of creating a second one.
type Recorder interface {
	RecordOpen(ctx context.Context, open TradeOpen) (int64, error)
	RecordClose(ctx context.Context, recordID int64, close TradeClose) error
}
