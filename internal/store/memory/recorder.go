package memory

import (
	"context"
	"fmt"
	"sync"

	"fundingarb/internal/store"
)

type record struct {
	open   store.TradeOpen
	close  *store.TradeClose
	closed bool
}

// Recorder is an in-memory store.Recorder used for dry runs and tests. It
// enforces the same (exchange, symbol, open_time) idempotence as the Postgres
// implementation.
type Recorder struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*record
	byKey  map[string]int64
}

func NewRecorder() *Recorder {
	return &Recorder{
		nextID: 1,
		byID:   map[int64]*record{},
		byKey:  map[string]int64{},
	}
}

func (r *Recorder) RecordOpen(_ context.Context, open store.TradeOpen) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s|%s|%d", open.Exchange, open.Symbol, open.OpenTime.UnixMilli())
	if id, ok := r.byKey[key]; ok {
		return id, nil
	}

	id := r.nextID
	r.nextID++
	r.byID[id] = &record{open: open}
	r.byKey[key] = id
	return id, nil
}

func (r *Recorder) RecordClose(_ context.Context, recordID int64, close store.TradeClose) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[recordID]
	if !ok {
		return store.ErrNotFound
	}
	rec.close = &close
	rec.closed = true
	return nil
}

// Get returns a stored record for assertions in tests.
func (r *Recorder) Get(recordID int64) (store.TradeOpen, *store.TradeClose, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[recordID]
	if !ok {
		return store.TradeOpen{}, nil, false
	}
	return rec.open, rec.close, true
}

// Len reports how many open records exist.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
