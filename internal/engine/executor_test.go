package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingarb/internal/config"
	"fundingarb/internal/exchange"
	"fundingarb/internal/logger"
	"fundingarb/internal/models"
	"fundingarb/internal/store/memory"
)

// fakeAdapter is a scripted exchange. Market orders fill instantly at the
// current mark; limit orders fill after limitFillAfter status queries, or
// never when it is zero.
type fakeAdapter struct {
	mu sync.Mutex

	settlement     time.Time
	rate           float64
	rateObservedAt time.Time

	mark           float64
	markAfterLimit float64
	minNotional    float64

	fillMarket     bool
	limitFillAfter int

	seq        int
	orders     map[string]*models.Order
	queries    map[string]int
	cancels    map[string]int
	leverage   int
	limitSeen  bool
	placeCount int
}

func newFakeAdapter(settlement time.Time, rate, mark float64) *fakeAdapter {
	return &fakeAdapter{
		settlement: settlement,
		rate:       rate,
		mark:       mark,
		fillMarket: true,
		orders:     map[string]*models.Order{},
		queries:    map[string]int{},
		cancels:    map[string]int{},
	}
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) GetInstrumentRules(context.Context, string) (exchange.InstrumentRules, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return exchange.InstrumentRules{
		TickSize:    0.1,
		LotSize:     0.001,
		MinQty:      0.001,
		MinNotional: f.minNotional,
		MaxLeverage: 50,
	}, nil
}

func (f *fakeAdapter) GetFundingRate(context.Context, string) (models.FundingRate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	observed := f.rateObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}
	return models.FundingRate{
		Symbol:         "BTCUSDT",
		Rate:           f.rate,
		NextSettlement: f.settlement,
		Interval:       8 * time.Hour,
		ObservedAt:     observed,
	}, nil
}

func (f *fakeAdapter) GetMarkPrice(context.Context, string) (models.MarkPrice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.MarkPrice{Symbol: "BTCUSDT", Price: f.currentMark(), Timestamp: time.Now()}, nil
}

func (f *fakeAdapter) currentMark() float64 {
	if f.limitSeen && f.markAfterLimit != 0 {
		return f.markAfterLimit
	}
	return f.mark
}

func (f *fakeAdapter) SetLeverage(_ context.Context, _ string, leverage int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leverage = leverage
	return nil
}

func (f *fakeAdapter) PlaceOrder(_ context.Context, order models.Order) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.placeCount++
	order.ID = fmt.Sprintf("ord-%d", f.seq)
	order.Status = models.OrderStatusOpen
	if order.Type == models.OrderTypeMarket && f.fillMarket {
		order.Status = models.OrderStatusFilled
		order.AvgPrice = f.currentMark()
		order.FilledQty = order.Qty
	}
	if order.Type == models.OrderTypeLimit {
		f.limitSeen = true
	}
	stored := order
	f.orders[order.ID] = &stored
	return order, nil
}

func (f *fakeAdapter) CancelOrder(_ context.Context, _ string, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels[orderID]++
	if ord, ok := f.orders[orderID]; ok && ord.Status == models.OrderStatusOpen {
		ord.Status = models.OrderStatusCancelled
	}
	return nil
}

func (f *fakeAdapter) GetOrder(_ context.Context, _ string, orderID string) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ord, ok := f.orders[orderID]
	if !ok {
		return models.Order{}, fmt.Errorf("order not found: %s", orderID)
	}
	f.queries[orderID]++
	if ord.Type == models.OrderTypeLimit && ord.Status == models.OrderStatusOpen &&
		f.limitFillAfter > 0 && f.queries[orderID] >= f.limitFillAfter {
		ord.Status = models.OrderStatusFilled
		ord.AvgPrice = ord.Price
		ord.FilledQty = ord.Qty
	}
	return *ord, nil
}

func (f *fakeAdapter) GetOrderByLinkID(_ context.Context, _ string, linkID string) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ord := range f.orders {
		if ord.LinkID == linkID {
			return *ord, nil
		}
	}
	return models.Order{}, fmt.Errorf("order not found by link: %s", linkID)
}

func (f *fakeAdapter) cancelCount(orderID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels[orderID]
}

func (f *fakeAdapter) leverageSet() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leverage
}

func testTradeConfig() config.TradeConfig {
	return config.TradeConfig{
		Symbol:            "BTCUSDT",
		Threshold:         -0.005,
		Direction:         "negative",
		Notional:          100,
		Leverage:          10,
		FeeBuffer:         0.005,
		StopLossThreshold: 0.001,
		PrecheckLead:      80 * time.Millisecond,
		ActionLead:        40 * time.Millisecond,
		PollInterval:      5 * time.Millisecond,
		MaxMonitor:        2 * time.Second,
		CallTimeout:       time.Second,
		GraceWindow:       300 * time.Millisecond,
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error"})
}

func TestExecutorClosesAtBreakeven(t *testing.T) {
	settlement := time.Now().Add(120 * time.Millisecond)
	fake := newFakeAdapter(settlement, -0.008, 100)
	fake.limitFillAfter = 2
	rec := memory.NewRecorder()

	exec := NewExecutor(testTradeConfig(), fake, rec, nil, NewRealClock(), nil, testLogger())
	outcome, err := exec.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeClosed, outcome)

	ord := exec.Order()
	assert.Equal(t, StateDone, ord.State)
	assert.Equal(t, models.CloseStatusFilled, ord.CloseStatus)
	assert.Equal(t, models.PositionSideShort, ord.Side)
	assert.InDelta(t, 100.0, ord.OpenPrice, 1e-9)
	assert.InDelta(t, 98.70, ord.ClosePrice, 1e-6)
	assert.InDelta(t, 1.0, ord.Quantity, 0.002)
	assert.False(t, ord.OpenFillTime.IsZero())
	assert.False(t, ord.CloseTime.IsZero())
	assert.True(t, ord.CloseTime.After(ord.OpenFillTime) || ord.CloseTime.Equal(ord.OpenFillTime))

	require.Equal(t, 1, rec.Len())
	openRec, closeRec, ok := rec.Get(ord.RecordID)
	require.True(t, ok)
	assert.Equal(t, "fake", openRec.Exchange)
	require.NotNil(t, closeRec)
	assert.Equal(t, string(models.CloseStatusFilled), closeRec.CloseStatus)
}

func TestExecutorStopsOutOnAdverseMove(t *testing.T) {
	settlement := time.Now().Add(120 * time.Millisecond)
	fake := newFakeAdapter(settlement, -0.008, 100)
	fake.markAfterLimit = 100.15 // 0.15% against the short, past the 0.1% stop
	rec := memory.NewRecorder()

	exec := NewExecutor(testTradeConfig(), fake, rec, nil, NewRealClock(), nil, testLogger())
	outcome, err := exec.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeStoppedOut, outcome)

	ord := exec.Order()
	assert.Equal(t, StateDone, ord.State)
	assert.Equal(t, models.CloseStatusStopTriggered, ord.CloseStatus)

	// The breakeven limit (second order placed) was cancelled exactly once
	// and replaced by the market flattening order.
	assert.Equal(t, 1, fake.cancelCount("ord-2"))
	assert.Equal(t, "ord-3", ord.CloseOrderID)

	// open market + close limit + stop market
	assert.Equal(t, 3, fake.placeCount)

	_, closeRec, ok := rec.Get(ord.RecordID)
	require.True(t, ok)
	require.NotNil(t, closeRec)
	assert.Equal(t, string(models.CloseStatusStopTriggered), closeRec.CloseStatus)

	// The record carries the realized market fill, not the price of the
	// limit it replaced.
	assert.Equal(t, "ord-3", closeRec.CloseOrderID)
	assert.InDelta(t, 100.15, closeRec.ClosePrice, 1e-9)
	assert.InDelta(t, 100.15, ord.ClosePrice, 1e-9)
}

func TestExecutorAbortsBelowMinNotional(t *testing.T) {
	settlement := time.Now().Add(120 * time.Millisecond)
	fake := newFakeAdapter(settlement, -0.008, 100)
	fake.minNotional = 200

	exec := NewExecutor(testTradeConfig(), fake, memory.NewRecorder(), nil, NewRealClock(), nil, testLogger())
	outcome, err := exec.Run(context.Background())
	assert.Equal(t, OutcomeAborted, outcome)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below exchange minimum")
	assert.Equal(t, 0, fake.placeCount)
	assert.Equal(t, 0, fake.leverageSet())
}

func TestExecutorCancelsUnfilledOpen(t *testing.T) {
	settlement := time.Now().Add(120 * time.Millisecond)
	fake := newFakeAdapter(settlement, -0.008, 100)
	fake.fillMarket = false
	rec := memory.NewRecorder()

	cfg := testTradeConfig()
	cfg.GraceWindow = 50 * time.Millisecond

	exec := NewExecutor(cfg, fake, rec, nil, NewRealClock(), nil, testLogger())
	outcome, err := exec.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnfilled, outcome)

	ord := exec.Order()
	assert.Equal(t, 1, fake.cancelCount(ord.OpenOrderID))
	assert.Empty(t, ord.CloseOrderID)
	assert.Equal(t, 0, rec.Len())
}

func TestExecutorSkipsWhenRateDoesNotQualify(t *testing.T) {
	settlement := time.Now().Add(120 * time.Millisecond)
	fake := newFakeAdapter(settlement, -0.003, 100)

	exec := NewExecutor(testTradeConfig(), fake, memory.NewRecorder(), nil, NewRealClock(), nil, testLogger())
	outcome, err := exec.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Equal(t, 0, fake.placeCount)
}

func TestExecutorStaysFlatOnStaleRate(t *testing.T) {
	settlement := time.Now().Add(120 * time.Millisecond)
	fake := newFakeAdapter(settlement, -0.02, 100)
	fake.rateObservedAt = time.Now().Add(-9 * time.Hour)

	exec := NewExecutor(testTradeConfig(), fake, memory.NewRecorder(), nil, NewRealClock(), nil, testLogger())
	outcome, err := exec.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknown, outcome)
	assert.Equal(t, 0, fake.placeCount)
}

func TestExecutorRespectsContextCancel(t *testing.T) {
	settlement := time.Now().Add(10 * time.Minute)
	fake := newFakeAdapter(settlement, -0.008, 100)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	exec := NewExecutor(testTradeConfig(), fake, memory.NewRecorder(), nil, NewRealClock(), nil, testLogger())
	outcome, err := exec.Run(ctx)
	assert.Equal(t, OutcomeAborted, outcome)
	assert.ErrorIs(t, err, context.Canceled)
}
