package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fundingarb/internal/config"
	"fundingarb/internal/exchange"
	"fundingarb/internal/logger"
	"fundingarb/internal/models"
	"fundingarb/internal/notify"
	"fundingarb/internal/store"
)

// Executor runs one settlement cycle for one symbol on one exchange: wait
// for the funding window, evaluate the rate, open a position right before
// settlement and work it back to flat. A new Executor is built per cycle;
// nothing is reused across runs.
type Executor struct {
	cfg      config.TradeConfig
	adapter  exchange.Adapter
	recorder store.Recorder
	notifier *notify.Notifier
	clock    Clock
	marks    <-chan models.MarkPrice
	log      *logger.Logger

	rules exchange.InstrumentRules
	order *ArbitrageOrder
}

func NewExecutor(cfg config.TradeConfig, adapter exchange.Adapter, recorder store.Recorder, notifier *notify.Notifier, clock Clock, marks <-chan models.MarkPrice, log *logger.Logger) *Executor {
	dir, _ := ParseDirection(cfg.Direction)
	return &Executor{
		cfg:      cfg,
		adapter:  adapter,
		recorder: recorder,
		notifier: notifier,
		clock:    clock,
		marks:    marks,
		log:      log,
		order: &ArbitrageOrder{
			Symbol:      cfg.Symbol,
			Exchange:    adapter.Name(),
			Direction:   dir,
			Side:        dir.EntryPositionSide(),
			CloseStatus: models.CloseStatusNone,
			State:       StateIdle,
		},
	}
}

// Order exposes the trade record for inspection after Run returns.
func (e *Executor) Order() *ArbitrageOrder {
	return e.order
}

func (e *Executor) entry() *logrus.Entry {
	return e.log.WithComponent("executor").
		WithFields(logrus.Fields{"exchange": e.order.Exchange, "symbol": e.order.Symbol})
}

// Run drives the whole cycle and returns the terminal outcome. An error is
// only returned alongside OutcomeAborted; every other outcome is a normal
// end of cycle.
func (e *Executor) Run(ctx context.Context) (Outcome, error) {
	outcome, err := e.run(ctx)
	if err != nil {
		e.entry().WithError(err).Error("cycle aborted")
		e.cancelOutstanding()
	}
	e.notifyOutcome(outcome)
	return outcome, err
}

// cancelOutstanding is the abort path: best-effort cancellation of whatever
// order is still live, on a fresh context because the run context may
// already be dead.
func (e *Executor) cancelOutstanding() {
	timeout := e.cfg.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if e.order.State == StateOpenSubmitted && e.order.OpenOrderID != "" {
		if err := e.adapter.CancelOrder(ctx, e.order.Symbol, e.order.OpenOrderID); err != nil && !isOrderNotFound(err) {
			e.entry().WithField("order_id", e.order.OpenOrderID).WithError(err).
				Error("could not cancel opening order on abort")
		}
	}
	if e.order.CloseStatus == models.CloseStatusPending && e.order.MarkCancelRequested() {
		if err := e.adapter.CancelOrder(ctx, e.order.Symbol, e.order.CloseOrderID); err != nil && !isOrderNotFound(err) {
			e.entry().WithField("order_id", e.order.CloseOrderID).WithError(err).
				Error("could not cancel closing order on abort")
		}
	}
}

func (e *Executor) run(ctx context.Context) (Outcome, error) {
	log := e.entry()

	rules, err := withRetry(ctx, e.log, "instrument rules", func(ctx context.Context) (exchange.InstrumentRules, error) {
		return e.adapter.GetInstrumentRules(ctx, e.order.Symbol)
	})
	if err != nil {
		return OutcomeAborted, fmt.Errorf("fetch instrument rules: %w", err)
	}
	e.rules = rules

	rate, err := withRetry(ctx, e.log, "funding rate", func(ctx context.Context) (models.FundingRate, error) {
		return e.adapter.GetFundingRate(ctx, e.order.Symbol)
	})
	if err != nil {
		return OutcomeAborted, fmt.Errorf("fetch funding rate: %w", err)
	}
	window := WindowFromRate(rate, e.clock.Now())
	log.WithFields(logrus.Fields{
		"settlement": window.Settlement.Format(time.RFC3339),
		"interval":   window.Interval.String(),
	}).Info("settlement window resolved")

	if err := e.waitUntil(ctx, window.PrecheckAt(e.cfg.PrecheckLead)); err != nil {
		return OutcomeAborted, err
	}

	// Refetch at the precheck mark: the rate fetched hours earlier is not
	// the rate that settles.
	rate, err = withRetry(ctx, e.log, "funding rate precheck", func(ctx context.Context) (models.FundingRate, error) {
		return e.adapter.GetFundingRate(ctx, e.order.Symbol)
	})
	if err != nil {
		log.WithError(err).Warn("funding rate unavailable at precheck, staying flat")
		return OutcomeUnknown, nil
	}

	switch gate := ShouldEnter(rate, e.cfg.Threshold, e.order.Direction, e.clock.Now()); gate {
	case GateUnknown:
		log.WithField("observed_at", rate.ObservedAt.Format(time.RFC3339)).
			Warn("funding rate observation unusable, staying flat")
		return OutcomeUnknown, nil
	case GateSkip:
		log.WithFields(logrus.Fields{"rate": rate.Rate, "threshold": e.cfg.Threshold}).
			Info("funding rate below entry bar, skipping cycle")
		return OutcomeSkipped, nil
	}
	e.order.FundingRate = rate.Rate
	e.order.Settlement = window.Settlement
	log.WithFields(logrus.Fields{"rate": rate.Rate, "side": e.order.Side}).Info("entry condition met")

	mark, err := withRetry(ctx, e.log, "mark price", func(ctx context.Context) (models.MarkPrice, error) {
		return e.adapter.GetMarkPrice(ctx, e.order.Symbol)
	})
	if err != nil {
		return OutcomeAborted, fmt.Errorf("fetch mark price: %w", err)
	}
	qty := SizeQuantity(e.cfg.Notional, mark.Price, e.rules.LotSize, e.rules.MinQty)
	if qty <= 0 {
		return OutcomeAborted, fmt.Errorf("notional %.2f sizes below minimum qty %v at mark %v",
			e.cfg.Notional, e.rules.MinQty, mark.Price)
	}
	// Catch a too-small order here rather than as an exchange rejection at
	// action time.
	if e.rules.MinNotional > 0 && qty*mark.Price < e.rules.MinNotional {
		return OutcomeAborted, fmt.Errorf("sized notional %.2f below exchange minimum %.2f",
			qty*mark.Price, e.rules.MinNotional)
	}
	e.order.Quantity = qty

	lev := e.cfg.Leverage
	if e.rules.MaxLeverage > 0 && lev > e.rules.MaxLeverage {
		log.WithFields(logrus.Fields{"requested": lev, "max": e.rules.MaxLeverage}).
			Warn("requested leverage above contract maximum, clamping")
		lev = e.rules.MaxLeverage
	}
	e.order.Leverage = lev
	if err := e.adapter.SetLeverage(ctx, e.order.Symbol, lev); err != nil {
		return OutcomeAborted, fmt.Errorf("set leverage: %w", err)
	}

	if err := e.waitUntil(ctx, window.ActionAt(e.cfg.ActionLead)); err != nil {
		return OutcomeAborted, err
	}

	if err := e.openPosition(ctx); err != nil {
		return OutcomeAborted, err
	}

	filled, err := e.awaitOpenFill(ctx)
	if err != nil {
		return OutcomeAborted, err
	}
	if !filled {
		return OutcomeUnfilled, nil
	}

	e.recordOpen(ctx)

	if err := e.submitClose(ctx); err != nil {
		return OutcomeAborted, err
	}

	outcome, err := e.monitorClose(ctx)
	if err != nil {
		return OutcomeAborted, err
	}
	e.order.State = StateDone
	e.recordClose(ctx)
	return outcome, nil
}

// openPosition submits the entry at market. Placement goes through a client
// order link ID so a transport failure can be resolved by lookup instead of
// a blind resubmit.
func (e *Executor) openPosition(ctx context.Context) error {
	log := e.entry()
	link := "open-" + uuid.New().String()[:18]
	e.order.OpenLinkID = link
	e.order.State = StateOpenSubmitted

	placed, err := e.placeIdempotent(ctx, models.Order{
		LinkID:       link,
		Symbol:       e.order.Symbol,
		Side:         models.EntrySide(e.order.Side),
		Type:         models.OrderTypeMarket,
		Qty:          e.order.Quantity,
		PositionSide: e.order.Side,
		PriceStep:    e.rules.TickSize,
		QtyStep:      e.rules.LotSize,
	})
	if err != nil {
		return fmt.Errorf("place opening order: %w", err)
	}
	e.order.OpenOrderID = placed.ID
	log.WithField("order_id", placed.ID).WithFields(logrus.Fields{"qty": e.order.Quantity, "side": e.order.Side}).
		Info("opening order submitted")
	return nil
}

// awaitOpenFill polls the opening order until it fills or the grace window
// runs out. A market order that has not filled inside the grace window is
// cancelled and the cycle ends flat.
func (e *Executor) awaitOpenFill(ctx context.Context) (bool, error) {
	log := e.entry().WithField("order_id", e.order.OpenOrderID)
	deadline := e.clock.Now().Add(e.cfg.GraceWindow)
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		ord, err := e.adapter.GetOrder(ctx, e.order.Symbol, e.order.OpenOrderID)
		if err != nil {
			log.WithError(err).Warn("opening order status check failed")
		} else {
			switch ord.Status {
			case models.OrderStatusFilled:
				e.order.OpenPrice = ord.AvgPrice
				if e.order.OpenPrice <= 0 {
					e.order.OpenPrice = ord.Price
				}
				e.order.OpenFillTime = e.clock.Now()
				e.order.State = StateOpenFilled
				log.WithField("avg_price", e.order.OpenPrice).Info("position opened")
				return true, nil
			case models.OrderStatusCancelled:
				log.Warn("opening order cancelled by exchange")
				return false, nil
			}
		}

		if e.clock.Now().After(deadline) {
			log.Warn("opening order unfilled past grace window, cancelling")
			if err := e.adapter.CancelOrder(ctx, e.order.Symbol, e.order.OpenOrderID); err != nil && !isOrderNotFound(err) {
				return false, fmt.Errorf("cancel unfilled opening order: %w", err)
			}
			// A fill can race the cancel; take it if it happened.
			ord, err := e.adapter.GetOrder(ctx, e.order.Symbol, e.order.OpenOrderID)
			if err == nil && ord.Status == models.OrderStatusFilled {
				e.order.OpenPrice = ord.AvgPrice
				e.order.OpenFillTime = e.clock.Now()
				e.order.State = StateOpenFilled
				return true, nil
			}
			return false, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// submitClose places the reduce-only breakeven limit immediately after the
// open fill is confirmed.
func (e *Executor) submitClose(ctx context.Context) error {
	log := e.entry()
	price := CalcClosePrice(e.order.OpenPrice, e.order.FundingRate, e.cfg.FeeBuffer, e.order.Side)
	price = RoundDown(price, e.rules.TickSize)
	e.order.ClosePrice = price

	link := "close-" + uuid.New().String()[:18]
	e.order.CloseLinkID = link

	placed, err := e.placeIdempotent(ctx, models.Order{
		LinkID:       link,
		Symbol:       e.order.Symbol,
		Side:         models.OppositeSide(models.EntrySide(e.order.Side)),
		Type:         models.OrderTypeLimit,
		Price:        price,
		Qty:          e.order.Quantity,
		ReduceOnly:   true,
		PositionSide: e.order.Side,
		TimeInForce:  "GTC",
		PriceStep:    e.rules.TickSize,
		QtyStep:      e.rules.LotSize,
	})
	if err != nil {
		return fmt.Errorf("place closing order: %w", err)
	}
	e.order.CloseOrderID = placed.ID
	e.order.State = StateCloseSubmitted
	if err := e.order.SetCloseStatus(models.CloseStatusPending); err != nil {
		return err
	}
	log.WithField("order_id", placed.ID).WithField("price", price).Info("closing order submitted")
	return nil
}

// placeIdempotent submits an order and, when the transport fails in a way
// that leaves the result unknown, resolves it by looking the order up by its
// link ID rather than resubmitting.
func (e *Executor) placeIdempotent(ctx context.Context, order models.Order) (models.Order, error) {
	placed, err := e.adapter.PlaceOrder(ctx, order)
	if err == nil {
		return placed, nil
	}
	if isDuplicateClientOrderID(err) || ctx.Err() == nil {
		found, lookupErr := e.adapter.GetOrderByLinkID(ctx, order.Symbol, order.LinkID)
		if lookupErr == nil && found.ID != "" {
			e.entry().WithField("order_id", found.ID).
				Warn("order placement errored but order exists on exchange, adopting it")
			return found, nil
		}
	}
	return models.Order{}, err
}

func (e *Executor) recordOpen(ctx context.Context) {
	if e.recorder == nil {
		return
	}
	id, err := e.recorder.RecordOpen(ctx, store.TradeOpen{
		Symbol:    e.order.Symbol,
		Exchange:  e.order.Exchange,
		OpenTime:  e.order.OpenFillTime,
		OpenPrice: e.order.OpenPrice,
		Quantity:  e.order.Quantity,
		Leverage:  e.order.Leverage,
		Direction: string(e.order.Side),
		OrderID:   e.order.OpenOrderID,
		Margin:    e.order.OpenPrice * e.order.Quantity / float64(max(e.order.Leverage, 1)),
	})
	if err != nil {
		e.entry().WithError(err).Error("failed to persist open record")
		return
	}
	e.order.RecordID = id
}

func (e *Executor) recordClose(ctx context.Context) {
	if e.recorder == nil || e.order.RecordID == 0 {
		return
	}
	err := e.recorder.RecordClose(ctx, e.order.RecordID, store.TradeClose{
		ClosePrice:   e.order.ClosePrice,
		CloseOrderID: e.order.CloseOrderID,
		CloseStatus:  string(e.order.CloseStatus),
		CloseTime:    e.order.CloseTime,
	})
	if err != nil {
		e.entry().WithError(err).Error("failed to persist close record")
	}
}

func (e *Executor) notifyOutcome(outcome Outcome) {
	if e.notifier == nil {
		return
	}
	o := e.order
	title := fmt.Sprintf("%s %s: %s", o.Exchange, o.Symbol, outcome)
	msg := fmt.Sprintf("side=%s rate=%.4f%% open=%.6g close=%.6g qty=%v status=%s",
		o.Side, o.FundingRate*100, o.OpenPrice, o.ClosePrice, o.Quantity, o.CloseStatus)
	e.notifier.Notify(title, msg)
}

// waitUntil sleeps until the clock reaches t. Already-past instants return
// immediately so a late start still runs the cycle.
func (e *Executor) waitUntil(ctx context.Context, t time.Time) error {
	d := t.Sub(e.clock.Now())
	if d <= 0 {
		return nil
	}
	e.entry().WithFields(logrus.Fields{"until": t.Format(time.RFC3339), "wait": d.Round(time.Second).String()}).
		Debug("waiting")
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
