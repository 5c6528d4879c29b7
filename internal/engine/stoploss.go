package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fundingarb/internal/models"
)

// markStaleAfter bounds how old a streamed mark may be before the monitor
// falls back to a REST quote.
const markStaleAfter = 5 * time.Second

// monitorClose watches the resting breakeven limit until it fills, the mark
// breaches the stop, or the monitoring ceiling expires. The close order is
// cancelled at most once over the whole monitor, whatever path triggers it.
func (e *Executor) monitorClose(ctx context.Context) (Outcome, error) {
	log := e.entry().WithField("order_id", e.order.CloseOrderID)
	deadline := e.clock.Now().Add(e.cfg.MaxMonitor)
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	var lastMark models.MarkPrice

	for {
		ord, err := e.adapter.GetOrder(ctx, e.order.Symbol, e.order.CloseOrderID)
		if err != nil {
			log.WithError(err).Warn("closing order status check failed")
		} else {
			switch ord.Status {
			case models.OrderStatusFilled:
				e.order.State = StateCloseFilled
				e.order.CloseTime = e.clock.Now()
				if err := e.order.SetCloseStatus(models.CloseStatusFilled); err != nil {
					return OutcomeAborted, err
				}
				log.WithField("price", e.order.ClosePrice).Info("position closed at breakeven")
				return OutcomeClosed, nil
			case models.OrderStatusCancelled:
				// Cancelled externally: the position may still be open.
				log.Warn("closing order cancelled outside the monitor")
				e.order.State = StateCloseCancelled
				e.order.MarkCancelRequested()
				if err := e.order.SetCloseStatus(models.CloseStatusCancelled); err != nil {
					return OutcomeAborted, err
				}
				if err := e.closeAtMarket(ctx, "close-cancelled"); err != nil {
					return OutcomeAborted, err
				}
				e.order.CloseTime = e.clock.Now()
				return OutcomeExpired, nil
			}
		}

		mark, ok := e.freshMark(ctx, lastMark)
		if ok {
			lastMark = mark
			if StopBreached(e.order.OpenPrice, mark.Price, e.cfg.StopLossThreshold, e.order.Side) {
				log.WithFields(logrus.Fields{"mark": mark.Price, "open": e.order.OpenPrice}).
					Warn("adverse move past stop threshold")
				return e.triggerStop(ctx)
			}
		}

		if e.clock.Now().After(deadline) {
			log.Warn("monitoring ceiling reached, flattening at market")
			return e.expire(ctx)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return OutcomeAborted, ctx.Err()
		}
	}
}

// freshMark prefers the websocket stream and falls back to REST when the
// stream is silent or stale. A false return means no usable price this tick;
// the stop check is simply skipped rather than fed old data.
func (e *Executor) freshMark(ctx context.Context, last models.MarkPrice) (models.MarkPrice, bool) {
	drained := last
	for {
		select {
		case m, open := <-e.marks:
			if !open {
				e.marks = nil
				goto done
			}
			drained = m
		default:
			goto done
		}
	}
done:
	// Stream timestamps are exchange wall-clock time; measure staleness
	// against the wall clock so an offset engine clock does not make every
	// streamed mark look stale.
	if !drained.Timestamp.IsZero() && time.Since(drained.Timestamp) <= markStaleAfter {
		return drained, true
	}
	m, err := e.adapter.GetMarkPrice(ctx, e.order.Symbol)
	if err != nil {
		e.entry().WithError(err).Debug("mark price fetch failed, skipping stop check")
		return models.MarkPrice{}, false
	}
	return m, true
}

// triggerStop tears down the resting limit and flattens at market. The
// cancel happens once; if the limit filled while the cancel was in flight
// the fill wins and no market order goes out.
func (e *Executor) triggerStop(ctx context.Context) (Outcome, error) {
	log := e.entry().WithField("order_id", e.order.CloseOrderID)

	if e.order.MarkCancelRequested() {
		if err := e.adapter.CancelOrder(ctx, e.order.Symbol, e.order.CloseOrderID); err != nil && !isOrderNotFound(err) {
			return OutcomeAborted, fmt.Errorf("cancel closing order for stop: %w", err)
		}
	}

	ord, err := e.adapter.GetOrder(ctx, e.order.Symbol, e.order.CloseOrderID)
	if err == nil && ord.Status == models.OrderStatusFilled {
		e.order.State = StateCloseFilled
		e.order.CloseTime = e.clock.Now()
		if err := e.order.SetCloseStatus(models.CloseStatusFilled); err != nil {
			return OutcomeAborted, err
		}
		log.Info("closing order filled while stop cancel was in flight")
		return OutcomeClosed, nil
	}

	e.order.State = StateStopTriggered
	if err := e.order.SetCloseStatus(models.CloseStatusStopTriggered); err != nil {
		return OutcomeAborted, err
	}
	if err := e.closeAtMarket(ctx, "stop"); err != nil {
		return OutcomeAborted, err
	}
	e.order.CloseTime = e.clock.Now()
	log.Warn("position flattened at market after stop")
	return OutcomeStoppedOut, nil
}

// expire handles the monitoring ceiling: same teardown as a stop, recorded
// under its own status.
func (e *Executor) expire(ctx context.Context) (Outcome, error) {
	if e.order.MarkCancelRequested() {
		if err := e.adapter.CancelOrder(ctx, e.order.Symbol, e.order.CloseOrderID); err != nil && !isOrderNotFound(err) {
			return OutcomeAborted, fmt.Errorf("cancel closing order at ceiling: %w", err)
		}
	}

	ord, err := e.adapter.GetOrder(ctx, e.order.Symbol, e.order.CloseOrderID)
	if err == nil && ord.Status == models.OrderStatusFilled {
		e.order.State = StateCloseFilled
		e.order.CloseTime = e.clock.Now()
		if err := e.order.SetCloseStatus(models.CloseStatusFilled); err != nil {
			return OutcomeAborted, err
		}
		return OutcomeClosed, nil
	}

	e.order.State = StateCloseCancelled
	if err := e.order.SetCloseStatus(models.CloseStatusCancelled); err != nil {
		return OutcomeAborted, err
	}
	if err := e.closeAtMarket(ctx, "expiry"); err != nil {
		return OutcomeAborted, err
	}
	e.order.CloseTime = e.clock.Now()
	return OutcomeExpired, nil
}

// closeAtMarket sends a reduce-only market order for the full position and
// waits for its fill so the record carries the realized close, not the price
// of the limit it replaced. Reduce-only makes it safe against the race where
// the limit partially filled before cancellation.
func (e *Executor) closeAtMarket(ctx context.Context, reason string) error {
	link := reason + "-" + uuid.New().String()[:12]
	placed, err := e.placeIdempotent(ctx, models.Order{
		LinkID:       link,
		Symbol:       e.order.Symbol,
		Side:         models.OppositeSide(models.EntrySide(e.order.Side)),
		Type:         models.OrderTypeMarket,
		Qty:          e.order.Quantity,
		ReduceOnly:   true,
		PositionSide: e.order.Side,
		PriceStep:    e.rules.TickSize,
		QtyStep:      e.rules.LotSize,
	})
	if err != nil {
		return fmt.Errorf("market close (%s): %w", reason, err)
	}
	e.order.CloseOrderID = placed.ID
	e.order.ClosePrice = 0
	log := e.entry().WithField("order_id", placed.ID).WithField("reason", reason)
	log.Info("market close submitted")

	deadline := e.clock.Now().Add(e.cfg.GraceWindow)
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		ord, err := e.adapter.GetOrder(ctx, e.order.Symbol, placed.ID)
		if err != nil {
			log.WithError(err).Warn("market close status check failed")
		} else if ord.Status == models.OrderStatusFilled {
			price := ord.AvgPrice
			if price <= 0 {
				price = ord.Price
			}
			e.order.ClosePrice = price
			log.WithField("avg_price", price).Info("market close filled")
			return nil
		}

		if e.clock.Now().After(deadline) {
			// The order stays live on the exchange; the realized price is
			// simply unknown to this process.
			log.Warn("market close fill unconfirmed, realized price not recorded")
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			log.Warn("interrupted before market close fill confirmation")
			return nil
		}
	}
}
