package engine

import (
	"time"

	"fundingarb/internal/models"
)

// FundingWindow is one settlement cycle. Values are computed, never mutated;
// a new window is derived after every settlement.
type FundingWindow struct {
	Settlement time.Time
	Interval   time.Duration
}

// NextWindow computes the next settlement strictly after now, assuming the
// exchange anchors its schedule to 00:00 UTC. Pure: the same now and interval
// always yield the same window.
func NextWindow(now time.Time, interval time.Duration) FundingWindow {
	if interval <= 0 {
		interval = 8 * time.Hour
	}
	now = now.UTC()
	anchor := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	elapsed := now.Sub(anchor)
	periods := elapsed/interval + 1

	return FundingWindow{
		Settlement: anchor.Add(periods * interval),
		Interval:   interval,
	}
}

// WindowFromRate prefers the settlement timestamp the exchange itself
// published; the anchored derivation is only a fallback for adapters that
// return nothing usable.
func WindowFromRate(rate models.FundingRate, now time.Time) FundingWindow {
	interval := rate.Interval
	if interval <= 0 {
		interval = 8 * time.Hour
	}
	if rate.NextSettlement.After(now) {
		return FundingWindow{Settlement: rate.NextSettlement, Interval: interval}
	}
	return NextWindow(now, interval)
}

// PrecheckAt is when the gate fetches and evaluates the funding rate.
func (w FundingWindow) PrecheckAt(lead time.Duration) time.Time {
	return w.Settlement.Add(-lead)
}

// ActionAt is when the opening order goes out.
func (w FundingWindow) ActionAt(lead time.Duration) time.Time {
	return w.Settlement.Add(-lead)
}
