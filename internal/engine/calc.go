package engine

import (
	"math"

	"fundingarb/internal/models"
)

// CalcClosePrice computes the breakeven exit for a position opened right
// before funding settles. The funding payment is priced into the limit so
// that filling at this level realizes the funding income minus fees.
//
// For a short opened on a negative rate the close is a buy below entry:
//
//	close = open * (1 + rate - feeBuffer)
//
// For a long opened on a positive rate the close is a sell above entry:
//
//	close = open * (1 + rate + feeBuffer)
func CalcClosePrice(openPrice, fundingRate, feeBuffer float64, side models.PositionSide) float64 {
	if side == models.PositionSideLong {
		return openPrice * (1 + fundingRate + feeBuffer)
	}
	return openPrice * (1 + fundingRate - feeBuffer)
}

// StopBreached reports whether the mark has moved against the position past
// the stop threshold, expressed as a fraction of the open price.
func StopBreached(openPrice, markPrice, stopThreshold float64, side models.PositionSide) bool {
	if openPrice <= 0 || markPrice <= 0 {
		return false
	}
	if side == models.PositionSideLong {
		return markPrice <= openPrice*(1-stopThreshold)
	}
	return markPrice >= openPrice*(1+stopThreshold)
}

// RoundDown truncates v to the nearest multiple of step. A non-positive
// step returns v unchanged.
func RoundDown(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	// same epsilon nudge the order formatter uses, so 98.70/0.1 style
	// divisions do not floor a representation error into a whole tick
	return math.Floor(v/step+1e-9) * step
}

// SizeQuantity converts a quote-currency notional into a base quantity at
// the given mark, truncated to the lot step. Returns 0 when the result
// falls below the exchange minimum.
func SizeQuantity(notional, markPrice, lotStep, minQty float64) float64 {
	if markPrice <= 0 {
		return 0
	}
	qty := RoundDown(notional/markPrice, lotStep)
	if qty < minQty {
		return 0
	}
	return qty
}
