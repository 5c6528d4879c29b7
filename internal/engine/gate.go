package engine

import (
	"fmt"
	"strings"
	"time"

	"fundingarb/internal/models"
)

// Direction selects which funding-rate sign the strategy harvests.
type Direction string

const (
	// DirectionNegative enters short when the rate is at or below a negative
	// threshold (the original strategy).
	DirectionNegative Direction = "negative"
	// DirectionPositive enters long when the rate is at or above a positive
	// threshold.
	DirectionPositive Direction = "positive"
)

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "negative":
		return DirectionNegative, nil
	case "positive":
		return DirectionPositive, nil
	default:
		return "", fmt.Errorf("unknown funding direction: %s", s)
	}
}

// EntryPositionSide is the position the strategy opens for this direction.
func (d Direction) EntryPositionSide() models.PositionSide {
	if d == DirectionPositive {
		return models.PositionSideLong
	}
	return models.PositionSideShort
}

// GateResult is deliberately tri-state: "could not determine the rate" must
// never be reported as "condition not met".
type GateResult int

const (
	GateUnknown GateResult = iota
	GateSkip
	GateEnter
)

func (g GateResult) String() string {
	switch g {
	case GateEnter:
		return "enter"
	case GateSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// ShouldEnter compares an observed rate against the threshold. A zero or
// stale observation (older than one funding interval) yields GateUnknown.
func ShouldEnter(rate models.FundingRate, threshold float64, dir Direction, now time.Time) GateResult {
	if rate.ObservedAt.IsZero() {
		return GateUnknown
	}
	interval := rate.Interval
	if interval <= 0 {
		interval = 8 * time.Hour
	}
	if now.Sub(rate.ObservedAt) > interval {
		return GateUnknown
	}

	switch dir {
	case DirectionNegative:
		if rate.Rate <= threshold {
			return GateEnter
		}
	case DirectionPositive:
		if rate.Rate >= threshold {
			return GateEnter
		}
	default:
		return GateUnknown
	}
	return GateSkip
}
