package engine

import (
	"fmt"
	"time"

	"fundingarb/internal/models"
)

// State tracks the lifecycle of a single settlement trade.
type State int

const (
	StateIdle State = iota
	StateOpenSubmitted
	StateOpenFilled
	StateCloseSubmitted
	StateCloseFilled
	StateStopTriggered
	StateCloseCancelled
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateOpenSubmitted:
		return "OPEN_SUBMITTED"
	case StateOpenFilled:
		return "OPEN_FILLED"
	case StateCloseSubmitted:
		return "CLOSE_SUBMITTED"
	case StateCloseFilled:
		return "CLOSE_FILLED"
	case StateStopTriggered:
		return "STOP_TRIGGERED"
	case StateCloseCancelled:
		return "CLOSE_CANCELLED"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome is the terminal result of one Run.
type Outcome string

const (
	OutcomeSkipped    Outcome = "skipped"     // gate said the rate does not qualify
	OutcomeUnknown    Outcome = "unknown"     // rate could not be determined, stayed flat
	OutcomeUnfilled   Outcome = "unfilled"    // open order never filled, cancelled
	OutcomeClosed     Outcome = "closed"      // close limit filled at breakeven
	OutcomeStoppedOut Outcome = "stopped_out" // adverse move, closed at market
	OutcomeExpired    Outcome = "expired"     // monitor ceiling hit, closed at market
	OutcomeAborted    Outcome = "aborted"     // context cancelled or unrecoverable error
)

// ArbitrageOrder is the mutable record of one settlement trade. The
// executor owns it; fields are written in lifecycle order and closeOrderID
// is only ever set after openFillTime.
type ArbitrageOrder struct {
	Symbol    string
	Exchange  string
	Direction Direction
	Side      models.PositionSide

	FundingRate float64
	Settlement  time.Time

	OpenOrderID  string
	OpenLinkID   string
	OpenPrice    float64
	Quantity     float64
	Leverage     int
	OpenFillTime time.Time

	ClosePrice   float64
	CloseOrderID string
	CloseLinkID  string
	CloseStatus  models.CloseStatus
	CloseTime    time.Time

	RecordID int64
	State    State

	cancelled bool // the close order has been cancelled exactly once
}

// SetCloseStatus enforces the one-way transitions of the close order:
// a cancelled close never becomes pending again, and terminal states
// are never overwritten by PENDING.
func (o *ArbitrageOrder) SetCloseStatus(next models.CloseStatus) error {
	cur := o.CloseStatus
	if cur == next {
		return nil
	}
	switch cur {
	case models.CloseStatusNone:
		// anything goes from the initial state
	case models.CloseStatusPending:
		// pending may settle to any terminal state
	default:
		return fmt.Errorf("close status transition %s -> %s not allowed", cur, next)
	}
	o.CloseStatus = next
	return nil
}

// MarkCancelRequested returns true the first time it is called. Callers use
// it to send at most one cancel for the close order.
func (o *ArbitrageOrder) MarkCancelRequested() bool {
	if o.cancelled {
		return false
	}
	o.cancelled = true
	return true
}
