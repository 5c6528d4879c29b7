package models

import "time"

type OrderSide string
type OrderType string
type OrderStatus string
type PositionSide string
type CloseStatus string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"

	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"

	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"

	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"

	CloseStatusNone          CloseStatus = "NONE"
	CloseStatusPending       CloseStatus = "PENDING"
	CloseStatusFilled        CloseStatus = "FILLED"
	CloseStatusCancelled     CloseStatus = "CANCELLED"
	CloseStatusStopTriggered CloseStatus = "STOP_TRIGGERED"
)

// Order is the normalized order shape exchanged with an adapter. Price and
// Qty carry raw values; PriceStep/QtyStep tell the adapter how to quantize
// them before submission so the exchange never rejects on excess precision.
type Order struct {
	ID           string       `json:"id"`
	LinkID       string       `json:"link_id"`
	Symbol       string       `json:"symbol"`
	Side         OrderSide    `json:"side"`
	Type         OrderType    `json:"type"`
	Price        float64      `json:"price"`
	Qty          float64      `json:"qty"`
	FilledQty    float64      `json:"filled_qty"`
	AvgPrice     float64      `json:"avg_price"`
	Status       OrderStatus  `json:"status"`
	ReduceOnly   bool         `json:"reduce_only"`
	PositionSide PositionSide `json:"position_side"`
	TimeInForce  string       `json:"time_in_force"`
	PriceStep    float64      `json:"price_step"`
	QtyStep      float64      `json:"qty_step"`
	CreateTime   time.Time    `json:"create_time"`
	UpdateTime   time.Time    `json:"update_time"`
}

// FundingRate is a funding-rate observation. ObservedAt is when the value was
// fetched, not when it applies; the gate uses it to reject stale data.
type FundingRate struct {
	Symbol         string        `json:"symbol"`
	Rate           float64       `json:"rate"`
	NextSettlement time.Time     `json:"next_settlement"`
	Interval       time.Duration `json:"interval"`
	ObservedAt     time.Time     `json:"observed_at"`
}

type MarkPrice struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// OppositeSide returns the closing direction for an entry side.
func OppositeSide(side OrderSide) OrderSide {
	if side == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// EntrySide maps a position side to the order side that opens it.
func EntrySide(pos PositionSide) OrderSide {
	if pos == PositionSideLong {
		return OrderSideBuy
	}
	return OrderSideSell
}
