package exchange

import (
	"context"

	"fundingarb/internal/models"
)

// InstrumentRules are the per-contract trading constraints an adapter reports.
// Prices are quantized to TickSize and quantities to LotSize before any order
// reaches the wire.
type InstrumentRules struct {
	TickSize    float64
	LotSize     float64
	MinQty      float64
	MinNotional float64
	MaxLeverage int
	BaseCoin    string
	QuoteCoin   string
}

// Adapter is the capability set the engine depends on. Each exchange shim
// normalizes its own symbol convention and position-mode parameters behind
// this contract; the engine never sees them.
type Adapter interface {
	Name() string
	GetInstrumentRules(ctx context.Context, symbol string) (InstrumentRules, error)
	GetFundingRate(ctx context.Context, symbol string) (models.FundingRate, error)
	GetMarkPrice(ctx context.Context, symbol string) (models.MarkPrice, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	PlaceOrder(ctx context.Context, order models.Order) (models.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOrder(ctx context.Context, symbol, orderID string) (models.Order, error)
	GetOrderByLinkID(ctx context.Context, symbol, linkID string) (models.Order, error)
}
