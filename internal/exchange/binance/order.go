package binance

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fundingarb/internal/exchange"
	"fundingarb/internal/models"
)

// PlaceOrder submits in hedge mode: every order is tagged with a positionSide
// and closing orders are the opposite order side on the same position side,
// so no reduceOnly flag is sent (Binance rejects it in hedge mode).
func (c *Client) PlaceOrder(ctx context.Context, order models.Order) (models.Order, error) {
	params := url.Values{}
	params.Set("symbol", contractSymbol(order.Symbol))
	params.Set("side", string(order.Side))
	params.Set("type", string(order.Type))
	params.Set("quantity", exchange.FormatWithStep(order.Qty, order.QtyStep))
	params.Set("newClientOrderId", order.LinkID)
	if order.PositionSide != "" {
		params.Set("positionSide", string(order.PositionSide))
	}
	if order.Type == models.OrderTypeLimit {
		params.Set("price", exchange.FormatWithStep(order.Price, order.PriceStep))
		tif := order.TimeInForce
		if tif == "" {
			tif = "GTC"
		}
		params.Set("timeInForce", tif)
	}

	var resp futuresOrder
	if err := c.doRequest(ctx, http.MethodPost, "/fapi/v1/order", params, true, &resp); err != nil {
		return models.Order{}, err
	}
	return resp.toModel(order.Symbol), nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", contractSymbol(symbol))
	params.Set("orderId", orderID)
	return c.doRequest(ctx, http.MethodDelete, "/fapi/v1/order", params, true, nil)
}

func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (models.Order, error) {
	params := url.Values{}
	params.Set("symbol", contractSymbol(symbol))
	params.Set("orderId", orderID)
	return c.queryOrder(ctx, symbol, params)
}

func (c *Client) GetOrderByLinkID(ctx context.Context, symbol, linkID string) (models.Order, error) {
	params := url.Values{}
	params.Set("symbol", contractSymbol(symbol))
	params.Set("origClientOrderId", linkID)
	return c.queryOrder(ctx, symbol, params)
}

func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", contractSymbol(symbol))
	params.Set("leverage", strconv.Itoa(leverage))
	err := c.doRequest(ctx, http.MethodPost, "/fapi/v1/leverage", params, true, nil)
	if err != nil && strings.Contains(err.Error(), "No need to change leverage") {
		return nil
	}
	return err
}

func (c *Client) queryOrder(ctx context.Context, symbol string, params url.Values) (models.Order, error) {
	var resp futuresOrder
	if err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/order", params, true, &resp); err != nil {
		return models.Order{}, err
	}
	return resp.toModel(symbol), nil
}

type futuresOrder struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	PositionSide  string `json:"positionSide"`
	Price         string `json:"price"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	AvgPrice      string `json:"avgPrice"`
	Status        string `json:"status"`
	ReduceOnly    bool   `json:"reduceOnly"`
	UpdateTime    int64  `json:"updateTime"`
}

func (o futuresOrder) toModel(symbol string) models.Order {
	price, _ := strconv.ParseFloat(o.Price, 64)
	qty, _ := strconv.ParseFloat(o.OrigQty, 64)
	filled, _ := strconv.ParseFloat(o.ExecutedQty, 64)
	avg, _ := strconv.ParseFloat(o.AvgPrice, 64)

	return models.Order{
		ID:           strconv.FormatInt(o.OrderID, 10),
		LinkID:       o.ClientOrderID,
		Symbol:       symbol,
		Side:         models.OrderSide(o.Side),
		Type:         models.OrderType(o.Type),
		PositionSide: models.PositionSide(o.PositionSide),
		Price:        price,
		Qty:          qty,
		FilledQty:    filled,
		AvgPrice:     avg,
		Status:       statusFromBinance(o.Status),
		ReduceOnly:   o.ReduceOnly,
		UpdateTime:   time.UnixMilli(o.UpdateTime).UTC(),
	}
}

func statusFromBinance(status string) models.OrderStatus {
	switch status {
	case "FILLED":
		return models.OrderStatusFilled
	case "CANCELED", "REJECTED", "EXPIRED":
		return models.OrderStatusCancelled
	default:
		return models.OrderStatusOpen
	}
}
