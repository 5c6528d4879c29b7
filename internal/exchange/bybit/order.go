package bybit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fundingarb/internal/exchange"
	"fundingarb/internal/models"
)

func (c *Client) PlaceOrder(ctx context.Context, order models.Order) (models.Order, error) {
	body := map[string]any{
		"category":    "linear",
		"symbol":      contractSymbol(order.Symbol),
		"side":        bybitSide(order.Side),
		"orderType":   bybitOrderType(order.Type),
		"qty":         exchange.FormatWithStep(order.Qty, order.QtyStep),
		"orderLinkId": order.LinkID,
		"positionIdx": 0, // one-way mode
	}
	if order.Type == models.OrderTypeLimit {
		body["price"] = exchange.FormatWithStep(order.Price, order.PriceStep)
		tif := order.TimeInForce
		if tif == "" {
			tif = "GTC"
		}
		body["timeInForce"] = tif
	}
	if order.ReduceOnly {
		body["reduceOnly"] = true
	}

	var resp bybitResponse[struct {
		OrderID string `json:"orderId"`
	}]

	if err := c.doRequest(ctx, http.MethodPost, "/v5/order/create", nil, body, true, &resp); err != nil {
		return models.Order{}, err
	}

	order.ID = resp.Result.OrderID
	order.Status = models.OrderStatusOpen
	order.CreateTime = time.Now().UTC()
	return order, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	body := map[string]any{
		"category": "linear",
		"symbol":   contractSymbol(symbol),
		"orderId":  orderID,
	}
	return c.doRequest(ctx, http.MethodPost, "/v5/order/cancel", nil, body, true, nil)
}

func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (models.Order, error) {
	return c.queryOrder(ctx, symbol, "orderId", orderID)
}

func (c *Client) GetOrderByLinkID(ctx context.Context, symbol, linkID string) (models.Order, error) {
	return c.queryOrder(ctx, symbol, "orderLinkId", linkID)
}

func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	body := map[string]any{
		"category":     "linear",
		"symbol":       contractSymbol(symbol),
		"buyLeverage":  strconv.Itoa(leverage),
		"sellLeverage": strconv.Itoa(leverage),
	}
	err := c.doRequest(ctx, http.MethodPost, "/v5/position/set-leverage", nil, body, true, nil)
	if err != nil && isLeverageNotModified(err) {
		return nil
	}
	return err
}

// queryOrder covers both resting and recently finished orders; /v5/order/realtime
// returns terminal orders for a short window after they leave the book.
func (c *Client) queryOrder(ctx context.Context, symbol, key, value string) (models.Order, error) {
	params := url.Values{}
	params.Set("category", "linear")
	params.Set("symbol", contractSymbol(symbol))
	params.Set(key, value)

	var resp bybitResponse[struct {
		List []struct {
			OrderID     string `json:"orderId"`
			OrderLink   string `json:"orderLinkId"`
			Side        string `json:"side"`
			OrderType   string `json:"orderType"`
			Price       string `json:"price"`
			Qty         string `json:"qty"`
			CumExecQty  string `json:"cumExecQty"`
			AvgPrice    string `json:"avgPrice"`
			OrderStatus string `json:"orderStatus"`
			ReduceOnly  bool   `json:"reduceOnly"`
			UpdatedTime string `json:"updatedTime"`
		} `json:"list"`
	}]

	if err := c.doRequest(ctx, http.MethodGet, "/v5/order/realtime", params, nil, true, &resp); err != nil {
		return models.Order{}, err
	}
	if len(resp.Result.List) == 0 {
		return models.Order{}, fmt.Errorf("bybit: order not found: %s=%s", key, value)
	}

	item := resp.Result.List[0]
	price, _ := strconv.ParseFloat(item.Price, 64)
	qty, _ := strconv.ParseFloat(item.Qty, 64)
	filled, _ := strconv.ParseFloat(item.CumExecQty, 64)
	avg, _ := strconv.ParseFloat(item.AvgPrice, 64)
	updatedMs, _ := strconv.ParseInt(item.UpdatedTime, 10, 64)

	return models.Order{
		ID:         item.OrderID,
		LinkID:     item.OrderLink,
		Symbol:     symbol,
		Side:       sideFromBybit(item.Side),
		Type:       typeFromBybit(item.OrderType),
		Price:      price,
		Qty:        qty,
		FilledQty:  filled,
		AvgPrice:   avg,
		Status:     statusFromBybit(item.OrderStatus),
		ReduceOnly: item.ReduceOnly,
		UpdateTime: time.UnixMilli(updatedMs).UTC(),
	}, nil
}

func bybitSide(side models.OrderSide) string {
	if side == models.OrderSideBuy {
		return "Buy"
	}
	return "Sell"
}

func sideFromBybit(side string) models.OrderSide {
	if side == "Buy" {
		return models.OrderSideBuy
	}
	return models.OrderSideSell
}

func bybitOrderType(t models.OrderType) string {
	if t == models.OrderTypeMarket {
		return "Market"
	}
	return "Limit"
}

func typeFromBybit(t string) models.OrderType {
	if t == "Market" {
		return models.OrderTypeMarket
	}
	return models.OrderTypeLimit
}

func statusFromBybit(status string) models.OrderStatus {
	switch status {
	case "Filled":
		return models.OrderStatusFilled
	case "Cancelled", "Rejected", "Deactivated", "PartiallyFilledCanceled":
		return models.OrderStatusCancelled
	default:
		return models.OrderStatusOpen
	}
}

func isLeverageNotModified(err error) bool {
	// 110043: leverage not modified
	return err != nil && (strings.Contains(err.Error(), "110043") || strings.Contains(err.Error(), "leverage not modified"))
}
