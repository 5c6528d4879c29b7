package bitget

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

// PlaceOrder submits in one-way position mode; closing orders carry
// reduceOnly=YES, mirroring how the original scripts drove Bitget.
func (c *Client) PlaceOrder(ctx context.Context, order models.Order) (models.Order, error) {
	body := map[string]any{
		"symbol":      contractSymbol(order.Symbol),
		"productType": productType,
		"marginMode":  "crossed",
		"marginCoin":  marginCoin,
		"size":        exchange.FormatWithStep(order.Qty, order.QtyStep),
		"side":        strings.ToLower(string(order.Side)),
		"orderType":   strings.ToLower(string(order.Type)),
		"clientOid":   order.LinkID,
	}
	if order.Type == models.OrderTypeLimit {
		body["price"] = exchange.FormatWithStep(order.Price, order.PriceStep)
		tif := order.TimeInForce
		if tif == "" {
			tif = "GTC"
		}
		body["force"] = strings.ToLower(tif)
	}
	if order.ReduceOnly {
		body["reduceOnly"] = "YES"
	}

	var resp bitgetResponse[struct {
		OrderID   string `json:"orderId"`
		ClientOid string `json:"clientOid"`
	}]
	if err := c.doRequest(ctx, http.MethodPost, "/api/v2/mix/order/place-order", nil, body, true, &resp); err != nil {
		return models.Order{}, err
	}

	order.ID = resp.Data.OrderID
	order.Status = models.OrderStatusOpen
	order.CreateTime = time.Now().UTC()
	return order, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	body := map[string]any{
		"symbol":      contractSymbol(symbol),
		"productType": productType,
		"orderId":     orderID,
	}
	return c.doRequest(ctx, http.MethodPost, "/api/v2/mix/order/cancel-order", nil, body, true, nil)
}

func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (models.Order, error) {
	return c.queryOrder(ctx, symbol, "orderId", orderID)
}

func (c *Client) GetOrderByLinkID(ctx context.Context, symbol, linkID string) (models.Order, error) {
	return c.queryOrder(ctx, symbol, "clientOid", linkID)
}

func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	body := map[string]any{
		"symbol":      contractSymbol(symbol),
		"productType": productType,
		"marginCoin":  marginCoin,
		"leverage":    strconv.Itoa(leverage),
	}
	return c.doRequest(ctx, http.MethodPost, "/api/v2/mix/account/set-leverage", nil, body, true, nil)
}

func (c *Client) queryOrder(ctx context.Context, symbol, key, value string) (models.Order, error) {
	params := url.Values{}
	params.Set("symbol", contractSymbol(symbol))
	params.Set("productType", productType)
	params.Set(key, value)

	var resp bitgetResponse[struct {
		OrderID    string `json:"orderId"`
		ClientOid  string `json:"clientOid"`
		Side       string `json:"side"`
		OrderType  string `json:"orderType"`
		Price      string `json:"price"`
		Size       string `json:"size"`
		BaseVolume string `json:"baseVolume"`
		PriceAvg   string `json:"priceAvg"`
		State      string `json:"state"`
		ReduceOnly string `json:"reduceOnly"`
		UTime      string `json:"uTime"`
	}]
	if err := c.doRequest(ctx, http.MethodGet, "/api/v2/mix/order/detail", params, nil, true, &resp); err != nil {
		return models.Order{}, err
	}
	if resp.Data.OrderID == "" {
		return models.Order{}, fmt.Errorf("bitget: order not found: %s=%s", key, value)
	}

	item := resp.Data
	price, _ := strconv.ParseFloat(item.Price, 64)
	qty, _ := strconv.ParseFloat(item.Size, 64)
	filled, _ := strconv.ParseFloat(item.BaseVolume, 64)
	avg, _ := strconv.ParseFloat(item.PriceAvg, 64)
	updatedMs, _ := strconv.ParseInt(item.UTime, 10, 64)

	side := models.OrderSideSell
	if strings.EqualFold(item.Side, "buy") {
		side = models.OrderSideBuy
	}
	orderType := models.OrderTypeLimit
	if strings.EqualFold(item.OrderType, "market") {
		orderType = models.OrderTypeMarket
	}

	return models.Order{
		ID:         item.OrderID,
		LinkID:     item.ClientOid,
		Symbol:     symbol,
		Side:       side,
		Type:       orderType,
		Price:      price,
		Qty:        qty,
		FilledQty:  filled,
		AvgPrice:   avg,
		Status:     statusFromBitget(item.State),
		ReduceOnly: strings.EqualFold(item.ReduceOnly, "YES"),
		UpdateTime: time.UnixMilli(updatedMs).UTC(),
	}, nil
}

func statusFromBitget(state string) models.OrderStatus {
	switch state {
	case "filled":
		return models.OrderStatusFilled
	case "canceled", "cancelled", "rejected":
		return models.OrderStatusCancelled
	default:
		return models.OrderStatusOpen
	}
}
