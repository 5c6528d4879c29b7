package gateio

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fundingarb/internal/exchange"
	"fundingarb/internal/models"
)

// PlaceOrder converts the base-asset quantity to Gate's signed contract count:
// positive size buys, negative sells. Market orders are price "0" with IOC.
func (c *Client) PlaceOrder(ctx context.Context, order models.Order) (models.Order, error) {
	multiplier, err := c.quantoMultiplier(ctx, order.Symbol)
	if err != nil {
		return models.Order{}, err
	}

	size := int64(math.Floor(order.Qty/multiplier + 1e-9))
	if size <= 0 {
		return models.Order{}, fmt.Errorf("gateio: quantity %f below one contract (%f)", order.Qty, multiplier)
	}
	if order.Side == models.OrderSideSell {
		size = -size
	}

	body := map[string]any{
		"contract": contractName(order.Symbol),
		"size":     size,
		"text":     linkText(order.LinkID),
	}
	if order.Type == models.OrderTypeMarket {
		body["price"] = "0"
		body["tif"] = "ioc"
	} else {
		body["price"] = exchange.FormatWithStep(order.Price, order.PriceStep)
		body["tif"] = "gtc"
	}
	if order.ReduceOnly {
		body["reduce_only"] = true
	}

	path := fmt.Sprintf("/api/v4/futures/%s/orders", settle)
	var resp futuresOrder
	if err := c.doRequest(ctx, http.MethodPost, path, nil, body, true, &resp); err != nil {
		return models.Order{}, err
	}
	return resp.toModel(order.Symbol, multiplier), nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	path := fmt.Sprintf("/api/v4/futures/%s/orders/%s", settle, orderID)
	return c.doRequest(ctx, http.MethodDelete, path, nil, nil, true, nil)
}

func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (models.Order, error) {
	return c.queryOrder(ctx, symbol, orderID)
}

// GetOrderByLinkID relies on Gate accepting the custom text id wherever an
// order id is expected.
func (c *Client) GetOrderByLinkID(ctx context.Context, symbol, linkID string) (models.Order, error) {
	return c.queryOrder(ctx, symbol, linkText(linkID))
}

func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	path := fmt.Sprintf("/api/v4/futures/%s/positions/%s/leverage", settle, contractName(symbol))
	params := url.Values{}
	params.Set("leverage", strconv.Itoa(leverage))
	return c.doRequest(ctx, http.MethodPost, path, params, nil, true, nil)
}

func (c *Client) queryOrder(ctx context.Context, symbol, id string) (models.Order, error) {
	multiplier, err := c.quantoMultiplier(ctx, symbol)
	if err != nil {
		return models.Order{}, err
	}
	path := fmt.Sprintf("/api/v4/futures/%s/orders/%s", settle, id)
	var resp futuresOrder
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, true, &resp); err != nil {
		return models.Order{}, err
	}
	return resp.toModel(symbol, multiplier), nil
}

type futuresOrder struct {
	ID         int64   `json:"id"`
	Contract   string  `json:"contract"`
	Size       int64   `json:"size"`
	Left       int64   `json:"left"`
	Price      string  `json:"price"`
	FillPrice  string  `json:"fill_price"`
	Status     string  `json:"status"`
	FinishAs   string  `json:"finish_as"`
	IsReduce   bool    `json:"is_reduce_only"`
	Text       string  `json:"text"`
	CreateTime float64 `json:"create_time"`
	FinishTime float64 `json:"finish_time"`
}

func (o futuresOrder) toModel(symbol string, multiplier float64) models.Order {
	price, _ := strconv.ParseFloat(o.Price, 64)
	avg, _ := strconv.ParseFloat(o.FillPrice, 64)

	side := models.OrderSideBuy
	size := o.Size
	left := o.Left
	if size < 0 {
		side = models.OrderSideSell
		size = -size
		left = -left
	}

	orderType := models.OrderTypeLimit
	if price == 0 {
		orderType = models.OrderTypeMarket
	}

	return models.Order{
		ID:         strconv.FormatInt(o.ID, 10),
		LinkID:     strings.TrimPrefix(o.Text, "t-"),
		Symbol:     symbol,
		Side:       side,
		Type:       orderType,
		Price:      price,
		Qty:        float64(size) * multiplier,
		FilledQty:  float64(size-left) * multiplier,
		AvgPrice:   avg,
		Status:     statusFromGate(o.Status, o.FinishAs, left),
		ReduceOnly: o.IsReduce,
		CreateTime: time.Unix(int64(o.CreateTime), 0).UTC(),
		UpdateTime: time.Unix(int64(o.FinishTime), 0).UTC(),
	}
}

func statusFromGate(status, finishAs string, left int64) models.OrderStatus {
	if status != "finished" {
		return models.OrderStatusOpen
	}
	switch finishAs {
	case "filled":
		return models.OrderStatusFilled
	case "ioc":
		// IOC remainder cancelled; fully consumed counts as a fill.
		if left == 0 {
			return models.OrderStatusFilled
		}
		return models.OrderStatusCancelled
	default:
		return models.OrderStatusCancelled
	}
}

// linkText applies Gate's mandatory custom-id prefix exactly once.
func linkText(linkID string) string {
	if strings.HasPrefix(linkID, "t-") {
		return linkID
	}
	return "t-" + linkID
}
