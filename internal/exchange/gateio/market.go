package gateio

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fundingarb/internal/exchange"
	"fundingarb/internal/models"
)

type contractInfo struct {
	Name             string `json:"name"`
	QuantoMultiplier string `json:"quanto_multiplier"`
	OrderPriceRound  string `json:"order_price_round"`
	OrderSizeMin     int64  `json:"order_size_min"`
	LeverageMax      string `json:"leverage_max"`
	FundingRate      string `json:"funding_rate"`
	FundingInterval  int64  `json:"funding_interval"`
	FundingNextApply int64  `json:"funding_next_apply"`
	MarkPrice        string `json:"mark_price"`
}

func (c *Client) getContract(ctx context.Context, symbol string) (contractInfo, error) {
	path := fmt.Sprintf("/api/v4/futures/%s/contracts/%s", settle, contractName(symbol))
	var info contractInfo
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, false, &info); err != nil {
		return contractInfo{}, err
	}
	return info, nil
}

func (c *Client) GetInstrumentRules(ctx context.Context, symbol string) (exchange.InstrumentRules, error) {
	info, err := c.getContract(ctx, symbol)
	if err != nil {
		return exchange.InstrumentRules{}, err
	}

	tick, err := strconv.ParseFloat(info.OrderPriceRound, 64)
	if err != nil {
		return exchange.InstrumentRules{}, fmt.Errorf("gateio: invalid order_price_round %q: %w", info.OrderPriceRound, err)
	}
	multiplier, err := strconv.ParseFloat(info.QuantoMultiplier, 64)
	if err != nil || multiplier <= 0 {
		return exchange.InstrumentRules{}, fmt.Errorf("gateio: invalid quanto_multiplier %q", info.QuantoMultiplier)
	}
	maxLeverage, _ := strconv.ParseFloat(info.LeverageMax, 64)

	base, quote := splitSymbol(symbol)
	return exchange.InstrumentRules{
		TickSize: tick,
		// One contract moves in whole-contract steps; expressed in base units
		// the lot is the quanto multiplier.
		LotSize:     multiplier,
		MinQty:      float64(info.OrderSizeMin) * multiplier,
		MaxLeverage: int(maxLeverage),
		BaseCoin:    base,
		QuoteCoin:   quote,
	}, nil
}

func (c *Client) GetFundingRate(ctx context.Context, symbol string) (models.FundingRate, error) {
	info, err := c.getContract(ctx, symbol)
	if err != nil {
		return models.FundingRate{}, err
	}

	rate, err := strconv.ParseFloat(info.FundingRate, 64)
	if err != nil {
		return models.FundingRate{}, fmt.Errorf("gateio: invalid funding_rate %q: %w", info.FundingRate, err)
	}

	interval := time.Duration(info.FundingInterval) * time.Second
	if interval <= 0 {
		interval = 8 * time.Hour
	}

	return models.FundingRate{
		Symbol:         symbol,
		Rate:           rate,
		NextSettlement: time.Unix(info.FundingNextApply, 0).UTC(),
		Interval:       interval,
		ObservedAt:     time.Now().UTC(),
	}, nil
}

func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (models.MarkPrice, error) {
	info, err := c.getContract(ctx, symbol)
	if err != nil {
		return models.MarkPrice{}, err
	}
	price, err := strconv.ParseFloat(info.MarkPrice, 64)
	if err != nil {
		return models.MarkPrice{}, fmt.Errorf("gateio: invalid mark_price %q: %w", info.MarkPrice, err)
	}
	return models.MarkPrice{
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now().UTC(),
	}, nil
}

func splitSymbol(symbol string) (string, string) {
	parts := strings.SplitN(strings.ToUpper(symbol), "/", 2)
	if len(parts) != 2 {
		return strings.ToUpper(symbol), ""
	}
	return parts[0], parts[1]
}
