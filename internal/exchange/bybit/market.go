package bybit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"fundingarb/internal/exchange"
	"fundingarb/internal/models"
)

func (c *Client) GetInstrumentRules(ctx context.Context, symbol string) (exchange.InstrumentRules, error) {
	params := url.Values{}
	params.Set("category", "linear")
	params.Set("symbol", contractSymbol(symbol))

	var resp bybitResponse[struct {
		List []struct {
			Symbol      string `json:"symbol"`
			BaseCoin    string `json:"baseCoin"`
			QuoteCoin   string `json:"quoteCoin"`
			PriceFilter struct {
				TickSize string `json:"tickSize"`
			} `json:"priceFilter"`
			LotSizeFilter struct {
				QtyStep          string `json:"qtyStep"`
				MinOrderQty      string `json:"minOrderQty"`
				MinNotionalValue string `json:"minNotionalValue"`
			} `json:"lotSizeFilter"`
			LeverageFilter struct {
				MaxLeverage string `json:"maxLeverage"`
			} `json:"leverageFilter"`
		} `json:"list"`
	}]

	if err := c.doRequest(ctx, http.MethodGet, "/v5/market/instruments-info", params, nil, false, &resp); err != nil {
		return exchange.InstrumentRules{}, err
	}
	if len(resp.Result.List) == 0 {
		return exchange.InstrumentRules{}, fmt.Errorf("bybit: contract not found: %s", symbol)
	}

	info := resp.Result.List[0]

	tick, err := strconv.ParseFloat(info.PriceFilter.TickSize, 64)
	if err != nil {
		return exchange.InstrumentRules{}, fmt.Errorf("bybit: invalid tickSize %q: %w", info.PriceFilter.TickSize, err)
	}
	lot, err := strconv.ParseFloat(info.LotSizeFilter.QtyStep, 64)
	if err != nil {
		return exchange.InstrumentRules{}, fmt.Errorf("bybit: invalid qtyStep %q: %w", info.LotSizeFilter.QtyStep, err)
	}
	minQty, err := strconv.ParseFloat(info.LotSizeFilter.MinOrderQty, 64)
	if err != nil {
		return exchange.InstrumentRules{}, fmt.Errorf("bybit: invalid minOrderQty %q: %w", info.LotSizeFilter.MinOrderQty, err)
	}
	minNotional, _ := strconv.ParseFloat(info.LotSizeFilter.MinNotionalValue, 64)
	maxLeverage, _ := strconv.ParseFloat(info.LeverageFilter.MaxLeverage, 64)

	return exchange.InstrumentRules{
		TickSize:    tick,
		LotSize:     lot,
		MinQty:      minQty,
		MinNotional: minNotional,
		MaxLeverage: int(maxLeverage),
		BaseCoin:    info.BaseCoin,
		QuoteCoin:   info.QuoteCoin,
	}, nil
}

func (c *Client) GetFundingRate(ctx context.Context, symbol string) (models.FundingRate, error) {
	ticker, err := c.getTicker(ctx, symbol)
	if err != nil {
		return models.FundingRate{}, err
	}

	rate, err := strconv.ParseFloat(ticker.FundingRate, 64)
	if err != nil {
		return models.FundingRate{}, fmt.Errorf("bybit: invalid fundingRate %q: %w", ticker.FundingRate, err)
	}
	nextMs, err := strconv.ParseInt(ticker.NextFundingTime, 10, 64)
	if err != nil {
		return models.FundingRate{}, fmt.Errorf("bybit: invalid nextFundingTime %q: %w", ticker.NextFundingTime, err)
	}

	return models.FundingRate{
		Symbol:         symbol,
		Rate:           rate,
		NextSettlement: time.UnixMilli(nextMs).UTC(),
		Interval:       c.fundingInterval(ctx, symbol),
		ObservedAt:     time.Now().UTC(),
	}, nil
}

func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (models.MarkPrice, error) {
	ticker, err := c.getTicker(ctx, symbol)
	if err != nil {
		return models.MarkPrice{}, err
	}
	price, err := strconv.ParseFloat(ticker.MarkPrice, 64)
	if err != nil {
		return models.MarkPrice{}, fmt.Errorf("bybit: invalid markPrice %q: %w", ticker.MarkPrice, err)
	}
	return models.MarkPrice{
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now().UTC(),
	}, nil
}

type linearTicker struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	FundingRate     string `json:"fundingRate"`
	NextFundingTime string `json:"nextFundingTime"`
}

func (c *Client) getTicker(ctx context.Context, symbol string) (linearTicker, error) {
	params := url.Values{}
	params.Set("category", "linear")
	params.Set("symbol", contractSymbol(symbol))

	var resp bybitResponse[struct {
		List []linearTicker `json:"list"`
	}]

	if err := c.doRequest(ctx, http.MethodGet, "/v5/market/tickers", params, nil, false, &resp); err != nil {
		return linearTicker{}, err
	}
	if len(resp.Result.List) == 0 {
		return linearTicker{}, fmt.Errorf("bybit: ticker not found: %s", symbol)
	}
	return resp.Result.List[0], nil
}

// fundingInterval reads the contract's funding interval from instruments-info.
// Bybit reports it in minutes; failures fall back to the common 8 hours.
func (c *Client) fundingInterval(ctx context.Context, symbol string) time.Duration {
	params := url.Values{}
	params.Set("category", "linear")
	params.Set("symbol", contractSymbol(symbol))

	var resp bybitResponse[struct {
		List []struct {
			FundingInterval int `json:"fundingInterval"`
		} `json:"list"`
	}]

	if err := c.doRequest(ctx, http.MethodGet, "/v5/market/instruments-info", params, nil, false, &resp); err != nil {
		return 8 * time.Hour
	}
	if len(resp.Result.List) == 0 || resp.Result.List[0].FundingInterval <= 0 {
		return 8 * time.Hour
	}
	return time.Duration(resp.Result.List[0].FundingInterval) * time.Minute
}
