package bitget

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"fundingarb/internal/exchange"
	"fundingarb/internal/models"
)

func (c *Client) GetInstrumentRules(ctx context.Context, symbol string) (exchange.InstrumentRules, error) {
	params := url.Values{}
	params.Set("productType", productType)
	params.Set("symbol", contractSymbol(symbol))

	var resp bitgetResponse[[]struct {
		Symbol       string `json:"symbol"`
		BaseCoin     string `json:"baseCoin"`
		QuoteCoin    string `json:"quoteCoin"`
		PricePlace   string `json:"pricePlace"`
		PriceEndStep string `json:"priceEndStep"`
		VolumePlace  string `json:"volumePlace"`
		MinTradeNum  string `json:"minTradeNum"`
		MaxLever     string `json:"maxLever"`
		MinTradeUSDT string `json:"minTradeUSDT"`
	}]

	if err := c.doRequest(ctx, http.MethodGet, "/api/v2/mix/market/contracts", params, nil, false, &resp); err != nil {
		return exchange.InstrumentRules{}, err
	}
	if len(resp.Data) == 0 {
		return exchange.InstrumentRules{}, fmt.Errorf("bitget: contract not found: %s", symbol)
	}

	info := resp.Data[0]

	pricePlace, err := strconv.Atoi(info.PricePlace)
	if err != nil {
		return exchange.InstrumentRules{}, fmt.Errorf("bitget: invalid pricePlace %q: %w", info.PricePlace, err)
	}
	endStep, err := strconv.ParseFloat(info.PriceEndStep, 64)
	if err != nil || endStep <= 0 {
		endStep = 1
	}
	volumePlace, err := strconv.Atoi(info.VolumePlace)
	if err != nil {
		return exchange.InstrumentRules{}, fmt.Errorf("bitget: invalid volumePlace %q: %w", info.VolumePlace, err)
	}
	minQty, _ := strconv.ParseFloat(info.MinTradeNum, 64)
	minNotional, _ := strconv.ParseFloat(info.MinTradeUSDT, 64)
	maxLever, _ := strconv.ParseFloat(info.MaxLever, 64)

	return exchange.InstrumentRules{
		TickSize:    endStep * math.Pow10(-pricePlace),
		LotSize:     math.Pow10(-volumePlace),
		MinQty:      minQty,
		MinNotional: minNotional,
		MaxLeverage: int(maxLever),
		BaseCoin:    info.BaseCoin,
		QuoteCoin:   info.QuoteCoin,
	}, nil
}

func (c *Client) GetFundingRate(ctx context.Context, symbol string) (models.FundingRate, error) {
	params := url.Values{}
	params.Set("productType", productType)
	params.Set("symbol", contractSymbol(symbol))

	var rateResp bitgetResponse[[]struct {
		Symbol      string `json:"symbol"`
		FundingRate string `json:"fundingRate"`
	}]
	if err := c.doRequest(ctx, http.MethodGet, "/api/v2/mix/market/current-fund-rate", params, nil, false, &rateResp); err != nil {
		return models.FundingRate{}, err
	}
	if len(rateResp.Data) == 0 {
		return models.FundingRate{}, fmt.Errorf("bitget: funding rate not found: %s", symbol)
	}

	rate, err := strconv.ParseFloat(rateResp.Data[0].FundingRate, 64)
	if err != nil {
		return models.FundingRate{}, fmt.Errorf("bitget: invalid fundingRate %q: %w", rateResp.Data[0].FundingRate, err)
	}

	var timeResp bitgetResponse[[]struct {
		Symbol          string `json:"symbol"`
		NextFundingTime string `json:"nextFundingTime"`
		RatePeriod      string `json:"ratePeriod"`
	}]
	if err := c.doRequest(ctx, http.MethodGet, "/api/v2/mix/market/funding-time", params, nil, false, &timeResp); err != nil {
		return models.FundingRate{}, err
	}
	if len(timeResp.Data) == 0 {
		return models.FundingRate{}, fmt.Errorf("bitget: funding time not found: %s", symbol)
	}

	nextMs, err := strconv.ParseInt(timeResp.Data[0].NextFundingTime, 10, 64)
	if err != nil {
		return models.FundingRate{}, fmt.Errorf("bitget: invalid nextFundingTime %q: %w", timeResp.Data[0].NextFundingTime, err)
	}
	interval := 8 * time.Hour
	if hours, err := strconv.Atoi(timeResp.Data[0].RatePeriod); err == nil && hours > 0 {
		interval = time.Duration(hours) * time.Hour
	}

	return models.FundingRate{
		Symbol:         symbol,
		Rate:           rate,
		NextSettlement: time.UnixMilli(nextMs).UTC(),
		Interval:       interval,
		ObservedAt:     time.Now().UTC(),
	}, nil
}

func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (models.MarkPrice, error) {
	params := url.Values{}
	params.Set("productType", productType)
	params.Set("symbol", contractSymbol(symbol))

	var resp bitgetResponse[[]struct {
		Symbol    string `json:"symbol"`
		MarkPrice string `json:"markPrice"`
		Timestamp string `json:"ts"`
	}]
	if err := c.doRequest(ctx, http.MethodGet, "/api/v2/mix/market/symbol-price", params, nil, false, &resp); err != nil {
		return models.MarkPrice{}, err
	}
	if len(resp.Data) == 0 {
		return models.MarkPrice{}, fmt.Errorf("bitget: mark price not found: %s", symbol)
	}

	price, err := strconv.ParseFloat(resp.Data[0].MarkPrice, 64)
	if err != nil {
		return models.MarkPrice{}, fmt.Errorf("bitget: invalid markPrice %q: %w", resp.Data[0].MarkPrice, err)
	}
	tsMs, _ := strconv.ParseInt(resp.Data[0].Timestamp, 10, 64)

	return models.MarkPrice{
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.UnixMilli(tsMs).UTC(),
	}, nil
}
