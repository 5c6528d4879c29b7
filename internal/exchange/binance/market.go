package binance

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
	params.Set("symbol", contractSymbol(symbol))

	var resp struct {
		Symbols []struct {
			Symbol     string `json:"symbol"`
			BaseAsset  string `json:"baseAsset"`
			QuoteAsset string `json:"quoteAsset"`
			Filters    []struct {
				FilterType string `json:"filterType"`
				TickSize   string `json:"tickSize"`
				StepSize   string `json:"stepSize"`
				MinQty     string `json:"minQty"`
				Notional   string `json:"notional"`
			} `json:"filters"`
		} `json:"symbols"`
	}

	if err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/exchangeInfo", params, false, &resp); err != nil {
		return exchange.InstrumentRules{}, err
	}
	if len(resp.Symbols) == 0 {
		return exchange.InstrumentRules{}, fmt.Errorf("binance: contract not found: %s", symbol)
	}

	info := resp.Symbols[0]
	rules := exchange.InstrumentRules{
		BaseCoin:  info.BaseAsset,
		QuoteCoin: info.QuoteAsset,
	}
	for _, f := range info.Filters {
		switch f.FilterType {
		case "PRICE_FILTER":
			rules.TickSize, _ = strconv.ParseFloat(f.TickSize, 64)
		case "LOT_SIZE":
			rules.LotSize, _ = strconv.ParseFloat(f.StepSize, 64)
			rules.MinQty, _ = strconv.ParseFloat(f.MinQty, 64)
		case "MIN_NOTIONAL":
			rules.MinNotional, _ = strconv.ParseFloat(f.Notional, 64)
		}
	}
	if rules.TickSize == 0 || rules.LotSize == 0 {
		return exchange.InstrumentRules{}, fmt.Errorf("binance: missing price/lot filters for %s", symbol)
	}

	rules.MaxLeverage = c.maxLeverage(ctx, symbol)
	return rules, nil
}

func (c *Client) GetFundingRate(ctx context.Context, symbol string) (models.FundingRate, error) {
	premium, err := c.premiumIndex(ctx, symbol)
	if err != nil {
		return models.FundingRate{}, err
	}

	rate, err := strconv.ParseFloat(premium.LastFundingRate, 64)
	if err != nil {
		return models.FundingRate{}, fmt.Errorf("binance: invalid lastFundingRate %q: %w", premium.LastFundingRate, err)
	}

	return models.FundingRate{
		Symbol:         symbol,
		Rate:           rate,
		NextSettlement: time.UnixMilli(premium.NextFundingTime).UTC(),
		Interval:       c.fundingInterval(ctx, symbol),
		ObservedAt:     time.Now().UTC(),
	}, nil
}

func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (models.MarkPrice, error) {
	premium, err := c.premiumIndex(ctx, symbol)
	if err != nil {
		return models.MarkPrice{}, err
	}
	price, err := strconv.ParseFloat(premium.MarkPrice, 64)
	if err != nil {
		return models.MarkPrice{}, fmt.Errorf("binance: invalid markPrice %q: %w", premium.MarkPrice, err)
	}
	return models.MarkPrice{
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.UnixMilli(premium.Time).UTC(),
	}, nil
}

type premiumIndexResponse struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"`
	Time            int64  `json:"time"`
}

func (c *Client) premiumIndex(ctx context.Context, symbol string) (premiumIndexResponse, error) {
	params := url.Values{}
	params.Set("symbol", contractSymbol(symbol))

	var resp premiumIndexResponse
	if err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/premiumIndex", params, false, &resp); err != nil {
		return premiumIndexResponse{}, err
	}
	return resp, nil
}

// fundingInterval consults /fapi/v1/fundingInfo, which only lists contracts
// that deviate from the standard 8-hour schedule.
func (c *Client) fundingInterval(ctx context.Context, symbol string) time.Duration {
	var resp []struct {
		Symbol              string `json:"symbol"`
		FundingIntervalHour int    `json:"fundingIntervalHours"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/fundingInfo", nil, false, &resp); err != nil {
		return 8 * time.Hour
	}
	contract := contractSymbol(symbol)
	for _, item := range resp {
		if item.Symbol == contract && item.FundingIntervalHour > 0 {
			return time.Duration(item.FundingIntervalHour) * time.Hour
		}
	}
	return 8 * time.Hour
}

// maxLeverage reads the top leverage bracket; failures fall back to a
// conservative default, matching how the original scripts treated this call.
func (c *Client) maxLeverage(ctx context.Context, symbol string) int {
	params := url.Values{}
	params.Set("symbol", contractSymbol(symbol))

	var resp []struct {
		Symbol   string `json:"symbol"`
		Brackets []struct {
			InitialLeverage int `json:"initialLeverage"`
		} `json:"brackets"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/leverageBracket", params, true, &resp); err != nil {
		c.log.WithExchange(c.Name()).WithError(err).Warn("leverage bracket query failed, assuming 10x")
		return 10
	}
	if len(resp) == 0 || len(resp[0].Brackets) == 0 {
		return 10
	}
	return resp[0].Brackets[0].InitialLeverage
}
