package bybit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingarb/internal/logger"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "key", "secret", time.Second, logger.New(logger.Config{Level: "error"}))
}

func TestGetInstrumentRules(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v5/market/instruments-info", r.URL.Path)
		assert.Equal(t, "linear", r.URL.Query().Get("category"))
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[{
			"symbol":"BTCUSDT","baseCoin":"BTC","quoteCoin":"USDT",
			"priceFilter":{"tickSize":"0.10"},
			"lotSizeFilter":{"qtyStep":"0.001","minOrderQty":"0.001","minNotionalValue":"5"},
			"leverageFilter":{"maxLeverage":"100.00"}
		}]}}`))
	}))

	rules, err := c.GetInstrumentRules(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, rules.TickSize, 1e-9)
	assert.InDelta(t, 0.001, rules.LotSize, 1e-9)
	assert.InDelta(t, 0.001, rules.MinQty, 1e-9)
	assert.InDelta(t, 5.0, rules.MinNotional, 1e-9)
	assert.Equal(t, 100, rules.MaxLeverage)
	assert.Equal(t, "BTC", rules.BaseCoin)
}

func TestGetFundingRate(t *testing.T) {
	next := time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC)
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v5/market/tickers":
			w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[{
				"symbol":"BTCUSDT","markPrice":"27345.50",
				"fundingRate":"-0.0081","nextFundingTime":"1772380800000"
			}]}}`))
		case "/v5/market/instruments-info":
			w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[{"fundingInterval":480}]}}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	rate, err := c.GetFundingRate(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, -0.0081, rate.Rate, 1e-9)
	assert.Equal(t, next, rate.NextSettlement)
	assert.Equal(t, 8*time.Hour, rate.Interval)
	assert.WithinDuration(t, time.Now(), rate.ObservedAt, 5*time.Second)
}

func TestErrorEnvelope(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":10006,"retMsg":"Too many visits.","result":{}}`))
	}))

	_, err := c.GetMarkPrice(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "10006")
}
