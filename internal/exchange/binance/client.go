package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"fundingarb/internal/logger"
)

const defaultBaseURL = "https://fapi.binance.com"

type Client struct {
	baseURL    string
	apiKey     string
	secret     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
}

func New(baseURL, apiKey, secret string, callTimeout time.Duration, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		secret:  secret,
		httpClient: &http.Client{
			Timeout: callTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		log:     log,
	}
}

func (c *Client) Name() string {
	return "binance"
}

// contractSymbol converts BASE/QUOTE to Binance's futures form: BTC/USDT -> BTCUSDT.
func contractSymbol(symbol string) string {
	return strings.ReplaceAll(strings.ToUpper(symbol), "/", "")
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// doRequest signs authenticated calls the fapi way: timestamp+recvWindow are
// appended to the query and the whole query string is HMAC-SHA256 signed.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, auth bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if params == nil {
		params = url.Values{}
	}
	if auth {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("recvWindow", "5000")
	}

	query := params.Encode()
	if auth {
		query += "&signature=" + sign(c.secret, query)
	}

	urlStr := c.baseURL + path
	if query != "" {
		urlStr += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
	if err != nil {
		return fmt.Errorf("binance: create request: %w", err)
	}
	if auth {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("binance: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("binance: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Msg != "" {
			return fmt.Errorf("binance: %s (code=%d, status=%s)", apiErr.Msg, apiErr.Code, resp.Status)
		}
		return fmt.Errorf("binance: unexpected status %s: %s", resp.Status, string(data))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("binance: decode response: %w", err)
		}
	}
	return nil
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
