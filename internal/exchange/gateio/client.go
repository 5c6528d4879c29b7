package gateio

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fundingarb/internal/logger"
)

const (
	defaultBaseURL = "https://api.gateio.ws"
	settle         = "usdt"
)

type Client struct {
	baseURL    string
	apiKey     string
	secret     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger

	mu          sync.Mutex
	multipliers map[string]float64
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
		limiter:     rate.NewLimiter(rate.Limit(10), 20),
		log:         log,
		multipliers: map[string]float64{},
	}
}

func (c *Client) Name() string {
	return "gateio"
}

// contractName converts BASE/QUOTE to Gate's futures form: BTC/USDT -> BTC_USDT.
func contractName(symbol string) string {
	return strings.ReplaceAll(strings.ToUpper(symbol), "/", "_")
}

// Gate sizes futures orders in integer contracts. quantoMultiplier returns the
// base-asset amount one contract represents, cached after the first lookup.
func (c *Client) quantoMultiplier(ctx context.Context, symbol string) (float64, error) {
	contract := contractName(symbol)

	c.mu.Lock()
	if m, ok := c.multipliers[contract]; ok {
		c.mu.Unlock()
		return m, nil
	}
	c.mu.Unlock()

	info, err := c.getContract(ctx, symbol)
	if err != nil {
		return 0, err
	}
	m, err := strconv.ParseFloat(info.QuantoMultiplier, 64)
	if err != nil || m <= 0 {
		return 0, fmt.Errorf("gateio: invalid quanto_multiplier %q for %s", info.QuantoMultiplier, contract)
	}

	c.mu.Lock()
	c.multipliers[contract] = m
	c.mu.Unlock()
	return m, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body any, auth bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateio: marshal request body: %w", err)
		}
		bodyStr = string(payload)
		bodyReader = bytes.NewReader(payload)
	}

	query := ""
	if len(params) > 0 {
		query = params.Encode()
	}
	urlStr := c.baseURL + path
	if query != "" {
		urlStr += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, bodyReader)
	if err != nil {
		return fmt.Errorf("gateio: create request: %w", err)
	}

	if auth {
		timestamp := strconv.FormatInt(time.Now().Unix(), 10)
		bodyHash := sha512.Sum512([]byte(bodyStr))
		signBase := fmt.Sprintf("%s\n%s\n%s\n%s\n%s",
			method, path, query, hex.EncodeToString(bodyHash[:]), timestamp)

		req.Header.Set("KEY", c.apiKey)
		req.Header.Set("Timestamp", timestamp)
		req.Header.Set("SIGN", sign(c.secret, signBase))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateio: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gateio: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Label   string `json:"label"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Label != "" {
			return fmt.Errorf("gateio: %s (%s, status=%s)", apiErr.Message, apiErr.Label, resp.Status)
		}
		return fmt.Errorf("gateio: unexpected status %s: %s", resp.Status, string(data))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("gateio: decode response: %w", err)
		}
	}
	return nil
}

func sign(secret, payload string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
