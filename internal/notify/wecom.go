package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WeComSender posts markdown messages to a WeCom group-robot webhook.
type WeComSender struct {
	webhookURL string
	mentions   []string
	client     *http.Client
}

func NewWeComSender(webhookURL string, mentions []string) *WeComSender {
	return &WeComSender{
		webhookURL: webhookURL,
		mentions:   mentions,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WeComSender) Send(ctx context.Context, title, message string) error {
	payload := map[string]any{
		"msgtype": "markdown",
		"markdown": map[string]any{
			"content": fmt.Sprintf("**%s**\n%s", title, message),
		},
	}
	if len(w.mentions) > 0 {
		payload["markdown"].(map[string]any)["mentioned_list"] = w.mentions
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("wecom: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("wecom: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("wecom: send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return fmt.Errorf("wecom: read response: %w", err)
	}

	var result struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("wecom: decode response: %w", err)
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("wecom: delivery rejected: %s (errcode=%d)", result.ErrMsg, result.ErrCode)
	}
	return nil
}

func (w *WeComSender) Name() string {
	return "wecom"
}
