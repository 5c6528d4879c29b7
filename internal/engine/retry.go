package engine

import (
	"context"
	"strings"
	"time"

	"fundingarb/internal/logger"
)

const (
	retryAttempts    = 3
	retryBaseBackoff = 500 * time.Millisecond
)

// withRetry runs a read-only call up to retryAttempts times with linear
// backoff, doubling the wait on rate-limit responses. Order placement is
// never routed through here; idempotency for writes is handled via client
// order link IDs instead.
func withRetry[T any](ctx context.Context, log *logger.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		backoff := retryBaseBackoff * time.Duration(attempt)
		if isRateLimitError(err) {
			backoff *= 2
		}
		log.WithComponent("retry").Warnf("%s failed (attempt %d/%d): %v", op, attempt, retryAttempts, err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "too many visits") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "10006")
}

func isOrderNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "order not exist") ||
		strings.Contains(msg, "order does not exist") ||
		strings.Contains(msg, "order not found") ||
		strings.Contains(msg, "unknown order") ||
		strings.Contains(msg, "110001") || // bybit
		strings.Contains(msg, "-2013") || // binance
		strings.Contains(msg, "order_not_found") // gate
}

func isDuplicateClientOrderID(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "110072") || // bybit orderLinkId duplicated
		strings.Contains(msg, "-4116") // binance dup client order id
}
