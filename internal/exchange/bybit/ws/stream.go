// Package ws streams mark prices from Bybit's public linear ticker topic.
// The stop-loss watch prefers this feed over REST polling when it is fresh.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"fundingarb/internal/logger"
	"fundingarb/internal/models"
)

const defaultURL = "wss://stream.bybit.com/v5/public/linear"

type Stream struct {
	url    string
	symbol string
	log    *logger.Logger

	conn   *websocket.Conn
	prices chan models.MarkPrice
	stopCh chan struct{}

	reconnectMin time.Duration
	reconnectMax time.Duration
}

func New(url, symbol string, log *logger.Logger) *Stream {
	if url == "" {
		url = defaultURL
	}
	return &Stream{
		url:          url,
		symbol:       symbol,
		log:          log,
		prices:       make(chan models.MarkPrice, 100),
		stopCh:       make(chan struct{}),
		reconnectMin: 1 * time.Second,
		reconnectMax: 30 * time.Second,
	}
}

func (s *Stream) Prices() <-chan models.MarkPrice {
	return s.prices
}

func (s *Stream) Connect(ctx context.Context) error {
	s.logEntry().WithField("url", s.url).Info("connecting to mark price stream")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("ws: dial failed: %w", err)
	}
	s.conn = conn
	s.conn.SetReadLimit(2 << 20)

	if err := s.subscribe(); err != nil {
		_ = s.conn.Close()
		return err
	}

	go s.readLoop()
	return nil
}

func (s *Stream) Close() {
	close(s.stopCh)
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

func (s *Stream) subscribe() error {
	topic := "tickers." + strings.ReplaceAll(strings.ToUpper(s.symbol), "/", "")
	msg := map[string]any{
		"op":   "subscribe",
		"args": []string{topic},
	}
	return s.conn.WriteJSON(msg)
}

func (s *Stream) readLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.logEntry().WithError(err).Warn("mark price stream read failed")
			if !s.reconnect() {
				return
			}
			continue
		}

		var msg struct {
			Topic string `json:"topic"`
			Data  struct {
				Symbol    string `json:"symbol"`
				MarkPrice string `json:"markPrice"`
			} `json:"data"`
			Ts int64 `json:"ts"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logEntry().WithError(err).Warn("cannot decode stream message")
			continue
		}
		if !strings.HasPrefix(msg.Topic, "tickers") || msg.Data.MarkPrice == "" {
			continue
		}

		price, err := strconv.ParseFloat(msg.Data.MarkPrice, 64)
		if err != nil {
			continue
		}

		// Ticker deltas may omit markPrice; only forward real updates.
		select {
		case s.prices <- models.MarkPrice{
			Symbol:    s.symbol,
			Price:     price,
			Timestamp: time.UnixMilli(msg.Ts).UTC(),
		}:
		default:
			// Consumer lags; drop rather than block the read loop.
		}
	}
}

func (s *Stream) reconnect() bool {
	backoff := s.reconnectMin

	for {
		select {
		case <-s.stopCh:
			return false
		default:
		}

		time.Sleep(backoff)
		s.logEntry().Info("reconnecting mark price stream")

		conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
		if err != nil {
			s.logEntry().WithError(err).Warn("stream reconnect failed")
			backoff = s.nextBackoff(backoff)
			continue
		}

		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.conn = conn
		s.conn.SetReadLimit(2 << 20)

		if err := s.subscribe(); err != nil {
			s.logEntry().WithError(err).Warn("stream resubscribe failed")
			backoff = s.nextBackoff(backoff)
			continue
		}

		s.logEntry().Info("mark price stream reconnected")
		return true
	}
}

func (s *Stream) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > s.reconnectMax {
		return s.reconnectMax
	}
	return next
}

func (s *Stream) logEntry() *logrus.Entry {
	return s.log.WithComponent("bybit_ws").WithField("symbol", s.symbol)
}
