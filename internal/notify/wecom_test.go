package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingarb/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error"})
}

func TestWeComSenderOK(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	s := NewWeComSender(srv.URL, []string{"ops"})
	err := s.Send(context.Background(), "bybit BTCUSDT: closed", "side=SHORT")
	require.NoError(t, err)

	assert.Equal(t, "markdown", got["msgtype"])
	md := got["markdown"].(map[string]any)
	assert.Contains(t, md["content"], "bybit BTCUSDT: closed")
	assert.Equal(t, []any{"ops"}, md["mentioned_list"])
}

func TestWeComSenderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errcode":93000,"errmsg":"invalid webhook url"}`))
	}))
	defer srv.Close()

	s := NewWeComSender(srv.URL, nil)
	err := s.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "93000")
}

func TestNotifierSwallowsSenderFailure(t *testing.T) {
	// a dead webhook must not panic or block the caller
	s := NewWeComSender("http://127.0.0.1:0", nil)
	n := New(testLogger(), s)
	n.Notify("title", "message")
}
