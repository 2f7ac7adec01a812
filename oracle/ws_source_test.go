package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSSourceCachesLatestReading(t *testing.T) {
	subscribed := make(chan []string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub subscribeMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub.IDs
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`))
		_ = conn.WriteJSON(updateMessage{Type: "price_update", PriceFeed: trading(100, 1, 20)})
		// 高度回退的推送应被丢弃
		_ = conn.WriteJSON(updateMessage{Type: "price_update", PriceFeed: trading(90, 1, 19)})
		// 保持连接直到客户端关闭
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	src := NewWSSource("ws"+strings.TrimPrefix(srv.URL, "http"), []string{"SOL/USD"}, nil)
	src.SetRetry(1, 10*time.Millisecond)
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	select {
	case ids := <-subscribed:
		assert.Equal(t, []string{"SOL/USD"}, ids)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription received")
	}

	require.Eventually(t, func() bool {
		r, err := src.ReadPriceFeed(context.Background(), "SOL/USD")
		return err == nil && r.ValidHeight == 20
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	r, err := src.ReadPriceFeed(context.Background(), "SOL/USD")
	require.NoError(t, err)
	assert.Equal(t, int64(100), r.Price)
}

func TestWSSourceUnavailableBeforeFirstUpdate(t *testing.T) {
	src := NewWSSource("ws://127.0.0.1:0", nil, nil)
	_, err := src.ReadPriceFeed(context.Background(), "SOL/USD")
	assert.ErrorIs(t, err, ErrFeedUnavailable)
	assert.Error(t, NewWSSource("", nil, nil).Start(context.Background()))
}

func TestWSSourceGivesUpAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	fatal := make(chan error, 1)
	src := NewWSSource(url, []string{"SOL/USD"}, nil)
	src.SetRetry(1, time.Millisecond)
	src.SetFatalErrorHandler(func(err error) { fatal <- err })
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	select {
	case err := <-fatal:
		assert.Contains(t, err.Error(), "dial failed after 1 retries")
	case <-time.After(2 * time.Second):
		t.Fatal("fatal handler not called")
	}
}

func TestWSSourceSubscribeFailuresCountAsRetries(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var accepted atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted.Add(1)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	fatal := make(chan error, 1)
	src := NewWSSource("ws"+strings.TrimPrefix(srv.URL, "http"), []string{"SOL/USD"}, nil)
	src.SetRetry(2, time.Millisecond)
	src.SetFatalErrorHandler(func(err error) { fatal <- err })
	// 连接可以建立，但订阅总是写失败
	src.subscribe = func(*websocket.Conn, subscribeMessage) error { return errors.New("broken pipe") }
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	select {
	case err := <-fatal:
		assert.Contains(t, err.Error(), "subscribe failed after 2 retries")
	case <-time.After(2 * time.Second):
		t.Fatal("fatal handler not called")
	}
	require.Eventually(t, func() bool { return accepted.Load() == 3 }, time.Second, 5*time.Millisecond)
}
