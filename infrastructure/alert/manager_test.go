package alert

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quote-engine/infrastructure/logger"
)

// mockChannel 记录收到的告警
type mockChannel struct {
	name string
	err  error

	mu     sync.Mutex
	alerts []Alert
}

func (c *mockChannel) Send(a Alert) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *mockChannel) Name() string { return c.name }

func (c *mockChannel) got() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Alert(nil), c.alerts...)
}

func TestManagerSendSetsTimestamp(t *testing.T) {
	ch := &mockChannel{name: "mock"}
	m := NewManager([]Channel{ch}, time.Minute)

	require.NoError(t, m.Warning("price feed disconnected", map[string]interface{}{"feed": "SOL/USD"}))
	alerts := ch.got()
	require.Len(t, alerts, 1)
	assert.Equal(t, LevelWarning, alerts[0].Level)
	assert.Equal(t, "SOL/USD", alerts[0].Fields["feed"])
	assert.False(t, alerts[0].Timestamp.IsZero())
	assert.Equal(t, []string{"mock"}, m.Channels())
}

func TestManagerThrottle(t *testing.T) {
	ch := &mockChannel{name: "mock"}
	m := NewManager([]Channel{ch}, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Critical("quote updates failing", nil))
	require.NoError(t, m.Critical("quote updates failing", nil))
	// 不同级别不共享限流
	require.NoError(t, m.Info("quote updates failing", nil))
	assert.Len(t, ch.got(), 2)

	now = now.Add(time.Minute)
	require.NoError(t, m.Critical("quote updates failing", nil))
	assert.Len(t, ch.got(), 3)

	m.ResetThrottle()
	require.NoError(t, m.Critical("quote updates failing", nil))
	assert.Len(t, ch.got(), 4)
}

func TestManagerChannelFailures(t *testing.T) {
	bad := &mockChannel{name: "bad", err: errors.New("down")}
	m := NewManager([]Channel{bad}, 0)
	assert.Error(t, m.Info("x", nil))

	good := &mockChannel{name: "good"}
	m.AddChannel(good)
	assert.NoError(t, m.Info("y", nil))
	assert.Len(t, good.got(), 1)
}

func TestUpdateWatch(t *testing.T) {
	ch := &mockChannel{name: "mock"}
	w := NewUpdateWatch(NewManager([]Channel{ch}, 0), 2)
	boom := errors.New("stale feed")

	w.Observe("stale_feed", boom)
	assert.Empty(t, ch.got())
	w.Observe("stale_feed", boom)
	w.Observe("stale_feed", boom)
	alerts := ch.got()
	require.Len(t, alerts, 1)
	assert.Equal(t, LevelCritical, alerts[0].Level)
	assert.Equal(t, 2, alerts[0].Fields["consecutive_failures"])
	assert.Equal(t, 3, w.Failures())

	w.Observe("none", nil)
	alerts = ch.got()
	require.Len(t, alerts, 2)
	assert.Equal(t, LevelInfo, alerts[1].Level)
	assert.Zero(t, w.Failures())

	// 没有告警过的成功不发恢复
	w.Observe("none", nil)
	assert.Len(t, ch.got(), 2)
}

func TestFeedStatusOnlyOnChange(t *testing.T) {
	ch := &mockChannel{name: "mock"}
	f := NewFeedStatus(NewManager([]Channel{ch}, 0))

	f.Set(true, nil)
	assert.Empty(t, ch.got())
	f.Set(false, nil)
	f.Set(false, nil)
	f.Set(true, nil)
	alerts := ch.got()
	require.Len(t, alerts, 2)
	assert.Equal(t, "price feed disconnected", alerts[0].Message)
	assert.Equal(t, "price feed reconnected", alerts[1].Message)
}

func TestWebhookChannel(t *testing.T) {
	var received Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL, time.Second)
	require.NoError(t, ch.Send(Alert{Level: LevelCritical, Message: "quote updates failing", Timestamp: time.Now()}))
	assert.Equal(t, LevelCritical, received.Level)
	assert.Equal(t, "quote updates failing", received.Message)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	assert.Error(t, NewWebhookChannel(failing.URL, time.Second).Send(Alert{Level: LevelInfo}))
}

func TestLogChannel(t *testing.T) {
	ch := NewLogChannel(logger.NewNop())
	assert.Equal(t, "log", ch.Name())
	for _, lvl := range []Level{LevelInfo, LevelWarning, LevelCritical} {
		assert.NoError(t, ch.Send(Alert{Level: lvl, Message: "m", Fields: map[string]interface{}{"k": 1}}))
	}
}
