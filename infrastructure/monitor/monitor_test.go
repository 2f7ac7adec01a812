package monitor

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMonitorCounters(t *testing.T) {
	m := New(DefaultConfig())

	m.RecordUpdate("ok", 2*time.Millisecond)
	m.RecordUpdate("ok", time.Millisecond)
	m.RecordUpdate("noop", time.Millisecond)
	m.RecordFailure("stale_feed")
	m.RecordOrdersPlaced(2)
	m.RecordOrdersCanceled(1)
	m.RecordSideOutcome("bid", "replace")
	m.RecordOracleReject("SOL/USD", "stale_feed")
	m.SetFeedConnected(true)
	m.UpdateQuote("mkt", 100_000, 99_900, 100_100)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.updates.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.updates.WithLabelValues("noop")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("stale_feed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ordersPlaced))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersCanceled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sideOutcomes.WithLabelValues("bid", "replace")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.oracleRejects.WithLabelValues("SOL/USD", "stale_feed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.feedConnected))
	assert.Equal(t, 99_900.0, testutil.ToFloat64(m.bidPrice.WithLabelValues("mkt")))

	m.SetFeedConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.feedConnected))
}

func TestMonitorHandler(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordOrdersPlaced(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "qe_quoter_orders_placed_total 3"))
}
