package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor 报价引擎的 Prometheus 指标，独立 registry。
type Monitor struct {
	registry *prometheus.Registry

	// 更新调用
	updates       *prometheus.CounterVec
	failures      *prometheus.CounterVec
	updateLatency prometheus.Histogram

	// 订单
	ordersPlaced   prometheus.Counter
	ordersCanceled prometheus.Counter
	sideOutcomes   *prometheus.CounterVec

	// 报价
	fairPrice *prometheus.GaugeVec
	bidPrice  *prometheus.GaugeVec
	askPrice  *prometheus.GaugeVec

	// 预言机
	oracleRejects *prometheus.CounterVec
	feedConnected prometheus.Gauge
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "qe",
		Subsystem: "quoter",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Monitor{
		registry: reg,

		updates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "updates_total",
			Help:      "报价更新次数，按结果（ok/noop/error）",
		}, []string{"result"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "update_failures_total",
			Help:      "报价更新失败次数，按错误类型",
		}, []string{"kind"}),
		updateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "update_latency_seconds",
			Help:      "单次报价更新耗时（秒）",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),

		ordersPlaced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_placed_total",
			Help:      "实际挂上盘口的订单数",
		}),
		ordersCanceled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_canceled_total",
			Help:      "提交撤单的订单数",
		}),
		sideOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "side_outcomes_total",
			Help:      "单侧对账结果计数",
		}, []string{"side", "outcome"}),

		fairPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "fair_price_ticks",
			Help:      "最近一次公允价（tick）",
		}, []string{"market"}),
		bidPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "bid_price_ticks",
			Help:      "最近一次期望买价（tick）",
		}, []string{"market"}),
		askPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ask_price_ticks",
			Help:      "最近一次期望卖价（tick）",
		}, []string{"market"}),

		oracleRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "oracle_rejects_total",
			Help:      "预言机读数被拒绝次数",
		}, []string{"feed", "reason"}),
		feedConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "feed_connected",
			Help:      "价格推送连接状态（1=已连接）",
		}),
	}
}

// 更新相关方法
func (m *Monitor) RecordUpdate(result string, elapsed time.Duration) {
	m.updates.WithLabelValues(result).Inc()
	m.updateLatency.Observe(elapsed.Seconds())
}

func (m *Monitor) RecordFailure(kind string) {
	m.failures.WithLabelValues(kind).Inc()
}

// 订单相关方法
func (m *Monitor) RecordOrdersPlaced(n int) {
	m.ordersPlaced.Add(float64(n))
}

func (m *Monitor) RecordOrdersCanceled(n int) {
	m.ordersCanceled.Add(float64(n))
}

func (m *Monitor) RecordSideOutcome(side, outcome string) {
	m.sideOutcomes.WithLabelValues(side, outcome).Inc()
}

// 报价相关方法
func (m *Monitor) UpdateQuote(market string, fair, bid, ask uint64) {
	m.fairPrice.WithLabelValues(market).Set(float64(fair))
	m.bidPrice.WithLabelValues(market).Set(float64(bid))
	m.askPrice.WithLabelValues(market).Set(float64(ask))
}

// 预言机相关方法
func (m *Monitor) RecordOracleReject(feed, reason string) {
	m.oracleRejects.WithLabelValues(feed, reason).Inc()
}

func (m *Monitor) SetFeedConnected(connected bool) {
	if connected {
		m.feedConnected.Set(1)
		return
	}
	m.feedConnected.Set(0)
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
