package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSSource 订阅价格推送并按 feed id 缓存最新读数，断线自动重连。
// 缓存里的读数仍是原始读数，由调用方校验新鲜度等。
type WSSource struct {
	URL     string
	FeedIDs []string

	logger       *zap.Logger
	mu           sync.RWMutex
	latest       map[string]Reading
	conn         *websocket.Conn
	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
	maxRetries   int
	retryBackoff time.Duration
	readTimeout  time.Duration
	onFatalError func(error)
	eventSink    func(string, map[string]interface{})
	subscribe    func(*websocket.Conn, subscribeMessage) error
}

// subscribeMessage 连接建立后发送的订阅请求。
type subscribeMessage struct {
	Type string   `json:"type"`
	IDs  []string `json:"ids"`
}

// updateMessage 服务端推送，type=price_update。
type updateMessage struct {
	Type      string  `json:"type"`
	PriceFeed Reading `json:"price_feed"`
}

func NewWSSource(url string, feedIDs []string, logger *zap.Logger) *WSSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSSource{
		URL:          url,
		FeedIDs:      feedIDs,
		logger:       logger,
		latest:       make(map[string]Reading),
		maxRetries:   5,
		retryBackoff: 3 * time.Second,
		readTimeout:  30 * time.Second,
		subscribe: func(c *websocket.Conn, m subscribeMessage) error {
			return c.WriteJSON(m)
		},
	}
}

// SetRetry 调整重连次数和退避基数。
func (s *WSSource) SetRetry(maxRetries int, backoff time.Duration) {
	s.maxRetries = maxRetries
	s.retryBackoff = backoff
}

// SetFatalErrorHandler 重连耗尽后回调。
func (s *WSSource) SetFatalErrorHandler(fn func(error)) { s.onFatalError = fn }

// SetEventSink 连接状态事件回调。
func (s *WSSource) SetEventSink(fn func(string, map[string]interface{})) { s.eventSink = fn }

// Start 后台连接并开始接收推送。
func (s *WSSource) Start(ctx context.Context) error {
	if s.URL == "" {
		return fmt.Errorf("%w: empty websocket url", ErrFeedUnavailable)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run()
	return nil
}

// Stop 关闭连接并等待后台协程退出。
func (s *WSSource) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()
	if s.done != nil {
		<-s.done
	}
}

// ReadPriceFeed 返回缓存的最新读数，还没收到过则 ErrFeedUnavailable。
func (s *WSSource) ReadPriceFeed(_ context.Context, feedID string) (Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.latest[feedID]
	if !ok {
		return Reading{}, fmt.Errorf("%w: no reading received for %s", ErrFeedUnavailable, feedID)
	}
	return r, nil
}

// Apply 写入一条读数；有效高度回退的推送丢弃。
func (s *WSSource) Apply(r Reading) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.latest[r.FeedID]; ok && prev.ValidHeight > r.ValidHeight {
		return false
	}
	s.latest[r.FeedID] = r
	return true
}

func (s *WSSource) run() {
	defer close(s.done)
	retries := 0
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		conn, _, err := websocket.DefaultDialer.DialContext(s.ctx, s.URL, nil)
		if err != nil {
			if s.ctx.Err() != nil || !s.backoff("dial", &retries, err) {
				return
			}
			continue
		}
		if err := s.subscribe(conn, subscribeMessage{Type: "subscribe", IDs: s.FeedIDs}); err != nil {
			_ = conn.Close()
			if s.ctx.Err() != nil || !s.backoff("subscribe", &retries, err) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		retries = 0
		s.logger.Info("price feed stream connected", zap.String("url", s.URL), zap.Strings("feeds", s.FeedIDs))
		s.emit("feed_connected", map[string]interface{}{"url": s.URL})

		s.readLoop(conn)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		s.emit("feed_disconnected", map[string]interface{}{})
		if s.ctx.Err() != nil {
			return
		}
		s.logger.Warn("price feed stream disconnected, reconnecting")
		if !s.sleep(s.retryBackoff) {
			return
		}
	}
}

// backoff 连接或订阅失败后退避重试；次数耗尽时调用 fatal handler 并返回 false。
func (s *WSSource) backoff(stage string, retries *int, err error) bool {
	if *retries >= s.maxRetries {
		fatalErr := fmt.Errorf("price feed websocket %s failed after %d retries: %w", stage, s.maxRetries, err)
		s.logger.Error("price feed stream gave up", zap.Error(fatalErr))
		if s.onFatalError != nil {
			s.onFatalError(fatalErr)
		}
		return false
	}
	*retries++
	wait := time.Duration(*retries) * s.retryBackoff
	s.logger.Warn("price feed "+stage+" failed",
		zap.Int("retry", *retries), zap.Int("max_retries", s.maxRetries),
		zap.Duration("backoff", wait), zap.Error(err))
	return s.sleep(wait)
}

func (s *WSSource) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	})
	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Warn("price feed read failed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		if kind != websocket.TextMessage {
			continue
		}
		var upd updateMessage
		if err := json.Unmarshal(msg, &upd); err != nil {
			s.logger.Debug("price feed message ignored", zap.Error(err))
			continue
		}
		if upd.Type != "price_update" || upd.PriceFeed.FeedID == "" {
			continue
		}
		s.Apply(upd.PriceFeed)
	}
}

func (s *WSSource) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *WSSource) emit(event string, fields map[string]interface{}) {
	if s.eventSink != nil {
		s.eventSink(event, fields)
	}
}
