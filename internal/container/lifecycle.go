package container

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"quote-engine/config"
	"quote-engine/infrastructure/logger"
	reload "quote-engine/internal/config"
	"quote-engine/internal/engine"
	"quote-engine/market"
	"quote-engine/oracle"
	"quote-engine/sim"
)

// Lifecycle 生命周期接口
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
	Health() error
}

// LifecycleManager 生命周期管理器
type LifecycleManager struct {
	components []Lifecycle
	mu         sync.RWMutex
}

// NewLifecycleManager 创建新的生命周期管理器
func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{
		components: make([]Lifecycle, 0),
	}
}

// Register 注册组件
func (m *LifecycleManager) Register(component Lifecycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component)
}

// StartAll 按顺序启动所有组件
func (m *LifecycleManager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, component := range m.components {
		if err := component.Start(ctx); err != nil {
			// 启动失败，回滚已启动的组件
			for j := i - 1; j >= 0; j-- {
				_ = m.components[j].Stop()
			}
			return fmt.Errorf("start component %d failed: %w", i, err)
		}
	}
	return nil
}

// StopAll 逆序停止所有组件
func (m *LifecycleManager) StopAll() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var lastErr error
	// 逆序停止
	for i := len(m.components) - 1; i >= 0; i-- {
		if err := m.components[i].Stop(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// CheckHealth 检查所有组件健康状态
func (m *LifecycleManager) CheckHealth() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, component := range m.components {
		if err := component.Health(); err != nil {
			return fmt.Errorf("component %d unhealthy: %w", i, err)
		}
	}
	return nil
}

// httpServerComponent HTTP服务器组件
type httpServerComponent struct {
	name    string
	handler http.Handler
	addr    string
	logger  *logger.Logger
	server  **http.Server
	started bool
	mu      sync.Mutex
}

func (h *httpServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return nil
	}

	srv := &http.Server{
		Addr:    h.addr,
		Handler: h.handler,
	}
	*h.server = srv

	// 在后台启动服务器
	go func() {
		h.logger.Info("http server listening", zap.String("name", h.name), zap.String("addr", h.addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.LogError(err, map[string]interface{}{
				"component": h.name,
				"action":    "listen",
			})
		}
	}()

	h.started = true
	return nil
}

func (h *httpServerComponent) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started || *h.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := (*h.server).Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", h.name, err)
	}

	h.logger.Info("http server stopped", zap.String("name", h.name))
	h.started = false
	return nil
}

func (h *httpServerComponent) Health() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return fmt.Errorf("%s not started", h.name)
	}
	return nil
}

// feedComponent 价格推送流
type feedComponent struct {
	source *oracle.WSSource
}

func (f *feedComponent) Start(ctx context.Context) error { return f.source.Start(ctx) }

func (f *feedComponent) Stop() error {
	f.source.Stop()
	return nil
}

// Health 断线期间缓存读数仍可用，是否过期由校验器判断。
func (f *feedComponent) Health() error { return nil }

// takerComponent 模拟盘吃单流：按间隔轮流买卖，让报价被部分成交后触发重挂。
type takerComponent struct {
	venue    *sim.Venue
	market   market.Address
	size     uint64
	interval time.Duration
	logger   *logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// takerAddress 模拟吃单方身份。
var takerAddress = market.Address{0xee}

func (t *takerComponent) Start(ctx context.Context) error {
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		side := market.Bid
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				filled, err := t.venue.Sweep(t.market, takerAddress, side, t.size)
				if err != nil {
					t.logger.Warn("taker sweep failed", zap.Error(err))
				} else if filled > 0 {
					t.logger.Debug("taker sweep", zap.String("side", side.String()), zap.Uint64("filled_lots", filled))
				}
				side = side.Opposite()
			}
		}
	}()
	return nil
}

func (t *takerComponent) Stop() error {
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
	return nil
}

func (t *takerComponent) Health() error { return nil }

// reloaderComponent fsnotify 热更新
type reloaderComponent struct {
	reloader *reload.HotReloader
}

func (r *reloaderComponent) Start(ctx context.Context) error { return r.reloader.Start(ctx) }
func (r *reloaderComponent) Stop() error                     { return r.reloader.Stop() }
func (r *reloaderComponent) Health() error                   { return nil }

// pollComponent 轮询式热更新
type pollComponent struct {
	watcher config.Watcher
	apply   func(config.StrategyConfig)

	cancel context.CancelFunc
	done   chan struct{}
}

func (p *pollComponent) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		_ = p.watcher.Start(ctx, p.apply)
	}()
	return nil
}

func (p *pollComponent) Stop() error {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
	return nil
}

func (p *pollComponent) Health() error { return nil }

// runnerComponent 初始化状态后启动报价循环；停止时撤单。
type runnerComponent struct {
	container *Container
}

func (r *runnerComponent) Start(ctx context.Context) error {
	if err := r.container.ensureState(ctx); err != nil {
		return fmt.Errorf("initialize strategy state: %w", err)
	}
	return r.container.runner.Start(ctx)
}

func (r *runnerComponent) Stop() error {
	return r.container.runner.Stop()
}

func (r *runnerComponent) Health() error {
	switch s := r.container.runner.GetState(); s {
	case engine.StateRunning, engine.StatePaused:
		return nil
	default:
		return fmt.Errorf("quote runner %s", s)
	}
}
