package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	appconfig "quote-engine/config"
	"quote-engine/infrastructure/logger"
	"quote-engine/order"
)

// HotReloadConfig 热更新配置
type HotReloadConfig struct {
	Enabled      bool          // 是否启用热更新
	CooldownTime time.Duration // 冷却时间，避免编辑器连续写入触发多次
}

// DefaultHotReloadConfig 默认热更新配置
func DefaultHotReloadConfig() HotReloadConfig {
	return HotReloadConfig{
		Enabled:      true,
		CooldownTime: time.Second,
	}
}

// ParameterApplier 接收热更新后的报价参数，engine.Runner 实现了它。
type ParameterApplier interface {
	SetParams(p order.Params)
	SetFairPrice(fairPriceInTicks uint64)
	SetMargin(margin uint64)
}

// HotReloader 监听配置文件，变化后重新读取 strategy 段。
// 监听的是所在目录，编辑器先写临时文件再 rename 的方式也能收到事件。
type HotReloader struct {
	config     HotReloadConfig
	configPath string
	watcher    *fsnotify.Watcher
	logger     *logger.Logger
	lastReload time.Time
	reloads    int
	mu         sync.RWMutex
	stopChan   chan struct{}
	doneChan   chan struct{}
	started    bool
	handler    func(appconfig.StrategyConfig) error
}

// NewHotReloader 创建热更新器
func NewHotReloader(configPath string, cfg HotReloadConfig, l *logger.Logger) (*HotReloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &HotReloader{
		config:     cfg,
		configPath: filepath.Clean(configPath),
		watcher:    watcher,
		logger:     l,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}, nil
}

// SetReloadHandler 设置重载处理函数
func (h *HotReloader) SetReloadHandler(handler func(appconfig.StrategyConfig) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

// Start 启动热更新监听
func (h *HotReloader) Start(ctx context.Context) error {
	if !h.config.Enabled {
		return nil
	}
	if err := h.watcher.Add(filepath.Dir(h.configPath)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}
	h.mu.Lock()
	h.started = true
	h.mu.Unlock()

	go h.watch(ctx)
	return nil
}

// Stop 停止热更新
func (h *HotReloader) Stop() error {
	h.mu.RLock()
	started := h.started
	h.mu.RUnlock()

	select {
	case <-h.stopChan:
	default:
		close(h.stopChan)
	}
	if started {
		select {
		case <-h.doneChan:
		case <-time.After(time.Second):
			h.logger.Warn("hot reload watcher did not stop in time")
		}
	}
	return h.watcher.Close()
}

// watch 监听文件变化
func (h *HotReloader) watch(ctx context.Context) {
	defer close(h.doneChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopChan:
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != h.configPath {
				continue
			}
			// 只处理写入和创建（rename 覆盖表现为 Create）
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				h.handleConfigChange()
			}
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// handleConfigChange 冷却期内的事件直接丢弃
func (h *HotReloader) handleConfigChange() {
	h.mu.RLock()
	last := h.lastReload
	h.mu.RUnlock()
	if time.Since(last) < h.config.CooldownTime {
		return
	}
	if err := h.Reload(); err != nil {
		h.logger.Warn("config reload rejected", zap.String("path", h.configPath), zap.Error(err))
	}
}

// Reload 立即读取 strategy 段并交给处理函数；读取或校验失败时不调用处理函数。
func (h *HotReloader) Reload() error {
	sc, err := appconfig.LoadStrategy(h.configPath)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.handler != nil {
		if err := h.handler(sc); err != nil {
			return fmt.Errorf("apply strategy: %w", err)
		}
	}
	h.lastReload = time.Now()
	h.reloads++
	h.logger.Info("strategy config reloaded",
		zap.Uint64("edge_bps", sc.QuoteEdgeInBps),
		zap.Uint64("quote_size_atoms", sc.QuoteSizeInQuoteAtoms),
		zap.String("behavior", sc.Behavior.String()),
		zap.Bool("post_only", sc.PostOnly))
	return nil
}

// GetLastReloadTime 获取最后重载时间
func (h *HotReloader) GetLastReloadTime() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastReload
}

// Reloads 成功重载次数
func (h *HotReloader) Reloads() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.reloads
}

// ParamsFromStrategy strategy 段转成稀疏参数更新；四个持久化参数全部带上。
func ParamsFromStrategy(sc appconfig.StrategyConfig) order.Params {
	edge := sc.QuoteEdgeInBps
	size := sc.QuoteSizeInQuoteAtoms
	behavior := sc.Behavior
	postOnly := sc.PostOnly
	return order.Params{
		QuoteEdgeInBps:        &edge,
		QuoteSizeInQuoteAtoms: &size,
		Behavior:              &behavior,
		PostOnly:              &postOnly,
	}
}

// ApplyTo 返回把 strategy 段推给 applier 的处理函数。公允价为 0 时保持原值。
func ApplyTo(a ParameterApplier) func(appconfig.StrategyConfig) error {
	return func(sc appconfig.StrategyConfig) error {
		a.SetParams(ParamsFromStrategy(sc))
		a.SetMargin(sc.Margin)
		if sc.FairPriceInTicks > 0 {
			a.SetFairPrice(sc.FairPriceInTicks)
		}
		return nil
	}
}
