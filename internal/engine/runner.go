package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"quote-engine/infrastructure/logger"
	"quote-engine/order"
)

// RunnerState 运行器状态
type RunnerState int

const (
	// StateIdle 空闲状态
	StateIdle RunnerState = iota
	// StateRunning 运行状态
	StateRunning
	// StatePaused 暂停状态
	StatePaused
	// StateStopped 停止状态
	StateStopped
)

// String 返回状态名称
func (s RunnerState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// RunnerConfig 运行器配置
type RunnerConfig struct {
	Interval   time.Duration // 两次更新的间隔
	MaxUpdates int           // 达到次数后自动退出循环，0 表示不限
	Request    UpdateRequest // 每轮使用的请求模板
}

// Statistics 运行统计
type Statistics struct {
	StartTime      time.Time
	TotalUpdates   int64
	NoOps          int64
	TotalErrors    int64
	OrdersPlaced   int64
	OrdersCanceled int64
	LastUpdateTime time.Time
	LastError      string
}

// Runner 按固定间隔反复调用 UpdateQuotes，停止时撤掉全部挂单。
type Runner struct {
	config RunnerConfig
	quoter *Quoter
	logger *logger.Logger

	state   RunnerState
	pending order.Params
	gen     uint64
	fair    uint64
	margin  uint64
	mu      sync.RWMutex

	stopChan chan struct{}
	doneChan chan struct{}

	onTick   func()
	onResult func(Result, error)

	stats   Statistics
	statsMu sync.RWMutex
}

func NewRunner(cfg RunnerConfig, q *Quoter, l *logger.Logger) (*Runner, error) {
	if q == nil {
		return nil, errors.New("quoter is required")
	}
	if cfg.MaxUpdates < 0 {
		return nil, errors.New("max_updates must be >= 0")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Runner{
		config:   cfg,
		quoter:   q,
		logger:   l,
		state:    StateIdle,
		pending:  cfg.Request.Params,
		fair:     cfg.Request.FairPriceInTicks,
		margin:   cfg.Request.Margin,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// SetTickHook 每轮更新结束后回调（例如 watchdog 心跳）。
func (r *Runner) SetTickHook(fn func()) { r.onTick = fn }

// SetResultHook 每次调用 UpdateQuotes 之后回调（暂停期间不调用）。
func (r *Runner) SetResultHook(fn func(Result, error)) { r.onResult = fn }

// SetParams 合并一次稀疏参数更新，在下一轮更新时生效。
func (r *Runner) SetParams(p order.Params) {
	r.mu.Lock()
	r.pending = r.pending.Merge(p)
	r.gen++
	r.mu.Unlock()
}

// SetFairPrice 直接模式下替换公允价。
func (r *Runner) SetFairPrice(fairPriceInTicks uint64) {
	r.mu.Lock()
	r.fair = fairPriceInTicks
	r.mu.Unlock()
}

// SetMargin 替换 Ubermensch 让价（tick）。
func (r *Runner) SetMargin(margin uint64) {
	r.mu.Lock()
	r.margin = margin
	r.mu.Unlock()
}

// Start 启动运行器
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateIdle && r.state != StateStopped {
		r.mu.Unlock()
		return fmt.Errorf("runner already started (state: %s)", r.state)
	}
	if r.state == StateStopped {
		r.stopChan = make(chan struct{})
		r.doneChan = make(chan struct{})
	}
	r.state = StateRunning
	r.mu.Unlock()

	r.statsMu.Lock()
	r.stats.StartTime = time.Now()
	r.statsMu.Unlock()

	r.logger.Info("Quote runner starting",
		zap.String("trader", r.config.Request.Trader.String()),
		zap.String("market", r.config.Request.Market.String()),
		zap.Duration("interval", r.config.Interval),
		zap.Int("max_updates", r.config.MaxUpdates),
		zap.Bool("use_oracle", r.config.Request.UseOracle))

	go r.run(ctx)
	return nil
}

// Stop 停止循环并撤掉全部挂单。
func (r *Runner) Stop() error {
	r.mu.Lock()
	if r.state != StateRunning && r.state != StatePaused {
		state := r.state
		r.mu.Unlock()
		if state == StateStopped {
			return nil
		}
		return fmt.Errorf("runner not running (state: %s)", state)
	}
	r.mu.Unlock()

	r.logger.Info("Quote runner stopping...")
	select {
	case <-r.stopChan:
	default:
		close(r.stopChan)
	}
	select {
	case <-r.doneChan:
	case <-time.After(10 * time.Second):
		r.logger.Warn("Timeout waiting for runner to stop")
	}

	// 退出前撤单不受调用方 ctx 影响
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := r.quoter.CancelAll(ctx, r.config.Request.Trader, r.config.Request.Market)
	if err != nil {
		r.logger.Error("Failed to cancel all orders", zap.Error(err))
	} else {
		r.statsMu.Lock()
		r.stats.OrdersCanceled += int64(n)
		r.statsMu.Unlock()
	}

	r.mu.Lock()
	r.state = StateStopped
	r.mu.Unlock()
	r.logger.Info("Quote runner stopped")
	return err
}

// Pause 暂停更新，挂单保持不动
func (r *Runner) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning {
		return fmt.Errorf("runner not running (state: %s)", r.state)
	}
	r.state = StatePaused
	r.logger.Info("Quote runner paused")
	return nil
}

// Resume 恢复更新
func (r *Runner) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePaused {
		return fmt.Errorf("runner not paused (state: %s)", r.state)
	}
	r.state = StateRunning
	r.logger.Info("Quote runner resumed")
	return nil
}

// Done 循环退出（达到次数上限、ctx 结束或 Stop）后关闭。
func (r *Runner) Done() <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.doneChan
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.doneChan)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	if r.onTickAndDone(ctx) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Context done, stopping runner")
			return
		case <-r.stopChan:
			r.logger.Info("Stop signal received")
			return
		case <-ticker.C:
			if r.onTickAndDone(ctx) {
				return
			}
		}
	}
}

// onTickAndDone 执行一轮，返回是否已达到次数上限。
func (r *Runner) onTickAndDone(ctx context.Context) bool {
	r.tick(ctx)
	if r.onTick != nil {
		r.onTick()
	}
	if r.config.MaxUpdates == 0 {
		return false
	}
	r.statsMu.RLock()
	done := r.stats.TotalUpdates >= int64(r.config.MaxUpdates)
	r.statsMu.RUnlock()
	if done {
		r.logger.Info("Max updates reached", zap.Int("max_updates", r.config.MaxUpdates))
	}
	return done
}

func (r *Runner) tick(ctx context.Context) {
	r.mu.RLock()
	state := r.state
	req := r.config.Request
	req.Params = r.pending
	req.FairPriceInTicks = r.fair
	req.Margin = r.margin
	gen := r.gen
	r.mu.RUnlock()

	if state == StatePaused {
		return
	}

	res, err := r.quoter.UpdateQuotes(ctx, req)

	r.statsMu.Lock()
	r.stats.TotalUpdates++
	r.stats.LastUpdateTime = time.Now()
	if err != nil {
		r.stats.TotalErrors++
		r.stats.LastError = err.Error()
	} else {
		if res.NoOp {
			r.stats.NoOps++
		}
		r.stats.OrdersPlaced += int64(len(res.Placed))
		r.stats.OrdersCanceled += int64(len(res.Plan.Cancels))
	}
	r.statsMu.Unlock()

	if r.onResult != nil {
		r.onResult(res, err)
	}
	if err != nil {
		r.logger.Warn("Quote update failed", zap.String("kind", ErrorKind(err)), zap.Error(err))
		return
	}
	// 成功后清掉已生效的参数；失败或期间有新参数时保留到下一轮
	r.mu.Lock()
	if r.gen == gen {
		r.pending = order.Params{}
	}
	r.mu.Unlock()
}

// GetState 获取运行器状态
func (r *Runner) GetState() RunnerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// GetStatistics 获取统计信息
func (r *Runner) GetStatistics() Statistics {
	r.statsMu.RLock()
	defer r.statsMu.RUnlock()
	return r.stats
}
