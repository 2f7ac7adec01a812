package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"quote-engine/config"
	"quote-engine/infrastructure/alert"
	"quote-engine/infrastructure/logger"
	"quote-engine/infrastructure/monitor"
	reload "quote-engine/internal/config"
	"quote-engine/internal/engine"
	"quote-engine/internal/store"
	"quote-engine/market"
	"quote-engine/oracle"
	"quote-engine/order"
	"quote-engine/sim"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	cfg        *config.AppConfig
	configPath string

	trader market.Address
	market market.Address
	owner  market.Address

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager
	feedUp  *alert.FeedStatus

	// 状态与行情
	store    store.Store
	venue    *sim.Venue
	clock    engine.Clock
	feeds    oracle.Reader
	wsSource *oracle.WSSource

	// 核心服务
	quoter *engine.Quoter
	runner *engine.Runner

	// HTTP服务器
	metricsServer *http.Server

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 创建新的Container实例
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(configPath, cfg)
}

// NewWithConfig 使用已加载的配置；configPath 仅用于热更新。
func NewWithConfig(configPath string, cfg config.AppConfig) (*Container, error) {
	c := &Container{
		cfg:        &cfg,
		configPath: configPath,
		lifecycle:  NewLifecycleManager(),
	}
	var err error
	if c.trader, err = market.ParseAddress(cfg.Account.Trader); err != nil {
		return nil, err
	}
	if c.market, err = market.ParseAddress(cfg.Account.Market); err != nil {
		return nil, err
	}
	if c.owner, err = market.ParseAddress(cfg.Account.ProgramOwner); err != nil {
		return nil, err
	}
	return c, nil
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	if err := c.buildVenue(); err != nil {
		return fmt.Errorf("build venue failed: %w", err)
	}
	if err := c.buildCoreServices(); err != nil {
		return fmt.Errorf("build core services failed: %w", err)
	}
	if err := c.registerLifecycleComponents(); err != nil {
		return fmt.Errorf("register components failed: %w", err)
	}
	c.logger.Info("container built successfully",
		zap.String("env", c.cfg.Env),
		zap.String("store", c.cfg.Store.Driver),
		zap.Bool("use_oracle", c.cfg.Strategy.UseOracle))
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Logger)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}
	c.monitor = monitor.New(monitor.DefaultConfig())
	if ac := c.cfg.Alert; ac.Enabled {
		channels := []alert.Channel{alert.NewLogChannel(c.logger)}
		if ac.WebhookURL != "" {
			channels = append(channels, alert.NewWebhookChannel(ac.WebhookURL, ac.WebhookTimeout))
		}
		c.alerts = alert.NewManager(channels, ac.Throttle)
		c.feedUp = alert.NewFeedStatus(c.alerts)
	}

	sink := func(event string, fields map[string]interface{}) {
		c.logger.Debug(event, zap.Any("fields", fields))
	}
	switch c.cfg.Store.Driver {
	case "sqlite":
		c.store, err = store.NewSQLite(c.cfg.Store.Path, sink)
		if err != nil {
			return fmt.Errorf("open store failed: %w", err)
		}
	default:
		c.store = store.NewMemory(sink)
	}

	c.logger.Info("infrastructure built")
	return nil
}

// buildVenue 模拟盘：市场常量 + 其他交易员的挂单 + 价格源。
func (c *Container) buildVenue() error {
	vc := c.cfg.Venue
	c.venue = sim.NewVenue(c.owner)
	c.venue.AddMarket(c.market, vc.Facts())
	for _, l := range vc.Levels {
		side, err := market.ParseSide(l.Side)
		if err != nil {
			return err
		}
		trader, err := market.ParseAddress(l.Trader)
		if err != nil {
			return err
		}
		if _, err := c.venue.Seed(c.market, trader, side, l.PriceInTicks, l.SizeInBaseLots); err != nil {
			return err
		}
	}
	clock := sim.NewSlotClock(vc.SlotDuration)
	c.clock = clock

	oc := c.cfg.Oracle
	switch {
	case oc.WSURL != "":
		c.wsSource = oracle.NewWSSource(oc.WSURL, []string{oc.BaseFeedID, oc.QuoteFeedID}, c.logger.Logger)
		c.wsSource.SetRetry(oc.MaxRetries, oc.RetryBackoff)
		c.wsSource.SetEventSink(func(event string, _ map[string]interface{}) {
			c.setFeedConnected(event == "feed_connected")
		})
		c.wsSource.SetFatalErrorHandler(func(err error) {
			c.setFeedConnected(false)
			c.logger.LogError(err, map[string]interface{}{"component": "price_feed"})
		})
		c.feeds = c.wsSource
	case oc.AccountDir != "":
		c.feeds = oracle.AccountSource{Fetch: oracle.DirFetcher(oc.AccountDir)}
	case len(oc.Static) > 0:
		readings := make([]oracle.Reading, 0, len(oc.Static))
		for _, r := range oc.Static {
			readings = append(readings, oracle.Reading{
				FeedID:     r.FeedID,
				Price:      r.Price,
				Confidence: r.Confidence,
				Exponent:   r.Exponent,
				Status:     oracle.StatusTrading,
			})
		}
		c.feeds = sim.StampedFeeds{Source: oracle.NewStaticSource(readings...), Clock: clock}
	}

	c.logger.Info("venue built",
		zap.String("market", c.market.String()),
		zap.Int("seeded_levels", len(vc.Levels)))
	return nil
}

func (c *Container) buildCoreServices() error {
	var err error
	c.quoter, err = engine.NewQuoter(engine.Config{
		ProgramOwner: c.owner,
		MaxStaleness: c.cfg.Oracle.MaxStaleness,
	}, engine.Components{
		Venue:   c.venue,
		Feeds:   c.feeds,
		Store:   c.store,
		Clock:   c.clock,
		Logger:  c.logger,
		Monitor: c.monitor,
	})
	if err != nil {
		return err
	}

	sc := c.cfg.Strategy
	c.runner, err = engine.NewRunner(engine.RunnerConfig{
		Interval:   sc.Interval,
		MaxUpdates: sc.MaxUpdates,
		Request: engine.UpdateRequest{
			Trader:           c.trader,
			Market:           c.market,
			FairPriceInTicks: sc.FairPriceInTicks,
			UseOracle:        sc.UseOracle,
			BaseFeedID:       c.cfg.Oracle.BaseFeedID,
			QuoteFeedID:      c.cfg.Oracle.QuoteFeedID,
			Margin:           sc.Margin,
		},
	}, c.quoter, c.logger)
	if err != nil {
		return err
	}
	if c.alerts != nil {
		watch := alert.NewUpdateWatch(c.alerts, c.cfg.Alert.FailureThreshold)
		c.runner.SetResultHook(func(_ engine.Result, err error) {
			watch.Observe(engine.ErrorKind(err), err)
		})
	}

	c.logger.Info("core services built")
	return nil
}

func (c *Container) registerLifecycleComponents() error {
	if c.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", c.monitor.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			if err := c.HealthCheck(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte("ok"))
		})
		c.lifecycle.Register(&httpServerComponent{
			name:    "metrics_server",
			handler: mux,
			addr:    c.cfg.Metrics.Listen,
			logger:  c.logger,
			server:  &c.metricsServer,
		})
	}
	if c.wsSource != nil {
		c.lifecycle.Register(&feedComponent{source: c.wsSource})
	}
	if c.cfg.Venue.TakerInterval > 0 {
		c.lifecycle.Register(&takerComponent{
			venue:    c.venue,
			market:   c.market,
			size:     c.cfg.Venue.TakerSizeInBaseLots,
			interval: c.cfg.Venue.TakerInterval,
			logger:   c.logger,
		})
	}
	if c.cfg.HotReload.Enabled && c.configPath != "" {
		comp, err := c.reloadComponent()
		if err != nil {
			return err
		}
		c.lifecycle.Register(comp)
	}
	c.lifecycle.Register(&runnerComponent{container: c})
	return nil
}

func (c *Container) reloadComponent() (Lifecycle, error) {
	apply := reload.ApplyTo(c.runner)
	if c.cfg.HotReload.PollInterval > 0 {
		return &pollComponent{
			watcher: config.Watcher{
				Path:     c.configPath,
				Interval: c.cfg.HotReload.PollInterval,
				OnError: func(err error) {
					c.logger.Warn("config reload rejected", zap.Error(err))
				},
			},
			apply: func(sc config.StrategyConfig) {
				if err := apply(sc); err != nil {
					c.logger.Warn("apply strategy failed", zap.Error(err))
				}
			},
		}, nil
	}
	r, err := reload.NewHotReloader(c.configPath, reload.HotReloadConfig{
		Enabled:      true,
		CooldownTime: c.cfg.HotReload.Cooldown,
	}, c.logger)
	if err != nil {
		return nil, err
	}
	r.SetReloadHandler(apply)
	return &reloaderComponent{reloader: r}, nil
}

func (c *Container) setFeedConnected(up bool) {
	c.monitor.SetFeedConnected(up)
	if c.feedUp != nil {
		c.feedUp.Set(up, map[string]interface{}{
			"url":   c.cfg.Oracle.WSURL,
			"feeds": []string{c.cfg.Oracle.BaseFeedID, c.cfg.Oracle.QuoteFeedID},
		})
	}
}

// ensureState 首次运行时初始化报价状态，已存在则沿用。
func (c *Container) ensureState(ctx context.Context) error {
	sc := c.cfg.Strategy
	_, err := c.quoter.Initialize(ctx, engine.InitRequest{
		Trader:                c.trader,
		Market:                c.market,
		QuoteEdgeInBps:        sc.QuoteEdgeInBps,
		QuoteSizeInQuoteAtoms: sc.QuoteSizeInQuoteAtoms,
		Behavior:              sc.Behavior,
		PostOnly:              sc.PostOnly,
	})
	if errors.Is(err, engine.ErrStateExists) {
		// 重启时以配置文件为准
		c.runner.SetParams(reload.ParamsFromStrategy(sc))
		c.logger.Info("reusing existing strategy state", zap.String("key", order.Key{Trader: c.trader, Market: c.market}.String()))
		return nil
	}
	return err
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

// Stop 逆序停止组件；runner 停止时会撤掉全部挂单。
func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}
	if cerr := c.store.Close(); cerr != nil {
		c.logger.LogError(cerr, map[string]interface{}{"action": "close_store"})
		if err == nil {
			err = cerr
		}
	}

	stats := c.runner.GetStatistics()
	c.logger.Info("container stopped",
		zap.Int64("updates", stats.TotalUpdates),
		zap.Int64("noops", stats.NoOps),
		zap.Int64("errors", stats.TotalErrors),
		zap.Int64("orders_placed", stats.OrdersPlaced),
		zap.Int64("orders_canceled", stats.OrdersCanceled))
	_ = c.logger.Close()
	return err
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Runner 供入口设置 watchdog 回调、等待循环结束。
func (c *Container) Runner() *engine.Runner { return c.runner }

// Quoter 供一次性操作（例如撤单）直接调用。
func (c *Container) Quoter() *engine.Quoter { return c.quoter }

// Venue 模拟盘，测试和排障使用。
func (c *Container) Venue() *sim.Venue { return c.venue }

// Logger 容器内的日志器，Build 之后可用。
func (c *Container) Logger() *logger.Logger { return c.logger }

// Monitor 容器内的指标。
func (c *Container) Monitor() *monitor.Monitor { return c.monitor }

// Store 报价状态存储。
func (c *Container) Store() store.Store { return c.store }

// Key 当前 (trader, market)。
func (c *Container) Key() order.Key { return order.Key{Trader: c.trader, Market: c.market} }
