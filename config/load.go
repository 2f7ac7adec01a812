package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"quote-engine/infrastructure/logger"
	"quote-engine/market"
	"quote-engine/strategy"
)

// EnvPrefix 环境变量覆盖统一前缀，例如 QUOTER_STRATEGY_QUOTE_EDGE_BPS。
const EnvPrefix = "QUOTER_"

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env       string          `yaml:"env" env:"ENV"`
	Account   AccountConfig   `yaml:"account" envPrefix:"ACCOUNT_"`
	Strategy  StrategyConfig  `yaml:"strategy" envPrefix:"STRATEGY_"`
	Oracle    OracleConfig    `yaml:"oracle" envPrefix:"ORACLE_"`
	Venue     VenueConfig     `yaml:"venue" envPrefix:"VENUE_"`
	Store     StoreConfig     `yaml:"store" envPrefix:"STORE_"`
	Logger    logger.Config   `yaml:"logger" envPrefix:"LOG_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
	HotReload HotReloadConfig `yaml:"hot_reload" envPrefix:"HOT_RELOAD_"`
	Alert     AlertConfig     `yaml:"alert" envPrefix:"ALERT_"`
}

// AccountConfig 交易员、市场和市场账户合法所有者，均为 32 字节十六进制。
type AccountConfig struct {
	Trader       string `yaml:"trader" env:"TRADER"`
	Market       string `yaml:"market" env:"MARKET"`
	ProgramOwner string `yaml:"program_owner" env:"PROGRAM_OWNER"`
}

// StrategyConfig 报价参数。热更新只会重新读取这一段。
type StrategyConfig struct {
	QuoteEdgeInBps        uint64                            `yaml:"quote_edge_bps" env:"QUOTE_EDGE_BPS"`
	QuoteSizeInQuoteAtoms uint64                            `yaml:"quote_size_quote_atoms" env:"QUOTE_SIZE_QUOTE_ATOMS"`
	Behavior              strategy.PriceImprovementBehavior `yaml:"behavior" env:"BEHAVIOR"`
	PostOnly              bool                              `yaml:"post_only" env:"POST_ONLY"`
	Margin                uint64                            `yaml:"margin" env:"MARGIN"`                     // Ubermensch 让价（tick）
	FairPriceInTicks      uint64                            `yaml:"fair_price_ticks" env:"FAIR_PRICE_TICKS"` // 直接模式公允价
	UseOracle             bool                              `yaml:"use_oracle" env:"USE_ORACLE"`
	Interval              time.Duration                     `yaml:"interval" env:"INTERVAL"`
	MaxUpdates            int                               `yaml:"max_updates" env:"MAX_UPDATES"` // 0 表示不限
}

// OracleConfig 预言机读数来源，优先级 ws_url > account_dir（账户镜像目录）> static（模拟盘）。
type OracleConfig struct {
	BaseFeedID   string          `yaml:"base_feed_id" env:"BASE_FEED_ID"`
	QuoteFeedID  string          `yaml:"quote_feed_id" env:"QUOTE_FEED_ID"`
	WSURL        string          `yaml:"ws_url" env:"WS_URL"`
	AccountDir   string          `yaml:"account_dir" env:"ACCOUNT_DIR"`
	MaxStaleness uint64          `yaml:"max_staleness" env:"MAX_STALENESS"`
	MaxRetries   int             `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryBackoff time.Duration   `yaml:"retry_backoff" env:"RETRY_BACKOFF"`
	Static       []StaticReading `yaml:"static" envPrefix:"STATIC_"`
}

// StaticReading 模拟盘读数，valid_height 由运行时按当前高度补齐。
type StaticReading struct {
	FeedID     string `yaml:"feed_id" env:"FEED_ID"`
	Price      int64  `yaml:"price" env:"PRICE"`
	Confidence uint64 `yaml:"conf" env:"CONF"`
	Exponent   int32  `yaml:"expo" env:"EXPO"`
}

// VenueConfig 模拟盘市场常量、他人挂单和吃单流。
type VenueConfig struct {
	BaseDecimals                   uint32        `yaml:"base_decimals" env:"BASE_DECIMALS"`
	QuoteDecimals                  uint32        `yaml:"quote_decimals" env:"QUOTE_DECIMALS"`
	BaseLotSize                    uint64        `yaml:"base_lot_size" env:"BASE_LOT_SIZE"`
	QuoteLotSize                   uint64        `yaml:"quote_lot_size" env:"QUOTE_LOT_SIZE"`
	TickSizeInQuoteLotsPerBaseUnit uint64        `yaml:"tick_size_quote_lots_per_base_unit" env:"TICK_SIZE_QUOTE_LOTS_PER_BASE_UNIT"`
	BaseLotsPerBaseUnit            uint64        `yaml:"base_lots_per_base_unit" env:"BASE_LOTS_PER_BASE_UNIT"`
	RawBaseUnitsPerBaseUnit        uint64        `yaml:"raw_base_units_per_base_unit" env:"RAW_BASE_UNITS_PER_BASE_UNIT"`
	SlotDuration                   time.Duration `yaml:"slot_duration" env:"SLOT_DURATION"`
	Levels                         []SeedLevel   `yaml:"levels" envPrefix:"LEVELS_"`
	TakerInterval                  time.Duration `yaml:"taker_interval" env:"TAKER_INTERVAL"`             // 0 关闭
	TakerSizeInBaseLots            uint64        `yaml:"taker_size_base_lots" env:"TAKER_SIZE_BASE_LOTS"` // 每次吃单数量
}

// SeedLevel 模拟盘中其他交易员的挂单。
type SeedLevel struct {
	Trader         string `yaml:"trader" env:"TRADER"`
	Side           string `yaml:"side" env:"SIDE"` // bid / ask
	PriceInTicks   uint64 `yaml:"price_ticks" env:"PRICE_TICKS"`
	SizeInBaseLots uint64 `yaml:"size_base_lots" env:"SIZE_BASE_LOTS"`
}

// Facts 转成市场常量，魔数固定为合法值。
func (v VenueConfig) Facts() market.Facts {
	return market.Facts{
		Discriminant:                   market.ExpectedDiscriminant,
		BaseDecimals:                   v.BaseDecimals,
		QuoteDecimals:                  v.QuoteDecimals,
		BaseLotSize:                    v.BaseLotSize,
		QuoteLotSize:                   v.QuoteLotSize,
		TickSizeInQuoteLotsPerBaseUnit: v.TickSizeInQuoteLotsPerBaseUnit,
		BaseLotsPerBaseUnit:            v.BaseLotsPerBaseUnit,
		RawBaseUnitsPerBaseUnit:        v.RawBaseUnitsPerBaseUnit,
	}
}

// StoreConfig 状态存储：memory 或 sqlite。
type StoreConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	Path   string `yaml:"path" env:"PATH"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Listen  string `yaml:"listen" env:"LISTEN"`
}

// HotReloadConfig poll_interval > 0 时改用轮询 mtime，适用于 fsnotify 不可用的文件系统。
type HotReloadConfig struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	Cooldown     time.Duration `yaml:"cooldown" env:"COOLDOWN"`
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
}

// AlertConfig 连续失败告警；webhook_url 为空时只写日志。
type AlertConfig struct {
	Enabled          bool          `yaml:"enabled" env:"ENABLED"`
	FailureThreshold int           `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	Throttle         time.Duration `yaml:"throttle" env:"THROTTLE"`
	WebhookURL       string        `yaml:"webhook_url" env:"WEBHOOK_URL"`
	WebhookTimeout   time.Duration `yaml:"webhook_timeout" env:"WEBHOOK_TIMEOUT"`
}

// Defaults 未在文件中出现的字段取这些值。
func Defaults() AppConfig {
	return AppConfig{
		Env: "dev",
		Strategy: StrategyConfig{
			Behavior: strategy.Join,
			PostOnly: true,
			Interval: 5 * time.Second,
		},
		Oracle: OracleConfig{
			MaxRetries:   5,
			RetryBackoff: 3 * time.Second,
		},
		Venue: VenueConfig{
			SlotDuration: 400 * time.Millisecond,
		},
		Store:     StoreConfig{Driver: "memory"},
		Logger:    logger.DefaultConfig(),
		Metrics:   MetricsConfig{Listen: ":9102"},
		HotReload: HotReloadConfig{Cooldown: time.Second},
		Alert:     AlertConfig{FailureThreshold: 3, Throttle: 5 * time.Minute, WebhookTimeout: 5 * time.Second},
	}
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	cfg, err := parseFile(path)
	if err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides fields from QUOTER_* env vars.
// 当前目录下的 .env 文件（若存在）先被载入环境。
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	_ = godotenv.Load()
	cfg, err := parseFile(path)
	if err != nil {
		return cfg, err
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, Validate(cfg)
}

// LoadStrategy 只读取并校验 strategy 段，热更新使用。环境变量覆盖不参与热更新。
func LoadStrategy(path string) (StrategyConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return StrategyConfig{}, fmt.Errorf("read config: %w", err)
	}
	var doc struct {
		Strategy StrategyConfig `yaml:"strategy"`
	}
	doc.Strategy = Defaults().Strategy
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return StrategyConfig{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := ValidateStrategy(doc.Strategy); err != nil {
		return StrategyConfig{}, err
	}
	return doc.Strategy, nil
}

func parseFile(path string) (AppConfig, error) {
	cfg := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	for name, s := range map[string]string{
		"account.trader":        cfg.Account.Trader,
		"account.market":        cfg.Account.Market,
		"account.program_owner": cfg.Account.ProgramOwner,
	} {
		if _, err := market.ParseAddress(s); err != nil {
			return ErrInvalid(fmt.Sprintf("%s: %v", name, err))
		}
	}
	if err := ValidateStrategy(cfg.Strategy); err != nil {
		return err
	}
	if cfg.Strategy.UseOracle {
		if cfg.Oracle.BaseFeedID == "" || cfg.Oracle.QuoteFeedID == "" {
			return ErrInvalid("oracle.base_feed_id/quote_feed_id required when strategy.use_oracle")
		}
		if cfg.Oracle.WSURL == "" && cfg.Oracle.AccountDir == "" && len(cfg.Oracle.Static) == 0 {
			return ErrInvalid("oracle.ws_url, oracle.account_dir or oracle.static required when strategy.use_oracle")
		}
	} else if cfg.Strategy.FairPriceInTicks == 0 {
		return ErrInvalid("strategy.fair_price_ticks must be > 0 without oracle")
	}
	if cfg.Oracle.MaxRetries < 0 {
		return ErrInvalid("oracle.max_retries must be >= 0")
	}
	if err := ValidateVenue(cfg.Venue); err != nil {
		return err
	}
	switch cfg.Store.Driver {
	case "memory":
	case "sqlite":
		if cfg.Store.Path == "" {
			return ErrInvalid("store.path is required for sqlite")
		}
	default:
		return ErrInvalid(fmt.Sprintf("store.driver %q must be memory or sqlite", cfg.Store.Driver))
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return ErrInvalid("metrics.listen is required when metrics.enabled")
	}
	if cfg.HotReload.Cooldown < 0 || cfg.HotReload.PollInterval < 0 {
		return ErrInvalid("hot_reload.cooldown/poll_interval must be >= 0")
	}
	if cfg.Alert.Enabled && cfg.Alert.FailureThreshold <= 0 {
		return ErrInvalid("alert.failure_threshold must be > 0")
	}
	if cfg.Alert.Throttle < 0 || cfg.Alert.WebhookTimeout < 0 {
		return ErrInvalid("alert.throttle/webhook_timeout must be >= 0")
	}
	return nil
}
