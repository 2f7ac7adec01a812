package logger

import (
	"fmt"
	"os"
	"slices"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 封装 zap，附带报价引擎常用的结构化事件。
type Logger struct {
	*zap.Logger
	config Config
}

// Config 日志配置
type Config struct {
	Level      string   `yaml:"level" env:"LEVEL"`             // debug, info, warn, error
	Outputs    []string `yaml:"outputs" env:"OUTPUTS"`         // stdout, file
	OutputFile string   `yaml:"output_file" env:"OUTPUT_FILE"` // 日志文件路径
	ErrorFile  string   `yaml:"error_file" env:"ERROR_FILE"`   // 错误日志单独文件
	Format     string   `yaml:"format" env:"FORMAT"`           // json 或 console
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Outputs: []string{"stdout"},
		Format:  "json",
	}
}

// New 按配置构建 tee core：stdout / 文件 / 错误文件。没有任何输出时等价于 nop。
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	if cfg.Format == "console" {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	// 文件里始终写 JSON，便于采集
	fileEnc := zapcore.NewJSONEncoder(encCfg)

	var cores []zapcore.Core
	if slices.Contains(cfg.Outputs, "stdout") {
		enc := fileEnc
		if cfg.Format == "console" {
			enc = zapcore.NewConsoleEncoder(encCfg)
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level))
	}
	if slices.Contains(cfg.Outputs, "file") && cfg.OutputFile != "" {
		w, err := openAppend(cfg.OutputFile)
		if err != nil {
			return nil, fmt.Errorf("open log file failed: %w", err)
		}
		cores = append(cores, zapcore.NewCore(fileEnc, w, level))
	}
	if cfg.ErrorFile != "" {
		w, err := openAppend(cfg.ErrorFile)
		if err != nil {
			return nil, fmt.Errorf("open error log file failed: %w", err)
		}
		cores = append(cores, zapcore.NewCore(fileEnc, w, zapcore.ErrorLevel))
	}

	z := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{Logger: z, config: cfg}, nil
}

func openAppend(path string) (zapcore.WriteSyncer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return zapcore.AddSync(f), nil
}

// NewNop 丢弃所有输出，测试用。
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), config: DefaultConfig()}
}

// WithFields 派生带固定字段的 logger（例如每次调用的 invocation id）。
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{Logger: l.With(toFields(fields)...), config: l.config}
}

// LogQuote 公允价、双边价格与数量。
func (l *Logger) LogQuote(event string, fields map[string]interface{}) {
	l.Info("quote_event", append(toFields(fields), zap.String("event", event))...)
}

// LogOrder 撤单/下单，每笔订单一条。
func (l *Logger) LogOrder(event string, orderID string, fields map[string]interface{}) {
	l.Info("order_event", append(toFields(fields), zap.String("event", event), zap.String("order_id", orderID))...)
}

// LogOracle 预言机读数与拒绝原因。
func (l *Logger) LogOracle(event string, feedID string, fields map[string]interface{}) {
	l.Info("oracle_event", append(toFields(fields), zap.String("event", event), zap.String("feed_id", feedID))...)
}

func (l *Logger) LogError(err error, context map[string]interface{}) {
	l.Error("error_event", append(toFields(context), zap.Error(err))...)
}

// Close 刷盘
func (l *Logger) Close() error {
	return l.Sync()
}

func toFields(m map[string]interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(m)+2)
	for k, v := range m {
		out = append(out, zap.Any(k, v))
	}
	return out
}
