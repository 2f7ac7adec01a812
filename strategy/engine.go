package strategy

import (
	"errors"
	"fmt"

	"quote-engine/market"
)

// BpsDenominator 1 bps = 1/10000。
const BpsDenominator = 10_000

// ErrInvalidEdge edge 必须 > 0。
var ErrInvalidEdge = errors.New("quote edge must be non-zero")

// DesiredQuote 本轮期望挂出的双边报价，只在一次调用内有效。
type DesiredQuote struct {
	BidPriceInTicks   uint64
	AskPriceInTicks   uint64
	BidSizeInBaseLots uint64
	AskSizeInBaseLots uint64
}

// EngineConfig 一次报价计算所需的策略参数。
type EngineConfig struct {
	EdgeInBps             uint64
	QuoteSizeInQuoteAtoms uint64
	Behavior              PriceImprovementBehavior
	Margin                uint64 // 仅 Ubermensch 使用
}

// Engine 串联 报价 -> 价格改善 -> 数量 三个步骤。
type Engine struct {
	cfg EngineConfig
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.EdgeInBps == 0 {
		return nil, ErrInvalidEdge
	}
	if !cfg.Behavior.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBehavior, cfg.Behavior)
	}
	return &Engine{cfg: cfg}, nil
}

func (e *Engine) Config() EngineConfig { return e.cfg }

// Quote 根据公允价（tick）、盘口最优价和市场常量计算期望报价。
func (e *Engine) Quote(fairPriceInTicks uint64, bbo BBO, facts market.Facts) (DesiredQuote, error) {
	bid, ask, err := BidAsk(fairPriceInTicks, e.cfg.EdgeInBps)
	if err != nil {
		return DesiredQuote{}, err
	}
	bid, ask, err = Improve(e.cfg.Behavior, bid, ask, bbo, fairPriceInTicks, e.cfg.Margin)
	if err != nil {
		return DesiredQuote{}, err
	}
	bidSize, askSize, err := Sizes(e.cfg.QuoteSizeInQuoteAtoms, bid, ask, facts)
	if err != nil {
		return DesiredQuote{}, err
	}
	return DesiredQuote{
		BidPriceInTicks:   bid,
		AskPriceInTicks:   ask,
		BidSizeInBaseLots: bidSize,
		AskSizeInBaseLots: askSize,
	}, nil
}

// EdgeInTicks = floor(edgeInBps * fair / 10000)。
func EdgeInTicks(fairPriceInTicks, edgeInBps uint64) (uint64, error) {
	return mulDiv(edgeInBps, fairPriceInTicks, BpsDenominator)
}

// BidAsk 围绕公允价对称报价；edge 吃掉整个公允价时 bid 会下溢，直接报错。
func BidAsk(fairPriceInTicks, edgeInBps uint64) (bid, ask uint64, err error) {
	if edgeInBps == 0 {
		return 0, 0, ErrInvalidEdge
	}
	edge, err := EdgeInTicks(fairPriceInTicks, edgeInBps)
	if err != nil {
		return 0, 0, err
	}
	if edge >= fairPriceInTicks {
		return 0, 0, arithErr("edge %d ticks >= fair price %d ticks", edge, fairPriceInTicks)
	}
	bid = fairPriceInTicks - edge
	ask, err = checkedAdd(fairPriceInTicks, edge)
	if err != nil {
		return 0, 0, err
	}
	return bid, ask, nil
}
