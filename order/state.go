package order

import (
	"fmt"

	"quote-engine/market"
	"quote-engine/strategy"
)

// OrderDescriptor 引擎认为自己挂在盘口上的一笔订单。零值表示该侧没有挂单。
type OrderDescriptor struct {
	PriceInTicks          uint64
	SequenceNumber        uint64
	InitialSizeInBaseLots uint64
}

func (d OrderDescriptor) OrderID() market.OrderID {
	return market.OrderID{PriceInTicks: d.PriceInTicks, SequenceNumber: d.SequenceNumber}
}

func (d OrderDescriptor) IsZero() bool { return d == OrderDescriptor{} }

// DescriptorOf 用盘口上实际挂着的订单生成描述，size 取当前剩余量。
func DescriptorOf(o market.RestingOrder) OrderDescriptor {
	return OrderDescriptor{
		PriceInTicks:          o.ID.PriceInTicks,
		SequenceNumber:        o.ID.SequenceNumber,
		InitialSizeInBaseLots: o.SizeInBaseLots,
	}
}

// Key 状态按 (trader, market) 唯一。
type Key struct {
	Trader market.Address
	Market market.Address
}

func (k Key) String() string { return fmt.Sprintf("%s/%s", k.Trader, k.Market) }

// StrategyState 每个 (trader, market) 一份的持久化报价状态。
type StrategyState struct {
	Trader market.Address
	Market market.Address

	Bid OrderDescriptor
	Ask OrderDescriptor

	LastUpdateHeight uint64
	LastUpdateUnix   int64

	QuoteEdgeInBps        uint64
	QuoteSizeInQuoteAtoms uint64
	PostOnly              bool
	Behavior              strategy.PriceImprovementBehavior
}

// InitParams 创建状态时的参数。
type InitParams struct {
	QuoteEdgeInBps        uint64
	QuoteSizeInQuoteAtoms uint64
	Behavior              strategy.PriceImprovementBehavior
	PostOnly              bool
}

// NewStrategyState edge 必须 > 0，策略编码必须合法。
func NewStrategyState(trader, mkt market.Address, p InitParams) (StrategyState, error) {
	if p.QuoteEdgeInBps == 0 {
		return StrategyState{}, strategy.ErrInvalidEdge
	}
	if !p.Behavior.Valid() {
		return StrategyState{}, fmt.Errorf("%w: %d", strategy.ErrInvalidBehavior, p.Behavior)
	}
	return StrategyState{
		Trader:                trader,
		Market:                mkt,
		QuoteEdgeInBps:        p.QuoteEdgeInBps,
		QuoteSizeInQuoteAtoms: p.QuoteSizeInQuoteAtoms,
		PostOnly:              p.PostOnly,
		Behavior:              p.Behavior,
	}, nil
}

func (s StrategyState) Key() Key { return Key{Trader: s.Trader, Market: s.Market} }

// Descriptor 某一侧的记录。
func (s StrategyState) Descriptor(side market.Side) OrderDescriptor {
	if side == market.Bid {
		return s.Bid
	}
	return s.Ask
}

func (s *StrategyState) setDescriptor(side market.Side, d OrderDescriptor) {
	if side == market.Bid {
		s.Bid = d
		return
	}
	s.Ask = d
}

// EngineConfig 当前参数对应的报价配置。
func (s StrategyState) EngineConfig(margin uint64) strategy.EngineConfig {
	return strategy.EngineConfig{
		EdgeInBps:             s.QuoteEdgeInBps,
		QuoteSizeInQuoteAtoms: s.QuoteSizeInQuoteAtoms,
		Behavior:              s.Behavior,
		Margin:                margin,
	}
}

// Params 稀疏参数更新，nil 字段保持原值。
type Params struct {
	QuoteEdgeInBps        *uint64
	QuoteSizeInQuoteAtoms *uint64
	Behavior              *strategy.PriceImprovementBehavior
	PostOnly              *bool
}

func (p Params) IsEmpty() bool {
	return p.QuoteEdgeInBps == nil && p.QuoteSizeInQuoteAtoms == nil && p.Behavior == nil && p.PostOnly == nil
}

// Merge 后者覆盖前者的非 nil 字段。
func (p Params) Merge(o Params) Params {
	if o.QuoteEdgeInBps != nil {
		p.QuoteEdgeInBps = o.QuoteEdgeInBps
	}
	if o.QuoteSizeInQuoteAtoms != nil {
		p.QuoteSizeInQuoteAtoms = o.QuoteSizeInQuoteAtoms
	}
	if o.Behavior != nil {
		p.Behavior = o.Behavior
	}
	if o.PostOnly != nil {
		p.PostOnly = o.PostOnly
	}
	return p
}

// WithParams 应用稀疏更新。edge 为 0 的更新被忽略而不是报错。
func (s StrategyState) WithParams(p Params) (StrategyState, error) {
	if p.QuoteEdgeInBps != nil && *p.QuoteEdgeInBps > 0 {
		s.QuoteEdgeInBps = *p.QuoteEdgeInBps
	}
	if p.QuoteSizeInQuoteAtoms != nil {
		s.QuoteSizeInQuoteAtoms = *p.QuoteSizeInQuoteAtoms
	}
	if p.Behavior != nil {
		if !p.Behavior.Valid() {
			return s, fmt.Errorf("%w: %d", strategy.ErrInvalidBehavior, *p.Behavior)
		}
		s.Behavior = *p.Behavior
	}
	if p.PostOnly != nil {
		s.PostOnly = *p.PostOnly
	}
	return s, nil
}
