package order

import (
	"quote-engine/market"
	"quote-engine/strategy"
)

// Outcome 单侧对账结果。
type Outcome uint8

const (
	// Unchanged 上次记录的订单仍在，价格和数量都没变，不动。
	Unchanged Outcome = iota
	// Replace 订单还在但被部分成交或目标价变了，撤掉后重挂。
	Replace
	// Gone 记录的订单已不在盘口（全部成交或已撤）。
	Gone
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Replace:
		return "replace"
	case Gone:
		return "gone"
	default:
		return "unknown"
	}
}

// SideDecision 某一侧本轮要做的事。
type SideDecision struct {
	Side     market.Side
	Outcome  Outcome
	Previous OrderDescriptor

	// Place 为 true 时按 PriceInTicks/SizeInBaseLots 下新单。
	Place          bool
	PriceInTicks   uint64
	SizeInBaseLots uint64
}

// Plan 一次更新的撤单和下单决定。
type Plan struct {
	Bid     SideDecision
	Ask     SideDecision
	Cancels []market.OrderID
}

// NoOp 两侧都不下单且没有要撤的单。
func (p Plan) NoOp() bool {
	return len(p.Cancels) == 0 && !p.Bid.Place && !p.Ask.Place
}

func (p Plan) Decision(side market.Side) SideDecision {
	if side == market.Bid {
		return p.Bid
	}
	return p.Ask
}

// Reconcile 对比期望报价和上次记录的挂单，决定每一侧 不动/撤换/补挂。
// book 是本次调用开始时的盘口快照。
func Reconcile(state StrategyState, desired strategy.DesiredQuote, book market.BookView) Plan {
	var plan Plan
	plan.Bid = reconcileSide(market.Bid, state.Bid, desired.BidPriceInTicks, desired.BidSizeInBaseLots, book)
	plan.Ask = reconcileSide(market.Ask, state.Ask, desired.AskPriceInTicks, desired.AskSizeInBaseLots, book)
	for _, d := range []SideDecision{plan.Bid, plan.Ask} {
		if d.Outcome == Replace {
			plan.Cancels = append(plan.Cancels, d.Previous.OrderID())
		}
	}
	return plan
}

func reconcileSide(side market.Side, prev OrderDescriptor, price, size uint64, book market.BookView) SideDecision {
	d := SideDecision{Side: side, Previous: prev, PriceInTicks: price, SizeInBaseLots: size}

	resting, found := market.RestingOrder{}, false
	if !prev.IsZero() {
		resting, found = book.Resting(side, prev.OrderID())
	}
	switch {
	case !found:
		d.Outcome = Gone
	case resting.SizeInBaseLots == prev.InitialSizeInBaseLots && prev.PriceInTicks == price:
		// 数量只和上次记录的剩余量比较；目标数量变化本身不触发撤换
		d.Outcome = Unchanged
		return d
	default:
		d.Outcome = Replace
	}
	d.Place = Placeable(side, price, size)
	return d
}

// Placeable 下单前的门槛：数量 > 0，价格不碰哨兵。
func Placeable(side market.Side, priceInTicks, sizeInBaseLots uint64) bool {
	if sizeInBaseLots == 0 {
		return false
	}
	if side == market.Bid {
		return priceInTicks > market.NoBidInTicks
	}
	return priceInTicks < market.NoAskInTicks
}

// ApplyPlacements 根据提交后的盘口重读结果更新两侧记录，返回新状态。
//   - Unchanged 的一侧保持原记录；
//   - 下了新单且在盘口找到，记录其价格、序号和剩余量；
//   - 下了单但没找到（立即全部成交），或本侧旧单已撤/已没且未重挂，记录清零。
func ApplyPlacements(state StrategyState, plan Plan, placed []market.OrderID, book market.BookView) StrategyState {
	for _, d := range []SideDecision{plan.Bid, plan.Ask} {
		if d.Outcome == Unchanged {
			continue
		}
		next := OrderDescriptor{}
		if d.Place {
			if id, ok := placedOn(d.Side, placed); ok {
				if resting, found := book.Resting(d.Side, id); found {
					next = DescriptorOf(resting)
				}
			}
		}
		state.setDescriptor(d.Side, next)
	}
	return state
}

func placedOn(side market.Side, placed []market.OrderID) (market.OrderID, bool) {
	for _, id := range placed {
		if id.Side() == side {
			return id, true
		}
	}
	return market.OrderID{}, false
}
