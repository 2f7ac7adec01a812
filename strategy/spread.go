package strategy

import "quote-engine/market"

// BBO 盘口上（排除自己挂单后）的最优买卖价，单位 tick。
// 某一侧为空时分别取 market.NoBidInTicks / market.NoAskInTicks。
type BBO struct {
	BestBid uint64
	BestAsk uint64
}

// EmptyBBO 双边都没有他人挂单。
func EmptyBBO() BBO {
	return BBO{BestBid: market.NoBidInTicks, BestAsk: market.NoAskInTicks}
}

// Improve 按策略把计算出的 bid/ask 与盘口最优价对齐，纯函数。
func Improve(b PriceImprovementBehavior, bid, ask uint64, bbo BBO, fairPriceInTicks, margin uint64) (uint64, uint64, error) {
	switch b {
	case Ubermensch:
		ask = max(ask, bbo.BestAsk)
		bid = min(bid, bbo.BestBid)
		upper, err := checkedAdd(fairPriceInTicks, margin)
		if err != nil {
			return 0, 0, err
		}
		lower, err := checkedSub(fairPriceInTicks, margin)
		if err != nil {
			return 0, 0, err
		}
		// 盘口偏离公允价超过 margin，直接贴到最优价
		if bbo.BestAsk > upper {
			ask = bbo.BestAsk
		}
		if bbo.BestBid < lower {
			bid = bbo.BestBid
		}
	case Join:
		ask = max(ask, bbo.BestAsk)
		bid = min(bid, bbo.BestBid)
	case Dime:
		// 最多改善一个 tick
		if bbo.BestAsk <= 1 {
			return 0, 0, arithErr("best ask %d ticks leaves no room to dime", bbo.BestAsk)
		}
		bidLimit, err := checkedAdd(bbo.BestBid, 1)
		if err != nil {
			return 0, 0, err
		}
		ask = max(ask, bbo.BestAsk-1)
		bid = min(bid, bidLimit)
	case Ignore:
	default:
		return 0, 0, ErrInvalidBehavior
	}
	return bid, ask, nil
}
