package market

import (
	"fmt"
	"strings"
)

// Side 买/卖方向。
type Side uint8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

// ParseSide 接受 bid/buy 和 ask/sell。
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bid", "buy":
		return Bid, nil
	case "ask", "sell":
		return Ask, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

// Opposite 对手方向。
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// bidSequenceBit 买单序号的最高位为 1（按位取反编码），卖单为 0。
const bidSequenceBit = uint64(1) << 63

// SideFromSequenceNumber 从订单序号推出方向。
func SideFromSequenceNumber(seq uint64) Side {
	if seq&bidSequenceBit != 0 {
		return Bid
	}
	return Ask
}

// OrderID 盘口内唯一定位一笔挂单：价格 + 序号。
type OrderID struct {
	PriceInTicks   uint64
	SequenceNumber uint64
}

func (id OrderID) Side() Side { return SideFromSequenceNumber(id.SequenceNumber) }

func (id OrderID) IsZero() bool { return id == OrderID{} }

func (id OrderID) String() string {
	return fmt.Sprintf("%s:%d@%d", id.Side(), id.SequenceNumber, id.PriceInTicks)
}

// RestingOrder 盘口上的一笔挂单。
type RestingOrder struct {
	ID             OrderID
	Trader         Address
	SizeInBaseLots uint64
}
