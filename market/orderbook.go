package market

import (
	"sort"
	"sync"
)

// BookView 报价引擎对盘口的只读需求。
type BookView interface {
	// BestNonSelf 跳过 exclude 的挂单后的最优价；该侧为空时返回哨兵值。
	BestNonSelf(side Side, exclude Address) uint64
	// Resting 按标识查找挂单。
	Resting(side Side, id OrderID) (RestingOrder, bool)
}

type entry struct {
	order   RestingOrder
	arrival uint64
}

// Book 内存限价簿，价格优先、时间优先。模拟盘和测试使用。
type Book struct {
	mu      sync.RWMutex
	bids    map[OrderID]*entry
	asks    map[OrderID]*entry
	arrival uint64
}

func NewBook() *Book {
	return &Book{
		bids: make(map[OrderID]*entry),
		asks: make(map[OrderID]*entry),
	}
}

func (b *Book) side(s Side) map[OrderID]*entry {
	if s == Bid {
		return b.bids
	}
	return b.asks
}

// Insert 直接挂单（不撮合），返回新订单标识。
func (b *Book) Insert(trader Address, s Side, priceInTicks, sizeInBaseLots uint64) OrderID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.insertLocked(trader, s, priceInTicks, sizeInBaseLots)
}

func (b *Book) insertLocked(trader Address, s Side, priceInTicks, sizeInBaseLots uint64) OrderID {
	b.arrival++
	seq := b.arrival
	if s == Bid {
		seq = ^seq
	}
	id := OrderID{PriceInTicks: priceInTicks, SequenceNumber: seq}
	b.side(s)[id] = &entry{
		order:   RestingOrder{ID: id, Trader: trader, SizeInBaseLots: sizeInBaseLots},
		arrival: b.arrival,
	}
	return id
}

// Resting 按标识查找挂单。
func (b *Book) Resting(s Side, id OrderID) (RestingOrder, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.side(s)[id]
	if !ok {
		return RestingOrder{}, false
	}
	return e.order, true
}

// BestNonSelf 返回不属于 exclude 的最优价。
func (b *Book) BestNonSelf(s Side, exclude Address) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range b.sortedLocked(s) {
		if e.order.Trader != exclude {
			return e.order.ID.PriceInTicks
		}
	}
	if s == Bid {
		return NoBidInTicks
	}
	return NoAskInTicks
}

// Levels 按优先级返回某一侧全部挂单（拷贝）。
func (b *Book) Levels(s Side) []RestingOrder {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sorted := b.sortedLocked(s)
	res := make([]RestingOrder, 0, len(sorted))
	for _, e := range sorted {
		res = append(res, e.order)
	}
	return res
}

func (b *Book) sortedLocked(s Side) []*entry {
	m := b.side(s)
	res := make([]*entry, 0, len(m))
	for _, e := range m {
		res = append(res, e)
	}
	sort.Slice(res, func(i, j int) bool {
		pi, pj := res[i].order.ID.PriceInTicks, res[j].order.ID.PriceInTicks
		if pi != pj {
			if s == Bid {
				return pi > pj
			}
			return pi < pj
		}
		return res[i].arrival < res[j].arrival
	})
	return res
}

// Match 以 taker 身份吃掉对手盘上与 limitPrice 交叉的挂单，跳过自己的挂单。
// 返回成交的 base lots。
func (b *Book) Match(taker Address, s Side, limitPriceInTicks, sizeInBaseLots uint64) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.matchLocked(taker, s, limitPriceInTicks, sizeInBaseLots)
}

func (b *Book) matchLocked(taker Address, s Side, limitPriceInTicks, sizeInBaseLots uint64) uint64 {
	opp := s.Opposite()
	var filled uint64
	for _, e := range b.sortedLocked(opp) {
		if filled == sizeInBaseLots {
			break
		}
		price := e.order.ID.PriceInTicks
		if (s == Bid && price > limitPriceInTicks) || (s == Ask && price < limitPriceInTicks) {
			break
		}
		if e.order.Trader == taker {
			continue
		}
		take := min(sizeInBaseLots-filled, e.order.SizeInBaseLots)
		e.order.SizeInBaseLots -= take
		filled += take
		if e.order.SizeInBaseLots == 0 {
			delete(b.side(opp), e.order.ID)
		}
	}
	return filled
}

// Crosses 判断 price 是否会与他人挂单成交。
func (b *Book) Crosses(trader Address, s Side, priceInTicks uint64) bool {
	best := b.BestNonSelf(s.Opposite(), trader)
	if s == Bid {
		return best != NoAskInTicks && priceInTicks >= best
	}
	return best != NoBidInTicks && priceInTicks <= best
}

// Fill 模拟外部成交，减少挂单数量，减到 0 时移除。
func (b *Book) Fill(id OrderID, sizeInBaseLots uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.side(id.Side())
	e, ok := m[id]
	if !ok {
		return false
	}
	if sizeInBaseLots >= e.order.SizeInBaseLots {
		delete(m, id)
		return true
	}
	e.order.SizeInBaseLots -= sizeInBaseLots
	return true
}

// Cancel 撤单，不存在返回 false。
func (b *Book) Cancel(id OrderID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.side(id.Side())
	if _, ok := m[id]; !ok {
		return false
	}
	delete(m, id)
	return true
}

// OrdersOf 返回某交易员的全部挂单标识。
func (b *Book) OrdersOf(trader Address) []OrderID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var ids []OrderID
	for _, m := range []map[OrderID]*entry{b.bids, b.asks} {
		for id, e := range m {
			if e.order.Trader == trader {
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].SequenceNumber < ids[j].SequenceNumber })
	return ids
}

// Clone 深拷贝，用作一次调用开始时的快照。
func (b *Book) Clone() *Book {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c := NewBook()
	c.arrival = b.arrival
	for id, e := range b.bids {
		cp := *e
		c.bids[id] = &cp
	}
	for id, e := range b.asks {
		cp := *e
		c.asks[id] = &cp
	}
	return c
}
