package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"quote-engine/market"
	"quote-engine/order"
)

var ErrUnknownMarket = errors.New("unknown market")

// ErrPostOnlyCross post-only 订单会穿价且 RejectPostOnly=true。
var ErrPostOnlyCross = errors.New("post-only order would cross")

type paperMarket struct {
	facts market.Facts
	book  *market.Book
}

// Venue 基于内存限价簿的模拟盘，实现盘口读取和撤单/下单通道。
type Venue struct {
	owner market.Address

	mu      sync.Mutex
	markets map[market.Address]*paperMarket

	cancelCalls int
	orderCalls  int
	lastSub     order.Submission
	failCancels error
	failOrders  error
}

func NewVenue(owner market.Address) *Venue {
	return &Venue{owner: owner, markets: make(map[market.Address]*paperMarket)}
}

// AddMarket 注册一个市场，返回其盘口。
func (v *Venue) AddMarket(addr market.Address, facts market.Facts) *market.Book {
	v.mu.Lock()
	defer v.mu.Unlock()
	m := &paperMarket{facts: facts, book: market.NewBook()}
	v.markets[addr] = m
	return m.book
}

// Book 直接访问盘口（测试、注入外部成交）。
func (v *Venue) Book(addr market.Address) *market.Book {
	v.mu.Lock()
	defer v.mu.Unlock()
	if m, ok := v.markets[addr]; ok {
		return m.book
	}
	return nil
}

// Seed 以其他交易员身份挂单。
func (v *Venue) Seed(addr, trader market.Address, side market.Side, priceInTicks, sizeInBaseLots uint64) (market.OrderID, error) {
	m, err := v.market(addr)
	if err != nil {
		return market.OrderID{}, err
	}
	return m.book.Insert(trader, side, priceInTicks, sizeInBaseLots), nil
}

// Sweep 以 taker 身份按市价吃掉对手盘，返回成交量。
func (v *Venue) Sweep(addr, taker market.Address, side market.Side, sizeInBaseLots uint64) (uint64, error) {
	m, err := v.market(addr)
	if err != nil {
		return 0, err
	}
	limit := market.NoAskInTicks
	if side == market.Ask {
		limit = 0
	}
	return m.book.Match(taker, side, limit, sizeInBaseLots), nil
}

// FailNext 让下一次撤单/下单调用失败，测试用。
func (v *Venue) FailNext(cancels, orders error) {
	v.mu.Lock()
	v.failCancels, v.failOrders = cancels, orders
	v.mu.Unlock()
}

// Calls 返回撤单、下单调用次数。
func (v *Venue) Calls() (cancels, orders int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cancelCalls, v.orderCalls
}

// LastSubmission 最近一次下单请求。
func (v *Venue) LastSubmission() order.Submission {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSub
}

func (v *Venue) market(addr market.Address) (*paperMarket, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.markets[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMarket, addr)
	}
	return m, nil
}

func (v *Venue) MarketAccount(_ context.Context, addr market.Address) (market.Account, error) {
	m, err := v.market(addr)
	if err != nil {
		return market.Account{}, err
	}
	return market.Account{Owner: v.owner, Data: market.EncodeHeader(m.facts)}, nil
}

func (v *Venue) Snapshot(_ context.Context, addr market.Address) (market.BookView, error) {
	m, err := v.market(addr)
	if err != nil {
		return nil, err
	}
	return m.book.Clone(), nil
}

// SubmitCancels 撤掉属于该交易员的挂单；已经不在盘口的标识忽略。
func (v *Venue) SubmitCancels(_ context.Context, req order.CancelRequest) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancelCalls++
	if err := v.failCancels; err != nil {
		v.failCancels = nil
		return err
	}
	m, ok := v.markets[req.Market]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMarket, req.Market)
	}
	for _, id := range req.IDs {
		resting, found := m.book.Resting(id.Side(), id)
		if !found {
			continue
		}
		if resting.Trader != req.Trader {
			return fmt.Errorf("order %s not owned by %s", id, req.Trader)
		}
		m.book.Cancel(id)
	}
	return nil
}

// SubmitOrders 批次按 post-only 处理（RejectPostOnly=false 时穿价的单滑到对手价内一个 tick），
// 独立限价单先撮合，剩余部分挂单。只返回最终挂在盘口上的订单。
func (v *Venue) SubmitOrders(_ context.Context, sub order.Submission) ([]market.OrderID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.orderCalls++
	v.lastSub = sub
	if err := v.failOrders; err != nil {
		v.failOrders = nil
		return nil, err
	}
	m, ok := v.markets[sub.Market]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMarket, sub.Market)
	}

	var placed []market.OrderID
	if b := sub.Batch; b != nil {
		reqs := append(append([]order.OrderRequest{}, b.Bids...), b.Asks...)
		// 先整体检查，拒绝时不留下部分挂单
		prices := make([]uint64, len(reqs))
		for i, r := range reqs {
			price, ok := postOnlyPrice(m.book, sub.Trader, r)
			if !ok && b.RejectPostOnly {
				return nil, fmt.Errorf("%w: %s @ %d", ErrPostOnlyCross, r.Side, r.PriceInTicks)
			}
			prices[i] = price
		}
		for i, r := range reqs {
			if prices[i] == 0 || r.SizeInBaseLots == 0 {
				continue
			}
			placed = append(placed, m.book.Insert(sub.Trader, r.Side, prices[i], r.SizeInBaseLots))
		}
		return placed, nil
	}

	for _, r := range sub.Orders {
		filled := m.book.Match(sub.Trader, r.Side, r.PriceInTicks, r.SizeInBaseLots)
		if rest := r.SizeInBaseLots - filled; rest > 0 {
			placed = append(placed, m.book.Insert(sub.Trader, r.Side, r.PriceInTicks, rest))
		}
	}
	return placed, nil
}

// postOnlyPrice 不穿价时原价返回 (price, true)；穿价时返回滑到对手价内一个 tick 的价格和 false。
// 滑不动（对手最优价已在边界）时价格为 0。
func postOnlyPrice(book *market.Book, trader market.Address, r order.OrderRequest) (uint64, bool) {
	if !book.Crosses(trader, r.Side, r.PriceInTicks) {
		return r.PriceInTicks, true
	}
	best := book.BestNonSelf(r.Side.Opposite(), trader)
	if r.Side == market.Bid {
		if best <= 1 {
			return 0, false
		}
		return best - 1, false
	}
	if best == market.NoAskInTicks-1 {
		return 0, false
	}
	return best + 1, false
}
