package order

import (
	"context"
	"encoding/hex"
	"errors"

	"quote-engine/market"
	"quote-engine/strategy"
)

// ErrSubmissionFailed 撤单或下单请求被对端拒绝。
var ErrSubmissionFailed = errors.New("order submission failed")

// ClientOrderID 客户端订单号，取交易员身份的前 16 字节。
type ClientOrderID [16]byte

func ClientOrderIDFor(trader market.Address) ClientOrderID {
	var id ClientOrderID
	copy(id[:], trader[:16])
	return id
}

func (c ClientOrderID) String() string { return hex.EncodeToString(c[:]) }

// OrderRequest 单笔限价单。
type OrderRequest struct {
	Side           market.Side
	PriceInTicks   uint64
	SizeInBaseLots uint64
	ClientOrderID  ClientOrderID
}

// Batch 多笔 post-only 订单一次提交。RejectPostOnly=false 时会穿价的订单
// 由对端调整到不穿价的位置，而不是整笔拒绝。
type Batch struct {
	ClientOrderID  ClientOrderID
	Bids           []OrderRequest
	Asks           []OrderRequest
	RejectPostOnly bool
}

// Submission 要么是一个 post-only 批次，要么是若干笔独立限价单（可立即成交）。
type Submission struct {
	Trader market.Address
	Market market.Address
	Batch  *Batch
	Orders []OrderRequest
}

func (s Submission) Len() int {
	if s.Batch != nil {
		return len(s.Batch.Bids) + len(s.Batch.Asks)
	}
	return len(s.Orders)
}

// CancelRequest 按标识批量撤单。
type CancelRequest struct {
	Trader market.Address
	Market market.Address
	IDs    []market.OrderID
}

// Transport 撤单、下单的外部通道。两个调用对引擎来说都是原子的。
type Transport interface {
	SubmitCancels(ctx context.Context, req CancelRequest) error
	// SubmitOrders 返回实际挂上盘口的订单标识；立即全部成交的订单不返回。
	SubmitOrders(ctx context.Context, sub Submission) ([]market.OrderID, error)
}

// UsesBatch post-only 或非 Join 策略走 post-only 批次。
func UsesBatch(state StrategyState) bool {
	return state.PostOnly || state.Behavior != strategy.Join
}

// BuildSubmission 把计划中需要下单的侧组装成提交请求；没有要下的单时返回 false。
func BuildSubmission(state StrategyState, plan Plan) (Submission, bool) {
	cid := ClientOrderIDFor(state.Trader)
	var reqs []OrderRequest
	for _, d := range []SideDecision{plan.Bid, plan.Ask} {
		if !d.Place {
			continue
		}
		reqs = append(reqs, OrderRequest{
			Side:           d.Side,
			PriceInTicks:   d.PriceInTicks,
			SizeInBaseLots: d.SizeInBaseLots,
			ClientOrderID:  cid,
		})
	}
	if len(reqs) == 0 {
		return Submission{}, false
	}

	sub := Submission{Trader: state.Trader, Market: state.Market}
	if !UsesBatch(state) {
		sub.Orders = reqs
		return sub, true
	}
	b := &Batch{ClientOrderID: cid, RejectPostOnly: false}
	for _, r := range reqs {
		if r.Side == market.Bid {
			b.Bids = append(b.Bids, r)
		} else {
			b.Asks = append(b.Asks, r)
		}
	}
	sub.Batch = b
	return sub, true
}
