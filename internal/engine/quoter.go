package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quote-engine/infrastructure/logger"
	"quote-engine/infrastructure/monitor"
	"quote-engine/internal/store"
	"quote-engine/market"
	"quote-engine/oracle"
	"quote-engine/order"
	"quote-engine/strategy"
)

var (
	ErrStateNotFound = errors.New("strategy state not found")
	ErrStateExists   = errors.New("strategy state already initialized")
)

// Venue 盘口和下单通道。
type Venue interface {
	// MarketAccount 返回市场账户原始数据，每次调用重新读取。
	MarketAccount(ctx context.Context, mkt market.Address) (market.Account, error)
	// Snapshot 返回当前盘口的只读快照。
	Snapshot(ctx context.Context, mkt market.Address) (market.BookView, error)
	order.Transport
}

// Clock 当前时间和高度。
type Clock interface {
	Now() time.Time
	Height() uint64
}

// Config 报价器配置
type Config struct {
	ProgramOwner market.Address // 市场账户的合法所有者
	MaxStaleness uint64         // 预言机新鲜度窗口，0 使用默认值
}

// Components 报价器依赖组件
type Components struct {
	Venue   Venue
	Feeds   oracle.Reader
	Store   store.Store
	Clock   Clock
	Logger  *logger.Logger
	Monitor *monitor.Monitor
}

// Quoter 执行 Initialize / UpdateQuotes。同一个 (trader, market) 的调用串行执行。
type Quoter struct {
	config    Config
	venue     Venue
	feeds     oracle.Reader
	store     store.Store
	clock     Clock
	logger    *logger.Logger
	monitor   *monitor.Monitor
	validator oracle.Validator

	mu    sync.Mutex
	locks map[order.Key]*sync.Mutex
}

func NewQuoter(cfg Config, c Components) (*Quoter, error) {
	if c.Venue == nil {
		return nil, errors.New("venue is required")
	}
	if c.Store == nil {
		return nil, errors.New("store is required")
	}
	if c.Clock == nil {
		return nil, errors.New("clock is required")
	}
	if c.Logger == nil {
		c.Logger = logger.NewNop()
	}
	return &Quoter{
		config:    cfg,
		venue:     c.Venue,
		feeds:     c.Feeds,
		store:     c.Store,
		clock:     c.Clock,
		logger:    c.Logger,
		monitor:   c.Monitor,
		validator: oracle.NewValidator(cfg.MaxStaleness),
		locks:     make(map[order.Key]*sync.Mutex),
	}, nil
}

func (q *Quoter) lock(key order.Key) func() {
	q.mu.Lock()
	l, ok := q.locks[key]
	if !ok {
		l = &sync.Mutex{}
		q.locks[key] = l
	}
	q.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// InitRequest 创建报价状态的参数
type InitRequest struct {
	Trader                market.Address
	Market                market.Address
	QuoteEdgeInBps        uint64
	QuoteSizeInQuoteAtoms uint64
	Behavior              strategy.PriceImprovementBehavior
	PostOnly              bool
}

// Initialize 为 (trader, market) 创建 StrategyState。
func (q *Quoter) Initialize(ctx context.Context, req InitRequest) (order.StrategyState, error) {
	key := order.Key{Trader: req.Trader, Market: req.Market}
	defer q.lock(key)()

	st, err := order.NewStrategyState(req.Trader, req.Market, order.InitParams{
		QuoteEdgeInBps:        req.QuoteEdgeInBps,
		QuoteSizeInQuoteAtoms: req.QuoteSizeInQuoteAtoms,
		Behavior:              req.Behavior,
		PostOnly:              req.PostOnly,
	})
	if err != nil {
		return order.StrategyState{}, err
	}
	if _, err := q.loadFacts(ctx, req.Market); err != nil {
		return order.StrategyState{}, err
	}
	st.LastUpdateHeight = q.clock.Height()
	st.LastUpdateUnix = q.clock.Now().Unix()
	if err := q.store.Create(ctx, st); err != nil {
		if errors.Is(err, store.ErrExists) {
			return order.StrategyState{}, fmt.Errorf("%w: %s", ErrStateExists, key)
		}
		return order.StrategyState{}, err
	}

	q.logger.Info("strategy state initialized",
		zap.String("trader", req.Trader.String()),
		zap.String("market", req.Market.String()),
		zap.Uint64("edge_bps", req.QuoteEdgeInBps),
		zap.Uint64("quote_size_atoms", req.QuoteSizeInQuoteAtoms),
		zap.String("behavior", req.Behavior.String()),
		zap.Bool("post_only", req.PostOnly))
	return st, nil
}

// UpdateRequest 一次报价更新的输入。Params 为稀疏参数更新。
type UpdateRequest struct {
	Trader market.Address
	Market market.Address

	// FairPriceInTicks 直接模式下的公允价，UseOracle 时忽略
	FairPriceInTicks uint64
	UseOracle        bool
	BaseFeedID       string
	QuoteFeedID      string

	Params order.Params
	Margin uint64
}

// Result 一次成功更新的结果。
type Result struct {
	InvocationID     string
	NoOp             bool
	FairPriceInTicks uint64
	Desired          strategy.DesiredQuote
	Plan             order.Plan
	Placed           []market.OrderID
	State            order.StrategyState
}

// UpdateQuotes 公允价 -> 报价 -> 价格改善 -> 数量 -> 对账 -> 撤单/下单 -> 写回。
// 任何一步失败都不写回状态。
func (q *Quoter) UpdateQuotes(ctx context.Context, req UpdateRequest) (Result, error) {
	key := order.Key{Trader: req.Trader, Market: req.Market}
	defer q.lock(key)()

	start := time.Now()
	res := Result{InvocationID: uuid.NewString()}
	log := q.logger.WithFields(map[string]interface{}{
		"invocation_id": res.InvocationID,
		"trader":        req.Trader.String(),
		"market":        req.Market.String(),
	})

	err := q.update(ctx, req, &res, log)
	switch {
	case err != nil:
		q.recordFailure(err)
		log.LogError(err, map[string]interface{}{"stage": "update_quotes"})
		q.recordUpdate("error", start)
	case res.NoOp:
		q.recordUpdate("noop", start)
	default:
		q.recordUpdate("ok", start)
	}
	return res, err
}

func (q *Quoter) update(ctx context.Context, req UpdateRequest, res *Result, log *logger.Logger) error {
	st, err := q.store.Load(ctx, order.Key{Trader: req.Trader, Market: req.Market})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s/%s", ErrStateNotFound, req.Trader, req.Market)
		}
		return err
	}
	if st, err = st.WithParams(req.Params); err != nil {
		return err
	}
	height := q.clock.Height()
	st.LastUpdateHeight = height
	st.LastUpdateUnix = q.clock.Now().Unix()

	facts, err := q.loadFacts(ctx, req.Market)
	if err != nil {
		return err
	}
	fair, err := q.fairPrice(ctx, req, facts, height, log)
	if err != nil {
		return err
	}
	res.FairPriceInTicks = fair

	eng, err := strategy.NewEngine(st.EngineConfig(req.Margin))
	if err != nil {
		return err
	}
	book, err := q.venue.Snapshot(ctx, req.Market)
	if err != nil {
		return fmt.Errorf("%w: snapshot: %v", market.ErrMarketDeserializationFailed, err)
	}
	bbo := strategy.BBO{
		BestBid: book.BestNonSelf(market.Bid, req.Trader),
		BestAsk: book.BestNonSelf(market.Ask, req.Trader),
	}
	desired, err := eng.Quote(fair, bbo, facts)
	if err != nil {
		return err
	}
	res.Desired = desired
	if q.monitor != nil {
		q.monitor.UpdateQuote(req.Market.String(), fair, desired.BidPriceInTicks, desired.AskPriceInTicks)
	}
	log.LogQuote("computed", map[string]interface{}{
		"fair_ticks":     fair,
		"best_bid":       bbo.BestBid,
		"best_ask":       bbo.BestAsk,
		"bid_ticks":      desired.BidPriceInTicks,
		"ask_ticks":      desired.AskPriceInTicks,
		"bid_lots":       desired.BidSizeInBaseLots,
		"ask_lots":       desired.AskSizeInBaseLots,
		"bid_price":      facts.TicksToPrice(desired.BidPriceInTicks).String(),
		"ask_price":      facts.TicksToPrice(desired.AskPriceInTicks).String(),
		"behavior":       st.Behavior.String(),
		"edge_bps":       st.QuoteEdgeInBps,
		"quote_notional": facts.QuoteAtomsToUnits(st.QuoteSizeInQuoteAtoms).String(),
	})

	plan := order.Reconcile(st, desired, book)
	res.Plan = plan
	for _, d := range []order.SideDecision{plan.Bid, plan.Ask} {
		if q.monitor != nil {
			q.monitor.RecordSideOutcome(d.Side.String(), d.Outcome.String())
		}
	}

	if plan.NoOp() {
		// 参数更新和时间戳仍然写回
		if err := q.store.Save(ctx, st); err != nil {
			return err
		}
		res.NoOp = true
		res.State = st
		log.Debug("no orders to update")
		return nil
	}

	if len(plan.Cancels) > 0 {
		if err := q.venue.SubmitCancels(ctx, order.CancelRequest{Trader: req.Trader, Market: req.Market, IDs: plan.Cancels}); err != nil {
			return fmt.Errorf("%w: cancel: %v", order.ErrSubmissionFailed, err)
		}
		for _, id := range plan.Cancels {
			log.LogOrder("cancel", id.String(), nil)
		}
		if q.monitor != nil {
			q.monitor.RecordOrdersCanceled(len(plan.Cancels))
		}
	}

	if sub, ok := order.BuildSubmission(st, plan); ok {
		placed, err := q.venue.SubmitOrders(ctx, sub)
		if err != nil {
			return fmt.Errorf("%w: place: %v", order.ErrSubmissionFailed, err)
		}
		res.Placed = placed
		for _, id := range placed {
			log.LogOrder("placed", id.String(), map[string]interface{}{"batch": sub.Batch != nil})
		}
		if q.monitor != nil {
			q.monitor.RecordOrdersPlaced(len(placed))
		}
	}

	after, err := q.venue.Snapshot(ctx, req.Market)
	if err != nil {
		return fmt.Errorf("%w: re-read: %v", market.ErrMarketDeserializationFailed, err)
	}
	next := order.ApplyPlacements(st, plan, res.Placed, after)
	if err := q.store.Save(ctx, next); err != nil {
		return err
	}
	res.State = next
	return nil
}

// CancelAll 撤掉该交易员在该市场的全部挂单并清空记录，停止时调用。
func (q *Quoter) CancelAll(ctx context.Context, trader, mkt market.Address) (int, error) {
	key := order.Key{Trader: trader, Market: mkt}
	defer q.lock(key)()

	st, err := q.store.Load(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrStateNotFound, key)
		}
		return 0, err
	}
	book, err := q.venue.Snapshot(ctx, mkt)
	if err != nil {
		return 0, err
	}

	var ids []market.OrderID
	if lister, ok := book.(interface {
		OrdersOf(market.Address) []market.OrderID
	}); ok {
		ids = lister.OrdersOf(trader)
	} else {
		for _, side := range []market.Side{market.Bid, market.Ask} {
			d := st.Descriptor(side)
			if d.IsZero() {
				continue
			}
			if _, found := book.Resting(side, d.OrderID()); found {
				ids = append(ids, d.OrderID())
			}
		}
	}
	if len(ids) > 0 {
		if err := q.venue.SubmitCancels(ctx, order.CancelRequest{Trader: trader, Market: mkt, IDs: ids}); err != nil {
			return 0, fmt.Errorf("%w: cancel all: %v", order.ErrSubmissionFailed, err)
		}
		if q.monitor != nil {
			q.monitor.RecordOrdersCanceled(len(ids))
		}
	}
	st.Bid = order.OrderDescriptor{}
	st.Ask = order.OrderDescriptor{}
	if err := q.store.Save(ctx, st); err != nil {
		return len(ids), err
	}
	q.logger.Info("cancelled all orders", zap.String("key", key.String()), zap.Int("count", len(ids)))
	return len(ids), nil
}

func (q *Quoter) loadFacts(ctx context.Context, mkt market.Address) (market.Facts, error) {
	acc, err := q.venue.MarketAccount(ctx, mkt)
	if err != nil {
		return market.Facts{}, fmt.Errorf("%w: load %s: %v", market.ErrInvalidMarket, mkt, err)
	}
	return market.LoadFacts(acc, q.config.ProgramOwner)
}

func (q *Quoter) fairPrice(ctx context.Context, req UpdateRequest, facts market.Facts, height uint64, log *logger.Logger) (uint64, error) {
	if !req.UseOracle {
		return strategy.DirectFairPrice(req.FairPriceInTicks), nil
	}
	if q.feeds == nil {
		return 0, fmt.Errorf("%w: no price feed reader configured", oracle.ErrFeedUnavailable)
	}
	base, err := q.trustedPrice(ctx, req.BaseFeedID, height, log)
	if err != nil {
		return 0, err
	}
	quote, err := q.trustedPrice(ctx, req.QuoteFeedID, height, log)
	if err != nil {
		return 0, err
	}
	return strategy.OracleFairPrice(base, quote, facts)
}

func (q *Quoter) trustedPrice(ctx context.Context, feedID string, height uint64, log *logger.Logger) (oracle.TrustedPrice, error) {
	r, err := q.feeds.ReadPriceFeed(ctx, feedID)
	if err == nil {
		var p oracle.TrustedPrice
		if p, err = q.validator.Validate(r, height); err == nil {
			log.LogOracle("accepted", feedID, map[string]interface{}{
				"price": r.Price, "expo": r.Exponent, "conf": r.Confidence, "valid_height": r.ValidHeight,
			})
			return p, nil
		}
	}
	kind := ErrorKind(err)
	if q.monitor != nil {
		q.monitor.RecordOracleReject(feedID, kind)
	}
	log.LogOracle("rejected", feedID, map[string]interface{}{"reason": kind, "height": height})
	return oracle.TrustedPrice{}, err
}

func (q *Quoter) recordUpdate(result string, start time.Time) {
	if q.monitor != nil {
		q.monitor.RecordUpdate(result, time.Since(start))
	}
}

func (q *Quoter) recordFailure(err error) {
	if q.monitor != nil {
		q.monitor.RecordFailure(ErrorKind(err))
	}
}

var errorKinds = []struct {
	err  error
	kind string
}{
	{strategy.ErrInvalidEdge, "invalid_edge"},
	{strategy.ErrInvalidBehavior, "invalid_behavior"},
	{strategy.ErrArithmetic, "arithmetic"},
	{market.ErrInvalidMarket, "invalid_market"},
	{market.ErrMarketDeserializationFailed, "market_deserialization_failed"},
	{oracle.ErrStaleFeed, "stale_feed"},
	{oracle.ErrFeedNotTrading, "feed_not_trading"},
	{oracle.ErrNegativePrice, "negative_price"},
	{oracle.ErrLowConfidence, "low_confidence"},
	{oracle.ErrBadExponent, "bad_exponent"},
	{oracle.ErrInvalidFeedLayout, "invalid_feed_layout"},
	{oracle.ErrFeedUnavailable, "feed_unavailable"},
	{order.ErrSubmissionFailed, "submission_failed"},
	{ErrStateNotFound, "state_not_found"},
	{ErrStateExists, "state_exists"},
}

// ErrorKind 错误分类，用于指标标签。
func ErrorKind(err error) string {
	if err == nil {
		return "none"
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "other"
}
