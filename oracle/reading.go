package oracle

import (
	"errors"
	"fmt"
	"math/bits"
)

var (
	ErrStaleFeed         = errors.New("price feed is stale")
	ErrFeedNotTrading    = errors.New("price feed is not trading")
	ErrNegativePrice     = errors.New("price feed reports a non-positive price")
	ErrLowConfidence     = errors.New("price feed confidence interval too wide")
	ErrInvalidFeedLayout = errors.New("invalid price feed layout")
	ErrFeedUnavailable   = errors.New("price feed unavailable")
	ErrBadExponent       = errors.New("price feed exponent out of range")
)

// DefaultMaxStaleness 读数有效高度与当前高度之差达到该值即视为过期。
const DefaultMaxStaleness uint64 = 50

// ConfidenceDivisor 置信区间必须小于价格的 1/10。
const ConfidenceDivisor uint64 = 10

// MaxExponent 指数绝对值上限，10^18 仍在 u64 内。
const MaxExponent int32 = 18

// Status 预言机聚合价状态。
type Status uint32

const (
	StatusUnknown Status = iota
	StatusTrading
	StatusHalted
	StatusAuction
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusTrading:
		return "trading"
	case StatusHalted:
		return "halted"
	case StatusAuction:
		return "auction"
	default:
		return fmt.Sprintf("status(%d)", uint32(s))
	}
}

// Reading 未经校验的原始读数。
type Reading struct {
	FeedID      string `json:"feed_id"`
	Price       int64  `json:"price"`
	Confidence  uint64 `json:"conf"`
	Status      Status `json:"status"`
	Exponent    int32  `json:"expo"`
	ValidHeight uint64 `json:"valid_slot"`
}

// TrustedPrice 通过校验的价格，price * 10^exponent。
type TrustedPrice struct {
	Price    int64
	Exponent int32
}

// Validator 读数信任检查，无副作用。
type Validator struct {
	MaxStaleness uint64
}

// NewValidator maxStaleness 为 0 时使用默认值。
func NewValidator(maxStaleness uint64) Validator {
	if maxStaleness == 0 {
		maxStaleness = DefaultMaxStaleness
	}
	return Validator{MaxStaleness: maxStaleness}
}

// Validate 依次检查 新鲜度 -> 状态 -> 符号 -> 指数 -> 置信区间。
// 有效高度在当前高度之后的读数按年龄 0 处理。
func (v Validator) Validate(r Reading, currentHeight uint64) (TrustedPrice, error) {
	maxStale := v.MaxStaleness
	if maxStale == 0 {
		maxStale = DefaultMaxStaleness
	}
	if currentHeight > r.ValidHeight && currentHeight-r.ValidHeight >= maxStale {
		return TrustedPrice{}, fmt.Errorf("%w: feed %s valid at %d, now %d", ErrStaleFeed, r.FeedID, r.ValidHeight, currentHeight)
	}
	if r.Status != StatusTrading {
		return TrustedPrice{}, fmt.Errorf("%w: feed %s status %s", ErrFeedNotTrading, r.FeedID, r.Status)
	}
	if r.Price <= 0 {
		return TrustedPrice{}, fmt.Errorf("%w: feed %s price %d", ErrNegativePrice, r.FeedID, r.Price)
	}
	if r.Exponent > MaxExponent || r.Exponent < -MaxExponent {
		return TrustedPrice{}, fmt.Errorf("%w: feed %s expo %d", ErrBadExponent, r.FeedID, r.Exponent)
	}
	hi, scaled := bits.Mul64(r.Confidence, ConfidenceDivisor)
	if hi != 0 || scaled > uint64(r.Price) {
		return TrustedPrice{}, fmt.Errorf("%w: feed %s conf %d price %d", ErrLowConfidence, r.FeedID, r.Confidence, r.Price)
	}
	return TrustedPrice{Price: r.Price, Exponent: r.Exponent}, nil
}

// Validate 使用默认新鲜度窗口。
func Validate(r Reading, currentHeight uint64) (TrustedPrice, error) {
	return NewValidator(DefaultMaxStaleness).Validate(r, currentHeight)
}
