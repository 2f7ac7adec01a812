package market

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ExpectedDiscriminant 市场账户头部的魔数，不匹配的数据一律不信任。
const ExpectedDiscriminant uint64 = 8167313896524341111

// 盘口某一侧没有他人挂单时的哨兵值（tick）。
const (
	NoBidInTicks uint64 = 1
	NoAskInTicks uint64 = math.MaxUint64
)

var (
	ErrInvalidMarket               = errors.New("invalid market")
	ErrMarketDeserializationFailed = errors.New("market deserialization failed")
)

// Address 32 字节身份（交易员、市场、程序所有者）。
type Address [32]byte

// ParseAddress 解析 64 位十六进制字符串。
func ParseAddress(s string) (Address, error) {
	var a Address
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return a, fmt.Errorf("parse address %q: %w", s, err)
	}
	if len(raw) != len(a) {
		return a, fmt.Errorf("parse address %q: want %d bytes, got %d", s, len(a), len(raw))
	}
	copy(a[:], raw)
	return a, nil
}

// MustParseAddress 仅用于测试和常量。
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string { return hex.EncodeToString(a[:]) }

func (a Address) IsZero() bool { return a == Address{} }

// Facts 每次调用重新读取的市场常量，不持久化。
type Facts struct {
	Discriminant                   uint64
	BaseDecimals                   uint32
	QuoteDecimals                  uint32
	BaseLotSize                    uint64 // base atoms / base lot
	QuoteLotSize                   uint64 // quote atoms / quote lot
	TickSizeInQuoteLotsPerBaseUnit uint64
	BaseLotsPerBaseUnit            uint64
	RawBaseUnitsPerBaseUnit        uint64
}

// Validate 魔数不对视为非法市场；常量为零视为头部损坏。
func (f Facts) Validate() error {
	if f.Discriminant != ExpectedDiscriminant {
		return fmt.Errorf("%w: discriminant %d", ErrInvalidMarket, f.Discriminant)
	}
	if f.QuoteLotSize == 0 || f.BaseLotSize == 0 || f.TickSizeInQuoteLotsPerBaseUnit == 0 ||
		f.BaseLotsPerBaseUnit == 0 || f.RawBaseUnitsPerBaseUnit == 0 {
		return fmt.Errorf("%w: zero lot/tick constant", ErrInvalidMarket)
	}
	return nil
}

// TickSizeInQuoteAtomsPerBaseUnit tick 折算成 quote atoms。
func (f Facts) TickSizeInQuoteAtomsPerBaseUnit() uint64 {
	return f.TickSizeInQuoteLotsPerBaseUnit * f.QuoteLotSize
}
