package strategy

import (
	"math/big"

	"quote-engine/market"
	"quote-engine/oracle"
)

// DirectFairPrice 调用方直接给出公允价（quote atoms / raw base unit），原样使用。
func DirectFairPrice(fairPriceInQuoteAtomsPerRawBaseUnit uint64) uint64 {
	return fairPriceInQuoteAtomsPerRawBaseUnit
}

// OracleFairPrice 用两路已校验的预言机价格推导公允价（tick）：
//
//	fair = base * 10^quoteDecimals * rawBaseUnitsPerBaseUnit / (tickSizeInQuoteAtomsPerBaseUnit * quote)
//
// base/quote 先各自归一化到 oracle.Scale，整个计算在大整数上完成后向下取整。
func OracleFairPrice(base, quote oracle.TrustedPrice, facts market.Facts) (uint64, error) {
	basePrice := oracle.Normalize(base)
	quotePrice := oracle.Normalize(quote)
	if quotePrice.Sign() == 0 {
		return 0, arithErr("quote oracle price normalizes to zero")
	}
	tickAtoms := new(big.Int).Mul(
		new(big.Int).SetUint64(facts.TickSizeInQuoteLotsPerBaseUnit),
		new(big.Int).SetUint64(facts.QuoteLotSize),
	)
	if tickAtoms.Sign() == 0 {
		return 0, arithErr("tick size in quote atoms is zero")
	}

	num := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(facts.QuoteDecimals)), nil)
	num.Mul(num, basePrice)
	num.Mul(num, new(big.Int).SetUint64(facts.RawBaseUnitsPerBaseUnit))
	den := tickAtoms.Mul(tickAtoms, quotePrice)

	fair := num.Quo(num, den)
	if !fair.IsUint64() {
		return 0, arithErr("fair price %s ticks does not fit in 64 bits", fair.String())
	}
	return fair.Uint64(), nil
}
