package market

import "github.com/shopspring/decimal"

// TicksToPrice 把 tick 价格换算成 "quote 单位 / base 单位" 的十进制价格，仅用于展示。
func (f Facts) TicksToPrice(priceInTicks uint64) decimal.Decimal {
	atoms := decimal.NewFromUint64(priceInTicks).Mul(decimal.NewFromUint64(f.TickSizeInQuoteAtomsPerBaseUnit()))
	return atoms.Shift(-int32(f.QuoteDecimals))
}

// LotsToBase 把 base lots 换算成 base 单位。
func (f Facts) LotsToBase(sizeInBaseLots uint64) decimal.Decimal {
	if f.BaseLotsPerBaseUnit == 0 {
		return decimal.Zero
	}
	return decimal.NewFromUint64(sizeInBaseLots).Div(decimal.NewFromUint64(f.BaseLotsPerBaseUnit))
}

// QuoteAtomsToUnits 把 quote atoms 换算成 quote 单位。
func (f Facts) QuoteAtomsToUnits(atoms uint64) decimal.Decimal {
	return decimal.NewFromUint64(atoms).Shift(-int32(f.QuoteDecimals))
}
