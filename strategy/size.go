package strategy

import "quote-engine/market"

// SizeInQuoteLots 名义金额（quote atoms）折算成 quote lots，向下取整。
func SizeInQuoteLots(quoteSizeInQuoteAtoms uint64, facts market.Facts) (uint64, error) {
	if facts.QuoteLotSize == 0 {
		return 0, arithErr("quote lot size is zero")
	}
	return quoteSizeInQuoteAtoms / facts.QuoteLotSize, nil
}

// SizeInBaseLots = floor(quoteLots * baseLotsPerBaseUnit / (priceInTicks * tickSize))。
func SizeInBaseLots(sizeInQuoteLots, priceInTicks uint64, facts market.Facts) (uint64, error) {
	if priceInTicks == 0 {
		return 0, arithErr("price is zero ticks")
	}
	return mulDiv128(sizeInQuoteLots, facts.BaseLotsPerBaseUnit, priceInTicks, facts.TickSizeInQuoteLotsPerBaseUnit)
}

// Sizes 计算双边下单数量。
func Sizes(quoteSizeInQuoteAtoms, bidPriceInTicks, askPriceInTicks uint64, facts market.Facts) (bidSize, askSize uint64, err error) {
	lots, err := SizeInQuoteLots(quoteSizeInQuoteAtoms, facts)
	if err != nil {
		return 0, 0, err
	}
	if bidSize, err = SizeInBaseLots(lots, bidPriceInTicks, facts); err != nil {
		return 0, 0, err
	}
	if askSize, err = SizeInBaseLots(lots, askPriceInTicks, facts); err != nil {
		return 0, 0, err
	}
	return bidSize, askSize, nil
}
