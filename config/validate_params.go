package config

import (
	"fmt"

	"quote-engine/market"
)

// ValidateStrategy 校验报价参数；热更新和全量加载共用。
func ValidateStrategy(s StrategyConfig) error {
	if s.QuoteEdgeInBps == 0 {
		return ErrInvalid("strategy.quote_edge_bps must be > 0")
	}
	if !s.Behavior.Valid() {
		return ErrInvalid(fmt.Sprintf("strategy.behavior %d is not a known behavior", s.Behavior.Uint8()))
	}
	if s.Interval < 0 {
		return ErrInvalid("strategy.interval must be >= 0")
	}
	if s.MaxUpdates < 0 {
		return ErrInvalid("strategy.max_updates must be >= 0")
	}
	return nil
}

// ValidateVenue 市场常量不能为零；挂单的方向、交易员和数量必须合法。
func ValidateVenue(v VenueConfig) error {
	if err := v.Facts().Validate(); err != nil {
		return ErrInvalid(fmt.Sprintf("venue: %v", err))
	}
	if v.SlotDuration <= 0 {
		return ErrInvalid("venue.slot_duration must be > 0")
	}
	for i, l := range v.Levels {
		if _, err := market.ParseSide(l.Side); err != nil {
			return ErrInvalid(fmt.Sprintf("venue.levels[%d]: %v", i, err))
		}
		if _, err := market.ParseAddress(l.Trader); err != nil {
			return ErrInvalid(fmt.Sprintf("venue.levels[%d].trader: %v", i, err))
		}
		if l.PriceInTicks == 0 || l.SizeInBaseLots == 0 {
			return ErrInvalid(fmt.Sprintf("venue.levels[%d] price/size must be > 0", i))
		}
	}
	if v.TakerInterval < 0 {
		return ErrInvalid("venue.taker_interval must be >= 0")
	}
	if v.TakerInterval > 0 && v.TakerSizeInBaseLots == 0 {
		return ErrInvalid("venue.taker_size_base_lots must be > 0 when taker_interval is set")
	}
	return nil
}

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }
