package sim

import (
	"context"

	"quote-engine/oracle"
)

// Heighter 当前高度。
type Heighter interface {
	Height() uint64
}

// StampedFeeds 模拟盘的价格源：读数的有效高度总是当前高度，避免固定读数过期。
type StampedFeeds struct {
	Source *oracle.StaticSource
	Clock  Heighter
}

func (f StampedFeeds) ReadPriceFeed(ctx context.Context, feedID string) (oracle.Reading, error) {
	r, err := f.Source.ReadPriceFeed(ctx, feedID)
	if err != nil {
		return r, err
	}
	r.ValidHeight = f.Clock.Height()
	return r, nil
}
