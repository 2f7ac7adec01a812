package strategy

import (
	"errors"
	"math"
	"testing"

	"quote-engine/market"
)

func TestImprove(t *testing.T) {
	book := BBO{BestBid: 99_950, BestAsk: 100_050}
	cases := []struct {
		name     string
		behavior PriceImprovementBehavior
		bid, ask uint64
		bbo      BBO
		margin   uint64
		wantBid  uint64
		wantAsk  uint64
	}{
		{"join keeps wider own quote", Join, 99_900, 100_100, book, 0, 99_900, 100_100},
		{"join tightens to book", Join, 99_990, 100_010, book, 0, 99_950, 100_050},
		{"dime one tick inside", Dime, 99_990, 100_010, book, 0, 99_951, 100_049},
		{"dime keeps wider own quote", Dime, 99_900, 100_100, book, 0, 99_900, 100_100},
		{"ignore", Ignore, 99_990, 100_010, book, 0, 99_990, 100_010},
		{"ubermensch within margin", Ubermensch, 99_900, 100_100, book, 100, 99_900, 100_100},
		{"ubermensch book outside margin", Ubermensch, 99_900, 100_100, book, 20, 99_950, 100_050},
		{"ubermensch clamps like join", Ubermensch, 99_990, 100_010, book, 100, 99_950, 100_050},
		{"join empty book", Join, 99_900, 100_100, EmptyBBO(), 0, market.NoBidInTicks, market.NoAskInTicks},
		{"ignore empty book", Ignore, 99_900, 100_100, EmptyBBO(), 0, 99_900, 100_100},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			bid, ask, err := Improve(c.behavior, c.bid, c.ask, c.bbo, 100_000, c.margin)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if bid != c.wantBid || ask != c.wantAsk {
				t.Fatalf("bid/ask = %d/%d, want %d/%d", bid, ask, c.wantBid, c.wantAsk)
			}
		})
	}
}

func TestImproveDimeNeverMoreThanOneTick(t *testing.T) {
	for _, bestBid := range []uint64{2, 3, 10, 99_950, 1 << 40} {
		bestAsk := bestBid + 100
		// 自身报价比盘口激进得多
		bid, ask, err := Improve(Dime, bestAsk, bestBid, BBO{BestBid: bestBid, BestAsk: bestAsk}, bestBid+50, 0)
		if err != nil {
			t.Fatalf("bestBid=%d: %v", bestBid, err)
		}
		if bid > bestBid+1 {
			t.Fatalf("bestBid=%d: bid %d improves by more than one tick", bestBid, bid)
		}
		if ask < bestAsk-1 {
			t.Fatalf("bestAsk=%d: ask %d improves by more than one tick", bestAsk, ask)
		}
	}
}

func TestImproveArithmeticGuards(t *testing.T) {
	cases := []struct {
		name     string
		behavior PriceImprovementBehavior
		bbo      BBO
		fair     uint64
		margin   uint64
	}{
		{"dime best ask zero", Dime, BBO{BestBid: 1, BestAsk: 0}, 100, 0},
		{"dime best ask one", Dime, BBO{BestBid: 1, BestAsk: 1}, 100, 0},
		{"dime best bid at max", Dime, BBO{BestBid: math.MaxUint64, BestAsk: math.MaxUint64}, 100, 0},
		{"ubermensch upper overflow", Ubermensch, EmptyBBO(), math.MaxUint64, 1},
		{"ubermensch lower underflow", Ubermensch, EmptyBBO(), 5, 6},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, _, err := Improve(c.behavior, 90, 110, c.bbo, c.fair, c.margin); !errors.Is(err, ErrArithmetic) {
				t.Fatalf("expected arithmetic error, got %v", err)
			}
		})
	}
}

func TestImproveUnknownBehavior(t *testing.T) {
	if _, _, err := Improve(PriceImprovementBehavior(4), 90, 110, EmptyBBO(), 100, 0); !errors.Is(err, ErrInvalidBehavior) {
		t.Fatalf("expected invalid behavior, got %v", err)
	}
}
