package strategy

import (
	"errors"
	"math"
	"testing"

	"quote-engine/oracle"
)

func TestDirectFairPricePassesThrough(t *testing.T) {
	if got := DirectFairPrice(123_456); got != 123_456 {
		t.Fatalf("got %d", got)
	}
}

func TestOracleFairPrice(t *testing.T) {
	cases := []struct {
		name        string
		base, quote oracle.TrustedPrice
		want        uint64
	}{
		// 150 / 1 * 10^6 / 10
		{"same exponent", oracle.TrustedPrice{Price: 15_000_000_000, Exponent: -8}, oracle.TrustedPrice{Price: 100_000_000, Exponent: -8}, 15_000_000},
		{"mixed exponents", oracle.TrustedPrice{Price: 150, Exponent: 0}, oracle.TrustedPrice{Price: 1_000_000, Exponent: -6}, 15_000_000},
		{"positive exponent", oracle.TrustedPrice{Price: 15, Exponent: 1}, oracle.TrustedPrice{Price: 2, Exponent: 0}, 7_500_000},
		// 1.0001 / 0.9999 -> floor
		{"floors", oracle.TrustedPrice{Price: 10_001, Exponent: -4}, oracle.TrustedPrice{Price: 9_999, Exponent: -4}, 100_020},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := OracleFairPrice(c.base, c.quote, testFacts())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.want {
				t.Fatalf("fair = %d, want %d", got, c.want)
			}
		})
	}
}

func TestOracleFairPriceErrors(t *testing.T) {
	one := oracle.TrustedPrice{Price: 1, Exponent: 0}
	// quote 归一化后为 0
	tiny := oracle.TrustedPrice{Price: 1, Exponent: -13}
	if _, err := OracleFairPrice(one, tiny, testFacts()); !errors.Is(err, ErrArithmetic) {
		t.Fatalf("expected arithmetic error for zero quote, got %v", err)
	}

	huge := oracle.TrustedPrice{Price: math.MaxInt64, Exponent: 10}
	if _, err := OracleFairPrice(huge, one, testFacts()); !errors.Is(err, ErrArithmetic) {
		t.Fatalf("expected arithmetic error for overflow, got %v", err)
	}

	// 越界指数在归一化时截断，立即返回
	extreme := oracle.TrustedPrice{Price: 1, Exponent: -200_000_000}
	if _, err := OracleFairPrice(one, extreme, testFacts()); !errors.Is(err, ErrArithmetic) {
		t.Fatalf("expected arithmetic error for extreme exponent, got %v", err)
	}

	facts := testFacts()
	facts.TickSizeInQuoteLotsPerBaseUnit = 0
	if _, err := OracleFairPrice(one, one, facts); !errors.Is(err, ErrArithmetic) {
		t.Fatalf("expected arithmetic error for zero tick, got %v", err)
	}
}
