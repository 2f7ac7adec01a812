package strategy

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrArithmetic 所有溢出/下溢/除零都归到这一类，调用方不重试。
var ErrArithmetic = errors.New("arithmetic overflow or underflow")

func arithErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrArithmetic, fmt.Sprintf(format, args...))
}

// mulDiv 计算 floor(a*b/c)，中间结果保留 128 位。
func mulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, arithErr("division by zero (%d*%d/0)", a, b)
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return 0, arithErr("%d*%d/%d does not fit in 64 bits", a, b, c)
	}
	q, _ := bits.Div64(hi, lo, c)
	return q, nil
}

// mulDiv128 计算 floor(a*b/(c*d))，分母同样允许超过 64 位。
// 分母溢出 128 位时商必然为 0。
func mulDiv128(a, b, c, d uint64) (uint64, error) {
	if c == 0 || d == 0 {
		return 0, arithErr("division by zero (%d*%d/(%d*%d))", a, b, c, d)
	}
	dh, dl := bits.Mul64(c, d)
	if dh == 0 {
		return mulDiv(a, b, dl)
	}
	nh, nl := bits.Mul64(a, b)
	// 分母 >= 2^64，商 < 2^64，用长除法逐位求商
	var q uint64
	var rh, rl uint64
	for i := 127; i >= 0; i-- {
		// r = r<<1 | bit_i(n)
		carry := rh >> 63
		rh = rh<<1 | rl>>63
		rl <<= 1
		if i >= 64 {
			rl |= (nh >> uint(i-64)) & 1
		} else {
			rl |= (nl >> uint(i)) & 1
		}
		if carry != 0 || rh > dh || (rh == dh && rl >= dl) {
			var borrow uint64
			rl, borrow = bits.Sub64(rl, dl, 0)
			rh, _ = bits.Sub64(rh, dh, borrow)
			if i < 64 {
				q |= 1 << uint(i)
			}
		}
	}
	return q, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, arithErr("%d+%d overflows", a, b)
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, arithErr("%d-%d underflows", a, b)
	}
	return a - b, nil
}
