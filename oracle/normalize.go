package oracle

import "math/big"

// Scale 两路价格归一化到同一个定点基数。
var Scale = big.NewInt(1_000_000_000_000)

// Normalize 返回 Scale * price * 10^exponent（向下取整）。
// 指数超出 ±MaxExponent 时截断到边界，正常读数在 Validate 阶段已被拒绝。
func Normalize(p TrustedPrice) *big.Int {
	p.Exponent = max(-MaxExponent, min(p.Exponent, MaxExponent))
	v := new(big.Int).Mul(Scale, big.NewInt(p.Price))
	if p.Exponent >= 0 {
		return v.Mul(v, pow10(int64(p.Exponent)))
	}
	return v.Quo(v, pow10(-int64(p.Exponent)))
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}
