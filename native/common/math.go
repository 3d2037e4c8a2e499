package common

import "math/big"

// Wad is the 1e18 fixed-point scale used for rates, fees and the
// distribution accumulator.
var Wad = MustBigInt("1000000000000000000")

func MustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// MulDiv returns floor(a*b/d). A nil operand or zero divisor yields zero.
func MulDiv(a, b, d *big.Int) *big.Int {
	if a == nil || b == nil || d == nil || d.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, d)
}

// MulDivUp returns ceil(a*b/d) for non-negative operands.
func MulDivUp(a, b, d *big.Int) *big.Int {
	if a == nil || b == nil || d == nil || d.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	q, r := new(big.Int).QuoRem(product, d, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// Copy returns a fresh copy of v, treating nil as zero.
func Copy(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// MinInt returns a copy of the smaller of a and b.
func MinInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
