// Package wad bridges between big.Int amounts at 1e18 fixed-point scale
// and shopspring decimals used for transcendental price math.
package wad

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits in a wad.
const Scale = 18

// One is 1e18, the wad unit. Treat as read-only.
var One = new(big.Int).Exp(big.NewInt(10), big.NewInt(Scale), nil)

// FromInt64 converts a whole-unit count into a wad.
func FromInt64(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), One)
}

// ToDecimal interprets a wad as a decimal value.
func ToDecimal(w *big.Int) decimal.Decimal {
	if w == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(w, -Scale)
}

// FromDecimal converts a decimal into a wad, truncating excess precision.
func FromDecimal(d decimal.Decimal) *big.Int {
	shifted := d.Shift(Scale)
	return shifted.BigInt()
}

// MulDiv computes value*num/den without intermediate overflow.
func MulDiv(value, num, den *big.Int) *big.Int {
	if den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(value, num)
	return out.Quo(out, den)
}

// Bps applies a basis-point fraction to value (value*bps/10000).
func Bps(value *big.Int, bps uint32) *big.Int {
	return MulDiv(value, big.NewInt(int64(bps)), big.NewInt(10_000))
}

// Min returns the smaller of a and b as a fresh value.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
