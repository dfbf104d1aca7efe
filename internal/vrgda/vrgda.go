// Package vrgda implements continuous Dutch-auction pricing: the issue price
// decays exponentially with elapsed time and rises with units already sold,
// so that sales track a one-per-period schedule at the target price.
package vrgda

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"liquidityForge/internal/wad"
)

// precision is the number of decimal digits kept through exp/ln. Prices are
// wad-scaled (18 fractional digits); 32 digits leaves ample headroom.
const precision = 32

var (
	// ErrDecayRate is returned for decay rates outside (0, 1).
	ErrDecayRate = errors.New("decay rate must be in (0, 1)")
	// ErrSoldCount is returned for non-positive sale counts.
	ErrSoldCount = errors.New("sold count must be positive")
)

// DecayConstant derives the (negative) decay constant ln(1-rate) from the
// per-period price decay rate. Computed once at configuration time.
func DecayConstant(rate decimal.Decimal) (decimal.Decimal, error) {
	one := decimal.New(1, 0)
	if rate.Sign() <= 0 || rate.Cmp(one) >= 0 {
		return decimal.Zero, ErrDecayRate
	}
	k, err := one.Sub(rate).Ln(precision)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decay constant: %w", err)
	}
	return k, nil
}

// TargetSaleTime returns ln(sold)/|k|: the time, in periods since start, at
// which the sold-th unit should sell for the schedule to be on pace. The
// schedule divides by the magnitude of the decay constant — the sign lives
// in the price exponent — so later units are scheduled later and the price
// rises when sales run ahead of pace.
func TargetSaleTime(sold int64, k decimal.Decimal) (decimal.Decimal, error) {
	if sold <= 0 {
		return decimal.Zero, ErrSoldCount
	}
	if k.Sign() == 0 {
		return decimal.Zero, ErrDecayRate
	}
	num, err := decimal.New(sold, 0).Ln(precision)
	if err != nil {
		return decimal.Zero, fmt.Errorf("target sale time: %w", err)
	}
	return num.DivRound(k.Abs(), precision), nil
}

// Price computes the current issue price, wad-scaled:
//
//	target * exp(k * (elapsed - targetSaleTime(sold+1, k)))
//
// elapsed is measured in decay periods since the auction started. The sold+1
// conversion narrows through int64; overflow there would require more sales
// than can occur in practice and is left unguarded on purpose.
func Price(target *big.Int, k decimal.Decimal, elapsed decimal.Decimal, sold int64) (*big.Int, error) {
	saleTime, err := TargetSaleTime(sold+1, k)
	if err != nil {
		return nil, err
	}

	exponent := k.Mul(elapsed.Sub(saleTime))
	factor, err := exponent.ExpTaylor(precision)
	if err != nil {
		return nil, fmt.Errorf("price decay: %w", err)
	}

	price := wad.ToDecimal(target).Mul(factor)
	return wad.FromDecimal(price), nil
}
