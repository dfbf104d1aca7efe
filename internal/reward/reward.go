// Package reward implements continuous proportional accrual: a monotone
// reward-per-token accumulator plus per-account settlement, the primitive
// behind both staking yield and negative-interest debt accounting.
package reward

import "math/big"

// Precision is the fixed-point scale for the reward-per-token accumulator.
var Precision = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// PerToken advances a stored reward-per-token accumulator by elapsed seconds
// at the given reward rate. With nothing staked the accumulator is returned
// unchanged: rewards do not accrue while total stake is zero, and there is no
// division by zero at the boundary.
func PerToken(stored *big.Int, elapsedSeconds int64, rate, totalStaked *big.Int) *big.Int {
	if totalStaked == nil || totalStaked.Sign() == 0 {
		return new(big.Int).Set(stored)
	}
	delta := big.NewInt(elapsedSeconds)
	delta.Mul(delta, rate)
	delta.Mul(delta, Precision)
	delta.Quo(delta, totalStaked)
	return delta.Add(delta, stored)
}

// Earned returns the total reward owed to an account: the already accrued
// amount plus the stake-weighted accumulator delta since the account last
// settled.
func Earned(staked, perToken, paid, accrued *big.Int) *big.Int {
	delta := new(big.Int).Sub(perToken, paid)
	delta.Mul(delta, staked)
	delta.Quo(delta, Precision)
	return delta.Add(delta, accrued)
}
