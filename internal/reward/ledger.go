package reward

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrZeroAmount is returned for zero or negative stake/withdraw amounts.
	ErrZeroAmount = errors.New("amount must be positive")
	// ErrInsufficientStake is returned when withdrawing more than staked.
	ErrInsufficientStake = errors.New("insufficient staked balance")
)

type account struct {
	staked       *big.Int
	perTokenPaid *big.Int
	accrued      *big.Int
}

// Ledger tracks proportional reward accrual for one pool. It is owned and
// mutated exclusively by its bureau; accounts only read derived views.
// Time only moves forward: settle never rewinds lastUpdate, which keeps the
// accumulator monotone.
type Ledger struct {
	perTokenStored *big.Int
	rate           *big.Int
	totalStaked    *big.Int
	lastUpdate     int64
	accounts       map[common.Address]*account
}

// NewLedger creates a ledger accruing at rate (wad units per second) starting
// from now.
func NewLedger(rate *big.Int, now int64) *Ledger {
	return &Ledger{
		perTokenStored: big.NewInt(0),
		rate:           new(big.Int).Set(rate),
		totalStaked:    big.NewInt(0),
		lastUpdate:     now,
		accounts:       make(map[common.Address]*account),
	}
}

func (l *Ledger) acct(addr common.Address) *account {
	a, ok := l.accounts[addr]
	if !ok {
		a = &account{
			staked:       big.NewInt(0),
			perTokenPaid: big.NewInt(0),
			accrued:      big.NewInt(0),
		}
		l.accounts[addr] = a
	}
	return a
}

// settle rolls the accumulator forward to now and folds the pending delta
// into the account. Clock regressions are clamped to the last update.
func (l *Ledger) settle(addr common.Address, now int64) *account {
	if now > l.lastUpdate {
		l.perTokenStored = PerToken(l.perTokenStored, now-l.lastUpdate, l.rate, l.totalStaked)
		l.lastUpdate = now
	}
	a := l.acct(addr)
	a.accrued = Earned(a.staked, l.perTokenStored, a.perTokenPaid, a.accrued)
	a.perTokenPaid = new(big.Int).Set(l.perTokenStored)
	return a
}

// Stake credits amount of stake to addr as of now.
func (l *Ledger) Stake(addr common.Address, amount *big.Int, now int64) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	a := l.settle(addr, now)
	a.staked.Add(a.staked, amount)
	l.totalStaked.Add(l.totalStaked, amount)
	return nil
}

// Withdraw removes amount of stake from addr as of now.
func (l *Ledger) Withdraw(addr common.Address, amount *big.Int, now int64) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	a := l.settle(addr, now)
	if a.staked.Cmp(amount) < 0 {
		return fmt.Errorf("withdraw %s exceeds stake %s: %w", amount, a.staked, ErrInsufficientStake)
	}
	a.staked.Sub(a.staked, amount)
	l.totalStaked.Sub(l.totalStaked, amount)
	return nil
}

// Claim settles addr and returns the accrued reward, resetting it to zero.
func (l *Ledger) Claim(addr common.Address, now int64) *big.Int {
	a := l.settle(addr, now)
	out := a.accrued
	a.accrued = big.NewInt(0)
	return out
}

// SetRate settles the global accumulator, then switches the reward rate.
func (l *Ledger) SetRate(rate *big.Int, now int64) {
	if now > l.lastUpdate {
		l.perTokenStored = PerToken(l.perTokenStored, now-l.lastUpdate, l.rate, l.totalStaked)
		l.lastUpdate = now
	}
	l.rate = new(big.Int).Set(rate)
}

// EarnedOf reports the reward addr would receive if it claimed at now.
// Read-only: the stored accumulator is not advanced.
func (l *Ledger) EarnedOf(addr common.Address, now int64) *big.Int {
	perToken := l.perTokenStored
	if now > l.lastUpdate {
		perToken = PerToken(l.perTokenStored, now-l.lastUpdate, l.rate, l.totalStaked)
	}
	a, ok := l.accounts[addr]
	if !ok {
		return big.NewInt(0)
	}
	return Earned(a.staked, perToken, a.perTokenPaid, a.accrued)
}

// StakedOf returns addr's staked balance.
func (l *Ledger) StakedOf(addr common.Address) *big.Int {
	a, ok := l.accounts[addr]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(a.staked)
}

// TotalStaked returns the pool-wide staked balance.
func (l *Ledger) TotalStaked() *big.Int {
	return new(big.Int).Set(l.totalStaked)
}
