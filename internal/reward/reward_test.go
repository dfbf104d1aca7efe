package reward

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestPerTokenZeroStakeNoop(t *testing.T) {
	stored := big.NewInt(123456)
	got := PerToken(stored, 3600, big.NewInt(1_000), big.NewInt(0))
	if got.Cmp(stored) != 0 {
		t.Fatalf("zero stake should return stored unchanged: %s != %s", got, stored)
	}
	// The result must be a copy, not an alias.
	got.Add(got, big.NewInt(1))
	if stored.Cmp(big.NewInt(123456)) != 0 {
		t.Fatalf("stored was mutated")
	}
}

func TestPerTokenAccrual(t *testing.T) {
	// rate 10/s over 5s across 100 staked: delta = 50*PRECISION/100.
	got := PerToken(big.NewInt(0), 5, big.NewInt(10), big.NewInt(100))
	want := new(big.Int).Quo(new(big.Int).Mul(big.NewInt(50), Precision), big.NewInt(100))
	if got.Cmp(want) != 0 {
		t.Fatalf("per-token mismatch: %s != %s", got, want)
	}
}

func TestEarnedNeverDecreases(t *testing.T) {
	accrued := big.NewInt(700)
	cases := []struct {
		perToken int64
		paid     int64
	}{
		{0, 0},
		{5, 5},
		{100, 40},
	}
	for _, tc := range cases {
		perToken := new(big.Int).Mul(big.NewInt(tc.perToken), Precision)
		paid := new(big.Int).Mul(big.NewInt(tc.paid), Precision)
		got := Earned(big.NewInt(10), perToken, paid, accrued)
		if got.Cmp(accrued) < 0 {
			t.Fatalf("earned %s dropped below accrued %s", got, accrued)
		}
	}
}

func TestLedgerSingleStaker(t *testing.T) {
	l := NewLedger(big.NewInt(10), 0)
	if err := l.Stake(alice, big.NewInt(100), 0); err != nil {
		t.Fatalf("stake: %v", err)
	}

	// Sole staker earns the full emission: 10/s for 50s.
	got := l.EarnedOf(alice, 50)
	if got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("earned mismatch: %s != 500", got)
	}

	claimed := l.Claim(alice, 50)
	if claimed.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("claim mismatch: %s != 500", claimed)
	}
	if rest := l.EarnedOf(alice, 50); rest.Sign() != 0 {
		t.Fatalf("earned should reset after claim, got %s", rest)
	}
}

func TestLedgerProportionalSplit(t *testing.T) {
	l := NewLedger(big.NewInt(30), 0)
	if err := l.Stake(alice, big.NewInt(100), 0); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if err := l.Stake(bob, big.NewInt(200), 0); err != nil {
		t.Fatalf("stake: %v", err)
	}

	// 30/s for 10s = 300 total, split 1:2.
	if got := l.EarnedOf(alice, 10); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("alice earned %s, want 100", got)
	}
	if got := l.EarnedOf(bob, 10); got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("bob earned %s, want 200", got)
	}
}

func TestLedgerLateStakerEarnsNothingRetroactively(t *testing.T) {
	l := NewLedger(big.NewInt(10), 0)
	if err := l.Stake(alice, big.NewInt(100), 0); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if err := l.Stake(bob, big.NewInt(100), 100); err != nil {
		t.Fatalf("stake: %v", err)
	}

	// First 100s belong to alice alone; the next 100s split evenly.
	if got := l.EarnedOf(alice, 200); got.Cmp(big.NewInt(1500)) != 0 {
		t.Fatalf("alice earned %s, want 1500", got)
	}
	if got := l.EarnedOf(bob, 200); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("bob earned %s, want 500", got)
	}
}

func TestLedgerWithdrawValidation(t *testing.T) {
	l := NewLedger(big.NewInt(1), 0)
	if err := l.Stake(alice, big.NewInt(10), 0); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if err := l.Withdraw(alice, big.NewInt(11), 5); !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("expected ErrInsufficientStake, got %v", err)
	}
	if err := l.Withdraw(alice, big.NewInt(0), 5); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	if got := l.StakedOf(alice); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("failed withdraw mutated stake: %s", got)
	}
}

func TestLedgerClockRegressionClamped(t *testing.T) {
	l := NewLedger(big.NewInt(10), 0)
	if err := l.Stake(alice, big.NewInt(100), 100); err != nil {
		t.Fatalf("stake: %v", err)
	}

	before := l.EarnedOf(alice, 100)
	// A stale timestamp must not rewind the accumulator.
	after := l.EarnedOf(alice, 50)
	if after.Cmp(before) < 0 {
		t.Fatalf("accumulator went backwards: %s then %s", before, after)
	}
}
