// Package token holds the in-memory token ledgers the economy settles
// against: a fungible ledger for the game, asset, debt and liquidity-share
// tokens, and a supply-1-per-id receipt registry for positions.
package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrZeroAddress is returned when an operation names the zero address.
	ErrZeroAddress = errors.New("zero address")
	// ErrZeroAmount is returned for zero or negative token amounts.
	ErrZeroAmount = errors.New("amount must be positive")
	// ErrInsufficientBalance is returned when a debit exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInsufficientAllowance is returned when transferFrom exceeds approval.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Fungible is the token surface the bureaus settle against.
type Fungible interface {
	Address() common.Address
	BalanceOf(owner common.Address) *big.Int
	TotalSupply() *big.Int
	Transfer(from, to common.Address, amount *big.Int) error
	Approve(owner, spender common.Address, amount *big.Int) error
	Allowance(owner, spender common.Address) *big.Int
	TransferFrom(spender, from, to common.Address, amount *big.Int) error
	Mint(to common.Address, amount *big.Int) error
	Burn(from common.Address, amount *big.Int) error
}

// Ledger is an in-memory fungible token.
type Ledger struct {
	symbol      string
	address     common.Address
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
	totalSupply *big.Int
}

// NewLedger creates an empty ledger identified by symbol at address.
func NewLedger(symbol string, address common.Address) *Ledger {
	return &Ledger{
		symbol:      symbol,
		address:     address,
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
		totalSupply: big.NewInt(0),
	}
}

// Symbol returns the ledger's token symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// Address returns the token's address.
func (l *Ledger) Address() common.Address { return l.address }

// BalanceOf returns owner's balance.
func (l *Ledger) BalanceOf(owner common.Address) *big.Int {
	if b, ok := l.balances[owner]; ok {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

// TotalSupply returns the outstanding supply.
func (l *Ledger) TotalSupply() *big.Int {
	return new(big.Int).Set(l.totalSupply)
}

func (l *Ledger) credit(to common.Address, amount *big.Int) {
	b, ok := l.balances[to]
	if !ok {
		b = big.NewInt(0)
		l.balances[to] = b
	}
	b.Add(b, amount)
}

func (l *Ledger) debit(from common.Address, amount *big.Int) error {
	b, ok := l.balances[from]
	if !ok || b.Cmp(amount) < 0 {
		return fmt.Errorf("%s: debit %s from %s: %w", l.symbol, amount, from.Hex(), ErrInsufficientBalance)
	}
	b.Sub(b, amount)
	return nil
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	return nil
}

// Transfer moves amount from one holder to another.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	l.credit(to, amount)
	return nil
}

// Approve sets spender's allowance over owner's balance.
func (l *Ledger) Approve(owner, spender common.Address, amount *big.Int) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrZeroAmount
	}
	m, ok := l.allowances[owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		l.allowances[owner] = m
	}
	m[spender] = new(big.Int).Set(amount)
	return nil
}

// Allowance returns the remaining approval from owner to spender.
func (l *Ledger) Allowance(owner, spender common.Address) *big.Int {
	if m, ok := l.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return new(big.Int).Set(a)
		}
	}
	return big.NewInt(0)
}

// TransferFrom moves amount out of from's balance on spender's approval.
func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	allowance := l.Allowance(from, spender)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%s: spend %s approved %s: %w", l.symbol, amount, allowance, ErrInsufficientAllowance)
	}
	if err := l.Transfer(from, to, amount); err != nil {
		return err
	}
	l.allowances[from][spender] = allowance.Sub(allowance, amount)
	return nil
}

// Mint issues new supply to a holder.
func (l *Ledger) Mint(to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	l.credit(to, amount)
	l.totalSupply.Add(l.totalSupply, amount)
	return nil
}

// Burn retires supply from a holder.
func (l *Ledger) Burn(from common.Address, amount *big.Int) error {
	if from == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	l.totalSupply.Sub(l.totalSupply, amount)
	return nil
}
