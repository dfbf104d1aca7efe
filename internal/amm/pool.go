// Package amm defines the pool surface the routing layer depends on, plus an
// in-memory reference pool the sim and tests run against. The production
// pool is an external collaborator; only these calling conventions matter.
package amm

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrZeroAmount is returned for zero or negative swap/mint amounts.
	ErrZeroAmount = errors.New("amount must be positive")
	// ErrInsufficientLiquidity is returned when a swap or burn would drain
	// the pool past its reserves.
	ErrInsufficientLiquidity = errors.New("insufficient pool liquidity")
	// ErrNoPosition is returned when an owner has no liquidity in the pool.
	ErrNoPosition = errors.New("owner has no liquidity")
	// ErrEmptyPool is returned for price queries against an unfunded pool.
	ErrEmptyPool = errors.New("pool has no reserves")
)

// Pool is the black-box AMM surface: price/tick inspection, liquidity
// provisioning, fee collection, liquidity removal and swaps with exact-input
// and exact-output semantics. Token amounts are pulled from and paid to the
// named addresses on the pool's fungible ledgers.
type Pool interface {
	Token0() common.Address
	Token1() common.Address

	// FeePPM returns the pool's trading fee in parts per million.
	FeePPM() uint32

	// Slot0 returns the current sqrt price in Q64.96 and the corresponding
	// tick.
	Slot0() (sqrtPriceX96 *big.Int, tick int32, err error)

	// Mint pulls up to amount0/amount1 from payer, credits the resulting
	// liquidity to owner, and reports how much of each side was actually
	// used at the current price ratio.
	Mint(payer, owner common.Address, amount0, amount1 *big.Int) (liquidity, used0, used1 *big.Int, err error)

	// Collect pays owner's accumulated trading fees to recipient without
	// touching principal liquidity.
	Collect(owner, recipient common.Address) (fees0, fees1 *big.Int, err error)

	// Burn removes liquidity from owner's position and pays the underlying
	// amounts to recipient.
	Burn(owner common.Address, liquidity *big.Int, recipient common.Address) (amount0, amount1 *big.Int, err error)

	// SwapExactIn trades amountIn of one side for as much as possible of
	// the other. zeroForOne selects the direction: token0 in, token1 out.
	SwapExactIn(trader common.Address, zeroForOne bool, amountIn *big.Int, recipient common.Address) (amountOut *big.Int, err error)

	// SwapExactOut trades as little input as needed for exactly amountOut.
	SwapExactOut(trader common.Address, zeroForOne bool, amountOut *big.Int, recipient common.Address) (amountIn *big.Int, err error)

	// LiquidityOf returns owner's liquidity balance.
	LiquidityOf(owner common.Address) *big.Int
}
