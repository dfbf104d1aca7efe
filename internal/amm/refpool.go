package amm

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"liquidityForge/internal/token"
	"liquidityForge/internal/wad"
)

const feeDenominator = 1_000_000 // fee is expressed in parts per million

var q96 = new(big.Int).Lsh(big.NewInt(1), 96)

type lpPosition struct {
	liquidity      *big.Int
	feeGrowth0Paid *big.Int
	feeGrowth1Paid *big.Int
	owed0          *big.Int
	owed1          *big.Int
}

// RefPool is a full-range constant-product pool with per-liquidity fee
// growth accounting. It settles against the two fungible ledgers it is
// constructed with, holding reserves and undistributed fees at its own
// address.
type RefPool struct {
	address common.Address
	token0  token.Fungible
	token1  token.Fungible
	feePPM  uint32

	reserve0       *big.Int
	reserve1       *big.Int
	totalLiquidity *big.Int
	feeGrowth0     *big.Int // fees0 per unit of liquidity, wad-scaled
	feeGrowth1     *big.Int
	positions      map[common.Address]*lpPosition
}

// NewRefPool wires a pool over two ledgers. token0/token1 ordering is fixed
// by the caller and never re-derived.
func NewRefPool(address common.Address, token0, token1 token.Fungible, feePPM uint32) *RefPool {
	return &RefPool{
		address:        address,
		token0:         token0,
		token1:         token1,
		feePPM:         feePPM,
		reserve0:       big.NewInt(0),
		reserve1:       big.NewInt(0),
		totalLiquidity: big.NewInt(0),
		feeGrowth0:     big.NewInt(0),
		feeGrowth1:     big.NewInt(0),
		positions:      make(map[common.Address]*lpPosition),
	}
}

// Address returns the pool's settlement address.
func (p *RefPool) Address() common.Address { return p.address }

// Token0 returns the address of the pool's first token.
func (p *RefPool) Token0() common.Address { return p.token0.Address() }

// Token1 returns the address of the pool's second token.
func (p *RefPool) Token1() common.Address { return p.token1.Address() }

// FeePPM returns the trading fee in parts per million.
func (p *RefPool) FeePPM() uint32 { return p.feePPM }

// Reserves returns copies of the current reserves.
func (p *RefPool) Reserves() (*big.Int, *big.Int) {
	return new(big.Int).Set(p.reserve0), new(big.Int).Set(p.reserve1)
}

// Slot0 derives the Q64.96 sqrt price and tick from the reserves.
func (p *RefPool) Slot0() (*big.Int, int32, error) {
	if p.reserve0.Sign() == 0 || p.reserve1.Sign() == 0 {
		return nil, 0, ErrEmptyPool
	}
	// sqrtPriceX96 = sqrt(reserve1 * 2^192 / reserve0)
	num := new(big.Int).Lsh(p.reserve1, 192)
	num.Quo(num, p.reserve0)
	sqrtPrice := new(big.Int).Sqrt(num)

	price, _ := new(big.Float).Quo(
		new(big.Float).SetInt(p.reserve1),
		new(big.Float).SetInt(p.reserve0),
	).Float64()
	tick := int32(math.Floor(math.Log(price) / math.Log(1.0001)))
	return sqrtPrice, tick, nil
}

func (p *RefPool) position(owner common.Address) *lpPosition {
	pos, ok := p.positions[owner]
	if !ok {
		pos = &lpPosition{
			liquidity:      big.NewInt(0),
			feeGrowth0Paid: big.NewInt(0),
			feeGrowth1Paid: big.NewInt(0),
			owed0:          big.NewInt(0),
			owed1:          big.NewInt(0),
		}
		p.positions[owner] = pos
	}
	return pos
}

// settleFees folds accrued fee growth into the position's owed balances.
func (p *RefPool) settleFees(pos *lpPosition) {
	if pos.liquidity.Sign() > 0 {
		delta0 := new(big.Int).Sub(p.feeGrowth0, pos.feeGrowth0Paid)
		delta0.Mul(delta0, pos.liquidity)
		delta0.Quo(delta0, wad.One)
		pos.owed0.Add(pos.owed0, delta0)

		delta1 := new(big.Int).Sub(p.feeGrowth1, pos.feeGrowth1Paid)
		delta1.Mul(delta1, pos.liquidity)
		delta1.Quo(delta1, wad.One)
		pos.owed1.Add(pos.owed1, delta1)
	}
	pos.feeGrowth0Paid = new(big.Int).Set(p.feeGrowth0)
	pos.feeGrowth1Paid = new(big.Int).Set(p.feeGrowth1)
}

// Mint deposits liquidity at the current price ratio. The first mint sets
// the price from the supplied amounts; later mints use both amounts up to
// the reserve ratio and leave the remainder with the payer.
func (p *RefPool) Mint(payer, owner common.Address, amount0, amount1 *big.Int) (*big.Int, *big.Int, *big.Int, error) {
	if amount0 == nil || amount1 == nil || amount0.Sign() < 0 || amount1.Sign() < 0 {
		return nil, nil, nil, ErrZeroAmount
	}
	if amount0.Sign() == 0 && amount1.Sign() == 0 {
		return nil, nil, nil, ErrZeroAmount
	}

	var liquidity, used0, used1 *big.Int
	if p.totalLiquidity.Sign() == 0 {
		if amount0.Sign() == 0 || amount1.Sign() == 0 {
			return nil, nil, nil, fmt.Errorf("initial mint needs both sides: %w", ErrZeroAmount)
		}
		used0 = new(big.Int).Set(amount0)
		used1 = new(big.Int).Set(amount1)
		liquidity = new(big.Int).Sqrt(new(big.Int).Mul(used0, used1))
	} else {
		// Scale to the smaller side at the current reserve ratio.
		liq0 := wad.MulDiv(amount0, p.totalLiquidity, p.reserve0)
		liq1 := wad.MulDiv(amount1, p.totalLiquidity, p.reserve1)
		liquidity = wad.Min(liq0, liq1)
		if liquidity.Sign() == 0 {
			return nil, nil, nil, fmt.Errorf("amounts too small for current ratio: %w", ErrZeroAmount)
		}
		used0 = wad.MulDiv(p.reserve0, liquidity, p.totalLiquidity)
		used1 = wad.MulDiv(p.reserve1, liquidity, p.totalLiquidity)
	}

	if used0.Sign() > 0 {
		if err := p.token0.Transfer(payer, p.address, used0); err != nil {
			return nil, nil, nil, fmt.Errorf("pull token0: %w", err)
		}
	}
	if used1.Sign() > 0 {
		if err := p.token1.Transfer(payer, p.address, used1); err != nil {
			return nil, nil, nil, fmt.Errorf("pull token1: %w", err)
		}
	}

	pos := p.position(owner)
	p.settleFees(pos)
	pos.liquidity.Add(pos.liquidity, liquidity)
	p.totalLiquidity.Add(p.totalLiquidity, liquidity)
	p.reserve0.Add(p.reserve0, used0)
	p.reserve1.Add(p.reserve1, used1)

	return liquidity, used0, used1, nil
}

// Collect pays owner's accumulated fees to recipient.
func (p *RefPool) Collect(owner, recipient common.Address) (*big.Int, *big.Int, error) {
	pos, ok := p.positions[owner]
	if !ok {
		return nil, nil, fmt.Errorf("collect %s: %w", owner.Hex(), ErrNoPosition)
	}
	p.settleFees(pos)

	fees0 := pos.owed0
	fees1 := pos.owed1
	pos.owed0 = big.NewInt(0)
	pos.owed1 = big.NewInt(0)

	if fees0.Sign() > 0 {
		if err := p.token0.Transfer(p.address, recipient, fees0); err != nil {
			return nil, nil, fmt.Errorf("pay fees0: %w", err)
		}
	}
	if fees1.Sign() > 0 {
		if err := p.token1.Transfer(p.address, recipient, fees1); err != nil {
			return nil, nil, fmt.Errorf("pay fees1: %w", err)
		}
	}
	return fees0, fees1, nil
}

// Burn removes liquidity and pays the underlying reserves to recipient.
func (p *RefPool) Burn(owner common.Address, liquidity *big.Int, recipient common.Address) (*big.Int, *big.Int, error) {
	if liquidity == nil || liquidity.Sign() <= 0 {
		return nil, nil, ErrZeroAmount
	}
	pos, ok := p.positions[owner]
	if !ok || pos.liquidity.Cmp(liquidity) < 0 {
		return nil, nil, fmt.Errorf("burn %s from %s: %w", liquidity, owner.Hex(), ErrInsufficientLiquidity)
	}
	p.settleFees(pos)

	amount0 := wad.MulDiv(p.reserve0, liquidity, p.totalLiquidity)
	amount1 := wad.MulDiv(p.reserve1, liquidity, p.totalLiquidity)

	pos.liquidity.Sub(pos.liquidity, liquidity)
	p.totalLiquidity.Sub(p.totalLiquidity, liquidity)
	p.reserve0.Sub(p.reserve0, amount0)
	p.reserve1.Sub(p.reserve1, amount1)

	if amount0.Sign() > 0 {
		if err := p.token0.Transfer(p.address, recipient, amount0); err != nil {
			return nil, nil, fmt.Errorf("pay token0: %w", err)
		}
	}
	if amount1.Sign() > 0 {
		if err := p.token1.Transfer(p.address, recipient, amount1); err != nil {
			return nil, nil, fmt.Errorf("pay token1: %w", err)
		}
	}
	return amount0, amount1, nil
}

// SwapExactIn trades amountIn for the constant-product output after fees.
func (p *RefPool) SwapExactIn(trader common.Address, zeroForOne bool, amountIn *big.Int, recipient common.Address) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if p.reserve0.Sign() == 0 || p.reserve1.Sign() == 0 {
		return nil, ErrEmptyPool
	}

	fee := wad.MulDiv(amountIn, big.NewInt(int64(p.feePPM)), big.NewInt(feeDenominator))
	net := new(big.Int).Sub(amountIn, fee)
	if net.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	reserveIn, reserveOut := p.reserve0, p.reserve1
	tokenIn, tokenOut := p.token0, p.token1
	if !zeroForOne {
		reserveIn, reserveOut = p.reserve1, p.reserve0
		tokenIn, tokenOut = p.token1, p.token0
	}

	amountOut := new(big.Int).Mul(reserveOut, net)
	amountOut.Quo(amountOut, new(big.Int).Add(reserveIn, net))
	if amountOut.Sign() <= 0 {
		return nil, fmt.Errorf("swap output rounds to zero: %w", ErrInsufficientLiquidity)
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientLiquidity
	}

	if err := tokenIn.Transfer(trader, p.address, amountIn); err != nil {
		return nil, fmt.Errorf("pull swap input: %w", err)
	}
	if err := tokenOut.Transfer(p.address, recipient, amountOut); err != nil {
		return nil, fmt.Errorf("pay swap output: %w", err)
	}

	reserveIn.Add(reserveIn, net)
	reserveOut.Sub(reserveOut, amountOut)
	p.accrueFee(zeroForOne, fee)
	return amountOut, nil
}

// SwapExactOut trades the minimal input for exactly amountOut.
func (p *RefPool) SwapExactOut(trader common.Address, zeroForOne bool, amountOut *big.Int, recipient common.Address) (*big.Int, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	reserveIn, reserveOut := p.reserve0, p.reserve1
	tokenIn, tokenOut := p.token0, p.token1
	if !zeroForOne {
		reserveIn, reserveOut = p.reserve1, p.reserve0
		tokenIn, tokenOut = p.token1, p.token0
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientLiquidity
	}

	// net = ceil(reserveIn * out / (reserveOut - out)), grossed up for fee.
	num := new(big.Int).Mul(reserveIn, amountOut)
	den := new(big.Int).Sub(reserveOut, amountOut)
	net := new(big.Int).Add(num, new(big.Int).Sub(den, big.NewInt(1)))
	net.Quo(net, den)

	gross := new(big.Int).Mul(net, big.NewInt(feeDenominator))
	gross.Add(gross, big.NewInt(int64(feeDenominator-p.feePPM)-1))
	gross.Quo(gross, big.NewInt(int64(feeDenominator-p.feePPM)))
	fee := new(big.Int).Sub(gross, net)

	if err := tokenIn.Transfer(trader, p.address, gross); err != nil {
		return nil, fmt.Errorf("pull swap input: %w", err)
	}
	if err := tokenOut.Transfer(p.address, recipient, amountOut); err != nil {
		return nil, fmt.Errorf("pay swap output: %w", err)
	}

	reserveIn.Add(reserveIn, net)
	reserveOut.Sub(reserveOut, amountOut)
	p.accrueFee(zeroForOne, fee)
	return gross, nil
}

// LiquidityOf returns owner's liquidity balance.
func (p *RefPool) LiquidityOf(owner common.Address) *big.Int {
	if pos, ok := p.positions[owner]; ok {
		return new(big.Int).Set(pos.liquidity)
	}
	return big.NewInt(0)
}

// TotalLiquidity returns the pool-wide liquidity supply.
func (p *RefPool) TotalLiquidity() *big.Int {
	return new(big.Int).Set(p.totalLiquidity)
}

func (p *RefPool) accrueFee(zeroForOne bool, fee *big.Int) {
	if fee.Sign() <= 0 || p.totalLiquidity.Sign() == 0 {
		return
	}
	growth := new(big.Int).Mul(fee, wad.One)
	growth.Quo(growth, p.totalLiquidity)
	if zeroForOne {
		p.feeGrowth0.Add(p.feeGrowth0, growth)
	} else {
		p.feeGrowth1.Add(p.feeGrowth1, growth)
	}
}
