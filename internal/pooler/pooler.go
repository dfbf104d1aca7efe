// Package pooler orchestrates liquidity provisioning and trading between a
// game token and its paired asset: single-sided or imbalanced deposits into
// the AMM pool against a position receipt, fee collection, full exits, and
// direct swaps. All mutations run inside capability-guarded regions and emit
// reconciliation events to the journal.
package pooler

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityForge/internal/amm"
	"liquidityForge/internal/guard"
	"liquidityForge/internal/journal"
	"liquidityForge/internal/model"
	"liquidityForge/internal/token"
)

// Capability tags for the routing layer's reentrancy guard.
const (
	CapPool guard.Capability = "pooler"
	CapSwap guard.Capability = "swapper"
)

var (
	// ErrDust is returned for mints below the configured dust threshold.
	ErrDust = errors.New("mint amount below dust threshold")
	// ErrOrientation is returned when the pool's token ordering matches
	// neither configured token.
	ErrOrientation = errors.New("pool token orientation mismatch")
)

// Pooler routes liquidity between holders and the AMM pool, one receipt per
// position. Positions own their liquidity through the receipt's derived
// address, so the pool sees one LP per receipt.
type Pooler struct {
	game     token.Fungible
	asset    token.Fungible
	pool     amm.Pool
	receipts *token.ReceiptRegistry
	journal  *journal.Journal
	guard    *guard.Guard
	logger   *zap.Logger
	clock    func() int64
	mintDust *big.Int

	// Resolved once at construction; a per-call branch here invites
	// silent direction inversion.
	gameIsToken0 bool
	poolAddress  common.Address
}

// Config wires a Pooler.
type Config struct {
	Game        token.Fungible
	Asset       token.Fungible
	Pool        amm.Pool
	PoolAddress common.Address
	Receipts    *token.ReceiptRegistry
	Journal     *journal.Journal
	Guard       *guard.Guard
	Logger      *zap.Logger
	Clock       func() int64
	MintDust    *big.Int
}

// New validates token orientation against the pool and builds a Pooler.
func New(cfg Config) (*Pooler, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Guard == nil {
		cfg.Guard = guard.New()
	}
	if cfg.MintDust == nil {
		cfg.MintDust = big.NewInt(0)
	}
	if cfg.Journal == nil {
		cfg.Journal = journal.New()
	}

	var gameIsToken0 bool
	switch {
	case cfg.Pool.Token0() == cfg.Game.Address() && cfg.Pool.Token1() == cfg.Asset.Address():
		gameIsToken0 = true
	case cfg.Pool.Token0() == cfg.Asset.Address() && cfg.Pool.Token1() == cfg.Game.Address():
		gameIsToken0 = false
	default:
		return nil, fmt.Errorf("pool (%s, %s) vs game %s asset %s: %w",
			cfg.Pool.Token0().Hex(), cfg.Pool.Token1().Hex(),
			cfg.Game.Address().Hex(), cfg.Asset.Address().Hex(), ErrOrientation)
	}

	return &Pooler{
		game:         cfg.Game,
		asset:        cfg.Asset,
		pool:         cfg.Pool,
		receipts:     cfg.Receipts,
		journal:      cfg.Journal,
		guard:        cfg.Guard,
		logger:       cfg.Logger,
		clock:        cfg.Clock,
		mintDust:     cfg.MintDust,
		gameIsToken0: gameIsToken0,
		poolAddress:  cfg.PoolAddress,
	}, nil
}

// GameIsToken0 reports the cached pool orientation.
func (p *Pooler) GameIsToken0() bool { return p.gameIsToken0 }

// orient maps (gameAmount, assetAmount) to (amount0, amount1).
func (p *Pooler) orient(gameAmount, assetAmount *big.Int) (*big.Int, *big.Int) {
	if p.gameIsToken0 {
		return gameAmount, assetAmount
	}
	return assetAmount, gameAmount
}

// MintWithGameToken swaps roughly half of amount into the paired asset at
// the current pool price, deposits both sides, and mints a receipt to
// recipient.
func (p *Pooler) MintWithGameToken(sender common.Address, amount *big.Int, recipient common.Address) (uint64, error) {
	release, err := p.guard.Enter(CapPool)
	if err != nil {
		return 0, err
	}
	defer release()

	if err := p.checkDust(amount); err != nil {
		return 0, err
	}

	half := new(big.Int).Rsh(amount, 1)
	assetOut, err := p.pool.SwapExactIn(sender, p.gameIsToken0, half, sender)
	if err != nil {
		return 0, fmt.Errorf("balance swap: %w", err)
	}
	gameRemainder := new(big.Int).Sub(amount, half)

	return p.mintPosition(sender, recipient, gameRemainder, assetOut)
}

// MintWithAssetToken is the asset-side single-sided mint.
func (p *Pooler) MintWithAssetToken(sender common.Address, amount *big.Int, recipient common.Address) (uint64, error) {
	release, err := p.guard.Enter(CapPool)
	if err != nil {
		return 0, err
	}
	defer release()

	if err := p.checkDust(amount); err != nil {
		return 0, err
	}

	half := new(big.Int).Rsh(amount, 1)
	gameOut, err := p.pool.SwapExactIn(sender, !p.gameIsToken0, half, sender)
	if err != nil {
		return 0, fmt.Errorf("balance swap: %w", err)
	}
	assetRemainder := new(big.Int).Sub(amount, half)

	return p.mintPosition(sender, recipient, gameOut, assetRemainder)
}

// MintImbalance deposits both amounts directly with no swap. Whatever the
// current price ratio cannot absorb is handed to the recipient rather than
// left with the sender.
func (p *Pooler) MintImbalance(sender common.Address, gameAmount, assetAmount *big.Int, recipient common.Address) (uint64, error) {
	release, err := p.guard.Enter(CapPool)
	if err != nil {
		return 0, err
	}
	defer release()

	total := new(big.Int).Add(gameAmount, assetAmount)
	if err := p.checkDust(total); err != nil {
		return 0, err
	}

	id, err := p.mintPosition(sender, recipient, gameAmount, assetAmount)
	if err != nil {
		return 0, err
	}

	if sender != recipient {
		rec, err := p.receipts.Get(id)
		if err != nil {
			return 0, err
		}
		if err := p.refundRemainder(sender, recipient, gameAmount, rec.GameShare, p.game); err != nil {
			return 0, err
		}
		if err := p.refundRemainder(sender, recipient, assetAmount, rec.AssetShare, p.asset); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (p *Pooler) refundRemainder(sender, recipient common.Address, offered, used *big.Int, ledger token.Fungible) error {
	remainder := new(big.Int).Sub(offered, used)
	if remainder.Sign() <= 0 {
		return nil
	}
	if err := ledger.Transfer(sender, recipient, remainder); err != nil {
		return fmt.Errorf("refund remainder: %w", err)
	}
	return nil
}

// mintPosition deposits the oriented amounts and mints the receipt. Shares
// are recorded as the amounts the pool actually used.
func (p *Pooler) mintPosition(sender, recipient common.Address, gameAmount, assetAmount *big.Int) (uint64, error) {
	id, err := p.receipts.Mint(recipient, token.PoolGame)
	if err != nil {
		return 0, err
	}
	posAddr, err := p.receipts.AddressOf(id)
	if err != nil {
		return 0, err
	}

	amount0, amount1 := p.orient(gameAmount, assetAmount)
	liquidity, used0, used1, err := p.pool.Mint(sender, posAddr, amount0, amount1)
	if err != nil {
		// The receipt was created in this same operation; undo it so a
		// failed mint leaves no trace.
		_ = p.receipts.Burn(id)
		return 0, fmt.Errorf("pool mint: %w", err)
	}

	usedGame, usedAsset := used0, used1
	if !p.gameIsToken0 {
		usedGame, usedAsset = used1, used0
	}

	rec, err := p.receipts.Get(id)
	if err != nil {
		return 0, err
	}
	rec.Liquidity = new(big.Int).Set(liquidity)
	rec.GameShare = new(big.Int).Set(usedGame)
	rec.AssetShare = new(big.Int).Set(usedAsset)

	p.emitMinted(sender, recipient, id, usedGame, usedAsset, liquidity)
	p.logger.Info("position minted",
		zap.Uint64("position_id", id),
		zap.String("recipient", recipient.Hex()),
		zap.String("liquidity", liquidity.String()),
	)
	return id, nil
}

// Collect harvests accumulated trading fees without burning the position.
// Collected game-token fees are swapped into the paired asset so the caller
// receives a single denomination.
func (p *Pooler) Collect(sender common.Address, positionID uint64, recipient common.Address) (*big.Int, error) {
	release, err := p.guard.Enter(CapPool)
	if err != nil {
		return nil, err
	}
	defer release()

	rec, err := p.ownedReceipt(sender, positionID)
	if err != nil {
		return nil, err
	}
	posAddr, err := p.receipts.AddressOf(positionID)
	if err != nil {
		return nil, err
	}

	liquidityBefore := p.pool.LiquidityOf(posAddr)

	fees0, fees1, err := p.pool.Collect(posAddr, recipient)
	if err != nil {
		return nil, fmt.Errorf("collect fees: %w", err)
	}
	gameFees, assetFees := fees0, fees1
	if !p.gameIsToken0 {
		gameFees, assetFees = fees1, fees0
	}

	assetReturned := new(big.Int).Set(assetFees)
	if gameFees.Sign() > 0 {
		swapped, err := p.pool.SwapExactIn(recipient, p.gameIsToken0, gameFees, recipient)
		if err != nil {
			return nil, fmt.Errorf("convert game fees: %w", err)
		}
		assetReturned.Add(assetReturned, swapped)
	}

	p.emitCollected(sender, recipient, rec.ID, liquidityBefore, gameFees, assetFees, assetReturned)
	return assetReturned, nil
}

// Exit liquidates the whole position to the paired asset: collect fees,
// burn all liquidity, swap the game side, burn the receipt. Positions with
// outstanding debt must settle first.
func (p *Pooler) Exit(sender common.Address, positionID uint64) (*big.Int, error) {
	release, err := p.guard.Enter(CapPool)
	if err != nil {
		return nil, err
	}
	defer release()

	rec, err := p.ownedReceipt(sender, positionID)
	if err != nil {
		return nil, err
	}
	if rec.Debt.Sign() != 0 {
		return nil, fmt.Errorf("exit position %d: %w", positionID, token.ErrDebtOutstanding)
	}
	posAddr, err := p.receipts.AddressOf(positionID)
	if err != nil {
		return nil, err
	}

	liquidityBefore, gameFees, assetFees, assetReturned, err := p.unwind(posAddr, sender)
	if err != nil {
		return nil, err
	}
	p.emitCollected(sender, sender, rec.ID, liquidityBefore, gameFees, assetFees, assetReturned)

	if err := p.receipts.Burn(positionID); err != nil {
		return nil, fmt.Errorf("burn receipt: %w", err)
	}
	p.logger.Info("position exited",
		zap.Uint64("position_id", positionID),
		zap.String("asset_returned", assetReturned.String()),
	)
	return assetReturned, nil
}

// Seize liquidates a position's entire pool stake to the paired asset and
// pays the proceeds to recipient, leaving the emptied receipt with its
// holder. The lending bureau settles defaulted loans through this path, so
// neither ownership nor outstanding debt blocks it.
func (p *Pooler) Seize(positionID uint64, recipient common.Address) (*big.Int, error) {
	release, err := p.guard.Enter(CapPool)
	if err != nil {
		return nil, err
	}
	defer release()

	rec, err := p.receipts.Get(positionID)
	if err != nil {
		return nil, err
	}
	posAddr, err := p.receipts.AddressOf(positionID)
	if err != nil {
		return nil, err
	}

	liquidityBefore, gameFees, assetFees, assetReturned, err := p.unwind(posAddr, recipient)
	if err != nil {
		return nil, err
	}
	rec.Liquidity = big.NewInt(0)
	rec.GameShare = big.NewInt(0)
	rec.AssetShare = big.NewInt(0)

	p.emitCollected(rec.Owner, recipient, rec.ID, liquidityBefore, gameFees, assetFees, assetReturned)
	p.logger.Warn("position seized",
		zap.Uint64("position_id", positionID),
		zap.String("recipient", recipient.Hex()),
		zap.String("asset_returned", assetReturned.String()),
	)
	return assetReturned, nil
}

// ValueOf prices a position in asset terms at the current pool price: the
// asset share plus the game share converted through the pool's sqrt price.
func (p *Pooler) ValueOf(positionID uint64) (*big.Int, error) {
	rec, err := p.receipts.Get(positionID)
	if err != nil {
		return nil, err
	}
	value := new(big.Int).Set(rec.AssetShare)
	if rec.GameShare.Sign() == 0 {
		return value, nil
	}
	sqrtPrice, _, err := p.pool.Slot0()
	if err != nil {
		return nil, err
	}
	// asset per game = sqrtPrice^2 / 2^192 when game is token0, inverted
	// otherwise.
	priceX192 := new(big.Int).Mul(sqrtPrice, sqrtPrice)
	gameValue := new(big.Int)
	if p.gameIsToken0 {
		gameValue.Mul(rec.GameShare, priceX192)
		gameValue.Rsh(gameValue, 192)
	} else {
		gameValue.Lsh(rec.GameShare, 192)
		gameValue.Quo(gameValue, priceX192)
	}
	return value.Add(value, gameValue), nil
}

// unwind collects fees and burns all liquidity held at posAddr, converts the
// game side, and pays everything to beneficiary.
func (p *Pooler) unwind(posAddr, beneficiary common.Address) (liquidityBefore, gameFees, assetFees, assetReturned *big.Int, err error) {
	liquidityBefore = p.pool.LiquidityOf(posAddr)

	fees0, fees1, err := p.pool.Collect(posAddr, beneficiary)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("collect fees: %w", err)
	}

	var burned0, burned1 *big.Int
	if liquidityBefore.Sign() > 0 {
		burned0, burned1, err = p.pool.Burn(posAddr, liquidityBefore, beneficiary)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("burn liquidity: %w", err)
		}
	} else {
		burned0, burned1 = big.NewInt(0), big.NewInt(0)
	}

	total0 := new(big.Int).Add(fees0, burned0)
	total1 := new(big.Int).Add(fees1, burned1)
	gameTotal, assetTotal := total0, total1
	gameFees, assetFees = fees0, fees1
	if !p.gameIsToken0 {
		gameTotal, assetTotal = total1, total0
		gameFees, assetFees = fees1, fees0
	}

	assetReturned = new(big.Int).Set(assetTotal)
	if gameTotal.Sign() > 0 {
		swapped, err := p.pool.SwapExactIn(beneficiary, p.gameIsToken0, gameTotal, beneficiary)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("liquidate game side: %w", err)
		}
		assetReturned.Add(assetReturned, swapped)
	}
	return liquidityBefore, gameFees, assetFees, assetReturned, nil
}

func (p *Pooler) ownedReceipt(sender common.Address, positionID uint64) (*token.Receipt, error) {
	rec, err := p.receipts.Get(positionID)
	if err != nil {
		return nil, err
	}
	if rec.Owner != sender {
		return nil, fmt.Errorf("position %d held by %s: %w", positionID, rec.Owner.Hex(), token.ErrNotOwner)
	}
	return rec, nil
}

// SetMintDust adjusts the smallest depositable amount. Admin operation.
func (p *Pooler) SetMintDust(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("dust threshold must be non-negative")
	}
	p.mintDust = new(big.Int).Set(amount)
	return nil
}

func (p *Pooler) checkDust(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return token.ErrZeroAmount
	}
	if amount.Cmp(p.mintDust) < 0 {
		return fmt.Errorf("amount %s below %s: %w", amount, p.mintDust, ErrDust)
	}
	return nil
}

func (p *Pooler) poolMeta() *model.PoolMeta {
	meta := &model.PoolMeta{
		Token0: p.pool.Token0().Hex(),
		Token1: p.pool.Token1().Hex(),
		FeePPM: p.pool.FeePPM(),
	}
	if sqrtPrice, tick, err := p.pool.Slot0(); err == nil {
		meta.Slot0 = &model.PoolSlot0{SqrtPriceX96: sqrtPrice.String(), Tick: tick}
	}
	return meta
}

func (p *Pooler) emitMinted(sender, recipient common.Address, id uint64, gameShare, assetShare, liquidity *big.Int) {
	p.journal.Emit(p.clock(), model.EventPositionMinted, p.poolAddress.Hex(), model.PositionMintedData{
		Sender:      sender.Hex(),
		Recipient:   recipient.Hex(),
		GameToken:   p.game.Address().Hex(),
		AssetToken:  p.asset.Address().Hex(),
		PoolAddress: p.poolAddress.Hex(),
		PositionID:  id,
		GameShare:   gameShare.String(),
		AssetShare:  assetShare.String(),
		Liquidity:   liquidity.String(),
	}, p.poolMeta())
}

func (p *Pooler) emitCollected(sender, recipient common.Address, id uint64, liquidityBefore, gameCollected, assetCollected, assetReturned *big.Int) {
	p.journal.Emit(p.clock(), model.EventPositionCollected, p.poolAddress.Hex(), model.PositionCollectedData{
		Sender:          sender.Hex(),
		Recipient:       recipient.Hex(),
		GameToken:       p.game.Address().Hex(),
		AssetToken:      p.asset.Address().Hex(),
		PoolAddress:     p.poolAddress.Hex(),
		PositionID:      id,
		LiquidityBefore: liquidityBefore.String(),
		GameCollected:   gameCollected.String(),
		AssetCollected:  assetCollected.String(),
		AssetReturned:   assetReturned.String(),
	}, p.poolMeta())
}
