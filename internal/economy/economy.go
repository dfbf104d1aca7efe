// Package economy wires the token ledgers, the AMM pool, the routing layer
// and the bureaus into the closed loop: buy from auction, stake, borrow,
// repay, harvest, exit. Each bureau owns its own ledger; the facade passes
// handles, never shared globals.
package economy

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liquidityForge/internal/amm"
	"liquidityForge/internal/auction"
	"liquidityForge/internal/guard"
	"liquidityForge/internal/journal"
	"liquidityForge/internal/lending"
	"liquidityForge/internal/pooler"
	"liquidityForge/internal/token"
)

// Well-known addresses of the economy's own entities.
var (
	GameTokenAddress  = common.HexToAddress("0x00000000000000000000000000000000000f0901")
	AssetTokenAddress = common.HexToAddress("0x00000000000000000000000000000000000f0902")
	DebtTokenAddress  = common.HexToAddress("0x00000000000000000000000000000000000f0903")
	GamePoolAddress   = common.HexToAddress("0x00000000000000000000000000000000000f0701")
	LendingAddress    = common.HexToAddress("0x00000000000000000000000000000000000f0801")
	TreasuryAddress   = common.HexToAddress("0x00000000000000000000000000000000000f00f1")
)

// Clock is the economy's time source. The sim drives a virtual clock; the
// default is wall time.
type Clock struct {
	mu      sync.Mutex
	virtual bool
	now     int64
}

// NewVirtualClock starts a controllable clock at now.
func NewVirtualClock(now int64) *Clock {
	return &Clock{virtual: true, now: now}
}

// NewWallClock follows wall time.
func NewWallClock() *Clock {
	return &Clock{}
}

// Now returns the current time in unix seconds.
func (c *Clock) Now() int64 {
	if !c.virtual {
		return time.Now().Unix()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves a virtual clock forward by seconds.
func (c *Clock) Advance(seconds int64) {
	if !c.virtual {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
}

// Config parameterizes a fresh economy.
type Config struct {
	// SeedGameLiquidity / SeedAssetLiquidity fund the initial pool.
	SeedGameLiquidity  *big.Int
	SeedAssetLiquidity *big.Int
	// PoolFeePPM is the trading fee in parts per million.
	PoolFeePPM uint32
	// MintDust is the routing layer's dust threshold.
	MintDust *big.Int
	// BatchCeiling bounds batched receipt mint/burn.
	BatchCeiling int

	// Auction parameters.
	TargetPrice       *big.Int
	DecayRate         decimal.Decimal
	PeriodSeconds     int64
	PriceIncrementBps uint32
	MinPriceBps       uint32
	MaxPriceBps       uint32
	MaxAuctions       int
	SeedGameAmount    *big.Int

	// Lending parameters.
	LTVBps                  uint32
	LiquidationThresholdBps uint32
	LiquidationBonusBps     uint32
	RewardRate              *big.Int
}

// Economy is the assembled closed loop.
type Economy struct {
	Game     *token.Ledger
	Asset    *token.Ledger
	Debt     *token.Ledger
	Receipts *token.ReceiptRegistry
	Pool     *amm.RefPool
	Pooler   *pooler.Pooler
	Swapper  *pooler.Swapper
	Auction  *auction.Bureau
	Lending  *lending.Bureau
	Journal  *journal.Journal

	clock  *Clock
	logger *zap.Logger
}

// New assembles an economy, funds the treasury, and seeds the pool.
func New(cfg Config, clock *Clock, j *journal.Journal, logger *zap.Logger) (*Economy, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = NewWallClock()
	}
	if j == nil {
		j = journal.New()
	}

	e := &Economy{
		Game:     token.NewLedger("GAME", GameTokenAddress),
		Asset:    token.NewLedger("ASSET", AssetTokenAddress),
		Debt:     token.NewLedger("DEBT", DebtTokenAddress),
		Receipts: token.NewReceiptRegistry(cfg.BatchCeiling),
		Journal:  j,
		clock:    clock,
		logger:   logger,
	}
	e.Pool = amm.NewRefPool(GamePoolAddress, e.Game, e.Asset, cfg.PoolFeePPM)

	// Fund the treasury with the seed liquidity plus headroom for the
	// auction positions it will mint.
	headroom := new(big.Int).Mul(cfg.SeedGameAmount, big.NewInt(int64(cfg.MaxAuctions)*16))
	if err := e.Game.Mint(TreasuryAddress, new(big.Int).Add(cfg.SeedGameLiquidity, headroom)); err != nil {
		return nil, fmt.Errorf("fund treasury: %w", err)
	}
	if err := e.Asset.Mint(TreasuryAddress, cfg.SeedAssetLiquidity); err != nil {
		return nil, fmt.Errorf("fund treasury: %w", err)
	}
	if _, _, _, err := e.Pool.Mint(TreasuryAddress, TreasuryAddress, cfg.SeedGameLiquidity, cfg.SeedAssetLiquidity); err != nil {
		return nil, fmt.Errorf("seed pool: %w", err)
	}

	// One guard per facade entity: the capabilities are independent but
	// share the entity, the diamond shape the guard exists for.
	g := guard.New()
	now := func() int64 { return clock.Now() }

	routeCfg := pooler.Config{
		Game:        e.Game,
		Asset:       e.Asset,
		Pool:        e.Pool,
		PoolAddress: GamePoolAddress,
		Receipts:    e.Receipts,
		Journal:     j,
		Guard:       g,
		Logger:      logger,
		Clock:       now,
		MintDust:    cfg.MintDust,
	}
	var err error
	if e.Pooler, err = pooler.New(routeCfg); err != nil {
		return nil, fmt.Errorf("pooler: %w", err)
	}
	if e.Swapper, err = pooler.NewSwapper(routeCfg); err != nil {
		return nil, fmt.Errorf("swapper: %w", err)
	}

	e.Auction, err = auction.New(auction.Config{
		TargetPrice:       cfg.TargetPrice,
		DecayRate:         cfg.DecayRate,
		PeriodSeconds:     cfg.PeriodSeconds,
		PriceIncrementBps: cfg.PriceIncrementBps,
		MinPriceBps:       cfg.MinPriceBps,
		MaxPriceBps:       cfg.MaxPriceBps,
		MaxSlots:          cfg.MaxAuctions,
		SeedGameAmount:    cfg.SeedGameAmount,
	}, e.Pooler, e.Receipts, e.Asset, TreasuryAddress, j, g, logger, now)
	if err != nil {
		return nil, fmt.Errorf("auction bureau: %w", err)
	}

	e.Lending, err = lending.New(lending.Config{
		LTVBps:                  cfg.LTVBps,
		LiquidationThresholdBps: cfg.LiquidationThresholdBps,
		LiquidationBonusBps:     cfg.LiquidationBonusBps,
		RewardRate:              cfg.RewardRate,
		Address:                 LendingAddress,
		Treasury:                TreasuryAddress,
	}, e.Receipts, e.Debt, e.Game, e.Pooler, j, g, logger, now)
	if err != nil {
		return nil, fmt.Errorf("lending bureau: %w", err)
	}

	return e, nil
}

// Now returns the economy's clock reading.
func (e *Economy) Now() int64 { return e.clock.Now() }

// Faucet mints starting balances for a player.
func (e *Economy) Faucet(player common.Address, gameAmount, assetAmount *big.Int) error {
	if gameAmount != nil && gameAmount.Sign() > 0 {
		if err := e.Game.Mint(player, gameAmount); err != nil {
			return err
		}
	}
	if assetAmount != nil && assetAmount.Sign() > 0 {
		if err := e.Asset.Mint(player, assetAmount); err != nil {
			return err
		}
	}
	return nil
}

// BuyFromAuction settles a slot purchase and immediately collateralizes the
// position so accrual starts with ownership.
func (e *Economy) BuyFromAuction(buyer common.Address, slotID uint64, bid *big.Int) (uint64, error) {
	positionID, err := e.Auction.Buy(buyer, slotID, bid)
	if err != nil {
		return 0, err
	}
	if err := e.Lending.Collateralize(buyer, positionID); err != nil {
		return 0, fmt.Errorf("collateralize purchase: %w", err)
	}
	return positionID, nil
}

// Stake deposits game tokens into a fresh position and registers it for
// accrual.
func (e *Economy) Stake(player common.Address, gameAmount *big.Int) (uint64, error) {
	positionID, err := e.Pooler.MintWithGameToken(player, gameAmount, player)
	if err != nil {
		return 0, err
	}
	if err := e.Lending.Collateralize(player, positionID); err != nil {
		return 0, fmt.Errorf("collateralize stake: %w", err)
	}
	return positionID, nil
}

// ExitPosition releases the position from lending (requiring zero debt) and
// liquidates it to the paired asset.
func (e *Economy) ExitPosition(owner common.Address, positionID uint64) (*big.Int, error) {
	if err := e.Lending.Release(owner, positionID); err != nil && !errors.Is(err, lending.ErrNotCollateralized) {
		return nil, err
	}
	return e.Pooler.Exit(owner, positionID)
}
