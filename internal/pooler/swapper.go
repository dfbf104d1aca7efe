package pooler

import (
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

// Swapper trades between the game token and its paired asset against the
// pool. Swap direction is oriented by the token0 resolution done once at
// construction.
type Swapper struct {
	game    token.Fungible
	asset   token.Fungible
	pool    amm.Pool
	journal *journal.Journal
	guard   *guard.Guard
	logger  *zap.Logger
	clock   func() int64

	gameIsToken0 bool
	poolAddress  common.Address
}

// NewSwapper validates orientation the same way New does and builds a
// Swapper sharing the entity's guard.
func NewSwapper(cfg Config) (*Swapper, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Guard == nil {
		cfg.Guard = guard.New()
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

	return &Swapper{
		game:         cfg.Game,
		asset:        cfg.Asset,
		pool:         cfg.Pool,
		journal:      cfg.Journal,
		guard:        cfg.Guard,
		logger:       cfg.Logger,
		clock:        cfg.Clock,
		gameIsToken0: gameIsToken0,
		poolAddress:  cfg.PoolAddress,
	}, nil
}

func (s *Swapper) poolMeta() *model.PoolMeta {
	meta := &model.PoolMeta{
		Token0: s.pool.Token0().Hex(),
		Token1: s.pool.Token1().Hex(),
		FeePPM: s.pool.FeePPM(),
	}
	if sqrtPrice, tick, err := s.pool.Slot0(); err == nil {
		meta.Slot0 = &model.PoolSlot0{SqrtPriceX96: sqrtPrice.String(), Tick: tick}
	}
	return meta
}

// Buy trades assetAmount of the paired asset for game tokens.
func (s *Swapper) Buy(sender common.Address, assetAmount *big.Int, recipient common.Address) (*big.Int, error) {
	release, err := s.guard.Enter(CapSwap)
	if err != nil {
		return nil, err
	}
	defer release()

	gameOut, err := s.pool.SwapExactIn(sender, !s.gameIsToken0, assetAmount, recipient)
	if err != nil {
		return nil, fmt.Errorf("buy: %w", err)
	}

	s.journal.Emit(s.clock(), model.EventTokenBought, s.poolAddress.Hex(), model.TokenBoughtData{
		Sender:             sender.Hex(),
		Recipient:          recipient.Hex(),
		TokenAddress:       s.game.Address().Hex(),
		PairedTokenAddress: s.asset.Address().Hex(),
		AmountIn:           assetAmount.String(),
		AmountOut:          gameOut.String(),
	}, s.poolMeta())
	s.logger.Debug("token bought",
		zap.String("sender", sender.Hex()),
		zap.String("amount_in", assetAmount.String()),
		zap.String("amount_out", gameOut.String()),
	)
	return gameOut, nil
}

// Sell trades gameAmount of game tokens for the paired asset.
func (s *Swapper) Sell(sender common.Address, gameAmount *big.Int, recipient common.Address) (*big.Int, error) {
	release, err := s.guard.Enter(CapSwap)
	if err != nil {
		return nil, err
	}
	defer release()

	assetOut, err := s.sell(sender, gameAmount, recipient)
	if err != nil {
		return nil, err
	}
	return assetOut, nil
}

// Exit liquidates the caller's entire game-token holding into the asset.
func (s *Swapper) Exit(caller common.Address) (*big.Int, error) {
	release, err := s.guard.Enter(CapSwap)
	if err != nil {
		return nil, err
	}
	defer release()

	balance := s.game.BalanceOf(caller)
	if balance.Sign() == 0 {
		return big.NewInt(0), nil
	}
	return s.sell(caller, balance, caller)
}

func (s *Swapper) sell(sender common.Address, gameAmount *big.Int, recipient common.Address) (*big.Int, error) {
	assetOut, err := s.pool.SwapExactIn(sender, s.gameIsToken0, gameAmount, recipient)
	if err != nil {
		return nil, fmt.Errorf("sell: %w", err)
	}

	s.journal.Emit(s.clock(), model.EventTokenSold, s.poolAddress.Hex(), model.TokenSoldData{
		Sender:             sender.Hex(),
		Recipient:          recipient.Hex(),
		TokenAddress:       s.game.Address().Hex(),
		PairedTokenAddress: s.asset.Address().Hex(),
		AmountIn:           gameAmount.String(),
		AmountOut:          assetOut.String(),
	}, s.poolMeta())
	s.logger.Debug("token sold",
		zap.String("sender", sender.Hex()),
		zap.String("amount_in", gameAmount.String()),
		zap.String("amount_out", assetOut.String()),
	)
	return assetOut, nil
}
