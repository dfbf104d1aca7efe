// Package lending tracks collateralized position receipts, their debt
// balances, and continuous yield accrual. Debt tokens are minted into
// existence on borrow and burned on repay; yield accrues through the
// reward ledger keyed by each position's derived address.
package lending

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityForge/internal/guard"
	"liquidityForge/internal/journal"
	"liquidityForge/internal/model"
	"liquidityForge/internal/reward"
	"liquidityForge/internal/token"
	"liquidityForge/internal/wad"
)

// Cap tags the bureau's reentrancy capability.
const Cap guard.Capability = "lending"

var (
	// ErrNotCollateralized is returned for debt operations against an
	// unregistered position.
	ErrNotCollateralized = errors.New("position not collateralized")
	// ErrAlreadyCollateralized is returned when registering twice.
	ErrAlreadyCollateralized = errors.New("position already collateralized")
	// ErrInsufficientCollateral is returned when a borrow would pass the
	// loan-to-value ceiling.
	ErrInsufficientCollateral = errors.New("insufficient collateral for borrow")
	// ErrOverRepay is returned when repaying more than the outstanding debt.
	ErrOverRepay = errors.New("repay exceeds outstanding debt")
	// ErrNotLiquidatable is returned when the position is still healthy.
	ErrNotLiquidatable = errors.New("position not past liquidation threshold")
)

type position struct {
	holder common.Address
	value  *big.Int // collateral value in asset terms, fixed at registration
}

// Collateral is the routing-layer surface the bureau settles against: spot
// valuation of a position and forced liquidation of its pool stake.
type Collateral interface {
	// ValueOf prices the position in asset terms at the current pool price.
	ValueOf(positionID uint64) (*big.Int, error)
	// Seize unwinds the position's entire pool stake to the paired asset,
	// pays the proceeds to recipient, and empties the receipt's shares.
	Seize(positionID uint64, recipient common.Address) (*big.Int, error)
}

// Config parameterizes the bureau.
type Config struct {
	// LTVBps is the borrow ceiling in basis points of collateral value.
	LTVBps uint32
	// LiquidationThresholdBps marks default; must exceed LTVBps so a
	// freshly maxed loan is not instantly liquidatable.
	LiquidationThresholdBps uint32
	// LiquidationBonusBps is the liquidator's share of seized surplus.
	LiquidationBonusBps uint32
	// RewardRate is the yield emission in wad units per second.
	RewardRate *big.Int
	// Address identifies the bureau as an event emitter.
	Address common.Address
	// Treasury receives seized proceeds on liquidation.
	Treasury common.Address
}

// Bureau owns the collateral registry and the yield ledger.
type Bureau struct {
	cfg        Config
	receipts   *token.ReceiptRegistry
	debt       token.Fungible
	game       token.Fungible
	collateral Collateral
	ledger     *reward.Ledger
	journal    *journal.Journal
	guard      *guard.Guard
	logger     *zap.Logger
	clock      func() int64

	positions map[uint64]*position
}

// New builds the bureau and its accrual ledger.
func New(cfg Config, receipts *token.ReceiptRegistry, debt, game token.Fungible,
	collateral Collateral, j *journal.Journal, g *guard.Guard, logger *zap.Logger, clock func() int64) (*Bureau, error) {

	if logger == nil {
		logger = zap.NewNop()
	}
	if g == nil {
		g = guard.New()
	}
	if collateral == nil {
		return nil, errors.New("lending: collateral surface required")
	}
	if cfg.Treasury == (common.Address{}) {
		return nil, errors.New("lending: treasury address required")
	}
	if cfg.LiquidationThresholdBps <= cfg.LTVBps {
		return nil, fmt.Errorf("liquidation threshold %d must exceed ltv %d",
			cfg.LiquidationThresholdBps, cfg.LTVBps)
	}

	return &Bureau{
		cfg:        cfg,
		receipts:   receipts,
		debt:       debt,
		game:       game,
		collateral: collateral,
		ledger:     reward.NewLedger(cfg.RewardRate, clock()),
		journal:    j,
		guard:      g,
		logger:     logger,
		clock:      clock,
		positions:  make(map[uint64]*position),
	}, nil
}

// Collateralize registers a receipt as loan collateral and starts yield
// accrual on its value.
func (b *Bureau) Collateralize(owner common.Address, positionID uint64) error {
	release, err := b.guard.Enter(Cap)
	if err != nil {
		return err
	}
	defer release()

	rec, err := b.ownedReceipt(owner, positionID)
	if err != nil {
		return err
	}
	if rec.Pool == token.PoolInvalid {
		return fmt.Errorf("position %d: %w", positionID, token.ErrInvalidReceipt)
	}
	if _, ok := b.positions[positionID]; ok {
		return fmt.Errorf("position %d: %w", positionID, ErrAlreadyCollateralized)
	}

	// The borrow ceiling is set from value at registration; default checks
	// revalue at the current pool price instead.
	value, err := b.collateral.ValueOf(positionID)
	if err != nil {
		return err
	}
	if value.Sign() <= 0 {
		return fmt.Errorf("position %d has no value: %w", positionID, ErrInsufficientCollateral)
	}
	posAddr, err := b.receipts.AddressOf(positionID)
	if err != nil {
		return err
	}
	if err := b.ledger.Stake(posAddr, value, b.clock()); err != nil {
		return fmt.Errorf("stake collateral: %w", err)
	}

	b.positions[positionID] = &position{holder: owner, value: value}
	b.logger.Info("position collateralized",
		zap.Uint64("position_id", positionID),
		zap.String("value", value.String()),
	)
	return nil
}

// Borrow mints amount of debt tokens to the holder, bounded by the
// loan-to-value ceiling over the registered collateral value.
func (b *Bureau) Borrow(owner common.Address, positionID uint64, amount *big.Int) error {
	release, err := b.guard.Enter(Cap)
	if err != nil {
		return err
	}
	defer release()

	if amount == nil || amount.Sign() <= 0 {
		return token.ErrZeroAmount
	}
	rec, err := b.ownedReceipt(owner, positionID)
	if err != nil {
		return err
	}
	pos, ok := b.positions[positionID]
	if !ok {
		return fmt.Errorf("position %d: %w", positionID, ErrNotCollateralized)
	}

	ceiling := wad.Bps(pos.value, b.cfg.LTVBps)
	debtAfter := new(big.Int).Add(rec.Debt, amount)
	if debtAfter.Cmp(ceiling) > 0 {
		return fmt.Errorf("debt %s would pass ceiling %s: %w", debtAfter, ceiling, ErrInsufficientCollateral)
	}

	if err := b.debt.Mint(owner, amount); err != nil {
		return fmt.Errorf("mint debt: %w", err)
	}
	rec.Debt = debtAfter

	b.journal.Emit(b.clock(), model.EventDebtBorrowed, b.cfg.Address.Hex(), model.DebtBorrowedData{
		Borrower:   owner.Hex(),
		PositionID: positionID,
		Amount:     amount.String(),
		DebtAfter:  debtAfter.String(),
	}, nil)
	b.logger.Info("debt borrowed",
		zap.Uint64("position_id", positionID),
		zap.String("amount", amount.String()),
		zap.String("debt_after", debtAfter.String()),
	)
	return nil
}

// Repay burns amount of the payer's debt tokens against the position's
// balance. Over-repayment is rejected with no state change.
func (b *Bureau) Repay(payer common.Address, positionID uint64, amount *big.Int) error {
	release, err := b.guard.Enter(Cap)
	if err != nil {
		return err
	}
	defer release()

	if amount == nil || amount.Sign() <= 0 {
		return token.ErrZeroAmount
	}
	rec, err := b.receipts.Get(positionID)
	if err != nil {
		return err
	}
	if _, ok := b.positions[positionID]; !ok {
		return fmt.Errorf("position %d: %w", positionID, ErrNotCollateralized)
	}
	if amount.Cmp(rec.Debt) > 0 {
		return fmt.Errorf("repay %s against debt %s: %w", amount, rec.Debt, ErrOverRepay)
	}

	if err := b.debt.Burn(payer, amount); err != nil {
		return fmt.Errorf("burn debt: %w", err)
	}
	debtAfter := new(big.Int).Sub(rec.Debt, amount)
	rec.Debt = debtAfter

	b.journal.Emit(b.clock(), model.EventDebtRepaid, b.cfg.Address.Hex(), model.DebtRepaidData{
		Payer:      payer.Hex(),
		PositionID: positionID,
		Amount:     amount.String(),
		DebtAfter:  debtAfter.String(),
	}, nil)
	return nil
}

// Harvest claims accrued yield for the position without touching principal
// or debt. Yield is paid in freshly minted game tokens.
func (b *Bureau) Harvest(owner common.Address, positionID uint64) (*big.Int, error) {
	release, err := b.guard.Enter(Cap)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := b.ownedReceipt(owner, positionID); err != nil {
		return nil, err
	}
	if _, ok := b.positions[positionID]; !ok {
		return nil, fmt.Errorf("position %d: %w", positionID, ErrNotCollateralized)
	}
	posAddr, err := b.receipts.AddressOf(positionID)
	if err != nil {
		return nil, err
	}

	yield := b.ledger.Claim(posAddr, b.clock())
	if yield.Sign() > 0 {
		if err := b.game.Mint(owner, yield); err != nil {
			return nil, fmt.Errorf("pay yield: %w", err)
		}
		b.journal.Emit(b.clock(), model.EventYieldHarvested, b.cfg.Address.Hex(), model.YieldHarvestedData{
			Owner:      owner.Hex(),
			PositionID: positionID,
			Amount:     yield.String(),
		}, nil)
	}
	return yield, nil
}

// Release deregisters a debt-free position and stops its accrual.
func (b *Bureau) Release(owner common.Address, positionID uint64) error {
	release, err := b.guard.Enter(Cap)
	if err != nil {
		return err
	}
	defer release()

	rec, err := b.ownedReceipt(owner, positionID)
	if err != nil {
		return err
	}
	pos, ok := b.positions[positionID]
	if !ok {
		return fmt.Errorf("position %d: %w", positionID, ErrNotCollateralized)
	}
	if rec.Debt.Sign() != 0 {
		return fmt.Errorf("release position %d: %w", positionID, token.ErrDebtOutstanding)
	}
	posAddr, err := b.receipts.AddressOf(positionID)
	if err != nil {
		return err
	}
	if err := b.ledger.Withdraw(posAddr, pos.value, b.clock()); err != nil {
		return fmt.Errorf("unstake collateral: %w", err)
	}
	delete(b.positions, positionID)
	return nil
}

// Liquidatable reports whether the position's debt has passed the
// liquidation threshold over its collateral marked to the current pool
// price:
//
//	debt * 10000 > currentValue * thresholdBps
//
// A loan taken at the registered value goes under water when the game side
// of the stake loses enough spot value.
func (b *Bureau) Liquidatable(positionID uint64) (bool, error) {
	rec, err := b.receipts.Get(positionID)
	if err != nil {
		return false, err
	}
	if _, ok := b.positions[positionID]; !ok {
		return false, fmt.Errorf("position %d: %w", positionID, ErrNotCollateralized)
	}
	value, err := b.collateral.ValueOf(positionID)
	if err != nil {
		return false, err
	}
	lhs := new(big.Int).Mul(rec.Debt, big.NewInt(10_000))
	rhs := new(big.Int).Mul(value, big.NewInt(int64(b.cfg.LiquidationThresholdBps)))
	return lhs.Cmp(rhs) > 0, nil
}

// Liquidate settles a defaulted position: the pool stake is seized to the
// treasury along with unclaimed yield, the borrower's debt tokens are
// retired against the recorded debt, and the liquidator is paid a bonus
// share of the surplus in game tokens. The emptied receipt stays with the
// original holder.
func (b *Bureau) Liquidate(liquidator common.Address, positionID uint64) (*big.Int, error) {
	release, err := b.guard.Enter(Cap)
	if err != nil {
		return nil, err
	}
	defer release()

	due, err := b.Liquidatable(positionID)
	if err != nil {
		return nil, err
	}
	if !due {
		return nil, fmt.Errorf("position %d: %w", positionID, ErrNotLiquidatable)
	}

	rec, err := b.receipts.Get(positionID)
	if err != nil {
		return nil, err
	}
	pos := b.positions[positionID]
	posAddr, err := b.receipts.AddressOf(positionID)
	if err != nil {
		return nil, err
	}

	// Seize first: a failed unwind leaves the loan untouched.
	proceeds, err := b.collateral.Seize(positionID, b.cfg.Treasury)
	if err != nil {
		return nil, fmt.Errorf("seize position: %w", err)
	}

	now := b.clock()
	yield := b.ledger.Claim(posAddr, now)
	if err := b.ledger.Withdraw(posAddr, pos.value, now); err != nil {
		return nil, fmt.Errorf("unstake collateral: %w", err)
	}
	if yield.Sign() > 0 {
		if err := b.game.Mint(b.cfg.Treasury, yield); err != nil {
			return nil, fmt.Errorf("seize yield: %w", err)
		}
	}

	// Retire the borrower's debt tokens from circulation. Debt tokens are
	// freely transferable, so only what the holder still carries can be
	// burned.
	debtRetired := new(big.Int).Set(rec.Debt)
	burnable := b.debt.BalanceOf(rec.Owner)
	if burnable.Cmp(debtRetired) > 0 {
		burnable.Set(debtRetired)
	}
	if burnable.Sign() > 0 {
		if err := b.debt.Burn(rec.Owner, burnable); err != nil {
			return nil, fmt.Errorf("retire debt: %w", err)
		}
	}

	seized := new(big.Int).Add(proceeds, yield)
	surplus := new(big.Int).Sub(seized, debtRetired)
	if surplus.Sign() < 0 {
		surplus.SetInt64(0)
	}
	bonus := wad.Bps(surplus, b.cfg.LiquidationBonusBps)
	if bonus.Sign() > 0 {
		if err := b.game.Mint(liquidator, bonus); err != nil {
			return nil, fmt.Errorf("pay liquidator: %w", err)
		}
	}

	// The receipt survives, emptied by the seizure, with its original
	// holder.
	rec.Debt = big.NewInt(0)
	delete(b.positions, positionID)

	b.journal.Emit(now, model.EventDebtRepaid, b.cfg.Address.Hex(), model.DebtRepaidData{
		Payer:      liquidator.Hex(),
		PositionID: positionID,
		Amount:     debtRetired.String(),
		DebtAfter:  "0",
	}, nil)
	b.logger.Warn("position liquidated",
		zap.Uint64("position_id", positionID),
		zap.String("proceeds", proceeds.String()),
		zap.String("debt_retired", debtRetired.String()),
		zap.String("bonus", bonus.String()),
	)
	return bonus, nil
}

// DebtOf returns the position's outstanding debt.
func (b *Bureau) DebtOf(positionID uint64) (*big.Int, error) {
	rec, err := b.receipts.Get(positionID)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(rec.Debt), nil
}

// YieldOf returns the yield the position would harvest now.
func (b *Bureau) YieldOf(positionID uint64) (*big.Int, error) {
	posAddr, err := b.receipts.AddressOf(positionID)
	if err != nil {
		return nil, err
	}
	return b.ledger.EarnedOf(posAddr, b.clock()), nil
}

func (b *Bureau) ownedReceipt(owner common.Address, positionID uint64) (*token.Receipt, error) {
	rec, err := b.receipts.Get(positionID)
	if err != nil {
		return nil, err
	}
	if rec.Owner != owner {
		return nil, fmt.Errorf("position %d held by %s: %w", positionID, rec.Owner.Hex(), token.ErrNotOwner)
	}
	return rec, nil
}
