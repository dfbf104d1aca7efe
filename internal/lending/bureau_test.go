package lending

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"liquidityForge/internal/guard"
	"liquidityForge/internal/journal"
	"liquidityForge/internal/token"
)

var (
	bureauAddr   = common.HexToAddress("0x0000000000000000000000000000000000000801")
	gameAddr     = common.HexToAddress("0x0000000000000000000000000000000000000901")
	debtAddr     = common.HexToAddress("0x0000000000000000000000000000000000000903")
	treasuryAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	alice        = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob          = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

// markCollateral stands in for the routing layer: ValueOf returns a settable
// mark and Seize records where the proceeds went.
type markCollateral struct {
	value    *big.Int
	proceeds *big.Int
	seized   []uint64
	seizedTo common.Address
}

func (c *markCollateral) ValueOf(uint64) (*big.Int, error) {
	return new(big.Int).Set(c.value), nil
}

func (c *markCollateral) Seize(id uint64, recipient common.Address) (*big.Int, error) {
	c.seized = append(c.seized, id)
	c.seizedTo = recipient
	return new(big.Int).Set(c.proceeds), nil
}

type fixture struct {
	receipts   *token.ReceiptRegistry
	debt       *token.Ledger
	game       *token.Ledger
	collateral *markCollateral
	guard      *guard.Guard
	bureau     *Bureau
	now        int64
}

// newFixture registers a balanced position worth 2000 in asset terms
// (asset share 1000) held by alice.
func newFixture(t *testing.T) (*fixture, uint64) {
	t.Helper()

	f := &fixture{
		receipts:   token.NewReceiptRegistry(16),
		debt:       token.NewLedger("DEBT", debtAddr),
		game:       token.NewLedger("GAME", gameAddr),
		collateral: &markCollateral{value: big.NewInt(2_000), proceeds: big.NewInt(2_000)},
		guard:      guard.New(),
		now:        1_000,
	}

	var err error
	f.bureau, err = New(Config{
		LTVBps:                  5_000,
		LiquidationThresholdBps: 7_500,
		LiquidationBonusBps:     500,
		RewardRate:              big.NewInt(10),
		Address:                 bureauAddr,
		Treasury:                treasuryAddr,
	}, f.receipts, f.debt, f.game, f.collateral, journal.New(), f.guard, nil, func() int64 { return f.now })
	require.NoError(t, err)

	id, err := f.receipts.Mint(alice, token.PoolGame)
	require.NoError(t, err)
	rec, err := f.receipts.Get(id)
	require.NoError(t, err)
	rec.GameShare = big.NewInt(1_000)
	rec.AssetShare = big.NewInt(1_000)
	rec.Liquidity = big.NewInt(1_000)

	require.NoError(t, f.bureau.Collateralize(alice, id))
	return f, id
}

func TestCollateralizeTwiceRejected(t *testing.T) {
	f, id := newFixture(t)
	require.ErrorIs(t, f.bureau.Collateralize(alice, id), ErrAlreadyCollateralized)
}

func TestBorrowWithinCeiling(t *testing.T) {
	f, id := newFixture(t)

	// Value 2000 at 50% LTV: ceiling 1000.
	require.NoError(t, f.bureau.Borrow(alice, id, big.NewInt(600)))
	require.Zero(t, f.debt.BalanceOf(alice).Cmp(big.NewInt(600)))
	require.Zero(t, f.debt.TotalSupply().Cmp(big.NewInt(600)))

	debt, err := f.bureau.DebtOf(id)
	require.NoError(t, err)
	require.Zero(t, debt.Cmp(big.NewInt(600)))

	// The debt-carrying receipt is frozen.
	require.ErrorIs(t, f.receipts.Transfer(alice, bob, id), token.ErrDebtOutstanding)
}

func TestBorrowPastCeilingRejected(t *testing.T) {
	f, id := newFixture(t)

	require.NoError(t, f.bureau.Borrow(alice, id, big.NewInt(900)))
	err := f.bureau.Borrow(alice, id, big.NewInt(200))
	require.ErrorIs(t, err, ErrInsufficientCollateral)

	// Failed borrow minted nothing.
	debt, err := f.bureau.DebtOf(id)
	require.NoError(t, err)
	require.Zero(t, debt.Cmp(big.NewInt(900)))
	require.Zero(t, f.debt.BalanceOf(alice).Cmp(big.NewInt(900)))
}

func TestBorrowRequiresCollateralization(t *testing.T) {
	f, _ := newFixture(t)
	id, err := f.receipts.Mint(bob, token.PoolGame)
	require.NoError(t, err)
	require.ErrorIs(t, f.bureau.Borrow(bob, id, big.NewInt(1)), ErrNotCollateralized)
}

func TestRepayAndOverRepay(t *testing.T) {
	f, id := newFixture(t)
	require.NoError(t, f.bureau.Borrow(alice, id, big.NewInt(500)))

	require.NoError(t, f.bureau.Repay(alice, id, big.NewInt(200)))
	debt, err := f.bureau.DebtOf(id)
	require.NoError(t, err)
	require.Zero(t, debt.Cmp(big.NewInt(300)))
	require.Zero(t, f.debt.TotalSupply().Cmp(big.NewInt(300)))

	// Over-repayment rejected with no mutation.
	require.ErrorIs(t, f.bureau.Repay(alice, id, big.NewInt(301)), ErrOverRepay)
	debt, err = f.bureau.DebtOf(id)
	require.NoError(t, err)
	require.Zero(t, debt.Cmp(big.NewInt(300)))

	require.NoError(t, f.bureau.Repay(alice, id, big.NewInt(300)))
	require.NoError(t, f.receipts.Transfer(alice, bob, id), "debt-free receipt transfers again")
}

func TestHarvestPaysYieldWithoutTouchingDebt(t *testing.T) {
	f, id := newFixture(t)
	require.NoError(t, f.bureau.Borrow(alice, id, big.NewInt(500)))

	f.now += 100
	yield, err := f.bureau.Harvest(alice, id)
	require.NoError(t, err)
	// Sole staker: full emission of 10/s over 100s.
	require.Zero(t, yield.Cmp(big.NewInt(1_000)))
	require.Zero(t, f.game.BalanceOf(alice).Cmp(big.NewInt(1_000)))

	debt, err := f.bureau.DebtOf(id)
	require.NoError(t, err)
	require.Zero(t, debt.Cmp(big.NewInt(500)), "harvest must not touch debt")

	// Immediately harvesting again yields nothing.
	again, err := f.bureau.Harvest(alice, id)
	require.NoError(t, err)
	require.Zero(t, again.Sign())
}

func TestReleaseRequiresZeroDebt(t *testing.T) {
	f, id := newFixture(t)
	require.NoError(t, f.bureau.Borrow(alice, id, big.NewInt(100)))
	require.ErrorIs(t, f.bureau.Release(alice, id), token.ErrDebtOutstanding)

	require.NoError(t, f.bureau.Repay(alice, id, big.NewInt(100)))
	require.NoError(t, f.bureau.Release(alice, id))

	// Released positions stop accruing and can re-collateralize.
	require.NoError(t, f.bureau.Collateralize(alice, id))
}

func TestLiquidationTriggeredByValueDrop(t *testing.T) {
	f, id := newFixture(t)

	// Borrow to the ceiling at the registered value of 2000.
	require.NoError(t, f.bureau.Borrow(alice, id, big.NewInt(1_000)))
	due, err := f.bureau.Liquidatable(id)
	require.NoError(t, err)
	require.False(t, due, "a fresh maxed loan is above water")

	// Default checks mark to the current pool price: debt 1000 at a 75%
	// threshold crosses strictly below a value of 1333.33.
	f.collateral.value = big.NewInt(1_334)
	due, err = f.bureau.Liquidatable(id)
	require.NoError(t, err)
	require.False(t, due)

	f.collateral.value = big.NewInt(1_333)
	due, err = f.bureau.Liquidatable(id)
	require.NoError(t, err)
	require.True(t, due)
}

func TestLiquidateSeizesStakeAndRetiresDebt(t *testing.T) {
	f, id := newFixture(t)
	require.NoError(t, f.bureau.Borrow(alice, id, big.NewInt(1_000)))

	f.collateral.value = big.NewInt(1_000)
	f.collateral.proceeds = big.NewInt(1_200)

	bonus, err := f.bureau.Liquidate(bob, id)
	require.NoError(t, err)

	// The pool stake was unwound to the treasury.
	require.Equal(t, []uint64{id}, f.collateral.seized)
	require.Equal(t, treasuryAddr, f.collateral.seizedTo)

	// The borrower's debt tokens left circulation with the debt.
	require.Zero(t, f.debt.BalanceOf(alice).Sign())
	require.Zero(t, f.debt.TotalSupply().Sign())

	// Surplus 1200-1000=200 at 5% bonus: liquidator gets 10.
	require.Zero(t, bonus.Cmp(big.NewInt(10)))
	require.Zero(t, f.game.BalanceOf(bob).Cmp(big.NewInt(10)))

	// Receipt stays with alice, debt-free.
	rec, err := f.receipts.Get(id)
	require.NoError(t, err)
	require.Equal(t, alice, rec.Owner)
	require.Zero(t, rec.Debt.Sign())

	_, err = f.bureau.Liquidate(bob, id)
	require.ErrorIs(t, err, ErrNotCollateralized)
}

func TestLiquidateRetiresOnlyHeldDebtTokens(t *testing.T) {
	f, id := newFixture(t)
	require.NoError(t, f.bureau.Borrow(alice, id, big.NewInt(1_000)))

	// Debt tokens are transferable; a holder can move some away before
	// default.
	require.NoError(t, f.debt.Transfer(alice, bob, big.NewInt(400)))

	f.collateral.value = big.NewInt(1_000)
	_, err := f.bureau.Liquidate(bob, id)
	require.NoError(t, err)

	require.Zero(t, f.debt.BalanceOf(alice).Sign())
	require.Zero(t, f.debt.BalanceOf(bob).Cmp(big.NewInt(400)))
	require.Zero(t, f.debt.TotalSupply().Cmp(big.NewInt(400)))
}

func TestLiquidateHealthyPositionRejected(t *testing.T) {
	f, id := newFixture(t)
	require.NoError(t, f.bureau.Borrow(alice, id, big.NewInt(1_000)))
	_, err := f.bureau.Liquidate(bob, id)
	require.ErrorIs(t, err, ErrNotLiquidatable)
}

func TestLendingReentrancyGuarded(t *testing.T) {
	f, id := newFixture(t)

	release, err := f.guard.Enter(Cap)
	require.NoError(t, err)
	defer release()

	err = f.bureau.Borrow(alice, id, big.NewInt(100))
	require.ErrorIs(t, err, guard.ErrReentered)

	debt, derr := f.bureau.DebtOf(id)
	require.NoError(t, derr)
	require.Zero(t, debt.Sign(), "blocked borrow must not mutate debt")
}
