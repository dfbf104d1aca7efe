// Package auction runs the rolling set of concurrent position sales. Each
// slot prices its position through the VRGDA engine from the bureau-wide
// sold count and the slot's own start time; settlement hands the receipt to
// the buyer and reopens capacity.
package auction

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liquidityForge/internal/guard"
	"liquidityForge/internal/journal"
	"liquidityForge/internal/model"
	"liquidityForge/internal/pooler"
	"liquidityForge/internal/token"
	"liquidityForge/internal/vrgda"
	"liquidityForge/internal/wad"
)

// Cap tags the bureau's reentrancy capability.
const Cap guard.Capability = "auction"

var (
	// ErrSlotNotActive is returned for purchases against empty or settled
	// slots.
	ErrSlotNotActive = errors.New("auction slot not active")
	// ErrBidTooLow is returned when a bid is under the current price.
	ErrBidTooLow = errors.New("bid below current auction price")
	// ErrCapacity is returned when opening a slot past the configured
	// concurrent maximum.
	ErrCapacity = errors.New("auction capacity reached")
)

// SlotState is the lifecycle of one auction slot.
type SlotState uint8

const (
	StateEmpty SlotState = iota
	StateActive
	StateSettled
)

func (s SlotState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateSettled:
		return "settled"
	default:
		return "empty"
	}
}

// Slot is one in-flight sale.
type Slot struct {
	ID            uint64
	State         SlotState
	PositionID    uint64
	StartPrice    *big.Int
	StartedAt     int64
	RealizedPrice *big.Int
	SettledAt     int64
}

// Config parameterizes the bureau.
type Config struct {
	// TargetPrice is the initial reference price in asset wad units.
	TargetPrice *big.Int
	// DecayRate is the per-period price decay, in (0, 1).
	DecayRate decimal.Decimal
	// PeriodSeconds is the wall length of one decay period.
	PeriodSeconds int64
	// PriceIncrementBps bumps the reference after each sale.
	PriceIncrementBps uint32
	// MinPriceBps / MaxPriceBps bound the reference price in basis points
	// of the configured target.
	MinPriceBps uint32
	MaxPriceBps uint32
	// MaxSlots bounds concurrently active slots.
	MaxSlots int
	// SeedGameAmount is the game-token amount each fresh position is
	// minted with.
	SeedGameAmount *big.Int
}

// Bureau owns the slot set and settles purchases against the routing layer.
type Bureau struct {
	cfg      Config
	decayK   decimal.Decimal
	pooler   *pooler.Pooler
	receipts *token.ReceiptRegistry
	asset    token.Fungible
	treasury common.Address
	journal  *journal.Journal
	guard    *guard.Guard
	logger   *zap.Logger
	clock    func() int64

	slots     map[uint64]*Slot
	nextSlot  uint64
	active    int
	totalSold int64
	reference *big.Int
}

// New precomputes the decay constant and builds the bureau.
func New(cfg Config, p *pooler.Pooler, receipts *token.ReceiptRegistry, asset token.Fungible,
	treasury common.Address, j *journal.Journal, g *guard.Guard, logger *zap.Logger, clock func() int64) (*Bureau, error) {

	if logger == nil {
		logger = zap.NewNop()
	}
	if g == nil {
		g = guard.New()
	}
	if cfg.PeriodSeconds <= 0 {
		return nil, fmt.Errorf("period seconds must be positive")
	}
	if cfg.MaxSlots <= 0 {
		return nil, fmt.Errorf("max slots must be positive")
	}
	if cfg.MinPriceBps == 0 || cfg.MaxPriceBps < cfg.MinPriceBps {
		return nil, fmt.Errorf("price bounds misconfigured: min %d max %d", cfg.MinPriceBps, cfg.MaxPriceBps)
	}
	k, err := vrgda.DecayConstant(cfg.DecayRate)
	if err != nil {
		return nil, fmt.Errorf("decay rate: %w", err)
	}

	return &Bureau{
		cfg:       cfg,
		decayK:    k,
		pooler:    p,
		receipts:  receipts,
		asset:     asset,
		treasury:  treasury,
		journal:   j,
		guard:     g,
		logger:    logger,
		clock:     clock,
		slots:     make(map[uint64]*Slot),
		nextSlot:  1,
		reference: new(big.Int).Set(cfg.TargetPrice),
	}, nil
}

// OpenSlot mints a fresh unsold position from the treasury's game tokens
// and activates a new slot around it. Admin operation.
func (b *Bureau) OpenSlot() (uint64, error) {
	release, err := b.guard.Enter(Cap)
	if err != nil {
		return 0, err
	}
	defer release()

	return b.openSlot()
}

func (b *Bureau) openSlot() (uint64, error) {
	if b.active >= b.cfg.MaxSlots {
		return 0, fmt.Errorf("%d active of %d: %w", b.active, b.cfg.MaxSlots, ErrCapacity)
	}

	positionID, err := b.pooler.MintWithGameToken(b.treasury, b.cfg.SeedGameAmount, b.treasury)
	if err != nil {
		return 0, fmt.Errorf("mint auction position: %w", err)
	}

	slot := &Slot{
		ID:         b.nextSlot,
		State:      StateActive,
		PositionID: positionID,
		StartPrice: new(big.Int).Set(b.reference),
		StartedAt:  b.clock(),
	}
	b.nextSlot++
	b.slots[slot.ID] = slot
	b.active++

	b.logger.Info("auction slot opened",
		zap.Uint64("slot_id", slot.ID),
		zap.Uint64("position_id", positionID),
		zap.String("start_price", slot.StartPrice.String()),
	)
	return slot.ID, nil
}

// CurrentPrice computes the slot's live price: VRGDA decay from the slot's
// start against the bureau-wide sold count, clamped to the configured
// bounds of the slot's start price.
func (b *Bureau) CurrentPrice(slotID uint64) (*big.Int, error) {
	slot, ok := b.slots[slotID]
	if !ok || slot.State != StateActive {
		return nil, fmt.Errorf("slot %d: %w", slotID, ErrSlotNotActive)
	}
	return b.price(slot)
}

func (b *Bureau) price(slot *Slot) (*big.Int, error) {
	elapsedSeconds := b.clock() - slot.StartedAt
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	elapsed := decimal.New(elapsedSeconds, 0).DivRound(decimal.New(b.cfg.PeriodSeconds, 0), 18)

	price, err := vrgda.Price(slot.StartPrice, b.decayK, elapsed, b.totalSold)
	if err != nil {
		return nil, fmt.Errorf("slot %d price: %w", slot.ID, err)
	}
	return b.clamp(price, slot.StartPrice), nil
}

func (b *Bureau) clamp(price, target *big.Int) *big.Int {
	floor := wad.Bps(target, b.cfg.MinPriceBps)
	ceiling := wad.Bps(target, b.cfg.MaxPriceBps)
	if price.Cmp(floor) < 0 {
		return floor
	}
	if price.Cmp(ceiling) > 0 {
		return ceiling
	}
	return price
}

// Buy settles a slot: the buyer pays the current computed price (the bid is
// the buyer's ceiling), receives the position, and a replacement slot opens
// if capacity allows.
func (b *Bureau) Buy(buyer common.Address, slotID uint64, bid *big.Int) (uint64, error) {
	release, err := b.guard.Enter(Cap)
	if err != nil {
		return 0, err
	}
	defer release()

	slot, ok := b.slots[slotID]
	if !ok || slot.State != StateActive {
		return 0, fmt.Errorf("slot %d: %w", slotID, ErrSlotNotActive)
	}

	price, err := b.price(slot)
	if err != nil {
		return 0, err
	}
	if bid == nil || bid.Cmp(price) < 0 {
		return 0, fmt.Errorf("bid %s price %s: %w", bid, price, ErrBidTooLow)
	}

	if err := b.asset.Transfer(buyer, b.treasury, price); err != nil {
		return 0, fmt.Errorf("settle payment: %w", err)
	}
	if err := b.receipts.Transfer(b.treasury, buyer, slot.PositionID); err != nil {
		// Undo the payment so a failed handover leaves no partial state.
		if undoErr := b.asset.Transfer(b.treasury, buyer, price); undoErr != nil {
			return 0, fmt.Errorf("transfer position: %v (undo failed: %w)", err, undoErr)
		}
		return 0, fmt.Errorf("transfer position: %w", err)
	}

	now := b.clock()
	slot.State = StateSettled
	slot.RealizedPrice = new(big.Int).Set(price)
	slot.SettledAt = now
	b.active--
	b.totalSold++

	// The realized price, bumped by the increment, becomes the reference
	// for subsequent slots, bounded in basis points of the configured
	// target.
	bumped := wad.Bps(price, 10_000+b.cfg.PriceIncrementBps)
	b.reference = b.clamp(bumped, b.cfg.TargetPrice)

	b.journal.Emit(now, model.EventAuctionSettled, b.treasury.Hex(), model.AuctionSettledData{
		SlotID:        slot.ID,
		PositionID:    slot.PositionID,
		Buyer:         buyer.Hex(),
		RealizedPrice: price.String(),
		StartedAt:     slot.StartedAt,
		SettledAt:     now,
	}, nil)
	b.logger.Info("auction settled",
		zap.Uint64("slot_id", slot.ID),
		zap.Uint64("position_id", slot.PositionID),
		zap.String("buyer", buyer.Hex()),
		zap.String("price", price.String()),
	)

	if b.active < b.cfg.MaxSlots {
		if _, err := b.openSlot(); err != nil {
			// Settlement stands even when the replacement cannot open
			// (e.g. treasury ran dry); capacity frees up later.
			b.logger.Warn("replacement slot not opened", zap.Error(err))
		}
	}
	return slot.PositionID, nil
}

// SetMaxSlots adjusts the concurrent slot bound. Admin operation.
func (b *Bureau) SetMaxSlots(n int) error {
	if n <= 0 {
		return fmt.Errorf("max slots must be positive")
	}
	b.cfg.MaxSlots = n
	return nil
}

// Slot returns a copy of the slot's current state.
func (b *Bureau) Slot(slotID uint64) (Slot, error) {
	slot, ok := b.slots[slotID]
	if !ok {
		return Slot{}, fmt.Errorf("slot %d: %w", slotID, ErrSlotNotActive)
	}
	return *slot, nil
}

// ActiveSlots returns the ids of currently active slots.
func (b *Bureau) ActiveSlots() []uint64 {
	ids := make([]uint64, 0, b.active)
	for id, slot := range b.slots {
		if slot.State == StateActive {
			ids = append(ids, id)
		}
	}
	return ids
}

// TotalSold returns the bureau-wide settled sale count.
func (b *Bureau) TotalSold() int64 { return b.totalSold }

// Reference returns the current reference price for new slots.
func (b *Bureau) Reference() *big.Int { return new(big.Int).Set(b.reference) }
