package token

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrInvalidReceipt is returned for id 0 or an unknown receipt id.
	ErrInvalidReceipt = errors.New("invalid receipt id")
	// ErrNotOwner is returned when a caller does not hold the receipt.
	ErrNotOwner = errors.New("caller does not own receipt")
	// ErrBatchCeiling is returned when a batch exceeds the configured bound.
	ErrBatchCeiling = errors.New("batch size over ceiling")
	// ErrDebtOutstanding is returned when transferring or burning a receipt
	// that still carries debt.
	ErrDebtOutstanding = errors.New("receipt has outstanding debt")
)

// PoolTag names which of the two known pools a receipt's liquidity sits in.
type PoolTag uint8

const (
	PoolInvalid PoolTag = iota
	PoolGame            // game token / paired asset pool
	PoolAsset           // asset-only secondary pool
)

func (p PoolTag) String() string {
	switch p {
	case PoolGame:
		return "game"
	case PoolAsset:
		return "asset"
	default:
		return "invalid"
	}
}

// Receipt is one supply-1 position token. Share and debt balances are
// mutated only through the registry by the bureau that owns each figure.
type Receipt struct {
	ID         uint64
	Owner      common.Address
	Pool       PoolTag
	Liquidity  *big.Int
	GameShare  *big.Int
	AssetShare *big.Int
	Debt       *big.Int
}

// ReceiptRegistry mints, burns and tracks position receipts. Id 0 is
// reserved as invalid; every live id has exactly one owner.
type ReceiptRegistry struct {
	nextID       uint64
	batchCeiling int
	receipts     map[uint64]*Receipt
	byOwner      map[common.Address]map[uint64]struct{}
	addrByID     map[uint64]common.Address
	idByAddr     map[common.Address]uint64
}

// NewReceiptRegistry creates a registry with the given batch ceiling.
func NewReceiptRegistry(batchCeiling int) *ReceiptRegistry {
	return &ReceiptRegistry{
		nextID:       1,
		batchCeiling: batchCeiling,
		receipts:     make(map[uint64]*Receipt),
		byOwner:      make(map[common.Address]map[uint64]struct{}),
		addrByID:     make(map[uint64]common.Address),
		idByAddr:     make(map[common.Address]uint64),
	}
}

// Mint issues a fresh receipt to owner in the given pool.
func (r *ReceiptRegistry) Mint(owner common.Address, pool PoolTag) (uint64, error) {
	if owner == (common.Address{}) {
		return 0, ErrZeroAddress
	}
	id := r.nextID
	r.nextID++

	r.receipts[id] = &Receipt{
		ID:         id,
		Owner:      owner,
		Pool:       pool,
		Liquidity:  big.NewInt(0),
		GameShare:  big.NewInt(0),
		AssetShare: big.NewInt(0),
		Debt:       big.NewInt(0),
	}
	r.index(owner, id)
	return id, nil
}

// MintBatch issues count receipts to owner, bounded by the batch ceiling.
func (r *ReceiptRegistry) MintBatch(owner common.Address, pool PoolTag, count int) ([]uint64, error) {
	if count <= 0 {
		return nil, fmt.Errorf("batch count %d: %w", count, ErrInvalidReceipt)
	}
	if count > r.batchCeiling {
		return nil, fmt.Errorf("batch count %d over ceiling %d: %w", count, r.batchCeiling, ErrBatchCeiling)
	}
	ids := make([]uint64, 0, count)
	for i := 0; i < count; i++ {
		id, err := r.Mint(owner, pool)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Burn destroys a receipt. Outstanding debt must be settled first.
func (r *ReceiptRegistry) Burn(id uint64) error {
	rec, err := r.Get(id)
	if err != nil {
		return err
	}
	if rec.Debt.Sign() != 0 {
		return fmt.Errorf("burn receipt %d: %w", id, ErrDebtOutstanding)
	}
	r.unindex(rec.Owner, id)
	delete(r.receipts, id)
	if addr, ok := r.addrByID[id]; ok {
		delete(r.idByAddr, addr)
		delete(r.addrByID, id)
	}
	return nil
}

// BurnBatch destroys several receipts, bounded by the batch ceiling.
// Validation runs over the whole batch before any receipt is burned.
func (r *ReceiptRegistry) BurnBatch(ids []uint64) error {
	if len(ids) > r.batchCeiling {
		return fmt.Errorf("batch count %d over ceiling %d: %w", len(ids), r.batchCeiling, ErrBatchCeiling)
	}
	for _, id := range ids {
		rec, err := r.Get(id)
		if err != nil {
			return err
		}
		if rec.Debt.Sign() != 0 {
			return fmt.Errorf("burn receipt %d: %w", id, ErrDebtOutstanding)
		}
	}
	for _, id := range ids {
		if err := r.Burn(id); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the receipt for id.
func (r *ReceiptRegistry) Get(id uint64) (*Receipt, error) {
	if id == 0 {
		return nil, fmt.Errorf("id 0 is reserved: %w", ErrInvalidReceipt)
	}
	rec, ok := r.receipts[id]
	if !ok {
		return nil, fmt.Errorf("receipt %d: %w", id, ErrInvalidReceipt)
	}
	return rec, nil
}

// OwnerOf returns the holder of id.
func (r *ReceiptRegistry) OwnerOf(id uint64) (common.Address, error) {
	rec, err := r.Get(id)
	if err != nil {
		return common.Address{}, err
	}
	return rec.Owner, nil
}

// Transfer moves a receipt between holders. Receipts carrying debt are
// frozen until the debt is repaid.
func (r *ReceiptRegistry) Transfer(from, to common.Address, id uint64) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	rec, err := r.Get(id)
	if err != nil {
		return err
	}
	if rec.Owner != from {
		return fmt.Errorf("receipt %d held by %s: %w", id, rec.Owner.Hex(), ErrNotOwner)
	}
	if rec.Debt.Sign() != 0 {
		return fmt.Errorf("transfer receipt %d: %w", id, ErrDebtOutstanding)
	}
	r.unindex(from, id)
	rec.Owner = to
	r.index(to, id)
	return nil
}

// IDsOf enumerates the receipt ids held by owner, ascending.
func (r *ReceiptRegistry) IDsOf(owner common.Address) []uint64 {
	set, ok := r.byOwner[owner]
	if !ok {
		return nil
	}
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AddressOf derives (and caches) the auxiliary per-position address for id.
func (r *ReceiptRegistry) AddressOf(id uint64) (common.Address, error) {
	if _, err := r.Get(id); err != nil {
		return common.Address{}, err
	}
	if addr, ok := r.addrByID[id]; ok {
		return addr, nil
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	hash := crypto.Keccak256([]byte("liquidityForge/receipt"), buf[:])
	addr := common.BytesToAddress(hash[12:])
	r.addrByID[id] = addr
	r.idByAddr[addr] = id
	return addr, nil
}

// IDOf translates a previously derived per-position address back to its id.
func (r *ReceiptRegistry) IDOf(addr common.Address) (uint64, error) {
	id, ok := r.idByAddr[addr]
	if !ok {
		return 0, fmt.Errorf("address %s: %w", addr.Hex(), ErrInvalidReceipt)
	}
	return id, nil
}

func (r *ReceiptRegistry) index(owner common.Address, id uint64) {
	set, ok := r.byOwner[owner]
	if !ok {
		set = make(map[uint64]struct{})
		r.byOwner[owner] = set
	}
	set[id] = struct{}{}
}

func (r *ReceiptRegistry) unindex(owner common.Address, id uint64) {
	if set, ok := r.byOwner[owner]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byOwner, owner)
		}
	}
}
