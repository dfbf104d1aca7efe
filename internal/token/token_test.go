package token

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	gameAddr = common.HexToAddress("0x0000000000000000000000000000000000000901")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestLedgerMintTransferBurn(t *testing.T) {
	l := NewLedger("GAME", gameAddr)

	if err := l.Mint(alice, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Transfer(alice, bob, big.NewInt(400)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := l.Burn(bob, big.NewInt(100)); err != nil {
		t.Fatalf("burn: %v", err)
	}

	if got := l.BalanceOf(alice); got.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("alice balance %s, want 600", got)
	}
	if got := l.BalanceOf(bob); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("bob balance %s, want 300", got)
	}
	if got := l.TotalSupply(); got.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("supply %s, want 900", got)
	}
}

func TestLedgerOverdraftRejected(t *testing.T) {
	l := NewLedger("GAME", gameAddr)
	if err := l.Mint(alice, big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Transfer(alice, bob, big.NewInt(11)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := l.BalanceOf(alice); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("failed transfer mutated balance: %s", got)
	}
}

func TestLedgerTransferFromAllowance(t *testing.T) {
	l := NewLedger("GAME", gameAddr)
	if err := l.Mint(alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Approve(alice, bob, big.NewInt(60)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := l.TransferFrom(bob, alice, bob, big.NewInt(40)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	if got := l.Allowance(alice, bob); got.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("allowance %s, want 20", got)
	}
	if err := l.TransferFrom(bob, alice, bob, big.NewInt(21)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
}

func TestReceiptLifecycle(t *testing.T) {
	r := NewReceiptRegistry(16)

	id, err := r.Mint(alice, PoolGame)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if id == 0 {
		t.Fatalf("id 0 is reserved")
	}

	owner, err := r.OwnerOf(id)
	if err != nil || owner != alice {
		t.Fatalf("owner %s err %v", owner.Hex(), err)
	}

	if err := r.Transfer(alice, bob, id); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if ids := r.IDsOf(bob); len(ids) != 1 || ids[0] != id {
		t.Fatalf("bob ids %v", ids)
	}
	if ids := r.IDsOf(alice); len(ids) != 0 {
		t.Fatalf("alice should hold nothing, got %v", ids)
	}

	if err := r.Burn(id); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if _, err := r.Get(id); !errors.Is(err, ErrInvalidReceipt) {
		t.Fatalf("expected ErrInvalidReceipt after burn, got %v", err)
	}
}

func TestReceiptZeroIDInvalid(t *testing.T) {
	r := NewReceiptRegistry(16)
	if _, err := r.Get(0); !errors.Is(err, ErrInvalidReceipt) {
		t.Fatalf("expected ErrInvalidReceipt, got %v", err)
	}
}

func TestReceiptDebtFreezesTransferAndBurn(t *testing.T) {
	r := NewReceiptRegistry(16)
	id, err := r.Mint(alice, PoolGame)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	rec, _ := r.Get(id)
	rec.Debt = big.NewInt(5)

	if err := r.Transfer(alice, bob, id); !errors.Is(err, ErrDebtOutstanding) {
		t.Fatalf("expected ErrDebtOutstanding on transfer, got %v", err)
	}
	if err := r.Burn(id); !errors.Is(err, ErrDebtOutstanding) {
		t.Fatalf("expected ErrDebtOutstanding on burn, got %v", err)
	}

	rec.Debt = big.NewInt(0)
	if err := r.Burn(id); err != nil {
		t.Fatalf("burn after settling debt: %v", err)
	}
}

func TestReceiptBatchCeiling(t *testing.T) {
	r := NewReceiptRegistry(3)

	ids, err := r.MintBatch(alice, PoolGame, 3)
	if err != nil || len(ids) != 3 {
		t.Fatalf("mint batch: %v (%d ids)", err, len(ids))
	}
	if _, err := r.MintBatch(alice, PoolGame, 4); !errors.Is(err, ErrBatchCeiling) {
		t.Fatalf("expected ErrBatchCeiling, got %v", err)
	}

	if err := r.BurnBatch(ids); err != nil {
		t.Fatalf("burn batch: %v", err)
	}
	if ids := r.IDsOf(alice); len(ids) != 0 {
		t.Fatalf("receipts should be gone, got %v", ids)
	}
}

func TestReceiptAddressRoundTrip(t *testing.T) {
	r := NewReceiptRegistry(16)
	id, err := r.Mint(alice, PoolAsset)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	addr, err := r.AddressOf(id)
	if err != nil {
		t.Fatalf("address of: %v", err)
	}
	if addr == (common.Address{}) {
		t.Fatalf("derived address is zero")
	}

	back, err := r.IDOf(addr)
	if err != nil || back != id {
		t.Fatalf("round trip %d -> %s -> %d (err %v)", id, addr.Hex(), back, err)
	}

	again, err := r.AddressOf(id)
	if err != nil || again != addr {
		t.Fatalf("derived address should be stable: %s != %s", again.Hex(), addr.Hex())
	}
}
