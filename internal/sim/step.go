package sim

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"liquidityForge/internal/wad"
)

// Step ops understood by the runner.
const (
	OpAdvance    = "advance"
	OpFaucet     = "faucet"
	OpOpenSlot   = "open_slot"
	OpAuctionBuy = "auction_buy"
	OpStake      = "stake"
	OpBuy        = "buy"
	OpSell       = "sell"
	OpBorrow     = "borrow"
	OpRepay      = "repay"
	OpHarvest    = "harvest"
	OpExit       = "exit"
)

// Step is one scenario line. Amount fields are whole-unit decimal strings;
// Position and Slot default to the actor's most recent when zero.
type Step struct {
	Op       string `json:"op"`
	Actor    string `json:"actor,omitempty"`
	Seconds  int64  `json:"seconds,omitempty"`
	Game     string `json:"game,omitempty"`
	Asset    string `json:"asset,omitempty"`
	Amount   string `json:"amount,omitempty"`
	Position uint64 `json:"position,omitempty"`
	Slot     uint64 `json:"slot,omitempty"`
	// ExpectError marks steps that exercise a rejection path; the run fails
	// if such a step succeeds.
	ExpectError bool `json:"expect_error,omitempty"`
}

// actorAddress derives a stable address from a scenario actor name.
func actorAddress(name string) (common.Address, error) {
	if name == "" {
		return common.Address{}, fmt.Errorf("step names no actor")
	}
	digest := crypto.Keccak256([]byte("liquidityForge/actor/" + name))
	return common.BytesToAddress(digest[12:]), nil
}

// parseAmount converts a whole-unit decimal string into a wad amount.
func parseAmount(value string) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return wad.FromDecimal(d), nil
}
