package reconcile

import (
	"encoding/json"
	"fmt"
	"math/big"

	"liquidityForge/internal/model"
)

// Accumulator folds one pool's events for one time window.
type Accumulator struct {
	PoolAddress string
	PoolMeta    model.PoolMeta
	WindowStart int64
	WindowEnd   int64

	MintCount      uint64
	CollectCount   uint64
	BuyCount       uint64
	SellCount      uint64
	GameVolume     *big.Int
	AssetVolume    *big.Int
	GameFees       *big.Int
	AssetFees      *big.Int
	LiquidityAdded *big.Int

	AuctionCount     uint64
	LastAuctionPrice *big.Int

	FirstSeq uint64
	LastSeq  uint64
	LastTS   int64
}

// NewAccumulator opens a window seeded from the first record landing in it.
func NewAccumulator(record model.EconomyEventRecord, windowStart, windowEnd int64) *Accumulator {
	acc := &Accumulator{
		PoolAddress:    record.Emitter,
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
		GameVolume:     big.NewInt(0),
		AssetVolume:    big.NewInt(0),
		GameFees:       big.NewInt(0),
		AssetFees:      big.NewInt(0),
		LiquidityAdded: big.NewInt(0),
		FirstSeq:       record.Seq,
		LastSeq:        record.Seq,
		LastTS:         record.Timestamp,
	}
	if record.PoolMeta != nil {
		acc.PoolMeta = *record.PoolMeta
	}
	return acc
}

// AddEvent folds one record into the window. The token orientation comes
// from the payloads themselves: trade events name the game token explicitly,
// position events carry per-side shares.
func (a *Accumulator) AddEvent(record model.EconomyEventRecord) error {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
		a.LastSeq = record.Seq
	}
	if record.PoolMeta != nil {
		a.PoolMeta = *record.PoolMeta
	}

	switch record.EventName {
	case model.EventPositionMinted:
		var data model.PositionMintedData
		if err := json.Unmarshal(record.Decoded, &data); err != nil {
			return fmt.Errorf("decode %s: %w", record.EventName, err)
		}
		liquidity, err := parseBigInt(data.Liquidity)
		if err != nil {
			return err
		}
		a.LiquidityAdded.Add(a.LiquidityAdded, liquidity)
		a.MintCount++
		return nil

	case model.EventPositionCollected:
		a.CollectCount++
		return nil

	case model.EventTokenBought:
		var data model.TokenBoughtData
		if err := json.Unmarshal(record.Decoded, &data); err != nil {
			return fmt.Errorf("decode %s: %w", record.EventName, err)
		}
		return a.applyTrade(data.AmountIn, data.AmountOut, false)

	case model.EventTokenSold:
		var data model.TokenSoldData
		if err := json.Unmarshal(record.Decoded, &data); err != nil {
			return fmt.Errorf("decode %s: %w", record.EventName, err)
		}
		return a.applyTrade(data.AmountIn, data.AmountOut, true)

	case model.EventAuctionSettled:
		var data model.AuctionSettledData
		if err := json.Unmarshal(record.Decoded, &data); err != nil {
			return fmt.Errorf("decode %s: %w", record.EventName, err)
		}
		price, err := parseBigInt(data.RealizedPrice)
		if err != nil {
			return err
		}
		a.AuctionCount++
		a.LastAuctionPrice = price
		return nil

	default:
		// Lending events are journal-only; windows track market activity.
		return nil
	}
}

// applyTrade books a swap. Buys pay the asset in and take game tokens out;
// sells are the inverse. The fee approximation charges the pool's fee tier
// against the input side, matching how the pool actually levies it.
func (a *Accumulator) applyTrade(amountIn, amountOut string, gameIn bool) error {
	in, err := parseBigInt(amountIn)
	if err != nil {
		return err
	}
	out, err := parseBigInt(amountOut)
	if err != nil {
		return err
	}

	if gameIn {
		a.GameVolume.Add(a.GameVolume, in)
		a.AssetVolume.Add(a.AssetVolume, out)
		a.GameFees.Add(a.GameFees, feeFromAmount(in, a.PoolMeta.FeePPM))
		a.SellCount++
	} else {
		a.AssetVolume.Add(a.AssetVolume, in)
		a.GameVolume.Add(a.GameVolume, out)
		a.AssetFees.Add(a.AssetFees, feeFromAmount(in, a.PoolMeta.FeePPM))
		a.BuyCount++
	}
	return nil
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}

func feeFromAmount(amountIn *big.Int, feePPM uint32) *big.Int {
	if amountIn == nil || feePPM == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Abs(amountIn)
	fee.Mul(fee, big.NewInt(int64(feePPM)))
	fee.Div(fee, big.NewInt(1_000_000))
	return fee
}
