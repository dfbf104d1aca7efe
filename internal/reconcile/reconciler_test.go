package reconcile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"liquidityForge/internal/model"
	"liquidityForge/internal/wad"
)

const testPool = "0x0000000000000000000000000000000000000701"

type captureStore struct {
	batches [][]model.PoolWindowMetrics
}

func (c *captureStore) UpsertWindowMetrics(_ context.Context, metrics []model.PoolWindowMetrics) error {
	batch := make([]model.PoolWindowMetrics, len(metrics))
	copy(batch, metrics)
	c.batches = append(c.batches, batch)
	return nil
}

func (c *captureStore) all() []model.PoolWindowMetrics {
	var out []model.PoolWindowMetrics
	for _, batch := range c.batches {
		out = append(out, batch...)
	}
	return out
}

func poolMeta() *model.PoolMeta {
	sqrtX96 := "79228162514264337593543950336" // 2^96, price 1.0
	return &model.PoolMeta{
		Token0: "0x0000000000000000000000000000000000000901",
		Token1: "0x0000000000000000000000000000000000000902",
		FeePPM: 3000,
		Slot0:  &model.PoolSlot0{SqrtPriceX96: sqrtX96, Tick: 0},
	}
}

func writeJournal(t *testing.T, events []model.EconomyEvent) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	file, err := os.Create(path)
	require.NoError(t, err)
	enc := json.NewEncoder(file)
	for _, evt := range events {
		require.NoError(t, enc.Encode(evt))
	}
	require.NoError(t, file.Close())
	return path
}

func sampleEvents() []model.EconomyEvent {
	return []model.EconomyEvent{
		{
			Seq: 1, Timestamp: 100, EventName: model.EventPositionMinted, Emitter: testPool,
			Decoded: model.PositionMintedData{
				Sender: "0xaa", Recipient: "0xaa", PoolAddress: testPool,
				PositionID: 1,
				GameShare:  wad.FromInt64(500).String(),
				AssetShare: wad.FromInt64(500).String(),
				Liquidity:  wad.FromInt64(50).String(),
			},
			PoolMeta: poolMeta(),
		},
		{
			Seq: 2, Timestamp: 110, EventName: model.EventTokenBought, Emitter: testPool,
			Decoded: model.TokenBoughtData{
				Sender: "0xaa", Recipient: "0xaa",
				AmountIn:  wad.FromInt64(1_000).String(),
				AmountOut: wad.FromInt64(990).String(),
			},
			PoolMeta: poolMeta(),
		},
		{
			Seq: 3, Timestamp: 130, EventName: model.EventTokenSold, Emitter: testPool,
			Decoded: model.TokenSoldData{
				Sender: "0xbb", Recipient: "0xbb",
				AmountIn:  wad.FromInt64(200).String(),
				AmountOut: wad.FromInt64(198).String(),
			},
			PoolMeta: poolMeta(),
		},
	}
}

func TestRunFoldsWindows(t *testing.T) {
	path := writeJournal(t, sampleEvents())
	store := &captureStore{}

	r := New(Config{WindowSeconds: 60}, store, nil)
	require.NoError(t, r.Run(context.Background(), path))

	metrics := store.all()
	require.Len(t, metrics, 2)

	first := metrics[0]
	require.Equal(t, testPool, first.PoolAddress)
	require.EqualValues(t, 60, first.WindowStart.Unix())
	require.EqualValues(t, 120, first.WindowEnd.Unix())
	require.EqualValues(t, 1, first.MintCount)
	require.EqualValues(t, 1, first.BuyCount)
	require.Zero(t, first.SellCount)
	require.Equal(t, "50", first.LiquidityAdded)
	require.Equal(t, "1000", first.AssetVolume)
	require.Equal(t, "990", first.GameVolume)
	// 0.3% of 1000 asset in.
	require.Equal(t, "3", first.AssetFees)
	require.Equal(t, "0", first.GameFees)
	require.NotNil(t, first.LastPrice)
	require.Equal(t, "1.000000000000000000", *first.LastPrice)

	second := metrics[1]
	require.EqualValues(t, 120, second.WindowStart.Unix())
	require.EqualValues(t, 1, second.SellCount)
	require.Equal(t, "200", second.GameVolume)
	require.Equal(t, "198", second.AssetVolume)
	require.Equal(t, "0.6", second.GameFees)
}

func TestRunResumesFromState(t *testing.T) {
	path := writeJournal(t, sampleEvents())
	statePath := filepath.Join(t.TempDir(), "state.json")
	state := &FileStateStore{Path: statePath}

	store := &captureStore{}
	r := New(Config{WindowSeconds: 60, StateStore: state}, store, nil)
	require.NoError(t, r.Run(context.Background(), path))
	require.Len(t, store.all(), 2)

	seq, ok, err := state.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 3, seq)

	// A second run over the same file finds nothing new.
	again := &captureStore{}
	r2 := New(Config{WindowSeconds: 60, StateStore: state}, again, nil)
	require.NoError(t, r2.Run(context.Background(), path))
	require.Empty(t, again.all())
}

func TestRecomputeOverridesState(t *testing.T) {
	path := writeJournal(t, sampleEvents())
	statePath := filepath.Join(t.TempDir(), "state.json")
	state := &FileStateStore{Path: statePath}
	require.NoError(t, state.Save(context.Background(), 3))

	store := &captureStore{}
	r := New(Config{WindowSeconds: 60, StateStore: state, RecomputeFromSeq: 1}, store, nil)
	require.NoError(t, r.Run(context.Background(), path))
	require.Len(t, store.all(), 2)
}

func TestMalformedLinesAreSkipped(t *testing.T) {
	path := writeJournal(t, sampleEvents())
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = file.WriteString("{not json}\n\n")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	store := &captureStore{}
	r := New(Config{WindowSeconds: 60}, store, nil)
	require.NoError(t, r.Run(context.Background(), path))
	require.Len(t, store.all(), 2)
}

func TestAuctionSettlementsTrackedPerEmitter(t *testing.T) {
	treasury := "0x00000000000000000000000000000000000000f1"
	events := []model.EconomyEvent{
		{
			Seq: 1, Timestamp: 100, EventName: model.EventAuctionSettled, Emitter: treasury,
			Decoded: model.AuctionSettledData{
				SlotID: 1, PositionID: 9, Buyer: "0xaa",
				RealizedPrice: wad.FromInt64(100).String(),
				StartedAt:     40, SettledAt: 100,
			},
		},
		{
			Seq: 2, Timestamp: 105, EventName: model.EventAuctionSettled, Emitter: treasury,
			Decoded: model.AuctionSettledData{
				SlotID: 2, PositionID: 10, Buyer: "0xbb",
				RealizedPrice: wad.FromInt64(102).String(),
				StartedAt:     40, SettledAt: 105,
			},
		},
	}
	path := writeJournal(t, events)

	store := &captureStore{}
	r := New(Config{WindowSeconds: 60}, store, nil)
	require.NoError(t, r.Run(context.Background(), path))

	metrics := store.all()
	require.Len(t, metrics, 1)
	require.Equal(t, treasury, metrics[0].PoolAddress)
	require.EqualValues(t, 2, metrics[0].AuctionCount)
	require.NotNil(t, metrics[0].LastAuctionPrice)
	require.Equal(t, "102", *metrics[0].LastAuctionPrice)
	require.Zero(t, metrics[0].BuyCount)
}

func TestPriceFromSqrtX96(t *testing.T) {
	require.Equal(t, "", priceFromSqrtX96(nil))
	require.Equal(t, "", priceFromSqrtX96(&model.PoolSlot0{SqrtPriceX96: "bogus"}))

	// 2 * 2^96 squares to a price of 4.
	doubled := "158456325028528675187087900672"
	require.Equal(t, "4.000000000000000000",
		priceFromSqrtX96(&model.PoolSlot0{SqrtPriceX96: doubled}))
}
