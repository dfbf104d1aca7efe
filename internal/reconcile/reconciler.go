// Package reconcile replays the economy journal and rolls pool activity up
// into fixed time windows. It reads the JSONL journal the sim produces,
// folds trade and liquidity events per pool per window, and upserts the
// results, resuming from the last processed sequence number across runs.
package reconcile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"liquidityForge/internal/model"
	"liquidityForge/internal/wad"
)

// MetricsStore receives reconciled window batches.
type MetricsStore interface {
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Config controls reconciliation behavior.
type Config struct {
	WindowSeconds int64
	BatchSize     int
	// RecomputeFromSeq forces a replay from the given sequence number,
	// overriding the state store.
	RecomputeFromSeq uint64
	StateStore       StateStore
}

// Reconciler streams journal records into per-pool window metrics.
type Reconciler struct {
	cfg          Config
	store        MetricsStore
	logger       *zap.Logger
	accumulators map[string]*Accumulator
	lastSeq      uint64
}

// New builds a reconciler writing to store.
func New(cfg Config, store MetricsStore, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
	}
}

// Run reconciles the journal file at inputPath.
func (r *Reconciler) Run(ctx context.Context, inputPath string) error {
	if r.store == nil {
		return fmt.Errorf("store is nil")
	}
	if r.cfg.WindowSeconds <= 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if r.cfg.BatchSize <= 0 {
		r.cfg.BatchSize = 1000
	}

	startSeq, err := r.loadStartSeq(ctx)
	if err != nil {
		return err
	}
	// A run that finds nothing new must not regress the saved state.
	r.lastSeq = startSeq

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	batch := make([]model.PoolWindowMetrics, 0, r.cfg.BatchSize)
	var total, folded, skipped, failed int

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var record model.EconomyEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			r.logger.Warn("decode journal record", zap.Error(err))
			continue
		}

		if record.Seq <= startSeq {
			skipped++
			continue
		}

		windowStart := record.Timestamp - (record.Timestamp % r.cfg.WindowSeconds)
		windowEnd := windowStart + r.cfg.WindowSeconds

		accKey := poolKey(record.Emitter)
		acc := r.accumulators[accKey]
		if acc == nil {
			acc = NewAccumulator(record, windowStart, windowEnd)
			r.accumulators[accKey] = acc
		} else if acc.WindowStart != windowStart {
			if metrics := r.closeWindow(acc); metrics != nil {
				batch = append(batch, *metrics)
			}
			acc = NewAccumulator(record, windowStart, windowEnd)
			r.accumulators[accKey] = acc
		}

		if err := acc.AddEvent(record); err != nil {
			failed++
			r.logger.Warn("fold event", zap.Error(err),
				zap.String("pool", record.Emitter),
				zap.String("event", record.EventName))
			continue
		}
		folded++

		if record.Seq > r.lastSeq {
			r.lastSeq = record.Seq
		}

		if len(batch) >= r.cfg.BatchSize {
			if err := r.store.UpsertWindowMetrics(ctx, batch); err != nil {
				return fmt.Errorf("upsert windows: %w", err)
			}
			batch = batch[:0]
			if err := r.saveState(ctx); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	for _, acc := range r.accumulators {
		if metrics := r.closeWindow(acc); metrics != nil {
			batch = append(batch, *metrics)
		}
	}
	r.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 {
		if err := r.store.UpsertWindowMetrics(ctx, batch); err != nil {
			return fmt.Errorf("upsert windows: %w", err)
		}
	}
	if err := r.saveState(ctx); err != nil {
		return err
	}

	r.logger.Info("reconcile complete",
		zap.Int("total", total),
		zap.Int("folded", folded),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
		zap.Uint64("last_seq", r.lastSeq),
	)
	return nil
}

func (r *Reconciler) loadStartSeq(ctx context.Context) (uint64, error) {
	if r.cfg.RecomputeFromSeq > 0 {
		return r.cfg.RecomputeFromSeq - 1, nil
	}
	if r.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := r.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

// saveState records the highest sequence number that is safe to skip on the
// next run: everything before the earliest still-open window has been
// upserted.
func (r *Reconciler) saveState(ctx context.Context) error {
	if r.cfg.StateStore == nil {
		return nil
	}
	safe := r.lastSeq
	for _, acc := range r.accumulators {
		if acc == nil {
			continue
		}
		if acc.FirstSeq > 0 && acc.FirstSeq-1 < safe {
			safe = acc.FirstSeq - 1
		}
	}
	return r.cfg.StateStore.Save(ctx, safe)
}

func (r *Reconciler) closeWindow(acc *Accumulator) *model.PoolWindowMetrics {
	if acc == nil {
		return nil
	}

	metrics := &model.PoolWindowMetrics{
		PoolAddress:    acc.PoolAddress,
		WindowSizeSecs: r.cfg.WindowSeconds,
		WindowStart:    time.Unix(acc.WindowStart, 0).UTC(),
		WindowEnd:      time.Unix(acc.WindowEnd, 0).UTC(),
		MintCount:      acc.MintCount,
		CollectCount:   acc.CollectCount,
		BuyCount:       acc.BuyCount,
		SellCount:      acc.SellCount,
		GameVolume:     wad.ToDecimal(acc.GameVolume).String(),
		AssetVolume:    wad.ToDecimal(acc.AssetVolume).String(),
		GameFees:       wad.ToDecimal(acc.GameFees).String(),
		AssetFees:      wad.ToDecimal(acc.AssetFees).String(),
		LiquidityAdded: wad.ToDecimal(acc.LiquidityAdded).String(),
		AuctionCount:   acc.AuctionCount,
	}
	if acc.LastAuctionPrice != nil {
		price := wad.ToDecimal(acc.LastAuctionPrice).String()
		metrics.LastAuctionPrice = &price
	}
	if price := priceFromSqrtX96(acc.PoolMeta.Slot0); price != "" {
		metrics.LastPrice = &price
	}
	return metrics
}

// priceFromSqrtX96 squares the Q64.96 sqrt price back into a token1-per-
// token0 ratio.
func priceFromSqrtX96(slot0 *model.PoolSlot0) string {
	if slot0 == nil {
		return ""
	}
	sqrt, ok := new(big.Int).SetString(slot0.SqrtPriceX96, 10)
	if !ok || sqrt.Sign() <= 0 {
		return ""
	}
	num := new(big.Int).Mul(sqrt, sqrt)
	denom := new(big.Int).Lsh(big.NewInt(1), 192)
	return new(big.Rat).SetFrac(num, denom).FloatString(wad.Scale)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}
