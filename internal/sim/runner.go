// Package sim drives the economy through a JSONL scenario: one step per
// line, a virtual clock, and periodic journal flushes. A checkpoint file
// lets an interrupted run resume at the step after the last one executed.
package sim

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityForge/internal/economy"
)

// RunConfig holds runtime settings for a scenario run.
type RunConfig struct {
	ScenarioPath      string
	FlushEvery        int
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Runner executes scenario steps against an economy.
type Runner struct {
	cfg        RunConfig
	economy    *economy.Economy
	clock      *economy.Clock
	logger     *zap.Logger
	checkpoint *CheckpointStore

	// lastPosition remembers each actor's most recent position so steps
	// can omit explicit ids.
	lastPosition map[string]uint64
	lastSlot     uint64
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, eco *economy.Economy, clock *economy.Clock, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:          cfg,
		economy:      eco,
		clock:        clock,
		logger:       logger,
		checkpoint:   NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
		lastPosition: make(map[string]uint64),
	}
}

// Run executes the scenario loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.economy == nil {
		return fmt.Errorf("economy is nil")
	}
	if r.clock == nil {
		return fmt.Errorf("clock is nil")
	}
	if r.cfg.FlushEvery <= 0 {
		r.cfg.FlushEvery = 100
	}

	var resumeAfter uint64
	if r.checkpoint != nil {
		cp, ok, err := r.checkpoint.Load()
		if err != nil {
			return err
		}
		if ok {
			resumeAfter = cp.LastProcessedStep
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", resumeAfter))
		}
	}

	file, err := os.Open(r.cfg.ScenarioPath)
	if err != nil {
		return fmt.Errorf("open scenario: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var stepNum, executed, rejected uint64
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		stepNum++
		if stepNum <= resumeAfter {
			continue
		}

		var step Step
		if err := json.Unmarshal(line, &step); err != nil {
			return fmt.Errorf("step %d: parse: %w", stepNum, err)
		}

		err := r.apply(step)
		switch {
		case step.ExpectError && err == nil:
			return fmt.Errorf("step %d (%s): expected a rejection, got none", stepNum, step.Op)
		case step.ExpectError:
			rejected++
			r.logger.Debug("step rejected as expected",
				zap.Uint64("step", stepNum), zap.String("op", step.Op), zap.Error(err))
		case err != nil:
			return fmt.Errorf("step %d (%s): %w", stepNum, step.Op, err)
		default:
			executed++
		}

		if (executed+rejected)%uint64(r.cfg.FlushEvery) == 0 {
			if err := r.flushWithRetry(ctx); err != nil {
				return err
			}
			if r.checkpoint != nil {
				if err := r.checkpoint.Save(stepNum); err != nil {
					return err
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan scenario: %w", err)
	}

	if err := r.flushWithRetry(ctx); err != nil {
		return err
	}
	if r.checkpoint != nil {
		if err := r.checkpoint.Save(stepNum); err != nil {
			return err
		}
	}

	r.logger.Info("scenario complete",
		zap.Uint64("steps", stepNum),
		zap.Uint64("executed", executed),
		zap.Uint64("rejected", rejected),
		zap.Int64("clock", r.clock.Now()),
	)
	return nil
}

func (r *Runner) apply(step Step) error {
	switch step.Op {
	case OpAdvance:
		if step.Seconds <= 0 {
			return fmt.Errorf("advance needs positive seconds")
		}
		r.clock.Advance(step.Seconds)
		return nil

	case OpFaucet:
		actor, err := actorAddress(step.Actor)
		if err != nil {
			return err
		}
		var gameAmt, assetAmt *big.Int
		if step.Game != "" {
			if gameAmt, err = parseAmount(step.Game); err != nil {
				return err
			}
		}
		if step.Asset != "" {
			if assetAmt, err = parseAmount(step.Asset); err != nil {
				return err
			}
		}
		return r.economy.Faucet(actor, gameAmt, assetAmt)

	case OpOpenSlot:
		slotID, err := r.economy.Auction.OpenSlot()
		if err != nil {
			return err
		}
		r.lastSlot = slotID
		return nil

	case OpAuctionBuy:
		actor, err := actorAddress(step.Actor)
		if err != nil {
			return err
		}
		bid, err := parseAmount(step.Amount)
		if err != nil {
			return err
		}
		slotID := step.Slot
		if slotID == 0 {
			slotID = r.lastSlot
		}
		positionID, err := r.economy.BuyFromAuction(actor, slotID, bid)
		if err != nil {
			return err
		}
		r.lastPosition[step.Actor] = positionID
		return nil

	case OpStake:
		actor, err := actorAddress(step.Actor)
		if err != nil {
			return err
		}
		amount, err := parseAmount(step.Amount)
		if err != nil {
			return err
		}
		positionID, err := r.economy.Stake(actor, amount)
		if err != nil {
			return err
		}
		r.lastPosition[step.Actor] = positionID
		return nil

	case OpBuy:
		actor, err := actorAddress(step.Actor)
		if err != nil {
			return err
		}
		amount, err := parseAmount(step.Amount)
		if err != nil {
			return err
		}
		_, err = r.economy.Swapper.Buy(actor, amount, actor)
		return err

	case OpSell:
		actor, err := actorAddress(step.Actor)
		if err != nil {
			return err
		}
		amount, err := parseAmount(step.Amount)
		if err != nil {
			return err
		}
		_, err = r.economy.Swapper.Sell(actor, amount, actor)
		return err

	case OpBorrow:
		actor, positionID, err := r.actorPosition(step)
		if err != nil {
			return err
		}
		amount, err := parseAmount(step.Amount)
		if err != nil {
			return err
		}
		return r.economy.Lending.Borrow(actor, positionID, amount)

	case OpRepay:
		actor, positionID, err := r.actorPosition(step)
		if err != nil {
			return err
		}
		amount, err := parseAmount(step.Amount)
		if err != nil {
			return err
		}
		return r.economy.Lending.Repay(actor, positionID, amount)

	case OpHarvest:
		actor, positionID, err := r.actorPosition(step)
		if err != nil {
			return err
		}
		_, err = r.economy.Lending.Harvest(actor, positionID)
		return err

	case OpExit:
		actor, positionID, err := r.actorPosition(step)
		if err != nil {
			return err
		}
		_, err = r.economy.ExitPosition(actor, positionID)
		return err

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}

func (r *Runner) actorPosition(step Step) (common.Address, uint64, error) {
	addr, err := actorAddress(step.Actor)
	if err != nil {
		return common.Address{}, 0, err
	}
	positionID := step.Position
	if positionID == 0 {
		positionID = r.lastPosition[step.Actor]
	}
	if positionID == 0 {
		return common.Address{}, 0, fmt.Errorf("actor %s has no position", step.Actor)
	}
	return addr, positionID, nil
}

func (r *Runner) flushWithRetry(ctx context.Context) error {
	return withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		if err := r.economy.Journal.Flush(); err != nil {
			r.logger.Warn("journal flush failed", zap.Error(err))
			return err
		}
		return nil
	})
}
