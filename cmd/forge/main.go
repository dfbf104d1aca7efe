package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "forge",
		Short:        "Closed-loop token economy simulator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scenario against a fresh economy",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("scenario", "", "scenario steps JSONL path")
	simulateCmd.Flags().String("journal-out", "./data/journal.jsonl", "journal output JSONL path")
	simulateCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for a second journal sink")
	simulateCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	simulateCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	simulateCmd.Flags().Int("flush-every", 100, "journal flush interval in steps")
	simulateCmd.Flags().Int("max-retries", 5, "maximum flush retry attempts")
	simulateCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial flush retry backoff")
	simulateCmd.Flags().Int64("start-time", 0, "virtual clock start (unix seconds, 0 means wall time)")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	simulateCmd.Flags().String("seed-game-liquidity", "500000", "game tokens seeding the pool")
	simulateCmd.Flags().String("seed-asset-liquidity", "500000", "asset tokens seeding the pool")
	simulateCmd.Flags().Uint32("pool-fee-ppm", 3000, "pool trading fee in parts per million")
	simulateCmd.Flags().String("mint-dust", "0.000001", "smallest depositable amount")
	simulateCmd.Flags().Int("batch-ceiling", 32, "max receipts per batch mint/burn")

	simulateCmd.Flags().String("target-price", "100", "auction target price")
	simulateCmd.Flags().String("decay-rate", "0.3", "auction price decay per period")
	simulateCmd.Flags().Int64("period-seconds", 3600, "auction period length")
	simulateCmd.Flags().Uint32("price-increment-bps", 200, "reference price bump per sale")
	simulateCmd.Flags().Uint32("min-price-bps", 2000, "price floor as bps of start price")
	simulateCmd.Flags().Uint32("max-price-bps", 30000, "price cap as bps of start price")
	simulateCmd.Flags().Int("max-auctions", 4, "concurrent auction slots")
	simulateCmd.Flags().String("seed-game-amount", "1000", "game tokens per auction position")

	simulateCmd.Flags().Uint32("ltv-bps", 5000, "borrow ceiling as bps of collateral value")
	simulateCmd.Flags().Uint32("liquidation-threshold-bps", 7500, "liquidation threshold in bps")
	simulateCmd.Flags().Uint32("liquidation-bonus-bps", 500, "liquidator bonus in bps of surplus")
	simulateCmd.Flags().Int64("reward-rate", 10, "yield accrual per second per staked unit")

	root.AddCommand(simulateCmd)

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Roll the journal up into pool window metrics",
		RunE:  runReconcile,
	}

	reconcileCmd.Flags().String("in", "./data/journal.jsonl", "input journal JSONL")
	reconcileCmd.Flags().String("window", "5m", "window size (e.g. 1m, 5m, 1h)")
	reconcileCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	reconcileCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	reconcileCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	reconcileCmd.Flags().String("state-name", "reconcile", "state row name when tracking in the DB")
	reconcileCmd.Flags().Uint64("recompute-from-seq", 0, "replay from this journal sequence number")
	reconcileCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(reconcileCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
