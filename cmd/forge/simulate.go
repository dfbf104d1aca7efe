package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityForge/internal/config"
	"liquidityForge/internal/economy"
	"liquidityForge/internal/journal"
	"liquidityForge/internal/journal/postgres"
	"liquidityForge/internal/sim"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Scenario == "" {
		return fmt.Errorf("scenario path is required")
	}

	ecoCfg, err := cfg.EconomyConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jsonlSink := journal.NewJsonlSink(cfg.JournalOut)
	defer jsonlSink.Close()
	sinks := []journal.Sink{jsonlSink}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		sinks = append(sinks, store)
	}
	j := journal.New(sinks...)

	var clock *economy.Clock
	if cfg.StartTime > 0 {
		clock = economy.NewVirtualClock(cfg.StartTime)
	} else {
		clock = economy.NewWallClock()
	}

	eco, err := economy.New(ecoCfg, clock, j, logger)
	if err != nil {
		return fmt.Errorf("build economy: %w", err)
	}

	runner := sim.NewRunner(sim.RunConfig{
		ScenarioPath:      cfg.Scenario,
		FlushEvery:        cfg.FlushEvery,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, eco, clock, logger)

	logger.Info("simulate start",
		zap.String("scenario", cfg.Scenario),
		zap.String("journal_out", cfg.JournalOut),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Int64("start_time", cfg.StartTime),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	return runner.Run(ctx)
}
