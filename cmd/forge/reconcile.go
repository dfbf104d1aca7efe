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
	"liquidityForge/internal/journal/postgres"
	"liquidityForge/internal/reconcile"
)

func runReconcile(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReconcile(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	windowSeconds, err := cfg.WindowSeconds()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	var stateStore reconcile.StateStore
	if cfg.StateFile != "" {
		stateStore = &reconcile.FileStateStore{Path: cfg.StateFile}
	} else {
		stateStore = &reconcile.DBStateStore{Store: store, Name: fmt.Sprintf("%s:%d", cfg.StateName, windowSeconds)}
	}

	rec := reconcile.New(reconcile.Config{
		WindowSeconds:    windowSeconds,
		BatchSize:        cfg.BatchSize,
		RecomputeFromSeq: cfg.RecomputeFromSeq,
		StateStore:       stateStore,
	}, store, logger)

	logger.Info("reconcile start",
		zap.String("input", cfg.Input),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Int64("window_seconds", windowSeconds),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Uint64("recompute_from_seq", cfg.RecomputeFromSeq),
	)

	return rec.Run(ctx, cfg.Input)
}
