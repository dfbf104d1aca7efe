package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// ReconcileConfig holds configuration for journal reconciliation.
type ReconcileConfig struct {
	Input            string
	Window           string
	PGDSN            string
	BatchSize        int
	StateFile        string
	StateName        string
	RecomputeFromSeq uint64
	LogLevel         string
}

// LoadReconcile merges config file, environment variables, and flags into
// ReconcileConfig.
func LoadReconcile(cfgFile string, flags *pflag.FlagSet) (ReconcileConfig, error) {
	v := newViper()

	v.SetDefault("in", "./data/journal.jsonl")
	v.SetDefault("window", "5m")
	v.SetDefault("batch-size", 1000)
	v.SetDefault("state-name", "reconcile")
	v.SetDefault("log-level", "info")

	if err := readSources(v, cfgFile, flags); err != nil {
		return ReconcileConfig{}, err
	}

	cfg := ReconcileConfig{
		Input:            v.GetString("in"),
		Window:           v.GetString("window"),
		PGDSN:            v.GetString("pg-dsn"),
		BatchSize:        v.GetInt("batch-size"),
		StateFile:        v.GetString("state-file"),
		StateName:        v.GetString("state-name"),
		RecomputeFromSeq: v.GetUint64("recompute-from-seq"),
		LogLevel:         v.GetString("log-level"),
	}

	return cfg, nil
}

// WindowSeconds parses the window duration into whole seconds.
func (c ReconcileConfig) WindowSeconds() (int64, error) {
	d, err := time.ParseDuration(c.Window)
	if err != nil {
		return 0, fmt.Errorf("parse window %q: %w", c.Window, err)
	}
	secs := int64(d / time.Second)
	if secs <= 0 {
		return 0, fmt.Errorf("window must be at least one second")
	}
	return secs, nil
}
