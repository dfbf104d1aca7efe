// Package config loads the simulate and reconcile settings from config
// file, environment variables and flags, in ascending precedence.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"liquidityForge/internal/economy"
	"liquidityForge/internal/wad"
)

// SimulateConfig holds configuration for a scenario run.
type SimulateConfig struct {
	Scenario          string
	JournalOut        string
	PGDSN             string
	Checkpoint        string
	CheckpointEnabled bool
	FlushEvery        int
	MaxRetries        int
	RetryBackoff      time.Duration
	StartTime         int64
	LogLevel          string

	// Economy parameters. Token amounts are whole-unit decimal strings.
	SeedGameLiquidity  string
	SeedAssetLiquidity string
	PoolFeePPM         uint32
	MintDust           string
	BatchCeiling       int

	TargetPrice       string
	DecayRate         string
	PeriodSeconds     int64
	PriceIncrementBps uint32
	MinPriceBps       uint32
	MaxPriceBps       uint32
	MaxAuctions       int
	SeedGameAmount    string

	LTVBps                  uint32
	LiquidationThresholdBps uint32
	LiquidationBonusBps     uint32
	RewardRate              int64
}

// Load merges config file, environment variables, and flags into
// SimulateConfig.
func Load(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v := newViper()

	v.SetDefault("journal-out", "./data/journal.jsonl")
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("flush-every", 100)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("start-time", int64(0))
	v.SetDefault("log-level", "info")

	v.SetDefault("seed-game-liquidity", "500000")
	v.SetDefault("seed-asset-liquidity", "500000")
	v.SetDefault("pool-fee-ppm", 3000)
	v.SetDefault("mint-dust", "0.000001")
	v.SetDefault("batch-ceiling", 32)

	v.SetDefault("target-price", "100")
	v.SetDefault("decay-rate", "0.3")
	v.SetDefault("period-seconds", int64(3600))
	v.SetDefault("price-increment-bps", 200)
	v.SetDefault("min-price-bps", 2000)
	v.SetDefault("max-price-bps", 30000)
	v.SetDefault("max-auctions", 4)
	v.SetDefault("seed-game-amount", "1000")

	v.SetDefault("ltv-bps", 5000)
	v.SetDefault("liquidation-threshold-bps", 7500)
	v.SetDefault("liquidation-bonus-bps", 500)
	v.SetDefault("reward-rate", int64(10))

	if err := readSources(v, cfgFile, flags); err != nil {
		return SimulateConfig{}, err
	}

	cfg := SimulateConfig{
		Scenario:          v.GetString("scenario"),
		JournalOut:        v.GetString("journal-out"),
		PGDSN:             v.GetString("pg-dsn"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		FlushEvery:        v.GetInt("flush-every"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		StartTime:         v.GetInt64("start-time"),
		LogLevel:          v.GetString("log-level"),

		SeedGameLiquidity:  v.GetString("seed-game-liquidity"),
		SeedAssetLiquidity: v.GetString("seed-asset-liquidity"),
		PoolFeePPM:         v.GetUint32("pool-fee-ppm"),
		MintDust:           v.GetString("mint-dust"),
		BatchCeiling:       v.GetInt("batch-ceiling"),

		TargetPrice:       v.GetString("target-price"),
		DecayRate:         v.GetString("decay-rate"),
		PeriodSeconds:     v.GetInt64("period-seconds"),
		PriceIncrementBps: v.GetUint32("price-increment-bps"),
		MinPriceBps:       v.GetUint32("min-price-bps"),
		MaxPriceBps:       v.GetUint32("max-price-bps"),
		MaxAuctions:       v.GetInt("max-auctions"),
		SeedGameAmount:    v.GetString("seed-game-amount"),

		LTVBps:                  v.GetUint32("ltv-bps"),
		LiquidationThresholdBps: v.GetUint32("liquidation-threshold-bps"),
		LiquidationBonusBps:     v.GetUint32("liquidation-bonus-bps"),
		RewardRate:              v.GetInt64("reward-rate"),
	}

	return cfg, nil
}

// EconomyConfig parses the amount strings into an economy.Config.
func (c SimulateConfig) EconomyConfig() (economy.Config, error) {
	seedGame, err := ParseAmount(c.SeedGameLiquidity)
	if err != nil {
		return economy.Config{}, fmt.Errorf("seed-game-liquidity: %w", err)
	}
	seedAsset, err := ParseAmount(c.SeedAssetLiquidity)
	if err != nil {
		return economy.Config{}, fmt.Errorf("seed-asset-liquidity: %w", err)
	}
	mintDust, err := ParseAmount(c.MintDust)
	if err != nil {
		return economy.Config{}, fmt.Errorf("mint-dust: %w", err)
	}
	targetPrice, err := ParseAmount(c.TargetPrice)
	if err != nil {
		return economy.Config{}, fmt.Errorf("target-price: %w", err)
	}
	seedGameAmount, err := ParseAmount(c.SeedGameAmount)
	if err != nil {
		return economy.Config{}, fmt.Errorf("seed-game-amount: %w", err)
	}
	decayRate, err := decimal.NewFromString(c.DecayRate)
	if err != nil {
		return economy.Config{}, fmt.Errorf("decay-rate: %w", err)
	}

	return economy.Config{
		SeedGameLiquidity:  seedGame,
		SeedAssetLiquidity: seedAsset,
		PoolFeePPM:         c.PoolFeePPM,
		MintDust:           mintDust,
		BatchCeiling:       c.BatchCeiling,

		TargetPrice:       targetPrice,
		DecayRate:         decayRate,
		PeriodSeconds:     c.PeriodSeconds,
		PriceIncrementBps: c.PriceIncrementBps,
		MinPriceBps:       c.MinPriceBps,
		MaxPriceBps:       c.MaxPriceBps,
		MaxAuctions:       c.MaxAuctions,
		SeedGameAmount:    seedGameAmount,

		LTVBps:                  c.LTVBps,
		LiquidationThresholdBps: c.LiquidationThresholdBps,
		LiquidationBonusBps:     c.LiquidationBonusBps,
		RewardRate:              big.NewInt(c.RewardRate),
	}, nil
}

// ParseAmount converts a whole-unit decimal string into a wad amount.
func ParseAmount(value string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return wad.FromDecimal(d), nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("FORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func readSources(v *viper.Viper, cfgFile string, flags *pflag.FlagSet) error {
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}
