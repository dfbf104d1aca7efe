package model

import "time"

// PoolWindowMetrics stores reconciled activity for one pool and time window.
type PoolWindowMetrics struct {
	PoolAddress    string
	WindowSizeSecs int64
	WindowStart    time.Time
	WindowEnd      time.Time
	MintCount      uint64
	CollectCount   uint64
	BuyCount       uint64
	SellCount      uint64
	GameVolume     string
	AssetVolume    string
	GameFees       string
	AssetFees      string
	LiquidityAdded string
	LastPrice      *string

	AuctionCount     uint64
	LastAuctionPrice *string
}
