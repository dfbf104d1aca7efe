package model

import "encoding/json"

// EconomyEvent wraps one emitted event for the journal. Seq is assigned by
// the journal and strictly increasing; Timestamp is the economy clock at
// emission time.
type EconomyEvent struct {
	Seq       uint64      `json:"seq"`
	Timestamp int64       `json:"timestamp"`
	EventName string      `json:"event_name"`
	Emitter   string      `json:"emitter"`
	Decoded   interface{} `json:"decoded"`
	PoolMeta  *PoolMeta   `json:"pool_meta,omitempty"`
}

// EconomyEventRecord is the JSON form read back during reconciliation, with
// the payload left raw until the event name selects a decode target.
type EconomyEventRecord struct {
	Seq       uint64          `json:"seq"`
	Timestamp int64           `json:"timestamp"`
	EventName string          `json:"event_name"`
	Emitter   string          `json:"emitter"`
	Decoded   json.RawMessage `json:"decoded"`
	PoolMeta  *PoolMeta       `json:"pool_meta,omitempty"`
}

// PoolMeta snapshots the pool at emission time for reconciliation.
type PoolMeta struct {
	Token0    string     `json:"token0"`
	Token1    string     `json:"token1"`
	FeePPM    uint32     `json:"fee_ppm"`
	Liquidity string     `json:"liquidity,omitempty"`
	Slot0     *PoolSlot0 `json:"slot0,omitempty"`
}

// PoolSlot0 carries select price fields.
type PoolSlot0 struct {
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Tick         int32  `json:"tick"`
}
