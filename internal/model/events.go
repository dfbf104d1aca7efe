package model

// Event payloads emitted by the routing and auction layers. Field order is
// part of the wire contract: off-chain indexers reconcile against these
// shapes byte for byte, so fields must not be reordered or renamed.

// EventPositionMinted and friends are the event names used in envelopes.
const (
	EventPositionMinted    = "PositionMinted"
	EventPositionCollected = "PositionCollected"
	EventTokenBought       = "TokenBought"
	EventTokenSold         = "TokenSold"
	EventAuctionSettled    = "AuctionSettled"
	EventDebtBorrowed      = "DebtBorrowed"
	EventDebtRepaid        = "DebtRepaid"
	EventYieldHarvested    = "YieldHarvested"
)

// PositionMintedData records a new liquidity position.
type PositionMintedData struct {
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	GameToken   string `json:"game_token"`
	AssetToken  string `json:"asset_token"`
	PoolAddress string `json:"pool_address"`
	PositionID  uint64 `json:"position_id"`
	GameShare   string `json:"game_share"`
	AssetShare  string `json:"asset_share"`
	Liquidity   string `json:"liquidity"`
}

// PositionCollectedData records a fee harvest against a position.
type PositionCollectedData struct {
	Sender          string `json:"sender"`
	Recipient       string `json:"recipient"`
	GameToken       string `json:"game_token"`
	AssetToken      string `json:"asset_token"`
	PoolAddress     string `json:"pool_address"`
	PositionID      uint64 `json:"position_id"`
	LiquidityBefore string `json:"liquidity_before"`
	GameCollected   string `json:"game_collected"`
	AssetCollected  string `json:"asset_collected"`
	AssetReturned   string `json:"asset_returned"`
}

// TokenBoughtData records a paired-asset-for-game-token trade.
type TokenBoughtData struct {
	Sender             string `json:"sender"`
	Recipient          string `json:"recipient"`
	TokenAddress       string `json:"token_address"`
	PairedTokenAddress string `json:"paired_token_address"`
	AmountIn           string `json:"amount_in"`
	AmountOut          string `json:"amount_out"`
}

// TokenSoldData records the inverse trade, same shape.
type TokenSoldData struct {
	Sender             string `json:"sender"`
	Recipient          string `json:"recipient"`
	TokenAddress       string `json:"token_address"`
	PairedTokenAddress string `json:"paired_token_address"`
	AmountIn           string `json:"amount_in"`
	AmountOut          string `json:"amount_out"`
}

// AuctionSettledData records a settled auction slot.
type AuctionSettledData struct {
	SlotID        uint64 `json:"slot_id"`
	PositionID    uint64 `json:"position_id"`
	Buyer         string `json:"buyer"`
	RealizedPrice string `json:"realized_price"`
	StartedAt     int64  `json:"started_at"`
	SettledAt     int64  `json:"settled_at"`
}

// DebtBorrowedData records debt issued against a collateralized position.
type DebtBorrowedData struct {
	Borrower   string `json:"borrower"`
	PositionID uint64 `json:"position_id"`
	Amount     string `json:"amount"`
	DebtAfter  string `json:"debt_after"`
}

// DebtRepaidData records debt retired against a position.
type DebtRepaidData struct {
	Payer      string `json:"payer"`
	PositionID uint64 `json:"position_id"`
	Amount     string `json:"amount"`
	DebtAfter  string `json:"debt_after"`
}

// YieldHarvestedData records yield claimed without touching principal.
type YieldHarvestedData struct {
	Owner      string `json:"owner"`
	PositionID uint64 `json:"position_id"`
	Amount     string `json:"amount"`
}
