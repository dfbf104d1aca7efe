package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityForge/internal/model"
)

// Store provides Postgres persistence for economy events and reconciled
// window metrics.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// PutEventBatch upserts emitted events keyed by sequence number, satisfying
// the journal.Sink interface.
func (s *Store) PutEventBatch(events []model.EconomyEvent) error {
	return s.InsertEvents(context.Background(), events)
}

// InsertEvents upserts a batch of economy events.
func (s *Store) InsertEvents(ctx context.Context, events []model.EconomyEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, event := range events {
		decoded, err := json.Marshal(event.Decoded)
		if err != nil {
			return fmt.Errorf("marshal event %d payload: %w", event.Seq, err)
		}
		var meta []byte
		if event.PoolMeta != nil {
			meta, err = json.Marshal(event.PoolMeta)
			if err != nil {
				return fmt.Errorf("marshal event %d pool meta: %w", event.Seq, err)
			}
		}
		batch.Queue(`
			INSERT INTO economy_events (
				seq, event_ts, event_name, emitter, decoded, pool_meta, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (seq) DO NOTHING
		`,
			int64(event.Seq),
			event.Timestamp,
			event.EventName,
			event.Emitter,
			decoded,
			meta,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertWindowMetrics inserts or updates reconciled window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				pool_address, window_size_seconds, window_start_ts, window_end_ts,
				mint_count, collect_count, buy_count, sell_count,
				game_volume, asset_volume, game_fees, asset_fees,
				liquidity_added, last_price, auction_count, last_auction_price,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,now(),now())
			ON CONFLICT (pool_address, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				mint_count = EXCLUDED.mint_count,
				collect_count = EXCLUDED.collect_count,
				buy_count = EXCLUDED.buy_count,
				sell_count = EXCLUDED.sell_count,
				game_volume = EXCLUDED.game_volume,
				asset_volume = EXCLUDED.asset_volume,
				game_fees = EXCLUDED.game_fees,
				asset_fees = EXCLUDED.asset_fees,
				liquidity_added = EXCLUDED.liquidity_added,
				last_price = EXCLUDED.last_price,
				auction_count = EXCLUDED.auction_count,
				last_auction_price = EXCLUDED.last_auction_price,
				updated_at = now()
		`,
			m.PoolAddress,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.MintCount),
			int64(m.CollectCount),
			int64(m.BuyCount),
			int64(m.SellCount),
			m.GameVolume,
			m.AssetVolume,
			m.GameFees,
			m.AssetFees,
			m.LiquidityAdded,
			m.LastPrice,
			int64(m.AuctionCount),
			m.LastAuctionPrice,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range metrics {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_seq for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var seq uint64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_seq FROM reconcile_state WHERE name=$1`, name)
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return seq, true, nil
}

// SaveState upserts last_processed_seq for a name.
func (s *Store) SaveState(ctx context.Context, name string, seq uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reconcile_state (name, last_processed_seq, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_seq = EXCLUDED.last_processed_seq, updated_at = now()
	`, name, seq)
	return err
}
