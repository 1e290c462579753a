package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/store"
)

var (
	_ domain.LedgerStore     = (*LedgerStore)(nil)
	_ domain.EventStore      = (*LedgerStore)(nil)
	_ domain.SettlementStore = (*LedgerStore)(nil)
)

// LedgerStore implements the ledger stores using PostgreSQL. Each changeset
// is written in one SQL transaction.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore backed by pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Load reads the full ledger state.
func (s *LedgerStore) Load(ctx context.Context) (domain.Snapshot, error) {
	snap := domain.Snapshot{
		Holders:  make(map[common.Address]domain.Amount),
		Adapters: make(map[common.Address]domain.AdapterCategory),
	}

	rows, err := s.pool.Query(ctx, `SELECT name, data FROM ledger_singletons`)
	if err != nil {
		return snap, fmt.Errorf("postgres: load singletons: %w", err)
	}
	var (
		name string
		data []byte
	)
	_, err = pgx.ForEachRow(rows, []any{&name, &data}, func() error {
		return store.LoadSingleton(&snap, name, data)
	})
	if err != nil {
		return snap, fmt.Errorf("postgres: load singletons: %w", err)
	}

	var (
		key    string
		shares int64
	)
	rows, err = s.pool.Query(ctx, `SELECT lp, shares FROM lp_holders`)
	if err != nil {
		return snap, fmt.Errorf("postgres: load holders: %w", err)
	}
	if _, err := pgx.ForEachRow(rows, []any{&key, &shares}, func() error {
		snap.Holders[common.HexToAddress(key)] = domain.Amount(shares)
		return nil
	}); err != nil {
		return snap, fmt.Errorf("postgres: load holders: %w", err)
	}

	var category string
	rows, err = s.pool.Query(ctx, `SELECT adapter, category FROM adapters`)
	if err != nil {
		return snap, fmt.Errorf("postgres: load adapters: %w", err)
	}
	if _, err := pgx.ForEachRow(rows, []any{&key, &category}, func() error {
		snap.Adapters[common.HexToAddress(key)] = domain.AdapterCategory(category)
		return nil
	}); err != nil {
		return snap, fmt.Errorf("postgres: load adapters: %w", err)
	}

	if snap.Rights, err = loadDocs[domain.CapitalRight](ctx, s.pool, `SELECT data FROM capital_rights ORDER BY id`); err != nil {
		return snap, fmt.Errorf("postgres: load rights: %w", err)
	}
	if snap.Reputation, err = loadDocs[domain.ReputationRecord](ctx, s.pool, `SELECT data FROM executor_reputation`); err != nil {
		return snap, fmt.Errorf("postgres: load reputation: %w", err)
	}
	if snap.Positions, err = loadDocs[domain.Position](ctx, s.pool, `SELECT data FROM positions`); err != nil {
		return snap, fmt.Errorf("postgres: load positions: %w", err)
	}
	if snap.Exposure, err = loadDocs[domain.ExposureEntry](ctx, s.pool, `SELECT data FROM asset_exposure`); err != nil {
		return snap, fmt.Errorf("postgres: load exposure: %w", err)
	}
	if snap.Settlements, err = loadDocs[domain.SettlementRecord](ctx, s.pool, `SELECT data FROM settlements ORDER BY settled_at, right_id`); err != nil {
		return snap, fmt.Errorf("postgres: load settlements: %w", err)
	}
	return snap, nil
}

func loadDocs[T any](ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]T, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (T, error) {
		var (
			v    T
			data []byte
		)
		if err := row.Scan(&data); err != nil {
			return v, err
		}
		err := json.Unmarshal(data, &v)
		return v, err
	})
}

// Apply writes cs in a single transaction.
func (s *LedgerStore) Apply(ctx context.Context, cs domain.Changeset) error {
	batch, err := changesetBatch(cs)
	if err != nil {
		return fmt.Errorf("postgres: apply: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: apply statement %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: apply: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// changesetBatch queues the statements for cs. Rights precede positions and
// settlements so the foreign keys hold.
func changesetBatch(cs domain.Changeset) (*pgx.Batch, error) {
	b := &pgx.Batch{}

	docs, err := store.Singletons(cs)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		b.Queue(`
			INSERT INTO ledger_singletons (name, data, updated_at) VALUES ($1, $2, NOW())
			ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
			d.Name, d.Data)
	}

	for lp, n := range cs.Holders {
		if n == 0 {
			b.Queue(`DELETE FROM lp_holders WHERE lp = $1`, lp.Hex())
			continue
		}
		b.Queue(`
			INSERT INTO lp_holders (lp, shares) VALUES ($1, $2)
			ON CONFLICT (lp) DO UPDATE SET shares = EXCLUDED.shares`,
			lp.Hex(), int64(n))
	}

	for a, c := range cs.Adapters {
		b.Queue(`
			INSERT INTO adapters (adapter, category) VALUES ($1, $2)
			ON CONFLICT (adapter) DO UPDATE SET category = EXCLUDED.category`,
			a.Hex(), string(c))
	}

	for _, r := range cs.Rights {
		data, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encode right %d: %w", r.ID, err)
		}
		b.Queue(`
			INSERT INTO capital_rights (id, owner, executor, status, expiry_time, data)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				owner = EXCLUDED.owner, status = EXCLUDED.status, data = EXCLUDED.data`,
			int64(r.ID), r.Owner.Hex(), r.Executor.Hex(), string(r.Status), r.ExpiryTime, data)
	}

	for _, rec := range cs.Reputation {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode reputation %s: %w", rec.Executor.Hex(), err)
		}
		b.Queue(`
			INSERT INTO executor_reputation (executor, tier, data) VALUES ($1, $2, $3)
			ON CONFLICT (executor) DO UPDATE SET tier = EXCLUDED.tier, data = EXCLUDED.data`,
			rec.Executor.Hex(), int16(rec.Tier), data)
	}

	for _, k := range cs.PositionDeletes {
		b.Queue(`DELETE FROM positions WHERE right_id = $1 AND adapter = $2 AND asset = $3`,
			int64(k.RightID), k.Adapter.Hex(), k.Asset)
	}
	for _, p := range cs.PositionUpserts {
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode position: %w", err)
		}
		b.Queue(`
			INSERT INTO positions (right_id, adapter, asset, data) VALUES ($1, $2, $3, $4)
			ON CONFLICT (right_id, adapter, asset) DO UPDATE SET data = EXCLUDED.data`,
			int64(p.RightID), p.Adapter.Hex(), p.Asset, data)
	}

	for _, e := range cs.Exposure {
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("encode exposure %s: %w", e.Asset, err)
		}
		b.Queue(`
			INSERT INTO asset_exposure (asset, data) VALUES ($1, $2)
			ON CONFLICT (asset) DO UPDATE SET data = EXCLUDED.data`,
			e.Asset, data)
	}

	for _, rec := range cs.Settlements {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode settlement %d: %w", rec.RightID, err)
		}
		b.Queue(`INSERT INTO settlements (right_id, settled_at, data) VALUES ($1, $2, $3)`,
			int64(rec.RightID), rec.SettledAt, data)
	}

	for _, ev := range cs.Events {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("encode event %s: %w", ev.ID, err)
		}
		var rightID *int64
		if ev.RightID != 0 {
			id := int64(ev.RightID)
			rightID = &id
		}
		b.Queue(`INSERT INTO ledger_events (id, type, right_id, at, data) VALUES ($1, $2, $3, $4, $5)`,
			ev.ID, string(ev.Type), rightID, ev.At, data)
	}
	return b, nil
}
