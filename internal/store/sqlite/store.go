// Package sqlite implements the durable ledger stores on SQLite (pure Go, no
// cgo) for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_singletons (
    name TEXT PRIMARY KEY,
    data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS lp_holders (
    lp     TEXT PRIMARY KEY,
    shares INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS capital_rights (
    id     INTEGER PRIMARY KEY,
    owner  TEXT NOT NULL,
    status TEXT NOT NULL,
    data   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS executor_reputation (
    executor TEXT PRIMARY KEY,
    data     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS positions (
    right_id INTEGER NOT NULL,
    adapter  TEXT NOT NULL,
    asset    TEXT NOT NULL,
    data     TEXT NOT NULL,
    PRIMARY KEY (right_id, adapter, asset)
);
CREATE TABLE IF NOT EXISTS asset_exposure (
    asset TEXT PRIMARY KEY,
    data  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS adapters (
    adapter  TEXT PRIMARY KEY,
    category TEXT NOT NULL
);
-- times are unix nanoseconds so range filters compare numerically
CREATE TABLE IF NOT EXISTS settlements (
    right_id   INTEGER PRIMARY KEY,
    settled_at INTEGER NOT NULL,
    data       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger_events (
    seq  INTEGER PRIMARY KEY AUTOINCREMENT,
    id   TEXT NOT NULL UNIQUE,
    at   INTEGER NOT NULL,
    data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rights_status  ON capital_rights(status);
CREATE INDEX IF NOT EXISTS idx_settlements_at ON settlements(settled_at);
CREATE INDEX IF NOT EXISTS idx_events_at      ON ledger_events(at);
`

var (
	_ domain.LedgerStore     = (*Store)(nil)
	_ domain.EventStore      = (*Store)(nil)
	_ domain.SettlementStore = (*Store)(nil)
)

// Store implements the ledger stores on a single SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// single writer; also keeps ":memory:" on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: pragmas: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Load reads the full ledger state.
func (s *Store) Load(ctx context.Context) (domain.Snapshot, error) {
	snap := domain.Snapshot{
		Holders:  make(map[common.Address]domain.Amount),
		Adapters: make(map[common.Address]domain.AdapterCategory),
	}

	err := s.each(ctx, `SELECT name, data FROM ledger_singletons`, func(rows *sql.Rows) error {
		var (
			name string
			data []byte
		)
		if err := rows.Scan(&name, &data); err != nil {
			return err
		}
		return store.LoadSingleton(&snap, name, data)
	})
	if err != nil {
		return snap, fmt.Errorf("sqlite: load singletons: %w", err)
	}

	err = s.each(ctx, `SELECT lp, shares FROM lp_holders`, func(rows *sql.Rows) error {
		var (
			lp     string
			shares int64
		)
		if err := rows.Scan(&lp, &shares); err != nil {
			return err
		}
		snap.Holders[common.HexToAddress(lp)] = domain.Amount(shares)
		return nil
	})
	if err != nil {
		return snap, fmt.Errorf("sqlite: load holders: %w", err)
	}

	err = s.each(ctx, `SELECT adapter, category FROM adapters`, func(rows *sql.Rows) error {
		var adapter, category string
		if err := rows.Scan(&adapter, &category); err != nil {
			return err
		}
		snap.Adapters[common.HexToAddress(adapter)] = domain.AdapterCategory(category)
		return nil
	})
	if err != nil {
		return snap, fmt.Errorf("sqlite: load adapters: %w", err)
	}

	if snap.Rights, err = docs[domain.CapitalRight](ctx, s, `SELECT data FROM capital_rights ORDER BY id`); err != nil {
		return snap, fmt.Errorf("sqlite: load rights: %w", err)
	}
	if snap.Reputation, err = docs[domain.ReputationRecord](ctx, s, `SELECT data FROM executor_reputation`); err != nil {
		return snap, fmt.Errorf("sqlite: load reputation: %w", err)
	}
	if snap.Positions, err = docs[domain.Position](ctx, s, `SELECT data FROM positions`); err != nil {
		return snap, fmt.Errorf("sqlite: load positions: %w", err)
	}
	if snap.Exposure, err = docs[domain.ExposureEntry](ctx, s, `SELECT data FROM asset_exposure`); err != nil {
		return snap, fmt.Errorf("sqlite: load exposure: %w", err)
	}
	if snap.Settlements, err = docs[domain.SettlementRecord](ctx, s, `SELECT data FROM settlements ORDER BY settled_at, right_id`); err != nil {
		return snap, fmt.Errorf("sqlite: load settlements: %w", err)
	}
	return snap, nil
}

func (s *Store) each(ctx context.Context, query string, fn func(*sql.Rows) error, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func docs[T any](ctx context.Context, s *Store, query string, args ...any) ([]T, error) {
	var out []T
	err := s.each(ctx, query, func(rows *sql.Rows) error {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return err
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		out = append(out, v)
		return nil
	}, args...)
	return out, err
}

// Apply writes cs in a single transaction.
func (s *Store) Apply(ctx context.Context, cs domain.Changeset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := applyChangeset(ctx, tx, cs); err != nil {
		return fmt.Errorf("sqlite: apply: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func applyChangeset(ctx context.Context, tx *sql.Tx, cs domain.Changeset) error {
	exec := func(query string, args ...any) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	}
	upsertDoc := func(query string, key any, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return exec(query, key, string(data))
	}

	singletons, err := store.Singletons(cs)
	if err != nil {
		return err
	}
	for _, d := range singletons {
		if err := exec(`INSERT INTO ledger_singletons (name, data) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET data = excluded.data`, d.Name, string(d.Data)); err != nil {
			return fmt.Errorf("singleton %s: %w", d.Name, err)
		}
	}

	for lp, n := range cs.Holders {
		if n == 0 {
			err = exec(`DELETE FROM lp_holders WHERE lp = ?`, lp.Hex())
		} else {
			err = exec(`INSERT INTO lp_holders (lp, shares) VALUES (?, ?)
				ON CONFLICT(lp) DO UPDATE SET shares = excluded.shares`, lp.Hex(), int64(n))
		}
		if err != nil {
			return fmt.Errorf("holder %s: %w", lp.Hex(), err)
		}
	}

	for a, c := range cs.Adapters {
		if err := exec(`INSERT INTO adapters (adapter, category) VALUES (?, ?)
			ON CONFLICT(adapter) DO UPDATE SET category = excluded.category`, a.Hex(), string(c)); err != nil {
			return fmt.Errorf("adapter %s: %w", a.Hex(), err)
		}
	}

	for _, r := range cs.Rights {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if err := exec(`INSERT INTO capital_rights (id, owner, status, data) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET owner = excluded.owner, status = excluded.status, data = excluded.data`,
			int64(r.ID), r.Owner.Hex(), string(r.Status), string(data)); err != nil {
			return fmt.Errorf("right %d: %w", r.ID, err)
		}
	}

	for _, rec := range cs.Reputation {
		if err := upsertDoc(`INSERT INTO executor_reputation (executor, data) VALUES (?, ?)
			ON CONFLICT(executor) DO UPDATE SET data = excluded.data`, rec.Executor.Hex(), rec); err != nil {
			return fmt.Errorf("reputation %s: %w", rec.Executor.Hex(), err)
		}
	}

	for _, k := range cs.PositionDeletes {
		if err := exec(`DELETE FROM positions WHERE right_id = ? AND adapter = ? AND asset = ?`,
			int64(k.RightID), k.Adapter.Hex(), k.Asset); err != nil {
			return fmt.Errorf("delete position: %w", err)
		}
	}
	for _, p := range cs.PositionUpserts {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if err := exec(`INSERT INTO positions (right_id, adapter, asset, data) VALUES (?, ?, ?, ?)
			ON CONFLICT(right_id, adapter, asset) DO UPDATE SET data = excluded.data`,
			int64(p.RightID), p.Adapter.Hex(), p.Asset, string(data)); err != nil {
			return fmt.Errorf("position: %w", err)
		}
	}

	for _, e := range cs.Exposure {
		if err := upsertDoc(`INSERT INTO asset_exposure (asset, data) VALUES (?, ?)
			ON CONFLICT(asset) DO UPDATE SET data = excluded.data`, e.Asset, e); err != nil {
			return fmt.Errorf("exposure %s: %w", e.Asset, err)
		}
	}

	for _, rec := range cs.Settlements {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := exec(`INSERT INTO settlements (right_id, settled_at, data) VALUES (?, ?, ?)`,
			int64(rec.RightID), rec.SettledAt.UnixNano(), string(data)); err != nil {
			return fmt.Errorf("settlement %d: %w", rec.RightID, err)
		}
	}

	for _, ev := range cs.Events {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if err := exec(`INSERT INTO ledger_events (id, at, data) VALUES (?, ?, ?)`,
			ev.ID, ev.At.UnixNano(), string(data)); err != nil {
			return fmt.Errorf("event %s: %w", ev.ID, err)
		}
	}
	return nil
}

// ListEvents returns events in commit order. Until is exclusive.
func (s *Store) ListEvents(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	query, args := listQuery(`SELECT data FROM ledger_events`, "at", "seq", opts)
	out, err := docs[domain.Event](ctx, s, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list events: %w", err)
	}
	return out, nil
}

// ListSettlements returns settlement records ordered by settlement time.
func (s *Store) ListSettlements(ctx context.Context, opts domain.ListOpts) ([]domain.SettlementRecord, error) {
	query, args := listQuery(`SELECT data FROM settlements`, "settled_at", "settled_at, right_id", opts)
	out, err := docs[domain.SettlementRecord](ctx, s, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list settlements: %w", err)
	}
	return out, nil
}

func listQuery(base, timeCol, order string, opts domain.ListOpts) (string, []any) {
	query := base + ` WHERE 1=1`
	var args []any
	if opts.Since != nil {
		query += ` AND ` + timeCol + ` >= ?`
		args = append(args, opts.Since.UnixNano())
	}
	if opts.Until != nil {
		query += ` AND ` + timeCol + ` < ?`
		args = append(args, opts.Until.UnixNano())
	}
	query += ` ORDER BY ` + order
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, opts.Offset)
	}
	return query, args
}
