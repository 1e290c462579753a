package postgres

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

// ListEvents returns ledger events in commit order with optional time
// filtering. Until is exclusive.
func (s *LedgerStore) ListEvents(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	query, args := listQuery(`SELECT data FROM ledger_events`, "at", "seq", opts)
	events, err := loadDocs[domain.Event](ctx, s.pool, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	return events, nil
}

// ListSettlements returns settlement records ordered by settlement time.
func (s *LedgerStore) ListSettlements(ctx context.Context, opts domain.ListOpts) ([]domain.SettlementRecord, error) {
	query, args := listQuery(`SELECT data FROM settlements`, "settled_at", "settled_at, right_id", opts)
	recs, err := loadDocs[domain.SettlementRecord](ctx, s.pool, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements: %w", err)
	}
	return recs, nil
}

func listQuery(base, timeCol, order string, opts domain.ListOpts) (string, []any) {
	query := base + ` WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND %s >= $%d", timeCol, argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND %s < $%d", timeCol, argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY " + order

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}
