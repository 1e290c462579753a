package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/fixedpoint"
)

// positionTracker records adapter-reported positions per right and values
// them at the oracle mark.
type positionTracker struct {
	oracle      domain.PriceOracle
	maxPriceAge time.Duration
	exposure    exposureManager
}

// quote fetches a mark and rejects it when older than maxPriceAge at now.
func (t positionTracker) quote(ctx context.Context, asset string, now time.Time) (domain.Quote, error) {
	if t.oracle == nil {
		return domain.Quote{}, domain.ErrPriceUnavailable
	}
	q, err := t.oracle.Quote(ctx, asset)
	if err != nil {
		return domain.Quote{}, err
	}
	if q.Price <= 0 || q.Timestamp.IsZero() {
		return domain.Quote{}, domain.ErrPriceUnavailable
	}
	if now.Sub(q.Timestamp) > t.maxPriceAge {
		return domain.Quote{}, fmt.Errorf("%s quoted at %s: %w", asset, q.Timestamp.Format(time.RFC3339), domain.ErrStalePrice)
	}
	return q, nil
}

func (t positionTracker) markValue(ctx context.Context, p domain.Position, now time.Time) (domain.Amount, error) {
	q, err := t.quote(ctx, p.Asset, now)
	if err != nil {
		return 0, err
	}
	return fixedpoint.MarkValue(p.Size, q.Price, q.Decimals)
}

// authorizeReport admits a position report only from the registered adapter
// it names, and only for rights that allow that adapter.
func authorizeReport(tx *Tx, caller common.Address, rightID uint64, adapter common.Address) error {
	if caller == (common.Address{}) || caller != adapter {
		return domain.ErrUnauthorized
	}
	if _, ok := tx.AdapterCategory(adapter); !ok {
		return domain.ErrUnauthorized
	}
	if r, ok := tx.Right(rightID); ok && !r.Constraints.AllowsAdapter(adapter) {
		return domain.ErrAdapterNotAllowed
	}
	return nil
}

func (t positionTracker) open(tx *Tx, caller common.Address, rightID uint64, adapter common.Address, asset string, size int64, entry domain.Amount) (domain.Position, error) {
	if adapter == (common.Address{}) {
		return domain.Position{}, domain.ErrZeroAddress
	}
	if err := authorizeReport(tx, caller, rightID, adapter); err != nil {
		return domain.Position{}, err
	}
	if asset == "" {
		return domain.Position{}, domain.ErrAssetNotAllowed
	}
	if size <= 0 || entry <= 0 {
		return domain.Position{}, domain.ErrZeroAmount
	}
	r, ok := tx.Right(rightID)
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	if r.Status.Terminal() {
		return domain.Position{}, domain.ErrAlreadySettled
	}
	if r.Status != domain.RightStatusActive {
		return domain.Position{}, domain.ErrNotActive
	}
	if r.Expired(tx.Now()) {
		return domain.Position{}, domain.ErrRightExpired
	}
	if !r.Constraints.AllowsAdapter(adapter) {
		return domain.Position{}, domain.ErrAdapterNotAllowed
	}
	if !r.Constraints.AllowsAsset(asset) {
		return domain.Position{}, domain.ErrAssetNotAllowed
	}

	key := domain.PositionKey{RightID: rightID, Adapter: adapter, Asset: asset}
	p, existed := tx.Position(key)
	if !existed {
		p = domain.Position{RightID: rightID, Adapter: adapter, Asset: asset}
	}
	var err error
	if p.EntryValue, err = fixedpoint.Add(p.EntryValue, entry); err != nil {
		return domain.Position{}, err
	}
	if p.Size, err = fixedpoint.Add(p.Size, size); err != nil {
		return domain.Position{}, err
	}
	maxSize, err := fixedpoint.ApplyBps(r.CapitalLimit, r.Constraints.MaxPositionSizeBps)
	if err != nil {
		return domain.Position{}, err
	}
	if p.EntryValue > maxSize {
		return domain.Position{}, domain.ErrPositionSizeExceeded
	}

	gross := entry
	for _, open := range tx.PositionsOf(rightID) {
		if gross, err = fixedpoint.Add(gross, open.EntryValue); err != nil {
			return domain.Position{}, err
		}
	}
	maxGross, err := fixedpoint.MulDiv(r.CapitalLimit, int64(r.Constraints.MaxLeverage), 1)
	if err != nil {
		return domain.Position{}, err
	}
	if gross > maxGross {
		return domain.Position{}, domain.ErrLeverageExceeded
	}
	if err := t.exposure.add(tx, rightID, asset, entry); err != nil {
		return domain.Position{}, err
	}

	p.Timestamp = tx.Now()
	tx.PutPosition(p)
	if r.TradedVolume, err = fixedpoint.Add(r.TradedVolume, entry); err != nil {
		return domain.Position{}, err
	}
	tx.PutRight(r)
	tx.Emit(domain.EventPositionOpened, rightID, adapter, entry, map[string]any{
		"asset": asset,
		"size":  size,
	})
	return p, nil
}

// close removes a position at exitValue and books exit-entry as realized PnL.
func (t positionTracker) close(tx *Tx, key domain.PositionKey, exitValue domain.Amount) (domain.Amount, error) {
	p, ok := tx.Position(key)
	if !ok {
		return 0, domain.ErrNotFound
	}
	r, ok := tx.Right(key.RightID)
	if !ok {
		return 0, domain.ErrNotFound
	}
	realized, err := fixedpoint.Sub(exitValue, p.EntryValue)
	if err != nil {
		return 0, err
	}
	if r.RealizedPnl, err = fixedpoint.Add(r.RealizedPnl, realized); err != nil {
		return 0, err
	}
	tx.PutRight(r)
	tx.DeletePosition(key)
	t.exposure.remove(tx, key.Asset, p.EntryValue)
	tx.Emit(domain.EventPositionClosed, key.RightID, key.Adapter, exitValue, map[string]any{
		"asset":    key.Asset,
		"entry":    p.EntryValue,
		"realized": realized,
	})
	return realized, nil
}

func (t positionTracker) unrealized(ctx context.Context, tx *Tx, rightID uint64) (domain.Amount, error) {
	var total domain.Amount
	for _, p := range tx.PositionsOf(rightID) {
		mark, err := t.markValue(ctx, p, tx.Now())
		if err != nil {
			return 0, err
		}
		diff, err := fixedpoint.Sub(mark, p.EntryValue)
		if err != nil {
			return 0, err
		}
		if total, err = fixedpoint.Add(total, diff); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// RecordOpen books an adapter-reported open. Only the adapter itself may
// report, and it must be registered and allowed by the right. Opens on the
// same (right, adapter, asset) accumulate into one position.
func (l *Ledger) RecordOpen(ctx context.Context, rightID uint64, caller, adapter common.Address, asset string, size int64, entryValue domain.Amount) (domain.Position, error) {
	var p domain.Position
	err := l.update(ctx, "record open", func(tx *Tx) error {
		var err error
		p, err = l.positions.open(tx, caller, rightID, adapter, asset, size, entryValue)
		return err
	})
	return p, err
}

// RecordClose closes a position at the current oracle mark and returns the
// realized PnL. The caller must be the reporting adapter.
func (l *Ledger) RecordClose(ctx context.Context, rightID uint64, caller, adapter common.Address, asset string) (domain.Amount, error) {
	var realized domain.Amount
	err := l.update(ctx, "record close", func(tx *Tx) error {
		if err := authorizeReport(tx, caller, rightID, adapter); err != nil {
			return err
		}
		key := domain.PositionKey{RightID: rightID, Adapter: adapter, Asset: asset}
		p, ok := tx.Position(key)
		if !ok {
			return domain.ErrNotFound
		}
		exit, err := l.positions.markValue(ctx, p, tx.Now())
		if err != nil {
			return err
		}
		realized, err = l.positions.close(tx, key, exit)
		return err
	})
	return realized, err
}

// RecordCloseAt closes a position at an exit value reported by the adapter
// itself.
func (l *Ledger) RecordCloseAt(ctx context.Context, rightID uint64, caller, adapter common.Address, asset string, exitValue domain.Amount) (domain.Amount, error) {
	if exitValue < 0 {
		return 0, fmt.Errorf("ledger: record close: %w", domain.ErrZeroAmount)
	}
	var realized domain.Amount
	err := l.update(ctx, "record close", func(tx *Tx) error {
		if err := authorizeReport(tx, caller, rightID, adapter); err != nil {
			return err
		}
		var err error
		realized, err = l.positions.close(tx, domain.PositionKey{RightID: rightID, Adapter: adapter, Asset: asset}, exitValue)
		return err
	})
	if err == nil {
		l.logger.DebugContext(ctx, "ledger: position closed",
			slog.Uint64("right_id", rightID),
			slog.String("asset", asset),
			slog.String("realized", realized.String()),
		)
	}
	return realized, err
}

// UnrealizedPnl marks every open position of the right to the oracle.
func (l *Ledger) UnrealizedPnl(ctx context.Context, rightID uint64) (domain.Amount, error) {
	var total domain.Amount
	err := l.view(func(tx *Tx) error {
		if _, ok := tx.Right(rightID); !ok {
			return domain.ErrNotFound
		}
		var err error
		total, err = l.positions.unrealized(ctx, tx, rightID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("ledger: unrealized pnl: %w", err)
	}
	return total, nil
}

// HasOpenPositions reports whether any position of the right is open.
func (l *Ledger) HasOpenPositions(rightID uint64) bool {
	return len(l.Positions(rightID)) > 0
}

// Positions returns the open positions of a right.
func (l *Ledger) Positions(rightID uint64) []domain.Position {
	var out []domain.Position
	l.read(func(tx *Tx) { out = tx.PositionsOf(rightID) })
	return out
}
