package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/ledger"
)

const defaultSettleLockTTL = 30 * time.Second

// Gateway is the entry point the API and the keeper call. It forwards every
// ledger operation and additionally holds a settle:{id} lock around each
// settlement so that only one settlement per right is in flight across
// processes sharing the lock backend.
type Gateway struct {
	*ledger.Ledger

	locks   domain.LockManager
	lockTTL time.Duration
	logger  *slog.Logger
}

// NewGateway wraps l. A nil locks uses an in-process lock table.
func NewGateway(l *ledger.Ledger, locks domain.LockManager, lockTTL time.Duration, logger *slog.Logger) *Gateway {
	if locks == nil {
		locks = NewLocalLocks()
	}
	if lockTTL <= 0 {
		lockTTL = defaultSettleLockTTL
	}
	return &Gateway{
		Ledger:  l,
		locks:   locks,
		lockTTL: lockTTL,
		logger:  logger.With(slog.String("component", "gateway")),
	}
}

// SettleKind dispatches to the settlement path named by kind.
func (g *Gateway) SettleKind(ctx context.Context, id uint64, caller common.Address, kind domain.SettlementKind) (domain.SettlementRecord, error) {
	switch kind {
	case domain.SettlementNormal:
		return g.Settle(ctx, id, caller)
	case domain.SettlementEarly:
		return g.SettleEarly(ctx, id, caller)
	case domain.SettlementForced:
		return g.ForceSettle(ctx, id, caller)
	default:
		return domain.SettlementRecord{}, fmt.Errorf("gateway: settlement kind %q: %w", kind, domain.ErrNotFound)
	}
}

// Settle closes an unexpired right with no open positions, charging the
// elapsed-time base fee.
func (g *Gateway) Settle(ctx context.Context, id uint64, caller common.Address) (domain.SettlementRecord, error) {
	return g.withSettleLock(ctx, id, caller, domain.SettlementNormal, g.Ledger.Settle)
}

// SettleEarly closes a right before expiry, charging the full-term base fee.
func (g *Gateway) SettleEarly(ctx context.Context, id uint64, caller common.Address) (domain.SettlementRecord, error) {
	return g.withSettleLock(ctx, id, caller, domain.SettlementEarly, g.Ledger.SettleEarly)
}

// ForceSettle closes an expired right on anyone's behalf, or any right on its
// owner's.
func (g *Gateway) ForceSettle(ctx context.Context, id uint64, caller common.Address) (domain.SettlementRecord, error) {
	return g.withSettleLock(ctx, id, caller, domain.SettlementForced, g.Ledger.ForceSettle)
}

type settleFunc func(context.Context, uint64, common.Address) (domain.SettlementRecord, error)

func (g *Gateway) withSettleLock(ctx context.Context, id uint64, caller common.Address, kind domain.SettlementKind, fn settleFunc) (domain.SettlementRecord, error) {
	unlock, err := g.locks.Acquire(ctx, "settle:"+strconv.FormatUint(id, 10), g.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			g.logger.WarnContext(ctx, "gateway: settlement already in flight",
				slog.Uint64("right_id", id),
				slog.String("kind", string(kind)),
			)
			return domain.SettlementRecord{}, domain.ErrSettlementInFlight
		}
		return domain.SettlementRecord{}, fmt.Errorf("gateway: settle lock %d: %w", id, err)
	}
	defer unlock()

	rec, err := fn(ctx, id, caller)
	if err != nil {
		return rec, err
	}
	g.logger.InfoContext(ctx, "gateway: right settled",
		slog.Uint64("right_id", id),
		slog.String("kind", string(kind)),
		slog.String("caller", caller.Hex()),
		slog.String("status", string(rec.Status)),
		slog.String("pnl", rec.Pnl.String()),
	)
	return rec, nil
}
