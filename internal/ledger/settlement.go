package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/fixedpoint"
)

// settlementEngine closes rights: it unwinds residual positions, splits the
// result, and routes principal, fees and stake to the pool, the insurance
// fund and the executor.
type settlementEngine struct {
	cfg       Config
	pool      capitalPool
	tiers     tierManager
	positions positionTracker
	breaker   circuitBreaker
	insurance insuranceFund
}

// check returns the first reason caller may not settle r by kind at now.
func (e settlementEngine) check(tx *Tx, r domain.CapitalRight, caller common.Address, kind domain.SettlementKind) error {
	if r.Status.Terminal() {
		return domain.ErrAlreadySettled
	}
	if r.Status != domain.RightStatusActive {
		return domain.ErrNotActive
	}
	now := tx.Now()
	blocked := tx.Breaker().Tripped && e.cfg.BlockSettlementsOnTrip

	switch kind {
	case domain.SettlementNormal:
		if caller != r.Owner {
			return domain.ErrUnauthorized
		}
		if r.Expired(now) {
			return domain.ErrRightExpired
		}
		if blocked {
			return domain.ErrCircuitBreakerTripped
		}
		if len(tx.PositionsOf(r.ID)) > 0 {
			return domain.ErrHasOpenPositions
		}
	case domain.SettlementEarly:
		if caller != r.Owner {
			return domain.ErrUnauthorized
		}
		if r.Expired(now) {
			return domain.ErrRightExpired
		}
		if blocked {
			return domain.ErrCircuitBreakerTripped
		}
	case domain.SettlementForced:
		if !canForceSettle(r, caller, now) {
			return domain.ErrNotExpired
		}
	default:
		return domain.ErrNotFound
	}
	return nil
}

func canForceSettle(r domain.CapitalRight, caller common.Address, now time.Time) bool {
	return r.Expired(now) || caller == r.Owner
}

// elapsed is the base-fee accrual period. Early exits, including an owner
// force-settling before expiry, pay for the full term.
func elapsed(r domain.CapitalRight, kind domain.SettlementKind, now time.Time) int64 {
	var d time.Duration
	switch {
	case kind == domain.SettlementEarly:
		d = r.Duration()
	case kind == domain.SettlementForced && !r.Expired(now):
		d = r.Duration()
	default:
		d = now.Sub(r.StartTime)
	}
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// settle performs the whole settlement of one right inside tx. With checks
// false the preconditions are skipped, which EstimateSettlement uses on a
// throwaway overlay.
func (e settlementEngine) settle(ctx context.Context, tx *Tx, id uint64, caller common.Address, kind domain.SettlementKind, checks bool) (domain.SettlementRecord, error) {
	r, ok := tx.Right(id)
	if !ok {
		return domain.SettlementRecord{}, domain.ErrNotFound
	}
	if checks {
		if err := e.check(tx, r, caller, kind); err != nil {
			return domain.SettlementRecord{}, err
		}
	}
	now := tx.Now()

	for _, p := range tx.PositionsOf(id) {
		exit, err := e.positions.markValue(ctx, p, now)
		if err != nil {
			return domain.SettlementRecord{}, err
		}
		if _, err := e.positions.close(tx, p.Key(), exit); err != nil {
			return domain.SettlementRecord{}, err
		}
	}
	r, _ = tx.Right(id)

	pnl := r.RealizedPnl
	secs := elapsed(r, kind, now)
	fb, err := CalculateFeeBreakdown(r, pnl, secs, e.cfg.InsuranceFeeBps)
	if err != nil {
		return domain.SettlementRecord{}, err
	}

	stake := r.Fees.StakedAmount
	capital := r.CapitalLimit
	loss := max(-pnl, 0)

	var executorFunds domain.Amount
	if pnl > 0 {
		if executorFunds, err = fixedpoint.Add(fb.ExecutorProfit, stake); err != nil {
			return domain.SettlementRecord{}, err
		}
	} else {
		executorFunds = stake - fb.StakeSlashed
	}
	baseFee := min(fb.LpBaseFee, executorFunds)
	payout := executorFunds - baseFee

	var poolDelta domain.Amount
	switch {
	case pnl > 0:
		poolDelta = fb.LpProfitShare + baseFee
	case pnl < 0:
		poolDelta = -min(loss, capital) + fb.StakeSlashed + baseFee
	default:
		poolDelta = baseFee
	}

	if err := e.pool.release(tx, capital, capital+poolDelta); err != nil {
		return domain.SettlementRecord{}, err
	}
	if err := e.insurance.deposit(tx, id, r.Owner, fb.InsuranceFee); err != nil {
		return domain.SettlementRecord{}, err
	}
	v := tx.Vault()
	v.EscrowedStake -= stake
	if v.EscrowedStake < 0 {
		v.EscrowedStake = 0
	}
	tx.SetVault(v)

	status := domain.RightStatusSettled
	drawdownLimit, err := fixedpoint.ApplyBps(capital, r.Constraints.MaxDrawdownBps)
	if err != nil {
		return domain.SettlementRecord{}, err
	}
	if (pnl < 0 && stake > 0 && fb.StakeSlashed == stake) || loss > drawdownLimit {
		status = domain.RightStatusLiquidated
	}

	if err := e.tiers.recordSettlement(tx, r.Executor, pnl, r.TradedVolume); err != nil {
		return domain.SettlementRecord{}, err
	}
	if pnl < 0 {
		if err := e.breaker.recordLoss(tx, id, loss); err != nil {
			return domain.SettlementRecord{}, err
		}
	}

	r.Status = status
	r.UnrealizedPnl = 0
	r.SettledAt = &now
	tx.PutRight(r)

	rec := domain.SettlementRecord{
		RightID:          id,
		Owner:            r.Owner,
		Caller:           caller,
		Kind:             kind,
		Pnl:              pnl,
		Fees:             fb,
		BaseFeeCollected: baseFee,
		ExecutorPayout:   payout,
		PoolDelta:        poolDelta,
		Status:           status,
		ElapsedSeconds:   secs,
		SettledAt:        now,
	}
	tx.AddSettlement(rec)

	typ := domain.EventRightSettled
	if status == domain.RightStatusLiquidated {
		typ = domain.EventRightLiquidated
	}
	tx.Emit(typ, id, caller, pnl, map[string]any{
		"kind":            string(kind),
		"executor_payout": payout,
		"pool_delta":      poolDelta,
		"insurance_fee":   fb.InsuranceFee,
		"stake_slashed":   fb.StakeSlashed,
	})
	return rec, nil
}

func (l *Ledger) settleRight(ctx context.Context, op string, id uint64, caller common.Address, kind domain.SettlementKind) (domain.SettlementRecord, error) {
	var rec domain.SettlementRecord
	err := l.update(ctx, op, func(tx *Tx) error {
		var err error
		rec, err = l.settlement.settle(ctx, tx, id, caller, kind, true)
		return err
	})
	if err != nil {
		return domain.SettlementRecord{}, err
	}
	l.logger.InfoContext(ctx, "ledger: right settled",
		slog.Uint64("right_id", id),
		slog.String("kind", string(kind)),
		slog.String("status", string(rec.Status)),
		slog.String("pnl", rec.Pnl.String()),
		slog.String("payout", rec.ExecutorPayout.String()),
		slog.String("pool_delta", rec.PoolDelta.String()),
	)
	return rec, nil
}

// Settle closes a right before expiry on the owner's request. All positions
// must already be closed.
func (l *Ledger) Settle(ctx context.Context, id uint64, caller common.Address) (domain.SettlementRecord, error) {
	return l.settleRight(ctx, "settle", id, caller, domain.SettlementNormal)
}

// SettleEarly closes a right before expiry on the owner's request, unwinding
// open positions at the oracle mark. The base fee is charged for the full
// term.
func (l *Ledger) SettleEarly(ctx context.Context, id uint64, caller common.Address) (domain.SettlementRecord, error) {
	return l.settleRight(ctx, "settle early", id, caller, domain.SettlementEarly)
}

// ForceSettle closes a right on anyone's request once it has expired, or on
// the owner's request at any time. It is allowed while the breaker is
// tripped so capital cannot be stranded.
func (l *Ledger) ForceSettle(ctx context.Context, id uint64, caller common.Address) (domain.SettlementRecord, error) {
	return l.settleRight(ctx, "force settle", id, caller, domain.SettlementForced)
}

// CanSettle evaluates the preconditions of kind for caller without settling.
func (l *Ledger) CanSettle(_ context.Context, id uint64, caller common.Address, kind domain.SettlementKind) (bool, string) {
	var reason string
	l.read(func(tx *Tx) {
		r, ok := tx.Right(id)
		if !ok {
			reason = domain.ErrNotFound.Error()
			return
		}
		if err := l.settlement.check(tx, r, caller, kind); err != nil {
			reason = err.Error()
		}
	})
	return reason == "", reason
}

// CanForceSettle reports whether caller may force-settle the right now.
func (l *Ledger) CanForceSettle(id uint64, caller common.Address) bool {
	var ok bool
	l.read(func(tx *Tx) {
		r, found := tx.Right(id)
		ok = found && r.Status == domain.RightStatusActive && canForceSettle(r, caller, tx.Now())
	})
	return ok
}

// CalculatePnl returns realized plus unrealized PnL at the oracle mark.
func (l *Ledger) CalculatePnl(ctx context.Context, id uint64) (domain.Amount, error) {
	var pnl domain.Amount
	err := l.view(func(tx *Tx) error {
		r, ok := tx.Right(id)
		if !ok {
			return domain.ErrNotFound
		}
		u, err := l.positions.unrealized(ctx, tx, id)
		if err != nil {
			return err
		}
		pnl, err = fixedpoint.Add(r.RealizedPnl, u)
		return err
	})
	return pnl, err
}

// EstimateSettlement previews the settlement caller would get now. The kind
// is chosen from the right's state: forced once expired, early while
// positions are open, normal otherwise. Nothing is committed.
func (l *Ledger) EstimateSettlement(ctx context.Context, id uint64, caller common.Address) (domain.SettlementEstimate, error) {
	var est domain.SettlementEstimate
	err := l.view(func(tx *Tx) error {
		r, ok := tx.Right(id)
		if !ok {
			return domain.ErrNotFound
		}
		if r.Status.Terminal() {
			if rec, ok := tx.Settlement(id); ok {
				est.Record = rec
			}
			est.Reason = domain.ErrAlreadySettled.Error()
			return nil
		}
		kind := domain.SettlementNormal
		switch {
		case r.Expired(tx.Now()):
			kind = domain.SettlementForced
		case len(tx.PositionsOf(id)) > 0:
			kind = domain.SettlementEarly
		}
		if err := l.settlement.check(tx, r, caller, kind); err != nil {
			est.Reason = err.Error()
		} else {
			est.CanSettle = true
		}
		rec, err := l.settlement.settle(ctx, tx, id, caller, kind, false)
		if err != nil {
			return err
		}
		est.Record = rec
		return nil
	})
	if err != nil {
		return domain.SettlementEstimate{}, err
	}
	return est, nil
}

// Settlement returns the stored outcome of a settled right.
func (l *Ledger) Settlement(id uint64) (domain.SettlementRecord, error) {
	var rec domain.SettlementRecord
	err := l.view(func(tx *Tx) error {
		found, ok := tx.Settlement(id)
		if !ok {
			return domain.ErrNotFound
		}
		rec = found
		return nil
	})
	return rec, err
}
