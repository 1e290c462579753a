package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/fixedpoint"
)

// DeriveRiskLevel classifies a right's constraints. categories are the
// registered categories of the allowed adapters.
func DeriveRiskLevel(c domain.Constraints, categories []domain.AdapterCategory) domain.RiskLevel {
	perp, dex := false, false
	for _, cat := range categories {
		switch cat {
		case domain.AdapterPerpetual:
			perp = true
		case domain.AdapterDEX:
			dex = true
		}
	}
	switch {
	case c.MaxLeverage > 3 || perp:
		return domain.RiskHigh
	case c.MaxLeverage > 1 || c.MaxDrawdownBps > 1000 || dex:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

type rightsRegistry struct {
	cfg   Config
	pool  capitalPool
	tiers tierManager
}

func (g rightsRegistry) validateTerms(req domain.RightRequest) error {
	if req.Executor == (common.Address{}) {
		return domain.ErrZeroAddress
	}
	if req.CapitalLimit <= 0 || req.StakeProvided < 0 {
		return domain.ErrZeroAmount
	}
	if req.Duration <= 0 || req.Duration > g.cfg.MaxRightDuration {
		return domain.ErrInvalidDuration
	}
	f := req.Fees
	if f.BaseFeeAprBps > fixedpoint.BPS || f.ProfitShareBps > fixedpoint.BPS ||
		f.BaseFeeAprBps < g.cfg.MinBaseFeeAprBps || f.ProfitShareBps < g.cfg.MinProfitShareBps {
		return domain.ErrInvalidFees
	}
	return nil
}

// request runs every admission check in order and, if all pass, reserves the
// capital and creates the right as active.
func (g rightsRegistry) request(tx *Tx, req domain.RightRequest) (domain.CapitalRight, error) {
	if tx.Controls().Paused {
		return domain.CapitalRight{}, domain.ErrPaused
	}
	if err := g.validateTerms(req); err != nil {
		return domain.CapitalRight{}, err
	}
	categories := make([]domain.AdapterCategory, 0, len(req.Constraints.AllowedAdapters))
	for _, a := range req.Constraints.AllowedAdapters {
		cat, ok := tx.AdapterCategory(a)
		if !ok {
			return domain.CapitalRight{}, domain.ErrUnknownAdapter
		}
		categories = append(categories, cat)
	}
	if tx.Breaker().Tripped {
		return domain.CapitalRight{}, domain.ErrCircuitBreakerTripped
	}

	rec, known := tx.Reputation(req.Executor)
	if rec.IsBanned {
		return domain.CapitalRight{}, domain.ErrBanned
	}
	tc, err := g.tiers.config(rec.Tier)
	if err != nil {
		return domain.CapitalRight{}, err
	}
	if !rec.IsWhitelisted && req.CapitalLimit > tc.MaxCapital {
		return domain.CapitalRight{}, domain.ErrCapitalLimitExceeded
	}
	required, err := fixedpoint.ApplyBps(req.CapitalLimit, tc.StakeRequiredBps)
	if err != nil {
		return domain.CapitalRight{}, err
	}
	if req.StakeProvided < required {
		return domain.CapitalRight{}, domain.ErrInsufficientStake
	}

	c := req.Constraints
	if c.MaxLeverage == 0 {
		c.MaxLeverage = 1
	}
	if c.MaxPositionSizeBps == 0 {
		c.MaxPositionSizeBps = fixedpoint.BPS
	}
	// An unset drawdown inherits the tier limit without counting toward the
	// derived risk level.
	risk := DeriveRiskLevel(c, categories)
	if c.MaxDrawdownBps == 0 {
		c.MaxDrawdownBps = tc.MaxDrawdownBps
	}
	if !rec.IsWhitelisted && (risk > tc.AllowedRiskLevel || c.MaxDrawdownBps > tc.MaxDrawdownBps) {
		return domain.CapitalRight{}, domain.ErrRiskLevelNotAllowed
	}

	ctl := tx.Controls()
	now := tx.Now()
	r := domain.CapitalRight{
		ID:           ctl.NextRightID,
		Owner:        req.Executor,
		Executor:     req.Executor,
		CapitalLimit: req.CapitalLimit,
		StartTime:    now,
		ExpiryTime:   now.Add(req.Duration),
		Constraints:  c,
		Fees: domain.Fees{
			BaseFeeAprBps:  req.Fees.BaseFeeAprBps,
			ProfitShareBps: req.Fees.ProfitShareBps,
			StakedAmount:   req.StakeProvided,
		},
		RiskLevel: risk,
		Status:    domain.RightStatusPending,
	}
	if err := g.pool.allocate(tx, r.CapitalLimit); err != nil {
		return domain.CapitalRight{}, err
	}
	r.Status = domain.RightStatusActive

	v := tx.Vault()
	if v.EscrowedStake, err = fixedpoint.Add(v.EscrowedStake, req.StakeProvided); err != nil {
		return domain.CapitalRight{}, err
	}
	tx.SetVault(v)
	ctl.NextRightID++
	tx.SetControls(ctl)
	tx.PutRight(r)
	if !known {
		tx.PutReputation(rec)
	}
	tx.Emit(domain.EventRightRequested, r.ID, r.Owner, r.CapitalLimit, map[string]any{
		"stake":      req.StakeProvided,
		"expiry":     r.ExpiryTime,
		"risk_level": risk.String(),
		"tier":       rec.Tier.String(),
	})
	return r, nil
}

func (rightsRegistry) transfer(tx *Tx, id uint64, caller, newOwner common.Address) error {
	if newOwner == (common.Address{}) {
		return domain.ErrZeroAddress
	}
	r, ok := tx.Right(id)
	if !ok {
		return domain.ErrNotFound
	}
	if caller != r.Owner {
		return domain.ErrUnauthorized
	}
	if r.Status != domain.RightStatusActive {
		return domain.ErrNotActive
	}
	prev := r.Owner
	r.Owner = newOwner
	tx.PutRight(r)
	tx.Emit(domain.EventRightTransferred, id, caller, 0, map[string]any{
		"from": prev.Hex(),
		"to":   newOwner.Hex(),
	})
	return nil
}

// RequestRight admits a new capital right for req.Executor, who becomes its
// owner. The stake is escrowed until settlement.
func (l *Ledger) RequestRight(ctx context.Context, req domain.RightRequest) (domain.CapitalRight, error) {
	var r domain.CapitalRight
	err := l.update(ctx, "request right", func(tx *Tx) error {
		var err error
		r, err = l.registry.request(tx, req)
		return err
	})
	if err != nil {
		return domain.CapitalRight{}, err
	}
	l.logger.InfoContext(ctx, "ledger: right issued",
		slog.Uint64("right_id", r.ID),
		slog.String("executor", r.Executor.Hex()),
		slog.String("capital", r.CapitalLimit.String()),
		slog.String("risk", r.RiskLevel.String()),
		slog.Time("expiry", r.ExpiryTime),
	)
	return r, nil
}

// Transfer hands ownership of an active right to newOwner.
func (l *Ledger) Transfer(ctx context.Context, id uint64, caller, newOwner common.Address) error {
	return l.update(ctx, "transfer", func(tx *Tx) error {
		return l.registry.transfer(tx, id, caller, newOwner)
	})
}

// IsValid reports whether the right is active and not yet expired.
func (l *Ledger) IsValid(id uint64) bool {
	var ok bool
	l.read(func(tx *Tx) {
		r, found := tx.Right(id)
		ok = found && r.Status == domain.RightStatusActive && !r.Expired(tx.Now())
	})
	return ok
}

// Right returns a right with its display status: active rights past expiry
// report as expired.
func (l *Ledger) Right(id uint64) (domain.CapitalRight, error) {
	var r domain.CapitalRight
	err := l.view(func(tx *Tx) error {
		found, ok := tx.Right(id)
		if !ok {
			return domain.ErrNotFound
		}
		found.Status = found.DisplayStatus(tx.Now())
		r = found
		return nil
	})
	return r, err
}

// ListRights returns rights matching f in id order.
func (l *Ledger) ListRights(f domain.RightFilter) []domain.CapitalRight {
	var out []domain.CapitalRight
	l.read(func(tx *Tx) {
		now := tx.Now()
		skipped := 0
		for _, r := range tx.Rights() {
			if f.Owner != nil && r.Owner != *f.Owner {
				continue
			}
			if f.ExpiredAt != nil && (r.Status != domain.RightStatusActive || !r.Expired(*f.ExpiredAt)) {
				continue
			}
			r.Status = r.DisplayStatus(now)
			if f.Status != "" && r.Status != f.Status {
				continue
			}
			if skipped < f.Offset {
				skipped++
				continue
			}
			out = append(out, r)
			if f.Limit > 0 && len(out) >= f.Limit {
				return
			}
		}
	})
	return out
}

// ExpiredRights lists active rights whose expiry is at or before at.
func (l *Ledger) ExpiredRights(at time.Time) []domain.CapitalRight {
	return l.ListRights(domain.RightFilter{ExpiredAt: &at})
}
