package ledger

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

// IsAdmin reports whether addr is a configured admin.
func (l *Ledger) IsAdmin(addr common.Address) bool {
	_, ok := l.admins[addr]
	return ok
}

// admin runs fn as an update after checking caller is an admin.
func (l *Ledger) admin(ctx context.Context, op string, caller common.Address, fn func(tx *Tx) error) error {
	err := l.update(ctx, op, func(tx *Tx) error {
		if !l.IsAdmin(caller) {
			return domain.ErrUnauthorized
		}
		return fn(tx)
	})
	if err == nil {
		l.logger.InfoContext(ctx, "ledger: admin action",
			slog.String("op", op),
			slog.String("caller", caller.Hex()),
		)
	}
	return err
}

func setAdapter(tx *Tx, caller, adapter common.Address, cat domain.AdapterCategory) error {
	if adapter == (common.Address{}) {
		return domain.ErrZeroAddress
	}
	if !cat.Valid() {
		return domain.ErrUnknownAdapter
	}
	tx.SetAdapterCategory(adapter, cat)
	tx.Emit(domain.EventAdapterTypeSet, 0, caller, 0, map[string]any{
		"adapter":  adapter.Hex(),
		"category": string(cat),
	})
	return nil
}

// SetAdapterType registers or recategorizes a venue adapter.
func (l *Ledger) SetAdapterType(ctx context.Context, caller, adapter common.Address, cat domain.AdapterCategory) error {
	return l.admin(ctx, "set adapter type", caller, func(tx *Tx) error {
		return setAdapter(tx, caller, adapter, cat)
	})
}

// SetAdapterTypes registers adapters[i] as categories[i] in one commit.
func (l *Ledger) SetAdapterTypes(ctx context.Context, caller common.Address, adapters []common.Address, categories []domain.AdapterCategory) error {
	return l.admin(ctx, "set adapter types", caller, func(tx *Tx) error {
		if len(adapters) != len(categories) {
			return domain.ErrArrayLengthMismatch
		}
		for i := range adapters {
			if err := setAdapter(tx, caller, adapters[i], categories[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// AdapterCategory returns the registered category of adapter.
func (l *Ledger) AdapterCategory(adapter common.Address) (domain.AdapterCategory, bool) {
	var (
		cat domain.AdapterCategory
		ok  bool
	)
	l.read(func(tx *Tx) { cat, ok = tx.AdapterCategory(adapter) })
	return cat, ok
}

// SetTier overrides an executor's tier.
func (l *Ledger) SetTier(ctx context.Context, caller, executor common.Address, tier domain.ExecutorTier) error {
	return l.admin(ctx, "set tier", caller, func(tx *Tx) error {
		if executor == (common.Address{}) {
			return domain.ErrZeroAddress
		}
		if _, err := l.tiers.config(tier); err != nil {
			return err
		}
		rec, _ := tx.Reputation(executor)
		prev := rec.Tier
		rec.Tier = tier
		tx.PutReputation(rec)
		tx.Emit(domain.EventTierChanged, 0, caller, 0, map[string]any{
			"executor": executor.Hex(),
			"from":     prev.String(),
			"to":       tier.String(),
		})
		return nil
	})
}

func (l *Ledger) setFlag(ctx context.Context, op string, caller, executor common.Address, typ domain.EventType, apply func(*domain.ReputationRecord)) error {
	return l.admin(ctx, op, caller, func(tx *Tx) error {
		if executor == (common.Address{}) {
			return domain.ErrZeroAddress
		}
		rec, _ := tx.Reputation(executor)
		apply(&rec)
		tx.PutReputation(rec)
		tx.Emit(typ, 0, caller, 0, map[string]any{
			"executor":    executor.Hex(),
			"banned":      rec.IsBanned,
			"whitelisted": rec.IsWhitelisted,
		})
		return nil
	})
}

// BanExecutor blocks executor from requesting new rights. Existing rights are
// unaffected.
func (l *Ledger) BanExecutor(ctx context.Context, caller, executor common.Address) error {
	return l.setFlag(ctx, "ban executor", caller, executor, domain.EventExecutorBanned,
		func(r *domain.ReputationRecord) { r.IsBanned = true })
}

func (l *Ledger) UnbanExecutor(ctx context.Context, caller, executor common.Address) error {
	return l.setFlag(ctx, "unban executor", caller, executor, domain.EventExecutorUnbanned,
		func(r *domain.ReputationRecord) { r.IsBanned = false })
}

// SetWhitelisted toggles the tier-gate bypass for executor.
func (l *Ledger) SetWhitelisted(ctx context.Context, caller, executor common.Address, whitelisted bool) error {
	return l.setFlag(ctx, "set whitelisted", caller, executor, domain.EventWhitelistChanged,
		func(r *domain.ReputationRecord) { r.IsWhitelisted = whitelisted })
}

// Pause stops deposits and new rights. Withdrawals, position reports and
// settlements continue.
func (l *Ledger) Pause(ctx context.Context, caller common.Address) error {
	return l.admin(ctx, "pause", caller, func(tx *Tx) error {
		c := tx.Controls()
		c.Paused = true
		tx.SetControls(c)
		tx.Emit(domain.EventPaused, 0, caller, 0, nil)
		return nil
	})
}

func (l *Ledger) Unpause(ctx context.Context, caller common.Address) error {
	return l.admin(ctx, "unpause", caller, func(tx *Tx) error {
		c := tx.Controls()
		c.Paused = false
		tx.SetControls(c)
		tx.Emit(domain.EventUnpaused, 0, caller, 0, nil)
		return nil
	})
}

// IsPaused reports whether the ledger is paused.
func (l *Ledger) IsPaused() bool {
	var p bool
	l.read(func(tx *Tx) { p = tx.Controls().Paused })
	return p
}

// ResetBreaker clears the loss window and untrips the breaker.
func (l *Ledger) ResetBreaker(ctx context.Context, caller common.Address) error {
	return l.admin(ctx, "reset breaker", caller, func(tx *Tx) error {
		l.breaker.reset(tx, caller)
		return nil
	})
}

// SetBreakerThreshold sets the window loss that trips the breaker. Zero
// disables tripping.
func (l *Ledger) SetBreakerThreshold(ctx context.Context, caller common.Address, threshold domain.Amount) error {
	return l.admin(ctx, "set breaker threshold", caller, func(tx *Tx) error {
		if threshold < 0 {
			return domain.ErrZeroAmount
		}
		s := tx.Breaker()
		s.Threshold = threshold
		tx.SetBreaker(s)
		tx.Emit(domain.EventBreakerConfigured, 0, caller, threshold, nil)
		return nil
	})
}

// DepositInsurance tops up the insurance fund. Anyone may contribute.
func (l *Ledger) DepositInsurance(ctx context.Context, from common.Address, amount domain.Amount) error {
	return l.update(ctx, "deposit insurance", func(tx *Tx) error {
		if from == (common.Address{}) {
			return domain.ErrZeroAddress
		}
		if amount <= 0 {
			return domain.ErrZeroAmount
		}
		return l.insurance.deposit(tx, 0, from, amount)
	})
}

// PayoutInsurance pays up to amount from the fund to to and returns what was
// actually paid.
func (l *Ledger) PayoutInsurance(ctx context.Context, caller, to common.Address, amount domain.Amount) (domain.Amount, error) {
	var paid domain.Amount
	err := l.admin(ctx, "payout insurance", caller, func(tx *Tx) error {
		if to == (common.Address{}) {
			return domain.ErrZeroAddress
		}
		if amount <= 0 {
			return domain.ErrZeroAmount
		}
		paid = l.insurance.payout(tx, to, amount)
		return nil
	})
	return paid, err
}
