package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/fixedpoint"
)

type tierManager struct {
	tiers map[domain.ExecutorTier]domain.TierConfig
}

func (m tierManager) config(t domain.ExecutorTier) (domain.TierConfig, error) {
	tc, ok := m.tiers[t]
	if !ok {
		return domain.TierConfig{}, domain.ErrNotFound
	}
	return tc, nil
}

// recordSettlement folds one settled right into the executor's history.
// A loss or a flat result ends the profit streak.
func (tierManager) recordSettlement(tx *Tx, executor common.Address, pnl, volume domain.Amount) error {
	rec, _ := tx.Reputation(executor)
	var err error
	if rec.TotalVolume, err = fixedpoint.Add(rec.TotalVolume, volume); err != nil {
		return err
	}
	if rec.TotalPnl, err = fixedpoint.Add(rec.TotalPnl, pnl); err != nil {
		return err
	}
	rec.TotalSettlements++
	if pnl > 0 {
		rec.ProfitableSettlements++
		rec.ConsecutiveProfits++
	} else {
		rec.ConsecutiveProfits = 0
	}
	now := tx.Now()
	rec.LastSettledAt = &now
	tx.PutReputation(rec)
	return nil
}

// GetTier returns the executor's tier; unknown executors are unverified.
func (l *Ledger) GetTier(executor common.Address) domain.ExecutorTier {
	return l.Reputation(executor).Tier
}

// GetTierConfig returns the limits attached to tier.
func (l *Ledger) GetTierConfig(tier domain.ExecutorTier) (domain.TierConfig, error) {
	return l.tiers.config(tier)
}

// Reputation returns the executor's record, or a fresh unverified record.
func (l *Ledger) Reputation(executor common.Address) domain.ReputationRecord {
	var rec domain.ReputationRecord
	l.read(func(tx *Tx) { rec, _ = tx.Reputation(executor) })
	return rec
}

// IsBanned reports whether executor may not request new rights.
func (l *Ledger) IsBanned(executor common.Address) bool {
	return l.Reputation(executor).IsBanned
}

// IsWhitelisted reports whether executor bypasses the tier gate.
func (l *Ledger) IsWhitelisted(executor common.Address) bool {
	return l.Reputation(executor).IsWhitelisted
}
