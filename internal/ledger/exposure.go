package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/fixedpoint"
)

// exposureManager aggregates open entry value per asset across all rights
// and enforces the per-asset concentration cap.
type exposureManager struct {
	caps          map[string]domain.Amount
	defaultCapBps uint32
	nearLimitBps  uint32
}

// capFor returns the configured absolute cap, or the default share of
// current pool assets.
func (m exposureManager) capFor(tx *Tx, asset string) domain.Amount {
	if c, ok := m.caps[asset]; ok {
		return c
	}
	ta := tx.Vault().TotalAssets
	if ta <= 0 {
		return 0
	}
	c, err := fixedpoint.ApplyBps(ta, m.defaultCapBps)
	if err != nil {
		return 0
	}
	return c
}

func (m exposureManager) refresh(e domain.ExposureEntry, limit domain.Amount) domain.ExposureEntry {
	e.Cap = limit
	e.UtilizationBps = fixedpoint.BpsOf(e.Exposure, limit)
	e.IsNearLimit = e.Exposure > 0 && e.UtilizationBps >= m.nearLimitBps
	e.IsAtLimit = e.Exposure > 0 && e.UtilizationBps >= fixedpoint.BPS
	return e
}

// add raises an asset's exposure, failing if the post-trade value would pass
// the cap.
func (m exposureManager) add(tx *Tx, rightID uint64, asset string, amount domain.Amount) error {
	e := tx.Exposure(asset)
	limit := m.capFor(tx, asset)
	next, err := fixedpoint.Add(e.Exposure, amount)
	if err != nil {
		return err
	}
	if next > limit {
		return domain.ErrExposureLimitExceeded
	}
	wasNear := e.IsNearLimit
	e.Exposure = next
	e = m.refresh(e, limit)
	tx.PutExposure(e)
	if e.IsNearLimit && !wasNear {
		tx.Emit(domain.EventExposureNearLimit, rightID, common.Address{}, e.Exposure, map[string]any{
			"asset":           asset,
			"cap":             limit,
			"utilization_bps": e.UtilizationBps,
		})
	}
	return nil
}

func (m exposureManager) remove(tx *Tx, asset string, amount domain.Amount) {
	e := tx.Exposure(asset)
	e.Exposure -= amount
	if e.Exposure < 0 {
		e.Exposure = 0
	}
	tx.PutExposure(m.refresh(e, m.capFor(tx, asset)))
}

// Exposure returns the aggregate for asset with its cap evaluated against the
// current pool.
func (l *Ledger) Exposure(asset string) domain.ExposureEntry {
	var e domain.ExposureEntry
	l.read(func(tx *Tx) {
		e = l.exposure.refresh(tx.Exposure(asset), l.exposure.capFor(tx, asset))
	})
	return e
}

// ExposureTable returns every tracked asset in name order.
func (l *Ledger) ExposureTable() []domain.ExposureEntry {
	var out []domain.ExposureEntry
	l.read(func(tx *Tx) {
		for _, a := range tx.ExposureAssets() {
			out = append(out, l.exposure.refresh(tx.Exposure(a), l.exposure.capFor(tx, a)))
		}
	})
	return out
}
