package ledger

import (
	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/fixedpoint"
)

// utilizationController is the pool-wide allocation ceiling. It holds no
// state beyond the configured ratio.
type utilizationController struct {
	maxBps uint32
}

// canAllocate reports whether (allocated+amount)*BPS <= totalAssets*maxBps.
func (u utilizationController) canAllocate(v domain.VaultState, amount domain.Amount) bool {
	if v.TotalAssets <= 0 || amount < 0 {
		return false
	}
	ceiling, err := fixedpoint.ApplyBps(v.TotalAssets, u.maxBps)
	if err != nil {
		return false
	}
	next, err := fixedpoint.Add(v.AllocatedCapital, amount)
	if err != nil {
		return false
	}
	return next <= ceiling
}

func (u utilizationController) utilizationBps(v domain.VaultState) uint32 {
	return fixedpoint.BpsOf(v.AllocatedCapital, v.TotalAssets)
}

// CanAllocate reports whether amount more capital could be allocated now
// without breaching the utilization ceiling.
func (l *Ledger) CanAllocate(amount domain.Amount) bool {
	var ok bool
	l.read(func(tx *Tx) { ok = l.util.canAllocate(tx.Vault(), amount) })
	return ok
}

// MaxUtilizationBps returns the configured ceiling.
func (l *Ledger) MaxUtilizationBps() uint32 { return l.util.maxBps }

// UtilizationBps returns allocated/total capital in basis points.
func (l *Ledger) UtilizationBps() uint32 {
	var bps uint32
	l.read(func(tx *Tx) { bps = l.util.utilizationBps(tx.Vault()) })
	return bps
}
