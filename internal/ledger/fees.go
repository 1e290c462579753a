package ledger

import (
	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/fixedpoint"
)

// CalculateFeeBreakdown splits a right's result. The base fee accrues on the
// capital limit for elapsedSeconds regardless of pnl. A profit is skimmed for
// insurance first, on the gross amount, and the LP share is taken from what
// remains; flooring remainders stay with the executor so the three profit
// parts always sum to pnl. A loss slashes the stake up to its full amount.
func CalculateFeeBreakdown(r domain.CapitalRight, pnl domain.Amount, elapsedSeconds int64, insuranceFeeBps uint32) (domain.FeeBreakdown, error) {
	var fb domain.FeeBreakdown
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	var err error
	fb.LpBaseFee, err = fixedpoint.MulMulDiv(r.CapitalLimit, int64(r.Fees.BaseFeeAprBps), elapsedSeconds,
		fixedpoint.BPS*fixedpoint.SecondsPerYear)
	if err != nil {
		return domain.FeeBreakdown{}, err
	}

	switch {
	case pnl > 0:
		if fb.InsuranceFee, err = fixedpoint.ApplyBps(pnl, insuranceFeeBps); err != nil {
			return domain.FeeBreakdown{}, err
		}
		after := pnl - fb.InsuranceFee
		if fb.LpProfitShare, err = fixedpoint.ApplyBps(after, r.Fees.ProfitShareBps); err != nil {
			return domain.FeeBreakdown{}, err
		}
		fb.ExecutorProfit = after - fb.LpProfitShare
	case pnl < 0:
		fb.StakeSlashed = min(-pnl, r.Fees.StakedAmount)
		if fb.StakeSlashed < 0 {
			fb.StakeSlashed = 0
		}
	}
	return fb, nil
}
