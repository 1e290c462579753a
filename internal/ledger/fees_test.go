package ledger_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/ledger"
)

func right(capital, stake domain.Amount, aprBps, shareBps uint32) domain.CapitalRight {
	return domain.CapitalRight{
		CapitalLimit: capital,
		Fees:         domain.Fees{BaseFeeAprBps: aprBps, ProfitShareBps: shareBps, StakedAmount: stake},
	}
}

func TestCalculateFeeBreakdown_ScenarioA(t *testing.T) {
	r := right(domain.Units(10_000), domain.Units(3_000), 200, 2000)
	fb, err := ledger.CalculateFeeBreakdown(r, domain.Units(1_000), int64(week.Seconds()), 200)
	require.NoError(t, err)

	assert.Equal(t, domain.Units(20), fb.InsuranceFee)
	assert.Equal(t, domain.Units(196), fb.LpProfitShare)
	assert.Equal(t, domain.Units(784), fb.ExecutorProfit)
	assert.Zero(t, fb.StakeSlashed)
	assert.Equal(t, domain.Amount(3_835_616), fb.LpBaseFee)
}

func TestCalculateFeeBreakdown_ScenarioB(t *testing.T) {
	r := right(domain.Units(10_000), domain.Units(5_000), 200, 2000)
	fb, err := ledger.CalculateFeeBreakdown(r, -domain.Units(2_000), 0, 200)
	require.NoError(t, err)

	assert.Equal(t, domain.Units(2_000), fb.StakeSlashed)
	assert.Zero(t, fb.LpProfitShare)
	assert.Zero(t, fb.InsuranceFee)
	assert.Zero(t, fb.ExecutorProfit)
	assert.Zero(t, fb.LpBaseFee)
}

func TestCalculateFeeBreakdown_ScenarioC_SlashCappedAtStake(t *testing.T) {
	r := right(domain.Units(10_000), domain.Units(5_000), 200, 2000)
	fb, err := ledger.CalculateFeeBreakdown(r, -domain.Units(8_000), 0, 200)
	require.NoError(t, err)
	assert.Equal(t, domain.Units(5_000), fb.StakeSlashed)
}

func TestCalculateFeeBreakdown_ProfitSplitIsExact(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 500; i++ {
		pnl := domain.Amount(rng.Int64N(int64(domain.Units(1_000_000))) + 1)
		share := uint32(rng.IntN(10_001))
		r := right(domain.Units(50_000), domain.Units(10_000), 500, share)

		fb, err := ledger.CalculateFeeBreakdown(r, pnl, 86_400, 200)
		require.NoError(t, err)
		assert.Equal(t, pnl, fb.InsuranceFee+fb.LpProfitShare+fb.ExecutorProfit, "pnl=%d share=%d", pnl, share)
		assert.GreaterOrEqual(t, fb.ExecutorProfit, domain.Amount(0))
	}
}

func TestCalculateFeeBreakdown_LossNeverSlashesBeyondStake(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 500; i++ {
		stake := domain.Amount(rng.Int64N(int64(domain.Units(5_000))))
		loss := domain.Amount(rng.Int64N(int64(domain.Units(20_000))) + 1)
		r := right(domain.Units(20_000), stake, 0, 0)

		fb, err := ledger.CalculateFeeBreakdown(r, -loss, 0, 200)
		require.NoError(t, err)
		assert.Equal(t, min(loss, stake), fb.StakeSlashed)
		assert.LessOrEqual(t, fb.StakeSlashed, stake)
	}
}

func TestCalculateFeeBreakdown_BaseFeeChargedOnFlatResult(t *testing.T) {
	r := right(domain.Units(365_000), 0, 1000, 0)
	fb, err := ledger.CalculateFeeBreakdown(r, 0, 86_400, 200)
	require.NoError(t, err)
	// 10% APR on 365k for one day.
	assert.Equal(t, domain.Units(100), fb.LpBaseFee)
	assert.Zero(t, fb.StakeSlashed)
	assert.Zero(t, fb.ExecutorProfit)
}
