package ledger_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

func TestAdmin_RequiresAdminCaller(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	calls := map[string]error{
		"set adapter": h.l.SetAdapterType(ctx, other, yieldAdapter, domain.AdapterDEX),
		"set tier":    h.l.SetTier(ctx, other, executor, domain.TierElite),
		"ban":         h.l.BanExecutor(ctx, other, executor),
		"whitelist":   h.l.SetWhitelisted(ctx, other, executor, true),
		"pause":       h.l.Pause(ctx, other),
		"threshold":   h.l.SetBreakerThreshold(ctx, other, 0),
	}
	for name, err := range calls {
		assert.ErrorIs(t, err, domain.ErrUnauthorized, name)
		assert.Equal(t, domain.KindAuthorization, domain.KindOf(err), name)
	}
	_, err := h.l.PayoutInsurance(ctx, other, other, domain.One)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	assert.Equal(t, domain.TierUnverified, h.l.GetTier(executor))
	assert.False(t, h.l.IsPaused())
	cat, _ := h.l.AdapterCategory(yieldAdapter)
	assert.Equal(t, domain.AdapterYield, cat)
}

func TestSetAdapterTypes_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := common.HexToAddress("0x00000000000000000000000000000000000002e1")

	err := h.l.SetAdapterTypes(ctx, admin, []common.Address{a}, nil)
	assert.ErrorIs(t, err, domain.ErrArrayLengthMismatch)

	err = h.l.SetAdapterTypes(ctx, admin,
		[]common.Address{a, common.Address{}},
		[]domain.AdapterCategory{domain.AdapterDEX, domain.AdapterDEX})
	assert.ErrorIs(t, err, domain.ErrZeroAddress)
	_, ok := h.l.AdapterCategory(a)
	assert.False(t, ok, "batch is all or nothing")

	err = h.l.SetAdapterType(ctx, admin, a, domain.AdapterCategory("lending"))
	assert.ErrorIs(t, err, domain.ErrUnknownAdapter)
}

func TestSetTier(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.l.SetTier(ctx, admin, executor, domain.TierElite))
	assert.Equal(t, domain.TierElite, h.l.GetTier(executor))

	tc, err := h.l.GetTierConfig(domain.TierElite)
	require.NoError(t, err)
	assert.Equal(t, domain.Units(1_000_000), tc.MaxCapital)
	assert.Equal(t, domain.RiskHigh, tc.AllowedRiskLevel)

	assert.ErrorIs(t, h.l.SetTier(ctx, admin, executor, domain.ExecutorTier(9)), domain.ErrNotFound)
	assert.ErrorIs(t, h.l.SetTier(ctx, admin, common.Address{}, domain.TierNovice), domain.ErrZeroAddress)
}

func TestInsurance_DepositAndCappedPayout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.l.DepositInsurance(ctx, lp, 0), domain.ErrZeroAmount)
	require.NoError(t, h.l.DepositInsurance(ctx, lp, domain.Units(300)))
	assert.False(t, h.l.IsFunded())

	paid, err := h.l.PayoutInsurance(ctx, admin, other, domain.Units(100))
	require.NoError(t, err)
	assert.Equal(t, domain.Units(100), paid)

	paid, err = h.l.PayoutInsurance(ctx, admin, other, domain.Units(1_000))
	require.NoError(t, err)
	assert.Equal(t, domain.Units(200), paid, "payout never exceeds the balance")

	s := h.l.InsuranceState()
	assert.Zero(t, s.Balance)
	assert.Equal(t, domain.Units(300), s.TotalCollected)
	assert.Equal(t, domain.Units(300), s.TotalPaidOut)

	paid, err = h.l.PayoutInsurance(ctx, admin, other, domain.One)
	require.NoError(t, err)
	assert.Zero(t, paid)
}

func TestSetBreakerThreshold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	assert.ErrorIs(t, h.l.SetBreakerThreshold(ctx, admin, -1), domain.ErrZeroAmount)
	require.NoError(t, h.l.SetBreakerThreshold(ctx, admin, 0))
	assert.Zero(t, h.l.BreakerState().Threshold)
}
