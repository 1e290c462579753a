package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/ledger"
)

func TestDeriveRiskLevel(t *testing.T) {
	tests := []struct {
		name string
		c    domain.Constraints
		cats []domain.AdapterCategory
		want domain.RiskLevel
	}{
		{"unlevered yield", domain.Constraints{MaxLeverage: 1}, []domain.AdapterCategory{domain.AdapterYield}, domain.RiskLow},
		{"2x leverage", domain.Constraints{MaxLeverage: 2}, nil, domain.RiskMedium},
		{"wide drawdown", domain.Constraints{MaxLeverage: 1, MaxDrawdownBps: 1001}, nil, domain.RiskMedium},
		{"dex venue", domain.Constraints{MaxLeverage: 1}, []domain.AdapterCategory{domain.AdapterDEX}, domain.RiskMedium},
		{"4x leverage", domain.Constraints{MaxLeverage: 4}, nil, domain.RiskHigh},
		{"perp venue", domain.Constraints{MaxLeverage: 1}, []domain.AdapterCategory{domain.AdapterYield, domain.AdapterPerpetual}, domain.RiskHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ledger.DeriveRiskLevel(tt.c, tt.cats))
		})
	}
}

func TestRequestRight_ScenarioD_CapitalLimitExceeded(t *testing.T) {
	h := newHarness(t)
	h.fund(t, domain.Units(1_000_000))
	before := h.l.PoolState()
	applies := h.store.Applies()

	_, err := h.l.RequestRight(context.Background(), domain.RightRequest{
		Executor:      executor,
		CapitalLimit:  domain.Units(100_000),
		Duration:      week,
		StakeProvided: domain.Units(100_000),
	})
	require.ErrorIs(t, err, domain.ErrCapitalLimitExceeded)
	assert.Equal(t, domain.KindRisk, domain.KindOf(err))

	assert.Equal(t, before, h.l.PoolState())
	assert.Equal(t, applies, h.store.Applies())
	assert.Empty(t, h.l.ListRights(domain.RightFilter{}))
}

func TestRequestRight_Checks(t *testing.T) {
	base := domain.RightRequest{
		Executor:      executor,
		CapitalLimit:  domain.Units(1_000),
		Duration:      week,
		Constraints:   domain.Constraints{AllowedAdapters: []common.Address{yieldAdapter}},
		Fees:          domain.Fees{BaseFeeAprBps: 100, ProfitShareBps: 1000},
		StakeProvided: domain.Units(500),
	}
	unknown := common.HexToAddress("0x00000000000000000000000000000000000009ff")

	tests := []struct {
		name   string
		mutate func(*domain.RightRequest)
		want   error
	}{
		{"zero executor", func(r *domain.RightRequest) { r.Executor = common.Address{} }, domain.ErrZeroAddress},
		{"zero capital", func(r *domain.RightRequest) { r.CapitalLimit = 0 }, domain.ErrZeroAmount},
		{"negative stake", func(r *domain.RightRequest) { r.StakeProvided = -1 }, domain.ErrZeroAmount},
		{"zero duration", func(r *domain.RightRequest) { r.Duration = 0 }, domain.ErrInvalidDuration},
		{"duration too long", func(r *domain.RightRequest) { r.Duration = 91 * 24 * time.Hour }, domain.ErrInvalidDuration},
		{"profit share above bps", func(r *domain.RightRequest) { r.Fees.ProfitShareBps = 10_001 }, domain.ErrInvalidFees},
		{"unregistered adapter", func(r *domain.RightRequest) {
			r.Constraints.AllowedAdapters = []common.Address{unknown}
		}, domain.ErrUnknownAdapter},
		{"stake below tier ratio", func(r *domain.RightRequest) { r.StakeProvided = domain.Units(499) }, domain.ErrInsufficientStake},
		{"dex above unverified risk", func(r *domain.RightRequest) {
			r.Constraints.AllowedAdapters = []common.Address{dexAdapter}
		}, domain.ErrRiskLevelNotAllowed},
		{"drawdown at tier limit", func(r *domain.RightRequest) { r.Constraints.MaxDrawdownBps = 1000 }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.fund(t, domain.Units(10_000))
			req := base
			req.Constraints.AllowedAdapters = append([]common.Address(nil), base.Constraints.AllowedAdapters...)
			tt.mutate(&req)
			_, err := h.l.RequestRight(context.Background(), req)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
			assert.Zero(t, h.l.PoolState().AllocatedCapital)
		})
	}
}

func TestRequestRight_DrawdownAboveTier(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, domain.Units(100_000))
	require.NoError(t, h.l.SetTier(ctx, admin, executor, domain.TierVerified))

	// Medium risk is allowed for verified executors but 2500 bps is above
	// the tier's 2000 bps drawdown.
	_, err := h.l.RequestRight(ctx, domain.RightRequest{
		Executor:      executor,
		CapitalLimit:  domain.Units(1_000),
		Duration:      week,
		Constraints:   domain.Constraints{MaxDrawdownBps: 2500},
		StakeProvided: domain.Units(200),
	})
	assert.ErrorIs(t, err, domain.ErrRiskLevelNotAllowed)
}

func TestRequestRight_MinimumFees(t *testing.T) {
	h := newHarness(t, func(c *ledger.Config) {
		c.MinBaseFeeAprBps = 100
		c.MinProfitShareBps = 1000
	})
	h.fund(t, domain.Units(10_000))
	_, err := h.l.RequestRight(context.Background(), domain.RightRequest{
		Executor:      executor,
		CapitalLimit:  domain.Units(100),
		Duration:      week,
		Fees:          domain.Fees{BaseFeeAprBps: 99, ProfitShareBps: 1000},
		StakeProvided: domain.Units(50),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidFees)
}

func TestRequestRight_BannedAndWhitelisted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, domain.Units(100_000))

	req := domain.RightRequest{
		Executor:      executor,
		CapitalLimit:  domain.Units(20_000),
		Duration:      week,
		Constraints:   domain.Constraints{MaxLeverage: 5},
		StakeProvided: domain.Units(10_000),
	}
	_, err := h.l.RequestRight(ctx, req)
	require.ErrorIs(t, err, domain.ErrCapitalLimitExceeded)

	require.NoError(t, h.l.SetWhitelisted(ctx, admin, executor, true))
	req.StakeProvided = domain.Units(9_999)
	_, err = h.l.RequestRight(ctx, req)
	require.ErrorIs(t, err, domain.ErrInsufficientStake, "whitelist still requires the tier stake")

	req.StakeProvided = domain.Units(10_000)
	r, err := h.l.RequestRight(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, r.RiskLevel)

	require.NoError(t, h.l.BanExecutor(ctx, admin, executor))
	_, err = h.l.RequestRight(ctx, req)
	assert.ErrorIs(t, err, domain.ErrBanned)
	assert.True(t, h.l.IsBanned(executor))

	require.NoError(t, h.l.UnbanExecutor(ctx, admin, executor))
	assert.False(t, h.l.IsBanned(executor))
}

func TestRequestRight_ActivatesAndEscrows(t *testing.T) {
	h := newHarness(t)
	r := h.noviceRight(t)

	assert.Equal(t, uint64(1), r.ID)
	assert.Equal(t, domain.RightStatusActive, r.Status)
	assert.Equal(t, executor, r.Owner)
	assert.Equal(t, t0, r.StartTime)
	assert.Equal(t, t0.Add(week), r.ExpiryTime)
	assert.Equal(t, uint32(1), r.Constraints.MaxLeverage)
	assert.Equal(t, uint32(10_000), r.Constraints.MaxPositionSizeBps)
	assert.Equal(t, uint32(1500), r.Constraints.MaxDrawdownBps)
	assert.Equal(t, domain.RiskLow, r.RiskLevel)
	assert.Equal(t, domain.Units(3_000), r.Fees.StakedAmount)

	v := h.l.PoolState()
	assert.Equal(t, domain.Units(10_000), v.AllocatedCapital)
	assert.Equal(t, domain.Units(3_000), v.EscrowedStake)
	assert.True(t, h.l.IsValid(r.ID))
}

func TestRequestRight_Paused(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, domain.Units(10_000))
	req := domain.RightRequest{
		Executor:      executor,
		CapitalLimit:  domain.Units(100),
		Duration:      week,
		StakeProvided: domain.Units(50),
	}

	require.NoError(t, h.l.Pause(ctx, admin))
	_, err := h.l.RequestRight(ctx, req)
	require.ErrorIs(t, err, domain.ErrPaused)
	require.NoError(t, h.l.Unpause(ctx, admin))

	_, err = h.l.RequestRight(ctx, req)
	require.NoError(t, err)
}

func TestRight_DisplaysExpired(t *testing.T) {
	h := newHarness(t)
	r := h.noviceRight(t)

	h.clock.Advance(week)
	got, err := h.l.Right(r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RightStatusExpired, got.Status)
	assert.False(t, h.l.IsValid(r.ID))

	expired := h.l.ExpiredRights(h.clock.Now())
	require.Len(t, expired, 1)
	assert.Equal(t, r.ID, expired[0].ID)

	_, err = h.l.Right(99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListRights_Filters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, domain.Units(10_000))
	for _, who := range []common.Address{executor, other, executor} {
		_, err := h.l.RequestRight(ctx, domain.RightRequest{
			Executor:      who,
			CapitalLimit:  domain.Units(100),
			Duration:      week,
			StakeProvided: domain.Units(50),
		})
		require.NoError(t, err)
	}

	owner := executor
	mine := h.l.ListRights(domain.RightFilter{Owner: &owner})
	require.Len(t, mine, 2)
	assert.Equal(t, uint64(1), mine[0].ID)
	assert.Equal(t, uint64(3), mine[1].ID)

	page := h.l.ListRights(domain.RightFilter{Offset: 1, Limit: 1})
	require.Len(t, page, 1)
	assert.Equal(t, uint64(2), page[0].ID)

	assert.Len(t, h.l.ListRights(domain.RightFilter{Status: domain.RightStatusActive}), 3)
	assert.Empty(t, h.l.ListRights(domain.RightFilter{Status: domain.RightStatusSettled}))
}

func TestTransfer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.noviceRight(t)

	assert.ErrorIs(t, h.l.Transfer(ctx, r.ID, other, other), domain.ErrUnauthorized)
	assert.ErrorIs(t, h.l.Transfer(ctx, r.ID, executor, common.Address{}), domain.ErrZeroAddress)
	assert.ErrorIs(t, h.l.Transfer(ctx, 42, executor, other), domain.ErrNotFound)

	before := h.l.PoolState()
	require.NoError(t, h.l.Transfer(ctx, r.ID, executor, other))
	got, err := h.l.Right(r.ID)
	require.NoError(t, err)
	assert.Equal(t, other, got.Owner)
	assert.Equal(t, executor, got.Executor)
	assert.Equal(t, before, h.l.PoolState())

	assert.ErrorIs(t, h.l.Transfer(ctx, r.ID, executor, executor), domain.ErrUnauthorized)
}
