package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/ledger"
	"github.com/alanyoungcy/ertledger/internal/store/sqlite"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	lp       = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	executor = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	adapter  = common.HexToAddress("0x00000000000000000000000000000000000001e1")

	t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_EmptyLoad(t *testing.T) {
	s := openStore(t)
	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.Controls.NextRightID)
	assert.Empty(t, snap.Rights)
	assert.Empty(t, snap.Holders)
}

func TestStore_ApplyAndLoad(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	vault := domain.VaultState{TotalAssets: domain.Units(1_000), TotalShares: domain.Units(1_000)}
	controls := domain.Controls{NextRightID: 2}
	right := domain.CapitalRight{
		ID: 1, Owner: executor, Executor: executor,
		CapitalLimit: domain.Units(100), StartTime: t0, ExpiryTime: t0.Add(time.Hour),
		Constraints: domain.Constraints{AllowedAdapters: []common.Address{adapter}},
		Status:      domain.RightStatusActive,
	}
	pos := domain.Position{RightID: 1, Adapter: adapter, Asset: "ETH", Size: 3, EntryValue: domain.Units(50), Timestamp: t0}

	require.NoError(t, s.Apply(ctx, domain.Changeset{
		Vault:           &vault,
		Controls:        &controls,
		Holders:         map[common.Address]domain.Amount{lp: domain.Units(1_000)},
		Adapters:        map[common.Address]domain.AdapterCategory{adapter: domain.AdapterYield},
		Rights:          []domain.CapitalRight{right},
		PositionUpserts: []domain.Position{pos},
		Exposure:        []domain.ExposureEntry{{Asset: "ETH", Exposure: domain.Units(50), Cap: domain.Units(250), UpdatedAt: t0}},
		Events:          []domain.Event{{ID: "e1", Type: domain.EventRightRequested, RightID: 1, Actor: executor, At: t0}},
	}))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, vault, snap.Vault)
	assert.Equal(t, uint64(2), snap.Controls.NextRightID)
	assert.Equal(t, domain.Units(1_000), snap.Holders[lp])
	assert.Equal(t, domain.AdapterYield, snap.Adapters[adapter])
	require.Len(t, snap.Rights, 1)
	assert.True(t, right.ExpiryTime.Equal(snap.Rights[0].ExpiryTime))
	assert.Equal(t, right.Constraints.AllowedAdapters, snap.Rights[0].Constraints.AllowedAdapters)
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, pos.Key(), snap.Positions[0].Key())

	// Close the position, drain the holder, settle the right.
	right.Status = domain.RightStatusSettled
	require.NoError(t, s.Apply(ctx, domain.Changeset{
		Holders:         map[common.Address]domain.Amount{lp: 0},
		Rights:          []domain.CapitalRight{right},
		PositionDeletes: []domain.PositionKey{pos.Key()},
		Settlements:     []domain.SettlementRecord{{RightID: 1, Kind: domain.SettlementForced, SettledAt: t0.Add(time.Hour)}},
	}))
	snap, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Holders)
	assert.Empty(t, snap.Positions)
	assert.Equal(t, domain.RightStatusSettled, snap.Rights[0].Status)
	require.Len(t, snap.Settlements, 1)
	assert.Equal(t, domain.SettlementForced, snap.Settlements[0].Kind)
}

func TestStore_FailedApplyRollsBack(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	vault := domain.VaultState{TotalAssets: domain.Units(5)}

	ev := domain.Event{ID: "dup", Type: domain.EventDeposit, At: t0}
	require.NoError(t, s.Apply(ctx, domain.Changeset{Events: []domain.Event{ev}}))

	// Same event id violates the unique key after the vault write.
	err := s.Apply(ctx, domain.Changeset{Vault: &vault, Events: []domain.Event{ev}})
	require.Error(t, err)

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.Vault.TotalAssets)
}

func TestStore_ListEventsAndSettlements(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c", "d"} {
		at := t0.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.Apply(ctx, domain.Changeset{
			Events:      []domain.Event{{ID: id, Type: domain.EventDeposit, At: at}},
			Settlements: []domain.SettlementRecord{{RightID: uint64(i + 1), SettledAt: at}},
		}))
	}

	all, err := s.ListEvents(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "a", all[0].ID)

	since, until := t0.Add(time.Hour), t0.Add(3*time.Hour)
	mid, err := s.ListEvents(ctx, domain.ListOpts{Since: &since, Until: &until})
	require.NoError(t, err)
	require.Len(t, mid, 2)
	assert.Equal(t, "b", mid[0].ID)
	assert.Equal(t, "c", mid[1].ID)

	paged, err := s.ListEvents(ctx, domain.ListOpts{Offset: 3})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "d", paged[0].ID)

	recs, err := s.ListSettlements(ctx, domain.ListOpts{Since: &since, Limit: 1})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(2), recs[0].RightID)
}

func TestStore_LedgerSurvivesReopen(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := func() time.Time { return t0 }

	cfg := ledger.DefaultConfig()
	cfg.Admins = []common.Address{admin}
	l, err := ledger.Open(ctx, s, cfg, nil, ledger.WithClock(now))
	require.NoError(t, err)
	require.NoError(t, l.SetAdapterType(ctx, admin, adapter, domain.AdapterYield))
	_, err = l.Deposit(ctx, lp, domain.Units(10_000))
	require.NoError(t, err)
	r, err := l.RequestRight(ctx, domain.RightRequest{
		Executor:      executor,
		CapitalLimit:  domain.Units(1_000),
		Duration:      24 * time.Hour,
		Constraints:   domain.Constraints{AllowedAdapters: []common.Address{adapter}},
		StakeProvided: domain.Units(500),
	})
	require.NoError(t, err)
	_, err = l.RecordOpen(ctx, r.ID, adapter, adapter, "ETH", 1, domain.Units(400))
	require.NoError(t, err)

	reopened, err := ledger.Open(ctx, s, cfg, nil, ledger.WithClock(now))
	require.NoError(t, err)
	assert.Equal(t, l.PoolState(), reopened.PoolState())
	assert.Equal(t, l.SharesOf(lp), reopened.SharesOf(lp))
	assert.Len(t, reopened.Positions(r.ID), 1)
	assert.Equal(t, domain.Units(400), reopened.Exposure("ETH").Exposure)

	got, err := reopened.Right(r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RightStatusActive, got.Status)

	events, err := s.ListEvents(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}
