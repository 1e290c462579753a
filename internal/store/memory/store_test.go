package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/store/memory"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestStore_LoadReturnsCopies(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	lp := common.HexToAddress("0xb1")

	require.NoError(t, s.Apply(ctx, domain.Changeset{
		Holders: map[common.Address]domain.Amount{lp: domain.Units(3)},
		Rights:  []domain.CapitalRight{{ID: 2}, {ID: 1}},
	}))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	snap.Holders[lp] = 0
	require.Len(t, snap.Rights, 2)
	assert.Equal(t, uint64(1), snap.Rights[0].ID)

	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Units(3), again.Holders[lp])
	assert.Equal(t, 1, s.Applies())
}

func TestStore_ZeroHolderAndPositionDelete(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	lp := common.HexToAddress("0xb1")
	p := domain.Position{RightID: 1, Adapter: common.HexToAddress("0xe1"), Asset: "ETH", Size: 1}

	require.NoError(t, s.Apply(ctx, domain.Changeset{
		Holders:         map[common.Address]domain.Amount{lp: domain.Units(3)},
		PositionUpserts: []domain.Position{p},
	}))
	require.NoError(t, s.Apply(ctx, domain.Changeset{
		Holders:         map[common.Address]domain.Amount{lp: 0},
		PositionDeletes: []domain.PositionKey{p.Key()},
	}))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Holders)
	assert.Empty(t, snap.Positions)
}

func TestStore_ListWindowAndPaging(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		at := t0.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.Apply(ctx, domain.Changeset{
			Events:      []domain.Event{{ID: string(rune('a' + i)), At: at}},
			Settlements: []domain.SettlementRecord{{RightID: uint64(i + 1), SettledAt: at}},
		}))
	}

	since, until := t0.Add(time.Hour), t0.Add(4*time.Hour)
	evs, err := s.ListEvents(ctx, domain.ListOpts{Since: &since, Until: &until, Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "c", evs[0].ID)

	recs, err := s.ListSettlements(ctx, domain.ListOpts{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = s.ListSettlements(ctx, domain.ListOpts{Until: &since})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(1), recs[0].RightID)
}
