package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/ledger"
	"github.com/alanyoungcy/ertledger/internal/store/memory"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	lp       = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	executor = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	other    = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	keeper   = common.HexToAddress("0x00000000000000000000000000000000000000d1")

	yieldAdapter = common.HexToAddress("0x00000000000000000000000000000000000001e1")
	dexAdapter   = common.HexToAddress("0x00000000000000000000000000000000000001e2")
	perpAdapter  = common.HexToAddress("0x00000000000000000000000000000000000001e3")

	t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

const week = 7 * 24 * time.Hour

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeOracle serves quotes set by the test; unknown assets have no price.
type fakeOracle struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
}

func (o *fakeOracle) Quote(_ context.Context, asset string) (domain.Quote, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	q, ok := o.quotes[asset]
	if !ok {
		return domain.Quote{}, domain.ErrPriceUnavailable
	}
	return q, nil
}

// set quotes asset at price whole units with 8 decimals.
func (o *fakeOracle) set(asset string, price int64, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quotes[asset] = domain.Quote{Asset: asset, Price: price * 100_000_000, Decimals: 8, Timestamp: at}
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) Emit(_ context.Context, events []domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

func (s *recordingSink) types() []domain.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	l      *ledger.Ledger
	store  *memory.Store
	oracle *fakeOracle
	clock  *clock
	sink   *recordingSink
}

func newHarness(t *testing.T, mutate ...func(*ledger.Config)) *harness {
	t.Helper()
	cfg := ledger.DefaultConfig()
	cfg.Admins = []common.Address{admin}
	for _, m := range mutate {
		m(&cfg)
	}
	h := &harness{
		store:  memory.New(),
		oracle: &fakeOracle{quotes: map[string]domain.Quote{}},
		clock:  &clock{now: t0},
		sink:   &recordingSink{},
	}
	l, err := ledger.Open(context.Background(), h.store, cfg, h.oracle,
		ledger.WithClock(h.clock.Now),
		ledger.WithEventSink(h.sink),
	)
	require.NoError(t, err)
	h.l = l

	ctx := context.Background()
	require.NoError(t, l.SetAdapterTypes(ctx, admin,
		[]common.Address{yieldAdapter, dexAdapter, perpAdapter},
		[]domain.AdapterCategory{domain.AdapterYield, domain.AdapterDEX, domain.AdapterPerpetual},
	))
	return h
}

func (h *harness) fund(t *testing.T, amount domain.Amount) {
	t.Helper()
	_, err := h.l.Deposit(context.Background(), lp, amount)
	require.NoError(t, err)
}

// noviceRight funds the pool with 100k and issues a 10k, 7 day right to a
// novice executor on the yield adapter.
func (h *harness) noviceRight(t *testing.T) domain.CapitalRight {
	t.Helper()
	ctx := context.Background()
	h.fund(t, domain.Units(100_000))
	require.NoError(t, h.l.SetTier(ctx, admin, executor, domain.TierNovice))
	r, err := h.l.RequestRight(ctx, domain.RightRequest{
		Executor:      executor,
		CapitalLimit:  domain.Units(10_000),
		Duration:      week,
		Constraints:   domain.Constraints{AllowedAdapters: []common.Address{yieldAdapter}},
		Fees:          domain.Fees{BaseFeeAprBps: 200, ProfitShareBps: 2000},
		StakeProvided: domain.Units(3_000),
	})
	require.NoError(t, err)
	return r
}

// failingStore rejects every Apply after it is armed.
type failingStore struct {
	*memory.Store
	armed bool
}

func (s *failingStore) Apply(ctx context.Context, cs domain.Changeset) error {
	if s.armed {
		return errors.New("disk full")
	}
	return s.Store.Apply(ctx, cs)
}

func TestOpen_BootstrapsFreshStore(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, ledger.DefaultConfig().BreakerThreshold, h.l.BreakerState().Threshold)
	assert.Equal(t, ledger.DefaultConfig().InsuranceTarget, h.l.InsuranceState().Target)
	assert.False(t, h.l.IsTripped())
	assert.False(t, h.l.IsPaused())
}

func TestOpen_ReloadsCommittedState(t *testing.T) {
	h := newHarness(t)
	r := h.noviceRight(t)

	reopened, err := ledger.Open(context.Background(), h.store, ledger.DefaultConfig(), h.oracle,
		ledger.WithClock(h.clock.Now))
	require.NoError(t, err)

	assert.Equal(t, h.l.PoolState(), reopened.PoolState())
	got, err := reopened.Right(r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.CapitalLimit, got.CapitalLimit)
	assert.Equal(t, domain.TierNovice, reopened.GetTier(executor))
	assert.Equal(t, domain.Units(100_000), reopened.SharesOf(lp))

	cat, ok := reopened.AdapterCategory(perpAdapter)
	require.True(t, ok)
	assert.Equal(t, domain.AdapterPerpetual, cat)
}

func TestUpdate_StoreFailureLeavesStateUntouched(t *testing.T) {
	fs := &failingStore{Store: memory.New()}
	cfg := ledger.DefaultConfig()
	l, err := ledger.Open(context.Background(), fs, cfg, &fakeOracle{quotes: map[string]domain.Quote{}})
	require.NoError(t, err)

	_, err = l.Deposit(context.Background(), lp, domain.Units(10))
	require.NoError(t, err)

	fs.armed = true
	_, err = l.Deposit(context.Background(), lp, domain.Units(5))
	require.Error(t, err)
	assert.Zero(t, domain.KindOf(err))
	assert.Equal(t, domain.Units(10), l.PoolState().TotalAssets)
	assert.Equal(t, domain.Units(10), l.SharesOf(lp))
}

func TestEvents_DeliveredAfterCommit(t *testing.T) {
	h := newHarness(t)
	h.noviceRight(t)

	types := h.sink.types()
	assert.Contains(t, types, domain.EventDeposit)
	assert.Contains(t, types, domain.EventTierChanged)
	assert.Equal(t, domain.EventRightRequested, types[len(types)-1])

	stored, err := h.store.ListEvents(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, stored, len(types))
}
