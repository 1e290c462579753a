// Package ledger is the capital-allocation and settlement engine. A single
// Ledger owns all pool, rights, position, exposure, breaker, insurance and
// reputation state and serializes every mutation behind one write lock: each
// operation checks all of its predicates against a copy-on-write overlay,
// persists the resulting changeset through the LedgerStore, and only then makes
// it visible to readers.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

// EventSink receives the events of every committed operation, in commit
// order, after the write lock has been released. The next commit waits for
// Emit to return before emitting, so Emit should not block.
type EventSink interface {
	Emit(ctx context.Context, events []domain.Event)
}

// Option customizes a Ledger at Open.
type Option func(*Ledger)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithEventSink registers the receiver of committed events.
func WithEventSink(sink EventSink) Option {
	return func(l *Ledger) { l.sink = sink }
}

// WithLogger sets the parent logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// Ledger is the single writer over the engine's state. It is safe for
// concurrent use; mutating calls are serialized and reads never observe a
// partially applied operation.
type Ledger struct {
	mu    sync.RWMutex
	st    *state
	store domain.LedgerStore
	cfg   Config

	// emitMu is taken before mu is released so sinks see commit order.
	emitMu sync.Mutex

	now    func() time.Time
	sink   EventSink
	logger *slog.Logger

	pool       capitalPool
	util       utilizationController
	tiers      tierManager
	registry   rightsRegistry
	positions  positionTracker
	exposure   exposureManager
	breaker    circuitBreaker
	insurance  insuranceFund
	settlement settlementEngine
	admins     map[common.Address]struct{}
}

// Open loads the persisted snapshot from store and returns a ready Ledger.
// A fresh store is bootstrapped with the configured breaker threshold.
func Open(ctx context.Context, store domain.LedgerStore, cfg Config, oracle domain.PriceOracle, opts ...Option) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Ledger{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
		admins: make(map[common.Address]struct{}, len(cfg.Admins)),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(slog.String("component", "ledger"))
	for _, a := range cfg.Admins {
		l.admins[a] = struct{}{}
	}

	l.util = utilizationController{maxBps: cfg.MaxUtilizationBps}
	l.pool = capitalPool{util: l.util}
	l.tiers = tierManager{tiers: cfg.Tiers}
	l.exposure = exposureManager{
		caps:          cfg.AssetCaps,
		defaultCapBps: cfg.DefaultAssetCapBps,
		nearLimitBps:  cfg.NearLimitBps,
	}
	l.positions = positionTracker{oracle: oracle, maxPriceAge: cfg.MaxPriceAge, exposure: l.exposure}
	l.breaker = circuitBreaker{window: cfg.BreakerWindow}
	l.insurance = insuranceFund{}
	l.registry = rightsRegistry{cfg: cfg, pool: l.pool, tiers: l.tiers}
	l.settlement = settlementEngine{
		cfg:       cfg,
		pool:      l.pool,
		tiers:     l.tiers,
		positions: l.positions,
		breaker:   l.breaker,
		insurance: l.insurance,
	}

	snap, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: load snapshot: %w", err)
	}
	l.st = newState(snap)
	l.st.insurance.Target = cfg.InsuranceTarget

	if l.st.controls.NextRightID == 0 {
		err := l.update(ctx, "bootstrap", func(tx *Tx) error {
			c := tx.Controls()
			c.NextRightID = 1
			tx.SetControls(c)
			b := tx.Breaker()
			b.Threshold = cfg.BreakerThreshold
			tx.SetBreaker(b)
			tx.SetInsurance(tx.Insurance())
			return nil
		})
		if err != nil {
			return nil, err
		}
		l.logger.Info("ledger: bootstrapped fresh store",
			slog.String("breaker_threshold", cfg.BreakerThreshold.String()),
		)
	}

	l.logger.Info("ledger: opened",
		slog.Int("rights", len(l.st.rights)),
		slog.Int("positions", len(l.st.positions)),
		slog.String("total_assets", l.st.vault.TotalAssets.String()),
	)
	return l, nil
}

// Config returns the policy the ledger was opened with.
func (l *Ledger) Config() Config { return l.cfg }

// update runs fn against a fresh overlay under the write lock and commits the
// result. Nothing fn wrote is visible if it, or the store, returns an error.
func (l *Ledger) update(ctx context.Context, op string, fn func(tx *Tx) error) error {
	l.mu.Lock()
	tx := newTx(l.st, l.now())
	if err := fn(tx); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("ledger: %s: %w", op, err)
	}
	cs := tx.changeset()
	if cs.Empty() {
		l.mu.Unlock()
		return nil
	}
	if err := l.store.Apply(ctx, cs); err != nil {
		l.mu.Unlock()
		l.logger.ErrorContext(ctx, "ledger: persist failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("ledger: %s: persist: %w", op, err)
	}
	tx.commit()
	l.emitMu.Lock()
	l.mu.Unlock()

	l.logger.DebugContext(ctx, "ledger: committed",
		slog.String("op", op),
		slog.Int("events", len(cs.Events)),
	)
	if l.sink != nil && len(cs.Events) > 0 {
		l.sink.Emit(ctx, cs.Events)
	}
	l.emitMu.Unlock()
	return nil
}

// view runs fn against a throwaway overlay under the read lock.
func (l *Ledger) view(fn func(tx *Tx) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn(newTx(l.st, l.now()))
}

// read is view for callers that cannot fail.
func (l *Ledger) read(fn func(tx *Tx)) {
	_ = l.view(func(tx *Tx) error {
		fn(tx)
		return nil
	})
}
