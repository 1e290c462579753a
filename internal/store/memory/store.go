// Package memory implements the ledger stores in process memory. It backs
// ephemeral runs and tests; nothing survives a restart.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

// Compile-time interface checks.
var (
	_ domain.LedgerStore     = (*Store)(nil)
	_ domain.EventStore      = (*Store)(nil)
	_ domain.SettlementStore = (*Store)(nil)
)

// Store keeps the last applied state and the full event log.
type Store struct {
	mu          sync.RWMutex
	vault       domain.VaultState
	insurance   domain.InsuranceState
	breaker     domain.BreakerState
	controls    domain.Controls
	holders     map[common.Address]domain.Amount
	rights      map[uint64]domain.CapitalRight
	reputation  map[common.Address]domain.ReputationRecord
	positions   map[domain.PositionKey]domain.Position
	exposure    map[string]domain.ExposureEntry
	adapters    map[common.Address]domain.AdapterCategory
	settlements []domain.SettlementRecord
	events      []domain.Event
	applies     int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		holders:    make(map[common.Address]domain.Amount),
		rights:     make(map[uint64]domain.CapitalRight),
		reputation: make(map[common.Address]domain.ReputationRecord),
		positions:  make(map[domain.PositionKey]domain.Position),
		exposure:   make(map[string]domain.ExposureEntry),
		adapters:   make(map[common.Address]domain.AdapterCategory),
	}
}

// Load returns a copy of the stored state.
func (s *Store) Load(_ context.Context) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := domain.Snapshot{
		Vault:       s.vault,
		Insurance:   s.insurance,
		Breaker:     s.breaker,
		Controls:    s.controls,
		Holders:     make(map[common.Address]domain.Amount, len(s.holders)),
		Adapters:    make(map[common.Address]domain.AdapterCategory, len(s.adapters)),
		Settlements: slices.Clone(s.settlements),
	}
	for k, v := range s.holders {
		snap.Holders[k] = v
	}
	for k, v := range s.adapters {
		snap.Adapters[k] = v
	}
	for _, r := range s.rights {
		snap.Rights = append(snap.Rights, r)
	}
	sort.Slice(snap.Rights, func(i, j int) bool { return snap.Rights[i].ID < snap.Rights[j].ID })
	for _, rec := range s.reputation {
		snap.Reputation = append(snap.Reputation, rec)
	}
	for _, p := range s.positions {
		snap.Positions = append(snap.Positions, p)
	}
	for _, e := range s.exposure {
		snap.Exposure = append(snap.Exposure, e)
	}
	return snap, nil
}

// Apply writes the changeset under one lock, so readers see all of it or
// none of it.
func (s *Store) Apply(_ context.Context, cs domain.Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cs.Vault != nil {
		s.vault = *cs.Vault
	}
	if cs.Insurance != nil {
		s.insurance = *cs.Insurance
	}
	if cs.Breaker != nil {
		s.breaker = *cs.Breaker
	}
	if cs.Controls != nil {
		s.controls = *cs.Controls
	}
	for lp, n := range cs.Holders {
		if n == 0 {
			delete(s.holders, lp)
			continue
		}
		s.holders[lp] = n
	}
	for _, r := range cs.Rights {
		s.rights[r.ID] = r
	}
	for _, rec := range cs.Reputation {
		s.reputation[rec.Executor] = rec
	}
	for _, k := range cs.PositionDeletes {
		delete(s.positions, k)
	}
	for _, p := range cs.PositionUpserts {
		s.positions[p.Key()] = p
	}
	for _, e := range cs.Exposure {
		s.exposure[e.Asset] = e
	}
	for a, c := range cs.Adapters {
		s.adapters[a] = c
	}
	s.settlements = append(s.settlements, cs.Settlements...)
	s.events = append(s.events, cs.Events...)
	s.applies++
	return nil
}

// Applies returns how many changesets have been applied.
func (s *Store) Applies() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applies
}

// ListEvents returns events in commit order.
func (s *Store) ListEvents(_ context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Event
	for _, e := range s.events {
		if opts.Since != nil && e.At.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !e.At.Before(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	return page(out, opts), nil
}

// ListSettlements returns settlement records in settlement order.
func (s *Store) ListSettlements(_ context.Context, opts domain.ListOpts) ([]domain.SettlementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.SettlementRecord
	for _, rec := range s.settlements {
		if opts.Since != nil && rec.SettledAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !rec.SettledAt.Before(*opts.Until) {
			continue
		}
		out = append(out, rec)
	}
	return page(out, opts), nil
}

func page[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}
