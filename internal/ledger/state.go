package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

// state is the committed in-memory ledger. It is only mutated by Tx.commit
// while the ledger's write lock is held.
type state struct {
	vault     domain.VaultState
	insurance domain.InsuranceState
	breaker   domain.BreakerState
	controls  domain.Controls

	holders     map[common.Address]domain.Amount
	rights      map[uint64]domain.CapitalRight
	reputation  map[common.Address]domain.ReputationRecord
	positions   map[domain.PositionKey]domain.Position
	byRight     map[uint64]map[domain.PositionKey]struct{}
	exposure    map[string]domain.ExposureEntry
	adapters    map[common.Address]domain.AdapterCategory
	settlements map[uint64]domain.SettlementRecord
}

func newState(snap domain.Snapshot) *state {
	s := &state{
		vault:       snap.Vault,
		insurance:   snap.Insurance,
		breaker:     snap.Breaker,
		controls:    snap.Controls,
		holders:     make(map[common.Address]domain.Amount, len(snap.Holders)),
		rights:      make(map[uint64]domain.CapitalRight, len(snap.Rights)),
		reputation:  make(map[common.Address]domain.ReputationRecord, len(snap.Reputation)),
		positions:   make(map[domain.PositionKey]domain.Position, len(snap.Positions)),
		byRight:     make(map[uint64]map[domain.PositionKey]struct{}),
		exposure:    make(map[string]domain.ExposureEntry, len(snap.Exposure)),
		adapters:    make(map[common.Address]domain.AdapterCategory, len(snap.Adapters)),
		settlements: make(map[uint64]domain.SettlementRecord, len(snap.Settlements)),
	}
	for lp, n := range snap.Holders {
		s.holders[lp] = n
	}
	for _, r := range snap.Rights {
		s.rights[r.ID] = r
	}
	for _, rec := range snap.Reputation {
		s.reputation[rec.Executor] = rec
	}
	for _, p := range snap.Positions {
		s.putPosition(p)
	}
	for _, e := range snap.Exposure {
		s.exposure[e.Asset] = e
	}
	for a, c := range snap.Adapters {
		s.adapters[a] = c
	}
	for _, rec := range snap.Settlements {
		s.settlements[rec.RightID] = rec
	}
	return s
}

func (s *state) putPosition(p domain.Position) {
	k := p.Key()
	s.positions[k] = p
	idx, ok := s.byRight[k.RightID]
	if !ok {
		idx = make(map[domain.PositionKey]struct{})
		s.byRight[k.RightID] = idx
	}
	idx[k] = struct{}{}
}

func (s *state) deletePosition(k domain.PositionKey) {
	delete(s.positions, k)
	if idx, ok := s.byRight[k.RightID]; ok {
		delete(idx, k)
		if len(idx) == 0 {
			delete(s.byRight, k.RightID)
		}
	}
}
