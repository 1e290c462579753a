package ledger

import (
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

// Tx is a copy-on-write overlay over the committed state. Components read
// through it and write into it; nothing reaches the committed state until
// the changeset has been persisted and commit is called.
type Tx struct {
	base *state
	now  time.Time

	vault     *domain.VaultState
	insurance *domain.InsuranceState
	breaker   *domain.BreakerState
	controls  *domain.Controls

	holders     map[common.Address]domain.Amount
	rights      map[uint64]domain.CapitalRight
	reputation  map[common.Address]domain.ReputationRecord
	positions   map[domain.PositionKey]*domain.Position // nil marks a delete
	exposure    map[string]domain.ExposureEntry
	adapters    map[common.Address]domain.AdapterCategory
	settlements []domain.SettlementRecord
	events      []domain.Event
}

func newTx(base *state, now time.Time) *Tx {
	return &Tx{base: base, now: now}
}

// Now is the timestamp all checks in this transaction use.
func (tx *Tx) Now() time.Time { return tx.now }

func (tx *Tx) Vault() domain.VaultState {
	if tx.vault != nil {
		return *tx.vault
	}
	return tx.base.vault
}

func (tx *Tx) SetVault(v domain.VaultState) { tx.vault = &v }

func (tx *Tx) Insurance() domain.InsuranceState {
	if tx.insurance != nil {
		return *tx.insurance
	}
	return tx.base.insurance
}

func (tx *Tx) SetInsurance(s domain.InsuranceState) { tx.insurance = &s }

func (tx *Tx) Breaker() domain.BreakerState {
	if tx.breaker != nil {
		return *tx.breaker
	}
	return tx.base.breaker
}

func (tx *Tx) SetBreaker(s domain.BreakerState) { tx.breaker = &s }

func (tx *Tx) Controls() domain.Controls {
	if tx.controls != nil {
		return *tx.controls
	}
	return tx.base.controls
}

func (tx *Tx) SetControls(c domain.Controls) { tx.controls = &c }

func (tx *Tx) Shares(lp common.Address) domain.Amount {
	if n, ok := tx.holders[lp]; ok {
		return n
	}
	return tx.base.holders[lp]
}

func (tx *Tx) SetShares(lp common.Address, n domain.Amount) {
	if tx.holders == nil {
		tx.holders = make(map[common.Address]domain.Amount)
	}
	tx.holders[lp] = n
}

func (tx *Tx) Right(id uint64) (domain.CapitalRight, bool) {
	if r, ok := tx.rights[id]; ok {
		return r, true
	}
	r, ok := tx.base.rights[id]
	return r, ok
}

func (tx *Tx) PutRight(r domain.CapitalRight) {
	if tx.rights == nil {
		tx.rights = make(map[uint64]domain.CapitalRight)
	}
	tx.rights[r.ID] = r
}

// Rights returns every right visible in the transaction ordered by id.
func (tx *Tx) Rights() []domain.CapitalRight {
	out := make([]domain.CapitalRight, 0, len(tx.base.rights)+len(tx.rights))
	for id, r := range tx.base.rights {
		if _, shadowed := tx.rights[id]; shadowed {
			continue
		}
		out = append(out, r)
	}
	for _, r := range tx.rights {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reputation returns the record for executor, or a fresh unverified record
// when none exists yet.
func (tx *Tx) Reputation(executor common.Address) (domain.ReputationRecord, bool) {
	if rec, ok := tx.reputation[executor]; ok {
		return rec, true
	}
	if rec, ok := tx.base.reputation[executor]; ok {
		return rec, true
	}
	return domain.ReputationRecord{Executor: executor, Tier: domain.TierUnverified}, false
}

func (tx *Tx) PutReputation(rec domain.ReputationRecord) {
	if tx.reputation == nil {
		tx.reputation = make(map[common.Address]domain.ReputationRecord)
	}
	rec.UpdatedAt = tx.now
	tx.reputation[rec.Executor] = rec
}

func (tx *Tx) Position(k domain.PositionKey) (domain.Position, bool) {
	if p, ok := tx.positions[k]; ok {
		if p == nil {
			return domain.Position{}, false
		}
		return *p, true
	}
	p, ok := tx.base.positions[k]
	return p, ok
}

func (tx *Tx) PutPosition(p domain.Position) {
	if tx.positions == nil {
		tx.positions = make(map[domain.PositionKey]*domain.Position)
	}
	tx.positions[p.Key()] = &p
}

func (tx *Tx) DeletePosition(k domain.PositionKey) {
	if tx.positions == nil {
		tx.positions = make(map[domain.PositionKey]*domain.Position)
	}
	tx.positions[k] = nil
}

// PositionsOf returns the open positions of a right in a stable order.
func (tx *Tx) PositionsOf(rightID uint64) []domain.Position {
	var out []domain.Position
	for k := range tx.base.byRight[rightID] {
		if _, touched := tx.positions[k]; touched {
			continue
		}
		out = append(out, tx.base.positions[k])
	}
	for k, p := range tx.positions {
		if p != nil && k.RightID == rightID {
			out = append(out, *p)
		}
	}
	sortPositions(out)
	return out
}

func sortPositions(ps []domain.Position) {
	sort.Slice(ps, func(i, j int) bool {
		if c := strings.Compare(ps[i].Adapter.Hex(), ps[j].Adapter.Hex()); c != 0 {
			return c < 0
		}
		return ps[i].Asset < ps[j].Asset
	})
}

func (tx *Tx) Exposure(asset string) domain.ExposureEntry {
	if e, ok := tx.exposure[asset]; ok {
		return e
	}
	if e, ok := tx.base.exposure[asset]; ok {
		return e
	}
	return domain.ExposureEntry{Asset: asset}
}

func (tx *Tx) PutExposure(e domain.ExposureEntry) {
	if tx.exposure == nil {
		tx.exposure = make(map[string]domain.ExposureEntry)
	}
	e.UpdatedAt = tx.now
	tx.exposure[e.Asset] = e
}

// ExposureAssets lists every asset with an exposure entry.
func (tx *Tx) ExposureAssets() []string {
	seen := make(map[string]struct{}, len(tx.base.exposure)+len(tx.exposure))
	for a := range tx.base.exposure {
		seen[a] = struct{}{}
	}
	for a := range tx.exposure {
		seen[a] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func (tx *Tx) AdapterCategory(adapter common.Address) (domain.AdapterCategory, bool) {
	if c, ok := tx.adapters[adapter]; ok {
		return c, true
	}
	c, ok := tx.base.adapters[adapter]
	return c, ok
}

func (tx *Tx) SetAdapterCategory(adapter common.Address, c domain.AdapterCategory) {
	if tx.adapters == nil {
		tx.adapters = make(map[common.Address]domain.AdapterCategory)
	}
	tx.adapters[adapter] = c
}

func (tx *Tx) Settlement(rightID uint64) (domain.SettlementRecord, bool) {
	for _, rec := range tx.settlements {
		if rec.RightID == rightID {
			return rec, true
		}
	}
	rec, ok := tx.base.settlements[rightID]
	return rec, ok
}

func (tx *Tx) AddSettlement(rec domain.SettlementRecord) {
	tx.settlements = append(tx.settlements, rec)
}

// Emit records an event to be persisted with this transaction.
func (tx *Tx) Emit(typ domain.EventType, rightID uint64, actor common.Address, amount domain.Amount, detail map[string]any) {
	tx.events = append(tx.events, domain.Event{
		ID:      uuid.NewString(),
		Type:    typ,
		RightID: rightID,
		Actor:   actor,
		Amount:  amount,
		Detail:  detail,
		At:      tx.now,
	})
}

// changeset collects the overlay in a deterministic order.
func (tx *Tx) changeset() domain.Changeset {
	cs := domain.Changeset{
		Vault:       tx.vault,
		Insurance:   tx.insurance,
		Breaker:     tx.breaker,
		Controls:    tx.controls,
		Holders:     tx.holders,
		Adapters:    tx.adapters,
		Settlements: tx.settlements,
		Events:      tx.events,
	}
	for _, r := range tx.rights {
		cs.Rights = append(cs.Rights, r)
	}
	sort.Slice(cs.Rights, func(i, j int) bool { return cs.Rights[i].ID < cs.Rights[j].ID })

	for _, rec := range tx.reputation {
		cs.Reputation = append(cs.Reputation, rec)
	}
	sort.Slice(cs.Reputation, func(i, j int) bool {
		return cs.Reputation[i].Executor.Hex() < cs.Reputation[j].Executor.Hex()
	})

	for k, p := range tx.positions {
		if p == nil {
			if _, existed := tx.base.positions[k]; existed {
				cs.PositionDeletes = append(cs.PositionDeletes, k)
			}
			continue
		}
		cs.PositionUpserts = append(cs.PositionUpserts, *p)
	}
	sortPositions(cs.PositionUpserts)
	sort.Slice(cs.PositionDeletes, func(i, j int) bool {
		a, b := cs.PositionDeletes[i], cs.PositionDeletes[j]
		if a.RightID != b.RightID {
			return a.RightID < b.RightID
		}
		if a.Adapter != b.Adapter {
			return a.Adapter.Hex() < b.Adapter.Hex()
		}
		return a.Asset < b.Asset
	})

	for _, e := range tx.exposure {
		cs.Exposure = append(cs.Exposure, e)
	}
	sort.Slice(cs.Exposure, func(i, j int) bool { return cs.Exposure[i].Asset < cs.Exposure[j].Asset })
	return cs
}

// commit merges the overlay into the committed state.
func (tx *Tx) commit() {
	s := tx.base
	if tx.vault != nil {
		s.vault = *tx.vault
	}
	if tx.insurance != nil {
		s.insurance = *tx.insurance
	}
	if tx.breaker != nil {
		s.breaker = *tx.breaker
	}
	if tx.controls != nil {
		s.controls = *tx.controls
	}
	for lp, n := range tx.holders {
		if n == 0 {
			delete(s.holders, lp)
			continue
		}
		s.holders[lp] = n
	}
	for id, r := range tx.rights {
		s.rights[id] = r
	}
	for a, rec := range tx.reputation {
		s.reputation[a] = rec
	}
	for k, p := range tx.positions {
		if p == nil {
			s.deletePosition(k)
			continue
		}
		s.putPosition(*p)
	}
	for a, e := range tx.exposure {
		s.exposure[a] = e
	}
	for a, c := range tx.adapters {
		s.adapters[a] = c
	}
	for _, rec := range tx.settlements {
		s.settlements[rec.RightID] = rec
	}
}
