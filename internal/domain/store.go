package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// Snapshot is the full ledger state as loaded at startup.
type Snapshot struct {
	Vault       VaultState
	Insurance   InsuranceState
	Breaker     BreakerState
	Controls    Controls
	Holders     map[common.Address]Amount
	Rights      []CapitalRight
	Reputation  []ReputationRecord
	Positions   []Position
	Exposure    []ExposureEntry
	Adapters    map[common.Address]AdapterCategory
	Settlements []SettlementRecord
}

// Changeset is everything one ledger commit wrote. Singleton sections are nil
// when untouched. Holder balances are absolute; a zero balance removes the
// holder.
type Changeset struct {
	Vault           *VaultState
	Insurance       *InsuranceState
	Breaker         *BreakerState
	Controls        *Controls
	Holders         map[common.Address]Amount
	Rights          []CapitalRight
	Reputation      []ReputationRecord
	PositionUpserts []Position
	PositionDeletes []PositionKey
	Exposure        []ExposureEntry
	Adapters        map[common.Address]AdapterCategory
	Settlements     []SettlementRecord
	Events          []Event
}

// Empty reports whether the changeset carries no writes.
func (c *Changeset) Empty() bool {
	return c.Vault == nil && c.Insurance == nil && c.Breaker == nil && c.Controls == nil &&
		len(c.Holders) == 0 && len(c.Rights) == 0 && len(c.Reputation) == 0 &&
		len(c.PositionUpserts) == 0 && len(c.PositionDeletes) == 0 &&
		len(c.Exposure) == 0 && len(c.Adapters) == 0 &&
		len(c.Settlements) == 0 && len(c.Events) == 0
}

// LedgerStore persists ledger commits. Apply must be atomic: either the whole
// changeset is durable or none of it is.
type LedgerStore interface {
	Load(ctx context.Context) (Snapshot, error)
	Apply(ctx context.Context, cs Changeset) error
}

// EventStore lists the append-only ledger event log.
type EventStore interface {
	ListEvents(ctx context.Context, opts ListOpts) ([]Event, error)
}

// SettlementStore lists settlement records by settlement time.
type SettlementStore interface {
	ListSettlements(ctx context.Context, opts ListOpts) ([]SettlementRecord, error)
}
