package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType names a committed ledger change.
type EventType string

const (
	EventDeposit           EventType = "pool.deposit"
	EventWithdraw          EventType = "pool.withdraw"
	EventRightRequested    EventType = "right.requested"
	EventRightTransferred  EventType = "right.transferred"
	EventRightSettled      EventType = "right.settled"
	EventRightLiquidated   EventType = "right.liquidated"
	EventPositionOpened    EventType = "position.opened"
	EventPositionClosed    EventType = "position.closed"
	EventExposureNearLimit EventType = "exposure.near_limit"
	EventBreakerTripped    EventType = "breaker.tripped"
	EventBreakerReset      EventType = "breaker.reset"
	EventInsuranceDeposit  EventType = "insurance.deposit"
	EventInsurancePayout   EventType = "insurance.payout"
	EventTierChanged       EventType = "executor.tier_changed"
	EventExecutorBanned    EventType = "executor.banned"
	EventExecutorUnbanned  EventType = "executor.unbanned"
	EventWhitelistChanged  EventType = "executor.whitelist_changed"
	EventAdapterTypeSet    EventType = "admin.adapter_type_set"
	EventPaused            EventType = "admin.paused"
	EventUnpaused          EventType = "admin.unpaused"
	EventBreakerConfigured EventType = "admin.breaker_configured"
)

// Event is an append-only record of a committed change. Events are persisted
// in the same transaction as the state they describe.
type Event struct {
	ID      string         `json:"id"`
	Type    EventType      `json:"type"`
	RightID uint64         `json:"right_id,omitempty"`
	Actor   common.Address `json:"actor"`
	Amount  Amount         `json:"amount"`
	Detail  map[string]any `json:"detail,omitempty"`
	At      time.Time      `json:"at"`
}
