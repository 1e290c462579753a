package domain

import "time"

// VaultState is the LP pool accounting. AllocatedCapital never exceeds
// TotalAssets and always equals the sum of capital limits over active rights.
type VaultState struct {
	TotalAssets      Amount `json:"total_assets"`
	TotalShares      Amount `json:"total_shares"`
	AllocatedCapital Amount `json:"allocated_capital"`
	EscrowedStake    Amount `json:"escrowed_stake"`
}

// Available returns the capital not allocated to rights.
func (v VaultState) Available() Amount {
	return v.TotalAssets - v.AllocatedCapital
}

// InsuranceState is the insurance fund balance and its counters.
type InsuranceState struct {
	Balance        Amount `json:"balance"`
	Target         Amount `json:"target"`
	TotalCollected Amount `json:"total_collected"`
	TotalPaidOut   Amount `json:"total_paid_out"`
}

// IsFunded reports whether the balance meets the configured target.
func (s InsuranceState) IsFunded() bool {
	return s.Balance >= s.Target
}

// BreakerState is the rolling loss window of the circuit breaker. A zero
// Threshold disables tripping.
type BreakerState struct {
	WindowStart time.Time  `json:"window_start"`
	WindowLoss  Amount     `json:"window_loss"`
	Threshold   Amount     `json:"threshold"`
	Tripped     bool       `json:"tripped"`
	TrippedAt   *time.Time `json:"tripped_at,omitempty"`
}

// Controls holds global switches and counters.
type Controls struct {
	Paused      bool   `json:"paused"`
	NextRightID uint64 `json:"next_right_id"`
}
