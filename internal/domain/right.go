package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RightStatus tracks the lifecycle of a capital right.
type RightStatus string

const (
	RightStatusPending    RightStatus = "pending"
	RightStatusActive     RightStatus = "active"
	RightStatusSettled    RightStatus = "settled"
	RightStatusExpired    RightStatus = "expired" // derived for display, never stored
	RightStatusLiquidated RightStatus = "liquidated"
)

// Terminal reports whether no further transitions are possible.
func (s RightStatus) Terminal() bool {
	return s == RightStatusSettled || s == RightStatusLiquidated
}

// Constraints bound what an executor may do with a right's capital.
type Constraints struct {
	// MaxLeverage is the gross entry value allowed as a multiple of the
	// capital limit. 1 means unlevered.
	MaxLeverage        uint32           `json:"max_leverage"`
	MaxDrawdownBps     uint32           `json:"max_drawdown_bps"`
	MaxPositionSizeBps uint32           `json:"max_position_size_bps"`
	AllowedAdapters    []common.Address `json:"allowed_adapters"`
	AllowedAssets      []string         `json:"allowed_assets"`
}

// AllowsAdapter reports whether adapter is permitted. An empty list permits none.
func (c Constraints) AllowsAdapter(adapter common.Address) bool {
	for _, a := range c.AllowedAdapters {
		if a == adapter {
			return true
		}
	}
	return false
}

// AllowsAsset reports whether asset is permitted. An empty list permits all.
func (c Constraints) AllowsAsset(asset string) bool {
	if len(c.AllowedAssets) == 0 {
		return true
	}
	for _, a := range c.AllowedAssets {
		if a == asset {
			return true
		}
	}
	return false
}

// Fees are the economic terms of a right.
type Fees struct {
	BaseFeeAprBps  uint32 `json:"base_fee_apr_bps"`
	ProfitShareBps uint32 `json:"profit_share_bps"`
	StakedAmount   Amount `json:"staked_amount"`
}

// CapitalRight is a time-bounded grant of pool capital to one executor.
type CapitalRight struct {
	ID            uint64         `json:"id"`
	Owner         common.Address `json:"owner"`
	Executor      common.Address `json:"executor"`
	CapitalLimit  Amount         `json:"capital_limit"`
	StartTime     time.Time      `json:"start_time"`
	ExpiryTime    time.Time      `json:"expiry_time"`
	Constraints   Constraints    `json:"constraints"`
	Fees          Fees           `json:"fees"`
	RiskLevel     RiskLevel      `json:"risk_level"`
	Status        RightStatus    `json:"status"`
	RealizedPnl   Amount         `json:"realized_pnl"`
	UnrealizedPnl Amount         `json:"unrealized_pnl"`
	TradedVolume  Amount         `json:"traded_volume"`
	SettledAt     *time.Time     `json:"settled_at,omitempty"`
}

// Expired reports whether the right has reached its expiry at now.
func (r CapitalRight) Expired(now time.Time) bool {
	return !now.Before(r.ExpiryTime)
}

// DisplayStatus returns the stored status, or RightStatusExpired for an
// active right past its expiry.
func (r CapitalRight) DisplayStatus(now time.Time) RightStatus {
	if r.Status == RightStatusActive && r.Expired(now) {
		return RightStatusExpired
	}
	return r.Status
}

// Duration returns the full term of the right.
func (r CapitalRight) Duration() time.Duration {
	return r.ExpiryTime.Sub(r.StartTime)
}

// RightRequest is the input to RequestRight.
type RightRequest struct {
	Executor      common.Address `json:"executor"`
	CapitalLimit  Amount         `json:"capital_limit"`
	Duration      time.Duration  `json:"duration"`
	Constraints   Constraints    `json:"constraints"`
	Fees          Fees           `json:"fees"`
	StakeProvided Amount         `json:"stake_provided"`
}

// RightFilter narrows ListRights.
type RightFilter struct {
	Owner     *common.Address
	Status    RightStatus
	ExpiredAt *time.Time // only active rights past expiry at this instant
	Limit     int
	Offset    int
}
