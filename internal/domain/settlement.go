package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SettlementKind names the path that closed a right.
type SettlementKind string

const (
	SettlementNormal SettlementKind = "settle"
	SettlementEarly  SettlementKind = "early"
	SettlementForced SettlementKind = "force"
)

// FeeBreakdown is the split of a right's result between the parties.
// For profit: InsuranceFee + LpProfitShare + ExecutorProfit == pnl.
// For loss: StakeSlashed == min(|pnl|, stake) and the profit fields are zero.
type FeeBreakdown struct {
	LpBaseFee      Amount `json:"lp_base_fee"`
	LpProfitShare  Amount `json:"lp_profit_share"`
	InsuranceFee   Amount `json:"insurance_fee"`
	ExecutorProfit Amount `json:"executor_profit"`
	StakeSlashed   Amount `json:"stake_slashed"`
}

// SettlementRecord is the persisted outcome of a settlement.
type SettlementRecord struct {
	RightID          uint64         `json:"right_id"`
	Owner            common.Address `json:"owner"`
	Caller           common.Address `json:"caller"`
	Kind             SettlementKind `json:"kind"`
	Pnl              Amount         `json:"pnl"`
	Fees             FeeBreakdown   `json:"fees"`
	BaseFeeCollected Amount         `json:"base_fee_collected"`
	ExecutorPayout   Amount         `json:"executor_payout"`
	PoolDelta        Amount         `json:"pool_delta"`
	Status           RightStatus    `json:"status"`
	ElapsedSeconds   int64          `json:"elapsed_seconds"`
	SettledAt        time.Time      `json:"settled_at"`
}

// SettlementEstimate previews a settlement without committing it.
type SettlementEstimate struct {
	Record    SettlementRecord `json:"record"`
	CanSettle bool             `json:"can_settle"`
	Reason    string           `json:"reason,omitempty"`
}
