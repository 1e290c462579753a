package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PositionKey identifies an open position: one per (right, adapter, asset).
type PositionKey struct {
	RightID uint64         `json:"right_id"`
	Adapter common.Address `json:"adapter"`
	Asset   string         `json:"asset"`
}

// Position is an open exposure reported by a venue adapter. Size is in asset
// units scaled so that size*price/10^decimals yields an Amount.
type Position struct {
	RightID    uint64         `json:"right_id"`
	Adapter    common.Address `json:"adapter"`
	Asset      string         `json:"asset"`
	Size       int64          `json:"size"`
	EntryValue Amount         `json:"entry_value"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Key returns the position's identity.
func (p Position) Key() PositionKey {
	return PositionKey{RightID: p.RightID, Adapter: p.Adapter, Asset: p.Asset}
}

// ExposureEntry is the aggregated open entry value across all rights for one
// asset, with its cap and derived flags.
type ExposureEntry struct {
	Asset          string    `json:"asset"`
	Exposure       Amount    `json:"exposure"`
	Cap            Amount    `json:"cap"`
	UtilizationBps uint32    `json:"utilization_bps"`
	IsNearLimit    bool      `json:"is_near_limit"`
	IsAtLimit      bool      `json:"is_at_limit"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Quote is a mark price from the oracle. Price is quote units per asset unit
// scaled by 10^Decimals.
type Quote struct {
	Asset     string    `json:"asset"`
	Price     int64     `json:"price"`
	Decimals  uint8     `json:"decimals"`
	Timestamp time.Time `json:"timestamp"`
}
