package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ExecutorTier is the administrative trust level of an executor. Higher tiers
// unlock more capital at lower stake ratios.
type ExecutorTier uint8

const (
	TierUnverified ExecutorTier = iota
	TierNovice
	TierVerified
	TierEstablished
	TierElite
)

var tierNames = [...]string{"unverified", "novice", "verified", "established", "elite"}

func (t ExecutorTier) String() string {
	if int(t) < len(tierNames) {
		return tierNames[t]
	}
	return fmt.Sprintf("tier(%d)", uint8(t))
}

// Valid reports whether t is one of the defined tiers.
func (t ExecutorTier) Valid() bool { return int(t) < len(tierNames) }

// ParseTier maps a tier name (case-insensitive) to its value.
func ParseTier(s string) (ExecutorTier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range tierNames {
		if n == s {
			return ExecutorTier(i), nil
		}
	}
	return 0, fmt.Errorf("domain: unknown tier %q", s)
}

func (t ExecutorTier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *ExecutorTier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// AllTiers lists tiers from lowest to highest.
func AllTiers() []ExecutorTier {
	return []ExecutorTier{TierUnverified, TierNovice, TierVerified, TierEstablished, TierElite}
}

// RiskLevel orders the risk profile of a right's constraints.
type RiskLevel uint8

const (
	RiskLow RiskLevel = iota + 1
	RiskMedium
	RiskHigh
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return fmt.Sprintf("risk(%d)", uint8(r))
	}
}

// ParseRiskLevel maps a risk name (case-insensitive) to its value.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return RiskLow, nil
	case "medium":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	}
	return 0, fmt.Errorf("domain: unknown risk level %q", s)
}

func (r RiskLevel) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *RiskLevel) UnmarshalText(b []byte) error {
	v, err := ParseRiskLevel(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// TierConfig is the limit set attached to a tier.
type TierConfig struct {
	Tier             ExecutorTier `json:"tier"`
	MaxCapital       Amount       `json:"max_capital"`
	StakeRequiredBps uint32       `json:"stake_required_bps"`
	MaxDrawdownBps   uint32       `json:"max_drawdown_bps"`
	AllowedRiskLevel RiskLevel    `json:"allowed_risk_level"`
}

// ReputationRecord is the per-executor history. Records are created lazily at
// TierUnverified and never deleted.
type ReputationRecord struct {
	Executor              common.Address `json:"executor"`
	Tier                  ExecutorTier   `json:"tier"`
	TotalSettlements      uint64         `json:"total_settlements"`
	ProfitableSettlements uint64         `json:"profitable_settlements"`
	ConsecutiveProfits    uint64         `json:"consecutive_profits"`
	TotalVolume           Amount         `json:"total_volume"`
	TotalPnl              Amount         `json:"total_pnl"`
	IsBanned              bool           `json:"is_banned"`
	IsWhitelisted         bool           `json:"is_whitelisted"`
	LastSettledAt         *time.Time     `json:"last_settled_at,omitempty"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// AdapterCategory classifies a venue adapter for risk derivation.
type AdapterCategory string

const (
	AdapterDEX       AdapterCategory = "dex"
	AdapterYield     AdapterCategory = "yield"
	AdapterPerpetual AdapterCategory = "perpetual"
)

// Valid reports whether c is a known category.
func (c AdapterCategory) Valid() bool {
	switch c {
	case AdapterDEX, AdapterYield, AdapterPerpetual:
		return true
	}
	return false
}
