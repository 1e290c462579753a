package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/fixedpoint"
)

// Config holds the risk and fee policy of the ledger.
type Config struct {
	Tiers map[domain.ExecutorTier]domain.TierConfig

	MaxUtilizationBps uint32
	MinBaseFeeAprBps  uint32
	MinProfitShareBps uint32
	InsuranceFeeBps   uint32
	MaxRightDuration  time.Duration

	DefaultAssetCapBps uint32
	AssetCaps          map[string]domain.Amount
	NearLimitBps       uint32

	// BreakerThreshold seeds the breaker of a fresh ledger. Afterwards the
	// persisted threshold is managed through SetBreakerThreshold.
	BreakerThreshold       domain.Amount
	BreakerWindow          time.Duration
	BlockSettlementsOnTrip bool
	InsuranceTarget        domain.Amount
	MaxPriceAge            time.Duration
	Admins                 []common.Address
}

// DefaultTiers returns the stock tier table.
func DefaultTiers() map[domain.ExecutorTier]domain.TierConfig {
	return map[domain.ExecutorTier]domain.TierConfig{
		domain.TierUnverified:  {Tier: domain.TierUnverified, MaxCapital: domain.Units(1_000), StakeRequiredBps: 5000, MaxDrawdownBps: 1000, AllowedRiskLevel: domain.RiskLow},
		domain.TierNovice:      {Tier: domain.TierNovice, MaxCapital: domain.Units(10_000), StakeRequiredBps: 3000, MaxDrawdownBps: 1500, AllowedRiskLevel: domain.RiskLow},
		domain.TierVerified:    {Tier: domain.TierVerified, MaxCapital: domain.Units(50_000), StakeRequiredBps: 2000, MaxDrawdownBps: 2000, AllowedRiskLevel: domain.RiskMedium},
		domain.TierEstablished: {Tier: domain.TierEstablished, MaxCapital: domain.Units(250_000), StakeRequiredBps: 1500, MaxDrawdownBps: 2500, AllowedRiskLevel: domain.RiskMedium},
		domain.TierElite:       {Tier: domain.TierElite, MaxCapital: domain.Units(1_000_000), StakeRequiredBps: 1000, MaxDrawdownBps: 3000, AllowedRiskLevel: domain.RiskHigh},
	}
}

// DefaultConfig returns a Config with the stock policy.
func DefaultConfig() Config {
	return Config{
		Tiers:                  DefaultTiers(),
		MaxUtilizationBps:      8000,
		MinBaseFeeAprBps:       0,
		MinProfitShareBps:      0,
		InsuranceFeeBps:        200,
		MaxRightDuration:       90 * 24 * time.Hour,
		DefaultAssetCapBps:     2500,
		AssetCaps:              map[string]domain.Amount{},
		NearLimitBps:           8000,
		BreakerThreshold:       domain.Units(50_000),
		BreakerWindow:          24 * time.Hour,
		BlockSettlementsOnTrip: true,
		InsuranceTarget:        domain.Units(100_000),
		MaxPriceAge:            60 * time.Second,
	}
}

// Validate checks the policy for impossible values.
func (c Config) Validate() error {
	var errs []string
	for _, t := range domain.AllTiers() {
		tc, ok := c.Tiers[t]
		if !ok {
			errs = append(errs, fmt.Sprintf("tier %s: missing", t))
			continue
		}
		if tc.MaxCapital < 0 {
			errs = append(errs, fmt.Sprintf("tier %s: max_capital must be >= 0", t))
		}
		if tc.StakeRequiredBps > fixedpoint.BPS || tc.MaxDrawdownBps > fixedpoint.BPS {
			errs = append(errs, fmt.Sprintf("tier %s: bps values must be <= %d", t, fixedpoint.BPS))
		}
		if tc.AllowedRiskLevel < domain.RiskLow || tc.AllowedRiskLevel > domain.RiskHigh {
			errs = append(errs, fmt.Sprintf("tier %s: allowed_risk_level out of range", t))
		}
	}
	if c.MaxUtilizationBps == 0 || c.MaxUtilizationBps > fixedpoint.BPS {
		errs = append(errs, "max_utilization_bps must be in (0, 10000]")
	}
	if c.InsuranceFeeBps > fixedpoint.BPS {
		errs = append(errs, "insurance_fee_bps must be <= 10000")
	}
	if c.MinBaseFeeAprBps > fixedpoint.BPS || c.MinProfitShareBps > fixedpoint.BPS {
		errs = append(errs, "minimum fee bps must be <= 10000")
	}
	if c.MaxRightDuration <= 0 {
		errs = append(errs, "max_right_duration must be > 0")
	}
	if c.DefaultAssetCapBps == 0 || c.DefaultAssetCapBps > fixedpoint.BPS {
		errs = append(errs, "default_asset_cap_bps must be in (0, 10000]")
	}
	if c.NearLimitBps > fixedpoint.BPS {
		errs = append(errs, "near_limit_bps must be <= 10000")
	}
	if c.BreakerThreshold < 0 {
		errs = append(errs, "breaker threshold must be >= 0")
	}
	if c.BreakerWindow <= 0 {
		errs = append(errs, "breaker window must be > 0")
	}
	if c.MaxPriceAge <= 0 {
		errs = append(errs, "max_price_age must be > 0")
	}
	if len(errs) > 0 {
		return fmt.Errorf("ledger: invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
