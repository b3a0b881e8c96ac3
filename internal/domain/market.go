package domain

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Basis-point scale used for fees and gamma decay.
const BpsDenominator = 10000

// MarketConfig is the immutable configuration a market is created with. It is
// applied exactly once; re-initialization of an already-initialized market is
// a no-op.
type MarketConfig struct {
	ID                  string
	Question            string
	Owner               common.Address
	Oracle              common.Address
	OutcomeSlotCount    int
	StartFunding        sdkmath.Int   // collateral base units
	OutcomeTokenAmounts []sdkmath.Int // bonded bootstrap inventory per outcome, outcome base units
	FeeBps              uint32
	Alpha               sdkmath.LegacyDec // liquidity sensitivity, b = alpha * Σq
	ExpLimit            sdkmath.LegacyDec // overflow guard for the fixed-point exponential
	Decimals            uint32            // outcome-token precision
	ExpirationEpoch     uint64            // 0 = perpetual
	GammaBps            uint32            // per-period reward decay, basis points
	EpochDuration       time.Duration
	PeriodDuration      time.Duration
}

// PeriodsPerEpoch returns how many periods subdivide one epoch.
func (c MarketConfig) PeriodsPerEpoch() uint64 {
	if c.PeriodDuration <= 0 {
		return 0
	}
	return uint64(c.EpochDuration / c.PeriodDuration)
}

// Validate checks the configuration per the initialization rules. All
// problems cause a hard rejection of market creation.
func (c MarketConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("market config: id must not be empty")
	}
	if c.Owner == (common.Address{}) {
		return fmt.Errorf("market config: owner address must not be zero")
	}
	if c.Oracle == (common.Address{}) {
		return fmt.Errorf("market config: oracle address must not be zero")
	}
	if c.OutcomeSlotCount < 2 || c.OutcomeSlotCount > 10 {
		return fmt.Errorf("market config: outcome slot count must be 2-10, got %d", c.OutcomeSlotCount)
	}
	if len(c.OutcomeTokenAmounts) != c.OutcomeSlotCount {
		return fmt.Errorf("market config: %w: %d outcome token amounts for %d slots",
			ErrLengthMismatch, len(c.OutcomeTokenAmounts), c.OutcomeSlotCount)
	}
	for i, amt := range c.OutcomeTokenAmounts {
		if amt.IsNil() || amt.IsNegative() {
			return fmt.Errorf("market config: outcome token amount %d must be non-negative", i)
		}
	}
	if c.StartFunding.IsNil() || !c.StartFunding.IsPositive() {
		return fmt.Errorf("market config: start funding must be positive")
	}
	if c.FeeBps >= BpsDenominator {
		return fmt.Errorf("market config: fee must be below %d bps, got %d", BpsDenominator, c.FeeBps)
	}
	if c.Alpha.IsNil() || !c.Alpha.IsPositive() {
		return fmt.Errorf("market config: alpha must be positive")
	}
	if c.ExpLimit.IsNil() || !c.ExpLimit.IsPositive() {
		return fmt.Errorf("market config: exp limit must be positive")
	}
	if c.Decimals == 0 || c.Decimals > 18 {
		return fmt.Errorf("market config: decimals must be 1-18, got %d", c.Decimals)
	}
	if c.GammaBps == 0 || c.GammaBps > BpsDenominator {
		return fmt.Errorf("market config: gamma must be 1-%d bps, got %d", BpsDenominator, c.GammaBps)
	}
	if c.EpochDuration <= 0 || c.PeriodDuration <= 0 {
		return fmt.Errorf("market config: epoch and period durations must be positive")
	}
	if c.EpochDuration%c.PeriodDuration != 0 {
		return fmt.Errorf("market config: period duration %s must evenly divide epoch duration %s",
			c.PeriodDuration, c.EpochDuration)
	}
	return nil
}

// MarketRecord is the persisted snapshot of a market's mutable state. Schema
// evolution is a conscious migration keyed on Version.
type MarketRecord struct {
	ID                 string
	Question           string
	OutcomeSlotCount   int
	FeeBps             uint32
	ExpirationEpoch    uint64
	CurrentEpoch       uint64
	CurrentPeriod      uint64
	PeriodStart        time.Time
	FeeAccrued         sdkmath.Int // collateral base units
	CollateralDecimals uint32
	Expired            bool
	Version            uint32
	UpdatedAt          time.Time
}
