package domain

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// Epoch is one resolution cycle of a market. It is created when the previous
// epoch closes (or at initialization for epoch 1), mutated by trades while
// active, and frozen permanently once PayoutDenominator is set.
type Epoch struct {
	Number             uint64
	Start              time.Time
	Funding            sdkmath.Int // collateral reserved for this epoch
	FundingForRollover sdkmath.Int // computed at close
	TotalPayout        sdkmath.Int // computed at close
	PayoutNumerators   []sdkmath.Int
	PayoutDenominator  sdkmath.Int // zero means unresolved
	BasePrices         []sdkmath.LegacyDec
	ClosedAt           *time.Time
}

// Resolved reports whether the epoch has been closed by the oracle.
func (e *Epoch) Resolved() bool {
	return !e.PayoutDenominator.IsNil() && !e.PayoutDenominator.IsZero()
}
