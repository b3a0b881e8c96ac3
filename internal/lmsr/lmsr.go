// Package lmsr implements the Logarithmic Market Scoring Rule cost function
// and marginal prices for multi-outcome markets.
//
// The liquidity parameter scales with open interest (b = alpha * Σq), and the
// cost function is evaluated with offset-shifted exponent summation:
//
//	C(q) = b * (offset + ln(Σ exp(q_i/b - offset))), offset = max_i(q_i)/b
//
// so individual exponents stay inside the fixed-point kernel's guard even for
// large supplies. All functions are pure; quantities are 18-decimal fixed
// point and unit conversions happen in the caller.
package lmsr

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/alanyoungcy/perpamm/internal/domain"
	"github.com/alanyoungcy/perpamm/internal/fixedmath"
)

// B returns the liquidity parameter b = alpha * Σq. When Σq == 0 there is no
// open interest to scale by; b is defined as 1 in that case. This is a policy
// choice for the bootstrap state, not a derived identity.
func B(q []sdkmath.LegacyDec, alpha sdkmath.LegacyDec) sdkmath.LegacyDec {
	sum := sdkmath.LegacyZeroDec()
	for _, qi := range q {
		sum = sum.Add(qi)
	}
	if sum.IsZero() {
		return sdkmath.LegacyOneDec()
	}
	return alpha.Mul(sum)
}

// Offset returns max_i(q_i)/b, the shift applied to every exponent before
// summation.
func Offset(q []sdkmath.LegacyDec, b sdkmath.LegacyDec) sdkmath.LegacyDec {
	max := q[0]
	for _, qi := range q[1:] {
		if qi.GT(max) {
			max = qi
		}
	}
	return max.Quo(b)
}

// SumExp returns Σ exp(q_i/b - offset). Every term is validated against the
// exp limit before exponentiation.
func SumExp(q []sdkmath.LegacyDec, b, offset, limit sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	sum := sdkmath.LegacyZeroDec()
	for i, qi := range q {
		term, err := fixedmath.Exp(qi.Quo(b).Sub(offset), limit)
		if err != nil {
			return sdkmath.LegacyDec{}, fmt.Errorf("lmsr: outcome %d: %w", i, err)
		}
		sum = sum.Add(term)
	}
	return sum, nil
}

// Cost evaluates the cost function C(q) for the given supplies.
func Cost(q []sdkmath.LegacyDec, alpha, limit sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	b := B(q, alpha)
	offset := Offset(q, b)
	sum, err := SumExp(q, b, offset, limit)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	lnSum, err := fixedmath.Ln(sum)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	return b.Mul(offset.Add(lnSum)), nil
}

// MarginalPrice returns the instantaneous price of outcome i:
//
//	p_i = exp(q_i/b - offset) / Σ_j exp(q_j/b - offset)
//
// Prices sum to one across outcomes up to fixed-point rounding.
func MarginalPrice(q []sdkmath.LegacyDec, i int, alpha, limit sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	if i < 0 || i >= len(q) {
		return sdkmath.LegacyDec{}, fmt.Errorf("lmsr: %w: %d of %d", domain.ErrInvalidOutcomeIndex, i, len(q))
	}
	b := B(q, alpha)
	offset := Offset(q, b)
	sum, err := SumExp(q, b, offset, limit)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	num, err := fixedmath.Exp(q[i].Quo(b).Sub(offset), limit)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	return num.Quo(sum), nil
}

// NetCost returns the signed cost of moving supplies from q to q+deltaQ:
// ΔC = C(q+deltaQ) - C(q). Positive means the buyer pays; negative means the
// seller receives. Each cost evaluation uses the liquidity parameter of its
// own state, so a trade and its exact reverse net to zero.
func NetCost(q, deltaQ []sdkmath.LegacyDec, alpha, limit sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	if len(deltaQ) != len(q) {
		return sdkmath.LegacyDec{}, fmt.Errorf("lmsr: %w: got %d deltas for %d outcomes",
			domain.ErrLengthMismatch, len(deltaQ), len(q))
	}

	after := make([]sdkmath.LegacyDec, len(q))
	for i := range q {
		after[i] = q[i].Add(deltaQ[i])
	}

	costBefore, err := Cost(q, alpha, limit)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	costAfter, err := Cost(after, alpha, limit)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	return costAfter.Sub(costBefore), nil
}
