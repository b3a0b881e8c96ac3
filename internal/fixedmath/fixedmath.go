// Package fixedmath provides the signed fixed-point exponential and logarithm
// primitives the pricing engine is built on. Values are cosmossdk.io/math
// LegacyDec, i.e. 18-decimal fixed point (unit = 1e18). Exp is guarded by a
// configurable limit; no other package in this repository exponentiates.
package fixedmath

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/alanyoungcy/perpamm/internal/domain"
)

// maxSeriesTerms bounds the series loops. Both series reach LegacyDec
// precision well before this for arguments in their reduced ranges.
const maxSeriesTerms = 128

// e truncated to LegacyDec precision.
var eConst = sdkmath.LegacyMustNewDecFromStr("2.718281828459045235")

// e^-42 < 1e-18, below the smallest representable LegacyDec. Arguments under
// this cutoff evaluate to zero without running the reduction loop, which
// would overflow the mantissa long before reaching such magnitudes.
var expUnderflowCutoff = sdkmath.LegacyNewDec(-42)

// Exp returns e^x. It returns domain.ErrExpOverflow when x exceeds limit,
// preventing silent wraparound on large exponents. Arguments whose result
// underflows 18-decimal precision return exactly zero.
func Exp(x, limit sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	if x.GT(limit) {
		return sdkmath.LegacyDec{}, fmt.Errorf("fixedmath: %w: x=%s limit=%s", domain.ErrExpOverflow, x, limit)
	}
	if x.LT(expUnderflowCutoff) {
		return sdkmath.LegacyZeroDec(), nil
	}

	neg := x.IsNegative()
	if neg {
		x = x.Neg()
	}

	// Argument reduction: x = n + f with n integer and f in [0, 1).
	// e^x = e^n * e^f; the integer part by repeated multiplication, the
	// fractional part by Taylor series.
	n := x.TruncateInt64()
	f := x.Sub(sdkmath.LegacyNewDec(n))

	intPart := sdkmath.LegacyOneDec()
	for i := int64(0); i < n; i++ {
		intPart = intPart.Mul(eConst)
	}

	term := sdkmath.LegacyOneDec()
	sum := sdkmath.LegacyOneDec()
	for k := int64(1); k < maxSeriesTerms; k++ {
		term = term.Mul(f).QuoInt64(k)
		if term.IsZero() {
			break
		}
		sum = sum.Add(term)
	}

	res := intPart.Mul(sum)
	if neg {
		res = sdkmath.LegacyOneDec().Quo(res)
	}
	return res, nil
}

// Ln returns the natural logarithm of x. It returns domain.ErrNonPositiveLn
// for x <= 0.
func Ln(x sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	if x.IsNil() || !x.IsPositive() {
		return sdkmath.LegacyDec{}, fmt.Errorf("fixedmath: %w: x=%s", domain.ErrNonPositiveLn, x)
	}

	one := sdkmath.LegacyOneDec()
	if x.LT(one) {
		inv, err := Ln(one.Quo(x))
		if err != nil {
			return sdkmath.LegacyDec{}, err
		}
		return inv.Neg(), nil
	}

	// Argument reduction: divide by e until x is in [1, e), counting the
	// divisions. ln(x) = k + ln(reduced).
	k := int64(0)
	for x.GTE(eConst) {
		x = x.Quo(eConst)
		k++
	}

	// artanh series: ln(x) = 2 * Σ z^(2n+1)/(2n+1), z = (x-1)/(x+1).
	// For x in [1, e), z <= 0.47 and the series converges quickly.
	z := x.Sub(one).Quo(x.Add(one))
	zSq := z.Mul(z)
	term := z
	sum := sdkmath.LegacyZeroDec()
	for n := int64(1); n < maxSeriesTerms; n += 2 {
		sum = sum.Add(term.QuoInt64(n))
		term = term.Mul(zSq)
		if term.IsZero() {
			break
		}
	}

	return sdkmath.LegacyNewDec(k).Add(sum.MulInt64(2)), nil
}
