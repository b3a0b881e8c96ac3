package lmsr

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpamm/internal/domain"
)

var (
	alpha = sdkmath.LegacyMustNewDecFromStr("0.03")
	limit = sdkmath.LegacyMustNewDecFromStr("130")
)

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

func decs(ss ...string) []sdkmath.LegacyDec {
	out := make([]sdkmath.LegacyDec, len(ss))
	for i, s := range ss {
		out[i] = dec(s)
	}
	return out
}

func TestBDegenerateBootstrap(t *testing.T) {
	// Zero total supply is special-cased to b = 1.
	require.True(t, B(decs("0", "0"), alpha).Equal(sdkmath.LegacyOneDec()))

	// Any open interest uses b = alpha * sum.
	require.True(t, B(decs("500", "500"), alpha).Equal(dec("30")))
}

func TestPriceNormalization(t *testing.T) {
	tests := []struct {
		name string
		q    []sdkmath.LegacyDec
	}{
		{"balanced two outcomes", decs("500", "500")},
		{"skewed two outcomes", decs("900", "100")},
		{"three outcomes", decs("300", "500", "200")},
		{"five outcomes", decs("10", "20", "30", "40", "50")},
		{"bootstrap", decs("0", "0", "0")},
	}

	one := sdkmath.LegacyOneDec()
	tol := dec("0.01")

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sum := sdkmath.LegacyZeroDec()
			for i := range tc.q {
				p, err := MarginalPrice(tc.q, i, alpha, limit)
				require.NoError(t, err)
				require.True(t, p.IsPositive(), "price %d not positive: %s", i, p)
				sum = sum.Add(p)
			}
			require.True(t, sum.Sub(one).Abs().LTE(tol),
				"prices sum to %s, want ~1", sum)
		})
	}
}

func TestOneSidedThinLiquidityMarket(t *testing.T) {
	// Low alpha with all supply on one outcome drives the empty outcome's
	// shifted exponent to -1/alpha, far past where e^x underflows. Pricing
	// must stay defined with the empty outcome pinned at ~0.
	thin := dec("0.004")
	q := decs("1000", "0")

	p0, err := MarginalPrice(q, 0, thin, limit)
	require.NoError(t, err)
	p1, err := MarginalPrice(q, 1, thin, limit)
	require.NoError(t, err)

	require.True(t, p0.GT(dec("0.99")), "p0=%s, want ~1", p0)
	require.True(t, p1.LT(dec("0.01")), "p1=%s, want ~0", p1)
	require.True(t, p0.Add(p1).Sub(sdkmath.LegacyOneDec()).Abs().LTE(dec("0.01")),
		"p0+p1=%s, want ~1", p0.Add(p1))

	// Buying into the loaded outcome still prices.
	cost, err := NetCost(q, decs("10", "0"), thin, limit)
	require.NoError(t, err)
	require.True(t, cost.IsPositive(), "buy cost %s, want > 0", cost)
}

func TestInvalidOutcomeIndex(t *testing.T) {
	q := decs("500", "500")
	for _, i := range []int{-1, 2, 7} {
		_, err := MarginalPrice(q, i, alpha, limit)
		require.ErrorIs(t, err, domain.ErrInvalidOutcomeIndex, "index %d", i)
	}
}

func TestNetCostLengthMismatch(t *testing.T) {
	_, err := NetCost(decs("500", "500"), decs("100"), alpha, limit)
	require.ErrorIs(t, err, domain.ErrLengthMismatch)
}

func TestZeroTradeIdempotence(t *testing.T) {
	cost, err := NetCost(decs("500", "500"), decs("0", "0"), alpha, limit)
	require.NoError(t, err)
	require.True(t, cost.IsZero(), "zero trade cost %s, want exactly 0", cost)
}

func TestBuySellSignConsistency(t *testing.T) {
	tests := []struct {
		name  string
		q     []sdkmath.LegacyDec
		delta []sdkmath.LegacyDec
	}{
		{"buy one outcome", decs("500", "500"), decs("100", "0")},
		{"sell one outcome", decs("600", "500"), decs("-50", "0")},
		{"mixed", decs("300", "500", "200"), decs("40", "-30", "10")},
	}

	tol := dec("0.000000001")

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			forward, err := NetCost(tc.q, tc.delta, alpha, limit)
			require.NoError(t, err)

			after := make([]sdkmath.LegacyDec, len(tc.q))
			reverse := make([]sdkmath.LegacyDec, len(tc.delta))
			for i := range tc.q {
				after[i] = tc.q[i].Add(tc.delta[i])
				reverse[i] = tc.delta[i].Neg()
			}

			back, err := NetCost(after, reverse, alpha, limit)
			require.NoError(t, err)

			// Round-tripping a trade and its exact reverse nets to zero.
			require.True(t, forward.Add(back).Abs().LTE(tol),
				"forward %s + reverse %s != 0", forward, back)
		})
	}
}

func TestCostMonotonicity(t *testing.T) {
	q := decs("300", "500", "200")

	before := make([]sdkmath.LegacyDec, len(q))
	for i := range q {
		p, err := MarginalPrice(q, i, alpha, limit)
		require.NoError(t, err)
		before[i] = p
	}

	// Buy outcome 0 only.
	bumped := decs("400", "500", "200")
	for i := range bumped {
		p, err := MarginalPrice(bumped, i, alpha, limit)
		require.NoError(t, err)
		if i == 0 {
			require.True(t, p.GT(before[i]), "bought outcome price did not rise: %s -> %s", before[i], p)
		} else {
			require.True(t, p.LT(before[i]), "outcome %d price did not fall: %s -> %s", i, before[i], p)
		}
	}
}

func TestTwoOutcomeScenario(t *testing.T) {
	// Two-outcome market, alpha=0.03, initial supply 500/500. Buying 100 of
	// outcome 0 has a strictly positive cost and tilts prices toward 0.
	q := decs("500", "500")
	cost, err := NetCost(q, decs("100", "0"), alpha, limit)
	require.NoError(t, err)
	require.True(t, cost.IsPositive(), "buy cost %s, want > 0", cost)

	after := decs("600", "500")
	p0, err := MarginalPrice(after, 0, alpha, limit)
	require.NoError(t, err)
	p1, err := MarginalPrice(after, 1, alpha, limit)
	require.NoError(t, err)

	require.True(t, p0.GT(p1), "p0=%s not above p1=%s", p0, p1)
	require.True(t, p0.Add(p1).Sub(sdkmath.LegacyOneDec()).Abs().LTE(dec("0.01")),
		"p0+p1=%s, want ~1", p0.Add(p1))

	// Selling back 50 returns collateral.
	sellBack, err := NetCost(after, decs("-50", "0"), alpha, limit)
	require.NoError(t, err)
	require.True(t, sellBack.IsNegative(), "sell cost %s, want < 0", sellBack)
}
