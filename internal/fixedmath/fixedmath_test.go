package fixedmath

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpamm/internal/domain"
)

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

// requireClose asserts |got - want| <= tol.
func requireClose(t *testing.T, want, got sdkmath.LegacyDec, tol string) {
	t.Helper()
	diff := got.Sub(want).Abs()
	require.True(t, diff.LTE(dec(tol)),
		"want %s, got %s (diff %s > %s)", want, got, diff, tol)
}

func TestExp(t *testing.T) {
	limit := dec("100")

	tests := []struct {
		name string
		x    string
		want string
	}{
		{"zero", "0", "1"},
		{"one", "1", "2.718281828459045235"},
		{"two", "2", "7.389056098930650227"},
		{"half", "0.5", "1.648721270700128146"},
		{"negative one", "-1", "0.367879441171442321"},
		{"negative half", "-0.5", "0.606530659712633423"},
		{"ten", "10", "22026.465794806716516957"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Exp(dec(tc.x), limit)
			require.NoError(t, err)
			requireClose(t, dec(tc.want), got, "0.000000001")
		})
	}
}

func TestExpOverflowGuard(t *testing.T) {
	_, err := Exp(dec("130.000000000000000001"), dec("130"))
	require.ErrorIs(t, err, domain.ErrExpOverflow)

	// At the limit exactly, no error.
	_, err = Exp(dec("130"), dec("130"))
	require.NoError(t, err)
}

func TestExpDeepNegativeUnderflowsToZero(t *testing.T) {
	limit := dec("130")

	// Far below the cutoff the result is exactly zero, without touching the
	// reduction loop.
	for _, x := range []string{"-42.000000000000000001", "-250", "-100000"} {
		got, err := Exp(dec(x), limit)
		require.NoError(t, err, "x=%s", x)
		require.True(t, got.IsZero(), "e^%s = %s, want 0", x, got)
	}

	// Just above the cutoff still evaluates to a tiny positive value.
	got, err := Exp(dec("-41"), limit)
	require.NoError(t, err)
	require.True(t, got.IsPositive(), "e^-41 = %s, want > 0", got)
	require.True(t, got.LT(dec("0.000000000000001")), "e^-41 = %s, want tiny", got)
}

func TestLn(t *testing.T) {
	tests := []struct {
		name string
		x    string
		want string
	}{
		{"one", "1", "0"},
		{"e", "2.718281828459045235", "1"},
		{"two", "2", "0.693147180559945309"},
		{"ten", "10", "2.302585092994045684"},
		{"half", "0.5", "-0.693147180559945309"},
		{"small", "0.001", "-6.907755278982137052"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Ln(dec(tc.x))
			require.NoError(t, err)
			requireClose(t, dec(tc.want), got, "0.000000001")
		})
	}
}

func TestLnRejectsNonPositive(t *testing.T) {
	for _, x := range []string{"0", "-1", "-0.000000000000000001"} {
		_, err := Ln(dec(x))
		require.ErrorIs(t, err, domain.ErrNonPositiveLn, "x=%s", x)
	}
}

func TestLnExpRoundTrip(t *testing.T) {
	limit := dec("100")
	for _, x := range []string{"0.01", "0.5", "1", "3.25", "17.5", "42"} {
		ex, err := Exp(dec(x), limit)
		require.NoError(t, err)
		back, err := Ln(ex)
		require.NoError(t, err)
		requireClose(t, dec(x), back, "0.00000001")
	}
}
