package market

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpamm/internal/domain"
)

func currentCursor(t *testing.T, f *fixture) (epoch, period uint64) {
	t.Helper()
	rec, err := f.mkt.State()
	require.NoError(t, err)
	return rec.CurrentEpoch, rec.CurrentPeriod
}

func TestAdvancePeriodTracksClock(t *testing.T) {
	f := newFixture(t, nil)

	epoch, period := currentCursor(t, f)
	require.Equal(t, uint64(1), epoch)
	require.Equal(t, uint64(1), period)

	f.clock.Advance(90 * time.Minute)
	require.NoError(t, f.mkt.AdvancePeriod())
	_, period = currentCursor(t, f)
	require.Equal(t, uint64(2), period)

	// Skipped periods are not replayed, the cursor jumps straight to the
	// period the clock is in.
	f.clock.Advance(5 * time.Hour)
	require.NoError(t, f.mkt.AdvancePeriod())
	_, period = currentCursor(t, f)
	require.Equal(t, uint64(7), period)
}

func TestAdvancePeriodRejectsOverdueEpoch(t *testing.T) {
	f := newFixture(t, nil)

	f.clock.Advance(f.cfg.EpochDuration)
	err := f.mkt.AdvancePeriod()
	require.ErrorIs(t, err, domain.ErrEpochFinishedNotResolved)

	// The cursor must not have moved.
	_, period := currentCursor(t, f)
	require.Equal(t, uint64(1), period)
}

func TestCheckEpoch(t *testing.T) {
	f := newFixture(t, nil)

	done, err := f.mkt.CheckEpoch()
	require.NoError(t, err)
	require.False(t, done)

	f.clock.Advance(f.cfg.EpochDuration - time.Second)
	done, err = f.mkt.CheckEpoch()
	require.NoError(t, err)
	require.False(t, done)

	f.clock.Advance(time.Second)
	done, err = f.mkt.CheckEpoch()
	require.NoError(t, err)
	require.True(t, done)
}

func TestCloseEpochAuthorization(t *testing.T) {
	f := newFixture(t, nil)
	f.clock.Advance(f.cfg.EpochDuration)

	_, err := f.mkt.CloseEpoch(alice, ints(1, 0))
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.mkt.CloseEpoch(oracle, ints(1, 0))
	require.NoError(t, err)
}

func TestCloseEpochBeforeDuration(t *testing.T) {
	f := newFixture(t, nil)
	f.clock.Advance(f.cfg.EpochDuration - time.Minute)

	_, err := f.mkt.CloseEpoch(oracle, ints(1, 0))
	require.ErrorIs(t, err, domain.ErrEpochNotFinished)
}

func TestCloseEpochPayoutValidation(t *testing.T) {
	f := newFixture(t, nil)
	f.clock.Advance(f.cfg.EpochDuration)

	_, err := f.mkt.CloseEpoch(oracle, ints(1, 0, 0))
	require.ErrorIs(t, err, domain.ErrLengthMismatch)

	_, err = f.mkt.CloseEpoch(oracle, ints(0, 0))
	require.ErrorIs(t, err, domain.ErrZeroPayouts)

	_, err = f.mkt.CloseEpoch(oracle, []sdkmath.Int{sdkmath.NewInt(-1), sdkmath.NewInt(2)})
	require.ErrorIs(t, err, domain.ErrNegativePayout)
}

func TestCloseEpochOpensNextEpoch(t *testing.T) {
	f := newFixture(t, nil)
	f.closeEpoch(t, 1, 0)

	epoch, period := currentCursor(t, f)
	require.Equal(t, uint64(2), epoch)
	require.Equal(t, uint64(1), period)

	closed, err := f.mkt.EpochInfo(1)
	require.NoError(t, err)
	require.True(t, closed.Resolved())
	require.NotNil(t, closed.ClosedAt)
	require.Equal(t, sdkmath.NewInt(1), closed.PayoutDenominator)

	next, err := f.mkt.EpochInfo(2)
	require.NoError(t, err)
	require.False(t, next.Resolved())
	require.Equal(t, f.clock.Now(), next.Start)
	require.Equal(t, closed.Funding.Sub(closed.TotalPayout), next.Funding)
}

func TestCloseEpochBasePricesNormalized(t *testing.T) {
	f := newFixture(t, func(cfg *domain.MarketConfig) {
		cfg.OutcomeSlotCount = 3
		cfg.OutcomeTokenAmounts = ints(500_000_000, 500_000_000, 500_000_000)
	})
	// 1/3 splits do not terminate in decimal; the rounding remainder must
	// land on the largest numerator so the vector still sums to exactly 1.
	f.closeEpoch(t, 1, 1, 1)

	ep, err := f.mkt.EpochInfo(1)
	require.NoError(t, err)
	require.Len(t, ep.BasePrices, 3)

	sum := sdkmath.LegacyZeroDec()
	for _, p := range ep.BasePrices {
		require.False(t, p.IsNegative())
		sum = sum.Add(p)
	}
	require.True(t, sum.Equal(sdkmath.LegacyOneDec()), "base prices sum %s", sum)
}

func TestCloseEpochDecisivePayout(t *testing.T) {
	f := newFixture(t, nil)
	f.closeEpoch(t, 1, 0)

	ep, err := f.mkt.EpochInfo(1)
	require.NoError(t, err)
	require.True(t, ep.BasePrices[0].Equal(sdkmath.LegacyOneDec()))
	require.True(t, ep.BasePrices[1].IsZero())
}

func TestCloseEpochTwiceRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.closeEpoch(t, 1, 0)

	// Epoch 2 just opened, closing it again immediately must fail on the
	// duration check, not resolve the fresh epoch.
	_, err := f.mkt.CloseEpoch(oracle, ints(1, 0))
	require.ErrorIs(t, err, domain.ErrEpochNotFinished)
}
