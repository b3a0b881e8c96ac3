package market

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpamm/internal/domain"
)

func TestRedeemWinningOutcomeAtFaceValue(t *testing.T) {
	f := newFixture(t, nil)
	f.buy(t, alice, 0, 100_000_000)
	f.closeEpoch(t, 1, 0)

	paid, err := f.mkt.RedeemPayout(alice, 1)
	require.NoError(t, err)
	// Period-1 shares carry full gamma weight and the winning base price is
	// exactly 1, so 100 shares redeem for exactly 100 collateral units.
	require.Equal(t, sdkmath.NewInt(100_000_000), paid)
}

func TestRedeemLosingOutcome(t *testing.T) {
	f := newFixture(t, nil)
	f.buy(t, bob, 1, 100_000_000)
	f.closeEpoch(t, 1, 0)

	_, err := f.mkt.RedeemPayout(bob, 1)
	require.ErrorIs(t, err, domain.ErrNothingToRedeem)
}

func TestRedeemExhaustsPosition(t *testing.T) {
	f := newFixture(t, nil)
	f.buy(t, alice, 0, 100_000_000)
	f.closeEpoch(t, 1, 0)

	_, err := f.mkt.RedeemPayout(alice, 1)
	require.NoError(t, err)

	positions, err := f.mkt.Positions(alice)
	require.NoError(t, err)
	require.Empty(t, positions)

	_, err = f.mkt.RedeemPayout(alice, 1)
	require.ErrorIs(t, err, domain.ErrNothingToRedeem)
}

func TestRedeemAppliesGammaDecay(t *testing.T) {
	f := newFixture(t, nil)
	f.clock.Advance(time.Hour) // period 2, one decay step at gamma=0.9
	f.buy(t, alice, 0, 100_000_000)
	f.closeEpoch(t, 1, 0)

	paid, err := f.mkt.RedeemPayout(alice, 1)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(90_000_000), paid)
}

func TestRedeemSplitPayout(t *testing.T) {
	f := newFixture(t, nil)
	f.buy(t, alice, 0, 100_000_000)
	f.closeEpoch(t, 3, 1) // base prices 0.75 / 0.25

	paid, err := f.mkt.RedeemPayout(alice, 1)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(75_000_000), paid)
}

func TestRedeemUnresolvedEpoch(t *testing.T) {
	f := newFixture(t, nil)
	f.buy(t, alice, 0, 100_000_000)

	_, err := f.mkt.RedeemPayout(alice, 1)
	require.ErrorIs(t, err, domain.ErrEpochNotResolved)

	_, err = f.mkt.RedeemPayout(alice, 7)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCloseAccountsForRedemptions(t *testing.T) {
	f := newFixture(t, nil)
	tr := f.buy(t, alice, 0, 100_000_000)
	f.closeEpoch(t, 1, 0)

	closed, err := f.mkt.EpochInfo(1)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(100_000_000), closed.TotalPayout)

	next, err := f.mkt.EpochInfo(2)
	require.NoError(t, err)
	want := f.cfg.StartFunding.Add(tr.NetCost).Sub(closed.TotalPayout)
	require.Equal(t, want, next.Funding)

	// The market keeps enough collateral to honor the redemption.
	paid, err := f.mkt.RedeemPayout(alice, 1)
	require.NoError(t, err)
	require.True(t, f.bank.BalanceOf(f.mkt.Address()).GTE(sdkmath.ZeroInt()))
	require.Equal(t, closed.TotalPayout, paid)
}

func TestBondedInventoryNotCountedAsPayout(t *testing.T) {
	f := newFixture(t, nil)
	// No trades at all: the bonded bootstrap inventory is blocked and must
	// not owe anything at close.
	f.closeEpoch(t, 1, 0)

	closed, err := f.mkt.EpochInfo(1)
	require.NoError(t, err)
	require.True(t, closed.TotalPayout.IsZero())
}

func TestTradingResumesInNextEpoch(t *testing.T) {
	f := newFixture(t, nil)
	f.closeEpoch(t, 1, 0)

	tr := f.buy(t, alice, 0, 50_000_000)
	require.Equal(t, uint64(2), tr.Epoch)
	require.Equal(t, uint64(1), tr.Period)

	prices, err := f.mkt.MarginalPrices()
	require.NoError(t, err)
	require.Len(t, prices, 2)
}
