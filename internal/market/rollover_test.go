package market

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpamm/internal/domain"
)

func (f *fixture) rolloverBuy(t *testing.T, trader common.Address, outcome int, amount int64) domain.Trade {
	t.Helper()
	deltas := make([]sdkmath.Int, f.cfg.OutcomeSlotCount)
	for i := range deltas {
		deltas[i] = sdkmath.ZeroInt()
	}
	deltas[outcome] = sdkmath.NewInt(amount)
	tr, err := f.mkt.MakePrediction(domain.TradeRequest{Trader: trader, Deltas: deltas, Rollover: true})
	require.NoError(t, err)
	return tr
}

func TestRolloverBuyBlocksShares(t *testing.T) {
	f := newFixture(t, nil)
	f.rolloverBuy(t, alice, 0, 100_000_000)

	positions, err := f.mkt.Positions(alice)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.True(t, positions[0].Free.IsZero())
	require.Equal(t, sdkmath.NewInt(100_000_000), positions[0].Blocked)
}

func TestRolloverSellConsumesBlocked(t *testing.T) {
	f := newFixture(t, nil)
	f.rolloverBuy(t, alice, 0, 100_000_000)

	tr, err := f.mkt.MakePrediction(domain.TradeRequest{
		Trader:   alice,
		Deltas:   ints(-40_000_000, 0),
		Rollover: true,
	})
	require.NoError(t, err)
	require.True(t, tr.NetCost.IsNegative())

	positions, err := f.mkt.Positions(alice)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(60_000_000), positions[0].Blocked)
}

func TestRolloverSellCannotTouchFreeBalance(t *testing.T) {
	f := newFixture(t, nil)
	f.buy(t, alice, 0, 100_000_000) // free shares only

	_, err := f.mkt.MakePrediction(domain.TradeRequest{
		Trader:   alice,
		Deltas:   ints(-50_000_000, 0),
		Rollover: true,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestBlockedSharesExcludedFromPayout(t *testing.T) {
	f := newFixture(t, nil)
	f.rolloverBuy(t, alice, 0, 100_000_000)
	f.closeEpoch(t, 1, 0)

	closed, err := f.mkt.EpochInfo(1)
	require.NoError(t, err)
	require.True(t, closed.TotalPayout.IsZero())

	_, err = f.mkt.RedeemPayout(alice, 1)
	require.ErrorIs(t, err, domain.ErrNothingToRedeem)
}

func TestUnblockReleasesCarriedShares(t *testing.T) {
	f := newFixture(t, nil)
	f.rolloverBuy(t, alice, 0, 100_000_000)
	f.closeEpoch(t, 1, 0)

	claim, err := f.mkt.UnblockTokens(alice, 1)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(100_000_000), claim[0])
	require.True(t, claim[1].IsZero())

	positions, err := f.mkt.Positions(alice)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, uint64(2), positions[0].Epoch)
	require.Equal(t, uint64(1), positions[0].Period)
	require.Equal(t, sdkmath.NewInt(100_000_000), positions[0].Free)
	require.True(t, positions[0].Blocked.IsZero())
}

func TestRolloverPreservesAmountAcrossEpochs(t *testing.T) {
	f := newFixture(t, nil)
	f.rolloverBuy(t, alice, 0, 100_000_000)
	f.closeEpoch(t, 1, 0)
	f.closeEpoch(t, 2, 1)

	claim, err := f.mkt.UnblockTokens(alice, 1)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(100_000_000), claim[0])
}

func TestRolloverAppliesGammaOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.clock.Advance(time.Hour) // blocked in period 2
	f.rolloverBuy(t, alice, 0, 100_000_000)
	f.closeEpoch(t, 1, 0)
	f.closeEpoch(t, 2, 1)

	// One decay step at the origin period, none for the carried epochs.
	claim, err := f.mkt.UnblockTokens(alice, 1)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(90_000_000), claim[0])
}

func TestUnblockRequiresResolvedEpoch(t *testing.T) {
	f := newFixture(t, nil)
	f.rolloverBuy(t, alice, 0, 100_000_000)

	_, err := f.mkt.UnblockTokens(alice, 1)
	require.ErrorIs(t, err, domain.ErrEpochNotResolved)
}

func TestUnblockWithoutReservation(t *testing.T) {
	f := newFixture(t, nil)
	f.closeEpoch(t, 1, 0)

	_, err := f.mkt.UnblockTokens(bob, 1)
	require.ErrorIs(t, err, domain.ErrNothingToRedeem)
}

func TestRedeemBlockedTokensCashesOut(t *testing.T) {
	f := newFixture(t, nil)
	f.rolloverBuy(t, alice, 0, 100_000_000)
	f.closeEpoch(t, 1, 0)

	before := f.bank.BalanceOf(alice)
	fundingBefore := func() sdkmath.Int {
		ep, err := f.mkt.EpochInfo(2)
		require.NoError(t, err)
		return ep.Funding
	}()

	value, err := f.mkt.RedeemBlockedTokens(alice, 1)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(100_000_000), value)
	require.Equal(t, before.Add(value), f.bank.BalanceOf(alice))

	ep, err := f.mkt.EpochInfo(2)
	require.NoError(t, err)
	require.Equal(t, fundingBefore.Sub(value), ep.Funding)

	// The reservation is consumed.
	_, err = f.mkt.RedeemBlockedTokens(alice, 1)
	require.ErrorIs(t, err, domain.ErrNothingToRedeem)
}

func TestRedeemBlockedTokensWorthlessOutcome(t *testing.T) {
	f := newFixture(t, nil)
	f.rolloverBuy(t, alice, 1, 100_000_000)
	f.closeEpoch(t, 1, 0) // outcome 1 resolves worthless

	_, err := f.mkt.RedeemBlockedTokens(alice, 1)
	require.ErrorIs(t, err, domain.ErrNothingToRedeem)
}

func TestRolloverRejectedOnEpochBeforeExpiration(t *testing.T) {
	f := newFixture(t, func(cfg *domain.MarketConfig) {
		cfg.ExpirationEpoch = 2
	})

	_, err := f.mkt.MakePrediction(domain.TradeRequest{
		Trader:   alice,
		Deltas:   ints(10_000_000, 0),
		Rollover: true,
	})
	require.ErrorIs(t, err, domain.ErrRolloverAfterExpiration)

	// A plain trade on the same epoch is still fine.
	f.buy(t, alice, 0, 10_000_000)
}

func TestMarketExpiresAfterFinalEpoch(t *testing.T) {
	f := newFixture(t, func(cfg *domain.MarketConfig) {
		cfg.ExpirationEpoch = 1
	})
	ownerBefore := f.bank.BalanceOf(owner)

	f.clock.Advance(f.cfg.EpochDuration)
	expired, err := f.mkt.CloseEpoch(oracle, ints(1, 0))
	require.NoError(t, err)
	require.True(t, expired)

	rec, err := f.mkt.State()
	require.NoError(t, err)
	require.True(t, rec.Expired)

	// Nobody holds a reservation, so nothing stays escrowed: the bonded
	// inventory's value returns to the owner with the rest of the funding.
	swept := f.bank.BalanceOf(owner).Sub(ownerBefore)
	require.Equal(t, f.cfg.StartFunding, swept)
	require.True(t, f.bank.BalanceOf(f.mkt.Address()).IsZero())

	_, err = f.mkt.MakePrediction(domain.TradeRequest{Trader: alice, Deltas: ints(1_000_000, 0)})
	require.ErrorIs(t, err, domain.ErrMarketExpired)
	require.ErrorIs(t, f.mkt.AdvancePeriod(), domain.ErrMarketExpired)

	done, err := f.mkt.CheckEpoch()
	require.NoError(t, err)
	require.True(t, done)
}

func TestExpiredMarketStillPaysCarriedClaims(t *testing.T) {
	f := newFixture(t, func(cfg *domain.MarketConfig) {
		cfg.ExpirationEpoch = 3
	})
	f.rolloverBuy(t, alice, 0, 100_000_000)
	f.closeEpoch(t, 1, 0)
	f.closeEpoch(t, 2, 0)

	f.clock.Advance(f.cfg.EpochDuration)
	expired, err := f.mkt.CloseEpoch(oracle, ints(1, 0))
	require.NoError(t, err)
	require.True(t, expired)

	// The expiration sweep leaves exactly the user-carried escrow behind,
	// so the reservation remains claimable in cash.
	require.Equal(t, sdkmath.NewInt(100_000_000), f.bank.BalanceOf(f.mkt.Address()))
	before := f.bank.BalanceOf(alice)
	value, err := f.mkt.RedeemBlockedTokens(alice, 1)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(100_000_000), value)
	require.Equal(t, before.Add(value), f.bank.BalanceOf(alice))
}
