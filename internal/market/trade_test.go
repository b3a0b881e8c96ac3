package market

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpamm/internal/collateral"
	"github.com/alanyoungcy/perpamm/internal/domain"
)

func TestBuySettlement(t *testing.T) {
	f := newFixture(t, nil)
	before := f.bank.BalanceOf(alice)
	marketBefore := f.bank.BalanceOf(f.mkt.Address())

	tr := f.buy(t, alice, 0, 100_000_000)

	require.True(t, tr.NetCost.IsPositive())
	require.True(t, tr.Fee.IsPositive())
	// 100 shares with both outcomes at an initial price of 0.5 must cost
	// more than 50 collateral units and less than the full face value.
	require.True(t, tr.NetCost.GT(sdkmath.NewInt(50_000_000)), "net cost %s", tr.NetCost)
	require.True(t, tr.NetCost.LT(sdkmath.NewInt(100_000_000)), "net cost %s", tr.NetCost)

	paid := before.Sub(f.bank.BalanceOf(alice))
	require.Equal(t, tr.NetCost.Add(tr.Fee), paid)
	require.Equal(t, paid, f.bank.BalanceOf(f.mkt.Address()).Sub(marketBefore))

	// Raw cost funds the epoch, the fee accrues separately.
	ep, err := f.mkt.EpochInfo(1)
	require.NoError(t, err)
	require.Equal(t, f.cfg.StartFunding.Add(tr.NetCost), ep.Funding)

	rec, err := f.mkt.State()
	require.NoError(t, err)
	require.Equal(t, tr.Fee, rec.FeeAccrued)
}

func TestBuyMintsIntoCurrentPeriod(t *testing.T) {
	f := newFixture(t, nil)
	f.clock.Advance(2 * time.Hour)

	tr := f.buy(t, alice, 1, 25_000_000)
	require.Equal(t, uint64(3), tr.Period)

	positions, err := f.mkt.Positions(alice)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, uint64(3), positions[0].Period)
	require.Equal(t, 1, positions[0].Outcome)
	require.Equal(t, sdkmath.NewInt(25_000_000), positions[0].Free)
}

func TestPartialSellLeavesRemainder(t *testing.T) {
	f := newFixture(t, nil)
	f.buy(t, alice, 0, 100_000_000)

	tr, err := f.mkt.MakePrediction(domain.TradeRequest{
		Trader: alice,
		Deltas: ints(-50_000_000, 0),
	})
	require.NoError(t, err)
	require.True(t, tr.NetCost.IsNegative(), "sell must have negative net cost")

	positions, err := f.mkt.Positions(alice)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, sdkmath.NewInt(50_000_000), positions[0].Free)
}

func TestSellPaysNetOfFee(t *testing.T) {
	f := newFixture(t, nil)
	f.buy(t, alice, 0, 100_000_000)

	fundingBefore := func() sdkmath.Int {
		ep, err := f.mkt.EpochInfo(1)
		require.NoError(t, err)
		return ep.Funding
	}()
	balanceBefore := f.bank.BalanceOf(alice)

	tr, err := f.mkt.MakePrediction(domain.TradeRequest{
		Trader: alice,
		Deltas: ints(-100_000_000, 0),
	})
	require.NoError(t, err)

	payout := tr.NetCost.Neg()
	received := f.bank.BalanceOf(alice).Sub(balanceBefore)
	require.Equal(t, payout.Sub(tr.Fee), received)

	ep, err := f.mkt.EpochInfo(1)
	require.NoError(t, err)
	require.Equal(t, fundingBefore.Sub(payout), ep.Funding)
}

func TestBuySellRoundTripLosesOnlyFees(t *testing.T) {
	f := newFixture(t, nil)
	start := f.bank.BalanceOf(alice)

	buy := f.buy(t, alice, 0, 100_000_000)
	sell, err := f.mkt.MakePrediction(domain.TradeRequest{
		Trader: alice,
		Deltas: ints(-100_000_000, 0),
	})
	require.NoError(t, err)

	loss := start.Sub(f.bank.BalanceOf(alice))
	fees := buy.Fee.Add(sell.Fee)
	// Rounding always favors the market, so the loss is at least the fees
	// but only dust beyond them.
	require.True(t, loss.GTE(fees), "loss %s below fees %s", loss, fees)
	require.True(t, loss.Sub(fees).LTE(sdkmath.NewInt(10)), "excess loss %s", loss.Sub(fees))
}

func TestSellMoreThanHeld(t *testing.T) {
	f := newFixture(t, nil)
	f.buy(t, alice, 0, 100_000_000)
	balance := f.bank.BalanceOf(alice)

	_, err := f.mkt.MakePrediction(domain.TradeRequest{
		Trader: alice,
		Deltas: ints(-100_000_001, 0),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// Nothing moved.
	require.Equal(t, balance, f.bank.BalanceOf(alice))
	positions, err := f.mkt.Positions(alice)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(100_000_000), positions[0].Free)
}

func TestSellConsumesEarliestPeriodsFirst(t *testing.T) {
	f := newFixture(t, nil)
	f.buy(t, alice, 0, 60_000_000)
	f.clock.Advance(time.Hour)
	f.buy(t, alice, 0, 60_000_000)

	_, err := f.mkt.MakePrediction(domain.TradeRequest{
		Trader: alice,
		Deltas: ints(-80_000_000, 0),
	})
	require.NoError(t, err)

	positions, err := f.mkt.Positions(alice)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, uint64(2), positions[0].Period)
	require.Equal(t, sdkmath.NewInt(40_000_000), positions[0].Free)
}

func TestTradeValidation(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.mkt.MakePrediction(domain.TradeRequest{Trader: alice, Deltas: ints(1, 2, 3)})
	require.ErrorIs(t, err, domain.ErrLengthMismatch)

	_, err = f.mkt.MakePrediction(domain.TradeRequest{
		Trader: alice,
		Deltas: []sdkmath.Int{{}, sdkmath.NewInt(1)},
	})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestTradeRejectedWhenCollateralShort(t *testing.T) {
	f := newFixture(t, nil)
	pauper := common.HexToAddress("0x00000000000000000000000000000000000000c3")
	require.NoError(t, f.bank.Mint(pauper, sdkmath.NewInt(1_000)))
	require.NoError(t, f.bank.Approve(pauper, f.mkt.Address(), sdkmath.NewInt(1_000)))

	_, err := f.mkt.MakePrediction(domain.TradeRequest{
		Trader: pauper,
		Deltas: ints(100_000_000, 0),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	positions, err := f.mkt.Positions(pauper)
	require.NoError(t, err)
	require.Empty(t, positions)
}

func TestTradeOnOverdueEpoch(t *testing.T) {
	f := newFixture(t, nil)
	f.clock.Advance(f.cfg.EpochDuration + time.Minute)

	_, err := f.mkt.MakePrediction(domain.TradeRequest{Trader: alice, Deltas: ints(1_000_000, 0)})
	require.ErrorIs(t, err, domain.ErrEpochFinishedNotResolved)
}

func TestZeroTrade(t *testing.T) {
	f := newFixture(t, nil)
	before := f.bank.BalanceOf(alice)

	tr, err := f.mkt.MakePrediction(domain.TradeRequest{Trader: alice, Deltas: ints(0, 0)})
	require.NoError(t, err)
	require.True(t, tr.NetCost.IsZero())
	require.True(t, tr.Fee.IsZero())
	require.Equal(t, before, f.bank.BalanceOf(alice))
}

func TestQuoteMatchesExecution(t *testing.T) {
	f := newFixture(t, nil)

	deltas := ints(75_000_000, 0)
	quotedCost, quotedFee, err := f.mkt.QuoteNetCost(deltas)
	require.NoError(t, err)

	tr, err := f.mkt.MakePrediction(domain.TradeRequest{Trader: alice, Deltas: deltas})
	require.NoError(t, err)
	require.Equal(t, quotedCost, tr.NetCost)
	require.Equal(t, quotedFee, tr.Fee)
}

func TestQuoteDoesNotMutate(t *testing.T) {
	f := newFixture(t, nil)

	first, _, err := f.mkt.QuoteNetCost(ints(75_000_000, 0))
	require.NoError(t, err)
	second, _, err := f.mkt.QuoteNetCost(ints(75_000_000, 0))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

// callbackBank delegates to a real bank but, once armed, re-enters the market
// from inside the settlement transfer, the way a malicious token contract
// would.
type callbackBank struct {
	*collateral.Bank
	mkt      *Market
	armed    bool
	innerErr error
}

func (b *callbackBank) TransferFrom(spender, from, to common.Address, amount sdkmath.Int) error {
	if b.armed {
		b.armed = false
		_, b.innerErr = b.mkt.MakePrediction(domain.TradeRequest{Trader: bob, Deltas: ints(1_000_000, 0)})
	}
	return b.Bank.TransferFrom(spender, from, to, amount)
}

func TestReentrantCollateralCallbackRejected(t *testing.T) {
	cfg := testConfig()
	bank := &callbackBank{Bank: collateral.NewBank("USDC", 6)}
	clock := &fakeClock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}

	mkt, err := New(cfg, bank, WithClock(clock.Now))
	require.NoError(t, err)
	bank.mkt = mkt

	require.NoError(t, bank.Mint(owner, cfg.StartFunding))
	require.NoError(t, bank.Approve(owner, mkt.Address(), cfg.StartFunding))
	require.NoError(t, mkt.Init())
	for _, acct := range []common.Address{alice, bob} {
		require.NoError(t, bank.Mint(acct, sdkmath.NewInt(traderSeed)))
		require.NoError(t, bank.Approve(acct, mkt.Address(), sdkmath.NewInt(traderSeed)))
	}

	bank.armed = true
	tr, err := mkt.MakePrediction(domain.TradeRequest{Trader: alice, Deltas: ints(100_000_000, 0)})
	require.NoError(t, err)
	require.ErrorIs(t, bank.innerErr, domain.ErrReentrancy)

	// The outer trade settled in full despite the rejected callback.
	positions, err := mkt.Positions(alice)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, sdkmath.NewInt(100_000_000), positions[0].Free)
	ep, err := mkt.EpochInfo(1)
	require.NoError(t, err)
	require.Equal(t, cfg.StartFunding.Add(tr.NetCost), ep.Funding)

	// The guard releases afterwards, so normal trading continues.
	_, err = mkt.MakePrediction(domain.TradeRequest{Trader: bob, Deltas: ints(1_000_000, 0)})
	require.NoError(t, err)
}
