package market

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpamm/internal/collateral"
	"github.com/alanyoungcy/perpamm/internal/domain"
)

func TestChangeFee(t *testing.T) {
	f := newFixture(t, nil)

	require.ErrorIs(t, f.mkt.ChangeFee(alice, 200), domain.ErrUnauthorized)
	require.Error(t, f.mkt.ChangeFee(owner, 10_000))

	require.NoError(t, f.mkt.ChangeFee(owner, 200))
	rec, err := f.mkt.State()
	require.NoError(t, err)
	require.Equal(t, uint32(200), rec.FeeBps)
}

func TestChangeExpirationEpoch(t *testing.T) {
	f := newFixture(t, nil)

	require.ErrorIs(t, f.mkt.ChangeExpirationEpoch(alice, 5), domain.ErrUnauthorized)

	// Must leave at least one full epoch of runway past the current one.
	require.Error(t, f.mkt.ChangeExpirationEpoch(owner, 1))
	require.Error(t, f.mkt.ChangeExpirationEpoch(owner, 2))

	require.NoError(t, f.mkt.ChangeExpirationEpoch(owner, 3))
	rec, err := f.mkt.State()
	require.NoError(t, err)
	require.Equal(t, uint64(3), rec.ExpirationEpoch)

	// Zero disables expiration again.
	require.NoError(t, f.mkt.ChangeExpirationEpoch(owner, 0))
	rec, err = f.mkt.State()
	require.NoError(t, err)
	require.Equal(t, uint64(0), rec.ExpirationEpoch)
}

func TestWithdrawFee(t *testing.T) {
	f := newFixture(t, nil)
	tr := f.buy(t, alice, 0, 100_000_000)
	require.True(t, tr.Fee.IsPositive())

	_, err := f.mkt.WithdrawFee(alice)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	ownerBefore := f.bank.BalanceOf(owner)
	amount, err := f.mkt.WithdrawFee(owner)
	require.NoError(t, err)
	require.Equal(t, tr.Fee, amount)
	require.Equal(t, ownerBefore.Add(tr.Fee), f.bank.BalanceOf(owner))

	rec, err := f.mkt.State()
	require.NoError(t, err)
	require.True(t, rec.FeeAccrued.IsZero())

	// Nothing left to withdraw.
	amount, err = f.mkt.WithdrawFee(owner)
	require.NoError(t, err)
	require.True(t, amount.IsZero())
}

func TestEmergencyExit(t *testing.T) {
	f := newFixture(t, nil)

	// A stray token accidentally sent to the market account.
	stray := collateral.NewBank("WETH", 18)
	require.NoError(t, stray.Mint(f.mkt.Address(), sdkmath.NewInt(1_000_000)))

	_, err := f.mkt.EmergencyExit(alice, stray)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	amount, err := f.mkt.EmergencyExit(owner, stray)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(1_000_000), amount)
	require.Equal(t, sdkmath.NewInt(1_000_000), stray.BalanceOf(owner))
	require.True(t, stray.BalanceOf(f.mkt.Address()).IsZero())
}
