package market

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/perpamm/internal/domain"
)

func (m *Market) requireOwner(caller common.Address) error {
	if caller != m.cfg.Owner {
		return fmt.Errorf("market %s: %w", m.cfg.ID, domain.ErrUnauthorized)
	}
	return nil
}

// ChangeFee updates the trade fee. Owner only.
func (m *Market) ChangeFee(caller common.Address, feeBps uint32) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()
	if err := m.requireOwner(caller); err != nil {
		return err
	}
	if feeBps >= domain.BpsDenominator {
		return fmt.Errorf("market %s: fee must be below %d bps, got %d", m.cfg.ID, domain.BpsDenominator, feeBps)
	}
	m.cfg.FeeBps = feeBps
	return nil
}

// ChangeExpirationEpoch moves the expiration forward or disables it. The new
// value must leave at least one full epoch of runway so in-flight rollovers
// stay claimable.
func (m *Market) ChangeExpirationEpoch(caller common.Address, epoch uint64) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()
	if err := m.requireOwner(caller); err != nil {
		return err
	}
	if m.expired {
		return fmt.Errorf("market %s: %w", m.cfg.ID, domain.ErrMarketExpired)
	}
	if epoch != 0 && epoch <= m.currentEpoch+1 {
		return fmt.Errorf("market %s: expiration epoch %d must exceed %d or be 0", m.cfg.ID, epoch, m.currentEpoch+1)
	}
	m.cfg.ExpirationEpoch = epoch
	return nil
}

// WithdrawFee transfers the accrued trade fees to the owner and returns the
// amount withdrawn.
func (m *Market) WithdrawFee(caller common.Address) (sdkmath.Int, error) {
	none := sdkmath.ZeroInt()
	if err := m.enter(); err != nil {
		return none, err
	}
	defer m.exit()
	if err := m.requireOwner(caller); err != nil {
		return none, err
	}
	amount := m.feeAccrued
	if !amount.IsPositive() {
		return none, nil
	}
	if err := m.collateral.Transfer(m.addr, m.cfg.Owner, amount); err != nil {
		return none, fmt.Errorf("market %s: withdraw fee: %w", m.cfg.ID, err)
	}
	m.feeAccrued = sdkmath.ZeroInt()
	return amount, nil
}

// EmergencyExit sweeps the market's full balance of an arbitrary token to the
// owner. Escape hatch, deliberately unrestricted in which asset it touches.
func (m *Market) EmergencyExit(caller common.Address, token domain.Collateral) (sdkmath.Int, error) {
	none := sdkmath.ZeroInt()
	if err := m.enter(); err != nil {
		return none, err
	}
	defer m.exit()
	if err := m.requireOwner(caller); err != nil {
		return none, err
	}
	amount := token.BalanceOf(m.addr)
	if !amount.IsPositive() {
		return none, nil
	}
	if err := token.Transfer(m.addr, m.cfg.Owner, amount); err != nil {
		return none, fmt.Errorf("market %s: emergency exit: %w", m.cfg.ID, err)
	}
	return amount, nil
}
