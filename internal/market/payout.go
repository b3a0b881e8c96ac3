package market

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/perpamm/internal/domain"
)

// RedeemPayout settles the caller's free shares of a resolved epoch: every
// balance is gamma-weighted by the period it was minted in, priced at the
// epoch's base prices, burned, and paid out in collateral. Returns the amount
// paid.
func (m *Market) RedeemPayout(caller common.Address, epoch uint64) (sdkmath.Int, error) {
	none := sdkmath.ZeroInt()
	if err := m.enter(); err != nil {
		return none, err
	}
	defer m.exit()
	if err := m.requireInitialized(); err != nil {
		return none, err
	}

	ep, ok := m.epochs[epoch]
	if !ok {
		return none, fmt.Errorf("market %s: epoch %d: %w", m.cfg.ID, epoch, domain.ErrNotFound)
	}
	if !ep.Resolved() {
		return none, fmt.Errorf("market %s: epoch %d: %w", m.cfg.ID, epoch, domain.ErrEpochNotResolved)
	}

	total := sdkmath.ZeroInt()
	var burns []burnOp
	for o := 0; o < m.cfg.OutcomeSlotCount; o++ {
		for p := uint64(1); p <= m.cfg.PeriodsPerEpoch(); p++ {
			id := m.ledger.ID(epoch, p, o)
			bal := m.ledger.BalanceOf(caller, id)
			if !bal.IsPositive() {
				continue
			}
			total = total.Add(m.shareValue(m.gammaWeight(bal, p), ep.BasePrices[o]))
			burns = append(burns, burnOp{id: id, amount: bal})
		}
	}
	if !total.IsPositive() {
		return none, fmt.Errorf("market %s: epoch %d: %w", m.cfg.ID, epoch, domain.ErrNothingToRedeem)
	}

	for _, b := range burns {
		_ = m.ledger.Burn(caller, b.id, b.amount)
	}
	if err := m.collateral.Transfer(m.addr, caller, total); err != nil {
		return none, fmt.Errorf("market %s: pay redemption: %w", m.cfg.ID, err)
	}
	return total, nil
}

// carriedShares computes the caller's rollover claim that originated in the
// given resolved epoch, gamma-weighted once at the origin period, per
// outcome. The returned ops debit the origin-epoch reservation.
func (m *Market) carriedShares(caller common.Address, epoch uint64) ([]sdkmath.Int, []burnOp) {
	claim := make([]sdkmath.Int, m.cfg.OutcomeSlotCount)
	var origin []burnOp
	for o := range claim {
		claim[o] = sdkmath.ZeroInt()
		for p := uint64(1); p <= m.cfg.PeriodsPerEpoch(); p++ {
			id := m.ledger.ID(epoch, p, o)
			blocked := m.ledger.BlockedOf(caller, id)
			if !blocked.IsPositive() {
				continue
			}
			claim[o] = claim[o].Add(m.gammaWeight(blocked, p))
			origin = append(origin, burnOp{id: id, amount: blocked})
		}
	}
	return claim, origin
}

func (m *Market) requireCarriedFrom(epoch uint64) error {
	if epoch == 0 || epoch >= m.currentEpoch {
		return fmt.Errorf("market %s: epoch %d: %w", m.cfg.ID, epoch, domain.ErrEpochNotResolved)
	}
	return nil
}

// releaseOrigin clears the caller's origin-epoch reservation and burns the
// matching carrier shares the market still holds there.
func (m *Market) releaseOrigin(caller common.Address, origin []burnOp) {
	for _, b := range origin {
		_ = m.ledger.Unblock(caller, b.id, b.amount)
		_ = m.ledger.Burn(m.addr, b.id, b.amount)
	}
}

// UnblockTokens converts the caller's rollover reservation from a resolved
// epoch into free shares in period 1 of the currently active epoch, drawn
// from the market's carrier pool.
func (m *Market) UnblockTokens(caller common.Address, epoch uint64) ([]sdkmath.Int, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	defer m.exit()
	if err := m.requireInitialized(); err != nil {
		return nil, err
	}
	if err := m.requireCarriedFrom(epoch); err != nil {
		return nil, err
	}

	claim, origin := m.carriedShares(caller, epoch)
	any := false
	for _, c := range claim {
		if c.IsPositive() {
			any = true
		}
	}
	if !any {
		return nil, fmt.Errorf("market %s: epoch %d: %w", m.cfg.ID, epoch, domain.ErrNothingToRedeem)
	}

	m.releaseOrigin(caller, origin)
	for o, c := range claim {
		if !c.IsPositive() {
			continue
		}
		cid := m.ledger.ID(m.currentEpoch, 1, o)
		if err := m.ledger.Unblock(m.addr, cid, c); err != nil {
			return nil, fmt.Errorf("market %s: release carrier outcome %d: %w", m.cfg.ID, o, err)
		}
		if err := m.ledger.Transfer(m.addr, caller, cid, c); err != nil {
			return nil, fmt.Errorf("market %s: release carrier outcome %d: %w", m.cfg.ID, o, err)
		}
	}
	return claim, nil
}

// RedeemBlockedTokens cashes out the caller's rollover reservation from a
// resolved epoch instead of releasing shares: the carried claim is priced at
// the most recently resolved epoch's base prices and paid in collateral.
func (m *Market) RedeemBlockedTokens(caller common.Address, epoch uint64) (sdkmath.Int, error) {
	none := sdkmath.ZeroInt()
	if err := m.enter(); err != nil {
		return none, err
	}
	defer m.exit()
	if err := m.requireInitialized(); err != nil {
		return none, err
	}
	if err := m.requireCarriedFrom(epoch); err != nil {
		return none, err
	}

	claim, origin := m.carriedShares(caller, epoch)
	last := m.epochs[m.currentEpoch-1]
	value := sdkmath.ZeroInt()
	for o, c := range claim {
		if c.IsPositive() {
			value = value.Add(m.shareValue(c, last.BasePrices[o]))
		}
	}
	if !value.IsPositive() {
		return none, fmt.Errorf("market %s: epoch %d: %w", m.cfg.ID, epoch, domain.ErrNothingToRedeem)
	}

	m.releaseOrigin(caller, origin)
	for o, c := range claim {
		if !c.IsPositive() {
			continue
		}
		cid := m.ledger.ID(m.currentEpoch, 1, o)
		if err := m.ledger.Unblock(m.addr, cid, c); err != nil {
			return none, fmt.Errorf("market %s: retire carrier outcome %d: %w", m.cfg.ID, o, err)
		}
		if err := m.ledger.Burn(m.addr, cid, c); err != nil {
			return none, fmt.Errorf("market %s: retire carrier outcome %d: %w", m.cfg.ID, o, err)
		}
	}
	if err := m.collateral.Transfer(m.addr, caller, value); err != nil {
		return none, fmt.Errorf("market %s: pay blocked redemption: %w", m.cfg.ID, err)
	}
	m.epochs[m.currentEpoch].Funding = m.epochs[m.currentEpoch].Funding.Sub(value)
	return value, nil
}
