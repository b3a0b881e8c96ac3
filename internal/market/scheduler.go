package market

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/perpamm/internal/domain"
)

// advancePeriod moves the period cursor to match the wall clock. Periods are
// derived from the epoch start, so missed periods are skipped rather than
// replayed. Once the epoch duration has elapsed the market freezes until the
// oracle closes the epoch.
func (m *Market) advancePeriod() error {
	ep := m.epochs[m.currentEpoch]
	now := m.now()

	elapsed := now.Sub(ep.Start)
	if elapsed >= m.cfg.EpochDuration {
		return fmt.Errorf("market %s: epoch %d: %w", m.cfg.ID, m.currentEpoch, domain.ErrEpochFinishedNotResolved)
	}

	period := uint64(elapsed/m.cfg.PeriodDuration) + 1
	if period > m.currentPeriod {
		m.currentPeriod = period
		m.periodStart = ep.Start.Add(time.Duration(period-1) * m.cfg.PeriodDuration)
	}
	return nil
}

// AdvancePeriod exposes the period cursor update for callers that want to
// tick the clock without trading.
func (m *Market) AdvancePeriod() error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()
	if err := m.requireInitialized(); err != nil {
		return err
	}
	if m.expired {
		return fmt.Errorf("market %s: %w", m.cfg.ID, domain.ErrMarketExpired)
	}
	return m.advancePeriod()
}

// CheckEpoch reports whether the current epoch's duration has elapsed, i.e.
// whether the oracle may (and should) close it.
func (m *Market) CheckEpoch() (bool, error) {
	if err := m.enter(); err != nil {
		return false, err
	}
	defer m.exit()
	if err := m.requireInitialized(); err != nil {
		return false, err
	}
	if m.cfg.ExpirationEpoch != 0 && m.currentEpoch > m.cfg.ExpirationEpoch {
		return true, nil
	}
	return m.epochFinished(), nil
}

func (m *Market) epochFinished() bool {
	ep := m.epochs[m.currentEpoch]
	return m.now().Sub(ep.Start) >= m.cfg.EpochDuration
}

// CloseEpoch resolves the current epoch with the oracle's payout vector and
// opens the next one. The reported payout numerators are normalized into base
// prices summing to exactly 1, with the rounding remainder assigned to the
// largest numerator. Blocked (rollover) supply is re-minted into period 1 of
// the next epoch as a single carrier pool held by the market account.
//
// Returns true when the close crossed the expiration epoch and the market is
// now expired.
func (m *Market) CloseEpoch(caller common.Address, payouts []sdkmath.Int) (bool, error) {
	if err := m.enter(); err != nil {
		return false, err
	}
	defer m.exit()
	if err := m.requireInitialized(); err != nil {
		return false, err
	}
	if m.expired {
		return false, fmt.Errorf("market %s: %w", m.cfg.ID, domain.ErrMarketExpired)
	}
	if caller != m.cfg.Oracle {
		return false, fmt.Errorf("market %s: close epoch: %w", m.cfg.ID, domain.ErrUnauthorized)
	}

	ep := m.epochs[m.currentEpoch]
	if ep.Resolved() {
		return false, fmt.Errorf("market %s: epoch %d: %w", m.cfg.ID, ep.Number, domain.ErrEpochAlreadyResolved)
	}
	if !m.epochFinished() {
		return false, fmt.Errorf("market %s: epoch %d: %w", m.cfg.ID, ep.Number, domain.ErrEpochNotFinished)
	}
	if len(payouts) != m.cfg.OutcomeSlotCount {
		return false, fmt.Errorf("market %s: close epoch: %w: %d payouts for %d slots",
			m.cfg.ID, domain.ErrLengthMismatch, len(payouts), m.cfg.OutcomeSlotCount)
	}

	den := sdkmath.ZeroInt()
	maxIdx := 0
	for i, p := range payouts {
		if p.IsNil() || p.IsNegative() {
			return false, fmt.Errorf("market %s: close epoch: outcome %d: %w", m.cfg.ID, i, domain.ErrNegativePayout)
		}
		if p.GT(payouts[maxIdx]) {
			maxIdx = i
		}
		den = den.Add(p)
	}
	if den.IsZero() {
		return false, fmt.Errorf("market %s: close epoch: %w", m.cfg.ID, domain.ErrZeroPayouts)
	}

	// Normalize to base prices. Truncation leaves a dust remainder; it goes
	// to the largest numerator so the vector sums to exactly 1.
	prices := make([]sdkmath.LegacyDec, len(payouts))
	sum := sdkmath.LegacyZeroDec()
	denDec := sdkmath.LegacyNewDecFromInt(den)
	for i, p := range payouts {
		prices[i] = sdkmath.LegacyNewDecFromInt(p).QuoTruncate(denDec)
		sum = sum.Add(prices[i])
	}
	prices[maxIdx] = prices[maxIdx].Add(sdkmath.LegacyOneDec().Sub(sum))

	// Gamma-weighted value of all tradable (non-blocked) supply: the
	// collateral this epoch owes to redeemers.
	totalPayout := sdkmath.ZeroInt()
	for o := 0; o < m.cfg.OutcomeSlotCount; o++ {
		for p := uint64(1); p <= m.cfg.PeriodsPerEpoch(); p++ {
			id := m.ledger.ID(ep.Number, p, o)
			tradable := m.ledger.TotalSupply(id).Sub(m.ledger.BlockedTotal(id))
			if !tradable.IsPositive() {
				continue
			}
			totalPayout = totalPayout.Add(m.shareValue(m.gammaWeight(tradable, p), prices[o]))
		}
	}

	next := ep.Number + 1
	now := m.now()

	// Roll the blocked supply forward: one gamma weighting at the period it
	// was blocked in, then a flat carrier position in period 1 of the next
	// epoch. The carrier pool is truncated per outcome, never per user, so it
	// always covers the sum of individual claims.
	fundingForRollover := sdkmath.ZeroInt()
	for o := 0; o < m.cfg.OutcomeSlotCount; o++ {
		rolled := sdkmath.ZeroInt()
		for p := uint64(1); p <= m.cfg.PeriodsPerEpoch(); p++ {
			blocked := m.ledger.BlockedTotal(m.ledger.ID(ep.Number, p, o))
			if blocked.IsPositive() {
				rolled = rolled.Add(m.gammaWeight(blocked, p))
			}
		}
		if !rolled.IsPositive() {
			continue
		}
		nid := m.ledger.ID(next, 1, o)
		if err := m.ledger.Mint(m.addr, nid, rolled); err != nil {
			return false, fmt.Errorf("market %s: roll outcome %d: %w", m.cfg.ID, o, err)
		}
		if err := m.ledger.Block(m.addr, nid, rolled); err != nil {
			return false, fmt.Errorf("market %s: roll outcome %d: %w", m.cfg.ID, o, err)
		}
		fundingForRollover = fundingForRollover.Add(m.shareValue(rolled, prices[o]))
	}

	closedAt := now
	ep.PayoutNumerators = payouts
	ep.PayoutDenominator = den
	ep.BasePrices = prices
	ep.TotalPayout = totalPayout
	ep.FundingForRollover = fundingForRollover
	ep.ClosedAt = &closedAt

	m.epochs[next] = &domain.Epoch{
		Number:             next,
		Start:              now,
		Funding:            ep.Funding.Sub(totalPayout),
		FundingForRollover: sdkmath.ZeroInt(),
		TotalPayout:        sdkmath.ZeroInt(),
		PayoutDenominator:  sdkmath.ZeroInt(),
	}
	m.currentEpoch = next
	m.currentPeriod = 1
	m.periodStart = now

	if m.cfg.ExpirationEpoch != 0 && m.currentEpoch > m.cfg.ExpirationEpoch {
		m.expired = true
		// The carrier pool still contains the bonded bootstrap inventory,
		// carried at face amount since period-1 weight is flat. No account
		// holds a reservation against it, so only the user-carried value
		// stays escrowed; everything else goes back to the owner, remaining
		// funding, accrued fees, and settlement dust alike.
		escrow := fundingForRollover
		for o, amt := range m.cfg.OutcomeTokenAmounts {
			escrow = escrow.Sub(m.shareValue(amt, prices[o]))
		}
		if escrow.IsNegative() {
			escrow = sdkmath.ZeroInt()
		}
		sweep := m.collateral.BalanceOf(m.addr).Sub(escrow)
		if sweep.IsPositive() {
			if err := m.collateral.Transfer(m.addr, m.cfg.Owner, sweep); err != nil {
				return true, fmt.Errorf("market %s: expiration sweep: %w", m.cfg.ID, err)
			}
		}
		m.feeAccrued = sdkmath.ZeroInt()
		return true, nil
	}
	return false, nil
}
