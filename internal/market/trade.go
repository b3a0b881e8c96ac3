package market

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/alanyoungcy/perpamm/internal/domain"
	"github.com/alanyoungcy/perpamm/internal/lmsr"
)

// burnOp is one planned debit against a specific share id. Sells are planned
// in full, against live balances, before anything is mutated.
type burnOp struct {
	id     uint64
	amount sdkmath.Int
}

// MakePrediction executes a trade against the active epoch. Positive deltas
// buy outcome shares into the current period, negative deltas sell from the
// caller's holdings, earliest period first. A rollover trade settles against
// the caller's blocked balance and parks the bought shares in the market's
// carrier account, reserved for the caller, so they survive the epoch close.
//
// The collateral pull happens before any ledger mutation; a trade that fails
// at any stage leaves both ledgers untouched.
func (m *Market) MakePrediction(req domain.TradeRequest) (domain.Trade, error) {
	var none domain.Trade
	if err := m.enter(); err != nil {
		return none, err
	}
	defer m.exit()
	if err := m.requireInitialized(); err != nil {
		return none, err
	}
	if m.expired || (m.cfg.ExpirationEpoch != 0 && m.currentEpoch > m.cfg.ExpirationEpoch) {
		return none, fmt.Errorf("market %s: %w", m.cfg.ID, domain.ErrMarketExpired)
	}

	ep := m.epochs[m.currentEpoch]
	if ep.Resolved() {
		return none, fmt.Errorf("market %s: epoch %d: %w", m.cfg.ID, ep.Number, domain.ErrEpochAlreadyResolved)
	}
	if req.Rollover && m.cfg.ExpirationEpoch != 0 && m.currentEpoch+1 == m.cfg.ExpirationEpoch {
		return none, fmt.Errorf("market %s: %w", m.cfg.ID, domain.ErrRolloverAfterExpiration)
	}
	if err := m.advancePeriod(); err != nil {
		return none, err
	}
	if len(req.Deltas) != m.cfg.OutcomeSlotCount {
		return none, fmt.Errorf("market %s: trade: %w: %d deltas for %d slots",
			m.cfg.ID, domain.ErrLengthMismatch, len(req.Deltas), m.cfg.OutcomeSlotCount)
	}
	for i, d := range req.Deltas {
		if d.IsNil() {
			return none, fmt.Errorf("market %s: trade: outcome %d: %w", m.cfg.ID, i, domain.ErrInvalidAmount)
		}
	}

	burns, err := m.planBurns(req)
	if err != nil {
		return none, err
	}

	q := m.aggregateSupplies()
	dq := make([]sdkmath.LegacyDec, len(req.Deltas))
	for i, d := range req.Deltas {
		dq[i] = m.outcomeDec(d)
	}
	costDec, err := lmsr.NetCost(q, dq, m.cfg.Alpha, m.cfg.ExpLimit)
	if err != nil {
		return none, fmt.Errorf("market %s: trade: %w", m.cfg.ID, err)
	}

	// Settlement amounts in collateral base units. Rounding always favors
	// the market: cost is rounded up, payout truncated.
	netCost := sdkmath.ZeroInt()
	gross := sdkmath.ZeroInt()
	fee := sdkmath.ZeroInt()
	payoutNet := sdkmath.ZeroInt()
	switch {
	case costDec.IsPositive():
		netCost = m.collateralFromValue(costDec, true)
		div := int64(domain.BpsDenominator - m.cfg.FeeBps)
		gross = netCost.MulRaw(domain.BpsDenominator).AddRaw(div - 1).QuoRaw(div)
		fee = gross.Sub(netCost)
		if m.collateral.BalanceOf(req.Trader).LT(gross) {
			return none, fmt.Errorf("market %s: trade costs %s collateral: %w",
				m.cfg.ID, gross, domain.ErrInsufficientBalance)
		}
	case costDec.IsNegative():
		payout := m.collateralFromValue(costDec.Neg(), false)
		netCost = payout.Neg()
		fee = payout.MulRaw(int64(m.cfg.FeeBps)).QuoRaw(domain.BpsDenominator)
		payoutNet = payout.Sub(fee)
	}

	if gross.IsPositive() {
		if err := m.collateral.TransferFrom(m.addr, req.Trader, m.addr, gross); err != nil {
			return none, fmt.Errorf("market %s: pull trade cost: %w", m.cfg.ID, err)
		}
	}

	// Past this point nothing can fail: amounts were validated against live
	// balances and the ledger only rejects overdrafts.
	for i, d := range req.Deltas {
		if !d.IsPositive() {
			continue
		}
		id := m.ledger.ID(m.currentEpoch, m.currentPeriod, i)
		if req.Rollover {
			_ = m.ledger.Mint(m.addr, id, d)
			_ = m.ledger.Block(req.Trader, id, d)
		} else {
			_ = m.ledger.Mint(req.Trader, id, d)
		}
	}
	for _, b := range burns {
		if req.Rollover {
			_ = m.ledger.Unblock(req.Trader, b.id, b.amount)
			_ = m.ledger.Burn(m.addr, b.id, b.amount)
		} else {
			_ = m.ledger.Burn(req.Trader, b.id, b.amount)
		}
	}

	switch {
	case netCost.IsPositive():
		ep.Funding = ep.Funding.Add(netCost)
		m.feeAccrued = m.feeAccrued.Add(fee)
	case netCost.IsNegative():
		ep.Funding = ep.Funding.Add(netCost)
		m.feeAccrued = m.feeAccrued.Add(fee)
		if payoutNet.IsPositive() {
			if err := m.collateral.Transfer(m.addr, req.Trader, payoutNet); err != nil {
				return none, fmt.Errorf("market %s: pay trade proceeds: %w", m.cfg.ID, err)
			}
		}
	}

	return domain.Trade{
		MarketID:  m.cfg.ID,
		Trader:    req.Trader,
		Epoch:     m.currentEpoch,
		Period:    m.currentPeriod,
		Deltas:    req.Deltas,
		NetCost:   netCost,
		Fee:       fee,
		Rollover:  req.Rollover,
		CreatedAt: m.now(),
	}, nil
}

// planBurns resolves every negative delta into concrete share-id debits,
// consuming the earliest periods first, and fails if the caller's available
// balance does not cover the sell.
func (m *Market) planBurns(req domain.TradeRequest) ([]burnOp, error) {
	var burns []burnOp
	for i, d := range req.Deltas {
		if !d.IsNegative() {
			continue
		}
		need := d.Neg()
		for p := uint64(1); p <= m.cfg.PeriodsPerEpoch() && need.IsPositive(); p++ {
			id := m.ledger.ID(m.currentEpoch, p, i)
			var avail sdkmath.Int
			if req.Rollover {
				avail = m.ledger.BlockedOf(req.Trader, id)
			} else {
				avail = m.ledger.BalanceOf(req.Trader, id)
			}
			if !avail.IsPositive() {
				continue
			}
			take := sdkmath.MinInt(avail, need)
			burns = append(burns, burnOp{id: id, amount: take})
			need = need.Sub(take)
		}
		if need.IsPositive() {
			return nil, fmt.Errorf("market %s: sell outcome %d short %s shares: %w",
				m.cfg.ID, i, need, domain.ErrInsufficientBalance)
		}
	}
	return burns, nil
}

// QuoteNetCost prices a hypothetical trade without executing it. It returns
// the raw net cost and the fee the trade would carry, both in collateral base
// units and signed from the trader's perspective.
func (m *Market) QuoteNetCost(deltas []sdkmath.Int) (netCost, fee sdkmath.Int, err error) {
	none := sdkmath.ZeroInt()
	if err := m.enter(); err != nil {
		return none, none, err
	}
	defer m.exit()
	if err := m.requireInitialized(); err != nil {
		return none, none, err
	}
	if len(deltas) != m.cfg.OutcomeSlotCount {
		return none, none, fmt.Errorf("market %s: quote: %w: %d deltas for %d slots",
			m.cfg.ID, domain.ErrLengthMismatch, len(deltas), m.cfg.OutcomeSlotCount)
	}

	q := m.aggregateSupplies()
	dq := make([]sdkmath.LegacyDec, len(deltas))
	for i, d := range deltas {
		if d.IsNil() {
			return none, none, fmt.Errorf("market %s: quote: outcome %d: %w", m.cfg.ID, i, domain.ErrInvalidAmount)
		}
		dq[i] = m.outcomeDec(d)
	}
	costDec, err := lmsr.NetCost(q, dq, m.cfg.Alpha, m.cfg.ExpLimit)
	if err != nil {
		return none, none, fmt.Errorf("market %s: quote: %w", m.cfg.ID, err)
	}

	switch {
	case costDec.IsPositive():
		raw := m.collateralFromValue(costDec, true)
		div := int64(domain.BpsDenominator - m.cfg.FeeBps)
		gross := raw.MulRaw(domain.BpsDenominator).AddRaw(div - 1).QuoRaw(div)
		return raw, gross.Sub(raw), nil
	case costDec.IsNegative():
		payout := m.collateralFromValue(costDec.Neg(), false)
		return payout.Neg(), payout.MulRaw(int64(m.cfg.FeeBps)).QuoRaw(domain.BpsDenominator), nil
	}
	return none, none, nil
}
