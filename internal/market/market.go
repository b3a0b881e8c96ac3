// Package market implements the perpetual LMSR market engine: the
// epoch/period scheduler, the trade/settlement orchestrator, and the
// payout/redemption calculator over the share ledger.
//
// A Market serializes its state-mutating entry points and guards them with an
// explicit reentrancy flag: the flag, not the mutex, is what rejects a
// collateral implementation calling back into the same market mid-operation.
// Every operation validates before it mutates; a failed call leaves no
// partial state.
package market

import (
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/perpamm/internal/domain"
	"github.com/alanyoungcy/perpamm/internal/ledger"
	"github.com/alanyoungcy/perpamm/internal/lmsr"
)

// schemaVersion tags persisted market state so schema evolution is an
// explicit migration.
const schemaVersion uint32 = 1

// Market is one perpetual prediction market instance.
type Market struct {
	cfg        domain.MarketConfig
	addr       common.Address
	collateral domain.Collateral
	ledger     *ledger.Ledger

	epochs        map[uint64]*domain.Epoch
	currentEpoch  uint64
	currentPeriod uint64
	periodStart   time.Time

	gammaPow   []sdkmath.Int // basis-point weight per period, index 0 = period 1
	feeAccrued sdkmath.Int

	initialized bool
	expired     bool

	now func() time.Time

	mu   sync.Mutex
	busy bool
}

// Option customizes a Market at construction.
type Option func(*Market)

// WithClock overrides the wall clock, used by tests to control period and
// epoch boundaries.
func WithClock(now func() time.Time) Option {
	return func(m *Market) { m.now = now }
}

// New validates the configuration and constructs an uninitialized market.
// Call Init to fund it and open epoch 1.
func New(cfg domain.MarketConfig, col domain.Collateral, opts ...Option) (*Market, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if col == nil {
		return nil, fmt.Errorf("market %s: collateral must not be nil", cfg.ID)
	}
	if col.Decimals() > 18 {
		return nil, fmt.Errorf("market %s: collateral decimals %d exceed 18", cfg.ID, col.Decimals())
	}

	m := &Market{
		cfg:        cfg,
		addr:       deriveAddress(cfg.ID),
		collateral: col,
		ledger:     ledger.New(cfg.PeriodsPerEpoch(), cfg.OutcomeSlotCount),
		epochs:     make(map[uint64]*domain.Epoch),
		gammaPow:   buildGammaPow(cfg.GammaBps, cfg.PeriodsPerEpoch()),
		feeAccrued: sdkmath.ZeroInt(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// deriveAddress is the reserved account under which the market holds its own
// bonded inventory and rollover carrier pool.
func deriveAddress(marketID string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("perpamm/market/" + marketID))[12:])
}

// buildGammaPow precomputes the per-period decay multipliers:
// gammaPow[0] = 10000, gammaPow[i] = gammaPow[i-1]*gamma/10000.
func buildGammaPow(gammaBps uint32, periods uint64) []sdkmath.Int {
	out := make([]sdkmath.Int, periods)
	out[0] = sdkmath.NewInt(domain.BpsDenominator)
	for i := uint64(1); i < periods; i++ {
		out[i] = out[i-1].MulRaw(int64(gammaBps)).QuoRaw(domain.BpsDenominator)
	}
	return out
}

// Init applies the configuration: it pulls the start funding from the owner,
// mints the bonded bootstrap inventory into period 1 of epoch 1, and opens
// the market. Initializing an already-initialized market is a no-op.
func (m *Market) Init() error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()

	if m.initialized {
		return nil
	}

	if err := m.collateral.TransferFrom(m.addr, m.cfg.Owner, m.addr, m.cfg.StartFunding); err != nil {
		return fmt.Errorf("market %s: pull start funding: %w", m.cfg.ID, err)
	}

	start := m.now()
	m.epochs[1] = &domain.Epoch{
		Number:             1,
		Start:              start,
		Funding:            m.cfg.StartFunding,
		FundingForRollover: sdkmath.ZeroInt(),
		TotalPayout:        sdkmath.ZeroInt(),
		PayoutDenominator:  sdkmath.ZeroInt(),
	}
	m.currentEpoch = 1
	m.currentPeriod = 1
	m.periodStart = start

	// The bonded inventory is just another ledger account, reserved via the
	// blocked maps so it never counts as redeemable supply.
	for i, amt := range m.cfg.OutcomeTokenAmounts {
		id := m.ledger.ID(1, 1, i)
		if err := m.ledger.Mint(m.addr, id, amt); err != nil {
			return fmt.Errorf("market %s: mint bootstrap outcome %d: %w", m.cfg.ID, i, err)
		}
		if err := m.ledger.Block(m.addr, id, amt); err != nil {
			return fmt.Errorf("market %s: block bootstrap outcome %d: %w", m.cfg.ID, i, err)
		}
	}

	m.initialized = true
	return nil
}

// enter acquires the reentrancy guard. The mutex is held only to flip the
// flag, so a reentrant call observes busy=true and fails instead of
// deadlocking.
func (m *Market) enter() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return fmt.Errorf("market %s: %w", m.cfg.ID, domain.ErrReentrancy)
	}
	m.busy = true
	return nil
}

func (m *Market) exit() {
	m.mu.Lock()
	m.busy = false
	m.mu.Unlock()
}

func (m *Market) requireInitialized() error {
	if !m.initialized {
		return fmt.Errorf("market %s: %w", m.cfg.ID, domain.ErrNotInitialized)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Unit conversion. Pricing math is 18-decimal fixed point; shares are
// integers at the outcome-token precision and collateral at its own
// precision. Conversions live here and nowhere else.
// ---------------------------------------------------------------------------

func pow10(n uint32) sdkmath.Int {
	out := sdkmath.OneInt()
	ten := sdkmath.NewInt(10)
	for i := uint32(0); i < n; i++ {
		out = out.Mul(ten)
	}
	return out
}

// outcomeDec converts an outcome-token amount to its fixed-point value.
func (m *Market) outcomeDec(amount sdkmath.Int) sdkmath.LegacyDec {
	return sdkmath.LegacyNewDecFromInt(amount).QuoInt(pow10(m.cfg.Decimals))
}

// collateralFromValue converts a fixed-point collateral value to collateral
// base units. Rounding up is used when the market is owed the amount.
func (m *Market) collateralFromValue(v sdkmath.LegacyDec, roundUp bool) sdkmath.Int {
	scaled := v.MulInt(pow10(m.collateral.Decimals()))
	if roundUp {
		return scaled.Ceil().TruncateInt()
	}
	return scaled.TruncateInt()
}

// shareValue prices an outcome-token amount at a base price, in collateral
// base units (truncated).
func (m *Market) shareValue(amount sdkmath.Int, price sdkmath.LegacyDec) sdkmath.Int {
	return price.MulInt(amount).
		MulInt(pow10(m.collateral.Decimals())).
		QuoInt(pow10(m.cfg.Decimals)).
		TruncateInt()
}

// gammaWeight applies the decay multiplier of the given 1-based period.
func (m *Market) gammaWeight(amount sdkmath.Int, period uint64) sdkmath.Int {
	return amount.Mul(m.gammaPow[period-1]).QuoRaw(domain.BpsDenominator)
}

// ---------------------------------------------------------------------------
// Views
// ---------------------------------------------------------------------------

// Config returns the immutable market configuration.
func (m *Market) Config() domain.MarketConfig { return m.cfg }

// Address returns the market's reserved ledger/collateral account.
func (m *Market) Address() common.Address { return m.addr }

// State returns a persistable snapshot of the mutable market state.
func (m *Market) State() (domain.MarketRecord, error) {
	if err := m.enter(); err != nil {
		return domain.MarketRecord{}, err
	}
	defer m.exit()
	return domain.MarketRecord{
		ID:                 m.cfg.ID,
		Question:           m.cfg.Question,
		OutcomeSlotCount:   m.cfg.OutcomeSlotCount,
		FeeBps:             m.cfg.FeeBps,
		ExpirationEpoch:    m.cfg.ExpirationEpoch,
		CurrentEpoch:       m.currentEpoch,
		CurrentPeriod:      m.currentPeriod,
		PeriodStart:        m.periodStart,
		FeeAccrued:         m.feeAccrued,
		CollateralDecimals: m.collateral.Decimals(),
		Expired:            m.expired,
		Version:            schemaVersion,
		UpdatedAt:          m.now(),
	}, nil
}

// EpochInfo returns a copy of the given epoch.
func (m *Market) EpochInfo(number uint64) (domain.Epoch, error) {
	if err := m.enter(); err != nil {
		return domain.Epoch{}, err
	}
	defer m.exit()
	ep, ok := m.epochs[number]
	if !ok {
		return domain.Epoch{}, fmt.Errorf("market %s: epoch %d: %w", m.cfg.ID, number, domain.ErrNotFound)
	}
	return *ep, nil
}

// Epochs returns copies of every epoch up to and including the current one.
func (m *Market) Epochs() ([]domain.Epoch, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	defer m.exit()
	out := make([]domain.Epoch, 0, m.currentEpoch)
	for n := uint64(1); n <= m.currentEpoch; n++ {
		if ep, ok := m.epochs[n]; ok {
			out = append(out, *ep)
		}
	}
	return out, nil
}

// LedgerEntries returns the full share ledger as persistable records.
func (m *Market) LedgerEntries() ([]domain.ShareBalance, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	defer m.exit()
	return m.ledger.Entries(), nil
}

// Positions returns an account's non-zero holdings, free and blocked, across
// all epochs up to the current one.
func (m *Market) Positions(acct common.Address) ([]domain.PositionEntry, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	defer m.exit()

	var out []domain.PositionEntry
	for e := uint64(1); e <= m.currentEpoch; e++ {
		for p := uint64(1); p <= m.cfg.PeriodsPerEpoch(); p++ {
			for o := 0; o < m.cfg.OutcomeSlotCount; o++ {
				id := m.ledger.ID(e, p, o)
				free := m.ledger.BalanceOf(acct, id)
				blocked := m.ledger.BlockedOf(acct, id)
				if free.IsZero() && blocked.IsZero() {
					continue
				}
				out = append(out, domain.PositionEntry{
					Epoch: e, Period: p, Outcome: o, Free: free, Blocked: blocked,
				})
			}
		}
	}
	return out, nil
}

// aggregateSupplies returns the per-outcome supply of the current epoch as
// fixed-point quantities for the pricing engine.
func (m *Market) aggregateSupplies() []sdkmath.LegacyDec {
	q := make([]sdkmath.LegacyDec, m.cfg.OutcomeSlotCount)
	for i := range q {
		q[i] = m.outcomeDec(m.ledger.AggregateSupply(m.currentEpoch, i, m.currentPeriod))
	}
	return q
}

// MarginalPrices returns the current price of every outcome.
func (m *Market) MarginalPrices() ([]sdkmath.LegacyDec, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	defer m.exit()
	if err := m.requireInitialized(); err != nil {
		return nil, err
	}

	q := m.aggregateSupplies()
	prices := make([]sdkmath.LegacyDec, len(q))
	for i := range q {
		p, err := lmsr.MarginalPrice(q, i, m.cfg.Alpha, m.cfg.ExpLimit)
		if err != nil {
			return nil, err
		}
		prices[i] = p
	}
	return prices, nil
}

// Restore replaces the engine's mutable state from persisted records. Used
// at startup to resume a market from the durable stores.
func (m *Market) Restore(rec domain.MarketRecord, epochs []domain.Epoch, shares []domain.ShareBalance) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()

	if rec.Version != schemaVersion {
		return fmt.Errorf("market %s: unsupported state version %d (want %d)", m.cfg.ID, rec.Version, schemaVersion)
	}
	if rec.ID != m.cfg.ID {
		return fmt.Errorf("market %s: snapshot belongs to market %s", m.cfg.ID, rec.ID)
	}

	m.epochs = make(map[uint64]*domain.Epoch, len(epochs))
	for i := range epochs {
		ep := epochs[i]
		m.epochs[ep.Number] = &ep
	}
	if _, ok := m.epochs[rec.CurrentEpoch]; !ok {
		return fmt.Errorf("market %s: snapshot missing current epoch %d", m.cfg.ID, rec.CurrentEpoch)
	}

	m.ledger.Restore(shares)
	m.currentEpoch = rec.CurrentEpoch
	m.currentPeriod = rec.CurrentPeriod
	m.periodStart = rec.PeriodStart
	m.feeAccrued = rec.FeeAccrued
	m.expired = rec.Expired
	m.initialized = true
	return nil
}
