package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpamm/internal/collateral"
	"github.com/alanyoungcy/perpamm/internal/domain"
	"github.com/alanyoungcy/perpamm/internal/market"
)

var (
	owner  = common.HexToAddress("0x0000000000000000000000000000000000000011")
	oracle = common.HexToAddress("0x0000000000000000000000000000000000000022")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

// In-memory store fakes. They record what the service persists so tests can
// assert the durable mirror without a database.

type memMarketStore struct {
	rec   domain.MarketRecord
	saved int
}

func (m *memMarketStore) Upsert(_ context.Context, rec domain.MarketRecord) error {
	m.rec = rec
	m.saved++
	return nil
}

func (m *memMarketStore) GetByID(_ context.Context, id string) (domain.MarketRecord, error) {
	if m.saved == 0 || m.rec.ID != id {
		return domain.MarketRecord{}, domain.ErrNotFound
	}
	return m.rec, nil
}

func (m *memMarketStore) List(_ context.Context) ([]domain.MarketRecord, error) {
	if m.saved == 0 {
		return nil, nil
	}
	return []domain.MarketRecord{m.rec}, nil
}

type memEpochStore struct {
	epochs map[uint64]domain.Epoch
}

func (m *memEpochStore) Upsert(_ context.Context, _ string, ep domain.Epoch) error {
	if m.epochs == nil {
		m.epochs = map[uint64]domain.Epoch{}
	}
	m.epochs[ep.Number] = ep
	return nil
}

func (m *memEpochStore) Get(_ context.Context, _ string, number uint64) (domain.Epoch, error) {
	ep, ok := m.epochs[number]
	if !ok {
		return domain.Epoch{}, domain.ErrNotFound
	}
	return ep, nil
}

func (m *memEpochStore) ListByMarket(_ context.Context, _ string, _ domain.ListOpts) ([]domain.Epoch, error) {
	out := make([]domain.Epoch, 0, len(m.epochs))
	for _, ep := range m.epochs {
		out = append(out, ep)
	}
	return out, nil
}

type memTradeStore struct {
	trades []domain.Trade
}

func (m *memTradeStore) Insert(_ context.Context, t domain.Trade) error {
	m.trades = append(m.trades, t)
	return nil
}

func (m *memTradeStore) ListByMarket(_ context.Context, _ string, _ domain.ListOpts) ([]domain.Trade, error) {
	return m.trades, nil
}

func (m *memTradeStore) ListByEpoch(_ context.Context, _ string, epoch uint64) ([]domain.Trade, error) {
	var out []domain.Trade
	for _, t := range m.trades {
		if t.Epoch == epoch {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTradeStore) ListByTrader(_ context.Context, _ string, trader common.Address, _ domain.ListOpts) ([]domain.Trade, error) {
	var out []domain.Trade
	for _, t := range m.trades {
		if t.Trader == trader {
			out = append(out, t)
		}
	}
	return out, nil
}

type memShareStore struct {
	entries []domain.ShareBalance
	saves   int
}

func (m *memShareStore) SaveSnapshot(_ context.Context, _ string, entries []domain.ShareBalance) error {
	m.entries = entries
	m.saves++
	return nil
}

func (m *memShareStore) LoadSnapshot(_ context.Context, _ string) ([]domain.ShareBalance, error) {
	return m.entries, nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type svcFixture struct {
	svc     *MarketService
	bank    *collateral.Bank
	clock   *fakeClock
	cfg     domain.MarketConfig
	markets *memMarketStore
	epochs  *memEpochStore
	trades  *memTradeStore
	shares  *memShareStore
}

func newSvcFixture(t *testing.T) *svcFixture {
	t.Helper()

	cfg := domain.MarketConfig{
		ID:               "btc-daily",
		Question:         "Will BTC close the day up?",
		Owner:            owner,
		Oracle:           oracle,
		OutcomeSlotCount: 2,
		StartFunding:     sdkmath.NewInt(1_000_000_000),
		OutcomeTokenAmounts: []sdkmath.Int{
			sdkmath.NewInt(500_000_000),
			sdkmath.NewInt(500_000_000),
		},
		FeeBps:         100,
		Alpha:          sdkmath.LegacyMustNewDecFromStr("0.03"),
		ExpLimit:       sdkmath.LegacyMustNewDecFromStr("130"),
		Decimals:       6,
		GammaBps:       9000,
		EpochDuration:  24 * time.Hour,
		PeriodDuration: time.Hour,
	}

	bank := collateral.NewBank("USDC", 6)
	clock := &fakeClock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}

	engine, err := market.New(cfg, bank, market.WithClock(clock.Now))
	require.NoError(t, err)

	require.NoError(t, bank.Mint(owner, cfg.StartFunding))
	require.NoError(t, bank.Approve(owner, engine.Address(), cfg.StartFunding))
	require.NoError(t, engine.Init())

	seed := sdkmath.NewInt(100_000_000_000)
	require.NoError(t, bank.Mint(alice, seed))
	require.NoError(t, bank.Approve(alice, engine.Address(), seed))

	f := &svcFixture{
		bank:    bank,
		clock:   clock,
		cfg:     cfg,
		markets: &memMarketStore{},
		epochs:  &memEpochStore{},
		trades:  &memTradeStore{},
		shares:  &memShareStore{},
	}
	f.svc = NewMarketService(Deps{
		Engine:       engine,
		Markets:      f.markets,
		Epochs:       f.epochs,
		Trades:       f.trades,
		Shares:       f.shares,
		Faucet:       bank,
		FaucetAmount: sdkmath.NewInt(10_000_000),
		Logger:       slog.New(slog.DiscardHandler),
	})
	f.svc.now = clock.Now
	return f
}

func buyRequest(outcome int, amount int64) domain.TradeRequest {
	deltas := []sdkmath.Int{sdkmath.ZeroInt(), sdkmath.ZeroInt()}
	deltas[outcome] = sdkmath.NewInt(amount)
	return domain.TradeRequest{Trader: alice, Deltas: deltas}
}

func TestTradeAssignsIDAndPersists(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	tr, err := f.svc.Trade(ctx, buyRequest(0, 100_000_000))
	require.NoError(t, err)

	require.NotEmpty(t, tr.ID)
	require.Equal(t, "btc-daily", tr.MarketID)
	require.Equal(t, f.clock.Now().UTC(), tr.CreatedAt)

	require.Len(t, f.trades.trades, 1)
	require.Equal(t, tr.ID, f.trades.trades[0].ID)
	require.Equal(t, 1, f.markets.saved)
	require.Equal(t, uint64(1), f.markets.rec.CurrentEpoch)
	require.NotEmpty(t, f.shares.entries)
	require.Contains(t, f.epochs.epochs, uint64(1))
}

func TestTradeIDsAreUnique(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	a, err := f.svc.Trade(ctx, buyRequest(0, 10_000_000))
	require.NoError(t, err)
	b, err := f.svc.Trade(ctx, buyRequest(1, 10_000_000))
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)
}

func TestTradeRejectionLeavesStoresUntouched(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	_, err := f.svc.Trade(ctx, domain.TradeRequest{
		Trader: alice,
		Deltas: []sdkmath.Int{sdkmath.NewInt(1)}, // wrong length
	})
	require.ErrorIs(t, err, domain.ErrLengthMismatch)
	require.Empty(t, f.trades.trades)
	require.Zero(t, f.markets.saved)
}

func TestQuoteDoesNotPersist(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	netCost, fee, err := f.svc.Quote(ctx, []sdkmath.Int{sdkmath.NewInt(100_000_000), sdkmath.ZeroInt()})
	require.NoError(t, err)
	require.True(t, netCost.IsPositive())
	require.True(t, fee.IsPositive())
	require.Zero(t, f.markets.saved)
}

func TestCloseEpochPersistsResolution(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	_, err := f.svc.Trade(ctx, buyRequest(0, 100_000_000))
	require.NoError(t, err)

	f.clock.Advance(f.cfg.EpochDuration)
	expired, err := f.svc.CloseEpoch(ctx, oracle, []sdkmath.Int{sdkmath.NewInt(1), sdkmath.ZeroInt()})
	require.NoError(t, err)
	require.False(t, expired)

	require.Equal(t, uint64(2), f.markets.rec.CurrentEpoch)
	ep1, ok := f.epochs.epochs[uint64(1)]
	require.True(t, ok)
	require.True(t, ep1.Resolved())
	require.Contains(t, f.epochs.epochs, uint64(2))
}

func TestCloseEpochRejectsNonOracle(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	f.clock.Advance(f.cfg.EpochDuration)
	_, err := f.svc.CloseEpoch(ctx, alice, []sdkmath.Int{sdkmath.NewInt(1), sdkmath.ZeroInt()})
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRedeemRoundTrip(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	_, err := f.svc.Trade(ctx, buyRequest(0, 100_000_000))
	require.NoError(t, err)

	f.clock.Advance(f.cfg.EpochDuration)
	_, err = f.svc.CloseEpoch(ctx, oracle, []sdkmath.Int{sdkmath.NewInt(1), sdkmath.ZeroInt()})
	require.NoError(t, err)

	before := f.bank.BalanceOf(alice)
	paid, err := f.svc.Redeem(ctx, alice, 1)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(100_000_000), paid)
	require.Equal(t, before.Add(paid), f.bank.BalanceOf(alice))
}

func TestListTradesByTrader(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	_, err := f.svc.Trade(ctx, buyRequest(0, 10_000_000))
	require.NoError(t, err)

	mine, err := f.svc.ListTradesByTrader(ctx, alice, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, mine, 1)

	other, err := f.svc.ListTradesByTrader(ctx, owner, domain.ListOpts{})
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestFaucetMintsAndApproves(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	fresh := common.HexToAddress("0x00000000000000000000000000000000000000c3")
	amount, err := f.svc.Faucet(ctx, fresh)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(10_000_000), amount)
	require.Equal(t, amount, f.bank.BalanceOf(fresh))

	// The recipient can trade without a manual approval step.
	_, err = f.svc.Trade(ctx, domain.TradeRequest{
		Trader: fresh,
		Deltas: []sdkmath.Int{sdkmath.NewInt(1_000_000), sdkmath.ZeroInt()},
	})
	require.NoError(t, err)
}

func TestAdminFlowsPersist(t *testing.T) {
	f := newSvcFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.ChangeFee(ctx, owner, 250))
	require.Equal(t, uint32(250), f.markets.rec.FeeBps)

	_, err := f.svc.Trade(ctx, buyRequest(0, 100_000_000))
	require.NoError(t, err)

	withdrawn, err := f.svc.WithdrawFee(ctx, owner)
	require.NoError(t, err)
	require.True(t, withdrawn.IsPositive())
	require.Equal(t, "0", f.markets.rec.FeeAccrued.String())
}
