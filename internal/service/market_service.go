// Package service orchestrates the market engine against the persistence,
// cache, and messaging layers. The engine itself is synchronous and
// single-market; the service serializes mutating calls through a lock manager
// and mirrors every state change into the durable stores.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/perpamm/internal/domain"
	"github.com/alanyoungcy/perpamm/internal/market"
)

// Pub/Sub channels the service publishes on.
const (
	ChannelPrices = "prices"
	ChannelTrades = "trades"
	ChannelEpochs = "epochs"
	ChannelStatus = "status"
)

// lockTTL bounds how long a crashed replica can keep the market lock.
const lockTTL = 10 * time.Second

// FaucetBank is the slice of the collateral bank the faucet needs.
type FaucetBank interface {
	Mint(to common.Address, amount sdkmath.Int) error
	Approve(owner, spender common.Address, amount sdkmath.Int) error
	BalanceOf(account common.Address) sdkmath.Int
}

// MarketService exposes every market operation to the transport layer. All
// optional dependencies (prices, locks, bus, audit, faucet) may be nil; the
// service degrades to in-process operation without them.
type MarketService struct {
	engine *market.Market

	markets domain.MarketStore
	epochs  domain.EpochStore
	trades  domain.TradeStore
	shares  domain.ShareStore
	audit   domain.AuditStore

	prices domain.PriceCache
	locks  domain.LockManager
	bus    domain.SignalBus

	faucet       FaucetBank
	faucetAmount sdkmath.Int

	logger *slog.Logger
	now    func() time.Time
}

// Deps bundles the service dependencies. Engine, stores and logger are
// required; everything else is optional.
type Deps struct {
	Engine *market.Market

	Markets domain.MarketStore
	Epochs  domain.EpochStore
	Trades  domain.TradeStore
	Shares  domain.ShareStore
	Audit   domain.AuditStore

	Prices domain.PriceCache
	Locks  domain.LockManager
	Bus    domain.SignalBus

	Faucet       FaucetBank
	FaucetAmount sdkmath.Int

	Logger *slog.Logger
}

// NewMarketService creates a MarketService from its dependencies.
func NewMarketService(d Deps) *MarketService {
	return &MarketService{
		engine:       d.Engine,
		markets:      d.Markets,
		epochs:       d.Epochs,
		trades:       d.Trades,
		shares:       d.Shares,
		audit:        d.Audit,
		prices:       d.Prices,
		locks:        d.Locks,
		bus:          d.Bus,
		faucet:       d.Faucet,
		faucetAmount: d.FaucetAmount,
		logger:       d.Logger,
		now:          time.Now,
	}
}

// MarketID returns the identifier of the market this service fronts.
func (s *MarketService) MarketID() string {
	return s.engine.Config().ID
}

// lock acquires the per-market mutation lock. Without a lock manager it
// returns a no-op release.
func (s *MarketService) lock(ctx context.Context) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	unlock, err := s.locks.Acquire(ctx, "market:"+s.MarketID(), lockTTL)
	if err != nil {
		return nil, fmt.Errorf("market_service: acquire lock: %w", err)
	}
	return unlock, nil
}

// persist mirrors the full engine state into the durable stores. Called after
// every successful mutation; a persistence failure is surfaced to the caller
// because the durable state would otherwise diverge from memory.
func (s *MarketService) persist(ctx context.Context) error {
	rec, err := s.engine.State()
	if err != nil {
		return fmt.Errorf("market_service: snapshot state: %w", err)
	}
	if err := s.markets.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("market_service: persist market: %w", err)
	}

	epochs, err := s.engine.Epochs()
	if err != nil {
		return fmt.Errorf("market_service: snapshot epochs: %w", err)
	}
	for _, ep := range epochs {
		if err := s.epochs.Upsert(ctx, rec.ID, ep); err != nil {
			return fmt.Errorf("market_service: persist epoch %d: %w", ep.Number, err)
		}
	}

	entries, err := s.engine.LedgerEntries()
	if err != nil {
		return fmt.Errorf("market_service: snapshot ledger: %w", err)
	}
	if err := s.shares.SaveSnapshot(ctx, rec.ID, entries); err != nil {
		return fmt.Errorf("market_service: persist ledger: %w", err)
	}
	return nil
}

// publish sends an event on the signal bus, logging but not failing on error.
func (s *MarketService) publish(ctx context.Context, channel string, event map[string]any) {
	if s.bus == nil {
		return
	}
	payload, _ := json.Marshal(event)
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "market_service: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// auditLog writes an audit entry, logging but not failing on error.
func (s *MarketService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "market_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// refreshPrices recomputes marginal prices, mirrors them into the cache, and
// publishes them. Failures are non-fatal; the next mutation refreshes again.
func (s *MarketService) refreshPrices(ctx context.Context) {
	prices, err := s.engine.MarginalPrices()
	if err != nil {
		s.logger.WarnContext(ctx, "market_service: price refresh failed",
			slog.String("error", err.Error()))
		return
	}
	if s.prices != nil {
		if err := s.prices.SetPrices(ctx, s.MarketID(), prices, s.now()); err != nil {
			s.logger.WarnContext(ctx, "market_service: price cache set failed",
				slog.String("error", err.Error()))
		}
	}
	strs := make([]string, len(prices))
	for i, p := range prices {
		strs[i] = p.String()
	}
	s.publish(ctx, ChannelPrices, map[string]any{
		"event":  "prices",
		"market": s.MarketID(),
		"prices": strs,
	})
}

// Trade executes a prediction, persists the result, and broadcasts it.
func (s *MarketService) Trade(ctx context.Context, req domain.TradeRequest) (domain.Trade, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return domain.Trade{}, err
	}
	defer unlock()

	trade, err := s.engine.MakePrediction(req)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("market_service: trade: %w", err)
	}
	trade.ID = uuid.NewString()
	trade.MarketID = s.MarketID()
	trade.CreatedAt = s.now().UTC()

	if err := s.trades.Insert(ctx, trade); err != nil {
		return domain.Trade{}, fmt.Errorf("market_service: persist trade: %w", err)
	}
	if err := s.persist(ctx); err != nil {
		return domain.Trade{}, err
	}

	s.refreshPrices(ctx)
	s.publish(ctx, ChannelTrades, map[string]any{
		"event":    "trade",
		"trade_id": trade.ID,
		"market":   trade.MarketID,
		"trader":   trade.Trader.Hex(),
		"epoch":    trade.Epoch,
		"period":   trade.Period,
		"net_cost": trade.NetCost.String(),
		"fee":      trade.Fee.String(),
		"rollover": trade.Rollover,
	})
	s.auditLog(ctx, "trade", map[string]any{
		"trade_id": trade.ID,
		"trader":   trade.Trader.Hex(),
		"net_cost": trade.NetCost.String(),
	})

	s.logger.InfoContext(ctx, "market_service: trade executed",
		slog.String("trade_id", trade.ID),
		slog.String("trader", trade.Trader.Hex()),
		slog.Uint64("epoch", trade.Epoch),
		slog.Uint64("period", trade.Period),
		slog.String("net_cost", trade.NetCost.String()),
	)
	return trade, nil
}

// Quote prices a trade without executing it.
func (s *MarketService) Quote(ctx context.Context, deltas []sdkmath.Int) (netCost, fee sdkmath.Int, err error) {
	netCost, fee, err = s.engine.QuoteNetCost(deltas)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("market_service: quote: %w", err)
	}
	return netCost, fee, nil
}

// Prices returns the current marginal price vector, preferring the cache and
// falling back to the engine on a miss.
func (s *MarketService) Prices(ctx context.Context) ([]sdkmath.LegacyDec, error) {
	if s.prices != nil {
		cached, _, err := s.prices.GetPrices(ctx, s.MarketID())
		if err == nil {
			return cached, nil
		}
	}
	prices, err := s.engine.MarginalPrices()
	if err != nil {
		return nil, fmt.Errorf("market_service: prices: %w", err)
	}
	return prices, nil
}

// State returns the current market snapshot.
func (s *MarketService) State() (domain.MarketRecord, error) {
	rec, err := s.engine.State()
	if err != nil {
		return domain.MarketRecord{}, fmt.Errorf("market_service: state: %w", err)
	}
	return rec, nil
}

// Positions returns an account's decoded share holdings.
func (s *MarketService) Positions(acct common.Address) ([]domain.PositionEntry, error) {
	positions, err := s.engine.Positions(acct)
	if err != nil {
		return nil, fmt.Errorf("market_service: positions: %w", err)
	}
	return positions, nil
}

// EpochInfo returns one epoch by number.
func (s *MarketService) EpochInfo(number uint64) (domain.Epoch, error) {
	ep, err := s.engine.EpochInfo(number)
	if err != nil {
		return domain.Epoch{}, fmt.Errorf("market_service: epoch %d: %w", number, err)
	}
	return ep, nil
}

// Epochs returns all epochs of the market in ascending order.
func (s *MarketService) Epochs() ([]domain.Epoch, error) {
	epochs, err := s.engine.Epochs()
	if err != nil {
		return nil, fmt.Errorf("market_service: epochs: %w", err)
	}
	return epochs, nil
}

// ListTrades returns the market's trade history with pagination.
func (s *MarketService) ListTrades(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.ListByMarket(ctx, s.MarketID(), opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list trades: %w", err)
	}
	return trades, nil
}

// ListTradesByTrader returns one trader's history with pagination.
func (s *MarketService) ListTradesByTrader(ctx context.Context, trader common.Address, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.ListByTrader(ctx, s.MarketID(), trader, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list trades by trader: %w", err)
	}
	return trades, nil
}

// AdvancePeriod moves the period cursor to match wall-clock time.
func (s *MarketService) AdvancePeriod(ctx context.Context) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.engine.AdvancePeriod(); err != nil {
		return fmt.Errorf("market_service: advance period: %w", err)
	}
	return s.persist(ctx)
}

// CheckEpoch reports whether the active epoch awaits resolution.
func (s *MarketService) CheckEpoch() (bool, error) {
	due, err := s.engine.CheckEpoch()
	if err != nil {
		return false, fmt.Errorf("market_service: check epoch: %w", err)
	}
	return due, nil
}

// CloseEpoch resolves the active epoch with the oracle's payout vector,
// persists the rollover, and broadcasts the resolution. It returns true when
// the close expired the market.
func (s *MarketService) CloseEpoch(ctx context.Context, caller common.Address, payouts []sdkmath.Int) (bool, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	rec, err := s.engine.State()
	if err != nil {
		return false, fmt.Errorf("market_service: state: %w", err)
	}
	closedEpoch := rec.CurrentEpoch

	expired, err := s.engine.CloseEpoch(caller, payouts)
	if err != nil {
		return false, fmt.Errorf("market_service: close epoch: %w", err)
	}
	if err := s.persist(ctx); err != nil {
		return expired, err
	}

	s.refreshPrices(ctx)
	nums := make([]string, len(payouts))
	for i, p := range payouts {
		nums[i] = p.String()
	}
	s.publish(ctx, ChannelEpochs, map[string]any{
		"event":   "epoch_closed",
		"market":  s.MarketID(),
		"epoch":   closedEpoch,
		"payouts": nums,
		"expired": expired,
	})
	if expired {
		s.publish(ctx, ChannelStatus, map[string]any{
			"event":  "market_expired",
			"market": s.MarketID(),
			"epoch":  closedEpoch,
		})
	}
	s.auditLog(ctx, "epoch_closed", map[string]any{
		"epoch":   closedEpoch,
		"payouts": nums,
		"expired": expired,
	})

	s.logger.InfoContext(ctx, "market_service: epoch closed",
		slog.Uint64("epoch", closedEpoch),
		slog.Bool("expired", expired),
	)
	return expired, nil
}

// Redeem settles an account's winning free shares of a resolved epoch.
func (s *MarketService) Redeem(ctx context.Context, caller common.Address, epoch uint64) (sdkmath.Int, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return sdkmath.Int{}, err
	}
	defer unlock()

	amount, err := s.engine.RedeemPayout(caller, epoch)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("market_service: redeem: %w", err)
	}
	if err := s.persist(ctx); err != nil {
		return amount, err
	}
	s.auditLog(ctx, "redeem", map[string]any{
		"account": caller.Hex(),
		"epoch":   epoch,
		"amount":  amount.String(),
	})
	return amount, nil
}

// Unblock releases an account's carried position from a resolved epoch into
// free shares of the current epoch.
func (s *MarketService) Unblock(ctx context.Context, caller common.Address, epoch uint64) ([]sdkmath.Int, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	amounts, err := s.engine.UnblockTokens(caller, epoch)
	if err != nil {
		return nil, fmt.Errorf("market_service: unblock: %w", err)
	}
	if err := s.persist(ctx); err != nil {
		return amounts, err
	}
	strs := make([]string, len(amounts))
	for i, a := range amounts {
		strs[i] = a.String()
	}
	s.auditLog(ctx, "unblock", map[string]any{
		"account": caller.Hex(),
		"epoch":   epoch,
		"amounts": strs,
	})
	return amounts, nil
}

// RedeemBlocked cashes out an account's carried position from a resolved
// epoch at the latest resolved base prices.
func (s *MarketService) RedeemBlocked(ctx context.Context, caller common.Address, epoch uint64) (sdkmath.Int, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return sdkmath.Int{}, err
	}
	defer unlock()

	amount, err := s.engine.RedeemBlockedTokens(caller, epoch)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("market_service: redeem blocked: %w", err)
	}
	if err := s.persist(ctx); err != nil {
		return amount, err
	}
	s.auditLog(ctx, "redeem_blocked", map[string]any{
		"account": caller.Hex(),
		"epoch":   epoch,
		"amount":  amount.String(),
	})
	return amount, nil
}

// ChangeFee updates the trading fee. Owner only.
func (s *MarketService) ChangeFee(ctx context.Context, caller common.Address, feeBps uint32) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.engine.ChangeFee(caller, feeBps); err != nil {
		return fmt.Errorf("market_service: change fee: %w", err)
	}
	if err := s.persist(ctx); err != nil {
		return err
	}
	s.auditLog(ctx, "change_fee", map[string]any{"fee_bps": feeBps})
	return nil
}

// ChangeExpirationEpoch updates or clears the market's expiration. Owner only.
func (s *MarketService) ChangeExpirationEpoch(ctx context.Context, caller common.Address, epoch uint64) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.engine.ChangeExpirationEpoch(caller, epoch); err != nil {
		return fmt.Errorf("market_service: change expiration: %w", err)
	}
	if err := s.persist(ctx); err != nil {
		return err
	}
	s.auditLog(ctx, "change_expiration", map[string]any{"expiration_epoch": epoch})
	return nil
}

// WithdrawFee transfers accrued fees to the owner. Owner only.
func (s *MarketService) WithdrawFee(ctx context.Context, caller common.Address) (sdkmath.Int, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return sdkmath.Int{}, err
	}
	defer unlock()

	amount, err := s.engine.WithdrawFee(caller)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("market_service: withdraw fee: %w", err)
	}
	if err := s.persist(ctx); err != nil {
		return amount, err
	}
	s.auditLog(ctx, "withdraw_fee", map[string]any{"amount": amount.String()})
	return amount, nil
}

// Faucet mints test collateral to an account and pre-approves the market so
// the recipient can trade immediately. Disabled unless a faucet bank was
// wired in.
func (s *MarketService) Faucet(ctx context.Context, to common.Address) (sdkmath.Int, error) {
	if s.faucet == nil {
		return sdkmath.Int{}, fmt.Errorf("market_service: faucet: %w", domain.ErrUnauthorized)
	}
	if err := s.faucet.Mint(to, s.faucetAmount); err != nil {
		return sdkmath.Int{}, fmt.Errorf("market_service: faucet mint: %w", err)
	}
	if err := s.faucet.Approve(to, s.engine.Address(), s.faucet.BalanceOf(to)); err != nil {
		return sdkmath.Int{}, fmt.Errorf("market_service: faucet approve: %w", err)
	}
	s.auditLog(ctx, "faucet", map[string]any{
		"account": to.Hex(),
		"amount":  s.faucetAmount.String(),
	})
	return s.faucetAmount, nil
}
