package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/perpamm/internal/domain"
	"github.com/alanyoungcy/perpamm/internal/server"
	"github.com/alanyoungcy/perpamm/internal/server/handler"
	"github.com/alanyoungcy/perpamm/internal/server/ws"
	"github.com/alanyoungcy/perpamm/internal/service"
)

// watchInterval is how often the epoch watcher advances the period cursor and
// checks whether the active epoch awaits resolution.
const watchInterval = 15 * time.Second

// shutdownGrace bounds graceful HTTP shutdown on exit.
const shutdownGrace = 10 * time.Second

// ServerMode runs the HTTP API alone: no cache layer, no WebSocket hub, no
// background watchers. Suitable for a single replica backed by Postgres.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTP(ctx, g, deps, nil)
	return g.Wait()
}

// FullMode runs everything: HTTP API, WebSocket hub bridging the signal bus,
// the epoch watcher, and the archive/notify event loop.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		MarketID:  deps.Market.MarketID(),
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	a.startHTTP(ctx, g, deps, hub)

	g.Go(func() error {
		a.watchEpochs(ctx, deps)
		return nil
	})

	g.Go(func() error {
		a.consumeEvents(ctx, deps)
		return nil
	})

	return g.Wait()
}

// startHTTP builds the handler set and runs the HTTP server under the group,
// shutting it down gracefully when the context is cancelled.
func (a *App) startHTTP(ctx context.Context, g *errgroup.Group, deps *Dependencies, hub *ws.Hub) {
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.cfg.Mode, deps.Market.MarketID(), a.logger),
		Market: handler.NewMarketHandler(deps.Market, a.logger),
		Epochs: handler.NewEpochHandler(deps.Market, a.logger),
		Trades: handler.NewTradeHandler(deps.Market, a.logger),
		Claims: handler.NewClaimHandler(deps.Market, a.logger),
		Admin:  handler.NewAdminHandler(deps.Market, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:          a.cfg.Server.Port,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		AdminKey:      a.cfg.Server.AdminKey,
		RateLimit:     a.cfg.Server.RateLimit,
		RateWindow:    time.Minute,
		FaucetEnabled: a.cfg.Bank.FaucetEnabled,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// watchEpochs periodically advances the period cursor and raises an alert
// when the active epoch is overdue for oracle resolution. Resolution itself
// arrives through the close endpoint; the watcher only keeps time moving and
// alerts once per epoch.
func (a *App) watchEpochs(ctx context.Context, deps *Dependencies) {
	svc := deps.Market
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	var alertedEpoch uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := svc.AdvancePeriod(ctx); err != nil {
			switch {
			case errors.Is(err, domain.ErrEpochFinishedNotResolved):
				// Expected while the oracle report is pending.
			case errors.Is(err, domain.ErrMarketExpired):
				return
			default:
				a.logger.WarnContext(ctx, "watcher: advance period failed",
					slog.String("error", err.Error()))
				continue
			}
		}

		due, err := svc.CheckEpoch()
		if err != nil {
			a.logger.WarnContext(ctx, "watcher: epoch check failed",
				slog.String("error", err.Error()))
			continue
		}
		if !due {
			continue
		}

		rec, err := svc.State()
		if err != nil {
			continue
		}
		if rec.Expired {
			return
		}
		if rec.CurrentEpoch == alertedEpoch {
			continue
		}
		alertedEpoch = rec.CurrentEpoch

		a.logger.WarnContext(ctx, "watcher: epoch awaiting resolution",
			slog.Uint64("epoch", rec.CurrentEpoch))
		if err := deps.Notifier.Notify(ctx, "error",
			"Epoch awaiting resolution",
			fmt.Sprintf("Market %s epoch %d has finished and needs an oracle report.",
				rec.ID, rec.CurrentEpoch),
		); err != nil {
			a.logger.WarnContext(ctx, "watcher: notify failed",
				slog.String("error", err.Error()))
		}
	}
}

// epochEvent is the subset of the bus payload the event loop consumes.
type epochEvent struct {
	Event   string `json:"event"`
	Market  string `json:"market"`
	Epoch   uint64 `json:"epoch"`
	Expired bool   `json:"expired"`
}

// consumeEvents bridges epoch resolutions from the signal bus to the epoch
// archiver and the notification channels.
func (a *App) consumeEvents(ctx context.Context, deps *Dependencies) {
	msgCh, err := deps.SignalBus.Subscribe(ctx, service.ChannelEpochs)
	if err != nil {
		a.logger.ErrorContext(ctx, "events: subscribe failed",
			slog.String("error", err.Error()))
		return
	}

	for {
		var data []byte
		var ok bool
		select {
		case <-ctx.Done():
			return
		case data, ok = <-msgCh:
			if !ok {
				return
			}
		}

		var evt epochEvent
		if err := json.Unmarshal(data, &evt); err != nil || evt.Event != "epoch_closed" {
			continue
		}

		if deps.Archiver != nil {
			count, err := deps.Archiver.ArchiveEpoch(ctx, evt.Market, evt.Epoch)
			if err != nil {
				a.logger.ErrorContext(ctx, "events: epoch archive failed",
					slog.Uint64("epoch", evt.Epoch),
					slog.String("error", err.Error()))
			} else if count > 0 {
				a.logger.InfoContext(ctx, "events: epoch archived",
					slog.Uint64("epoch", evt.Epoch),
					slog.Int("trades", count))
			}
		}

		if err := deps.Notifier.Notify(ctx, "epoch_closed",
			"Epoch closed",
			fmt.Sprintf("Market %s epoch %d resolved.", evt.Market, evt.Epoch),
		); err != nil {
			a.logger.WarnContext(ctx, "events: notify failed",
				slog.String("error", err.Error()))
		}
		if evt.Expired {
			if err := deps.Notifier.Notify(ctx, "market_expired",
				"Market expired",
				fmt.Sprintf("Market %s wound down after epoch %d.", evt.Market, evt.Epoch),
			); err != nil {
				a.logger.WarnContext(ctx, "events: notify failed",
					slog.String("error", err.Error()))
			}
		}
	}
}
