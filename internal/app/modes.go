package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/slotengine/internal/action"
	"github.com/alanyoungcy/slotengine/internal/crypto"
	"github.com/alanyoungcy/slotengine/internal/domain"
	"github.com/alanyoungcy/slotengine/internal/server"
	"github.com/alanyoungcy/slotengine/internal/server/handler"
	"github.com/alanyoungcy/slotengine/internal/server/ws"
	"github.com/alanyoungcy/slotengine/internal/service"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// boardService builds the poller shared by every mode. bus may be nil.
func (a *App) boardService(deps *Dependencies, bus domain.SignalBus) *service.BoardService {
	return service.NewBoardService(deps.Reader, deps.Registry, service.BoardOptions{
		Cache:           deps.BoardCache,
		Snapshots:       deps.Snapshots,
		Archiver:        deps.Archiver,
		Bus:             bus,
		Coverage:        deps.Simulator,
		Observers:       a.observers(deps),
		PollInterval:    a.cfg.Engine.PollInterval.Duration,
		ArchiveInterval: a.cfg.Engine.ArchiveInterval.Duration,
	}, a.logger)
}

// observers returns the board observers every polling mode runs.
func (a *App) observers(deps *Dependencies) []service.BoardObserver {
	if deps.Notifier == nil {
		return nil
	}
	return []service.BoardObserver{
		service.NewLapseWatcher(deps.Notifier, a.cfg.Notify.LapseRepeat.Duration, a.logger),
	}
}

// ServerMode polls the board and serves the HTTP API and WebSocket stream.
// Actions are enabled when a wallet is configured.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	var walletHex string
	if deps.Wallet != nil {
		walletHex = deps.Wallet.From().Hex()
	}
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{Mode: a.cfg.Mode, Wallet: walletHex})

	// Without a shared bus, events go straight to local WebSocket clients.
	bus := deps.SignalBus
	if bus == nil {
		bus = hub
	}

	boards := a.boardService(deps, bus)

	var runner handler.ActionRunner
	if deps.Wallet != nil {
		runner = action.NewEngine(deps.Wallet, action.Options{
			Notifier:  deps.Notifier,
			Locks:     deps.LockManager,
			Actions:   deps.Actions,
			Bus:       bus,
			Timeout:   a.cfg.Engine.ActionTimeout.Duration,
			OnSettled: boards.OnActionSettled,
		}, a.logger)
	} else {
		a.logger.WarnContext(ctx, "no wallet key configured; actions are disabled")
	}

	var history handler.SnapshotHistory
	if deps.Snapshots != nil {
		history = deps.Snapshots
	}
	var actionLog handler.ActionLog
	if deps.Actions != nil {
		actionLog = deps.Actions
	}

	var signer *crypto.RequestSigner
	if a.cfg.Server.SigningSecret != "" {
		signer = crypto.NewRequestSigner(a.cfg.Server.SigningSecret, a.cfg.Server.SignatureSkew.Duration)
	}

	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIKey:       a.cfg.Server.APIKey,
		Signer:       signer,
		Limiter:      deps.RateLimiter,
		RateLimit:    a.cfg.Server.RateLimit,
		RateWindow:   a.cfg.Server.RateWindow.Duration,
		WriteTimeout: a.cfg.Server.RequestTimeout.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks, a.logger),
		Slots:   handler.NewSlotHandler(boards, history, a.logger),
		Actions: handler.NewActionHandler(boards, runner, actionLog, a.cfg.Server.RecentActions, a.logger),
	}, hub, a.logger)

	g.Go(func() error { return boards.Run(ctx) })
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// MonitorMode polls the board and feeds the cache, snapshot store, archive
// and bus without serving anything or sending transactions.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.boardService(deps, deps.SignalBus).Run(ctx)
}

// OnceMode builds one board, writes it to stdout as JSON and exits.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	b, err := a.boardService(deps, deps.SignalBus).Refresh(ctx)
	if err != nil {
		return fmt.Errorf("once mode: %w", err)
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("once mode: encode board: %w", err)
	}
	a.logger.InfoContext(ctx, "board written",
		slog.Int("active", b.Metrics.ActiveCount),
		slog.Int("vacant", b.Metrics.VacantCount),
	)
	return nil
}
