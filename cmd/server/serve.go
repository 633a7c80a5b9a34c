package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"chainnotes-sync-server/internal/handler"
	"chainnotes-sync-server/internal/scheduler"
	"chainnotes-sync-server/internal/service"
	"chainnotes-sync-server/internal/websocket"

	"github.com/spf13/cobra"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the websocket hub and the background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd)
		},
	}
}

func serveRun(cmd *cobra.Command) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wsManager := websocket.NewManager(logger, websocket.Config{
		MaxConnPerWallet: cfg.WebSocket.MaxConnPerWallet,
		MaxMessageSize:   cfg.WebSocket.MaxMessageSize,
		WriteWait:        cfg.WebSocket.WriteWait,
		PongWait:         cfg.WebSocket.PongWait,
		PingPeriod:       cfg.WebSocket.PingPeriod,
	})
	go wsManager.Run(ctx)

	a, err := newApp(ctx, cfg, logger, wsManager)
	if err != nil {
		return err
	}
	defer a.Close()

	notes := service.NewNoteService(logger, a.store.Notes, wsManager, a.validate)
	txs := service.NewTransactionService(logger, a.store.Tracked, a.store.Notes, wsManager, a.validate)
	chain := service.NewBlockchainService(logger, a.ledger, a.store.Indexed)

	router := handler.NewRouter(handler.RouterConfig{
		Logger:      logger,
		Metrics:     a.metrics,
		CORS:        cfg.CORS,
		JWTSecret:   cfg.JWT.Secret,
		Notes:       handler.NewNoteHandler(logger, notes, a.validate),
		Transaction: handler.NewTransactionHandler(logger, txs, a.validate),
		Blockchain:  handler.NewBlockchainHandler(logger, a.indexer, chain, a.validate),
		WebSocket: handler.NewWebSocketHandler(logger, wsManager, a.validate,
			cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize),
	})

	if cfg.Indexer.AutoStart {
		if err := a.indexer.Start(ctx); err != nil {
			logger.Warn("indexer did not start", "error", err)
		}
	}

	daemon, err := newDaemon(a)
	if err != nil {
		return err
	}
	defer daemon.Stop()

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting chainnotes sync server",
			"addr", srv.Addr,
			"env", cfg.Server.Env,
			"database", cfg.Database.Driver,
			"network", cfg.Blockfrost.Network,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	a.indexer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server stopped gracefully")
	return nil
}

// newDaemon schedules the indexer scan, the pending refresh and the
// tracked transaction sweep.
func newDaemon(a *app) (*scheduler.Daemon, error) {
	tasks := map[scheduler.TaskName]scheduler.Task{
		scheduler.TaskIndexerScan: scheduler.TaskFunc(func(ctx context.Context) error {
			if a.indexer.IsRunning() {
				a.indexer.Scan(ctx)
			}
			return nil
		}),
		scheduler.TaskIndexerPending: scheduler.TaskFunc(func(ctx context.Context) error {
			if a.indexer.IsRunning() {
				a.indexer.UpdatePendingTransactions(ctx)
			}
			return nil
		}),
		scheduler.TaskTransactionSync: scheduler.TaskFunc(func(ctx context.Context) error {
			result := a.sync.Sweep(ctx)
			if result.Errors > 0 {
				a.logger.Warn("transaction sweep finished with errors", "errors", result.Errors, "checked", result.Checked)
			}
			return nil
		}),
	}

	daemon, err := scheduler.NewDaemon(a.logger, tasks)
	if err != nil {
		return nil, err
	}

	configs := map[scheduler.TaskName]scheduler.TaskConfig{
		scheduler.TaskIndexerScan:    {Interval: a.cfg.Indexer.PollInterval},
		scheduler.TaskIndexerPending: {Interval: a.cfg.Indexer.PendingInterval},
	}
	if a.cfg.Sync.Enabled {
		configs[scheduler.TaskTransactionSync] = scheduler.TaskConfig{Interval: a.cfg.Sync.Interval, StartImmediately: true}
	}

	if err := daemon.Start(configs); err != nil {
		daemon.Stop()
		return nil, err
	}
	return daemon, nil
}
