package main

import (
	"context"
	"fmt"
	"log/slog"

	"chainnotes-sync-server/internal/blockfrost"
	"chainnotes-sync-server/internal/config"
	"chainnotes-sync-server/internal/metrics"
	"chainnotes-sync-server/internal/repository"
	"chainnotes-sync-server/internal/service"
	"chainnotes-sync-server/internal/validation"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
)

// app holds the components shared by the server and the one-shot commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	store    *repository.Store
	ledger   *blockfrost.Client
	validate *validator.Validate

	applier *service.NoteApplier
	indexer *service.IndexerService
	sync    *service.SyncService
}

// newApp opens the store and the ledger client. notifier may be nil.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, notifier service.Notifier) (*app, error) {
	store, err := repository.Open(ctx, cfg.Database.Repository())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Database.Driver, err)
	}

	ledger, err := blockfrost.New(logger, resty.New(), cfg.Blockfrost.Client())
	if err != nil {
		store.Close()
		return nil, err
	}
	if !ledger.Configured() {
		logger.Warn("blockfrost project id is not set; ledger features are unavailable")
	}

	m := metrics.New()
	validate := validation.New(cfg.AddressRules())
	applier := service.NewNoteApplier(logger, store.Notes, store.Tracked, validate)

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		store:    store,
		ledger:   ledger,
		validate: validate,
		applier:  applier,
		indexer: service.NewIndexerService(logger, ledger, store.Indexed, applier, notifier, m, service.IndexerConfig{
			Enabled:          cfg.Indexer.Enabled,
			StartBlockHeight: cfg.Indexer.StartBlockHeight,
			BatchSize:        cfg.Indexer.BatchSize,
			MetadataLabel:    cfg.Indexer.MetadataLabel,
			MonitorAddresses: cfg.Indexer.MonitorAddresses,
		}),
		sync: service.NewSyncService(logger, ledger, store.Tracked, store.Notes, notifier, m, service.SyncConfig{
			Timeout:    cfg.Sync.Timeout,
			MaxRetries: cfg.Sync.MaxRetries,
		}),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close store", "error", err)
	}
}
