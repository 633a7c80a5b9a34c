package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chainnotes-sync-server/internal/domain"
	"chainnotes-sync-server/internal/logging"
	"chainnotes-sync-server/internal/metadata"
	"chainnotes-sync-server/internal/metrics"
	"chainnotes-sync-server/internal/repository"
)

type IndexerConfig struct {
	Enabled          bool
	StartBlockHeight int64
	BatchSize        int
	MetadataLabel    int64
	MonitorAddresses []string
}

// IndexerService discovers note-carrying transactions of the monitored
// addresses and applies them. Scheduling is left to the caller.
type IndexerService struct {
	logger   *slog.Logger
	ledger   LedgerClient
	indexed  repository.IndexedTransactionRepository
	applier  *NoteApplier
	notifier Notifier
	metrics  *metrics.Metrics
	config   IndexerConfig
	now      func() time.Time

	mu                 sync.Mutex
	running            bool
	latestIndexedBlock int64
	totalIndexed       int64
	startedAt          time.Time
	lastIndexedAt      time.Time
	lastError          string

	scanning        atomic.Bool
	updatingPending atomic.Bool
}

func NewIndexerService(
	logger *slog.Logger,
	ledger LedgerClient,
	indexed repository.IndexedTransactionRepository,
	applier *NoteApplier,
	notifier Notifier,
	m *metrics.Metrics,
	config IndexerConfig,
) *IndexerService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	return &IndexerService{
		logger:             logging.Child(logger, "indexer"),
		ledger:             ledger,
		indexed:            indexed,
		applier:            applier,
		notifier:           notifier,
		metrics:            m,
		config:             config,
		now:                time.Now,
		latestIndexedBlock: config.StartBlockHeight,
	}
}

func (s *IndexerService) unavailable(reason string) error {
	s.mu.Lock()
	s.lastError = reason
	s.mu.Unlock()
	return fmt.Errorf("%w: %s", ErrIndexerUnavailable, reason)
}

func (s *IndexerService) Start(ctx context.Context) error {
	if s.IsRunning() {
		return nil
	}

	switch {
	case !s.config.Enabled:
		return s.unavailable("indexer is disabled")
	case !s.ledger.Configured():
		return s.unavailable("blockfrost project id is not configured")
	case len(s.config.MonitorAddresses) == 0:
		return s.unavailable("no addresses are monitored")
	}

	latest, err := s.ledger.LatestBlock(ctx)
	if err != nil {
		return s.unavailable(fmt.Sprintf("ledger is not reachable: %v", err))
	}

	s.mu.Lock()
	s.running = true
	s.startedAt = s.now()
	s.lastError = ""
	from := s.latestIndexedBlock
	s.mu.Unlock()

	s.metrics.SetIndexerRunning(true)
	s.metrics.SetBlocks(latest.Height, from)
	s.logger.Info("indexer started",
		"network", s.ledger.Network(),
		"addresses", len(s.config.MonitorAddresses),
		"from_block", from,
		"current_block", latest.Height,
	)
	return nil
}

// Stop clears the running flag. A scan already in flight completes.
func (s *IndexerService) Stop() {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	if wasRunning {
		s.metrics.SetIndexerRunning(false)
		s.logger.Info("indexer stopped")
	}
}

func (s *IndexerService) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *IndexerService) setError(err error) {
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}

// Scan sweeps the monitored addresses once and returns the number of
// transactions that were applied to notes.
func (s *IndexerService) Scan(ctx context.Context) int {
	if !s.IsRunning() {
		return 0
	}
	if !s.scanning.CompareAndSwap(false, true) {
		s.logger.Debug("scan already in progress")
		return 0
	}
	defer s.scanning.Store(false)

	start := s.now()
	defer func() { s.metrics.ObserveSweep("indexer_scan", s.now().Sub(start)) }()

	latest, err := s.ledger.LatestBlock(ctx)
	if err != nil {
		s.logger.Error("failed to fetch latest block", "error", err)
		s.metrics.ScanError()
		s.setError(err)
		return 0
	}
	current := latest.Height

	s.mu.Lock()
	from := s.latestIndexedBlock
	s.mu.Unlock()

	if current <= from {
		s.metrics.SetBlocks(current, from)
		s.logger.Debug("no new blocks", "current_block", current, "latest_indexed", from)
		return 0
	}

	processed := 0
	for _, addr := range s.config.MonitorAddresses {
		n, err := s.scanAddress(ctx, addr, current)
		processed += n
		if err != nil {
			s.metrics.ScanError()
			s.logger.Warn("failed to scan address", "address", addr, "error", err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		s.setError(fmt.Errorf("scan interrupted: %w", err))
		return processed
	}

	s.mu.Lock()
	s.latestIndexedBlock = current
	s.totalIndexed += int64(processed)
	s.lastIndexedAt = s.now()
	s.lastError = ""
	s.mu.Unlock()

	s.metrics.SetBlocks(current, current)
	s.logger.Info("scan complete",
		"from_block", from,
		"to_block", current,
		"processed", processed,
	)
	return processed
}

func (s *IndexerService) scanAddress(ctx context.Context, address string, current int64) (int, error) {
	txs, err := s.ledger.AddressTransactions(ctx, address, 1, s.config.BatchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, tx := range txs {
		if tx.BlockHeight < s.config.StartBlockHeight {
			continue
		}

		exists, err := s.indexed.ExistsByHash(ctx, tx.TxHash)
		if err != nil {
			s.logger.Warn("failed to check indexed transaction", "tx_hash", tx.TxHash, "error", err)
			continue
		}
		if exists {
			continue
		}

		applied, err := s.indexTransaction(ctx, tx.TxHash, current)
		if err != nil {
			s.logger.Warn("failed to index transaction", "tx_hash", tx.TxHash, "error", err)
			continue
		}
		if applied {
			processed++
		}
	}
	return processed, nil
}

// indexTransaction records hash and applies its note mutation, if any.
// The record is written before the mutation so that a hash is applied at
// most once even when two writers race. A mutation that fails with an error,
// rather than being refused, removes the record again.
func (s *IndexerService) indexTransaction(ctx context.Context, hash string, current int64) (bool, error) {
	detail, err := s.ledger.TransactionDetail(ctx, hash)
	if err != nil {
		return false, err
	}
	if detail == nil {
		s.logger.Debug("transaction not visible yet", "tx_hash", hash)
		return false, nil
	}

	record := &domain.IndexedTransaction{
		TxHash:        hash,
		BlockHeight:   detail.BlockHeight,
		BlockTime:     detail.BlockTime,
		Slot:          detail.Slot,
		Status:        domain.TransactionStatusPending,
		Outcome:       domain.OutcomeIgnored,
		Confirmations: domain.Confirmations(current, detail.BlockHeight),
	}
	if detail.Confirmed() {
		record.Status = domain.TransactionStatusConfirmed
	}

	var action metadata.Action
	if raw, found := metadata.Find(detail.Metadata, s.config.MetadataLabel); found {
		record.Metadata = string(raw)
		record.Outcome = domain.OutcomeRejected

		decoded, err := metadata.Parse(raw)
		if err != nil {
			s.logger.Debug("rejecting note metadata", "tx_hash", hash, "reason", err)
		} else {
			action = decoded
			record.ActionType = decoded.Type()
			record.WalletAddress = decoded.Wallet()
			if id := metadata.NoteID(decoded); id > 0 {
				record.NoteID = &id
			}
		}
	}

	if err := s.indexed.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return false, nil
		}
		return false, err
	}

	if action == nil {
		s.metrics.TransactionIndexed(record.Outcome)
		return false, nil
	}

	note, err := s.applier.Apply(ctx, action, hash)
	if err != nil {
		// Release the claim so a later scan retries the hash.
		if delErr := s.indexed.Delete(ctx, hash); delErr != nil {
			s.logger.Warn("failed to release indexed transaction", "tx_hash", hash, "error", delErr)
		}
		return false, err
	}
	if note == nil {
		s.metrics.TransactionIndexed(domain.OutcomeRejected)
		return false, nil
	}

	record.Outcome = domain.OutcomeApplied
	record.NoteID = &note.ID
	record.NoteTitle = note.Title
	if err := s.indexed.Update(ctx, record); err != nil {
		s.logger.Warn("failed to mark transaction applied", "tx_hash", hash, "error", err)
	}

	s.metrics.TransactionIndexed(domain.OutcomeApplied)
	s.notifier.NoteUpdated(note)
	s.logger.Debug("applied note mutation",
		"tx_hash", hash,
		"action", action.Type(),
		"note_id", note.ID,
	)
	return true, nil
}

// ReindexFromBlock rewinds the cursor to height and scans once.
func (s *IndexerService) ReindexFromBlock(ctx context.Context, height int64) (int, error) {
	if height < 0 {
		return 0, &ValidationError{Field: "startBlock", Message: "start block must not be negative"}
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return 0, ErrIndexerNotRunning
	}
	s.latestIndexedBlock = height
	s.mu.Unlock()

	s.logger.Info("reindexing", "from_block", height)
	return s.Scan(ctx), nil
}

// UpdatePendingTransactions promotes indexed rows that have since landed in
// a block and refreshes their confirmations.
func (s *IndexerService) UpdatePendingTransactions(ctx context.Context) int {
	if !s.ledger.Configured() {
		return 0
	}
	if !s.updatingPending.CompareAndSwap(false, true) {
		return 0
	}
	defer s.updatingPending.Store(false)

	start := s.now()
	defer func() { s.metrics.ObserveSweep("indexer_pending", s.now().Sub(start)) }()

	pending, err := s.indexed.FindByStatus(ctx, domain.TransactionStatusPending)
	if err != nil {
		s.logger.Error("failed to load pending indexed transactions", "error", err)
		return 0
	}
	if len(pending) == 0 {
		return 0
	}

	latest, err := s.ledger.LatestBlock(ctx)
	if err != nil {
		s.logger.Error("failed to fetch latest block", "error", err)
		return 0
	}

	updated := 0
	for _, row := range pending {
		detail, err := s.ledger.TransactionDetail(ctx, row.TxHash)
		if err != nil {
			s.logger.Debug("failed to refresh pending transaction", "tx_hash", row.TxHash, "error", err)
			continue
		}
		if detail == nil || !detail.Confirmed() {
			continue
		}

		row.Status = domain.TransactionStatusConfirmed
		row.BlockHeight = detail.BlockHeight
		row.BlockTime = detail.BlockTime
		row.Slot = detail.Slot
		row.Confirmations = domain.Confirmations(latest.Height, detail.BlockHeight)
		if err := s.indexed.Update(ctx, row); err != nil {
			s.logger.Warn("failed to confirm indexed transaction", "tx_hash", row.TxHash, "error", err)
			continue
		}
		updated++
	}

	if updated > 0 {
		s.logger.Info("confirmed pending indexed transactions", "count", updated)
	}
	return updated
}

func (s *IndexerService) Status(ctx context.Context) domain.IndexerStatus {
	s.mu.Lock()
	status := domain.IndexerStatus{
		Enabled:                  s.config.Enabled,
		Running:                  s.running,
		Network:                  s.ledger.Network(),
		LatestIndexedBlock:       s.latestIndexedBlock,
		TotalTransactionsIndexed: s.totalIndexed,
		MonitoredAddressesCount:  len(s.config.MonitorAddresses),
		ErrorMessage:             s.lastError,
	}
	if !s.lastIndexedAt.IsZero() {
		at := s.lastIndexedAt
		status.LastIndexedAt = &at
	}
	if s.running {
		started := s.startedAt
		status.StartedAt = &started
		status.Uptime = s.now().Sub(started).Truncate(time.Second).String()
	}
	s.mu.Unlock()

	status.BlockfrostStatus = s.ledgerStatus(ctx, &status)

	if n, err := s.indexed.CountByStatus(ctx, domain.TransactionStatusPending); err == nil {
		status.PendingTransactions = n
	}
	if n, err := s.indexed.CountByStatus(ctx, domain.TransactionStatusConfirmed); err == nil {
		status.ConfirmedTransactions = n
	}
	if n, err := s.indexed.CountByStatus(ctx, domain.TransactionStatusFailed); err == nil {
		status.FailedTransactions = n
	}
	return status
}

func (s *IndexerService) ledgerStatus(ctx context.Context, status *domain.IndexerStatus) string {
	if !s.ledger.Configured() {
		return domain.LedgerUnavailable
	}
	if err := s.ledger.Health(ctx); err != nil {
		return "ERROR: " + err.Error()
	}
	latest, err := s.ledger.LatestBlock(ctx)
	if err != nil {
		return "ERROR: " + err.Error()
	}
	status.CurrentBlockHeight = latest.Height
	status.BlocksBehind = max(0, latest.Height-status.LatestIndexedBlock)
	return domain.LedgerAvailable
}
