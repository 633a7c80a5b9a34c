package service

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"chainnotes-sync-server/internal/domain"
	"chainnotes-sync-server/internal/logging"
	"chainnotes-sync-server/internal/metrics"
	"chainnotes-sync-server/internal/repository"
)

const (
	reasonExpired    = "expired"
	reasonMaxRetries = "max retries exceeded"
)

type SyncConfig struct {
	Timeout    time.Duration
	MaxRetries int
}

// SyncService reconciles outstanding tracked transactions against the
// ledger.
type SyncService struct {
	logger   *slog.Logger
	ledger   LedgerClient
	tracked  repository.TrackedTransactionRepository
	notes    repository.NoteRepository
	notifier Notifier
	metrics  *metrics.Metrics
	config   SyncConfig
	now      func() time.Time

	sweeping atomic.Bool
}

func NewSyncService(
	logger *slog.Logger,
	ledger LedgerClient,
	tracked repository.TrackedTransactionRepository,
	notes repository.NoteRepository,
	notifier Notifier,
	m *metrics.Metrics,
	config SyncConfig,
) *SyncService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &SyncService{
		logger:   logging.Child(logger, "sync"),
		ledger:   ledger,
		tracked:  tracked,
		notes:    notes,
		notifier: notifier,
		metrics:  m,
		config:   config,
		now:      time.Now,
	}
}

// Sweep checks every outstanding transaction once. An overlapping call
// returns immediately with Skipped set.
func (s *SyncService) Sweep(ctx context.Context) domain.SweepResult {
	if !s.sweeping.CompareAndSwap(false, true) {
		s.logger.Debug("sweep already in progress")
		return domain.SweepResult{Skipped: true}
	}
	defer s.sweeping.Store(false)

	start := s.now()
	var result domain.SweepResult

	txs, err := s.tracked.FindByStatus(ctx, domain.OutstandingStatuses...)
	if err != nil {
		s.logger.Error("failed to load outstanding transactions", "error", err)
		result.Errors++
		return result
	}

	for _, tx := range txs {
		if ctx.Err() != nil {
			break
		}
		result.Checked++
		s.check(ctx, tx, &result)
	}

	elapsed := s.now().Sub(start)
	s.metrics.SweepCompleted(result)
	s.metrics.ObserveSweep("transaction_sync", elapsed)

	if result.Checked > 0 {
		s.logger.Info("sync sweep complete",
			"checked", result.Checked,
			"confirmed", result.Confirmed,
			"failed", result.Failed,
			"expired", result.Expired,
			"errors", result.Errors,
			"duration", elapsed,
		)
	}
	return result
}

// check reconciles one transaction. Every write is conditional on the
// version the sweep loaded, so a transaction failed, retried or cancelled
// through the API in the meantime is skipped rather than overwritten. A
// confirmed DELETE leaves its note off chain; every other type marks the
// note on chain.
func (s *SyncService) check(ctx context.Context, tx *domain.TrackedTransaction, result *domain.SweepResult) {
	now := s.now().UTC()
	log := s.logger.With("tx_id", tx.ID, "note_id", tx.NoteID)

	if now.Sub(tx.ExpiresFrom()) > s.config.Timeout {
		s.count(s.fail(ctx, tx, reasonExpired), &result.Expired, result)
		return
	}

	if tx.RetryCount >= s.config.MaxRetries {
		s.count(s.fail(ctx, tx, reasonMaxRetries), &result.Failed, result)
		return
	}

	tx.LastCheckedAt = &now

	// Not submitted yet; only the timeout can fail it.
	if tx.TxHash == nil {
		if err := s.tracked.Update(ctx, tx); err != nil && !s.stale(log, err) {
			log.Warn("failed to stamp unsubmitted transaction", "error", err)
			result.Errors++
		}
		return
	}

	detail, err := s.ledger.TransactionDetail(ctx, *tx.TxHash)
	if err != nil {
		log.Debug("ledger lookup failed", "tx_hash", *tx.TxHash, "error", err)
		result.Errors++
		tx.RetryCount++
		if tx.RetryCount >= s.config.MaxRetries {
			if s.fail(ctx, tx, reasonMaxRetries) == nil {
				result.Failed++
			}
			return
		}
		if err := s.tracked.Update(ctx, tx); err != nil && !s.stale(log, err) {
			log.Warn("failed to record retry", "error", err)
		}
		return
	}

	if detail == nil || !detail.Confirmed() {
		log.Debug("transaction not visible yet", "tx_hash", *tx.TxHash, "retry", tx.RetryCount+1)
		tx.RetryCount++
		if err := s.tracked.Update(ctx, tx); err != nil && !s.stale(log, err) {
			log.Warn("failed to record retry", "error", err)
			result.Errors++
		}
		return
	}

	height := detail.BlockHeight
	blockTime := detail.BlockTime
	tx.BlockHeight = &height
	tx.BlockTime = &blockTime
	tx.ConfirmedAt = &now
	tx.Status = domain.TransactionStatusConfirmed
	tx.ErrorMessage = ""
	if err := s.tracked.Update(ctx, tx); err != nil {
		if !s.stale(log, err) {
			log.Warn("failed to confirm transaction", "error", err)
			result.Errors++
		}
		return
	}
	result.Confirmed++

	hash := *tx.TxHash
	s.mirror(ctx, tx, func(note *domain.Note) {
		note.OnChain = tx.Type != domain.TransactionTypeDelete
		note.LatestTxHash = hash
	})
	s.notifier.TransactionStatusChanged(tx)
	log.Debug("transaction confirmed", "tx_hash", hash, "block_height", height)
}

// count adds a successful fail to counter and a real write error to
// result.Errors. A stale write counts as neither.
func (s *SyncService) count(err error, counter *int, result *domain.SweepResult) {
	switch {
	case err == nil:
		*counter++
	case !isStale(err):
		result.Errors++
	}
}

// stale reports whether err means the row moved on underneath the sweep.
func (s *SyncService) stale(log *slog.Logger, err error) bool {
	if !isStale(err) {
		return false
	}
	log.Debug("transaction changed during sweep, skipping", "error", err)
	return true
}

func isStale(err error) bool {
	return errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound)
}

func (s *SyncService) fail(ctx context.Context, tx *domain.TrackedTransaction, reason string) error {
	tx.Status = domain.TransactionStatusFailed
	tx.ErrorMessage = reason
	if err := s.tracked.Update(ctx, tx); err != nil {
		if isStale(err) {
			s.logger.Debug("transaction changed during sweep, skipping", "tx_id", tx.ID, "error", err)
		} else {
			s.logger.Warn("failed to mark transaction failed", "tx_id", tx.ID, "reason", reason, "error", err)
		}
		return err
	}

	s.mirror(ctx, tx, nil)
	s.notifier.TransactionStatusChanged(tx)
	s.logger.Debug("transaction failed", "tx_id", tx.ID, "reason", reason)
	return nil
}

func (s *SyncService) mirror(ctx context.Context, tx *domain.TrackedTransaction, mutate func(*domain.Note)) {
	note, err := mirrorNote(ctx, s.notes, tx, mutate)
	if err != nil {
		s.logger.Warn("failed to mirror note status", "note_id", tx.NoteID, "tx_id", tx.ID, "error", err)
		return
	}
	if note != nil {
		s.notifier.NoteUpdated(note)
	}
}
