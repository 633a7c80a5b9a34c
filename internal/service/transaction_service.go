package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chainnotes-sync-server/internal/domain"
	"chainnotes-sync-server/internal/logging"
	"chainnotes-sync-server/internal/repository"
	"chainnotes-sync-server/internal/validation"

	"github.com/go-playground/validator/v10"
)

const (
	maxMetadataBytes = 65535
	maxPageSize      = 100
)

// TransactionService drives tracked transactions through
// PENDING -> MEMPOOL -> CONFIRMED, with FAILED reachable from both
// outstanding states.
type TransactionService struct {
	logger   *slog.Logger
	tracked  repository.TrackedTransactionRepository
	notes    repository.NoteRepository
	notifier Notifier
	validate *validator.Validate
	now      func() time.Time
}

func NewTransactionService(
	logger *slog.Logger,
	tracked repository.TrackedTransactionRepository,
	notes repository.NoteRepository,
	notifier Notifier,
	validate *validator.Validate,
) *TransactionService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &TransactionService{
		logger:   logging.Child(logger, "transactions"),
		tracked:  tracked,
		notes:    notes,
		notifier: notifier,
		validate: validate,
		now:      time.Now,
	}
}

func (s *TransactionService) Create(ctx context.Context, req *domain.CreateTrackedTransactionRequest) (*domain.TrackedTransaction, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, invalid(err)
	}
	if len(req.Metadata) > maxMetadataBytes {
		return nil, &ValidationError{Field: "metadata", Message: fmt.Sprintf("metadata must be at most %d bytes", maxMetadataBytes)}
	}
	if strings.TrimSpace(req.Metadata) == "" && req.Type != domain.TransactionTypeDelete {
		return nil, &ValidationError{Field: "metadata", Message: "metadata is required for " + string(req.Type)}
	}

	if _, err := s.notes.FindByID(ctx, req.NoteID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("note", req.NoteID)
		}
		return nil, err
	}

	tx := &domain.TrackedTransaction{
		NoteID:        req.NoteID,
		Type:          req.Type,
		Status:        domain.TransactionStatusPending,
		WalletAddress: strings.TrimSpace(req.WalletAddress),
		Metadata:      req.Metadata,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.tracked.Create(ctx, tx); err != nil {
		return nil, err
	}

	s.mirror(ctx, tx, nil)
	s.notifier.TransactionStatusChanged(tx)
	s.logger.Info("tracked transaction created", "id", tx.ID, "note_id", tx.NoteID, "type", tx.Type)
	return tx, nil
}

func (s *TransactionService) Get(ctx context.Context, id int64) (*domain.TrackedTransaction, error) {
	tx, err := s.tracked.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("transaction", id)
	}
	return tx, err
}

func (s *TransactionService) GetByHash(ctx context.Context, hash string) (*domain.TrackedTransaction, error) {
	tx, err := s.tracked.FindByHash(ctx, strings.ToLower(hash))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("transaction", hash)
	}
	return tx, err
}

func (s *TransactionService) ListByNote(ctx context.Context, noteID int64) ([]*domain.TrackedTransaction, error) {
	return s.tracked.FindByNoteID(ctx, noteID)
}

// ListByWallet pages through a wallet's transactions, newest first. page is
// zero based.
func (s *TransactionService) ListByWallet(ctx context.Context, wallet string, page, size int) (*domain.TransactionPage, error) {
	if page < 0 {
		return nil, &ValidationError{Field: "page", Message: "page must not be negative"}
	}
	if size < 1 || size > maxPageSize {
		return nil, &ValidationError{Field: "size", Message: fmt.Sprintf("size must be between 1 and %d", maxPageSize)}
	}

	items, total, err := s.tracked.FindByWallet(ctx, wallet, page, size)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*domain.TrackedTransaction{}
	}
	return &domain.TransactionPage{Items: items, Page: page, Size: size, Total: total}, nil
}

func (s *TransactionService) Submit(ctx context.Context, id int64, hash string) (*domain.TrackedTransaction, error) {
	if !validation.IsTxHash(hash) {
		return nil, &ValidationError{Field: "tx_hash", Message: "transaction hash must be 64 hexadecimal characters"}
	}
	hash = strings.ToLower(hash)

	tx, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TransactionStatusPending {
		return nil, conflict("transaction %d is %s and cannot be submitted", id, tx.Status)
	}
	if tx.TxHash != nil {
		return nil, conflict("transaction %d was already submitted as %s", id, *tx.TxHash)
	}

	existing, err := s.tracked.FindByHash(ctx, hash)
	switch {
	case err == nil && existing.ID != tx.ID:
		return nil, conflict("transaction hash %s is already tracked by transaction %d", hash, existing.ID)
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	tx.TxHash = &hash
	tx.Status = domain.TransactionStatusMempool
	if err := s.save(ctx, tx); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, conflict("transaction hash %s is already tracked", hash)
		}
		return nil, err
	}

	s.mirror(ctx, tx, func(note *domain.Note) {
		note.LatestTxHash = hash
	})
	s.notifier.TransactionStatusChanged(tx)
	s.logger.Info("tracked transaction submitted", "id", tx.ID, "tx_hash", hash)
	return tx, nil
}

func (s *TransactionService) Fail(ctx context.Context, id int64, reason string) (*domain.TrackedTransaction, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, &ValidationError{Field: "reason", Message: "reason is required"}
	}

	tx, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tx.IsOutstanding() {
		return nil, conflict("transaction %d is %s and cannot fail", id, tx.Status)
	}

	tx.Status = domain.TransactionStatusFailed
	tx.ErrorMessage = reason
	if err := s.save(ctx, tx); err != nil {
		return nil, err
	}

	s.mirror(ctx, tx, nil)
	s.notifier.TransactionStatusChanged(tx)
	s.logger.Info("tracked transaction failed", "id", tx.ID, "reason", reason)
	return tx, nil
}

// Cancel deletes a transaction that was never submitted. A retried
// transaction keeps its hash and can no longer be cancelled.
func (s *TransactionService) Cancel(ctx context.Context, id int64) error {
	tx, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if tx.Status != domain.TransactionStatusPending {
		return conflict("transaction %d is %s and cannot be cancelled", id, tx.Status)
	}
	if tx.TxHash != nil {
		return conflict("transaction %d was submitted as %s and cannot be cancelled", id, *tx.TxHash)
	}

	if err := s.tracked.Delete(ctx, tx); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return conflict("transaction %d changed concurrently", id)
		}
		return err
	}
	s.logger.Info("tracked transaction cancelled", "id", id)
	return nil
}

// Retry returns a FAILED transaction to PENDING with a fresh retry budget.
// The hash is kept so the sync worker resumes polling for it, and the expiry
// window restarts from RetriedAt.
func (s *TransactionService) Retry(ctx context.Context, id int64) (*domain.TrackedTransaction, error) {
	tx, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TransactionStatusFailed {
		return nil, conflict("transaction %d is %s; only failed transactions can be retried", id, tx.Status)
	}

	tx.Status = domain.TransactionStatusPending
	tx.RetryCount = 0
	tx.ErrorMessage = ""
	retried := s.now().UTC()
	tx.RetriedAt = &retried
	if err := s.save(ctx, tx); err != nil {
		return nil, err
	}

	s.mirror(ctx, tx, nil)
	s.notifier.TransactionStatusChanged(tx)
	s.logger.Info("tracked transaction retried", "id", tx.ID)
	return tx, nil
}

// save writes tx and reports a lost version race as a conflict.
func (s *TransactionService) save(ctx context.Context, tx *domain.TrackedTransaction) error {
	err := s.tracked.Update(ctx, tx)
	if errors.Is(err, repository.ErrConflict) {
		return conflict("transaction %d changed concurrently", tx.ID)
	}
	return err
}

// PendingCount counts transactions that are still outstanding.
func (s *TransactionService) PendingCount(ctx context.Context) (int64, error) {
	var total int64
	for _, status := range domain.OutstandingStatuses {
		n, err := s.tracked.CountByStatus(ctx, status)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (s *TransactionService) Stats(ctx context.Context) (*domain.TransactionStats, error) {
	stats := &domain.TransactionStats{}

	total, err := s.tracked.Count(ctx)
	if err != nil {
		return nil, err
	}
	stats.Total = total

	counts := []struct {
		status domain.TransactionStatus
		dst    *int64
	}{
		{domain.TransactionStatusPending, &stats.Pending},
		{domain.TransactionStatusMempool, &stats.Mempool},
		{domain.TransactionStatusConfirmed, &stats.Confirmed},
		{domain.TransactionStatusFailed, &stats.Failed},
	}
	for _, c := range counts {
		n, err := s.tracked.CountByStatus(ctx, c.status)
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}
	return stats, nil
}

func (s *TransactionService) mirror(ctx context.Context, tx *domain.TrackedTransaction, mutate func(*domain.Note)) {
	note, err := mirrorNote(ctx, s.notes, tx, mutate)
	if err != nil {
		s.logger.Warn("failed to mirror note status", "note_id", tx.NoteID, "tx_id", tx.ID, "error", err)
		return
	}
	if note != nil {
		s.notifier.NoteUpdated(note)
	}
}

// mirrorNote copies the transaction status onto its note. A missing note
// is not an error.
func mirrorNote(ctx context.Context, notes repository.NoteRepository, tx *domain.TrackedTransaction, mutate func(*domain.Note)) (*domain.Note, error) {
	note, err := notes.FindByID(ctx, tx.NoteID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	note.Status = domain.NoteStatus(tx.Status)
	if mutate != nil {
		mutate(note)
	}
	if err := notes.Update(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}
