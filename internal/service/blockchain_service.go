package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"chainnotes-sync-server/internal/domain"
	"chainnotes-sync-server/internal/logging"
	"chainnotes-sync-server/internal/repository"
)

// LedgerHealth is the answer of the blockchain health route.
type LedgerHealth struct {
	Network    string `json:"network"`
	Configured bool   `json:"configured"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// BlockchainService answers read queries over indexed ledger transactions.
type BlockchainService struct {
	logger  *slog.Logger
	ledger  LedgerClient
	indexed repository.IndexedTransactionRepository
}

func NewBlockchainService(logger *slog.Logger, ledger LedgerClient, indexed repository.IndexedTransactionRepository) *BlockchainService {
	return &BlockchainService{
		logger:  logging.Child(logger, "blockchain"),
		ledger:  ledger,
		indexed: indexed,
	}
}

func (s *BlockchainService) Transaction(ctx context.Context, hash string) (*domain.IndexedTransaction, error) {
	tx, err := s.indexed.FindByHash(ctx, strings.ToLower(hash))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("indexed transaction", hash)
	}
	return tx, err
}

func (s *BlockchainService) Exists(ctx context.Context, hash string) (bool, error) {
	return s.indexed.ExistsByHash(ctx, strings.ToLower(hash))
}

func (s *BlockchainService) ByWallet(ctx context.Context, wallet string) ([]*domain.IndexedTransaction, error) {
	return nonNil(s.indexed.FindByWallet(ctx, wallet))
}

func (s *BlockchainService) ConfirmedByWallet(ctx context.Context, wallet string) ([]*domain.IndexedTransaction, error) {
	return nonNil(s.indexed.FindByWalletAndStatus(ctx, wallet, domain.TransactionStatusConfirmed))
}

func (s *BlockchainService) ByNote(ctx context.Context, noteID int64) ([]*domain.IndexedTransaction, error) {
	return nonNil(s.indexed.FindByNoteID(ctx, noteID))
}

func (s *BlockchainService) Pending(ctx context.Context) ([]*domain.IndexedTransaction, error) {
	return nonNil(s.indexed.FindByStatus(ctx, domain.TransactionStatusPending))
}

// CountByStatus counts indexed rows with status, matched case-insensitively.
func (s *BlockchainService) CountByStatus(ctx context.Context, status string) (int64, error) {
	parsed, err := parseStatus(status)
	if err != nil {
		return 0, err
	}
	return s.indexed.CountByStatus(ctx, parsed)
}

func (s *BlockchainService) Health(ctx context.Context) LedgerHealth {
	health := LedgerHealth{
		Network:    s.ledger.Network(),
		Configured: s.ledger.Configured(),
		Status:     domain.LedgerUnavailable,
	}
	if !health.Configured {
		health.Error = "blockfrost project id is not configured"
		return health
	}
	if err := s.ledger.Health(ctx); err != nil {
		health.Error = err.Error()
		return health
	}
	health.Status = domain.LedgerAvailable
	return health
}

func parseStatus(status string) (domain.TransactionStatus, error) {
	switch parsed := domain.TransactionStatus(strings.ToUpper(strings.TrimSpace(status))); parsed {
	case domain.TransactionStatusPending, domain.TransactionStatusMempool,
		domain.TransactionStatusConfirmed, domain.TransactionStatusFailed:
		return parsed, nil
	default:
		return "", &ValidationError{Field: "status", Message: "unknown transaction status " + status}
	}
}

func nonNil(txs []*domain.IndexedTransaction, err error) ([]*domain.IndexedTransaction, error) {
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []*domain.IndexedTransaction{}
	}
	return txs, nil
}
