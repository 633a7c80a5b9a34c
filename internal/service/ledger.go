package service

import (
	"context"

	"chainnotes-sync-server/internal/blockfrost"
	"chainnotes-sync-server/internal/domain"
)

// LedgerClient is the read-only ledger access the services need.
// *blockfrost.Client implements it.
type LedgerClient interface {
	Network() string
	Configured() bool
	LatestBlock(ctx context.Context) (*blockfrost.Block, error)
	AddressTransactions(ctx context.Context, address string, page, count int) ([]blockfrost.AddressTransaction, error)
	TransactionDetail(ctx context.Context, hash string) (*blockfrost.TransactionDetail, error)
	Health(ctx context.Context) error
}

var _ LedgerClient = (*blockfrost.Client)(nil)

// Notifier receives status changes so they can be pushed to connected clients.
type Notifier interface {
	TransactionStatusChanged(tx *domain.TrackedTransaction)
	NoteUpdated(note *domain.Note)
}

type NopNotifier struct{}

func (NopNotifier) TransactionStatusChanged(*domain.TrackedTransaction) {}
func (NopNotifier) NoteUpdated(*domain.Note)                           {}
