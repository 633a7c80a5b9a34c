package service

import (
	"context"
	"errors"
	"testing"

	"chainnotes-sync-server/internal/domain"
	"chainnotes-sync-server/internal/logging"
)

func TestBlockchainServiceQueries(t *testing.T) {
	ctx := context.Background()
	indexed := newMockIndexedRepo()
	noteID := int64(7)
	indexed.Create(ctx, &domain.IndexedTransaction{TxHash: "aa", BlockHeight: 10, Status: domain.TransactionStatusConfirmed, WalletAddress: ownerWallet, NoteID: &noteID})
	indexed.Create(ctx, &domain.IndexedTransaction{TxHash: "bb", BlockHeight: 20, Status: domain.TransactionStatusPending, WalletAddress: ownerWallet})

	service := NewBlockchainService(logging.Discard(), newMockLedger(100), indexed)

	tx, err := service.Transaction(ctx, "AA")
	if err != nil || tx.TxHash != "aa" {
		t.Errorf("Transaction() = %v, %v", tx, err)
	}
	var nf *NotFoundError
	if _, err := service.Transaction(ctx, "cc"); !errors.As(err, &nf) {
		t.Errorf("Transaction(missing) error = %v, want NotFoundError", err)
	}

	if exists, _ := service.Exists(ctx, "bb"); !exists {
		t.Error("Exists(bb) = false")
	}

	all, _ := service.ByWallet(ctx, ownerWallet)
	if len(all) != 2 || all[0].TxHash != "bb" {
		t.Errorf("ByWallet() = %v, want newest block first", all)
	}
	confirmed, _ := service.ConfirmedByWallet(ctx, ownerWallet)
	if len(confirmed) != 1 {
		t.Errorf("ConfirmedByWallet() = %d rows", len(confirmed))
	}
	byNote, _ := service.ByNote(ctx, 7)
	if len(byNote) != 1 {
		t.Errorf("ByNote() = %d rows", len(byNote))
	}
	none, err := service.ByNote(ctx, 8)
	if err != nil || none == nil {
		t.Errorf("ByNote(unknown) = %v, %v; want empty slice", none, err)
	}
	pending, _ := service.Pending(ctx)
	if len(pending) != 1 {
		t.Errorf("Pending() = %d rows", len(pending))
	}

	if n, err := service.CountByStatus(ctx, "confirmed"); err != nil || n != 1 {
		t.Errorf("CountByStatus(confirmed) = %d, %v", n, err)
	}
	var verr *ValidationError
	if _, err := service.CountByStatus(ctx, "LOST"); !errors.As(err, &verr) {
		t.Errorf("CountByStatus(LOST) error = %v, want ValidationError", err)
	}
}

func TestBlockchainServiceHealth(t *testing.T) {
	ledger := newMockLedger(100)
	service := NewBlockchainService(logging.Discard(), ledger, newMockIndexedRepo())

	if h := service.Health(context.Background()); h.Status != domain.LedgerAvailable {
		t.Errorf("Health() = %+v, want AVAILABLE", h)
	}

	ledger.healthErr = errLedgerDown
	if h := service.Health(context.Background()); h.Status != domain.LedgerUnavailable || h.Error == "" {
		t.Errorf("Health() = %+v, want UNAVAILABLE with error", h)
	}

	ledger.configured = false
	if h := service.Health(context.Background()); h.Configured {
		t.Errorf("Health() = %+v, want unconfigured", h)
	}
}
