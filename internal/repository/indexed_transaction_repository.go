package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"chainnotes-sync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type indexedDoc struct {
	Rev  string `json:"_rev,omitempty"`
	Type string `json:"type"`
	domain.IndexedTransaction
}

// indexedTransactionRepository keys documents by hash, so CouchDB itself
// rejects a second document for the same ledger transaction.
type indexedTransactionRepository struct {
	db  *kivik.DB
	seq *sequence
}

func indexedDocID(hash string) string {
	return fmt.Sprintf("itx:%s", hash)
}

func (r *indexedTransactionRepository) Create(ctx context.Context, tx *domain.IndexedTransaction) error {
	id, err := r.seq.next(ctx, docTypeIndexed)
	if err != nil {
		return fmt.Errorf("failed to create indexed transaction: %w", err)
	}

	now := time.Now().UTC()
	tx.ID = id
	if tx.IndexedAt.IsZero() {
		tx.IndexedAt = now
	}
	tx.UpdatedAt = now

	doc := indexedDoc{Type: docTypeIndexed, IndexedTransaction: *tx}
	if _, err := r.db.Put(ctx, indexedDocID(tx.TxHash), doc); err != nil {
		return fmt.Errorf("failed to create indexed transaction: %w", translateCouchError(err))
	}
	return nil
}

func (r *indexedTransactionRepository) get(ctx context.Context, hash string) (*indexedDoc, error) {
	var doc indexedDoc
	if err := r.db.Get(ctx, indexedDocID(hash)).ScanDoc(&doc); err != nil {
		return nil, translateCouchError(err)
	}
	return &doc, nil
}

func (r *indexedTransactionRepository) FindByHash(ctx context.Context, hash string) (*domain.IndexedTransaction, error) {
	doc, err := r.get(ctx, hash)
	if err != nil {
		return nil, err
	}
	return &doc.IndexedTransaction, nil
}

func (r *indexedTransactionRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	_, err := r.get(ctx, hash)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check indexed transaction: %w", err)
	}
	return true, nil
}

func (r *indexedTransactionRepository) find(ctx context.Context, selector map[string]interface{}) ([]*domain.IndexedTransaction, error) {
	selector["type"] = docTypeIndexed

	var txs []*domain.IndexedTransaction
	err := findDocs(ctx, r.db, selector, func(rows *kivik.ResultSet) error {
		var doc indexedDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return err
		}
		tx := doc.IndexedTransaction
		txs = append(txs, &tx)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query indexed transactions: %w", err)
	}

	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].BlockHeight > txs[j].BlockHeight
	})
	return txs, nil
}

func (r *indexedTransactionRepository) FindByWallet(ctx context.Context, wallet string) ([]*domain.IndexedTransaction, error) {
	return r.find(ctx, map[string]interface{}{"wallet_address": wallet})
}

func (r *indexedTransactionRepository) FindByWalletAndStatus(ctx context.Context, wallet string, status domain.TransactionStatus) ([]*domain.IndexedTransaction, error) {
	return r.find(ctx, map[string]interface{}{"wallet_address": wallet, "status": status})
}

func (r *indexedTransactionRepository) FindByNoteID(ctx context.Context, noteID int64) ([]*domain.IndexedTransaction, error) {
	return r.find(ctx, map[string]interface{}{"note_id": noteID})
}

func (r *indexedTransactionRepository) FindByStatus(ctx context.Context, status domain.TransactionStatus) ([]*domain.IndexedTransaction, error) {
	return r.find(ctx, map[string]interface{}{"status": status})
}

func (r *indexedTransactionRepository) CountByStatus(ctx context.Context, status domain.TransactionStatus) (int64, error) {
	txs, err := r.FindByStatus(ctx, status)
	if err != nil {
		return 0, err
	}
	return int64(len(txs)), nil
}

func (r *indexedTransactionRepository) Count(ctx context.Context) (int64, error) {
	txs, err := r.find(ctx, map[string]interface{}{})
	if err != nil {
		return 0, err
	}
	return int64(len(txs)), nil
}

func (r *indexedTransactionRepository) Update(ctx context.Context, tx *domain.IndexedTransaction) error {
	existing, err := r.get(ctx, tx.TxHash)
	if err != nil {
		return fmt.Errorf("failed to fetch existing indexed transaction for update: %w", err)
	}

	tx.UpdatedAt = time.Now().UTC()
	doc := indexedDoc{Rev: existing.Rev, Type: docTypeIndexed, IndexedTransaction: *tx}
	if _, err := r.db.Put(ctx, indexedDocID(tx.TxHash), doc); err != nil {
		return fmt.Errorf("failed to update indexed transaction: %w", translateCouchError(err))
	}
	return nil
}

func (r *indexedTransactionRepository) Delete(ctx context.Context, hash string) error {
	existing, err := r.get(ctx, hash)
	if err != nil {
		return err
	}
	if _, err := r.db.Delete(ctx, indexedDocID(hash), existing.Rev); err != nil {
		return fmt.Errorf("failed to delete indexed transaction: %w", translateCouchError(err))
	}
	return nil
}
