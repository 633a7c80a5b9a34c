package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"chainnotes-sync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type trackedDoc struct {
	Rev  string `json:"_rev,omitempty"`
	Type string `json:"type"`
	domain.TrackedTransaction
}

type trackedTransactionRepository struct {
	db  *kivik.DB
	seq *sequence
}

func trackedDocID(id int64) string {
	return fmt.Sprintf("ttx:%d", id)
}

func (r *trackedTransactionRepository) Create(ctx context.Context, tx *domain.TrackedTransaction) error {
	id, err := r.seq.next(ctx, docTypeTracked)
	if err != nil {
		return fmt.Errorf("failed to create tracked transaction: %w", err)
	}

	tx.ID = id
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	doc := trackedDoc{Type: docTypeTracked, TrackedTransaction: *tx}
	if _, err := r.db.Put(ctx, trackedDocID(id), doc); err != nil {
		return fmt.Errorf("failed to create tracked transaction: %w", translateCouchError(err))
	}
	return nil
}

func (r *trackedTransactionRepository) get(ctx context.Context, id int64) (*trackedDoc, error) {
	var doc trackedDoc
	if err := r.db.Get(ctx, trackedDocID(id)).ScanDoc(&doc); err != nil {
		return nil, translateCouchError(err)
	}
	return &doc, nil
}

func (r *trackedTransactionRepository) FindByID(ctx context.Context, id int64) (*domain.TrackedTransaction, error) {
	doc, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &doc.TrackedTransaction, nil
}

func (r *trackedTransactionRepository) find(ctx context.Context, selector map[string]interface{}) ([]*domain.TrackedTransaction, error) {
	selector["type"] = docTypeTracked

	var txs []*domain.TrackedTransaction
	err := findDocs(ctx, r.db, selector, func(rows *kivik.ResultSet) error {
		var doc trackedDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return err
		}
		tx := doc.TrackedTransaction
		txs = append(txs, &tx)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked transactions: %w", err)
	}
	return txs, nil
}

func (r *trackedTransactionRepository) FindByHash(ctx context.Context, hash string) (*domain.TrackedTransaction, error) {
	txs, err := r.find(ctx, map[string]interface{}{"tx_hash": hash})
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, ErrNotFound
	}
	return txs[0], nil
}

func (r *trackedTransactionRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	txs, err := r.find(ctx, map[string]interface{}{"tx_hash": hash})
	if err != nil {
		return false, err
	}
	return len(txs) > 0, nil
}

func (r *trackedTransactionRepository) FindByNoteID(ctx context.Context, noteID int64) ([]*domain.TrackedTransaction, error) {
	txs, err := r.find(ctx, map[string]interface{}{"note_id": noteID})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(txs)
	return txs, nil
}

func (r *trackedTransactionRepository) FindByWallet(ctx context.Context, wallet string, page, size int) ([]*domain.TrackedTransaction, int64, error) {
	txs, err := r.find(ctx, map[string]interface{}{"wallet_address": wallet})
	if err != nil {
		return nil, 0, err
	}
	sortNewestFirst(txs)

	total := int64(len(txs))
	start := page * size
	if start >= len(txs) {
		return []*domain.TrackedTransaction{}, total, nil
	}
	end := min(start+size, len(txs))
	return txs[start:end], total, nil
}

func (r *trackedTransactionRepository) FindByStatus(ctx context.Context, statuses ...domain.TransactionStatus) ([]*domain.TrackedTransaction, error) {
	txs, err := r.find(ctx, map[string]interface{}{
		"status": map[string]interface{}{"$in": statuses},
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt.Before(txs[j].CreatedAt)
	})
	return txs, nil
}

func (r *trackedTransactionRepository) CountByStatus(ctx context.Context, status domain.TransactionStatus) (int64, error) {
	txs, err := r.find(ctx, map[string]interface{}{"status": status})
	if err != nil {
		return 0, err
	}
	return int64(len(txs)), nil
}

func (r *trackedTransactionRepository) Count(ctx context.Context) (int64, error) {
	txs, err := r.find(ctx, map[string]interface{}{})
	if err != nil {
		return 0, err
	}
	return int64(len(txs)), nil
}

func (r *trackedTransactionRepository) Update(ctx context.Context, tx *domain.TrackedTransaction) error {
	existing, err := r.get(ctx, tx.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch existing tracked transaction for update: %w", err)
	}
	if existing.Version != tx.Version {
		return ErrConflict
	}

	tx.Version++
	doc := trackedDoc{Rev: existing.Rev, Type: docTypeTracked, TrackedTransaction: *tx}
	if _, err := r.db.Put(ctx, trackedDocID(tx.ID), doc); err != nil {
		tx.Version--
		return fmt.Errorf("failed to update tracked transaction: %w", translateRevError(err))
	}
	return nil
}

func (r *trackedTransactionRepository) Delete(ctx context.Context, tx *domain.TrackedTransaction) error {
	existing, err := r.get(ctx, tx.ID)
	if err != nil {
		return err
	}
	if existing.Version != tx.Version {
		return ErrConflict
	}

	if _, err := r.db.Delete(ctx, trackedDocID(tx.ID), existing.Rev); err != nil {
		return fmt.Errorf("failed to delete tracked transaction: %w", translateRevError(err))
	}
	return nil
}

func sortNewestFirst(txs []*domain.TrackedTransaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}
