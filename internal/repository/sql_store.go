package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chainnotes-sync-server/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenSQLite opens (or creates) a SQLite database at path and migrates the
// schema. Use ":memory:" for a throwaway store.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serialises writers.
	sqlDB.SetMaxOpenConns(1)

	if err := db.WithContext(ctx).AutoMigrate(
		&domain.Note{},
		&domain.TrackedTransaction{},
		&domain.IndexedTransaction{},
	); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}

	return &Store{
		Notes:      &sqlNoteRepository{db: db},
		Tracked:    &sqlTrackedTransactionRepository{db: db},
		Indexed:    &sqlIndexedTransactionRepository{db: db},
		closeFuncs: []func() error{sqlDB.Close},
	}, nil
}

func translateSQLError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey),
		strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

type sqlNoteRepository struct {
	db *gorm.DB
}

func (r *sqlNoteRepository) Create(ctx context.Context, note *domain.Note) error {
	if err := r.db.WithContext(ctx).Create(note).Error; err != nil {
		return fmt.Errorf("failed to create note: %w", translateSQLError(err))
	}
	return nil
}

func (r *sqlNoteRepository) FindByID(ctx context.Context, id int64) (*domain.Note, error) {
	var note domain.Note
	if err := r.db.WithContext(ctx).First(&note, id).Error; err != nil {
		return nil, translateSQLError(err)
	}
	return &note, nil
}

func (r *sqlNoteRepository) List(ctx context.Context, filter domain.NoteFilter) ([]*domain.Note, error) {
	query := r.db.WithContext(ctx).Model(&domain.Note{})
	if filter.Wallet != "" {
		query = query.Where("wallet_address = ? OR created_by_wallet = ?", filter.Wallet, filter.Wallet)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(content) LIKE ?", like, like)
	}

	var notes []*domain.Note
	if err := query.Order("is_pinned DESC, updated_at DESC").Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, nil
}

func (r *sqlNoteRepository) Update(ctx context.Context, note *domain.Note) error {
	result := r.db.WithContext(ctx).Save(note)
	if result.Error != nil {
		return fmt.Errorf("failed to update note: %w", translateSQLError(result.Error))
	}
	return nil
}

func (r *sqlNoteRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&domain.Note{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete note: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type sqlTrackedTransactionRepository struct {
	db *gorm.DB
}

func (r *sqlTrackedTransactionRepository) Create(ctx context.Context, tx *domain.TrackedTransaction) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("failed to create tracked transaction: %w", translateSQLError(err))
	}
	return nil
}

func (r *sqlTrackedTransactionRepository) FindByID(ctx context.Context, id int64) (*domain.TrackedTransaction, error) {
	var tx domain.TrackedTransaction
	if err := r.db.WithContext(ctx).First(&tx, id).Error; err != nil {
		return nil, translateSQLError(err)
	}
	return &tx, nil
}

func (r *sqlTrackedTransactionRepository) FindByHash(ctx context.Context, hash string) (*domain.TrackedTransaction, error) {
	var tx domain.TrackedTransaction
	if err := r.db.WithContext(ctx).Where("tx_hash = ?", hash).First(&tx).Error; err != nil {
		return nil, translateSQLError(err)
	}
	return &tx, nil
}

func (r *sqlTrackedTransactionRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.TrackedTransaction{}).Where("tx_hash = ?", hash).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check tracked transaction: %w", err)
	}
	return count > 0, nil
}

func (r *sqlTrackedTransactionRepository) FindByNoteID(ctx context.Context, noteID int64) ([]*domain.TrackedTransaction, error) {
	var txs []*domain.TrackedTransaction
	if err := r.db.WithContext(ctx).Where("note_id = ?", noteID).Order("created_at DESC").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list tracked transactions by note: %w", err)
	}
	return txs, nil
}

func (r *sqlTrackedTransactionRepository) FindByWallet(ctx context.Context, wallet string, page, size int) ([]*domain.TrackedTransaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.TrackedTransaction{}).Where("wallet_address = ?", wallet)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count tracked transactions by wallet: %w", err)
	}

	var txs []*domain.TrackedTransaction
	err := query.Order("created_at DESC").Offset(page * size).Limit(size).Find(&txs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tracked transactions by wallet: %w", err)
	}
	return txs, total, nil
}

func (r *sqlTrackedTransactionRepository) FindByStatus(ctx context.Context, statuses ...domain.TransactionStatus) ([]*domain.TrackedTransaction, error) {
	var txs []*domain.TrackedTransaction
	if err := r.db.WithContext(ctx).Where("status IN ?", statuses).Order("created_at ASC").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list tracked transactions by status: %w", err)
	}
	return txs, nil
}

func (r *sqlTrackedTransactionRepository) CountByStatus(ctx context.Context, status domain.TransactionStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.TrackedTransaction{}).Where("status = ?", status).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count tracked transactions: %w", err)
	}
	return count, nil
}

func (r *sqlTrackedTransactionRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.TrackedTransaction{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count tracked transactions: %w", err)
	}
	return count, nil
}

func (r *sqlTrackedTransactionRepository) Update(ctx context.Context, tx *domain.TrackedTransaction) error {
	expected := tx.Version
	tx.Version++
	result := r.db.WithContext(ctx).
		Model(&domain.TrackedTransaction{}).
		Where("id = ? AND version = ?", tx.ID, expected).
		Select("*").
		Updates(tx)
	if result.Error != nil {
		tx.Version = expected
		return fmt.Errorf("failed to update tracked transaction: %w", translateSQLError(result.Error))
	}
	if result.RowsAffected == 0 {
		tx.Version = expected
		return r.missOrConflict(ctx, tx.ID)
	}
	return nil
}

func (r *sqlTrackedTransactionRepository) Delete(ctx context.Context, tx *domain.TrackedTransaction) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND version = ?", tx.ID, tx.Version).
		Delete(&domain.TrackedTransaction{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete tracked transaction: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return r.missOrConflict(ctx, tx.ID)
	}
	return nil
}

// missOrConflict explains a write that matched no row.
func (r *sqlTrackedTransactionRepository) missOrConflict(ctx context.Context, id int64) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.TrackedTransaction{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check tracked transaction: %w", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

type sqlIndexedTransactionRepository struct {
	db *gorm.DB
}

func (r *sqlIndexedTransactionRepository) Create(ctx context.Context, tx *domain.IndexedTransaction) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("failed to create indexed transaction: %w", translateSQLError(err))
	}
	return nil
}

func (r *sqlIndexedTransactionRepository) FindByHash(ctx context.Context, hash string) (*domain.IndexedTransaction, error) {
	var tx domain.IndexedTransaction
	if err := r.db.WithContext(ctx).Where("tx_hash = ?", hash).First(&tx).Error; err != nil {
		return nil, translateSQLError(err)
	}
	return &tx, nil
}

func (r *sqlIndexedTransactionRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.IndexedTransaction{}).Where("tx_hash = ?", hash).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check indexed transaction: %w", err)
	}
	return count > 0, nil
}

func (r *sqlIndexedTransactionRepository) FindByWallet(ctx context.Context, wallet string) ([]*domain.IndexedTransaction, error) {
	return r.find(ctx, "wallet_address = ?", wallet)
}

func (r *sqlIndexedTransactionRepository) FindByWalletAndStatus(ctx context.Context, wallet string, status domain.TransactionStatus) ([]*domain.IndexedTransaction, error) {
	return r.find(ctx, "wallet_address = ? AND status = ?", wallet, status)
}

func (r *sqlIndexedTransactionRepository) FindByNoteID(ctx context.Context, noteID int64) ([]*domain.IndexedTransaction, error) {
	return r.find(ctx, "note_id = ?", noteID)
}

func (r *sqlIndexedTransactionRepository) FindByStatus(ctx context.Context, status domain.TransactionStatus) ([]*domain.IndexedTransaction, error) {
	return r.find(ctx, "status = ?", status)
}

func (r *sqlIndexedTransactionRepository) find(ctx context.Context, where string, args ...interface{}) ([]*domain.IndexedTransaction, error) {
	var txs []*domain.IndexedTransaction
	if err := r.db.WithContext(ctx).Where(where, args...).Order("block_height DESC").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list indexed transactions: %w", err)
	}
	return txs, nil
}

func (r *sqlIndexedTransactionRepository) CountByStatus(ctx context.Context, status domain.TransactionStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.IndexedTransaction{}).Where("status = ?", status).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count indexed transactions: %w", err)
	}
	return count, nil
}

func (r *sqlIndexedTransactionRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.IndexedTransaction{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count indexed transactions: %w", err)
	}
	return count, nil
}

func (r *sqlIndexedTransactionRepository) Update(ctx context.Context, tx *domain.IndexedTransaction) error {
	if err := r.db.WithContext(ctx).Save(tx).Error; err != nil {
		return fmt.Errorf("failed to update indexed transaction: %w", translateSQLError(err))
	}
	return nil
}

func (r *sqlIndexedTransactionRepository) Delete(ctx context.Context, hash string) error {
	result := r.db.WithContext(ctx).Where("tx_hash = ?", hash).Delete(&domain.IndexedTransaction{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete indexed transaction: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
