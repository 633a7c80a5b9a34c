package repository

import (
	"context"
	"errors"
	"fmt"

	"chainnotes-sync-server/internal/domain"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrConflict means the record changed after it was read.
	ErrConflict = errors.New("record changed concurrently")
)

type NoteRepository interface {
	Create(ctx context.Context, note *domain.Note) error
	FindByID(ctx context.Context, id int64) (*domain.Note, error)
	List(ctx context.Context, filter domain.NoteFilter) ([]*domain.Note, error)
	Update(ctx context.Context, note *domain.Note) error
	Delete(ctx context.Context, id int64) error
}

// TrackedTransactionRepository writes optimistically. Update and Delete only
// apply when the stored Version equals tx.Version and fail with ErrConflict
// otherwise. A successful Update increments tx.Version.
type TrackedTransactionRepository interface {
	Create(ctx context.Context, tx *domain.TrackedTransaction) error
	FindByID(ctx context.Context, id int64) (*domain.TrackedTransaction, error)
	FindByHash(ctx context.Context, hash string) (*domain.TrackedTransaction, error)
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	FindByNoteID(ctx context.Context, noteID int64) ([]*domain.TrackedTransaction, error)
	FindByWallet(ctx context.Context, wallet string, page, size int) ([]*domain.TrackedTransaction, int64, error)
	FindByStatus(ctx context.Context, statuses ...domain.TransactionStatus) ([]*domain.TrackedTransaction, error)
	CountByStatus(ctx context.Context, status domain.TransactionStatus) (int64, error)
	Count(ctx context.Context) (int64, error)
	Update(ctx context.Context, tx *domain.TrackedTransaction) error
	Delete(ctx context.Context, tx *domain.TrackedTransaction) error
}

type IndexedTransactionRepository interface {
	Create(ctx context.Context, tx *domain.IndexedTransaction) error
	FindByHash(ctx context.Context, hash string) (*domain.IndexedTransaction, error)
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	FindByWallet(ctx context.Context, wallet string) ([]*domain.IndexedTransaction, error)
	FindByWalletAndStatus(ctx context.Context, wallet string, status domain.TransactionStatus) ([]*domain.IndexedTransaction, error)
	FindByNoteID(ctx context.Context, noteID int64) ([]*domain.IndexedTransaction, error)
	FindByStatus(ctx context.Context, status domain.TransactionStatus) ([]*domain.IndexedTransaction, error)
	CountByStatus(ctx context.Context, status domain.TransactionStatus) (int64, error)
	Count(ctx context.Context) (int64, error)
	Update(ctx context.Context, tx *domain.IndexedTransaction) error
	Delete(ctx context.Context, hash string) error
}

// Store bundles the repositories of one backend.
type Store struct {
	Notes      NoteRepository
	Tracked    TrackedTransactionRepository
	Indexed    IndexedTransactionRepository
	closeFuncs []func() error
}

func (s *Store) Close() error {
	var errs []error
	for _, fn := range s.closeFuncs {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const (
	DriverCouchDB = "couchdb"
	DriverSQLite  = "sqlite"
)

type Config struct {
	Driver     string
	Couch      CouchConfig
	SQLitePath string
}

// Open returns the store for the configured driver.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	switch cfg.Driver {
	case DriverCouchDB, "":
		return OpenCouch(ctx, cfg.Couch)
	case DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
