package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"chainnotes-sync-server/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func hashOf(s string) *string { return &s }

func TestSQLNoteRepository(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	note := &domain.Note{Title: "Shopping", Content: "milk", WalletAddress: "addr_test1owner"}
	require.NoError(t, store.Notes.Create(ctx, note))
	require.NotZero(t, note.ID)

	found, err := store.Notes.FindByID(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "Shopping", found.Title)

	found.OnChain = true
	found.Status = domain.NoteStatusConfirmed
	require.NoError(t, store.Notes.Update(ctx, found))

	other := &domain.Note{Title: "Work items", Content: "ship the indexer", IsPinned: true}
	require.NoError(t, store.Notes.Create(ctx, other))

	byWallet, err := store.Notes.List(ctx, domain.NoteFilter{Wallet: "addr_test1owner"})
	require.NoError(t, err)
	require.Len(t, byWallet, 1)
	assert.True(t, byWallet[0].OnChain)

	byStatus, err := store.Notes.List(ctx, domain.NoteFilter{Status: domain.NoteStatusConfirmed})
	require.NoError(t, err)
	assert.Len(t, byStatus, 1)

	searched, err := store.Notes.List(ctx, domain.NoteFilter{Query: "INDEXER"})
	require.NoError(t, err)
	require.Len(t, searched, 1)
	assert.Equal(t, other.ID, searched[0].ID)

	all, err := store.Notes.List(ctx, domain.NoteFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].IsPinned, "pinned notes sort first")

	require.NoError(t, store.Notes.Delete(ctx, note.ID))
	_, err = store.Notes.FindByID(ctx, note.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(store.Notes.Delete(ctx, note.ID), ErrNotFound))
}

func TestSQLTrackedTransactionRepository(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		tx := &domain.TrackedTransaction{
			NoteID:        7,
			Type:          domain.TransactionTypeCreate,
			Status:        domain.TransactionStatusPending,
			WalletAddress: "addr_test1owner",
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.Tracked.Create(ctx, tx))
	}

	pending, err := store.Tracked.FindByStatus(ctx, domain.OutstandingStatuses...)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.True(t, pending[0].CreatedAt.Before(pending[2].CreatedAt), "oldest first")

	first := pending[0]
	first.TxHash = hashOf("aa")
	first.Status = domain.TransactionStatusMempool
	require.NoError(t, store.Tracked.Update(ctx, first))

	exists, err := store.Tracked.ExistsByHash(ctx, "aa")
	require.NoError(t, err)
	assert.True(t, exists)

	byHash, err := store.Tracked.FindByHash(ctx, "aa")
	require.NoError(t, err)
	assert.Equal(t, first.ID, byHash.ID)

	second := pending[1]
	second.TxHash = hashOf("aa")
	err = store.Tracked.Update(ctx, second)
	assert.True(t, errors.Is(err, ErrDuplicate), "hash is unique once set, got %v", err)

	mempool, err := store.Tracked.CountByStatus(ctx, domain.TransactionStatusMempool)
	require.NoError(t, err)
	assert.Equal(t, int64(1), mempool)

	page, total, err := store.Tracked.FindByWallet(ctx, "addr_test1owner", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page, 2)

	byNote, err := store.Tracked.FindByNoteID(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, byNote, 3)

	require.NoError(t, store.Tracked.Delete(ctx, pending[2]))
	count, err := store.Tracked.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSQLTrackedTransactionVersioning(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	tx := &domain.TrackedTransaction{
		NoteID:        7,
		Type:          domain.TransactionTypeUpdate,
		Status:        domain.TransactionStatusMempool,
		TxHash:        hashOf("dd"),
		WalletAddress: "addr_test1owner",
	}
	require.NoError(t, store.Tracked.Create(ctx, tx))

	api, err := store.Tracked.FindByID(ctx, tx.ID)
	require.NoError(t, err)
	sweep, err := store.Tracked.FindByID(ctx, tx.ID)
	require.NoError(t, err)

	api.Status = domain.TransactionStatusFailed
	api.ErrorMessage = "wallet rejected"
	require.NoError(t, store.Tracked.Update(ctx, api))
	assert.Equal(t, int64(1), api.Version)

	sweep.Status = domain.TransactionStatusConfirmed
	err = store.Tracked.Update(ctx, sweep)
	assert.True(t, errors.Is(err, ErrConflict), "stale update must conflict, got %v", err)
	assert.Equal(t, int64(0), sweep.Version, "version is restored after a lost race")

	stored, err := store.Tracked.FindByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, stored.Status)
	assert.Equal(t, "wallet rejected", stored.ErrorMessage)

	err = store.Tracked.Delete(ctx, sweep)
	assert.True(t, errors.Is(err, ErrConflict), "stale delete must conflict, got %v", err)
}

func TestSQLTrackedTransactionDeleteIsFinal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	tx := &domain.TrackedTransaction{
		NoteID:        7,
		Type:          domain.TransactionTypeCreate,
		Status:        domain.TransactionStatusPending,
		WalletAddress: "addr_test1owner",
	}
	require.NoError(t, store.Tracked.Create(ctx, tx))

	sweep, err := store.Tracked.FindByID(ctx, tx.ID)
	require.NoError(t, err)
	require.NoError(t, store.Tracked.Delete(ctx, tx))

	now := time.Now().UTC()
	sweep.LastCheckedAt = &now
	err = store.Tracked.Update(ctx, sweep)
	assert.True(t, errors.Is(err, ErrNotFound), "update of a deleted row, got %v", err)

	_, err = store.Tracked.FindByID(ctx, tx.ID)
	assert.True(t, errors.Is(err, ErrNotFound), "deleted row must stay deleted")
	assert.True(t, errors.Is(store.Tracked.Delete(ctx, sweep), ErrNotFound))
}

func TestSQLIndexedTransactionRepository(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	noteID := int64(7)
	tx := &domain.IndexedTransaction{
		TxHash:        "bb",
		BlockHeight:   990,
		Status:        domain.TransactionStatusConfirmed,
		Outcome:       domain.OutcomeApplied,
		WalletAddress: "addr_test1owner",
		NoteID:        &noteID,
	}
	require.NoError(t, store.Indexed.Create(ctx, tx))

	dup := &domain.IndexedTransaction{TxHash: "bb", Status: domain.TransactionStatusConfirmed}
	assert.True(t, errors.Is(store.Indexed.Create(ctx, dup), ErrDuplicate))

	exists, err := store.Indexed.ExistsByHash(ctx, "bb")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Indexed.ExistsByHash(ctx, "cc")
	require.NoError(t, err)
	assert.False(t, exists)

	confirmed, err := store.Indexed.FindByWalletAndStatus(ctx, "addr_test1owner", domain.TransactionStatusConfirmed)
	require.NoError(t, err)
	assert.Len(t, confirmed, 1)

	byNote, err := store.Indexed.FindByNoteID(ctx, noteID)
	require.NoError(t, err)
	assert.Len(t, byNote, 1)

	_, err = store.Indexed.FindByHash(ctx, "cc")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, store.Indexed.Delete(ctx, "bb"))
	exists, err = store.Indexed.ExistsByHash(ctx, "bb")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.True(t, errors.Is(store.Indexed.Delete(ctx, "bb"), ErrNotFound))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"})
	assert.Error(t, err)
}
