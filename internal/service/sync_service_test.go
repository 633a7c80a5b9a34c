package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"chainnotes-sync-server/internal/domain"
	"chainnotes-sync-server/internal/logging"
	"chainnotes-sync-server/internal/metrics"
	"chainnotes-sync-server/internal/validation"
)

var syncNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type syncFixture struct {
	sync     *SyncService
	ledger   *mockLedger
	notes    *mockNoteRepo
	tracked  *mockTrackedRepo
	notifier *recordingNotifier
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	f := &syncFixture{
		ledger:   newMockLedger(1010),
		notes:    newMockNoteRepo(),
		tracked:  newMockTrackedRepo(),
		notifier: &recordingNotifier{},
	}
	f.notes.put(&domain.Note{ID: 7, Title: "X", WalletAddress: ownerWallet, Status: domain.NoteStatusMempool})
	f.sync = NewSyncService(
		logging.Discard(),
		f.ledger,
		f.tracked,
		f.notes,
		f.notifier,
		nil,
		SyncConfig{Timeout: 10 * time.Minute, MaxRetries: 5},
	)
	f.sync.now = func() time.Time { return syncNow }
	return f
}

// track stores an outstanding transaction created age ago.
func (f *syncFixture) track(t *testing.T, hash string, age time.Duration, mutate func(*domain.TrackedTransaction)) *domain.TrackedTransaction {
	t.Helper()
	tx := &domain.TrackedTransaction{
		NoteID:        7,
		Type:          domain.TransactionTypeCreate,
		Status:        domain.TransactionStatusMempool,
		WalletAddress: ownerWallet,
		CreatedAt:     syncNow.Add(-age),
	}
	if hash != "" {
		tx.TxHash = &hash
	} else {
		tx.Status = domain.TransactionStatusPending
	}
	if mutate != nil {
		mutate(tx)
	}
	if err := f.tracked.Create(context.Background(), tx); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return tx
}

func (f *syncFixture) stored(t *testing.T, id int64) *domain.TrackedTransaction {
	t.Helper()
	tx, err := f.tracked.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID(%d) error = %v", id, err)
	}
	return tx
}

func TestSyncConfirmsVisibleTransaction(t *testing.T) {
	f := newSyncFixture(t)
	hash := strings.Repeat("a", 64)
	f.ledger.addTx(watchedAddress, hash, 1000, noteLabel, "")
	tx := f.track(t, hash, time.Minute, nil)

	result := f.sync.Sweep(context.Background())

	if result.Checked != 1 || result.Confirmed != 1 {
		t.Errorf("Sweep() = %+v, want one confirmed", result)
	}

	got := f.stored(t, tx.ID)
	if got.Status != domain.TransactionStatusConfirmed {
		t.Errorf("status = %s, want CONFIRMED", got.Status)
	}
	if got.BlockHeight == nil || *got.BlockHeight != 1000 {
		t.Errorf("block height = %v, want 1000", got.BlockHeight)
	}
	if got.ConfirmedAt == nil || !got.ConfirmedAt.Equal(syncNow) {
		t.Errorf("confirmed at = %v, want %v", got.ConfirmedAt, syncNow)
	}

	note, _ := f.notes.FindByID(context.Background(), 7)
	if !note.OnChain || note.Status != domain.NoteStatusConfirmed || note.LatestTxHash != hash {
		t.Errorf("note = %+v, want on chain and CONFIRMED", note)
	}
	if len(f.notifier.txs) != 1 || len(f.notifier.notes) != 1 {
		t.Errorf("notifications = %d tx, %d note; want 1 each", len(f.notifier.txs), len(f.notifier.notes))
	}
}

func TestSyncConfirmedDeleteDetachesNote(t *testing.T) {
	f := newSyncFixture(t)
	f.notes.put(&domain.Note{ID: 7, Title: "X", WalletAddress: ownerWallet, OnChain: true})
	hash := strings.Repeat("b", 64)
	f.ledger.addTx(watchedAddress, hash, 1000, noteLabel, "")
	f.track(t, hash, time.Minute, func(tx *domain.TrackedTransaction) {
		tx.Type = domain.TransactionTypeDelete
	})

	f.sync.Sweep(context.Background())

	note, _ := f.notes.FindByID(context.Background(), 7)
	if note.OnChain {
		t.Error("confirmed DELETE should clear OnChain")
	}
	if note.LatestTxHash != hash {
		t.Errorf("latest tx hash = %q, want %q", note.LatestTxHash, hash)
	}
}

func TestSyncExpiryTakesPrecedence(t *testing.T) {
	f := newSyncFixture(t)
	hash := strings.Repeat("c", 64)
	f.ledger.addTx(watchedAddress, hash, 1000, noteLabel, "")
	tx := f.track(t, hash, 11*time.Minute, nil)

	result := f.sync.Sweep(context.Background())

	if result.Expired != 1 || result.Confirmed != 0 {
		t.Errorf("Sweep() = %+v, want one expired", result)
	}
	got := f.stored(t, tx.ID)
	if got.Status != domain.TransactionStatusFailed || got.ErrorMessage != "expired" {
		t.Errorf("stored = %s %q, want FAILED expired", got.Status, got.ErrorMessage)
	}
	if f.ledger.detailCalls[hash] != 0 {
		t.Error("expired transaction should not reach the ledger")
	}
	note, _ := f.notes.FindByID(context.Background(), 7)
	if note.Status != domain.NoteStatusFailed {
		t.Errorf("note status = %s, want FAILED", note.Status)
	}
}

func TestSyncMaxRetries(t *testing.T) {
	f := newSyncFixture(t)
	tx := f.track(t, strings.Repeat("d", 64), time.Minute, func(tx *domain.TrackedTransaction) {
		tx.RetryCount = 5
	})

	result := f.sync.Sweep(context.Background())

	if result.Failed != 1 {
		t.Errorf("Sweep() = %+v, want one failed", result)
	}
	got := f.stored(t, tx.ID)
	if got.Status != domain.TransactionStatusFailed || got.ErrorMessage != "max retries exceeded" {
		t.Errorf("stored = %s %q", got.Status, got.ErrorMessage)
	}
}

func TestSyncUnsubmittedIsOnlyStamped(t *testing.T) {
	f := newSyncFixture(t)
	tx := f.track(t, "", time.Minute, nil)

	result := f.sync.Sweep(context.Background())

	if result.Checked != 1 || result.Confirmed+result.Failed+result.Expired+result.Errors != 0 {
		t.Errorf("Sweep() = %+v", result)
	}
	got := f.stored(t, tx.ID)
	if got.Status != domain.TransactionStatusPending || got.RetryCount != 0 {
		t.Errorf("stored = %+v, want untouched PENDING", got)
	}
	if got.LastCheckedAt == nil || !got.LastCheckedAt.Equal(syncNow) {
		t.Errorf("last checked = %v, want %v", got.LastCheckedAt, syncNow)
	}
	if len(f.ledger.detailCalls) != 0 {
		t.Error("unsubmitted transaction should not reach the ledger")
	}
}

func TestSyncNotVisibleCountsRetry(t *testing.T) {
	f := newSyncFixture(t)
	hash := strings.Repeat("e", 64)
	tx := f.track(t, hash, time.Minute, nil)

	for i := 1; i <= 5; i++ {
		f.sync.Sweep(context.Background())
		if got := f.stored(t, tx.ID); got.RetryCount != i || got.Status != domain.TransactionStatusMempool {
			t.Fatalf("after sweep %d: retry %d status %s", i, got.RetryCount, got.Status)
		}
	}

	result := f.sync.Sweep(context.Background())
	if result.Failed != 1 {
		t.Errorf("Sweep() = %+v, want failure once retries are spent", result)
	}
	if f.ledger.detailCalls[hash] != 5 {
		t.Errorf("detail calls = %d, want 5", f.ledger.detailCalls[hash])
	}
}

func TestSyncLookupErrorAtLimitFails(t *testing.T) {
	f := newSyncFixture(t)
	hash := strings.Repeat("f", 64)
	f.ledger.detailErrs[hash] = errLedgerDown
	tx := f.track(t, hash, time.Minute, func(tx *domain.TrackedTransaction) {
		tx.RetryCount = 4
	})

	result := f.sync.Sweep(context.Background())

	if result.Errors != 1 || result.Failed != 1 {
		t.Errorf("Sweep() = %+v, want one error and one failure", result)
	}
	if got := f.stored(t, tx.ID); got.Status != domain.TransactionStatusFailed {
		t.Errorf("status = %s, want FAILED", got.Status)
	}
}

func TestSyncIsolatesTransactions(t *testing.T) {
	f := newSyncFixture(t)
	broken := strings.Repeat("1", 64)
	good := strings.Repeat("2", 64)
	f.ledger.detailErrs[broken] = errLedgerDown
	f.ledger.addTx(watchedAddress, good, 1000, noteLabel, "")
	first := f.track(t, broken, 2*time.Minute, nil)
	second := f.track(t, good, time.Minute, nil)

	result := f.sync.Sweep(context.Background())

	if result.Checked != 2 || result.Errors != 1 || result.Confirmed != 1 {
		t.Errorf("Sweep() = %+v", result)
	}
	if got := f.stored(t, first.ID); got.RetryCount != 1 || got.Status != domain.TransactionStatusMempool {
		t.Errorf("broken tx = %+v", got)
	}
	if got := f.stored(t, second.ID); got.Status != domain.TransactionStatusConfirmed {
		t.Errorf("good tx status = %s", got.Status)
	}
}

func TestSyncSkipsWhileSweeping(t *testing.T) {
	f := newSyncFixture(t)
	f.track(t, strings.Repeat("3", 64), time.Minute, nil)

	f.sync.sweeping.Store(true)
	result := f.sync.Sweep(context.Background())
	f.sync.sweeping.Store(false)

	if !result.Skipped || result.Checked != 0 {
		t.Errorf("Sweep() = %+v, want skipped", result)
	}
}

func TestSyncStopsOnCancelledContext(t *testing.T) {
	f := newSyncFixture(t)
	f.track(t, strings.Repeat("4", 64), time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if result := f.sync.Sweep(ctx); result.Checked != 0 {
		t.Errorf("Sweep() = %+v, want nothing checked", result)
	}
}

func TestSyncRecordsMetrics(t *testing.T) {
	f := newSyncFixture(t)
	m := metrics.New()
	f.sync.metrics = m
	hash := strings.Repeat("5", 64)
	f.ledger.addTx(watchedAddress, hash, 1000, noteLabel, "")
	f.track(t, hash, time.Minute, nil)

	if result := f.sync.Sweep(context.Background()); result.Confirmed != 1 {
		t.Errorf("Sweep() with metrics = %+v, want one confirmed", result)
	}
}

func TestSyncDoesNotOverwriteConcurrentFail(t *testing.T) {
	f := newSyncFixture(t)
	hash := strings.Repeat("6", 64)
	f.ledger.addTx(watchedAddress, hash, 1000, noteLabel, "")
	tx := f.track(t, hash, time.Minute, nil)

	api := NewTransactionService(logging.Discard(), f.tracked, f.notes, f.notifier, validation.New(validation.AddressRules{}))
	f.ledger.onDetail = func(string) {
		if _, err := api.Fail(context.Background(), tx.ID, "wallet rejected"); err != nil {
			t.Errorf("Fail() during sweep error = %v", err)
		}
	}

	result := f.sync.Sweep(context.Background())

	if result.Confirmed != 0 || result.Errors != 0 {
		t.Errorf("Sweep() = %+v, want the lost race skipped", result)
	}
	got := f.stored(t, tx.ID)
	if got.Status != domain.TransactionStatusFailed || got.ErrorMessage != "wallet rejected" {
		t.Errorf("stored = %s %q, want FAILED wallet rejected", got.Status, got.ErrorMessage)
	}
	if note, _ := f.notes.FindByID(context.Background(), 7); note.OnChain {
		t.Error("note should not be anchored by a skipped confirmation")
	}
}

func TestSyncDoesNotResurrectDeletedTransaction(t *testing.T) {
	f := newSyncFixture(t)
	hash := strings.Repeat("7", 64)
	tx := f.track(t, hash, time.Minute, nil)

	f.ledger.onDetail = func(string) {
		delete(f.tracked.txs, tx.ID)
	}

	result := f.sync.Sweep(context.Background())

	if result.Errors != 0 {
		t.Errorf("Sweep() = %+v, want no errors", result)
	}
	if _, err := f.tracked.FindByID(context.Background(), tx.ID); err == nil {
		t.Error("deleted transaction was written back")
	}
}

func TestSyncExpiryRestartsAfterRetry(t *testing.T) {
	f := newSyncFixture(t)
	hash := strings.Repeat("8", 64)
	retried := syncNow.Add(-time.Minute)
	tx := f.track(t, hash, time.Hour, func(tx *domain.TrackedTransaction) {
		tx.Status = domain.TransactionStatusPending
		tx.RetriedAt = &retried
	})

	result := f.sync.Sweep(context.Background())

	if result.Expired != 0 {
		t.Errorf("Sweep() = %+v, want no expiry inside the retry window", result)
	}
	got := f.stored(t, tx.ID)
	if got.Status != domain.TransactionStatusPending || got.RetryCount != 1 {
		t.Errorf("stored = %s retry %d, want PENDING retry 1", got.Status, got.RetryCount)
	}
	if !got.CreatedAt.Equal(syncNow.Add(-time.Hour)) {
		t.Errorf("created at = %v, should be untouched", got.CreatedAt)
	}

	f.sync.now = func() time.Time { return syncNow.Add(10 * time.Minute) }
	if result := f.sync.Sweep(context.Background()); result.Expired != 1 {
		t.Errorf("Sweep() past the retry window = %+v, want one expired", result)
	}
}
