package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"chainnotes-sync-server/internal/blockfrost"
	"chainnotes-sync-server/internal/domain"
	"chainnotes-sync-server/internal/repository"
)

type mockNoteRepo struct {
	notes  map[int64]*domain.Note
	nextID int64
	// createErr fails the next Create and is then cleared.
	createErr error
}

func newMockNoteRepo() *mockNoteRepo {
	return &mockNoteRepo{notes: make(map[int64]*domain.Note)}
}

func (m *mockNoteRepo) Create(ctx context.Context, note *domain.Note) error {
	if err := m.createErr; err != nil {
		m.createErr = nil
		return err
	}
	m.nextID++
	note.ID = m.nextID
	copied := *note
	m.notes[note.ID] = &copied
	return nil
}

func (m *mockNoteRepo) put(note *domain.Note) {
	if note.ID > m.nextID {
		m.nextID = note.ID
	}
	copied := *note
	m.notes[note.ID] = &copied
}

func (m *mockNoteRepo) FindByID(ctx context.Context, id int64) (*domain.Note, error) {
	if n, exists := m.notes[id]; exists {
		copied := *n
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockNoteRepo) List(ctx context.Context, filter domain.NoteFilter) ([]*domain.Note, error) {
	var notes []*domain.Note
	for _, n := range m.notes {
		if filter.Wallet != "" && n.WalletAddress != filter.Wallet && n.CreatedByWallet != filter.Wallet {
			continue
		}
		if filter.Status != "" && n.Status != filter.Status {
			continue
		}
		if q := strings.ToLower(filter.Query); q != "" &&
			!strings.Contains(strings.ToLower(n.Title), q) && !strings.Contains(strings.ToLower(n.Content), q) {
			continue
		}
		copied := *n
		notes = append(notes, &copied)
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].ID < notes[j].ID })
	return notes, nil
}

func (m *mockNoteRepo) Update(ctx context.Context, note *domain.Note) error {
	if _, exists := m.notes[note.ID]; !exists {
		return repository.ErrNotFound
	}
	copied := *note
	m.notes[note.ID] = &copied
	return nil
}

func (m *mockNoteRepo) Delete(ctx context.Context, id int64) error {
	if _, exists := m.notes[id]; !exists {
		return repository.ErrNotFound
	}
	delete(m.notes, id)
	return nil
}

type mockTrackedRepo struct {
	txs    map[int64]*domain.TrackedTransaction
	nextID int64
	// afterFind runs once FindByID has copied the row out.
	afterFind func(id int64)
}

func newMockTrackedRepo() *mockTrackedRepo {
	return &mockTrackedRepo{txs: make(map[int64]*domain.TrackedTransaction)}
}

func (m *mockTrackedRepo) Create(ctx context.Context, tx *domain.TrackedTransaction) error {
	m.nextID++
	tx.ID = m.nextID
	copied := *tx
	m.txs[tx.ID] = &copied
	return nil
}

func (m *mockTrackedRepo) FindByID(ctx context.Context, id int64) (*domain.TrackedTransaction, error) {
	if tx, exists := m.txs[id]; exists {
		copied := *tx
		if m.afterFind != nil {
			m.afterFind(id)
		}
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockTrackedRepo) FindByHash(ctx context.Context, hash string) (*domain.TrackedTransaction, error) {
	for _, tx := range m.txs {
		if tx.Hash() == hash {
			copied := *tx
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockTrackedRepo) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	_, err := m.FindByHash(ctx, hash)
	return err == nil, nil
}

func (m *mockTrackedRepo) filter(keep func(*domain.TrackedTransaction) bool) []*domain.TrackedTransaction {
	var out []*domain.TrackedTransaction
	for _, tx := range m.txs {
		if keep(tx) {
			copied := *tx
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *mockTrackedRepo) FindByNoteID(ctx context.Context, noteID int64) ([]*domain.TrackedTransaction, error) {
	return m.filter(func(tx *domain.TrackedTransaction) bool { return tx.NoteID == noteID }), nil
}

func (m *mockTrackedRepo) FindByWallet(ctx context.Context, wallet string, page, size int) ([]*domain.TrackedTransaction, int64, error) {
	all := m.filter(func(tx *domain.TrackedTransaction) bool { return tx.WalletAddress == wallet })
	start := page * size
	if start >= len(all) {
		return nil, int64(len(all)), nil
	}
	return all[start:min(start+size, len(all))], int64(len(all)), nil
}

func (m *mockTrackedRepo) FindByStatus(ctx context.Context, statuses ...domain.TransactionStatus) ([]*domain.TrackedTransaction, error) {
	return m.filter(func(tx *domain.TrackedTransaction) bool {
		for _, s := range statuses {
			if tx.Status == s {
				return true
			}
		}
		return false
	}), nil
}

func (m *mockTrackedRepo) CountByStatus(ctx context.Context, status domain.TransactionStatus) (int64, error) {
	txs, _ := m.FindByStatus(ctx, status)
	return int64(len(txs)), nil
}

func (m *mockTrackedRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(m.txs)), nil
}

func (m *mockTrackedRepo) Update(ctx context.Context, tx *domain.TrackedTransaction) error {
	stored, exists := m.txs[tx.ID]
	if !exists {
		return repository.ErrNotFound
	}
	if stored.Version != tx.Version {
		return repository.ErrConflict
	}
	if h := tx.Hash(); h != "" {
		for id, other := range m.txs {
			if id != tx.ID && other.Hash() == h {
				return repository.ErrDuplicate
			}
		}
	}
	tx.Version++
	copied := *tx
	m.txs[tx.ID] = &copied
	return nil
}

func (m *mockTrackedRepo) Delete(ctx context.Context, tx *domain.TrackedTransaction) error {
	stored, exists := m.txs[tx.ID]
	if !exists {
		return repository.ErrNotFound
	}
	if stored.Version != tx.Version {
		return repository.ErrConflict
	}
	delete(m.txs, tx.ID)
	return nil
}

type mockIndexedRepo struct {
	txs    map[string]*domain.IndexedTransaction
	nextID int64
}

func newMockIndexedRepo() *mockIndexedRepo {
	return &mockIndexedRepo{txs: make(map[string]*domain.IndexedTransaction)}
}

func (m *mockIndexedRepo) Create(ctx context.Context, tx *domain.IndexedTransaction) error {
	if _, exists := m.txs[tx.TxHash]; exists {
		return repository.ErrDuplicate
	}
	m.nextID++
	tx.ID = m.nextID
	copied := *tx
	m.txs[tx.TxHash] = &copied
	return nil
}

func (m *mockIndexedRepo) FindByHash(ctx context.Context, hash string) (*domain.IndexedTransaction, error) {
	if tx, exists := m.txs[hash]; exists {
		copied := *tx
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockIndexedRepo) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	_, exists := m.txs[hash]
	return exists, nil
}

func (m *mockIndexedRepo) filter(keep func(*domain.IndexedTransaction) bool) []*domain.IndexedTransaction {
	var out []*domain.IndexedTransaction
	for _, tx := range m.txs {
		if keep(tx) {
			copied := *tx
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockHeight > out[j].BlockHeight })
	return out
}

func (m *mockIndexedRepo) FindByWallet(ctx context.Context, wallet string) ([]*domain.IndexedTransaction, error) {
	return m.filter(func(tx *domain.IndexedTransaction) bool { return tx.WalletAddress == wallet }), nil
}

func (m *mockIndexedRepo) FindByWalletAndStatus(ctx context.Context, wallet string, status domain.TransactionStatus) ([]*domain.IndexedTransaction, error) {
	return m.filter(func(tx *domain.IndexedTransaction) bool {
		return tx.WalletAddress == wallet && tx.Status == status
	}), nil
}

func (m *mockIndexedRepo) FindByNoteID(ctx context.Context, noteID int64) ([]*domain.IndexedTransaction, error) {
	return m.filter(func(tx *domain.IndexedTransaction) bool {
		return tx.NoteID != nil && *tx.NoteID == noteID
	}), nil
}

func (m *mockIndexedRepo) FindByStatus(ctx context.Context, status domain.TransactionStatus) ([]*domain.IndexedTransaction, error) {
	return m.filter(func(tx *domain.IndexedTransaction) bool { return tx.Status == status }), nil
}

func (m *mockIndexedRepo) CountByStatus(ctx context.Context, status domain.TransactionStatus) (int64, error) {
	txs, _ := m.FindByStatus(ctx, status)
	return int64(len(txs)), nil
}

func (m *mockIndexedRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(m.txs)), nil
}

func (m *mockIndexedRepo) Update(ctx context.Context, tx *domain.IndexedTransaction) error {
	if _, exists := m.txs[tx.TxHash]; !exists {
		return repository.ErrNotFound
	}
	copied := *tx
	m.txs[tx.TxHash] = &copied
	return nil
}

func (m *mockIndexedRepo) Delete(ctx context.Context, hash string) error {
	if _, exists := m.txs[hash]; !exists {
		return repository.ErrNotFound
	}
	delete(m.txs, hash)
	return nil
}

// mockLedger serves canned Blockfrost answers and counts detail lookups.
type mockLedger struct {
	mu           sync.Mutex
	configured   bool
	height       int64
	latestErr    error
	healthErr    error
	addressTxs   map[string][]blockfrost.AddressTransaction
	addressErrs  map[string]error
	details      map[string]*blockfrost.TransactionDetail
	detailErrs   map[string]error
	detailCalls  map[string]int
	latestBlocks int
	// onDetail runs before a detail lookup answers, outside the lock.
	onDetail func(hash string)
}

func newMockLedger(height int64) *mockLedger {
	return &mockLedger{
		configured:  true,
		height:      height,
		addressTxs:  make(map[string][]blockfrost.AddressTransaction),
		addressErrs: make(map[string]error),
		details:     make(map[string]*blockfrost.TransactionDetail),
		detailErrs:  make(map[string]error),
		detailCalls: make(map[string]int),
	}
}

func (m *mockLedger) Network() string  { return blockfrost.NetworkPreprod }
func (m *mockLedger) Configured() bool { return m.configured }

func (m *mockLedger) LatestBlock(ctx context.Context) (*blockfrost.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latestBlocks++
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	return &blockfrost.Block{Height: m.height, Hash: "tip"}, nil
}

func (m *mockLedger) AddressTransactions(ctx context.Context, address string, page, count int) ([]blockfrost.AddressTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.addressErrs[address]; err != nil {
		return nil, err
	}
	txs := m.addressTxs[address]
	if len(txs) > count {
		txs = txs[:count]
	}
	return txs, nil
}

func (m *mockLedger) TransactionDetail(ctx context.Context, hash string) (*blockfrost.TransactionDetail, error) {
	if m.onDetail != nil {
		m.onDetail(hash)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detailCalls[hash]++
	if err := m.detailErrs[hash]; err != nil {
		return nil, err
	}
	return m.details[hash], nil
}

func (m *mockLedger) Health(ctx context.Context) error { return m.healthErr }

// addTx publishes a confirmed transaction at height for address, carrying
// payload under label.
func (m *mockLedger) addTx(address, hash string, height int64, label string, payload string) {
	m.addressTxs[address] = append(m.addressTxs[address], blockfrost.AddressTransaction{
		TxHash:      hash,
		BlockHeight: height,
	})
	detail := &blockfrost.TransactionDetail{
		Hash:        hash,
		Block:       "block-" + hash,
		BlockHeight: height,
		BlockTime:   time.Unix(1700000000+height, 0).UTC(),
		Slot:        height * 20,
	}
	if payload != "" {
		detail.Metadata = []blockfrost.MetadataEntry{{Label: label, JSONMetadata: []byte(payload)}}
	}
	m.details[hash] = detail
}

type recordingNotifier struct {
	txs   []domain.TrackedTransaction
	notes []domain.Note
}

func (r *recordingNotifier) TransactionStatusChanged(tx *domain.TrackedTransaction) {
	r.txs = append(r.txs, *tx)
}

func (r *recordingNotifier) NoteUpdated(note *domain.Note) {
	r.notes = append(r.notes, *note)
}

var errLedgerDown = errors.New("ledger down")
