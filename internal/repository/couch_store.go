package repository

import (
	"context"
	"fmt"
	"net/http"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
)

const (
	docTypeNote    = "note"
	docTypeTracked = "tracked_transaction"
	docTypeIndexed = "indexed_transaction"

	designDoc = "chainnotes"

	// CouchDB's _find returns 25 rows unless told otherwise.
	findLimit = 100000

	maxSequenceAttempts = 10
)

type CouchConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

func (c CouchConfig) DSN() string {
	return fmt.Sprintf("http://%s:%s@%s:%s", c.User, c.Password, c.Host, c.Port)
}

// OpenCouch connects to CouchDB, creates the database and its Mango indexes
// when missing, and returns the CouchDB-backed repositories.
func OpenCouch(ctx context.Context, cfg CouchConfig) (*Store, error) {
	client, err := kivik.New("couch", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CouchDB: %w", err)
	}

	exists, err := client.DBExists(ctx, cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}
	if !exists {
		if err := client.CreateDB(ctx, cfg.Name); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	db := client.DB(cfg.Name)
	if err := db.Err(); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ensureIndexes(ctx, db); err != nil {
		return nil, err
	}

	seq := &sequence{db: db}
	return &Store{
		Notes:      &noteRepository{db: db, seq: seq},
		Tracked:    &trackedTransactionRepository{db: db, seq: seq},
		Indexed:    &indexedTransactionRepository{db: db, seq: seq},
		closeFuncs: []func() error{client.Close},
	}, nil
}

func ensureIndexes(ctx context.Context, db *kivik.DB) error {
	indexes := map[string][]string{
		"by-type-status":  {"type", "status"},
		"by-type-wallet":  {"type", "wallet_address"},
		"by-type-note":    {"type", "note_id"},
		"by-type-tx-hash": {"type", "tx_hash"},
	}
	for name, fields := range indexes {
		index := map[string]interface{}{"fields": fields}
		if err := db.CreateIndex(ctx, designDoc, name, index); err != nil {
			return fmt.Errorf("failed to create index %s: %w", name, err)
		}
	}
	return nil
}

type sequenceDoc struct {
	Rev   string `json:"_rev,omitempty"`
	Type  string `json:"type"`
	Value int64  `json:"value"`
}

// sequence hands out integer IDs from a counter document per kind. A lost
// revision race is retried.
type sequence struct {
	db *kivik.DB
}

func (s *sequence) next(ctx context.Context, kind string) (int64, error) {
	docID := fmt.Sprintf("seq:%s", kind)

	for attempt := 0; attempt < maxSequenceAttempts; attempt++ {
		var doc sequenceDoc
		if err := s.db.Get(ctx, docID).ScanDoc(&doc); err != nil && !isCouchNotFound(err) {
			return 0, fmt.Errorf("failed to read sequence %s: %w", kind, err)
		}

		doc.Type = "sequence"
		doc.Value++
		if _, err := s.db.Put(ctx, docID, doc); err != nil {
			if kivik.HTTPStatus(err) == http.StatusConflict {
				continue
			}
			return 0, fmt.Errorf("failed to advance sequence %s: %w", kind, err)
		}
		return doc.Value, nil
	}

	return 0, fmt.Errorf("failed to advance sequence %s: too many conflicts", kind)
}

func isCouchNotFound(err error) bool {
	return kivik.HTTPStatus(err) == http.StatusNotFound
}

func translateCouchError(err error) error {
	switch kivik.HTTPStatus(err) {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

// translateRevError maps a stale _rev to ErrConflict.
func translateRevError(err error) error {
	if kivik.HTTPStatus(err) == http.StatusConflict {
		return ErrConflict
	}
	return translateCouchError(err)
}

// findDocs runs a Mango query and scans every row with scan.
func findDocs(ctx context.Context, db *kivik.DB, selector map[string]interface{}, scan func(*kivik.ResultSet) error) error {
	rows := db.Find(ctx, map[string]interface{}{
		"selector": selector,
		"limit":    findLimit,
	})
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
