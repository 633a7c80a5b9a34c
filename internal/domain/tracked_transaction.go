package domain

import "time"

type TransactionType string

const (
	TransactionTypeCreate TransactionType = "CREATE"
	TransactionTypeUpdate TransactionType = "UPDATE"
	TransactionTypeDelete TransactionType = "DELETE"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusMempool   TransactionStatus = "MEMPOOL"
	TransactionStatusConfirmed TransactionStatus = "CONFIRMED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Outstanding statuses are the ones the sync worker still polls for.
var OutstandingStatuses = []TransactionStatus{TransactionStatusPending, TransactionStatusMempool}

// TrackedTransaction is a locally originated intent to mutate one note,
// followed from PENDING until it is confirmed on the ledger or fails.
type TrackedTransaction struct {
	ID            int64             `json:"id" gorm:"primaryKey;autoIncrement"`
	NoteID        int64             `json:"note_id" gorm:"index;not null"`
	TxHash        *string           `json:"tx_hash" gorm:"size:64;uniqueIndex"`
	Type          TransactionType   `json:"type" gorm:"size:16;not null"`
	Status        TransactionStatus `json:"status" gorm:"size:16;index;not null"`
	WalletAddress string            `json:"wallet_address" gorm:"size:150;index;not null"`
	Metadata      string            `json:"metadata,omitempty" gorm:"type:text"`
	BlockHeight   *int64            `json:"block_height,omitempty"`
	BlockTime     *time.Time        `json:"block_time,omitempty"`
	RetryCount    int               `json:"retry_count"`
	ErrorMessage  string            `json:"error_message,omitempty" gorm:"size:1000"`
	CreatedAt     time.Time         `json:"created_at"`
	ConfirmedAt   *time.Time        `json:"confirmed_at,omitempty"`
	LastCheckedAt *time.Time        `json:"last_checked_at,omitempty"`
	RetriedAt     *time.Time        `json:"retried_at,omitempty"`
	// Version is bumped by every store write; updates only land on the
	// version they were read at.
	Version int64 `json:"version" gorm:"not null;default:0"`
}

func (TrackedTransaction) TableName() string { return "tracked_transactions" }

func (t *TrackedTransaction) IsOutstanding() bool {
	return t.Status == TransactionStatusPending || t.Status == TransactionStatusMempool
}

// ExpiresFrom is the instant the sync timeout is measured from: the last
// manual retry, or creation.
func (t *TrackedTransaction) ExpiresFrom() time.Time {
	if t.RetriedAt != nil {
		return *t.RetriedAt
	}
	return t.CreatedAt
}

func (t *TrackedTransaction) Hash() string {
	if t.TxHash == nil {
		return ""
	}
	return *t.TxHash
}

type CreateTrackedTransactionRequest struct {
	NoteID        int64           `json:"note_id" validate:"gt=0"`
	Type          TransactionType `json:"type" validate:"required,oneof=CREATE UPDATE DELETE"`
	WalletAddress string          `json:"wallet_address" validate:"required,notblank,max=150"`
	Metadata      string          `json:"metadata"`
}

type SubmitTransactionRequest struct {
	TxHash string `json:"tx_hash" validate:"required,tx_hash"`
}

type FailTransactionRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

type TransactionStats struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Mempool   int64 `json:"mempool"`
	Confirmed int64 `json:"confirmed"`
	Failed    int64 `json:"failed"`
}

type TransactionPage struct {
	Items []*TrackedTransaction `json:"items"`
	Page  int                   `json:"page"`
	Size  int                   `json:"size"`
	Total int64                 `json:"total"`
}
