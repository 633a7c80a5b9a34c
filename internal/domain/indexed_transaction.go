package domain

import "time"

// IndexOutcome records what the indexer did with a ledger transaction it examined.
type IndexOutcome string

const (
	// OutcomeApplied means the metadata decoded and the mutation was applied.
	OutcomeApplied IndexOutcome = "APPLIED"
	// OutcomeRejected means the label was present but the payload could not be
	// decoded or the applier refused it (missing note, foreign wallet).
	OutcomeRejected IndexOutcome = "REJECTED"
	// OutcomeIgnored means no metadata entry carried the configured label.
	OutcomeIgnored IndexOutcome = "IGNORED"
)

// IndexedTransaction is a ledger transaction discovered by the indexer.
// TxHash is unique, so each ledger transaction is applied at most once.
type IndexedTransaction struct {
	ID            int64             `json:"id" gorm:"primaryKey;autoIncrement"`
	TxHash        string            `json:"tx_hash" gorm:"size:64;uniqueIndex;not null"`
	BlockHeight   int64             `json:"block_height" gorm:"index"`
	BlockTime     time.Time         `json:"block_time"`
	Slot          int64             `json:"slot"`
	ActionType    TransactionType   `json:"action_type,omitempty" gorm:"size:16"`
	Outcome       IndexOutcome      `json:"outcome" gorm:"size:16"`
	Status        TransactionStatus `json:"status" gorm:"size:16;index;not null"`
	Metadata      string            `json:"metadata,omitempty" gorm:"type:text"`
	WalletAddress string            `json:"wallet_address" gorm:"size:150;index"`
	NoteID        *int64            `json:"note_id,omitempty" gorm:"index"`
	NoteTitle     string            `json:"note_title,omitempty" gorm:"size:255"`
	Confirmations int64             `json:"confirmations"`
	IndexedAt     time.Time         `json:"indexed_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func (IndexedTransaction) TableName() string { return "indexed_transactions" }

// Confirmations returns the finality depth of a transaction at blockHeight
// when the chain tip is at currentHeight.
func Confirmations(currentHeight, blockHeight int64) int64 {
	if blockHeight <= 0 || currentHeight < blockHeight {
		return 0
	}
	return currentHeight - blockHeight + 1
}
