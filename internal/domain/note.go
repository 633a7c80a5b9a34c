package domain

import "time"

type NoteStatus string

const (
	NoteStatusPending   NoteStatus = "PENDING"
	NoteStatusMempool   NoteStatus = "MEMPOOL"
	NoteStatusConfirmed NoteStatus = "CONFIRMED"
	NoteStatusFailed    NoteStatus = "FAILED"
)

type Note struct {
	ID              int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	Title           string     `json:"title" gorm:"size:255;not null"`
	Content         string     `json:"content" gorm:"type:text"`
	Category        string     `json:"category,omitempty" gorm:"size:100"`
	IsPinned        bool       `json:"is_pinned"`
	WalletAddress   string     `json:"wallet_address,omitempty" gorm:"size:150;index"`
	CreatedByWallet string     `json:"created_by_wallet,omitempty" gorm:"size:150"`
	OnChain         bool       `json:"on_chain"`
	LatestTxHash    string     `json:"latest_tx_hash,omitempty" gorm:"size:64"`
	Status          NoteStatus `json:"status,omitempty" gorm:"size:16;index"`
	ContentHash     string     `json:"content_hash"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (Note) TableName() string { return "notes" }

// Anchored reports whether the note has ever been tied to a ledger transaction.
func (n *Note) Anchored() bool {
	return n.OnChain || n.LatestTxHash != ""
}

// Owner is the wallet allowed to mutate the note through ledger metadata.
func (n *Note) Owner() string {
	if n.WalletAddress != "" {
		return n.WalletAddress
	}
	return n.CreatedByWallet
}

func (n *Note) OwnedBy(wallet string) bool {
	owner := n.Owner()
	return owner != "" && owner == wallet
}

// Field rules for notes written from ledger metadata. They mirror the
// request DTO tags below.
const (
	NoteTitleRule    = "notblank,max=255"
	NoteContentRule  = "max=10000"
	NoteCategoryRule = "max=100"
)

type NoteFilter struct {
	Wallet string
	Status NoteStatus
	Query  string
}

type CreateNoteRequest struct {
	Title         string `json:"title" validate:"required,max=255"`
	Content       string `json:"content" validate:"max=10000"`
	Category      string `json:"category" validate:"max=100"`
	IsPinned      bool   `json:"is_pinned"`
	WalletAddress string `json:"wallet_address" validate:"omitempty,max=150"`
}

type UpdateNoteRequest struct {
	Title    *string `json:"title" validate:"omitempty,min=1,max=255"`
	Content  *string `json:"content" validate:"omitempty,max=10000"`
	Category *string `json:"category" validate:"omitempty,max=100"`
	IsPinned *bool   `json:"is_pinned"`
}
