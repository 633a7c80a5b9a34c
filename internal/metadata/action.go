// Package metadata decodes note mutations embedded in Cardano transaction
// metadata.
//
// A note-carrying transaction attaches a JSON object under a fixed numeric
// label, for example:
//
//	{"1": {"action": "UPDATE", "noteId": 7, "walletAddress": "addr_test1...", "title": "X"}}
//
// Metadata is written by arbitrary third parties, so every decode failure is
// an ordinary outcome and never a panic.
package metadata

import "chainnotes-sync-server/internal/domain"

// Action is one decoded note mutation. Exactly one of Create, Update or
// Delete.
type Action interface {
	Type() domain.TransactionType
	// Wallet is the address the payload claims to come from.
	Wallet() string
	isAction()
}

type Create struct {
	WalletAddress string
	Title         string
	Content       *string
	Category      *string
	Pinned        *bool
}

// Update overwrites only the fields that are non-nil.
type Update struct {
	WalletAddress string
	NoteID        int64
	Title         *string
	Content       *string
	Category      *string
	Pinned        *bool
}

type Delete struct {
	WalletAddress string
	NoteID        int64
}

func (Create) Type() domain.TransactionType { return domain.TransactionTypeCreate }
func (Update) Type() domain.TransactionType { return domain.TransactionTypeUpdate }
func (Delete) Type() domain.TransactionType { return domain.TransactionTypeDelete }

func (a Create) Wallet() string { return a.WalletAddress }
func (a Update) Wallet() string { return a.WalletAddress }
func (a Delete) Wallet() string { return a.WalletAddress }

func (Create) isAction() {}
func (Update) isAction() {}
func (Delete) isAction() {}

// NoteID returns the target note of an Update or Delete, and 0 for Create.
func NoteID(a Action) int64 {
	switch v := a.(type) {
	case Update:
		return v.NoteID
	case Delete:
		return v.NoteID
	default:
		return 0
	}
}
