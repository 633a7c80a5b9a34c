package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chainnotes-sync-server/internal/domain"
	"chainnotes-sync-server/internal/logging"
	"chainnotes-sync-server/internal/metadata"
	"chainnotes-sync-server/internal/repository"
	"chainnotes-sync-server/pkg/hash"

	"github.com/go-playground/validator/v10"
)

// NoteApplier turns decoded ledger actions into note mutations.
type NoteApplier struct {
	logger  *slog.Logger
	notes   repository.NoteRepository
	tracked  repository.TrackedTransactionRepository
	validate *validator.Validate
}

// NewNoteApplier returns an applier. tracked may be nil; when set, a CREATE
// whose hash was submitted through the transaction API is applied to the
// note that transaction was opened for instead of creating a second one.
// Ledger fields are held to the same limits as the notes API.
func NewNoteApplier(
	logger *slog.Logger,
	notes repository.NoteRepository,
	tracked repository.TrackedTransactionRepository,
	validate *validator.Validate,
) *NoteApplier {
	return &NoteApplier{
		logger:   logging.Child(logger, "applier"),
		notes:    notes,
		tracked:  tracked,
		validate: validate,
	}
}

// Apply mutates the note targeted by action and returns it. A nil note with
// a nil error means the mutation was refused: the note does not exist, the
// wallet does not own it, or a field breaks the note limits.
func (a *NoteApplier) Apply(ctx context.Context, action metadata.Action, txHash string) (*domain.Note, error) {
	switch act := action.(type) {
	case metadata.Create:
		return a.create(ctx, act, txHash)
	case metadata.Update:
		return a.update(ctx, act, txHash)
	case metadata.Delete:
		return a.delete(ctx, act, txHash)
	default:
		return nil, fmt.Errorf("unsupported action %T", action)
	}
}

func (a *NoteApplier) create(ctx context.Context, act metadata.Create, txHash string) (*domain.Note, error) {
	if !a.acceptable(txHash, &act.Title, act.Content, act.Category) {
		return nil, nil
	}
	existing, err := a.submittedNote(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return a.adopt(ctx, existing, act, txHash)
	}

	note := &domain.Note{
		Title:           act.Title,
		WalletAddress:   act.WalletAddress,
		CreatedByWallet: act.WalletAddress,
		OnChain:         true,
		LatestTxHash:    txHash,
		Status:          domain.NoteStatusConfirmed,
	}
	if act.Content != nil {
		note.Content = *act.Content
	}
	if act.Category != nil {
		note.Category = *act.Category
	}
	if act.Pinned != nil {
		note.IsPinned = *act.Pinned
	}
	note.ContentHash = hash.Content(note.Title, note.Content)

	if err := a.notes.Create(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to create note from %s: %w", txHash, err)
	}
	return note, nil
}

// submittedNote returns the note a locally tracked CREATE with this hash
// was opened for, or nil.
func (a *NoteApplier) submittedNote(ctx context.Context, txHash string) (*domain.Note, error) {
	if a.tracked == nil {
		return nil, nil
	}
	tx, err := a.tracked.FindByHash(ctx, txHash)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up tracked transaction %s: %w", txHash, err)
	}
	if tx.Type != domain.TransactionTypeCreate {
		return nil, nil
	}
	note, err := a.notes.FindByID(ctx, tx.NoteID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load note %d: %w", tx.NoteID, err)
	}
	return note, nil
}

func (a *NoteApplier) adopt(ctx context.Context, note *domain.Note, act metadata.Create, txHash string) (*domain.Note, error) {
	if note.WalletAddress == "" {
		note.WalletAddress = act.WalletAddress
	}
	note.CreatedByWallet = act.WalletAddress
	note.Title = act.Title
	if act.Content != nil {
		note.Content = *act.Content
	}
	if act.Category != nil {
		note.Category = *act.Category
	}
	if act.Pinned != nil {
		note.IsPinned = *act.Pinned
	}
	note.OnChain = true
	note.LatestTxHash = txHash
	note.Status = domain.NoteStatusConfirmed
	note.ContentHash = hash.Content(note.Title, note.Content)

	if err := a.notes.Update(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to update note %d from %s: %w", note.ID, txHash, err)
	}
	return note, nil
}

// acceptable checks the fields an action sets against the note limits. A
// nil field is left unchanged and not checked.
func (a *NoteApplier) acceptable(txHash string, title, content, category *string) bool {
	checks := []struct {
		field string
		value *string
		rule  string
	}{
		{"title", title, domain.NoteTitleRule},
		{"content", content, domain.NoteContentRule},
		{"category", category, domain.NoteCategoryRule},
	}
	for _, c := range checks {
		if c.value == nil {
			continue
		}
		if err := a.validate.Var(*c.value, c.rule); err != nil {
			a.logger.Debug("refusing ledger action with invalid field", "field", c.field, "tx_hash", txHash, "error", err)
			return false
		}
	}
	return true
}

// owned loads the note and checks that wallet may mutate it.
func (a *NoteApplier) owned(ctx context.Context, noteID int64, wallet, txHash string) (*domain.Note, error) {
	note, err := a.notes.FindByID(ctx, noteID)
	if errors.Is(err, repository.ErrNotFound) {
		a.logger.Debug("refusing mutation of unknown note", "note_id", noteID, "tx_hash", txHash)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load note %d: %w", noteID, err)
	}
	if !note.OwnedBy(wallet) {
		a.logger.Debug("refusing mutation from foreign wallet",
			"note_id", noteID,
			"wallet", wallet,
			"owner", note.Owner(),
			"tx_hash", txHash,
		)
		return nil, nil
	}
	return note, nil
}

func (a *NoteApplier) update(ctx context.Context, act metadata.Update, txHash string) (*domain.Note, error) {
	if !a.acceptable(txHash, act.Title, act.Content, act.Category) {
		return nil, nil
	}
	note, err := a.owned(ctx, act.NoteID, act.WalletAddress, txHash)
	if note == nil || err != nil {
		return nil, err
	}

	if act.Title != nil {
		note.Title = *act.Title
	}
	if act.Content != nil {
		note.Content = *act.Content
	}
	if act.Category != nil {
		note.Category = *act.Category
	}
	if act.Pinned != nil {
		note.IsPinned = *act.Pinned
	}
	note.OnChain = true
	note.LatestTxHash = txHash
	note.Status = domain.NoteStatusConfirmed
	note.ContentHash = hash.Content(note.Title, note.Content)

	if err := a.notes.Update(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to update note %d from %s: %w", note.ID, txHash, err)
	}
	return note, nil
}

func (a *NoteApplier) delete(ctx context.Context, act metadata.Delete, txHash string) (*domain.Note, error) {
	note, err := a.owned(ctx, act.NoteID, act.WalletAddress, txHash)
	if note == nil || err != nil {
		return nil, err
	}

	// The row stays; a ledger delete only detaches the note from the chain.
	note.OnChain = false
	note.LatestTxHash = txHash
	note.Status = domain.NoteStatusConfirmed

	if err := a.notes.Update(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to delete note %d from %s: %w", note.ID, txHash, err)
	}
	return note, nil
}
