package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"chainnotes-sync-server/internal/domain"
	"chainnotes-sync-server/internal/logging"
	"chainnotes-sync-server/internal/repository"
	"chainnotes-sync-server/pkg/hash"

	"github.com/go-playground/validator/v10"
)

type NoteService struct {
	logger   *slog.Logger
	repo     repository.NoteRepository
	notifier Notifier
	validate *validator.Validate
}

func NewNoteService(
	logger *slog.Logger,
	repo repository.NoteRepository,
	notifier Notifier,
	validate *validator.Validate,
) *NoteService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &NoteService{
		logger:   logging.Child(logger, "notes"),
		repo:     repo,
		notifier: notifier,
		validate: validate,
	}
}

func (s *NoteService) Create(ctx context.Context, req *domain.CreateNoteRequest) (*domain.Note, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, invalid(err)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "title is required"}
	}

	note := &domain.Note{
		Title:         title,
		Content:       req.Content,
		Category:      req.Category,
		IsPinned:      req.IsPinned,
		WalletAddress: strings.TrimSpace(req.WalletAddress),
	}
	note.ContentHash = hash.Content(note.Title, note.Content)

	if err := s.repo.Create(ctx, note); err != nil {
		return nil, err
	}

	s.notifier.NoteUpdated(note)
	return note, nil
}

func (s *NoteService) Get(ctx context.Context, id int64) (*domain.Note, error) {
	note, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("note", id)
	}
	return note, err
}

func (s *NoteService) List(ctx context.Context, filter domain.NoteFilter) ([]*domain.Note, error) {
	notes, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []*domain.Note{}
	}
	return notes, nil
}

func (s *NoteService) Search(ctx context.Context, query string) ([]*domain.Note, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &ValidationError{Field: "q", Message: "search query is required"}
	}
	return s.List(ctx, domain.NoteFilter{Query: query})
}

func (s *NoteService) Update(ctx context.Context, id int64, req *domain.UpdateNoteRequest) (*domain.Note, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, invalid(err)
	}

	note, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, &ValidationError{Field: "title", Message: "title must not be blank"}
		}
		note.Title = title
	}
	if req.Content != nil {
		note.Content = *req.Content
	}
	if req.Category != nil {
		note.Category = *req.Category
	}
	if req.IsPinned != nil {
		note.IsPinned = *req.IsPinned
	}
	note.ContentHash = hash.Content(note.Title, note.Content)

	if err := s.repo.Update(ctx, note); err != nil {
		return nil, err
	}

	s.notifier.NoteUpdated(note)
	return note, nil
}

func (s *NoteService) TogglePin(ctx context.Context, id int64) (*domain.Note, error) {
	note, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	note.IsPinned = !note.IsPinned
	if err := s.repo.Update(ctx, note); err != nil {
		return nil, err
	}

	s.notifier.NoteUpdated(note)
	return note, nil
}

// Delete removes a note that never reached the ledger. Anchored notes can
// only be detached by a ledger DELETE.
func (s *NoteService) Delete(ctx context.Context, id int64) error {
	note, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if note.Anchored() {
		return conflict("note %d is anchored on chain; submit a DELETE transaction instead", id)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("note deleted", "note_id", id)
	return nil
}
