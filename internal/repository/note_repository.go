package repository

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"chainnotes-sync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type noteDoc struct {
	Rev  string `json:"_rev,omitempty"`
	Type string `json:"type"`
	domain.Note
}

type noteRepository struct {
	db  *kivik.DB
	seq *sequence
}

func noteDocID(id int64) string {
	return fmt.Sprintf("note:%d", id)
}

func (r *noteRepository) Create(ctx context.Context, note *domain.Note) error {
	id, err := r.seq.next(ctx, docTypeNote)
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}

	now := time.Now().UTC()
	note.ID = id
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	note.UpdatedAt = now

	if _, err := r.db.Put(ctx, noteDocID(id), noteDoc{Type: docTypeNote, Note: *note}); err != nil {
		return fmt.Errorf("failed to create note: %w", translateCouchError(err))
	}
	return nil
}

func (r *noteRepository) get(ctx context.Context, id int64) (*noteDoc, error) {
	var doc noteDoc
	if err := r.db.Get(ctx, noteDocID(id)).ScanDoc(&doc); err != nil {
		return nil, translateCouchError(err)
	}
	return &doc, nil
}

func (r *noteRepository) FindByID(ctx context.Context, id int64) (*domain.Note, error) {
	doc, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &doc.Note, nil
}

func (r *noteRepository) List(ctx context.Context, filter domain.NoteFilter) ([]*domain.Note, error) {
	selector := map[string]interface{}{"type": docTypeNote}
	if filter.Status != "" {
		selector["status"] = filter.Status
	}
	if filter.Wallet != "" {
		selector["$or"] = []interface{}{
			map[string]interface{}{"wallet_address": filter.Wallet},
			map[string]interface{}{"created_by_wallet": filter.Wallet},
		}
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := "(?i)" + regexp.QuoteMeta(q)
		selector["$and"] = []interface{}{
			map[string]interface{}{"$or": []interface{}{
				map[string]interface{}{"title": map[string]interface{}{"$regex": pattern}},
				map[string]interface{}{"content": map[string]interface{}{"$regex": pattern}},
			}},
		}
	}

	var notes []*domain.Note
	err := findDocs(ctx, r.db, selector, func(rows *kivik.ResultSet) error {
		var doc noteDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return err
		}
		note := doc.Note
		notes = append(notes, &note)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].IsPinned != notes[j].IsPinned {
			return notes[i].IsPinned
		}
		return notes[i].UpdatedAt.After(notes[j].UpdatedAt)
	})
	return notes, nil
}

func (r *noteRepository) Update(ctx context.Context, note *domain.Note) error {
	existing, err := r.get(ctx, note.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch existing note for update: %w", err)
	}

	note.UpdatedAt = time.Now().UTC()
	doc := noteDoc{Rev: existing.Rev, Type: docTypeNote, Note: *note}
	if _, err := r.db.Put(ctx, noteDocID(note.ID), doc); err != nil {
		return fmt.Errorf("failed to update note: %w", translateCouchError(err))
	}
	return nil
}

func (r *noteRepository) Delete(ctx context.Context, id int64) error {
	existing, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	if _, err := r.db.Delete(ctx, noteDocID(id), existing.Rev); err != nil {
		return fmt.Errorf("failed to delete note: %w", translateCouchError(err))
	}
	return nil
}
