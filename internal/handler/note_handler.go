package handler

import (
	"log/slog"
	"net/http"

	"chainnotes-sync-server/internal/domain"
	"chainnotes-sync-server/internal/logging"
	"chainnotes-sync-server/internal/service"
	"chainnotes-sync-server/pkg/response"

	"github.com/go-playground/validator/v10"
)

type NoteHandler struct {
	logger   *slog.Logger
	service  *service.NoteService
	validate *validator.Validate
}

func NewNoteHandler(logger *slog.Logger, service *service.NoteService, validate *validator.Validate) *NoteHandler {
	return &NoteHandler{
		logger:   logging.Child(logger, "note_handler"),
		service:  service,
		validate: validate,
	}
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateNoteRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	note, err := h.service.Create(r.Context(), &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Created(w, note)
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.NoteFilter{
		Wallet: query.Get("wallet"),
		Status: domain.NoteStatus(query.Get("status")),
	}

	notes, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, notes)
}

func (h *NoteHandler) Search(w http.ResponseWriter, r *http.Request) {
	notes, err := h.service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, notes)
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	note, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req domain.UpdateNoteRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	note, err := h.service.Update(r.Context(), id, &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) TogglePin(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	note, err := h.service.TogglePin(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Message(w, "Note deleted successfully", nil)
}
