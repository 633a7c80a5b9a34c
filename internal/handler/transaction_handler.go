package handler

import (
	"log/slog"
	"net/http"

	"chainnotes-sync-server/internal/domain"
	"chainnotes-sync-server/internal/logging"
	"chainnotes-sync-server/internal/service"
	"chainnotes-sync-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

const defaultPageSize = 20

type TransactionHandler struct {
	logger   *slog.Logger
	service  *service.TransactionService
	validate *validator.Validate
}

func NewTransactionHandler(logger *slog.Logger, service *service.TransactionService, validate *validator.Validate) *TransactionHandler {
	return &TransactionHandler{
		logger:   logging.Child(logger, "transaction_handler"),
		service:  service,
		validate: validate,
	}
}

func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTrackedTransactionRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	tx, err := h.service.Create(r.Context(), &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Created(w, tx)
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	tx, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, tx)
}

func (h *TransactionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req domain.SubmitTransactionRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	tx, err := h.service.Submit(r.Context(), id, req.TxHash)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, tx)
}

func (h *TransactionHandler) Fail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req domain.FailTransactionRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	tx, err := h.service.Fail(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, tx)
}

func (h *TransactionHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	tx, err := h.service.Retry(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, tx)
}

func (h *TransactionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Cancel(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Message(w, "Transaction cancelled", nil)
}

func (h *TransactionHandler) GetByHash(w http.ResponseWriter, r *http.Request) {
	tx, err := h.service.GetByHash(r.Context(), mux.Vars(r)["hash"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, tx)
}

func (h *TransactionHandler) ListByNote(w http.ResponseWriter, r *http.Request) {
	noteID, ok := pathID(w, r, "noteId")
	if !ok {
		return
	}

	txs, err := h.service.ListByNote(r.Context(), noteID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if txs == nil {
		txs = []*domain.TrackedTransaction{}
	}

	response.Success(w, txs)
}

func (h *TransactionHandler) ListByWallet(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !validAddress(w, h.validate, address) {
		return
	}

	page, err := queryInt(r, "page", 0)
	if err != nil {
		response.BadRequest(w, "page must be an integer")
		return
	}
	size, err := queryInt(r, "size", defaultPageSize)
	if err != nil {
		response.BadRequest(w, "size must be an integer")
		return
	}

	result, err := h.service.ListByWallet(r.Context(), address, page, size)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, result)
}

func (h *TransactionHandler) PendingCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.PendingCount(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, map[string]int64{"count": count})
}

func (h *TransactionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, stats)
}
