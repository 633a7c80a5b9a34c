package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"chainnotes-sync-server/internal/logging"
	"chainnotes-sync-server/internal/service"
	"chainnotes-sync-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type BlockchainHandler struct {
	logger     *slog.Logger
	indexer    *service.IndexerService
	blockchain *service.BlockchainService
	validate   *validator.Validate
}

func NewBlockchainHandler(
	logger *slog.Logger,
	indexer *service.IndexerService,
	blockchain *service.BlockchainService,
	validate *validator.Validate,
) *BlockchainHandler {
	return &BlockchainHandler{
		logger:     logging.Child(logger, "blockchain_handler"),
		indexer:    indexer,
		blockchain: blockchain,
		validate:   validate,
	}
}

func (h *BlockchainHandler) StartIndexer(w http.ResponseWriter, r *http.Request) {
	if err := h.indexer.Start(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Message(w, "Indexer started", h.indexer.Status(r.Context()))
}

func (h *BlockchainHandler) StopIndexer(w http.ResponseWriter, r *http.Request) {
	h.indexer.Stop()
	response.Message(w, "Indexer stopped", h.indexer.Status(r.Context()))
}

func (h *BlockchainHandler) Status(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.indexer.Status(r.Context()))
}

func (h *BlockchainHandler) Scan(w http.ResponseWriter, r *http.Request) {
	if !h.indexer.IsRunning() {
		writeError(w, h.logger, service.ErrIndexerNotRunning)
		return
	}

	count := h.indexer.Scan(r.Context())
	response.Success(w, map[string]int{"indexed": count})
}

func (h *BlockchainHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("startBlock")
	height, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		response.BadRequest(w, "startBlock must be an integer")
		return
	}

	count, err := h.indexer.ReindexFromBlock(r.Context(), height)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, map[string]int64{"indexed": int64(count), "start_block": height})
}

func (h *BlockchainHandler) UpdatePending(w http.ResponseWriter, r *http.Request) {
	count := h.indexer.UpdatePendingTransactions(r.Context())
	response.Success(w, map[string]int{"updated": count})
}

func (h *BlockchainHandler) ByWallet(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !validAddress(w, h.validate, address) {
		return
	}

	txs, err := h.blockchain.ByWallet(r.Context(), address)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, txs)
}

func (h *BlockchainHandler) ConfirmedByWallet(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !validAddress(w, h.validate, address) {
		return
	}

	txs, err := h.blockchain.ConfirmedByWallet(r.Context(), address)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, txs)
}

func (h *BlockchainHandler) ByNote(w http.ResponseWriter, r *http.Request) {
	noteID, ok := pathID(w, r, "noteId")
	if !ok {
		return
	}

	txs, err := h.blockchain.ByNote(r.Context(), noteID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, txs)
}

func (h *BlockchainHandler) Pending(w http.ResponseWriter, r *http.Request) {
	txs, err := h.blockchain.Pending(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, txs)
}

func (h *BlockchainHandler) Transaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.blockchain.Transaction(r.Context(), mux.Vars(r)["hash"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, tx)
}

func (h *BlockchainHandler) Exists(w http.ResponseWriter, r *http.Request) {
	exists, err := h.blockchain.Exists(r.Context(), mux.Vars(r)["hash"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, map[string]bool{"exists": exists})
}

func (h *BlockchainHandler) CountByStatus(w http.ResponseWriter, r *http.Request) {
	status := mux.Vars(r)["status"]
	count, err := h.blockchain.CountByStatus(r.Context(), status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, map[string]interface{}{"status": status, "count": count})
}

func (h *BlockchainHandler) Health(w http.ResponseWriter, r *http.Request) {
	health := h.blockchain.Health(r.Context())
	if health.Error != "" {
		response.JSON(w, http.StatusServiceUnavailable, health)
		return
	}

	response.Success(w, health)
}
