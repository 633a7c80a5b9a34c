package handler

import (
	"log/slog"
	"net/http"

	"chainnotes-sync-server/internal/logging"
	"chainnotes-sync-server/internal/websocket"
	"chainnotes-sync-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	logger   *slog.Logger
	manager  *websocket.Manager
	validate *validator.Validate
	upgrader ws.Upgrader
}

func NewWebSocketHandler(logger *slog.Logger, manager *websocket.Manager, validate *validator.Validate, readBufferSize, writeBufferSize int) *WebSocketHandler {
	return &WebSocketHandler{
		logger:   logging.Child(logger, "ws_handler"),
		manager:  manager,
		validate: validate,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleConnection subscribes the connection to the wallet named by the
// wallet query parameter.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		response.BadRequest(w, "wallet query parameter is required")
		return
	}
	if !validAddress(w, h.validate, wallet) {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", "error", err)
		return
	}

	client := websocket.NewClient(uuid.New().String(), wallet, conn, h.manager)
	if !h.manager.Register(client) {
		conn.Close()
		return
	}

	h.logger.Debug("websocket connected", "client_id", client.ID, "wallet", wallet)
	go client.WritePump()
	go client.ReadPump()
}
