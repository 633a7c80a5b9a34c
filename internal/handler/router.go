package handler

import (
	"log/slog"
	"net/http"

	"chainnotes-sync-server/internal/config"
	"chainnotes-sync-server/internal/metrics"
	"chainnotes-sync-server/internal/middleware"
	"chainnotes-sync-server/pkg/response"

	"github.com/gorilla/mux"
)

const (
	serviceName    = "chainnotes-sync-server"
	serviceVersion = "1.0.0"
)

type RouterConfig struct {
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	CORS        config.CORSConfig
	JWTSecret   string
	Notes       *NoteHandler
	Transaction *TransactionHandler
	Blockchain  *BlockchainHandler
	WebSocket   *WebSocketHandler
}

func NewRouter(cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(cfg.Logger, cfg.Metrics))
	r.Use(middleware.CORSMiddleware(cfg.CORS))

	api := r.PathPrefix("/api/v1").Subrouter()

	notes := cfg.Notes
	api.HandleFunc("/notes", notes.Create).Methods("POST", "OPTIONS")
	api.HandleFunc("/notes", notes.List).Methods("GET", "OPTIONS")
	api.HandleFunc("/notes/search", notes.Search).Methods("GET", "OPTIONS")
	api.HandleFunc("/notes/{id:[0-9]+}", notes.Get).Methods("GET", "OPTIONS")
	api.HandleFunc("/notes/{id:[0-9]+}", notes.Update).Methods("PUT", "OPTIONS")
	api.HandleFunc("/notes/{id:[0-9]+}/toggle-pin", notes.TogglePin).Methods("PATCH", "OPTIONS")
	api.HandleFunc("/notes/{id:[0-9]+}", notes.Delete).Methods("DELETE", "OPTIONS")

	txs := cfg.Transaction
	api.HandleFunc("/transactions", txs.Create).Methods("POST", "OPTIONS")
	api.HandleFunc("/transactions/stats", txs.Stats).Methods("GET", "OPTIONS")
	api.HandleFunc("/transactions/pending/count", txs.PendingCount).Methods("GET", "OPTIONS")
	api.HandleFunc("/transactions/hash/{hash}", txs.GetByHash).Methods("GET", "OPTIONS")
	api.HandleFunc("/transactions/note/{noteId:[0-9]+}", txs.ListByNote).Methods("GET", "OPTIONS")
	api.HandleFunc("/transactions/wallet/{address}", txs.ListByWallet).Methods("GET", "OPTIONS")
	api.HandleFunc("/transactions/{id:[0-9]+}", txs.Get).Methods("GET", "OPTIONS")
	api.HandleFunc("/transactions/{id:[0-9]+}/submit", txs.Submit).Methods("PUT", "OPTIONS")
	api.HandleFunc("/transactions/{id:[0-9]+}/retry", txs.Retry).Methods("POST", "OPTIONS")
	api.HandleFunc("/transactions/{id:[0-9]+}", txs.Cancel).Methods("DELETE", "OPTIONS")

	chain := cfg.Blockchain
	api.HandleFunc("/blockchain/indexer/status", chain.Status).Methods("GET", "OPTIONS")
	api.HandleFunc("/blockchain/health", chain.Health).Methods("GET", "OPTIONS")
	api.HandleFunc("/blockchain/transactions/pending", chain.Pending).Methods("GET", "OPTIONS")
	api.HandleFunc("/blockchain/transactions/wallet/{address}", chain.ByWallet).Methods("GET", "OPTIONS")
	api.HandleFunc("/blockchain/transactions/wallet/{address}/confirmed", chain.ConfirmedByWallet).Methods("GET", "OPTIONS")
	api.HandleFunc("/blockchain/transactions/note/{noteId:[0-9]+}", chain.ByNote).Methods("GET", "OPTIONS")
	api.HandleFunc("/blockchain/transactions/count/status/{status}", chain.CountByStatus).Methods("GET", "OPTIONS")
	api.HandleFunc("/blockchain/transactions/{hash:[0-9a-fA-F]+}", chain.Transaction).Methods("GET", "OPTIONS")
	api.HandleFunc("/blockchain/transactions/{hash:[0-9a-fA-F]+}/exists", chain.Exists).Methods("GET", "OPTIONS")

	operator := api.PathPrefix("").Subrouter()
	operator.Use(middleware.OperatorAuth(cfg.JWTSecret))

	operator.HandleFunc("/transactions/{id:[0-9]+}/fail", txs.Fail).Methods("POST", "OPTIONS")
	operator.HandleFunc("/blockchain/indexer/start", chain.StartIndexer).Methods("POST", "OPTIONS")
	operator.HandleFunc("/blockchain/indexer/stop", chain.StopIndexer).Methods("POST", "OPTIONS")
	operator.HandleFunc("/blockchain/indexer/scan", chain.Scan).Methods("POST", "OPTIONS")
	operator.HandleFunc("/blockchain/indexer/reindex", chain.Reindex).Methods("POST", "OPTIONS")
	operator.HandleFunc("/blockchain/indexer/pending", chain.UpdatePending).Methods("POST", "OPTIONS")

	if cfg.WebSocket != nil {
		r.HandleFunc("/ws", cfg.WebSocket.HandleConnection)
	}
	r.Handle("/metrics", cfg.Metrics.Handler()).Methods("GET")
	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.HandleFunc("/", rootHandler).Methods("GET")

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]string{"status": "healthy", "service": serviceName})
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{
		"/api/v1/notes":                     "GET, POST",
		"/api/v1/transactions":              "POST",
		"/api/v1/blockchain/indexer/status": "GET",
		"/api/v1/blockchain/indexer/start":  "POST (operator)",
		"/ws?wallet=<address>":              "websocket",
		"/metrics":                          "prometheus",
	}
	response.Success(w, map[string]interface{}{
		"message":   "ChainNotes Sync Server API",
		"version":   serviceVersion,
		"endpoints": endpoints,
	})
}
