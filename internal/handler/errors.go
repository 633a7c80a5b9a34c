package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"chainnotes-sync-server/internal/repository"
	"chainnotes-sync-server/internal/service"
	"chainnotes-sync-server/internal/validation"
	"chainnotes-sync-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// writeError maps service errors onto status codes. Unknown errors are
// logged and answered with a generic 500.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		verr *service.ValidationError
		nerr *service.NotFoundError
		cerr *service.ConflictError
	)

	switch {
	case errors.As(err, &verr):
		response.BadRequest(w, verr.Message)
	case errors.As(err, &nerr):
		response.NotFound(w, nerr.Error())
	case errors.Is(err, repository.ErrNotFound):
		response.NotFound(w, "Resource not found")
	case errors.As(err, &cerr):
		response.Conflict(w, cerr.Message)
	case errors.Is(err, service.ErrIndexerNotRunning):
		response.Conflict(w, err.Error())
	case errors.Is(err, service.ErrIndexerUnavailable):
		response.ServiceUnavailable(w, err.Error())
	default:
		logger.Error("request failed", "error", err)
		response.InternalError(w, "Internal server error")
	}
}

// decode reads a JSON body into dst and validates it.
func decode(w http.ResponseWriter, r *http.Request, validate *validator.Validate, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		response.BadRequest(w, validation.Describe(err))
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func validAddress(w http.ResponseWriter, validate *validator.Validate, address string) bool {
	if err := validate.Var(address, "cardano_address"); err != nil {
		response.BadRequest(w, "Invalid Cardano address")
		return false
	}
	return true
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
