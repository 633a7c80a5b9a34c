package blockfrost

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is returned by every Client call that fails. StatusCode is zero when
// the request never produced an HTTP response.
type Error struct {
	StatusCode int
	Endpoint   string
	Message    string
	Details    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Details)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("blockfrost %s [%d]: %s", e.Endpoint, e.StatusCode, msg)
	}
	return fmt.Sprintf("blockfrost %s: %s", e.Endpoint, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func networkError(endpoint string, err error) *Error {
	return &Error{
		Endpoint: endpoint,
		Message:  "network error",
		Details:  err.Error(),
		Err:      err,
	}
}

func apiError(endpoint string, statusCode int, body *errorResponse) *Error {
	e := &Error{
		StatusCode: statusCode,
		Endpoint:   endpoint,
		Message:    http.StatusText(statusCode),
	}
	if !body.isEmpty() {
		e.Message = body.Error
		e.Details = body.Message
	}
	return e
}

func IsNotFound(err error) bool {
	var bfErr *Error
	return errors.As(err, &bfErr) && bfErr.StatusCode == http.StatusNotFound
}

// IsRateLimited reports a 429 that survived the client's retries.
func IsRateLimited(err error) bool {
	var bfErr *Error
	return errors.As(err, &bfErr) && bfErr.StatusCode == http.StatusTooManyRequests
}
