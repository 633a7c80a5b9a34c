package service

import (
	"errors"
	"fmt"

	"chainnotes-sync-server/internal/validation"
)

var (
	ErrIndexerUnavailable = errors.New("indexer unavailable")
	ErrIndexerNotRunning  = errors.New("indexer is not running")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func conflict(format string, args ...interface{}) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

func notFound(resource string, key interface{}) error {
	return &NotFoundError{Resource: resource, Key: fmt.Sprint(key)}
}

// invalid wraps a validator error into a ValidationError.
func invalid(err error) error {
	return &ValidationError{Field: validation.FirstField(err), Message: validation.Describe(err)}
}
