package app

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound    = "NOT_FOUND"
	CodeForbidden   = "FORBIDDEN"
	CodeLocked      = "LOCKED"
	CodeCapacity    = "CAPACITY"
	CodeConflict    = "CONFLICT"
	CodeValidation  = "VALIDATION_ERROR"
	CodePersistence = "PERSISTENCE_ERROR"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	Cause   error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches any DomainError carrying the same code, so callers can test
// errors.Is(err, ErrForbidden) regardless of message.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

var (
	ErrNotFound    = &DomainError{Status: http.StatusNotFound, Code: CodeNotFound}
	ErrForbidden   = &DomainError{Status: http.StatusForbidden, Code: CodeForbidden}
	ErrLocked      = &DomainError{Status: http.StatusLocked, Code: CodeLocked}
	ErrCapacity    = &DomainError{Status: http.StatusConflict, Code: CodeCapacity}
	ErrConflict    = &DomainError{Status: http.StatusConflict, Code: CodeConflict}
	ErrValidation  = &DomainError{Status: http.StatusUnprocessableEntity, Code: CodeValidation}
	ErrPersistence = &DomainError{Status: http.StatusInternalServerError, Code: CodePersistence}
)

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func notFoundError(entity, id string) *DomainError {
	return domainError(http.StatusNotFound, CodeNotFound, entity+" not found", map[string]any{"id": id})
}

func forbiddenError(message string) *DomainError {
	return domainError(http.StatusForbidden, CodeForbidden, message, nil)
}

func lockedError(documentID, lockedBy string) *DomainError {
	return domainError(http.StatusLocked, CodeLocked, "document is locked by another user", map[string]any{
		"documentId": documentID,
		"lockedBy":   lockedBy,
	})
}

func capacityError(sessionID string, capacity int) *DomainError {
	return domainError(http.StatusConflict, CodeCapacity, "session is full", map[string]any{
		"sessionId": sessionID,
		"capacity":  capacity,
	})
}

func conflictError(entity, id string, cause error) *DomainError {
	err := domainError(http.StatusConflict, CodeConflict, entity+" was modified concurrently; retry the request", map[string]any{
		"id":    id,
		"retry": true,
	})
	err.Cause = cause
	return err
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, CodeValidation, message, nil)
}

func persistenceError(op string, cause error) *DomainError {
	err := domainError(http.StatusInternalServerError, CodePersistence, op+" failed", nil)
	err.Cause = cause
	return err
}
