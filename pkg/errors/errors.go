package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the single error currency of the API: a stable machine code,
// the HTTP status it maps to, a human message, and an optional cause.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New builds a fresh Error.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap keeps the cause chain intact while re-typing an error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Clone copies a sentinel so call sites can specialise the message
// without mutating the shared value. errors.Is still matches the
// original through pointer identity on the sentinel itself, so compare
// codes, not pointers, on clones.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// FromError normalises any error into an *Error; unknown errors become
// internal so no raw cause leaks to clients.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Sentinels for the failure modes the API reports.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// ErrDuplicateClaim marks a second pending claim for the same
	// mission slot; surfaced as a conflict, never silently overwritten.
	ErrDuplicateClaim = New("DUPLICATE_PENDING_CLAIM", http.StatusConflict, "a pending claim already exists for this mission")

	// ErrClaimResolved marks review attempts on terminal claims.
	ErrClaimResolved = New("CLAIM_RESOLVED", http.StatusConflict, "claim has already been resolved")

	// ErrVersionConflict marks a lost optimistic-concurrency race on a
	// progress aggregate; callers retry with a fresh read.
	ErrVersionConflict = New("VERSION_CONFLICT", http.StatusConflict, "progress document was modified concurrently")
)
