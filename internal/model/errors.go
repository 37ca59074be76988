package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable error class surfaced to API clients.
type Kind string

const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindConflictingSession Kind = "conflicting_session"
	KindInvalidSession     Kind = "invalid_session"
	KindNotFound           Kind = "not_found"
	KindForbidden          Kind = "forbidden"
	KindBackingStore       Kind = "backing_store_failure"
)

// Error carries a kind, an HTTP status and a short client-safe message.
// Internal details stay in the wrapped cause and never reach the response.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	// UserID is set for conflicting_session so the client can re-login
	// with forceLogin.
	UserID int64
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func NewInvalidCredentials() *Error {
	return &Error{Kind: KindInvalidCredentials, Message: "Invalid username or password", StatusCode: http.StatusUnauthorized}
}

func NewConflictingSession(userID int64) *Error {
	return &Error{Kind: KindConflictingSession, Message: "Account already has an active session", StatusCode: http.StatusConflict, UserID: userID}
}

func NewInvalidSession() *Error {
	return &Error{Kind: KindInvalidSession, Message: "Invalid session token", StatusCode: http.StatusUnauthorized}
}

func NewNotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found", StatusCode: http.StatusNotFound}
}

func NewForbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message, StatusCode: http.StatusForbidden}
}

func NewBackingStore(cause error) *Error {
	return &Error{Kind: KindBackingStore, Message: "Storage operation failed", StatusCode: http.StatusInternalServerError, cause: cause}
}

// AsError extracts a *Error from err, or wraps err as a backing-store
// failure so handlers always have a status and kind to respond with.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewBackingStore(err)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
