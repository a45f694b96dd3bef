// Package apperr defines the domain error taxonomy. Services return these
// unchanged; the HTTP layer maps them onto responses.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across services.
var (
	ErrNotFound  = errors.New("record not found")
	ErrForbidden = errors.New("forbidden")
)

// ValidationError is a single failed check against one attribute. Flows that
// run several validators aggregate these into a StopValidation.
type ValidationError struct {
	Attribute string `json:"attribute"`
	Reason    string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Attribute, e.Reason)
}

// NewValidationError builds a ValidationError for an attribute.
func NewValidationError(attribute, reason string) *ValidationError {
	return &ValidationError{Attribute: attribute, Reason: reason}
}

// StopValidation terminates a multi-validator flow and carries every failure
// that was accumulated.
type StopValidation struct {
	Reasons []*ValidationError `json:"reasons"`
}

func (e *StopValidation) Error() string {
	parts := make([]string, 0, len(e.Reasons))
	for _, r := range e.Reasons {
		parts = append(parts, r.Error())
	}
	return "validation stopped: " + strings.Join(parts, "; ")
}

// StopAuthentication aborts a login or reauth attempt with a user-visible
// reason. The reason never distinguishes unknown users from wrong passwords.
type StopAuthentication struct {
	Reason string `json:"reason"`
}

func (e *StopAuthentication) Error() string {
	return e.Reason
}

// Token error kinds.
type TokenKind string

const (
	TokenInvalid TokenKind = "invalid"
	TokenExpired TokenKind = "expired"
	TokenBad     TokenKind = "bad"
)

// TokenError reports why a signed token was rejected. All kinds are
// unrecoverable for the current request.
type TokenError struct {
	Kind TokenKind
}

func (e *TokenError) Error() string {
	return "token " + string(e.Kind)
}

// PersistenceError wraps a failed commit after the transaction was rolled
// back.
type PersistenceError struct {
	Message string
	Err     error
}

func (e *PersistenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ForceLogout signals that a previously authenticated session must be
// invalidated, e.g. the user was banned between requests.
type ForceLogout struct {
	Reason string `json:"reason"`
}

func (e *ForceLogout) Error() string {
	return e.Reason
}
