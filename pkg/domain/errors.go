package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is the root of every "absent or evicted" condition.
// Adapters map their backend-specific misses onto it.
var ErrNotFound = errors.New("not found")

// ErrSessionNotFound is returned when a session key cannot be found in the store.
var ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)

// ErrIdentityNotFound is returned by an IdentityDirectory for unknown identifiers.
var ErrIdentityNotFound = fmt.Errorf("identity %w", ErrNotFound)

// ErrSignatureNotFound is returned when a generated signature id is unknown to a session.
var ErrSignatureNotFound = fmt.Errorf("signature session %w", ErrNotFound)

// AuthReason classifies why a request failed authentication.
type AuthReason string

const (
	ReasonMalformedRequest AuthReason = "MalformedRequest"
	ReasonUnknownIdentity  AuthReason = "UnknownIdentity"
	ReasonBadSignature     AuthReason = "BadSignature"
	ReasonExpired          AuthReason = "Expired"
)

// AuthenticationError is returned by the authentication gate.
// It is always a client-facing condition and never retried.
type AuthenticationError struct {
	Reason AuthReason
	Detail string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("authentication failed: %s", e.Reason)
	}
	return fmt.Sprintf("authentication failed: %s: %s", e.Reason, e.Detail)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// NewAuthError builds an AuthenticationError with a formatted detail message.
func NewAuthError(reason AuthReason, format string, args ...any) *AuthenticationError {
	return &AuthenticationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// TechnicalKind classifies server-side failures.
type TechnicalKind string

const (
	// WrongVariant means the stored session tag differs from the one an operation needs.
	WrongVariant TechnicalKind = "WrongVariant"
	// MalformedState means the stored session is inconsistent with the requested operation.
	MalformedState TechnicalKind = "MalformedState"
	// BackendFailure means a store or directory could not be reached.
	BackendFailure TechnicalKind = "BackendFailure"
)

// TechnicalError indicates a bug, data corruption, or an unavailable backend.
// Retrying with the same inputs reproduces WrongVariant and MalformedState.
type TechnicalError struct {
	Kind   TechnicalKind
	Detail string
	Err    error
}

func (e *TechnicalError) Error() string {
	msg := fmt.Sprintf("technical error: %s", e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TechnicalError) Unwrap() error { return e.Err }

// NewBackendError wraps a transport failure of a store or directory.
func NewBackendError(op string, err error) *TechnicalError {
	return &TechnicalError{Kind: BackendFailure, Detail: op, Err: err}
}

// InvalidRequestError is returned when caller-supplied input fails structural validation.
type InvalidRequestError struct {
	Detail string
	Err    error
}

func (e *InvalidRequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid request: %s: %v", e.Detail, e.Err)
	}
	return "invalid request: " + e.Detail
}

func (e *InvalidRequestError) Unwrap() error { return e.Err }

// NewInvalidRequest builds an InvalidRequestError with a formatted detail message.
func NewInvalidRequest(format string, args ...any) *InvalidRequestError {
	return &InvalidRequestError{Detail: fmt.Sprintf(format, args...)}
}

// IsAuthReason reports whether err is an AuthenticationError with the given reason.
func IsAuthReason(err error, reason AuthReason) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr) && authErr.Reason == reason
}

// IsTechnical reports whether err is a TechnicalError of the given kind.
func IsTechnical(err error, kind TechnicalKind) bool {
	var techErr *TechnicalError
	return errors.As(err, &techErr) && techErr.Kind == kind
}
