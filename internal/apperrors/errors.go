package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable error code returned to API clients.
type Kind string

const (
	KindValidation      Kind = "validation_error"
	KindConflict        Kind = "conflict_error"
	KindAuthentication  Kind = "authentication_error"
	KindInactiveAccount Kind = "inactive_account"
	KindTokenMissing    Kind = "token_missing"
	KindTokenMalformed  Kind = "token_malformed"
	KindTokenSignature  Kind = "token_invalid_signature"
	KindTokenExpired    Kind = "token_expired"
	KindAuthorization   Kind = "authorization_error"
	KindNotFound        Kind = "not_found"
	KindInternal        Kind = "internal_error"
)

// Error carries a Kind plus a human-readable message. Wrapped causes stay
// internal; only Kind and Message cross the API boundary.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two *Error values by Kind and Message, so the sentinel errors
// below work with errors.Is even after wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Sentinels for the failure modes the service distinguishes.
var (
	ErrEmailTaken         = New(KindConflict, "user with this email already exists")
	ErrUsernameTaken      = New(KindConflict, "user with this username already exists")
	ErrInvalidCredentials = New(KindAuthentication, "incorrect email/username or password")
	ErrInactiveUser       = New(KindInactiveAccount, "user account is disabled")
	ErrUserNotFound       = New(KindNotFound, "user not found")
	ErrForbidden          = New(KindAuthorization, "the user doesn't have enough privileges")
	ErrOldPasswordWrong   = New(KindValidation, "old password is incorrect")

	ErrTokenMissing   = New(KindTokenMissing, "missing access token")
	ErrTokenMalformed = New(KindTokenMalformed, "malformed access token")
	ErrTokenSignature = New(KindTokenSignature, "invalid token signature")
	ErrTokenExpired   = New(KindTokenExpired, "access token expired")
)

// KindOf walks the error chain and returns the outermost Kind, or
// KindInternal for plain errors (DB connectivity etc. never leak detail).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the client-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// HTTPStatus maps a Kind to the status code used at the API boundary.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindAuthentication, KindTokenMissing, KindTokenMalformed, KindTokenSignature, KindTokenExpired:
		return http.StatusUnauthorized
	case KindInactiveAccount, KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
