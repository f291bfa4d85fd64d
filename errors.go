package identity

import (
	"fmt"
	"net/http"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeUnauthenticated       = "IDENTITY_UNAUTHENTICATED"
	TextCodeInvalidCredentials    = "IDENTITY_INVALID_CREDENTIALS"
	TextCodeTokenExpired          = "IDENTITY_TOKEN_EXPIRED"
	TextCodeTokenMalformed        = "IDENTITY_TOKEN_MALFORMED"
	TextCodeIdentityNotFound      = "IDENTITY_NOT_FOUND"
	TextCodeLinkedAccountNotFound = "IDENTITY_LINKED_ACCOUNT_NOT_FOUND"
	TextCodeSecretNotFound        = "IDENTITY_SECRET_NOT_FOUND"
	TextCodePasswordRequired      = "IDENTITY_PASSWORD_REQUIRED"
	TextCodePasswordMismatch      = "IDENTITY_PASSWORD_MISMATCH"
	TextCodePasswordTooShort      = "IDENTITY_PASSWORD_TOO_SHORT"
	TextCodeInvalidUsername       = "IDENTITY_INVALID_USERNAME"
	TextCodeInvalidSecretName     = "IDENTITY_INVALID_SECRET_NAME"
	TextCodeInvalidAccount        = "IDENTITY_INVALID_PROVIDER_ACCOUNT"
	TextCodeEmailTaken            = "IDENTITY_EMAIL_TAKEN"
	TextCodeUsernameTaken         = "IDENTITY_USERNAME_TAKEN"
	TextCodeAlreadyDisconnected   = "IDENTITY_ALREADY_DISCONNECTED"
	TextCodeLinkedElsewhere       = "IDENTITY_ACCOUNT_LINKED_ELSEWHERE"
	TextCodeUsernameSetupDone     = "IDENTITY_USERNAME_SETUP_DONE"
	TextCodeUsernameExhausted     = "IDENTITY_USERNAME_EXHAUSTED"
	TextCodeUniqueViolation       = "IDENTITY_UNIQUE_VIOLATION"
	TextCodeStoreUnavailable      = "IDENTITY_STORE_UNAVAILABLE"
)

// ErrUnauthenticated is returned when a request carries no valid session.
var ErrUnauthenticated = errors.New("authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidCredentials is the single failure reported by credential checks.
var ErrInvalidCredentials = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned when the session token is past its expiry.
var ErrTokenExpired = errors.New("session token expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned when the session token cannot be verified.
var ErrTokenMalformed = errors.New("session token malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(errors.CodeNotFound)

var ErrLinkedAccountNotFound = errors.New("linked account not found", errors.CategoryNotFound).
	WithTextCode(TextCodeLinkedAccountNotFound).
	WithCode(errors.CodeNotFound)

var ErrSecretNotFound = errors.New("secret not found", errors.CategoryNotFound).
	WithTextCode(TextCodeSecretNotFound).
	WithCode(errors.CodeNotFound)

// ErrPasswordRequired is returned when a passwordless identity tries to
// drop its last federated login without choosing a password.
var ErrPasswordRequired = errors.New("set a password before disconnecting", errors.CategoryValidation).
	WithTextCode(TextCodePasswordRequired).
	WithCode(errors.CodeBadRequest)

var ErrPasswordMismatch = errors.New("passwords do not match", errors.CategoryValidation).
	WithTextCode(TextCodePasswordMismatch).
	WithCode(errors.CodeBadRequest)

var ErrPasswordTooShort = errors.New(fmt.Sprintf("password must be at least %d characters", MinPasswordLength), errors.CategoryValidation).
	WithTextCode(TextCodePasswordTooShort).
	WithCode(errors.CodeBadRequest)

var ErrInvalidUsername = errors.New("username does not match the username policy", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidUsername).
	WithCode(errors.CodeBadRequest)

var ErrInvalidSecretName = errors.New("secret name must be 1-64 lowercase letters, digits or underscores", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidSecretName).
	WithCode(errors.CodeBadRequest)

var ErrInvalidProviderAccount = errors.New("provider account id is required", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidAccount).
	WithCode(errors.CodeBadRequest)

var ErrEmailTaken = errors.New("email already registered", errors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(errors.CodeConflict)

var ErrUsernameTaken = errors.New("username already taken", errors.CategoryConflict).
	WithTextCode(TextCodeUsernameTaken).
	WithCode(errors.CodeConflict)

// ErrAlreadyDisconnected is returned when the provider has no linked account.
var ErrAlreadyDisconnected = errors.New("already disconnected", errors.CategoryConflict).
	WithTextCode(TextCodeAlreadyDisconnected).
	WithCode(errors.CodeBadRequest)

// ErrAccountLinkedElsewhere is returned when a provider account already
// belongs to another identity.
var ErrAccountLinkedElsewhere = errors.New("provider account is linked to another identity", errors.CategoryConflict).
	WithTextCode(TextCodeLinkedElsewhere).
	WithCode(errors.CodeConflict)

var ErrUsernameSetupDone = errors.New("username already chosen", errors.CategoryConflict).
	WithTextCode(TextCodeUsernameSetupDone).
	WithCode(errors.CodeConflict)

// ErrUsernameExhausted is returned when allocation gave up after
// UsernamePolicy.MaxAttempts collisions.
var ErrUsernameExhausted = errors.New("unable to allocate a free username", errors.CategoryConflict).
	WithTextCode(TextCodeUsernameExhausted).
	WithCode(errors.CodeConflict)

// ErrUniqueViolation matches any UniqueViolationError.
var ErrUniqueViolation = errors.New("unique constraint violation", errors.CategoryConflict).
	WithTextCode(TextCodeUniqueViolation).
	WithCode(errors.CodeConflict)

// ErrStoreUnavailable matches any StoreError.
var ErrStoreUnavailable = errors.New("identity store unavailable", errors.CategoryInternal).
	WithTextCode(TextCodeStoreUnavailable).
	WithCode(errors.CodeInternal)

// UniqueViolationError reports which column broke a uniqueness constraint.
type UniqueViolationError struct {
	Column string
	Err    error
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique constraint violation on %q: %v", e.Column, e.Err)
}

func (e *UniqueViolationError) Unwrap() error { return e.Err }

func (e *UniqueViolationError) Is(target error) bool { return target == ErrUniqueViolation }

// StoreError wraps a backing store failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("identity store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

// IsNotFound reports whether err is one of the package not found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrIdentityNotFound) ||
		errors.Is(err, ErrLinkedAccountNotFound) ||
		errors.Is(err, ErrSecretNotFound)
}

// IsUniqueViolation reports the violated column when err is a uniqueness failure.
func IsUniqueViolation(err error) (string, bool) {
	var uv *UniqueViolationError
	if errors.As(err, &uv) {
		return uv.Column, true
	}
	return "", false
}

// HTTPStatus maps an error to the status code the HTTP layer answers with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	if errors.Is(err, ErrUniqueViolation) {
		return http.StatusConflict
	}

	if errors.Is(err, ErrStoreUnavailable) {
		return http.StatusInternalServerError
	}

	var e *errors.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}

	if e.Code != 0 {
		return e.Code
	}

	switch e.Category {
	case errors.CategoryValidation, errors.CategoryBadInput:
		return http.StatusBadRequest
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryAuthz:
		return http.StatusForbidden
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryConflict:
		return http.StatusConflict
	}

	return http.StatusInternalServerError
}

// PublicMessage returns the message safe to show to the caller.
func PublicMessage(err error) string {
	if errors.Is(err, ErrUniqueViolation) {
		return ErrUniqueViolation.Message
	}
	var e *errors.Error
	if errors.As(err, &e) && e.Category != errors.CategoryInternal {
		return e.Message
	}
	return "internal server error"
}
