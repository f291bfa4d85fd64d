package social

import "github.com/goliatone/go-errors"

const (
	TextCodeProviderNotFound  = "SOCIAL_PROVIDER_NOT_FOUND"
	TextCodeInvalidState      = "SOCIAL_INVALID_STATE"
	TextCodeStateExpired      = "SOCIAL_STATE_EXPIRED"
	TextCodeTokenExchangeFail = "SOCIAL_TOKEN_EXCHANGE_FAILED"
	TextCodeProfileFail       = "SOCIAL_PROFILE_FAILED"
	TextCodeInvalidAction     = "SOCIAL_INVALID_ACTION"
	TextCodeLinkRequiresLogin = "SOCIAL_LINK_REQUIRES_LOGIN"
)

// ErrProviderNotFound is returned when a requested provider is not configured.
var ErrProviderNotFound = errors.New("social provider not found", errors.CategoryNotFound).
	WithTextCode(TextCodeProviderNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvalidState is returned when the OAuth state is invalid or tampered.
var ErrInvalidState = errors.New("invalid oauth state", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidState).
	WithCode(errors.CodeBadRequest)

var ErrStateExpired = errors.New("oauth state expired", errors.CategoryBadInput).
	WithTextCode(TextCodeStateExpired).
	WithCode(errors.CodeBadRequest)

var ErrTokenExchangeFailed = errors.New("token exchange failed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExchangeFail).
	WithCode(errors.CodeUnauthorized)

var ErrProfileFailed = errors.New("failed to fetch provider profile", errors.CategoryAuth).
	WithTextCode(TextCodeProfileFail).
	WithCode(errors.CodeUnauthorized)

var ErrInvalidAction = errors.New("unsupported federation action", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidAction).
	WithCode(errors.CodeBadRequest)

// ErrLinkRequiresLogin is returned when a link flow starts without a signed in identity.
var ErrLinkRequiresLogin = errors.New("sign in before linking a provider", errors.CategoryAuth).
	WithTextCode(TextCodeLinkRequiresLogin).
	WithCode(errors.CodeUnauthorized)
