package services

import "errors"

// OAuth2 protocol errors (RFC 6749 §5.2). The error text is the wire-format
// error code; handlers map these to HTTP statuses. Lookup failures after
// request-shape validation deliberately collapse into the generic
// invalid_client / invalid_grant values so callers cannot probe which part of
// a credential failed.
var (
	ErrInvalidRequest       = errors.New("invalid_request")
	ErrInvalidClient        = errors.New("invalid_client")
	ErrInvalidGrant         = errors.New("invalid_grant")
	ErrInvalidScope         = errors.New("invalid_scope")
	ErrUnsupportedGrantType = errors.New("unsupported_grant_type")
	ErrUnauthorizedClient   = errors.New("unauthorized_client")

	// Authorization endpoint errors
	ErrUnsupportedResponseType = errors.New("unsupported_response_type")
	ErrInvalidRedirectURI      = errors.New("invalid redirect_uri")
	ErrConsentExpired          = errors.New("consent request expired")

	// Interactive login errors
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserNotFound       = errors.New("user not found")

	// ErrTokenInvalid covers every bearer resolution failure (unknown, expired,
	// revoked). The gate must not reveal which one applied.
	ErrTokenInvalid = errors.New("token invalid")
)
