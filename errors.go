package signin

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeUserNotFound     = "USER_NOT_FOUND"
	TextCodeNotSupported     = "NOT_SUPPORTED_FOR_USER_TYPE"
	TextCodeInvalidSchemes   = "INVALID_SCHEME_SET"
	TextCodeInvalidToken     = "INVALID_SCHEME_TOKEN"
	TextCodeTokenExpired     = "SCHEME_TOKEN_EXPIRED"
	TextCodeNoTransport      = "NO_SESSION_TRANSPORT"
	TextCodeProviderNotFound = "TWO_FACTOR_PROVIDER_NOT_FOUND"
	TextCodeInvalidConfig    = "INVALID_SIGNIN_CONFIG"
	TextCodeMismatchedHash   = "MISMATCHED_PASSWORD"
	TextCodeEmptyPassword    = "EMPTY_PASSWORD"
	TextCodeProtectedClaim   = "PROTECTED_CLAIM_MUTATION"
)

// ErrUserNotFound is returned by stores when no record matches.
var ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeNotFound)

// ErrNotSupported is returned by operations a user type does not implement.
var ErrNotSupported = errors.New("operation not supported for this user type", errors.CategoryOperation).
	WithTextCode(TextCodeNotSupported).
	WithCode(errors.CodeBadRequest)

// ErrInvalidSchemeSet is returned when scheme names are empty or collide.
var ErrInvalidSchemeSet = errors.New("authentication schemes must be non empty and distinct", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidSchemes).
	WithCode(errors.CodeBadRequest)

// ErrInvalidToken is returned when a scheme token fails validation.
var ErrInvalidToken = errors.New("invalid scheme token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned when a scheme token is past its expiration.
var ErrTokenExpired = errors.New("scheme token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrNoTransport is returned when a request carries no session transport.
var ErrNoTransport = errors.New("request has no session transport", errors.CategoryInternal).
	WithTextCode(TextCodeNoTransport).
	WithCode(errors.CodeInternal)

// ErrProviderNotFound is returned when a two-factor provider is not registered.
var ErrProviderNotFound = errors.New("two-factor provider not found", errors.CategoryNotFound).
	WithTextCode(TextCodeProviderNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvalidConfig wraps configuration validation failures.
var ErrInvalidConfig = errors.New("invalid sign-in configuration", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidConfig).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword is returned when a password does not match its hash.
var ErrMismatchedHashAndPassword = errors.New("password does not match", errors.CategoryAuth).
	WithTextCode(TextCodeMismatchedHash).
	WithCode(errors.CodeUnauthorized)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryBadInput).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// ErrProtectedClaimMutation is returned when a claims decorator rewrites identity claims.
var ErrProtectedClaimMutation = errors.New("claims decorator modified protected claims", errors.CategoryInternal).
	WithTextCode(TextCodeProtectedClaim).
	WithCode(errors.CodeInternal)

// annotate returns a copy of base carrying meta, leaving the sentinel untouched.
func annotate(base *errors.Error, meta map[string]any) error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	clone.Source = base
	return clone.WithMetadata(meta)
}

// IsNotFound reports whether err means a user record could not be resolved.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserNotFound) {
		return true
	}
	return errors.IsNotFound(err)
}

// IsTokenExpiredError will check for expired scheme tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}
