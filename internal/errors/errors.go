package errors

import (
	"errors"
	"fmt"
)

// Common error categories for the identity gateway
var (
	// Token structure and verification errors
	ErrTokenFormat   = errors.New("malformed token")
	ErrKeyResolution = errors.New("key resolution failed")
	ErrSignature     = errors.New("signature verification failed")

	// Session token errors
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Code exchange errors
	ErrInvalidAuthorizationCode = errors.New("invalid authorization code")
	ErrExpiredAuthorizationCode = errors.New("expired authorization code")
	ErrInvalidTenant            = errors.New("invalid tenant")

	// User errors
	ErrUserNotFound = errors.New("user not found")
	ErrUserInactive = errors.New("user is inactive")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// ClaimReason identifies which claim check failed during identity token verification.
type ClaimReason string

const (
	ClaimIssuer   ClaimReason = "issuer"
	ClaimAudience ClaimReason = "audience"
	ClaimTenant   ClaimReason = "tenant"
	ClaimExpired  ClaimReason = "expired"
)

// ClaimValidationError is returned when a verified token carries a claim that
// does not match the configured authority, client or tenant, or has expired.
// Value holds the offending claim value for diagnostics.
type ClaimValidationError struct {
	Reason ClaimReason
	Value  string
}

func (e *ClaimValidationError) Error() string {
	return fmt.Sprintf("claim validation failed: %s (got %q)", e.Reason, e.Value)
}

// NewClaimValidationError creates a ClaimValidationError for the given claim check.
func NewClaimValidationError(reason ClaimReason, value string) *ClaimValidationError {
	return &ClaimValidationError{Reason: reason, Value: value}
}

// TokenFormatError is returned when a raw token does not have the expected
// three-segment structure or its segments cannot be decoded.
type TokenFormatError struct {
	Detail string
}

func (e *TokenFormatError) Error() string {
	return fmt.Sprintf("malformed token: %s", e.Detail)
}

func (e *TokenFormatError) Is(target error) bool {
	return target == ErrTokenFormat
}

// KeyResolutionError is returned when a signing key cannot be resolved, either
// because the key-id is absent from the fetched key set or the fetch failed.
type KeyResolutionError struct {
	KeyID string
	Err   error
}

func (e *KeyResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("key resolution failed for kid %q: %v", e.KeyID, e.Err)
	}
	return fmt.Sprintf("key resolution failed: kid %q not present in key set", e.KeyID)
}

func (e *KeyResolutionError) Unwrap() error { return e.Err }

func (e *KeyResolutionError) Is(target error) bool {
	return target == ErrKeyResolution
}

// SignatureError is returned when a token's cryptographic signature does not verify.
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("signature verification failed: %v", e.Err)
}

func (e *SignatureError) Unwrap() error { return e.Err }

func (e *SignatureError) Is(target error) bool {
	return target == ErrSignature
}

// RefreshReason identifies why a refresh request was rejected.
type RefreshReason string

const (
	RefreshWrongType     RefreshReason = "wrong_token_type"
	RefreshExpired       RefreshReason = "expired"
	RefreshUserNotFound  RefreshReason = "user_not_found"
	RefreshUserInactive  RefreshReason = "user_inactive"
	RefreshEmailMismatch RefreshReason = "email_mismatch"
	RefreshInvalid       RefreshReason = "invalid"
)

// RefreshTokenError is returned when a refresh token cannot be used to mint a
// new access token.
type RefreshTokenError struct {
	Reason RefreshReason
	Err    error
}

func (e *RefreshTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("refresh rejected: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("refresh rejected: %s", e.Reason)
}

func (e *RefreshTokenError) Unwrap() error { return e.Err }

// NewRefreshTokenError creates a RefreshTokenError with the given reason.
func NewRefreshTokenError(reason RefreshReason, err error) *RefreshTokenError {
	return &RefreshTokenError{Reason: reason, Err: err}
}

// AuditPersistenceError wraps a failure to persist an audit record. It is
// always recovered locally: it is logged by the pipeline and never propagates
// to the operation that produced the record.
type AuditPersistenceError struct {
	RecordID string
	Err      error
}

func (e *AuditPersistenceError) Error() string {
	return fmt.Sprintf("audit persistence failed for record %s: %v", e.RecordID, e.Err)
}

func (e *AuditPersistenceError) Unwrap() error { return e.Err }

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
