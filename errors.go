package auth

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeTokenMalformed   = "TOKEN_MALFORMED"
	TextCodeTokenInvalid     = "TOKEN_INVALID"
	TextCodeTokenExpired     = "TOKEN_EXPIRED"
	TextCodeTokenReplayed    = "TOKEN_REPLAYED"
	TextCodeAccountInactive  = "ACCOUNT_INACTIVE"
	TextCodeAccountLocked    = "ACCOUNT_LOCKED"
	TextCodeAccountNotFound  = "ACCOUNT_NOT_FOUND"
	TextCodeBadCredentials   = "BAD_CREDENTIALS"
	TextCodeEmailNotFound    = "EMAIL_NOT_FOUND"
	TextCodePasswordMismatch = "PASSWORD_MISMATCH"
	TextCodeDeliveryFailed   = "DELIVERY_FAILED"
	TextCodeUnauthenticated  = "UNAUTHENTICATED"
	TextCodeForbidden        = "FORBIDDEN"
)

// ErrTokenMalformed is returned when a token does not parse into a compact JWT
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenInvalid is returned on signature mismatch or when the token kind
// does not match the expected kind
var ErrTokenInvalid = goerrors.New("token is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned when the token expiry is in the past
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenReplayed is returned when a reset token was already used
var ErrTokenReplayed = goerrors.New("token has already been used", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenReplayed).
	WithCode(goerrors.CodeConflict)

// ErrAccountInactive is returned when the account is not active
var ErrAccountInactive = goerrors.New("account is inactive, please contact the administrator", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountInactive).
	WithCode(goerrors.CodeForbidden)

// ErrAccountLocked is returned when too many failed attempts were recorded
// or the account was locked by an administrator
var ErrAccountLocked = goerrors.New("account is locked, please try again later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeAccountLocked).
	WithCode(goerrors.CodeForbidden)

// ErrAccountNotFound is returned by UserDirectory lookups that find nothing
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrBadCredentials is returned when username or password do not match
var ErrBadCredentials = goerrors.New("username or password is incorrect", goerrors.CategoryAuth).
	WithTextCode(TextCodeBadCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailNotFound is returned when no account has the given email
var ErrEmailNotFound = goerrors.New("no account found for email", goerrors.CategoryNotFound).
	WithTextCode(TextCodeEmailNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrPasswordMismatch is returned when the new password and its confirmation differ
var ErrPasswordMismatch = goerrors.New("passwords do not match", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordMismatch).
	WithCode(goerrors.CodeBadRequest)

// ErrDeliveryFailed is returned when the mail transport could not send the reset link
var ErrDeliveryFailed = goerrors.New("unable to deliver email", goerrors.CategoryOperation).
	WithTextCode(TextCodeDeliveryFailed).
	WithCode(goerrors.CodeInternal)

// ErrUnauthenticated is returned by Authenticate when the session token is not acceptable
var ErrUnauthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrForbidden is returned when an authenticated principal lacks a required authority
var ErrForbidden = goerrors.New("access denied", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest)

// IsTokenMalformedError reports whether err carries the malformed token kind
func IsTokenMalformedError(err error) bool {
	return HasTextCode(err, TextCodeTokenMalformed)
}

// IsTokenInvalidError reports whether err carries the invalid token kind
func IsTokenInvalidError(err error) bool {
	return HasTextCode(err, TextCodeTokenInvalid)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return HasTextCode(err, TextCodeTokenExpired) ||
		strings.Contains(err.Error(), "token is expired")
}

// IsAccountLockedError reports whether err is a lockout
func IsAccountLockedError(err error) bool {
	return HasTextCode(err, TextCodeAccountLocked)
}

// IsBadCredentialsError reports whether err is a credential mismatch
func IsBadCredentialsError(err error) bool {
	return HasTextCode(err, TextCodeBadCredentials)
}

// IsAccountNotFoundError reports whether a directory lookup found nothing
func IsAccountNotFoundError(err error) bool {
	return HasTextCode(err, TextCodeAccountNotFound)
}

// IsDeliveryFailedError reports whether the mail transport failed
func IsDeliveryFailedError(err error) bool {
	return HasTextCode(err, TextCodeDeliveryFailed)
}

// IsUnauthenticatedError reports whether err is an authentication rejection
func IsUnauthenticatedError(err error) bool {
	return HasTextCode(err, TextCodeUnauthenticated)
}

// HasTextCode walks the error chain looking for a rich error with the given
// text code.
func HasTextCode(err error, code string) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if rich, ok := e.(*goerrors.Error); ok && rich.TextCode == code {
			return true
		}
	}
	return false
}

// TextCodeOf returns the text code of the outermost rich error in err.
func TextCodeOf(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode
	}
	return ""
}

func withMetadata(base *goerrors.Error, meta map[string]any) *goerrors.Error {
	return base.Clone().WithMetadata(meta)
}
