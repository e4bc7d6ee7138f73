package authcore

import (
	"errors"

	"github.com/kestrelsec/authcore/secrets"
	"github.com/kestrelsec/authcore/session"
	"github.com/kestrelsec/authcore/token"
)

var (
	// ErrInvalidCredentials is returned for a bad identity/password pair.
	// It is identical whether the user exists or not.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidTwoFactorCode is returned for a wrong, reused, or
	// malformed second-factor code.
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
	// ErrBackupCodesExhausted is returned when a backup code is presented
	// but none remain unused.
	ErrBackupCodesExhausted = errors.New("backup codes exhausted")
	// ErrTokenRevoked is returned for a structurally valid access token
	// whose jti is in the revocation ledger.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTwoFactorNotEnabled is returned by 2FA management operations on
	// accounts without an active second factor.
	ErrTwoFactorNotEnabled = errors.New("two-factor not enabled")
	// ErrTwoFactorAlreadyEnabled guards against re-provisioning over an
	// active credential outside the setup flow.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	// ErrSessionOwnership is returned when a session revocation targets a
	// session belonging to another user.
	ErrSessionOwnership = errors.New("session does not belong to user")
)

// Sentinels surfaced from subpackages, re-exported so embedders only
// import the root package on the error-handling path.
var (
	ErrTokenExpired            = token.ErrTokenExpired
	ErrBadSignature            = token.ErrBadSignature
	ErrWrongAudience           = token.ErrWrongAudience
	ErrSessionNotFound         = session.ErrSessionNotFound
	ErrSessionExpired          = session.ErrSessionExpired
	ErrRefreshReuse            = session.ErrTokenReuse
	ErrEncryptionMisconfigured = secrets.ErrKeyMisconfigured
)
