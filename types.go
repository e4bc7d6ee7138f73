package authcore

import (
	"context"
	"time"

	"github.com/kestrelsec/authcore/internal/audit"
	"github.com/kestrelsec/authcore/session"
	"github.com/kestrelsec/authcore/token"
	"github.com/kestrelsec/authcore/twofactor"
)

// UserRecord is what the embedding application returns for a credential
// lookup. PasswordHash is an argon2id PHC string; TwoFactor is nil when
// the account has never enrolled a second factor.
type UserRecord struct {
	ID                   string
	Username             string
	Admin                bool
	PasswordHash         string
	UsingDefaultPassword bool
	TwoFactor            *TwoFactorCredential
}

// TwoFactorCredential is the stored second-factor state for one user.
// SecretCiphertext is the envelope-encrypted TOTP seed (legacy plaintext
// seeds are tolerated on read). Backup codes are replaced as a whole
// list, never edited piecemeal from outside the engine.
type TwoFactorCredential struct {
	Enabled          bool
	SecretCiphertext string
	BackupCodes      []twofactor.BackupCode
}

// UserDirectory is the engine's window into the application's user
// storage. FindUserByIdentity resolves a login identifier (username,
// email, or ID, at the application's discretion); SaveTwoFactor persists
// a full replacement of the user's second-factor credential.
type UserDirectory interface {
	FindUserByIdentity(ctx context.Context, identity string) (*UserRecord, error)
	SaveTwoFactor(ctx context.Context, userID string, cred *TwoFactorCredential) error
}

// AuditSink receives security events, best effort. See the audit
// subpackage for ready-made sinks.
type AuditSink = audit.Sink

// AuditEvent re-exports the audit event model.
type AuditEvent = audit.Event

// Device re-exports the session device metadata type.
type Device = session.Device

// LoginResult is the outcome of Login, VerifyTwoFactor, and Refresh.
// Exactly one of two shapes comes back: TwoFactorRequired with only
// PendingToken set, or full credentials with AccessToken, RefreshSecret,
// and SessionID all set together.
type LoginResult struct {
	TwoFactorRequired    bool
	PendingToken         string
	AccessToken          string
	AccessClaims         *token.AccessClaims
	RefreshSecret        string
	SessionID            string
	UsingDefaultPassword bool
}

// SessionInfo is one entry in a user's session listing. IsCurrent marks
// the session backing the refresh secret the caller presented.
type SessionInfo struct {
	ID         string
	Device     Device
	CreatedAt  time.Time
	LastUsedAt time.Time
	ExpiresAt  time.Time
	IsCurrent  bool
}

// TwoFactorSetup is returned by ConfirmTwoFactorSetup and
// RegenerateBackupCodes. BackupCodes are plaintext, shown exactly once.
type TwoFactorSetup struct {
	BackupCodes []string
}
