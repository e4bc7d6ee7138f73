package authcore

import (
	"context"
	"strconv"
	"time"

	"github.com/kestrelsec/authcore/internal/audit"
	"github.com/kestrelsec/authcore/metrics"
	"github.com/kestrelsec/authcore/twofactor"
)

// VerifyTwoFactor completes a login that stopped at the pending-2FA
// stage. code is either a 6-digit TOTP code or an 8-character backup
// code; the shape decides which verification path runs. On success the
// full credential pair is issued, exactly as a non-2FA login would.
//
// The per-user lock makes the backup-code read-modify-write atomic: of
// two concurrent requests presenting the same code, the second observes
// it as already used.
func (e *Engine) VerifyTwoFactor(ctx context.Context, pendingToken, code string, device Device) (*LoginResult, error) {
	claims, err := e.codec.VerifyPending(pendingToken)
	if err != nil {
		return nil, err
	}
	now := time.Now()

	e.userLocks.lock(claims.UID)
	defer e.userLocks.unlock(claims.UID)

	user, err := e.directory.FindUserByIdentity(ctx, claims.UID)
	if err != nil || user == nil {
		return nil, ErrInvalidCredentials
	}
	if user.TwoFactor == nil || !user.TwoFactor.Enabled {
		// 2FA was disabled between login and verification; the pending
		// token no longer proves anything useful.
		return nil, ErrInvalidTwoFactorCode
	}

	user.UsingDefaultPassword = claims.DefaultPassword

	if e.verifier.IsBackupCode(code) {
		return e.verifyWithBackupCode(ctx, user, code, device, now)
	}
	return e.verifyWithTOTP(ctx, user, code, device, now)
}

func (e *Engine) verifyWithTOTP(ctx context.Context, user *UserRecord, code string, device Device, now time.Time) (*LoginResult, error) {
	if !e.verifier.VerifyTOTP(user.TwoFactor.SecretCiphertext, code, now) {
		e.metrics.TwoFactor(metrics.MethodTOTP, metrics.ResultFailure)
		e.emitAudit(ctx, audit.Event{
			EventType: audit.TypeTwoFactorFailure,
			UserID:    user.ID,
			IP:        device.IP,
			Metadata:  map[string]string{"method": metrics.MethodTOTP},
		})
		return nil, ErrInvalidTwoFactorCode
	}

	result, err := e.issueSession(ctx, user, device, now)
	if err != nil {
		return nil, err
	}
	e.metrics.TwoFactor(metrics.MethodTOTP, metrics.ResultSuccess)
	e.emitAudit(ctx, audit.Event{
		EventType: audit.TypeTwoFactorSuccess,
		UserID:    user.ID,
		SessionID: result.SessionID,
		IP:        device.IP,
		Success:   true,
		Metadata:  map[string]string{"method": metrics.MethodTOTP},
	})
	return result, nil
}

func (e *Engine) verifyWithBackupCode(ctx context.Context, user *UserRecord, code string, device Device, now time.Time) (*LoginResult, error) {
	if twofactor.RemainingBackupCodes(user.TwoFactor.BackupCodes) == 0 {
		e.metrics.TwoFactor(metrics.MethodBackup, metrics.ResultFailure)
		e.emitAudit(ctx, audit.Event{
			EventType: audit.TypeTwoFactorFailure,
			UserID:    user.ID,
			IP:        device.IP,
			Error:     ErrBackupCodesExhausted.Error(),
			Metadata:  map[string]string{"method": metrics.MethodBackup},
		})
		return nil, ErrBackupCodesExhausted
	}

	valid, updated := e.verifier.VerifyBackupCode(user.TwoFactor.BackupCodes, code, now)
	if !valid {
		e.metrics.TwoFactor(metrics.MethodBackup, metrics.ResultFailure)
		e.emitAudit(ctx, audit.Event{
			EventType: audit.TypeTwoFactorFailure,
			UserID:    user.ID,
			IP:        device.IP,
			Metadata:  map[string]string{"method": metrics.MethodBackup},
		})
		return nil, ErrInvalidTwoFactorCode
	}

	// The consumed code must be durable before tokens go out, otherwise
	// a crash would leave it replayable.
	cred := *user.TwoFactor
	cred.BackupCodes = updated
	if err := e.directory.SaveTwoFactor(ctx, user.ID, &cred); err != nil {
		return nil, err
	}
	user.TwoFactor = &cred

	result, err := e.issueSession(ctx, user, device, now)
	if err != nil {
		return nil, err
	}
	e.metrics.TwoFactor(metrics.MethodBackup, metrics.ResultSuccess)
	e.emitAudit(ctx, audit.Event{
		EventType: audit.TypeTwoFactorSuccess,
		UserID:    user.ID,
		SessionID: result.SessionID,
		IP:        device.IP,
		Success:   true,
		Metadata: map[string]string{
			"method":    metrics.MethodBackup,
			"remaining": strconv.Itoa(twofactor.RemainingBackupCodes(updated)),
		},
	})
	return result, nil
}

// ProvisionTwoFactor starts 2FA enrollment: a fresh encrypted seed and
// the otpauth:// URI to render as a QR code. Nothing is persisted until
// ConfirmTwoFactorSetup proves the user's authenticator works.
func (e *Engine) ProvisionTwoFactor(ctx context.Context, userID string) (*twofactor.Enrollment, error) {
	user, err := e.directory.FindUserByIdentity(ctx, userID)
	if err != nil || user == nil {
		return nil, ErrInvalidCredentials
	}
	if user.TwoFactor != nil && user.TwoFactor.Enabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	account := user.Username
	if account == "" {
		account = user.ID
	}
	return e.verifier.GenerateSecret(account)
}

// ConfirmTwoFactorSetup activates 2FA after the user proves possession
// of the seed by producing one valid code. It persists the credential
// with a fresh backup-code list and returns the plaintext codes, shown
// this one time only.
func (e *Engine) ConfirmTwoFactorSetup(ctx context.Context, userID, encryptedSecret, code string) (*TwoFactorSetup, error) {
	e.userLocks.lock(userID)
	defer e.userLocks.unlock(userID)

	user, err := e.directory.FindUserByIdentity(ctx, userID)
	if err != nil || user == nil {
		return nil, ErrInvalidCredentials
	}
	if user.TwoFactor != nil && user.TwoFactor.Enabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	if !e.verifier.VerifyTOTP(encryptedSecret, code, time.Now()) {
		return nil, ErrInvalidTwoFactorCode
	}

	codes, err := e.verifier.GenerateBackupCodes()
	if err != nil {
		return nil, err
	}
	hashed, err := e.verifier.HashBackupCodes(codes)
	if err != nil {
		return nil, err
	}

	cred := &TwoFactorCredential{
		Enabled:          true,
		SecretCiphertext: encryptedSecret,
		BackupCodes:      hashed,
	}
	if err := e.directory.SaveTwoFactor(ctx, userID, cred); err != nil {
		return nil, err
	}

	e.emitAudit(ctx, audit.Event{
		EventType: audit.TypeTwoFactorEnroll,
		UserID:    userID,
		Success:   true,
	})
	return &TwoFactorSetup{BackupCodes: codes}, nil
}

// RegenerateBackupCodes replaces the whole backup-code list after the
// user re-proves the second factor. The old list is discarded
// atomically; partially used lists never mix with fresh ones.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, code string) (*TwoFactorSetup, error) {
	e.userLocks.lock(userID)
	defer e.userLocks.unlock(userID)

	user, err := e.directory.FindUserByIdentity(ctx, userID)
	if err != nil || user == nil {
		return nil, ErrInvalidCredentials
	}
	if user.TwoFactor == nil || !user.TwoFactor.Enabled {
		return nil, ErrTwoFactorNotEnabled
	}
	if !e.verifier.VerifyTOTP(user.TwoFactor.SecretCiphertext, code, time.Now()) {
		return nil, ErrInvalidTwoFactorCode
	}

	codes, err := e.verifier.GenerateBackupCodes()
	if err != nil {
		return nil, err
	}
	hashed, err := e.verifier.HashBackupCodes(codes)
	if err != nil {
		return nil, err
	}

	cred := *user.TwoFactor
	cred.BackupCodes = hashed
	if err := e.directory.SaveTwoFactor(ctx, userID, &cred); err != nil {
		return nil, err
	}

	e.emitAudit(ctx, audit.Event{
		EventType: audit.TypeBackupCodesReset,
		UserID:    userID,
		Success:   true,
	})
	return &TwoFactorSetup{BackupCodes: codes}, nil
}
