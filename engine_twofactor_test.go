package authcore

import (
	"context"
	"errors"
	"testing"
)

// enrollTwoFactor walks a user through the full setup flow and returns
// the enrollment URI plus the plaintext backup codes.
func enrollTwoFactor(t *testing.T, engine *Engine, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	enrollment, err := engine.ProvisionTwoFactor(ctx, userID)
	if err != nil {
		t.Fatalf("ProvisionTwoFactor: %v", err)
	}

	code := totpFromURI(t, enrollment.URI, 0)
	setup, err := engine.ConfirmTwoFactorSetup(ctx, userID, enrollment.EncryptedSecret, code)
	if err != nil {
		t.Fatalf("ConfirmTwoFactorSetup: %v", err)
	}
	if len(setup.BackupCodes) != 10 {
		t.Fatalf("expected 10 backup codes, got %d", len(setup.BackupCodes))
	}
	return enrollment.URI, setup.BackupCodes
}

func TestTwoFactorLoginFlow(t *testing.T) {
	engine, directory := newTestEngine(t)
	addUser(t, engine, directory, "user-alice", "alice")
	ctx := context.Background()

	uri, _ := enrollTwoFactor(t, engine, "user-alice")

	login, err := engine.Login(ctx, "alice", testPassword, testDevice())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !login.TwoFactorRequired {
		t.Fatalf("expected 2FA challenge after enrollment")
	}
	if login.PendingToken == "" {
		t.Fatalf("missing pending token")
	}
	if login.AccessToken != "" || login.RefreshSecret != "" {
		t.Fatalf("full credentials issued before second factor: %+v", login)
	}

	// The pending token is not an access token.
	if _, err := engine.ValidateAccess(ctx, login.PendingToken); !errors.Is(err, ErrWrongAudience) {
		t.Fatalf("pending token accepted as access token: %v", err)
	}

	result, err := engine.VerifyTwoFactor(ctx, login.PendingToken, totpFromURI(t, uri, 0), testDevice())
	if err != nil {
		t.Fatalf("VerifyTwoFactor: %v", err)
	}
	if result.AccessToken == "" || result.RefreshSecret == "" {
		t.Fatalf("incomplete credentials after 2FA: %+v", result)
	}
	if _, err := engine.ValidateAccess(ctx, result.AccessToken); err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
}

func TestTwoFactorRejectsWrongCode(t *testing.T) {
	engine, directory := newTestEngine(t)
	addUser(t, engine, directory, "user-alice", "alice")
	ctx := context.Background()

	enrollTwoFactor(t, engine, "user-alice")

	login, err := engine.Login(ctx, "alice", testPassword, testDevice())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := engine.VerifyTwoFactor(ctx, login.PendingToken, "000000", testDevice()); !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Fatalf("wrong code: got %v, want ErrInvalidTwoFactorCode", err)
	}

	// The pending token survives a failed attempt.
	if _, err := engine.VerifyTwoFactor(ctx, login.PendingToken, "not-a-code", testDevice()); !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Fatalf("garbage code: got %v, want ErrInvalidTwoFactorCode", err)
	}
}

func TestBackupCodeSingleUseAcrossLogins(t *testing.T) {
	engine, directory := newTestEngine(t)
	addUser(t, engine, directory, "user-alice", "alice")
	ctx := context.Background()

	_, backupCodes := enrollTwoFactor(t, engine, "user-alice")
	code := backupCodes[0]

	login, err := engine.Login(ctx, "alice", testPassword, testDevice())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	result, err := engine.VerifyTwoFactor(ctx, login.PendingToken, code, testDevice())
	if err != nil {
		t.Fatalf("VerifyTwoFactor with backup code: %v", err)
	}
	if result.AccessToken == "" {
		t.Fatalf("no access token from backup-code login")
	}

	// Second login with the same backup code must fail.
	login2, err := engine.Login(ctx, "alice", testPassword, testDevice())
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if _, err := engine.VerifyTwoFactor(ctx, login2.PendingToken, code, testDevice()); !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Fatalf("used backup code: got %v, want ErrInvalidTwoFactorCode", err)
	}

	// A different code still works.
	login3, err := engine.Login(ctx, "alice", testPassword, testDevice())
	if err != nil {
		t.Fatalf("third Login: %v", err)
	}
	if _, err := engine.VerifyTwoFactor(ctx, login3.PendingToken, backupCodes[1], testDevice()); err != nil {
		t.Fatalf("unused backup code rejected: %v", err)
	}
}

func TestProvisionRejectsWhenAlreadyEnabled(t *testing.T) {
	engine, directory := newTestEngine(t)
	addUser(t, engine, directory, "user-alice", "alice")
	ctx := context.Background()

	enrollTwoFactor(t, engine, "user-alice")

	if _, err := engine.ProvisionTwoFactor(ctx, "user-alice"); !errors.Is(err, ErrTwoFactorAlreadyEnabled) {
		t.Fatalf("got %v, want ErrTwoFactorAlreadyEnabled", err)
	}
}

func TestRegenerateBackupCodesReplacesList(t *testing.T) {
	engine, directory := newTestEngine(t)
	addUser(t, engine, directory, "user-alice", "alice")
	ctx := context.Background()

	uri, oldCodes := enrollTwoFactor(t, engine, "user-alice")

	setup, err := engine.RegenerateBackupCodes(ctx, "user-alice", totpFromURI(t, uri, 0))
	if err != nil {
		t.Fatalf("RegenerateBackupCodes: %v", err)
	}
	if len(setup.BackupCodes) != 10 {
		t.Fatalf("expected 10 new codes, got %d", len(setup.BackupCodes))
	}

	// Old codes are dead after the atomic replacement.
	login, err := engine.Login(ctx, "alice", testPassword, testDevice())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := engine.VerifyTwoFactor(ctx, login.PendingToken, oldCodes[0], testDevice()); !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Fatalf("old code accepted: %v", err)
	}

	login2, err := engine.Login(ctx, "alice", testPassword, testDevice())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := engine.VerifyTwoFactor(ctx, login2.PendingToken, setup.BackupCodes[0], testDevice()); err != nil {
		t.Fatalf("new code rejected: %v", err)
	}
}

func TestRegenerateRequiresEnabledTwoFactor(t *testing.T) {
	engine, directory := newTestEngine(t)
	addUser(t, engine, directory, "user-alice", "alice")

	if _, err := engine.RegenerateBackupCodes(context.Background(), "user-alice", "123456"); !errors.Is(err, ErrTwoFactorNotEnabled) {
		t.Fatalf("got %v, want ErrTwoFactorNotEnabled", err)
	}
}
