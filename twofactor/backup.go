package twofactor

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"
)

const backupCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// BackupCode is one stored recovery credential. Hash is the argon2id PHC
// string of the plaintext code; the plaintext itself is shown to the user
// exactly once at generation time.
type BackupCode struct {
	Hash   string     `json:"hash"`
	Used   bool       `json:"used"`
	UsedAt *time.Time `json:"used_at,omitempty"`
}

// GenerateBackupCodes returns a fresh set of plaintext recovery codes.
// The caller must hash them before persisting.
func (v *Verifier) GenerateBackupCodes() ([]string, error) {
	codes := make([]string, 0, v.config.BackupCodeCount)
	for len(codes) < v.config.BackupCodeCount {
		code, err := randomCode(v.config.BackupCodeLength)
		if err != nil {
			return nil, err
		}
		// An all-digit code would be indistinguishable from a TOTP input
		// of the same length; skip the rare collision.
		if isDigits(code) {
			continue
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// HashBackupCodes converts plaintext codes into their stored form.
func (v *Verifier) HashBackupCodes(codes []string) ([]BackupCode, error) {
	out := make([]BackupCode, 0, len(codes))
	for _, code := range codes {
		hash, err := v.codes.Hash(NormalizeBackupCode(code))
		if err != nil {
			return nil, err
		}
		out = append(out, BackupCode{Hash: hash})
	}
	return out, nil
}

// VerifyBackupCode scans the unused entries for a match. On success it
// returns true together with a copy of the list in which the matched entry
// is marked used; the caller is responsible for persisting the updated list
// before releasing the user's credential lock. On failure the original list
// is returned unchanged.
func (v *Verifier) VerifyBackupCode(stored []BackupCode, input string, now time.Time) (bool, []BackupCode) {
	normalized := NormalizeBackupCode(input)
	if len(normalized) != v.config.BackupCodeLength {
		return false, stored
	}

	for i, entry := range stored {
		if entry.Used || entry.Hash == "" {
			continue
		}
		match, err := v.codes.Verify(normalized, entry.Hash)
		if err != nil || !match {
			continue
		}

		updated := make([]BackupCode, len(stored))
		copy(updated, stored)
		usedAt := now.UTC()
		updated[i].Used = true
		updated[i].UsedAt = &usedAt
		return true, updated
	}
	return false, stored
}

// RemainingBackupCodes counts the entries still available for use.
func RemainingBackupCodes(stored []BackupCode) int {
	n := 0
	for _, entry := range stored {
		if !entry.Used && entry.Hash != "" {
			n++
		}
	}
	return n
}

// IsBackupCode reports whether input has the recovery-code shape rather
// than the TOTP shape: alphanumeric with at least one letter. Classification
// happens before any lookup so the two verification paths never overlap.
func (v *Verifier) IsBackupCode(input string) bool {
	normalized := NormalizeBackupCode(input)
	if len(normalized) != v.config.BackupCodeLength {
		return false
	}
	for _, r := range normalized {
		if r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}

// NormalizeBackupCode uppercases input and strips everything outside A-Z
// and 0-9, so whatever separators users add when transcribing ("abcd-1234",
// "ABCD 1234", "abcd.1234") all match "ABCD1234".
func NormalizeBackupCode(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range strings.ToUpper(input) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func randomCode(length int) (string, error) {
	max := big.NewInt(int64(len(backupCodeCharset)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = backupCodeCharset[n.Int64()]
	}
	return string(out), nil
}
