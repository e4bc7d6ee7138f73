package secrets

import (
	"errors"
	"strings"
	"testing"
)

const testSecret = "cipher-test-long-term-secret-0123456789"

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher(testSecret, "cipher-test-salt")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	return c
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	for _, plaintext := range []string{
		"",
		"a",
		"JBSWY3DPEHPK3PXP",
		strings.Repeat("long payload ", 100),
		"unicode: héllo wörld ☃",
	} {
		envelope, err := c.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plaintext, err)
		}
		if !IsEncrypted(envelope) {
			t.Fatalf("envelope not recognized: %q", envelope)
		}
		got, err := c.Decrypt(envelope)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if got != plaintext {
			t.Fatalf("round trip mismatch: got %q, want %q", got, plaintext)
		}
	}
}

func TestEncryptProducesFreshNonces(t *testing.T) {
	c := newTestCipher(t)

	a, err := c.Encrypt("same input")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := c.Encrypt("same input")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if a == b {
		t.Fatalf("identical envelopes for repeated plaintext")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	c := newTestCipher(t)

	envelope, err := c.Encrypt("secret value")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	parts := strings.Split(envelope, ":")
	flipped := []byte(parts[2])
	flipped[0] ^= 'x'
	tampered := parts[0] + ":" + parts[1] + ":" + string(flipped)

	if _, err := c.Decrypt(tampered); err == nil {
		t.Fatalf("tampered ciphertext accepted")
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	c := newTestCipher(t)
	envelope, err := c.Encrypt("secret value")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	other, err := NewCipher("a-completely-different-long-secret-0123", "cipher-test-salt")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	if _, err := other.Decrypt(envelope); err == nil {
		t.Fatalf("foreign key opened the envelope")
	}
}

func TestDecryptIfEncryptedPassesThroughPlaintext(t *testing.T) {
	c := newTestCipher(t)

	got, err := c.DecryptIfEncrypted("JBSWY3DPEHPK3PXP")
	if err != nil {
		t.Fatalf("DecryptIfEncrypted: %v", err)
	}
	if got != "JBSWY3DPEHPK3PXP" {
		t.Fatalf("plaintext altered: %q", got)
	}

	envelope, err := c.Encrypt("wrapped")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err = c.DecryptIfEncrypted(envelope)
	if err != nil {
		t.Fatalf("DecryptIfEncrypted: %v", err)
	}
	if got != "wrapped" {
		t.Fatalf("envelope not opened: %q", got)
	}
}

func TestIsEncryptedShapes(t *testing.T) {
	c := newTestCipher(t)
	envelope, err := c.Encrypt("x")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	cases := []struct {
		value string
		want  bool
	}{
		{envelope, true},
		{"", false},
		{"plain seed", false},
		{"a:b:c", false},
		{"JBSWY3DPEHPK3PXP", false},
	}
	for _, tc := range cases {
		if got := IsEncrypted(tc.value); got != tc.want {
			t.Fatalf("IsEncrypted(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestNewCipherRejectsShortSecret(t *testing.T) {
	if _, err := NewCipher("too-short", ""); !errors.Is(err, ErrKeyMisconfigured) {
		t.Fatalf("got %v, want ErrKeyMisconfigured", err)
	}
}

func TestRekeyInvalidatesOldCiphertext(t *testing.T) {
	c := newTestCipher(t)
	envelope, err := c.Encrypt("pre-rotation")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if err := c.Rekey("a-different-salt"); err != nil {
		t.Fatalf("Rekey: %v", err)
	}
	if _, err := c.Decrypt(envelope); err == nil {
		t.Fatalf("old-salt envelope still decrypts after rekey")
	}

	fresh, err := c.Encrypt("post-rotation")
	if err != nil {
		t.Fatalf("Encrypt after rekey: %v", err)
	}
	got, err := c.Decrypt(fresh)
	if err != nil || got != "post-rotation" {
		t.Fatalf("post-rekey round trip: %q, %v", got, err)
	}
}

func TestClassifyStoredSecret(t *testing.T) {
	c := newTestCipher(t)
	envelope, err := c.Encrypt("seed")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	enc := Classify(envelope)
	if !enc.Encrypted() {
		t.Fatalf("envelope classified as plaintext")
	}
	got, err := enc.Reveal(c)
	if err != nil || got != "seed" {
		t.Fatalf("Reveal: %q, %v", got, err)
	}

	legacy := Classify("LEGACYPLAINSEED")
	if legacy.Encrypted() {
		t.Fatalf("plaintext classified as envelope")
	}
	got, err = legacy.Reveal(c)
	if err != nil || got != "LEGACYPLAINSEED" {
		t.Fatalf("legacy Reveal: %q, %v", got, err)
	}
}
