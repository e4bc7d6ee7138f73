// Package twofactor implements the second authentication factor: RFC 6238
// time-based codes backed by an envelope-encrypted seed, and single-use
// backup codes hashed with argon2id.
package twofactor

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kestrelsec/authcore/password"
	"github.com/kestrelsec/authcore/secrets"
)

const totpSecretBytes = 20

// Config controls TOTP parameters and backup-code shape.
type Config struct {
	Issuer           string
	Digits           int
	Period           int
	Skew             int
	Algorithm        string // SHA1 (default), SHA256, SHA512
	BackupCodeCount  int
	BackupCodeLength int
}

func (c *Config) applyDefaults() {
	if c.Digits == 0 {
		c.Digits = 6
	}
	if c.Period == 0 {
		c.Period = 30
	}
	if c.Skew == 0 {
		c.Skew = 1
	}
	if c.Algorithm == "" {
		c.Algorithm = "SHA1"
	}
	if c.BackupCodeCount == 0 {
		c.BackupCodeCount = 10
	}
	if c.BackupCodeLength == 0 {
		c.BackupCodeLength = 8
	}
}

// Verifier generates and checks both factors. The cipher is injected; the
// plaintext TOTP seed only ever exists in memory between generation and
// encryption, or between decryption and comparison.
type Verifier struct {
	config Config
	cipher *secrets.Cipher
	codes  *password.Hasher
}

// NewVerifier builds a Verifier around the given cipher.
func NewVerifier(cfg Config, cipher *secrets.Cipher) (*Verifier, error) {
	if cipher == nil {
		return nil, errors.New("twofactor: cipher required")
	}
	cfg.applyDefaults()
	if _, err := hmacFunc(cfg.Algorithm); err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.CodeConfig())
	if err != nil {
		return nil, err
	}
	return &Verifier{config: cfg, cipher: cipher, codes: hasher}, nil
}

// Enrollment is returned by GenerateSecret. EncryptedSecret is what gets
// persisted; URI is the otpauth:// enrollment string for QR rendering.
type Enrollment struct {
	EncryptedSecret string
	URI             string
}

// GenerateSecret creates a fresh TOTP seed for account and encrypts it
// before returning. The plaintext seed is never handed to the caller except
// inside the enrollment URI shown once to the user.
func (v *Verifier) GenerateSecret(account string) (*Enrollment, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	seed := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)

	encrypted, err := v.cipher.Encrypt(seed)
	if err != nil {
		return nil, err
	}

	return &Enrollment{
		EncryptedSecret: encrypted,
		URI:             v.provisionURI(seed, account),
	}, nil
}

func (v *Verifier) provisionURI(seed, account string) string {
	label := url.PathEscape(v.config.Issuer + ":" + account)

	q := url.Values{}
	q.Set("secret", seed)
	q.Set("issuer", v.config.Issuer)
	q.Set("period", strconv.Itoa(v.config.Period))
	q.Set("digits", strconv.Itoa(v.config.Digits))
	q.Set("algorithm", strings.ToUpper(v.config.Algorithm))

	return "otpauth://totp/" + label + "?" + q.Encode()
}

// VerifyTOTP checks code against the stored (encrypted or legacy
// plaintext) seed at time now, allowing the configured step skew. Every
// failure mode (wrong shape, undecryptable seed, corrupt base32) resolves
// to false; nothing propagates past the verifier boundary.
func (v *Verifier) VerifyTOTP(storedSecret, code string, now time.Time) bool {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != v.config.Digits || !isDigits(trimmed) {
		return false
	}

	seed, err := secrets.Classify(storedSecret).Reveal(v.cipher)
	if err != nil || seed == "" {
		return false
	}
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(seed))
	if err != nil || len(key) == 0 {
		return false
	}

	baseCounter := now.Unix() / int64(v.config.Period)
	for step := -v.config.Skew; step <= v.config.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(key, counter, v.config.Digits, v.config.Algorithm)
		if err != nil {
			return false
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true
		}
	}
	return false
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, errors.New("unsupported totp algorithm")
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
