// Package secrets provides envelope encryption for credentials stored at
// rest (TOTP seeds). Values are sealed with AES-256-GCM under a key derived
// once from a long-term secret; the envelope carries the nonce and auth tag
// so any process holding the same secret and salt can open it.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// DefaultSalt is the historical key-derivation salt used before the salt
// became configurable. Deployments that stored ciphertext under this salt
// must keep it; changing the salt makes existing ciphertext undecryptable.
const DefaultSalt = "authcore-kdf-salt-v1"

const (
	minSecretLength = 32
	kdfIterations   = 210_000
	keyLength       = 32
	nonceLength     = 12
	tagLength       = 16
)

// ErrKeyMisconfigured indicates the long-term encryption secret is missing
// or too short. This is a startup configuration error, not a runtime one.
var ErrKeyMisconfigured = errors.New("encryption secret missing or shorter than 32 characters")

// ErrNotEncrypted is returned by Decrypt when the value does not have the
// envelope shape.
var ErrNotEncrypted = errors.New("value is not an encrypted envelope")

var errDecrypt = errors.New("decryption failed")

// Cipher seals and opens envelope-encrypted values. The key is derived once
// in NewCipher (PBKDF2 is deliberately slow); every Encrypt/Decrypt call is
// synchronous against the cached key. Construct one Cipher at process start
// and inject it by reference.
type Cipher struct {
	secret string
	salt   string
	aead   cipher.AEAD
}

// NewCipher derives the data key from secret and salt and returns a ready
// Cipher. It fails with ErrKeyMisconfigured when the secret is absent or
// below the minimum length.
func NewCipher(secret, salt string) (*Cipher, error) {
	if len(secret) < minSecretLength {
		return nil, ErrKeyMisconfigured
	}
	if salt == "" {
		salt = DefaultSalt
	}

	c := &Cipher{secret: secret, salt: salt}
	if err := c.derive(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cipher) derive() error {
	key := pbkdf2.Key([]byte(c.secret), []byte(c.salt), kdfIterations, keyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	c.aead = aead
	return nil
}

// Rekey re-derives the cached key under a new salt. Existing ciphertext
// produced under the previous salt becomes undecryptable; callers own that
// migration.
func (c *Cipher) Rekey(salt string) error {
	if salt == "" {
		salt = DefaultSalt
	}
	c.salt = salt
	return c.derive()
}

// Encrypt seals plaintext into a nonceB64:tagB64:ciphertextB64 envelope
// with a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct := sealed[:len(sealed)-tagLength]
	tag := sealed[len(sealed)-tagLength:]

	enc := base64.StdEncoding
	return enc.EncodeToString(nonce) + ":" + enc.EncodeToString(tag) + ":" + enc.EncodeToString(ct), nil
}

// Decrypt opens an envelope produced by Encrypt. Any tampering, truncation,
// or wrong-key condition yields a generic decryption error.
func (c *Cipher) Decrypt(envelope string) (string, error) {
	nonce, tag, ct, ok := splitEnvelope(envelope)
	if !ok {
		return "", ErrNotEncrypted
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errDecrypt, err)
	}
	return string(plain), nil
}

// DecryptIfEncrypted opens value when it has the envelope shape and passes
// it through unchanged otherwise. This tolerates secrets stored before
// at-rest encryption was introduced.
func (c *Cipher) DecryptIfEncrypted(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	return c.Decrypt(value)
}

// IsEncrypted reports whether value matches the envelope shape: three
// base64 segments with a 12-byte nonce and 16-byte tag.
func IsEncrypted(value string) bool {
	_, _, _, ok := splitEnvelope(value)
	return ok
}

func splitEnvelope(value string) (nonce, tag, ct []byte, ok bool) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return nil, nil, nil, false
	}

	enc := base64.StdEncoding
	nonce, err := enc.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceLength {
		return nil, nil, nil, false
	}
	tag, err = enc.DecodeString(parts[1])
	if err != nil || len(tag) != tagLength {
		return nil, nil, nil, false
	}
	ct, err = enc.DecodeString(parts[2])
	if err != nil {
		return nil, nil, nil, false
	}
	return nonce, tag, ct, true
}
