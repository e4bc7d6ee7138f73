// Package token issues and verifies the three credential kinds: signed
// access tokens, signed pending-2FA tokens, and opaque refresh secrets.
// Access and pending tokens are HS256 JWTs distinguished by audience; a
// token minted for one stage can never be accepted at the other.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Audience values tag the two signed token kinds.
const (
	AudienceAccess  = "access"
	AudiencePending = "2fa-pending"
)

const (
	minSigningSecretLength = 32
	refreshSecretBytes     = 32
)

var (
	// ErrTokenExpired covers both expired and not-yet-valid tokens.
	ErrTokenExpired = errors.New("token expired")
	// ErrBadSignature indicates the signature did not verify under the
	// configured secret, or the token is structurally malformed.
	ErrBadSignature = errors.New("token signature invalid")
	// ErrWrongAudience indicates a structurally valid token presented at
	// the wrong verification stage.
	ErrWrongAudience = errors.New("token audience mismatch")
)

// Config holds the signing secret and per-kind lifetimes.
type Config struct {
	SigningSecret string
	Issuer        string
	AccessTTL     time.Duration
	PendingTTL    time.Duration
	Leeway        time.Duration
}

func (c *Config) applyDefaults() {
	if c.AccessTTL == 0 {
		c.AccessTTL = time.Hour
	}
	if c.PendingTTL == 0 {
		c.PendingTTL = 5 * time.Minute
	}
	if c.Issuer == "" {
		c.Issuer = "authcore"
	}
}

// Codec signs and verifies tokens. Construct once and share; all methods
// are safe for concurrent use.
type Codec struct {
	config Config
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.SigningSecret) < minSigningSecretLength {
		return nil, errors.New("signing secret must be at least 32 characters")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.applyDefaults()
	return &Codec{config: cfg}, nil
}

// AccessClaims is the payload of a full-privilege access token.
type AccessClaims struct {
	UID      string `json:"uid"`
	Username string `json:"username,omitempty"`
	Admin    bool   `json:"adm,omitempty"`
	SID      string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// AccessParams carries the identity minted into an access token.
type AccessParams struct {
	UID      string
	Username string
	Admin    bool
	SID      string
}

// PendingClaims is the payload of a pending-2FA token. It proves only that
// the password check passed; DefaultPassword is carried through so the
// post-2FA result can still surface the must-change-password signal.
type PendingClaims struct {
	UID             string `json:"uid"`
	DefaultPassword bool   `json:"dpw,omitempty"`
	jwt.RegisteredClaims
}

// IssueAccess mints an access token bound to a refresh session. The jti
// is a fresh UUID so the token can later be revoked individually.
func (c *Codec) IssueAccess(p AccessParams, now time.Time) (string, *AccessClaims, error) {
	claims := &AccessClaims{
		UID:      p.UID,
		Username: p.Username,
		Admin:    p.Admin,
		SID:      p.SID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.UID,
			Issuer:    c.config.Issuer,
			Audience:  jwt.ClaimStrings{AudienceAccess},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.config.AccessTTL)),
		},
	}
	signed, err := c.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// IssuePending mints a short-lived pending-2FA token for uid.
func (c *Codec) IssuePending(uid string, defaultPassword bool, now time.Time) (string, *PendingClaims, error) {
	claims := &PendingClaims{
		UID:             uid,
		DefaultPassword: defaultPassword,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   uid,
			Issuer:    c.config.Issuer,
			Audience:  jwt.ClaimStrings{AudiencePending},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.config.PendingTTL)),
		},
	}
	signed, err := c.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

func (c *Codec) sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(c.config.SigningSecret))
}

// VerifyAccess checks signature, expiry, and the access audience. A valid
// pending token fails here with ErrWrongAudience.
func (c *Codec) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.verify(tokenStr, claims, AudienceAccess); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyPending checks signature, expiry, and the pending audience. A valid
// access token fails here with ErrWrongAudience.
func (c *Codec) VerifyPending(tokenStr string) (*PendingClaims, error) {
	claims := &PendingClaims{}
	if err := c.verify(tokenStr, claims, AudiencePending); err != nil {
		return nil, err
	}
	return claims, nil
}

func (c *Codec) verify(tokenStr string, claims jwt.Claims, audience string) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.config.Issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(c.config.SigningSecret), nil
	})
	if err != nil {
		return mapVerifyError(err)
	}
	if !token.Valid {
		return ErrBadSignature
	}
	return nil
}

func mapVerifyError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return fmt.Errorf("%w: %v", ErrWrongAudience, err)
	default:
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
}

// DecodeUnsafe extracts registered claims without verifying the signature.
// Only for diagnostics and audit logging, never for authorization.
func DecodeUnsafe(tokenStr string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// NewRefreshSecret returns a fresh opaque refresh secret (base64url of 256
// random bits) and the hex SHA-256 digest under which it is stored. The raw
// secret goes only to the client.
func NewRefreshSecret() (raw, digest string, err error) {
	buf := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, HashRefreshSecret(raw), nil
}

// HashRefreshSecret returns the hex SHA-256 digest of a raw refresh secret.
// Stores index sessions by this digest so a database leak does not leak
// usable refresh credentials.
func HashRefreshSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
