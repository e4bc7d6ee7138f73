// Package session persists refresh sessions: one record per device login,
// keyed by a ULID session ID and indexed by the SHA-256 digest of the
// current refresh secret. Rotation is an atomic compare-and-swap on that
// digest so a stolen-then-reused secret is detected instead of honored.
package session

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Device describes the client that opened a session. All fields are
// caller-supplied metadata; nothing here is trusted for authorization.
type Device struct {
	Name      string `json:"name,omitempty"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// RefreshSession is one active device login. TokenHash is the hex SHA-256
// digest of the current refresh secret; the raw secret is never stored.
type RefreshSession struct {
	ID         string
	UserID     string
	TokenHash  string
	Device     Device
	CreatedAt  time.Time
	LastUsedAt time.Time
	ExpiresAt  time.Time
}

// New builds a RefreshSession with a fresh ULID, created now and expiring
// after ttl.
func New(userID, tokenHash string, device Device, now time.Time, ttl time.Duration) *RefreshSession {
	now = now.UTC()
	return &RefreshSession{
		ID:         ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		UserID:     userID,
		TokenHash:  tokenHash,
		Device:     device,
		CreatedAt:  now,
		LastUsedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
}

// Expired reports whether the session's absolute lifetime has passed.
func (s *RefreshSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
