package session

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when no session matches the given ID or
// token digest.
var ErrSessionNotFound = errors.New("refresh session not found")

// ErrSessionExpired is returned when the matched session's lifetime has
// passed. The store removes the record as a side effect.
var ErrSessionExpired = errors.New("refresh session expired")

// ErrTokenReuse is returned by Rotate when the presented digest does not
// match the session's current digest. This is the rotation protocol's
// theft signal; the store destroys the session before returning it.
var ErrTokenReuse = errors.New("refresh secret reuse detected")

// Store persists refresh sessions. Implementations must make Rotate
// atomic: two concurrent refreshes with the same secret must yield exactly
// one success and one ErrTokenReuse.
type Store interface {
	// Create persists a new session.
	Create(ctx context.Context, sess *RefreshSession) error

	// FindByTokenHash resolves the session currently holding the given
	// refresh-secret digest.
	FindByTokenHash(ctx context.Context, tokenHash string) (*RefreshSession, error)

	// Get fetches a session by ID without side effects.
	Get(ctx context.Context, id string) (*RefreshSession, error)

	// Rotate atomically swaps the session's digest from providedHash to
	// nextHash and stamps LastUsedAt. A digest mismatch destroys the
	// session and returns ErrTokenReuse.
	Rotate(ctx context.Context, id, providedHash, nextHash string, now time.Time) (*RefreshSession, error)

	// Delete removes a session. Deleting an absent session returns
	// ErrSessionNotFound.
	Delete(ctx context.Context, id string) error

	// DeleteAllForUser removes every session for userID and returns how
	// many were removed.
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)

	// ListForUser returns the user's live sessions, newest first.
	ListForUser(ctx context.Context, userID string) ([]*RefreshSession, error)

	// SweepExpired removes sessions past their lifetime and returns how
	// many were removed.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}
