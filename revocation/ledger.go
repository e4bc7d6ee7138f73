// Package revocation tracks access tokens (by jti) that were invalidated
// before their natural expiry. Entries only need to live as long as the
// token would have; after that the signature check fails on its own.
package revocation

import (
	"context"
	"time"
)

// Entry is one revocation record. Reason and UserID exist for audit;
// only the jti and expiry drive verification.
type Entry struct {
	JTI       string
	ExpiresAt time.Time
	Reason    string
	UserID    string
}

// Ledger records and answers revocation queries.
type Ledger interface {
	// Revoke marks the entry's jti as revoked until its expiry. Revoking
	// an already revoked jti is a no-op, not an error.
	Revoke(ctx context.Context, entry Entry) error
	// IsRevoked reports whether jti is currently revoked. Lookup failures
	// surface as errors so callers can fail closed.
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// SweepExpired removes entries whose tokens have expired and returns
	// how many were removed.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}
