package revocation

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresLedger persists revocations in a relational table for
// deployments without Redis. Rows do not expire on their own; run
// SweepExpired periodically (see the engine's sweeper).
//
// Expected schema:
//
//	CREATE TABLE revoked_tokens (
//	    jti        TEXT PRIMARY KEY,
//	    expires_at TIMESTAMPTZ NOT NULL,
//	    reason     TEXT NOT NULL DEFAULT '',
//	    user_id    TEXT NOT NULL DEFAULT '',
//	    revoked_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger wraps an open database handle.
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Revoke inserts the entry; revoking twice is a no-op. Entries for tokens
// already past expiry are inserted too: IsRevoked ignores them, but they
// stay in the audit trail until the next sweep.
func (l *PostgresLedger) Revoke(ctx context.Context, entry Entry) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO revoked_tokens (jti, expires_at, reason, user_id) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (jti) DO NOTHING`,
		entry.JTI, entry.ExpiresAt.UTC(), entry.Reason, entry.UserID,
	)
	if err != nil {
		return fmt.Errorf("revocation insert: %w", err)
	}
	return nil
}

// IsRevoked reports whether an unexpired revocation row exists for jti.
func (l *PostgresLedger) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := l.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1 AND expires_at > now())`,
		jti,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("revocation lookup: %w", err)
	}
	return revoked, nil
}

// SweepExpired deletes rows for tokens that have expired by now.
func (l *PostgresLedger) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at <= $1`,
		now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("revocation sweep: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revocation sweep: %w", err)
	}
	return n, nil
}
