package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore is the relational alternative to RedisStore for
// deployments that already run Postgres and do not want a second
// datastore. Rotation atomicity comes from a conditional UPDATE on the
// current digest instead of a Lua script.
//
// Expected schema:
//
//	CREATE TABLE refresh_sessions (
//	    id           TEXT PRIMARY KEY,
//	    user_id      TEXT NOT NULL,
//	    token_hash   TEXT NOT NULL UNIQUE,
//	    device_name  TEXT NOT NULL DEFAULT '',
//	    ip           TEXT NOT NULL DEFAULT '',
//	    user_agent   TEXT NOT NULL DEFAULT '',
//	    created_at   TIMESTAMPTZ NOT NULL,
//	    last_used_at TIMESTAMPTZ NOT NULL,
//	    expires_at   TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX refresh_sessions_user_idx ON refresh_sessions (user_id);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `id, user_id, token_hash, device_name, ip, user_agent, created_at, last_used_at, expires_at`

// Create inserts the session row.
func (s *PostgresStore) Create(ctx context.Context, sess *RefreshSession) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sess.ID, sess.UserID, sess.TokenHash,
		sess.Device.Name, sess.Device.IP, sess.Device.UserAgent,
		sess.CreatedAt.UTC(), sess.LastUsedAt.UTC(), sess.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("session insert: %w", err)
	}
	return nil
}

// FindByTokenHash resolves a session by its current refresh-secret digest.
func (s *PostgresStore) FindByTokenHash(ctx context.Context, tokenHash string) (*RefreshSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM refresh_sessions WHERE token_hash = $1`,
		tokenHash,
	)
	return s.scanLive(ctx, row)
}

// Get fetches a session by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*RefreshSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM refresh_sessions WHERE id = $1`,
		id,
	)
	return s.scanLive(ctx, row)
}

func (s *PostgresStore) scanLive(ctx context.Context, row *sql.Row) (*RefreshSession, error) {
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if sess.Expired(time.Now()) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE id = $1`, sess.ID)
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Rotate swaps the digest with a conditional UPDATE. Zero rows updated
// means the session is gone, expired, or holds a different digest; the
// mismatch case destroys the session and reports reuse.
func (s *PostgresStore) Rotate(ctx context.Context, id, providedHash, nextHash string, now time.Time) (*RefreshSession, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE refresh_sessions
		 SET token_hash = $1, last_used_at = $2
		 WHERE id = $3 AND token_hash = $4 AND expires_at > $2`,
		nextHash, now.UTC(), id, providedHash,
	)
	if err != nil {
		return nil, fmt.Errorf("session rotate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("session rotate: %w", err)
	}
	if n == 1 {
		return s.Get(ctx, id)
	}

	// The CAS failed; find out which way.
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.TokenHash != providedHash {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE id = $1`, id)
		return nil, ErrTokenReuse
	}
	return nil, ErrSessionExpired
}

// Delete removes a session row.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteAllForUser removes every session row for userID.
func (s *PostgresStore) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("session delete all: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("session delete all: %w", err)
	}
	return n, nil
}

// ListForUser returns the user's unexpired sessions, newest first.
func (s *PostgresStore) ListForUser(ctx context.Context, userID string) ([]*RefreshSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM refresh_sessions
		 WHERE user_id = $1 AND expires_at > now()
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("session list: %w", err)
	}
	defer rows.Close()

	sessions := []*RefreshSession{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session list: %w", err)
	}
	return sessions, nil
}

// SweepExpired deletes rows past their lifetime.
func (s *PostgresStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("session sweep: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("session sweep: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*RefreshSession, error) {
	var sess RefreshSession
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.TokenHash,
		&sess.Device.Name, &sess.Device.IP, &sess.Device.UserAgent,
		&sess.CreatedAt, &sess.LastUsedAt, &sess.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("session scan: %w", err)
	}
	return &sess, nil
}
