package authcore

import (
	"context"
	"errors"
	"strconv"

	"github.com/kestrelsec/authcore/internal/audit"
	"github.com/kestrelsec/authcore/metrics"
	"github.com/kestrelsec/authcore/revocation"
	"github.com/kestrelsec/authcore/token"
)

// Logout invalidates the presented access token by revoking its jti
// until natural expiry, and, when a refresh secret is supplied, removes
// the backing session as well.
func (e *Engine) Logout(ctx context.Context, accessToken, rawRefreshSecret string) error {
	claims, err := e.codec.VerifyAccess(accessToken)
	if err != nil {
		return err
	}

	err = e.ledger.Revoke(ctx, revocation.Entry{
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
		Reason:    "logout",
		UserID:    claims.UID,
	})
	if err != nil {
		return err
	}
	e.metrics.Revocation(metrics.KindToken)

	if rawRefreshSecret != "" {
		digest := token.HashRefreshSecret(rawRefreshSecret)
		sess, err := e.sessions.FindByTokenHash(ctx, digest)
		switch {
		case err == nil:
			if sess.UserID == claims.UID {
				if err := e.sessions.Delete(ctx, sess.ID); err != nil && !errors.Is(err, ErrSessionNotFound) {
					return err
				}
				e.metrics.Revocation(metrics.KindSession)
			}
		case errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired):
			// Nothing left to revoke.
		default:
			// A transient store failure must not report the session as
			// revoked when it may still be alive.
			return err
		}
	}

	e.emitAudit(ctx, audit.Event{
		EventType: audit.TypeLogout,
		UserID:    claims.UID,
		SessionID: claims.SID,
		Success:   true,
	})
	return nil
}

// LogoutAll revokes every refresh session the user has and returns the
// count. Outstanding access tokens stay valid until expiry unless
// revoked individually; refresh is dead everywhere immediately.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int64, error) {
	count, err := e.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return count, err
	}

	e.metrics.Revocation(metrics.KindAllSessions)
	e.emitAudit(ctx, audit.Event{
		EventType: audit.TypeLogoutAll,
		UserID:    userID,
		Success:   true,
		Metadata:  map[string]string{"sessions_revoked": strconv.FormatInt(count, 10)},
	})
	return count, nil
}

// ListSessions returns the user's active sessions, newest first. When
// the caller passes its own refresh secret, the matching entry is
// flagged IsCurrent so clients can render "this device".
func (e *Engine) ListSessions(ctx context.Context, userID, currentRawSecret string) ([]SessionInfo, error) {
	sessions, err := e.sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	currentDigest := ""
	if currentRawSecret != "" {
		currentDigest = token.HashRefreshSecret(currentRawSecret)
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, SessionInfo{
			ID:         sess.ID,
			Device:     sess.Device,
			CreatedAt:  sess.CreatedAt,
			LastUsedAt: sess.LastUsedAt,
			ExpiresAt:  sess.ExpiresAt,
			IsCurrent:  currentDigest != "" && sess.TokenHash == currentDigest,
		})
	}
	return infos, nil
}

// RevokeSession removes one session by ID, refusing to cross user
// boundaries.
func (e *Engine) RevokeSession(ctx context.Context, userID, sessionID string) error {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.UserID != userID {
		return ErrSessionOwnership
	}
	if err := e.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}

	e.metrics.Revocation(metrics.KindSession)
	e.emitAudit(ctx, audit.Event{
		EventType: audit.TypeSessionRevoked,
		UserID:    userID,
		SessionID: sessionID,
		Success:   true,
	})
	return nil
}
