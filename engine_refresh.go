package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/kestrelsec/authcore/internal/audit"
	"github.com/kestrelsec/authcore/metrics"
	"github.com/kestrelsec/authcore/token"
)

// Refresh exchanges a refresh secret for a fresh access token and a
// rotated refresh secret. The old secret is dead after this call;
// presenting it again is treated as theft evidence and destroys the
// session for everyone holding it.
func (e *Engine) Refresh(ctx context.Context, rawSecret string, device Device) (*LoginResult, error) {
	now := time.Now()
	digest := token.HashRefreshSecret(rawSecret)

	sess, err := e.sessions.FindByTokenHash(ctx, digest)
	if err != nil {
		e.metrics.Refresh(metrics.ResultFailure)
		e.emitAudit(ctx, audit.Event{
			EventType: audit.TypeLoginFailure,
			IP:        device.IP,
			Error:     "unknown refresh secret",
		})
		return nil, err
	}

	user, err := e.directory.FindUserByIdentity(ctx, sess.UserID)
	if err != nil || user == nil {
		return nil, ErrSessionNotFound
	}

	newRaw, newDigest, err := token.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	rotated, err := e.sessions.Rotate(ctx, sess.ID, digest, newDigest, now)
	if err != nil {
		if errors.Is(err, ErrRefreshReuse) {
			e.metrics.Refresh(metrics.ResultReuse)
			e.emitAudit(ctx, audit.Event{
				EventType: audit.TypeRefreshReuse,
				UserID:    sess.UserID,
				SessionID: sess.ID,
				IP:        device.IP,
				Error:     err.Error(),
			})
		} else {
			e.metrics.Refresh(metrics.ResultFailure)
		}
		return nil, err
	}

	accessToken, claims, err := e.codec.IssueAccess(token.AccessParams{
		UID:      user.ID,
		Username: user.Username,
		Admin:    user.Admin,
		SID:      rotated.ID,
	}, now)
	if err != nil {
		return nil, err
	}

	e.metrics.Refresh(metrics.ResultSuccess)
	e.emitAudit(ctx, audit.Event{
		EventType: audit.TypeRefreshSuccess,
		UserID:    user.ID,
		SessionID: rotated.ID,
		IP:        device.IP,
		Success:   true,
	})

	return &LoginResult{
		AccessToken:          accessToken,
		AccessClaims:         claims,
		RefreshSecret:        newRaw,
		SessionID:            rotated.ID,
		UsingDefaultPassword: user.UsingDefaultPassword,
	}, nil
}
