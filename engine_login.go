package authcore

import (
	"context"
	"time"

	"github.com/kestrelsec/authcore/internal/audit"
	"github.com/kestrelsec/authcore/metrics"
)

// Login checks the identity/password pair. With the second factor
// disabled it returns full credentials; with it enabled it returns only
// a short-lived pending token and TwoFactorRequired set.
//
// The result is ErrInvalidCredentials for both unknown users and wrong
// passwords, with a decoy hash verification on the unknown-user path so
// the two cases are not trivially distinguishable by timing.
func (e *Engine) Login(ctx context.Context, identity, plainPassword string, device Device) (*LoginResult, error) {
	now := time.Now()

	user, err := e.directory.FindUserByIdentity(ctx, identity)
	if err != nil || user == nil {
		_, _ = e.hasher.Verify(plainPassword, e.decoyHash)
		e.metrics.Login(metrics.ResultFailure)
		e.emitAudit(ctx, audit.Event{
			EventType: audit.TypeLoginFailure,
			IP:        device.IP,
			Error:     "unknown identity",
			Metadata:  map[string]string{"identity": identity},
		})
		return nil, ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(plainPassword, user.PasswordHash)
	if err != nil || !ok {
		e.metrics.Login(metrics.ResultFailure)
		e.emitAudit(ctx, audit.Event{
			EventType: audit.TypeLoginFailure,
			UserID:    user.ID,
			IP:        device.IP,
			Error:     auditError(err),
		})
		return nil, ErrInvalidCredentials
	}

	if user.TwoFactor != nil && user.TwoFactor.Enabled {
		pending, _, err := e.codec.IssuePending(user.ID, user.UsingDefaultPassword, now)
		if err != nil {
			return nil, err
		}
		e.metrics.Login(metrics.ResultRequired)
		e.emitAudit(ctx, audit.Event{
			EventType: audit.TypeTwoFactorPending,
			UserID:    user.ID,
			IP:        device.IP,
			Success:   true,
		})
		return &LoginResult{
			TwoFactorRequired:    true,
			PendingToken:         pending,
			UsingDefaultPassword: user.UsingDefaultPassword,
		}, nil
	}

	result, err := e.issueSession(ctx, user, device, now)
	if err != nil {
		return nil, err
	}

	e.metrics.Login(metrics.ResultSuccess)
	e.emitAudit(ctx, audit.Event{
		EventType: audit.TypeLoginSuccess,
		UserID:    user.ID,
		SessionID: result.SessionID,
		IP:        device.IP,
		Success:   true,
	})
	return result, nil
}
