package authcore

import (
	"context"
	"sync"
	"time"

	"github.com/kestrelsec/authcore/internal/audit"
	"github.com/kestrelsec/authcore/metrics"
	"github.com/kestrelsec/authcore/password"
	"github.com/kestrelsec/authcore/revocation"
	"github.com/kestrelsec/authcore/secrets"
	"github.com/kestrelsec/authcore/session"
	"github.com/kestrelsec/authcore/token"
	"github.com/kestrelsec/authcore/twofactor"
)

// Engine is the authentication orchestrator. Construct it once with the
// Builder and share it; all methods are safe for concurrent use.
type Engine struct {
	config Config

	cipher    *secrets.Cipher
	codec     *token.Codec
	verifier  *twofactor.Verifier
	hasher    *password.Hasher
	decoyHash string

	sessions  session.Store
	ledger    revocation.Ledger
	directory UserDirectory
	metrics   *metrics.Metrics
	audit     *audit.Dispatcher

	// userLocks serializes the second-factor read-modify-write per user
	// so two concurrent requests cannot both consume the same backup
	// code.
	userLocks *keyedMutex

	sweepOnce sync.Once
	sweepStop chan struct{}
}

// Close flushes the audit dispatcher and stops the sweeper if running.
func (e *Engine) Close() {
	if e.sweepStop != nil {
		e.sweepOnce.Do(func() { close(e.sweepStop) })
	}
	e.audit.Close()
}

// ValidateAccess checks an access token end to end: signature, expiry,
// audience, and the revocation ledger. A ledger read failure fails
// closed.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*token.AccessClaims, error) {
	claims, err := e.codec.VerifyAccess(accessToken)
	if err != nil {
		return nil, err
	}
	revoked, err := e.ledger.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// StartSweeper launches a background loop that removes expired
// revocation entries and sessions every Config.SweepInterval. It stops
// when ctx is cancelled or the engine is closed. Calling it with a zero
// interval is a no-op.
func (e *Engine) StartSweeper(ctx context.Context) {
	if e.config.SweepInterval <= 0 {
		return
	}
	e.sweepStop = make(chan struct{})

	go func() {
		ticker := time.NewTicker(e.config.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.sweep(ctx)
			case <-ctx.Done():
				return
			case <-e.sweepStop:
				return
			}
		}
	}()
}

func (e *Engine) sweep(ctx context.Context) {
	now := time.Now()
	if n, err := e.ledger.SweepExpired(ctx, now); err == nil {
		e.metrics.Swept(metrics.KindToken, n)
	}
	if n, err := e.sessions.SweepExpired(ctx, now); err == nil {
		e.metrics.Swept(metrics.KindSession, n)
	}
}

// emitAudit forwards an event, stamping the timestamp. Best effort by
// construction: the dispatcher never blocks the caller and a broken sink
// only loses events.
func (e *Engine) emitAudit(ctx context.Context, event audit.Event) {
	event.Timestamp = time.Now().UTC()
	e.audit.Emit(ctx, event)
}

func auditError(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// issueSession creates the refresh session and access token together.
// Callers reach this point only after full authentication; the two
// credentials are never issued separately.
func (e *Engine) issueSession(ctx context.Context, user *UserRecord, device Device, now time.Time) (*LoginResult, error) {
	rawSecret, digest, err := token.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	sess := session.New(user.ID, digest, device, now, e.config.RefreshTTL)
	if err := e.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}

	accessToken, claims, err := e.codec.IssueAccess(token.AccessParams{
		UID:      user.ID,
		Username: user.Username,
		Admin:    user.Admin,
		SID:      sess.ID,
	}, now)
	if err != nil {
		// Roll the session back so a half-issued login leaves nothing
		// behind.
		_ = e.sessions.Delete(ctx, sess.ID)
		return nil, err
	}

	return &LoginResult{
		AccessToken:          accessToken,
		AccessClaims:         claims,
		RefreshSecret:        rawSecret,
		SessionID:            sess.ID,
		UsingDefaultPassword: user.UsingDefaultPassword,
	}, nil
}

// keyedMutex hands out one mutex per key, dropping entries when the last
// holder releases.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) lock(key string) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
}

func (k *keyedMutex) unlock(key string) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		k.mu.Unlock()
		panic("authcore: unlock of unheld key")
	}
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	l.mu.Unlock()
}
