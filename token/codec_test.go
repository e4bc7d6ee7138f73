package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testSigningSecret = "unit-test-signing-secret-0123456789abcdef"

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(Config{SigningSecret: testSigningSecret})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func TestNewCodecRejectsShortSecret(t *testing.T) {
	if _, err := NewCodec(Config{SigningSecret: "short"}); err == nil {
		t.Fatalf("expected error for short signing secret")
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	now := time.Now()

	signed, issued, err := c.IssueAccess(AccessParams{UID: "user-1", Username: "alice", SID: "sess-1"}, now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if issued.ID == "" {
		t.Fatalf("access token issued without jti")
	}

	claims, err := c.VerifyAccess(signed)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.UID != "user-1" || claims.SID != "sess-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID != issued.ID {
		t.Fatalf("jti changed across round trip")
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != time.Hour {
		t.Fatalf("expected 1h lifetime, got %v", got)
	}
}

func TestPendingTokenRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	now := time.Now()

	signed, _, err := c.IssuePending("user-1", true, now)
	if err != nil {
		t.Fatalf("IssuePending: %v", err)
	}

	claims, err := c.VerifyPending(signed)
	if err != nil {
		t.Fatalf("VerifyPending: %v", err)
	}
	if claims.UID != "user-1" || !claims.DefaultPassword {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 5*time.Minute {
		t.Fatalf("expected 5m lifetime, got %v", got)
	}
}

func TestAudienceCrossRejection(t *testing.T) {
	c := newTestCodec(t)
	now := time.Now()

	access, _, err := c.IssueAccess(AccessParams{UID: "user-1", Username: "alice", SID: "sess-1"}, now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	pending, _, err := c.IssuePending("user-1", false, now)
	if err != nil {
		t.Fatalf("IssuePending: %v", err)
	}

	if _, err := c.VerifyAccess(pending); !errors.Is(err, ErrWrongAudience) {
		t.Fatalf("pending token at access stage: got %v, want ErrWrongAudience", err)
	}
	if _, err := c.VerifyPending(access); !errors.Is(err, ErrWrongAudience) {
		t.Fatalf("access token at pending stage: got %v, want ErrWrongAudience", err)
	}
}

func TestVerifyAccessExpired(t *testing.T) {
	c := newTestCodec(t)
	issuedAt := time.Now().Add(-2 * time.Hour)

	signed, _, err := c.IssueAccess(AccessParams{UID: "user-1", SID: "sess-1"}, issuedAt)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := c.VerifyAccess(signed); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("got %v, want ErrTokenExpired", err)
	}
}

func TestVerifyAccessBadSignature(t *testing.T) {
	c := newTestCodec(t)
	other, err := NewCodec(Config{SigningSecret: "a-different-signing-secret-9876543210zyxw"})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	signed, _, err := other.IssueAccess(AccessParams{UID: "user-1", SID: "sess-1"}, time.Now())
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := c.VerifyAccess(signed); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("got %v, want ErrBadSignature", err)
	}

	if _, err := c.VerifyAccess("not-a-jwt"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("malformed token: got %v, want ErrBadSignature", err)
	}
}

func TestDecodeUnsafe(t *testing.T) {
	c := newTestCodec(t)
	signed, issued, err := c.IssueAccess(AccessParams{UID: "user-1", SID: "sess-1"}, time.Now())
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	claims, err := DecodeUnsafe(signed)
	if err != nil {
		t.Fatalf("DecodeUnsafe: %v", err)
	}
	if claims.ID != issued.ID {
		t.Fatalf("jti mismatch: %q vs %q", claims.ID, issued.ID)
	}
}

func TestNewRefreshSecret(t *testing.T) {
	raw, digest, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret: %v", err)
	}
	if len(raw) != 43 { // 32 bytes, base64url without padding
		t.Fatalf("unexpected raw secret length %d", len(raw))
	}
	if strings.ContainsAny(raw, "+/=") {
		t.Fatalf("raw secret is not url-safe: %q", raw)
	}
	if digest != HashRefreshSecret(raw) {
		t.Fatalf("digest does not match HashRefreshSecret")
	}
	if len(digest) != 64 {
		t.Fatalf("unexpected digest length %d", len(digest))
	}

	raw2, _, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret: %v", err)
	}
	if raw == raw2 {
		t.Fatalf("two secrets are identical")
	}
}
