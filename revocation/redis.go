package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// RedisLedger keeps one key per revoked jti with a TTL equal to the
// token's remaining lifetime, so entries disappear exactly when the token
// would have expired anyway.
type RedisLedger struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisLedger creates a ledger on the given client. prefix namespaces
// the keys; empty means "rvk".
func NewRedisLedger(client redis.UniversalClient, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = "rvk"
	}
	return &RedisLedger{redis: client, prefix: prefix}
}

func (l *RedisLedger) key(jti string) string {
	return l.prefix + ":" + jti
}

// auditRetention bounds how long an entry for an already-expired token
// stays visible. Such tokens fail verification on expiry alone, so the
// entry exists purely for audit inspection.
const auditRetention = time.Hour

// Revoke writes the entry with a TTL ending at its expiry. Tokens already
// past expiry are recorded too, for the audit retention window. Reason and
// user ID ride along in the hash for audit inspection.
func (l *RedisLedger) Revoke(ctx context.Context, entry Entry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		ttl = auditRetention
	}
	key := l.key(entry.JTI)
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "reason", entry.Reason, "user_id", entry.UserID)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether the jti key still exists.
func (l *RedisLedger) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := l.redis.Exists(ctx, l.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// SweepExpired is a no-op for Redis; key TTLs already remove expired
// entries.
func (l *RedisLedger) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
