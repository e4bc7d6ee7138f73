package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusReuse    int64 = 2
	rotateStatusRotated  int64 = 3
)

// rotateScript is the compare-and-swap at the heart of rotation. It runs
// against the session hash and swaps the digest index keys in the same
// atomic step. On digest mismatch it destroys the session so a stolen
// secret burns the whole session rather than racing the legitimate client.
const rotateScript = `
local session_key = KEYS[1]
local idx_prefix = ARGV[1]
local user_prefix = ARGV[2]
local session_id = ARGV[3]
local provided = ARGV[4]
local next_hash = ARGV[5]
local now_unix = tonumber(ARGV[6])
local last_used = ARGV[7]

local current = redis.call("HGET", session_key, "token_hash")
if not current then
  return 0
end

local user_id = redis.call("HGET", session_key, "user_id") or ""
local expires_at = tonumber(redis.call("HGET", session_key, "expires_at") or "0")

if expires_at <= now_unix then
  redis.call("DEL", session_key, idx_prefix .. current)
  if user_id ~= "" then
    redis.call("SREM", user_prefix .. user_id, session_id)
  end
  return 1
end

if current ~= provided then
  redis.call("DEL", session_key, idx_prefix .. current, idx_prefix .. provided)
  if user_id ~= "" then
    redis.call("SREM", user_prefix .. user_id, session_id)
  end
  return 2
end

local ttl = redis.call("PTTL", session_key)
redis.call("HSET", session_key, "token_hash", next_hash, "last_used_at", last_used)
redis.call("DEL", idx_prefix .. current)
redis.call("SET", idx_prefix .. next_hash, session_id)
if ttl > 0 then
  redis.call("PEXPIRE", idx_prefix .. next_hash, ttl)
end
return 3
`

var rotateLua = redis.NewScript(rotateScript)

const deleteScript = `
local session_key = KEYS[1]
local idx_prefix = ARGV[1]
local user_prefix = ARGV[2]
local session_id = ARGV[3]

local current = redis.call("HGET", session_key, "token_hash")
if not current then
  return 0
end
local user_id = redis.call("HGET", session_key, "user_id") or ""

redis.call("DEL", session_key, idx_prefix .. current)
if user_id ~= "" then
  redis.call("SREM", user_prefix .. user_id, session_id)
end
return 1
`

var deleteLua = redis.NewScript(deleteScript)

// RedisStore keeps each session as a hash under sess:<id>, a digest index
// under sessh:<hash>, and a per-user ID set under sessu:<uid>. All three
// carry the session TTL so Redis reclaims them together.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store on the given client. prefix namespaces
// all keys; empty means "sess".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "sess"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) sessionKey(id string) string  { return s.prefix + ":" + id }
func (s *RedisStore) indexPrefix() string          { return s.prefix + "h:" }
func (s *RedisStore) indexKey(hash string) string  { return s.indexPrefix() + hash }
func (s *RedisStore) userPrefix() string           { return s.prefix + "u:" }
func (s *RedisStore) userKey(userID string) string { return s.userPrefix() + userID }

// Create persists the session, its digest index, and the user-set entry
// in one transaction.
func (s *RedisStore) Create(ctx context.Context, sess *RefreshSession) error {
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return ErrSessionExpired
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.sessionKey(sess.ID), encodeFields(sess))
		pipe.PExpire(ctx, s.sessionKey(sess.ID), ttl)
		pipe.Set(ctx, s.indexKey(sess.TokenHash), sess.ID, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// FindByTokenHash resolves the digest index and loads the session.
func (s *RedisStore) FindByTokenHash(ctx context.Context, tokenHash string) (*RefreshSession, error) {
	id, err := s.redis.Get(ctx, s.indexKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.Get(ctx, id)
}

// Get fetches a session by ID.
func (s *RedisStore) Get(ctx context.Context, id string) (*RefreshSession, error) {
	fields, err := s.redis.HGetAll(ctx, s.sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrSessionNotFound
	}
	sess, err := decodeFields(id, fields)
	if err != nil {
		return nil, err
	}
	if sess.Expired(time.Now()) {
		_ = s.Delete(ctx, id)
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Rotate runs the CAS script and reloads the updated session on success.
func (s *RedisStore) Rotate(ctx context.Context, id, providedHash, nextHash string, now time.Time) (*RefreshSession, error) {
	status, err := rotateLua.Run(ctx, s.redis,
		[]string{s.sessionKey(id)},
		s.indexPrefix(),
		s.userPrefix(),
		id,
		providedHash,
		nextHash,
		now.Unix(),
		strconv.FormatInt(now.UTC().Unix(), 10),
	).Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch status {
	case rotateStatusNotFound:
		return nil, ErrSessionNotFound
	case rotateStatusExpired:
		return nil, ErrSessionExpired
	case rotateStatusReuse:
		return nil, ErrTokenReuse
	case rotateStatusRotated:
		return s.Get(ctx, id)
	default:
		return nil, fmt.Errorf("%w: unknown rotate status %d", ErrRedisUnavailable, status)
	}
}

// Delete removes the session, its digest index, and the user-set entry.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	existed, err := deleteLua.Run(ctx, s.redis,
		[]string{s.sessionKey(id)},
		s.indexPrefix(),
		s.userPrefix(),
		id,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if existed == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteAllForUser removes every live session tracked for userID.
func (s *RedisStore) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var removed int64
	for _, id := range ids {
		switch err := s.Delete(ctx, id); {
		case err == nil:
			removed++
		case errors.Is(err, ErrSessionNotFound):
			// Stale index entry; already gone.
		default:
			return removed, err
		}
	}

	if err := s.redis.Del(ctx, s.userKey(userID)).Err(); err != nil {
		return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return removed, nil
}

// ListForUser loads the user's sessions, pruning stale set entries as it
// goes, and returns them newest first.
func (s *RedisStore) ListForUser(ctx context.Context, userID string) ([]*RefreshSession, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*RefreshSession{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessions := make([]*RefreshSession, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		switch {
		case err == nil:
			sessions = append(sessions, sess)
		case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExpired):
			_ = s.redis.SRem(ctx, s.userKey(userID), id).Err()
		default:
			return nil, err
		}
	}

	sortNewestFirst(sessions)
	return sessions, nil
}

// SweepExpired is a no-op for Redis; key TTLs already remove expired
// sessions. Stale user-set entries are pruned lazily by ListForUser.
func (s *RedisStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func encodeFields(sess *RefreshSession) map[string]interface{} {
	return map[string]interface{}{
		"user_id":      sess.UserID,
		"token_hash":   sess.TokenHash,
		"device_name":  sess.Device.Name,
		"ip":           sess.Device.IP,
		"user_agent":   sess.Device.UserAgent,
		"created_at":   sess.CreatedAt.UTC().Unix(),
		"last_used_at": sess.LastUsedAt.UTC().Unix(),
		"expires_at":   sess.ExpiresAt.UTC().Unix(),
	}
}

func decodeFields(id string, fields map[string]string) (*RefreshSession, error) {
	createdAt, err := parseUnix(fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", id, err)
	}
	lastUsedAt, err := parseUnix(fields["last_used_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", id, err)
	}
	expiresAt, err := parseUnix(fields["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", id, err)
	}

	return &RefreshSession{
		ID:        id,
		UserID:    fields["user_id"],
		TokenHash: fields["token_hash"],
		Device: Device{
			Name:      fields["device_name"],
			IP:        fields["ip"],
			UserAgent: fields["user_agent"],
		},
		CreatedAt:  createdAt,
		LastUsedAt: lastUsedAt,
		ExpiresAt:  expiresAt,
	}, nil
}

func parseUnix(value string) (time.Time, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(n, 0).UTC(), nil
}

func sortNewestFirst(sessions []*RefreshSession) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
}
