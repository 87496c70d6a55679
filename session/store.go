package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrSessionNotFound is returned when the session record does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionInactive is returned when rotating a deactivated session.
	ErrSessionInactive = errors.New("session inactive")
	// ErrRefreshExpired is returned when the refresh deadline has passed.
	ErrRefreshExpired = errors.New("refresh token expired")
	// ErrRefreshHashMismatch is returned when the presented refresh secret is
	// not the current one.
	ErrRefreshHashMismatch = errors.New("refresh hash mismatch")
)

const minRetention = time.Second

const (
	rotateStatusNotFound int64 = 0
	rotateStatusInactive int64 = 1
	rotateStatusExpired  int64 = 2
	rotateStatusMismatch int64 = 3
	rotateStatusRotated  int64 = 4
)

// KEYS[1] = session key
// ARGV[1] = expected refresh hash
// ARGV[2] = now (unix millis)
// ARGV[3..7] = new refresh hash, refresh expiry, access jti, access expiry, quick-login expiry
// ARGV[8] = retention ttl (millis)
var rotateRefreshLua = redis.NewScript(`
local f = redis.call('HMGET', KEYS[1], 'active', 'refresh_hash', 'refresh_expires_at')
if not f[1] then
  return 0
end
if f[1] ~= '1' then
  return 1
end
if tonumber(ARGV[2]) >= tonumber(f[3]) then
  return 2
end
if f[2] ~= ARGV[1] then
  return 3
end
redis.call('HSET', KEYS[1],
  'refresh_hash', ARGV[3],
  'refresh_expires_at', ARGV[4],
  'access_jti', ARGV[5],
  'expires_at', ARGV[6],
  'quick_login_expires_at', ARGV[7],
  'last_activity_at', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[8])
return 4
`)

var touchSessionLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  redis.call('HSET', KEYS[1], 'last_activity_at', ARGV[1])
  return 1
end
return 0
`)

// KEYS[1] = session key, KEYS[2] = account index key
// ARGV[1] = session id
var deleteSessionLua = redis.NewScript(`
local existed = redis.call('EXISTS', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[1])
if existed == 1 then
  redis.call('DEL', KEYS[1])
end
return existed
`)

// Store persists sessions in Redis.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session store. prefix namespaces every key.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ge"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) accountKey(accountID string) string {
	return s.prefix + ":as:" + accountID
}

// Save writes sess in full and indexes it under its account. It is an
// upsert keyed by session id.
func (s *Store) Save(ctx context.Context, sess *Session, now time.Time) error {
	if sess == nil || sess.SessionID == "" || sess.AccountID == "" {
		return errors.New("session: incomplete record")
	}

	key := s.key(sess.SessionID)
	ttl := retention(sess.RetainUntil(), now)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, sess.fields()...)
		pipe.PExpire(ctx, key, ttl)
		pipe.SAdd(ctx, s.accountKey(sess.AccountID), sess.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads one session.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	values, err := s.redis.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(values) == 0 {
		return nil, ErrSessionNotFound
	}
	return decodeSession(sessionID, values), nil
}

// ListForAccount returns every stored session of the account. Index entries
// whose record has expired are pruned.
func (s *Store) ListForAccount(ctx context.Context, accountID string) ([]*Session, error) {
	ids, err := s.redis.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.key(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make([]*Session, 0, len(ids))
	var stale []any
	for i, cmd := range cmds {
		values := cmd.Val()
		if len(values) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		out = append(out, decodeSession(ids[i], values))
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, s.accountKey(accountID), stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return out, nil
}

// Touch updates last activity when the session still exists.
func (s *Store) Touch(ctx context.Context, sessionID string, at time.Time) error {
	if err := touchSessionLua.Run(ctx, s.redis, []string{s.key(sessionID)}, at.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Rotate replaces the refresh hash of sessionID when expectedHash is the
// current one, writing the new access and refresh identifiers in the same
// step.
func (s *Store) Rotate(ctx context.Context, sessionID, expectedHash string, next Rotation, now time.Time) error {
	until := next.RefreshExpiresAt
	if next.QuickLoginExpiresAt.After(until) {
		until = next.QuickLoginExpiresAt
	}

	status, err := rotateRefreshLua.Run(ctx, s.redis,
		[]string{s.key(sessionID)},
		expectedHash,
		now.UnixMilli(),
		next.RefreshHash,
		next.RefreshExpiresAt.UnixMilli(),
		next.AccessTokenID,
		next.ExpiresAt.UnixMilli(),
		next.QuickLoginExpiresAt.UnixMilli(),
		retention(until, now).Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch status {
	case rotateStatusRotated:
		return nil
	case rotateStatusNotFound:
		return ErrSessionNotFound
	case rotateStatusInactive:
		return ErrSessionInactive
	case rotateStatusExpired:
		return ErrRefreshExpired
	case rotateStatusMismatch:
		return ErrRefreshHashMismatch
	default:
		return fmt.Errorf("%w: unexpected rotate status %d", ErrRedisUnavailable, status)
	}
}

// Delete removes one session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, accountID, sessionID string) (bool, error) {
	existed, err := deleteSessionLua.Run(ctx, s.redis,
		[]string{s.key(sessionID), s.accountKey(accountID)},
		sessionID,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return existed == 1, nil
}

// DeleteAllForAccount removes every session of the account and returns how
// many records existed.
func (s *Store) DeleteAllForAccount(ctx context.Context, accountID string) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}

	var deleted *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			deleted = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, s.accountKey(accountID))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if deleted == nil {
		return 0, nil
	}
	return int(deleted.Val()), nil
}

// Ping reports Redis reachability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func retention(until, now time.Time) time.Duration {
	ttl := until.Sub(now)
	if ttl < minRetention {
		return minRetention
	}
	return ttl
}
