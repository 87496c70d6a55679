package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCodeNotFound         = errors.New("verification code not found")
	ErrCodeMismatch         = errors.New("verification code mismatch")
	ErrCodeAttemptsExceeded = errors.New("verification code attempts exceeded")
	ErrStoreUnavailable     = errors.New("enrollment store unavailable")
)

// consumeCodeLua atomically validates and consumes a verification code.
// KEYS[1] = code key
// ARGV[1] = provided code hash (hex)
// ARGV[2] = current unix millis
//
// Returns 1 on success or an error string:
// "not_found", "expired", "mismatch", "attempts_exceeded".
var consumeCodeLua = redis.NewScript(`
local rec = redis.call('HMGET', KEYS[1], 'hash', 'attempts', 'max', 'expires_at')
if not rec[1] then
  return {err='not_found'}
end

local now = tonumber(ARGV[2])
if now >= tonumber(rec[4]) then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

if rec[1] ~= ARGV[1] then
  redis.call('HINCRBY', KEYS[1], 'attempts', 1)
  return {err='mismatch'}
end

if tonumber(rec[2]) >= tonumber(rec[3]) then
  return {err='attempts_exceeded'}
end

redis.call('DEL', KEYS[1])
return 1
`)

// CodeRecord is the persisted form of a verification code. The plaintext
// code is never stored.
type CodeRecord struct {
	Email       string
	CodeHash    string
	Attempts    int
	MaxAttempts int
	ExpiresAt   time.Time
}

// VerificationCodeStore keeps one active code per email.
type VerificationCodeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewVerificationCodeStore(redisClient redis.UniversalClient, prefix string) *VerificationCodeStore {
	if prefix == "" {
		prefix = "ge"
	}
	return &VerificationCodeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *VerificationCodeStore) key(email string) string {
	return s.prefix + ":vc:" + normalizeEmail(email)
}

// Issue stores the record, replacing any prior code for the same email in
// a single transaction.
func (s *VerificationCodeStore) Issue(ctx context.Context, record CodeRecord, ttl time.Duration) error {
	if record.Email == "" || record.CodeHash == "" {
		return errors.New("verification code record is incomplete")
	}
	key := s.key(record.Email)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"hash", record.CodeHash,
			"attempts", record.Attempts,
			"max", record.MaxAttempts,
			"expires_at", record.ExpiresAt.UnixMilli(),
		)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Consume checks codeHash against the active code for email. A match
// deletes the record so the code can never verify again.
func (s *VerificationCodeStore) Consume(ctx context.Context, email, codeHash string, now time.Time) error {
	err := consumeCodeLua.Run(ctx, s.redis, []string{s.key(email)}, codeHash, now.UnixMilli()).Err()
	if err == nil {
		return nil
	}

	switch err.Error() {
	case "not_found", "expired":
		return ErrCodeNotFound
	case "mismatch":
		return ErrCodeMismatch
	case "attempts_exceeded":
		return ErrCodeAttemptsExceeded
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// Get returns the active record for email, mainly for diagnostics.
func (s *VerificationCodeStore) Get(ctx context.Context, email string) (*CodeRecord, error) {
	values, err := s.redis.HGetAll(ctx, s.key(email)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(values) == 0 {
		return nil, ErrCodeNotFound
	}

	attempts, _ := strconv.Atoi(values["attempts"])
	maxAttempts, _ := strconv.Atoi(values["max"])
	expiresAt, _ := strconv.ParseInt(values["expires_at"], 10, 64)

	return &CodeRecord{
		Email:       normalizeEmail(email),
		CodeHash:    values["hash"],
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		ExpiresAt:   time.UnixMilli(expiresAt),
	}, nil
}

// Delete drops any active code for email.
func (s *VerificationCodeStore) Delete(ctx context.Context, email string) error {
	if err := s.redis.Del(ctx, s.key(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
