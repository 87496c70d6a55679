package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRegistrationNotFound   = errors.New("registration session not found")
	ErrRegistrationUnverified = errors.New("registration session not verified")
)

// markVerifiedLua sets a verification flag on a live registration session.
// KEYS[1] = record key
// ARGV[1] = current unix millis
// ARGV[2] = flag field
var markVerifiedLua = redis.NewScript(`
local expiresAt = redis.call('HGET', KEYS[1], 'expires_at')
if not expiresAt then
  return {err='not_found'}
end
if tonumber(ARGV[1]) >= tonumber(expiresAt) then
  return {err='expired'}
end
redis.call('HSET', KEYS[1], ARGV[2], '1')
return 1
`)

// consumeRegistrationLua deletes a live registration session and returns
// its fields. The email index must still point at the token.
// KEYS[1] = record key
// KEYS[2] = email index key
// ARGV[1] = token
// ARGV[2] = current unix millis
// ARGV[3] = "1" when the email must be verified
// ARGV[4] = "1" when the legacy password must be verified
var consumeRegistrationLua = redis.NewScript(`
if redis.call('GET', KEYS[2]) ~= ARGV[1] then
  return {err='not_found'}
end
local fields = redis.call('HGETALL', KEYS[1])
if #fields == 0 then
  redis.call('DEL', KEYS[2])
  return {err='not_found'}
end
local rec = {}
for i = 1, #fields, 2 do
  rec[fields[i]] = fields[i + 1]
end
if tonumber(ARGV[2]) >= tonumber(rec['expires_at']) then
  redis.call('DEL', KEYS[1], KEYS[2])
  return {err='expired'}
end
if ARGV[3] == '1' and rec['email_verified'] ~= '1' then
  return {err='unverified'}
end
if ARGV[4] == '1' and rec['legacy_verified'] ~= '1' then
  return {err='unverified'}
end
redis.call('DEL', KEYS[1], KEYS[2])
return fields
`)

// RegistrationRecord carries QR-derived identity data from scan time to
// password setup.
type RegistrationRecord struct {
	Token          string
	IdentityRef    string
	Username       string
	Email          string
	Name           string
	Phone          string
	EmailVerified  bool
	LegacyVerified bool
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// ConsumeRequirements lists the verification steps a registration session
// must have passed before it can be consumed.
type ConsumeRequirements struct {
	EmailVerified  bool
	LegacyVerified bool
}

// RegistrationSessionStore keeps at most one live registration session per
// email. Sessions are consumed exactly once.
type RegistrationSessionStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRegistrationSessionStore(redisClient redis.UniversalClient, prefix string) *RegistrationSessionStore {
	if prefix == "" {
		prefix = "ge"
	}
	return &RegistrationSessionStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RegistrationSessionStore) recordKey(token string) string {
	return s.prefix + ":rs:" + token
}

func (s *RegistrationSessionStore) indexKey(email string) string {
	return s.prefix + ":rse:" + normalizeEmail(email)
}

// Create persists record and points the email index at it. A previous
// session for the same email is dropped.
func (s *RegistrationSessionStore) Create(ctx context.Context, record RegistrationRecord, ttl time.Duration) error {
	if record.Token == "" || record.Email == "" {
		return errors.New("registration record is incomplete")
	}
	idx := s.indexKey(record.Email)

	previous, err := s.redis.Get(ctx, idx).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	key := s.recordKey(record.Token)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if previous != "" && previous != record.Token {
			pipe.Del(ctx, s.recordKey(previous))
		}
		pipe.HSet(ctx, key,
			"ref", record.IdentityRef,
			"username", record.Username,
			"email", normalizeEmail(record.Email),
			"name", record.Name,
			"phone", record.Phone,
			"email_verified", boolField(record.EmailVerified),
			"legacy_verified", boolField(record.LegacyVerified),
			"created_at", record.CreatedAt.UnixMilli(),
			"expires_at", record.ExpiresAt.UnixMilli(),
		)
		pipe.PExpire(ctx, key, ttl)
		pipe.Set(ctx, idx, record.Token, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Lookup returns the live registration session for email.
func (s *RegistrationSessionStore) Lookup(ctx context.Context, email string, now time.Time) (*RegistrationRecord, error) {
	token, err := s.token(ctx, email)
	if err != nil {
		return nil, err
	}

	values, err := s.redis.HGetAll(ctx, s.recordKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(values) == 0 {
		return nil, ErrRegistrationNotFound
	}

	record := decodeRegistration(token, values)
	if !now.Before(record.ExpiresAt) {
		return nil, ErrRegistrationNotFound
	}
	return record, nil
}

// MarkEmailVerified records that the email code for this session was
// verified.
func (s *RegistrationSessionStore) MarkEmailVerified(ctx context.Context, email string, now time.Time) error {
	return s.mark(ctx, email, now, "email_verified")
}

// MarkLegacyVerified records that the legacy password for this session's
// identity was verified.
func (s *RegistrationSessionStore) MarkLegacyVerified(ctx context.Context, email string, now time.Time) error {
	return s.mark(ctx, email, now, "legacy_verified")
}

func (s *RegistrationSessionStore) mark(ctx context.Context, email string, now time.Time, field string) error {
	token, err := s.token(ctx, email)
	if err != nil {
		return err
	}

	err = markVerifiedLua.Run(ctx, s.redis, []string{s.recordKey(token)}, now.UnixMilli(), field).Err()
	if err == nil {
		return nil
	}
	switch err.Error() {
	case "not_found", "expired":
		return ErrRegistrationNotFound
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// Consume removes the live session for email and returns it.
func (s *RegistrationSessionStore) Consume(
	ctx context.Context,
	email string,
	now time.Time,
	require ConsumeRequirements,
) (*RegistrationRecord, error) {
	token, err := s.token(ctx, email)
	if err != nil {
		return nil, err
	}

	result, err := consumeRegistrationLua.Run(ctx, s.redis,
		[]string{s.recordKey(token), s.indexKey(email)},
		token,
		now.UnixMilli(),
		boolField(require.EmailVerified),
		boolField(require.LegacyVerified),
	).Slice()
	if err != nil {
		switch err.Error() {
		case "not_found", "expired":
			return nil, ErrRegistrationNotFound
		case "unverified":
			return nil, ErrRegistrationUnverified
		default:
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	values := make(map[string]string, len(result)/2)
	for i := 0; i+1 < len(result); i += 2 {
		k, _ := result[i].(string)
		v, _ := result[i+1].(string)
		values[k] = v
	}
	return decodeRegistration(token, values), nil
}

func (s *RegistrationSessionStore) token(ctx context.Context, email string) (string, error) {
	token, err := s.redis.Get(ctx, s.indexKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrRegistrationNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return token, nil
}

func decodeRegistration(token string, values map[string]string) *RegistrationRecord {
	createdAt, _ := strconv.ParseInt(values["created_at"], 10, 64)
	expiresAt, _ := strconv.ParseInt(values["expires_at"], 10, 64)

	return &RegistrationRecord{
		Token:          token,
		IdentityRef:    values["ref"],
		Username:       values["username"],
		Email:          values["email"],
		Name:           values["name"],
		Phone:          values["phone"],
		EmailVerified:  values["email_verified"] == "1",
		LegacyVerified: values["legacy_verified"] == "1",
		CreatedAt:      time.UnixMilli(createdAt),
		ExpiresAt:      time.UnixMilli(expiresAt),
	}
}

func boolField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
