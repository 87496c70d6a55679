package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	KeyPrefix             string
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
	MaxScanAttempts       int
	ScanWindow            time.Duration
	MaxResendAttempts     int
	ResendWindow          time.Duration
}

// Limiter enforces per-identifier and per-IP rate limits for login,
// QR scan and code resend operations using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ge"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckLogin checks whether the username+IP pair is within
// the login attempt budget. Returns an error if rate-limited.
func (l *Limiter) CheckLogin(ctx context.Context, username, ip string) error {
	if l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	if err := l.checkCounter(ctx, l.loginUserKey(username), l.config.MaxLoginAttempts); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, l.loginIPKey(ip), l.config.MaxLoginAttempts); err != nil {
			return err
		}
	}

	return nil
}

// IncrementLogin records a failed login attempt for the username+IP pair.
func (l *Limiter) IncrementLogin(ctx context.Context, username, ip string) error {
	if l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.loginUserKey(username), l.config.LoginCooldownDuration)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, l.loginIPKey(ip), l.config.LoginCooldownDuration)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}

	return nil
}

// ResetLogin clears the failed-login counter for the username+IP pair.
// Called after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, username, ip string) error {
	keys := []string{l.loginUserKey(username)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, l.loginIPKey(ip))
	}

	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// GetLoginAttempts returns the current attempt counter for a username.
// Missing keys return zero and do not reveal account existence.
func (l *Limiter) GetLoginAttempts(ctx context.Context, username string) (int, error) {
	count, err := l.redis.Get(ctx, l.loginUserKey(username)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// AllowScan counts one QR scan for the client IP. Scans without a known
// IP are not throttled.
func (l *Limiter) AllowScan(ctx context.Context, ip string) error {
	if l.config.MaxScanAttempts <= 0 || ip == "" {
		return nil
	}
	return l.allow(ctx, l.key("rl:scan", ip), l.config.MaxScanAttempts, l.config.ScanWindow)
}

// AllowResend counts one verification code resend for the email.
func (l *Limiter) AllowResend(ctx context.Context, email string) error {
	if l.config.MaxResendAttempts <= 0 {
		return nil
	}
	return l.allow(ctx, l.key("rl:resend", strings.ToLower(email)), l.config.MaxResendAttempts, l.config.ResendWindow)
}

func (l *Limiter) allow(ctx context.Context, key string, max int, window time.Duration) error {
	count, err := l.incrementWithTTL(ctx, key, window)
	if err != nil {
		return err
	}
	if count > int64(max) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 && ttl > 0 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func (l *Limiter) loginUserKey(username string) string {
	return l.key("rl:login", strings.ToLower(username))
}

func (l *Limiter) loginIPKey(ip string) string {
	return l.key("rl:loginip", ip)
}

func (l *Limiter) key(kind, id string) string {
	return l.config.KeyPrefix + ":" + kind + ":" + id
}
