package goEnroll

import (
	"fmt"
	"time"
)

// Config holds every tunable of the Engine. Start from DefaultConfig and
// override fields; Build calls Validate.
type Config struct {
	JWT        JWTConfig
	Session    SessionConfig
	Enrollment EnrollmentConfig
	Password   PasswordConfig
	Gateway    GatewayConfig
	Logout     LogoutConfig
	RateLimit  RateLimitConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
	Redis      RedisConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access and refresh token signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	RefreshKey    []byte // hs256 only
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls quick login.
type SessionConfig struct {
	QuickLoginEnabled bool
	QuickLoginTTL     time.Duration
	// ReauthWindow is how long after the last login a quick login is
	// accepted. Exactly ReauthWindow after the last login already requires
	// a password.
	ReauthWindow time.Duration
}

/*
====================================
ENROLLMENT CONFIG
====================================
*/

// EnrollmentConfig controls verification codes and registration sessions.
// RequireVerifiedEmail and RequireLegacyPassword gate CompleteRegistration
// on the matching enrollment steps.
type EnrollmentConfig struct {
	CodeDigits            int
	CodeTTL               time.Duration
	CodeMaxAttempts       int
	RegistrationTTL       time.Duration
	RequireVerifiedEmail  bool
	RequireLegacyPassword bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordAuthority selects who checks passwords at login.
type PasswordAuthority string

const (
	// AuthorityLocal checks only the stored hash.
	AuthorityLocal PasswordAuthority = "local"
	// AuthorityLegacy checks only the identity gateway.
	AuthorityLegacy PasswordAuthority = "legacy"
	// AuthorityLocalThenLegacy checks the stored hash and falls back to the
	// gateway.
	AuthorityLocalThenLegacy PasswordAuthority = "local_then_legacy"
)

// PasswordConfig controls hashing and password policy.
type PasswordConfig struct {
	Authority PasswordAuthority
	MinLength int
	Algorithm string // "bcrypt" (default) or "argon2id"

	BcryptCost int

	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
GATEWAY CONFIG
====================================
*/

// GatewayConfig bounds calls to the identity gateway.
type GatewayConfig struct {
	Timeout time.Duration
}

/*
====================================
LOGOUT CONFIG
====================================
*/

// LogoutScope selects what Logout revokes.
type LogoutScope string

const (
	// LogoutGlobal revokes every session and device binding of the account.
	LogoutGlobal LogoutScope = "global"
	// LogoutSession revokes only the given session and its device binding.
	LogoutSession LogoutScope = "session"
)

// LogoutConfig controls Logout.
type LogoutConfig struct {
	Scope LogoutScope
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig controls Redis-backed throttling.
type RateLimitConfig struct {
	Enabled           bool
	EnableIPThrottle  bool
	MaxLoginAttempts  int
	LoginCooldown     time.Duration
	MaxScanAttempts   int
	ScanWindow        time.Duration
	MaxResendAttempts int
	ResendWindow      time.Duration
}

/*
====================================
AUDIT + METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics registry.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// RedisConfig controls key naming.
type RedisConfig struct {
	KeyPrefix string
}

// DefaultConfig returns the production defaults: 24h access tokens, 7d
// refresh tokens, 30d quick login with a 24h re-authentication window,
// 6-digit codes valid 15m for 5 attempts and 5m registration sessions.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     24 * time.Hour,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "goenroll",
		},
		Session: SessionConfig{
			QuickLoginEnabled: true,
			QuickLoginTTL:     30 * 24 * time.Hour,
			ReauthWindow:      24 * time.Hour,
		},
		Enrollment: EnrollmentConfig{
			CodeDigits:            6,
			CodeTTL:               15 * time.Minute,
			CodeMaxAttempts:       5,
			RegistrationTTL:       5 * time.Minute,
			RequireVerifiedEmail:  true,
			RequireLegacyPassword: true,
		},
		Password: PasswordConfig{
			Authority:   AuthorityLocalThenLegacy,
			MinLength:   8,
			Algorithm:   "bcrypt",
			BcryptCost:  12,
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Gateway: GatewayConfig{
			Timeout: 5 * time.Second,
		},
		Logout: LogoutConfig{
			Scope: LogoutGlobal,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			EnableIPThrottle:  true,
			MaxLoginAttempts:  5,
			LoginCooldown:     15 * time.Minute,
			MaxScanAttempts:   20,
			ScanWindow:        time.Minute,
			MaxResendAttempts: 3,
			ResendWindow:      15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Redis: RedisConfig{
			KeyPrefix: "ge",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.JWT.RefreshKey = cloneBytes(cfg.JWT.RefreshKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}

// Validate reports the first inconsistent setting, wrapped in
// ErrInvalidConfig.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return invalid("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return invalid("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return invalid("JWT RefreshTTL must be >= AccessTTL")
	}
	switch c.JWT.SigningMethod {
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return invalid("ed25519 requires PrivateKey and PublicKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return invalid("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return invalid("unsupported JWT signing method %q", c.JWT.SigningMethod)
	}

	// Session
	if c.Session.QuickLoginEnabled && c.Session.QuickLoginTTL <= 0 {
		return invalid("Session QuickLoginTTL must be > 0 when quick login is enabled")
	}
	if c.Session.ReauthWindow <= 0 {
		return invalid("Session ReauthWindow must be > 0")
	}

	// Enrollment
	if c.Enrollment.CodeDigits < 4 || c.Enrollment.CodeDigits > 10 {
		return invalid("Enrollment CodeDigits must be between 4 and 10")
	}
	if c.Enrollment.CodeTTL <= 0 {
		return invalid("Enrollment CodeTTL must be > 0")
	}
	if c.Enrollment.CodeMaxAttempts <= 0 {
		return invalid("Enrollment CodeMaxAttempts must be > 0")
	}
	if c.Enrollment.RegistrationTTL <= 0 {
		return invalid("Enrollment RegistrationTTL must be > 0")
	}

	// Password
	switch c.Password.Authority {
	case AuthorityLocal, AuthorityLegacy, AuthorityLocalThenLegacy:
	default:
		return invalid("Password Authority %q is invalid", c.Password.Authority)
	}
	if c.Password.MinLength < 8 {
		return invalid("Password MinLength must be >= 8")
	}
	switch c.Password.Algorithm {
	case "bcrypt":
		if c.Password.BcryptCost != 0 && (c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31) {
			return invalid("Password BcryptCost must be between 4 and 31")
		}
	case "argon2id":
		if c.Password.Memory < 8*1024 {
			return invalid("Password Memory must be >= 8192 KB")
		}
		if c.Password.Time < 1 || c.Password.Parallelism < 1 {
			return invalid("Password Time and Parallelism must be >= 1")
		}
		if c.Password.SaltLength < 16 || c.Password.KeyLength < 16 {
			return invalid("Password SaltLength and KeyLength must be >= 16")
		}
	default:
		return invalid("Password Algorithm %q is invalid", c.Password.Algorithm)
	}

	// Gateway
	if c.Gateway.Timeout <= 0 {
		return invalid("Gateway Timeout must be > 0")
	}

	// Logout
	if c.Logout.Scope != LogoutGlobal && c.Logout.Scope != LogoutSession {
		return invalid("Logout Scope %q is invalid", c.Logout.Scope)
	}

	// Rate limits
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxLoginAttempts < 0 || c.RateLimit.MaxScanAttempts < 0 || c.RateLimit.MaxResendAttempts < 0 {
			return invalid("RateLimit attempts must be >= 0")
		}
		if c.RateLimit.MaxLoginAttempts > 0 && c.RateLimit.LoginCooldown <= 0 {
			return invalid("RateLimit LoginCooldown must be > 0")
		}
		if c.RateLimit.MaxScanAttempts > 0 && c.RateLimit.ScanWindow <= 0 {
			return invalid("RateLimit ScanWindow must be > 0")
		}
		if c.RateLimit.MaxResendAttempts > 0 && c.RateLimit.ResendWindow <= 0 {
			return invalid("RateLimit ResendWindow must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return invalid("Audit BufferSize must be > 0")
	}

	if c.Redis.KeyPrefix == "" {
		return invalid("Redis KeyPrefix must not be empty")
	}

	return nil
}
