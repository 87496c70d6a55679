package goEnroll

import (
	"errors"
	"log/slog"

	"github.com/MrEthical07/goEnroll/internal/audit"
	"github.com/MrEthical07/goEnroll/internal/rate"
	"github.com/MrEthical07/goEnroll/internal/stores"
	"github.com/MrEthical07/goEnroll/jwt"
	"github.com/MrEthical07/goEnroll/password"
	"github.com/MrEthical07/goEnroll/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts AccountStore
	devices  DeviceRegistry
	gateway  IdentityGateway
	notifier Notifier
	hasher   PasswordHasher
	clock    Clock
	logger   *slog.Logger

	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions, codes, registration
// sessions and rate limits.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the durable account store.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithDeviceRegistry sets the saved-account registry.
func (b *Builder) WithDeviceRegistry(registry DeviceRegistry) *Builder {
	b.devices = registry
	return b
}

// WithIdentityGateway sets the legacy identity authority.
func (b *Builder) WithIdentityGateway(gw IdentityGateway) *Builder {
	b.gateway = gw
	return b
}

// WithNotifier sets the verification code channel. Without one, codes are
// issued but never dispatched.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithPasswordHasher overrides the hasher derived from Config.Password.
func (b *Builder) WithPasswordHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

// WithClock overrides the wall clock for every expiry decision.
func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

// WithLogger sets the logger for best-effort failures.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets the sink behind the async audit dispatcher.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the counter registry.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate-latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.devices == nil {
		return nil, errors.New("device registry required")
	}
	if b.gateway == nil {
		return nil, errors.New("identity gateway required")
	}

	clock := b.clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config:   cloneConfig(cfg),
		clock:    clock,
		logger:   logger,
		accounts: b.accounts,
		devices:  b.devices,
		gateway:  b.gateway,
		notifier: b.notifier,
	}

	// -------- REDIS STORES --------
	prefix := cfg.Redis.KeyPrefix
	engine.sessions = session.NewStore(b.redis, prefix)
	engine.codes = stores.NewVerificationCodeStore(b.redis, prefix)
	engine.registrations = stores.NewRegistrationSessionStore(b.redis, prefix)
	if cfg.RateLimit.Enabled {
		engine.limiter = rate.New(b.redis, rate.Config{
			KeyPrefix:             prefix,
			EnableIPThrottle:      cfg.RateLimit.EnableIPThrottle,
			MaxLoginAttempts:      cfg.RateLimit.MaxLoginAttempts,
			LoginCooldownDuration: cfg.RateLimit.LoginCooldown,
			MaxScanAttempts:       cfg.RateLimit.MaxScanAttempts,
			ScanWindow:            cfg.RateLimit.ScanWindow,
			MaxResendAttempts:     cfg.RateLimit.MaxResendAttempts,
			ResendWindow:          cfg.RateLimit.ResendWindow,
		})
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	// -------- PASSWORDS --------
	if b.hasher != nil {
		engine.hasher = b.hasher
	} else {
		h, err := newPasswordHasher(cfg.Password)
		if err != nil {
			return nil, err
		}
		engine.hasher = h
	}

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		RefreshKey:    cloneBytes(cfg.JWT.RefreshKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           clock.Now,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	b.built = true

	return engine, nil
}

// newPasswordHasher hashes with the configured algorithm and verifies
// both bcrypt and argon2id encodings.
func newPasswordHasher(cfg PasswordConfig) (PasswordHasher, error) {
	bc, err := password.NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	argon, argonErr := password.NewArgon2(password.Config{
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	})

	var primary password.Hasher = bc
	if cfg.Algorithm == "argon2id" {
		if argonErr != nil {
			return nil, argonErr
		}
		primary = argon
	}
	if argonErr != nil {
		argon = nil
	}
	return password.NewMulti(primary, argon, bc), nil
}
