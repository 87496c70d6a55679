// Package appconfig loads the YAML configuration shared by the goEnroll
// binaries and wires the backends it names.
package appconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	goEnroll "github.com/MrEthical07/goEnroll"
	"github.com/MrEthical07/goEnroll/notify"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Duration accepts Go duration strings ("15m", "24h") in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type LoggerConfig struct {
	LogLevel        string `yaml:"log_level"`
	IncludeSrc      bool   `yaml:"include_src"`
	LogToFile       bool   `yaml:"log_to_file"`
	Filename        string `yaml:"filename"`
	MaxSize         int    `yaml:"max_size"`
	MaxAge          int    `yaml:"max_age"`
	MaxBackups      int    `yaml:"max_backups"`
	CompressOldLogs bool   `yaml:"compress_old_logs"`
}

type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

type PostgresConfig struct {
	URL             string   `yaml:"url"`
	MaxConns        int32    `yaml:"max_conns"`
	MaxConnLifetime Duration `yaml:"max_conn_lifetime"`
	Migrate         bool     `yaml:"migrate"`
}

type MongoConfig struct {
	URI      string   `yaml:"uri"`
	Database string   `yaml:"database"`
	Timeout  Duration `yaml:"timeout"`
}

// StaticIdentity seeds the static gateway.
type StaticIdentity struct {
	Token    string `yaml:"token"`
	Ref      string `yaml:"ref"`
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Name     string `yaml:"name"`
	Phone    string `yaml:"phone"`
	Password string `yaml:"password"`
}

type GatewayConfig struct {
	// Kind is "http" (default) or "static".
	Kind       string           `yaml:"kind"`
	BaseURL    string           `yaml:"base_url"`
	APIKey     string           `yaml:"api_key"`
	Timeout    Duration         `yaml:"timeout"`
	Identities []StaticIdentity `yaml:"identities"`
}

type JWTConfig struct {
	SigningMethod  string   `yaml:"signing_method"`
	PrivateKeyFile string   `yaml:"private_key_file"`
	PublicKeyFile  string   `yaml:"public_key_file"`
	Secret         string   `yaml:"secret"`
	RefreshSecret  string   `yaml:"refresh_secret"`
	Issuer         string   `yaml:"issuer"`
	Audience       string   `yaml:"audience"`
	AccessTTL      Duration `yaml:"access_ttl"`
	RefreshTTL     Duration `yaml:"refresh_ttl"`
}

type SessionConfig struct {
	QuickLoginEnabled *bool    `yaml:"quick_login_enabled"`
	QuickLoginTTL     Duration `yaml:"quick_login_ttl"`
	ReauthWindow      Duration `yaml:"reauth_window"`
	LogoutScope       string   `yaml:"logout_scope"`
}

type EnrollmentConfig struct {
	RequireLegacyPassword *bool `yaml:"require_legacy_password"`
}

// MetricsConfig selects how /metrics is served: "prometheus" text or the
// "otel" collector rendered as JSON.
type MetricsConfig struct {
	Format string `yaml:"format"`
}

type HTTPConfig struct {
	ListenAddr        string   `yaml:"listen_addr"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`
	TrustProxyHeaders bool     `yaml:"trust_proxy_headers"`
}

// Config is the binaries' configuration file.
type Config struct {
	// Dev runs Redis in-process when no Redis URL is configured and keeps
	// accounts in memory when no Postgres URL is configured.
	Dev bool `yaml:"dev"`
	// DeviceRegistry is "postgres" (default), "mongo" or "memory".
	DeviceRegistry string `yaml:"device_registry"`
	// PasswordAuthority is local, legacy or local_then_legacy.
	PasswordAuthority string `yaml:"password_authority"`

	Logging    LoggerConfig       `yaml:"logging"`
	Redis      RedisConfig        `yaml:"redis"`
	Postgres   PostgresConfig     `yaml:"postgres"`
	Mongo      MongoConfig        `yaml:"mongo"`
	Gateway    GatewayConfig      `yaml:"gateway"`
	JWT        JWTConfig          `yaml:"jwt"`
	Session    SessionConfig      `yaml:"session"`
	Enrollment EnrollmentConfig   `yaml:"enrollment"`
	Metrics    MetricsConfig      `yaml:"metrics"`
	HTTP       HTTPConfig         `yaml:"http"`
	Mail       *notify.MailConfig `yaml:"mail"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DeviceRegistry: "postgres",
		Logging:        LoggerConfig{LogLevel: "info", MaxSize: 100, MaxAge: 28, MaxBackups: 3},
		Redis:          RedisConfig{KeyPrefix: "ge"},
		Postgres:       PostgresConfig{MaxConns: 10, MaxConnLifetime: Duration(time.Hour), Migrate: true},
		Mongo:          MongoConfig{Database: "goenroll", Timeout: Duration(10 * time.Second)},
		Gateway:        GatewayConfig{Kind: "http", Timeout: Duration(5 * time.Second)},
		JWT:            JWTConfig{SigningMethod: "ed25519", Issuer: "goenroll"},
		Metrics:        MetricsConfig{Format: "prometheus"},
		HTTP:           HTTPConfig{ListenAddr: ":8080", RequestsPerSecond: 10, Burst: 20},
	}
}

// Load reads .env (if present), then path (if not empty), then applies
// GOENROLL_* environment overrides.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (c *Config) applyEnv() error {
	c.Redis.URL = getEnv("GOENROLL_REDIS_URL", c.Redis.URL)
	c.Postgres.URL = getEnv("GOENROLL_POSTGRES_URL", c.Postgres.URL)
	c.Mongo.URI = getEnv("GOENROLL_MONGO_URI", c.Mongo.URI)
	c.DeviceRegistry = getEnv("GOENROLL_DEVICE_REGISTRY", c.DeviceRegistry)
	c.Gateway.BaseURL = getEnv("GOENROLL_GATEWAY_URL", c.Gateway.BaseURL)
	c.Gateway.APIKey = getEnv("GOENROLL_GATEWAY_API_KEY", c.Gateway.APIKey)
	c.JWT.Secret = getEnv("GOENROLL_JWT_SECRET", c.JWT.Secret)
	c.HTTP.ListenAddr = getEnv("GOENROLL_LISTEN_ADDR", c.HTTP.ListenAddr)
	c.Logging.LogLevel = getEnv("GOENROLL_LOG_LEVEL", c.Logging.LogLevel)
	c.Metrics.Format = getEnv("GOENROLL_METRICS_FORMAT", c.Metrics.Format)
	if v := getEnv("GOENROLL_DEV", ""); v != "" {
		dev, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GOENROLL_DEV: %w", err)
		}
		c.Dev = dev
	}
	return nil
}

// Validate checks the settings the engine config cannot check itself.
func (c Config) Validate() error {
	switch c.DeviceRegistry {
	case "postgres", "memory":
	case "mongo":
		if c.Mongo.URI == "" {
			return errors.New("device_registry mongo requires mongo.uri")
		}
	default:
		return fmt.Errorf("unknown device_registry %q", c.DeviceRegistry)
	}
	if !c.Dev && c.Redis.URL == "" {
		return errors.New("redis.url is required outside dev mode")
	}
	if !c.Dev && c.Postgres.URL == "" {
		return errors.New("postgres.url is required outside dev mode")
	}
	switch c.Metrics.Format {
	case "prometheus", "otel":
	default:
		return fmt.Errorf("unknown metrics.format %q", c.Metrics.Format)
	}
	switch c.Gateway.Kind {
	case "http":
		if c.Gateway.BaseURL == "" {
			return errors.New("gateway.base_url is required for the http gateway")
		}
	case "static":
	default:
		return fmt.Errorf("unknown gateway.kind %q", c.Gateway.Kind)
	}
	return nil
}

// EngineConfig maps the file onto goEnroll.Config, reading key files.
func (c Config) EngineConfig() (goEnroll.Config, error) {
	cfg := goEnroll.DefaultConfig()

	cfg.Redis.KeyPrefix = c.Redis.KeyPrefix
	cfg.Gateway.Timeout = c.Gateway.Timeout.Std()

	cfg.JWT.SigningMethod = c.JWT.SigningMethod
	cfg.JWT.Issuer = c.JWT.Issuer
	cfg.JWT.Audience = c.JWT.Audience
	if c.JWT.AccessTTL > 0 {
		cfg.JWT.AccessTTL = c.JWT.AccessTTL.Std()
	}
	if c.JWT.RefreshTTL > 0 {
		cfg.JWT.RefreshTTL = c.JWT.RefreshTTL.Std()
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		cfg.JWT.PrivateKey = []byte(c.JWT.Secret)
		if c.JWT.RefreshSecret != "" {
			cfg.JWT.RefreshKey = []byte(c.JWT.RefreshSecret)
		}
	default:
		priv, err := os.ReadFile(c.JWT.PrivateKeyFile)
		if err != nil {
			return cfg, fmt.Errorf("read jwt private key: %w", err)
		}
		pub, err := os.ReadFile(c.JWT.PublicKeyFile)
		if err != nil {
			return cfg, fmt.Errorf("read jwt public key: %w", err)
		}
		cfg.JWT.PrivateKey = priv
		cfg.JWT.PublicKey = pub
	}

	if c.Session.QuickLoginEnabled != nil {
		cfg.Session.QuickLoginEnabled = *c.Session.QuickLoginEnabled
	}
	if c.Session.QuickLoginTTL > 0 {
		cfg.Session.QuickLoginTTL = c.Session.QuickLoginTTL.Std()
	}
	if c.Session.ReauthWindow > 0 {
		cfg.Session.ReauthWindow = c.Session.ReauthWindow.Std()
	}
	if c.Session.LogoutScope != "" {
		cfg.Logout.Scope = goEnroll.LogoutScope(c.Session.LogoutScope)
	}
	if c.Enrollment.RequireLegacyPassword != nil {
		cfg.Enrollment.RequireLegacyPassword = *c.Enrollment.RequireLegacyPassword
	}
	if c.PasswordAuthority != "" {
		cfg.Password.Authority = goEnroll.PasswordAuthority(c.PasswordAuthority)
	}
	cfg.Audit.Enabled = true

	return cfg, cfg.Validate()
}
