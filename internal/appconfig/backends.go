package appconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goEnroll "github.com/MrEthical07/goEnroll"
	"github.com/MrEthical07/goEnroll/gateway"
	"github.com/MrEthical07/goEnroll/notify"
	"github.com/MrEthical07/goEnroll/store/memory"
	"github.com/MrEthical07/goEnroll/store/mongo"
	"github.com/MrEthical07/goEnroll/store/postgres"
	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Backends holds the opened stores. Close releases them in reverse order.
type Backends struct {
	Redis    redis.UniversalClient
	Accounts goEnroll.AccountStore
	Devices  goEnroll.DeviceRegistry

	pool    *pgxpool.Pool
	closers []func()
}

// Close releases every backend.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// Open connects Redis, the account store and the device registry.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Backends, error) {
	b := &Backends{}

	rdb, closeRedis, err := OpenRedis(cfg)
	if err != nil {
		return nil, err
	}
	b.Redis = rdb
	b.closers = append(b.closers, closeRedis)

	if err := b.openAccounts(ctx, cfg, logger); err != nil {
		b.Close()
		return nil, err
	}

	devices, closeDevices, err := b.openDevices(ctx, cfg)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Devices = devices
	b.closers = append(b.closers, closeDevices)
	return b, nil
}

// OpenRedis parses the Redis URL, or starts an in-process server in dev mode
// when no URL is configured.
func OpenRedis(cfg Config) (redis.UniversalClient, func(), error) {
	if cfg.Dev && cfg.Redis.URL == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start in-process redis: %w", err)
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return client, func() { _ = client.Close(); mr.Close() }, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.PoolSize = 20
	opts.MinIdleConns = 2
	client := redis.NewClient(opts)
	return client, func() { _ = client.Close() }, nil
}

func (b *Backends) openAccounts(ctx context.Context, cfg Config, logger *slog.Logger) error {
	if cfg.Postgres.URL == "" {
		logger.Warn("goEnroll: no postgres url, accounts are kept in memory")
		b.Accounts = memory.NewAccountStore()
		return nil
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres.URL, postgres.PoolConfig{
		MaxConns:        cfg.Postgres.MaxConns,
		MaxConnLifetime: cfg.Postgres.MaxConnLifetime.Std(),
	})
	if err != nil {
		return err
	}
	b.closers = append(b.closers, pool.Close)
	if cfg.Postgres.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	b.pool = pool
	b.Accounts = postgres.NewAccountStore(pool)
	return nil
}

func (b *Backends) openDevices(ctx context.Context, cfg Config) (goEnroll.DeviceRegistry, func(), error) {
	switch cfg.DeviceRegistry {
	case "mongo":
		return OpenMongoRegistry(ctx, cfg)
	case "postgres":
		if b.pool != nil {
			return postgres.NewDeviceRegistry(b.pool), func() {}, nil
		}
		if !cfg.Dev {
			return nil, nil, errors.New("postgres device registry requires postgres.url")
		}
	}
	return memory.NewDeviceRegistry(), func() {}, nil
}

// OpenMongoRegistry connects the Mongo device registry and ensures its
// indexes.
func OpenMongoRegistry(ctx context.Context, cfg Config) (goEnroll.DeviceRegistry, func(), error) {
	client, coll, err := mongo.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Timeout.Std())
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	closeFn := func() { _ = client.Disconnect(context.Background()) }
	registry := mongo.NewDeviceRegistry(coll)
	if err := registry.EnsureIndexes(ctx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("mongo indexes: %w", err)
	}
	return registry, closeFn, nil
}

// NewGateway returns the configured identity gateway.
func NewGateway(cfg Config) (goEnroll.IdentityGateway, error) {
	switch cfg.Gateway.Kind {
	case "static":
		gw := gateway.NewStaticGateway()
		for _, id := range cfg.Gateway.Identities {
			gw.Add(id.Token, goEnroll.Identity{
				Ref:      id.Ref,
				Username: id.Username,
				Email:    id.Email,
				Name:     id.Name,
				Phone:    id.Phone,
				Active:   true,
			}, id.Password)
		}
		return gw, nil
	default:
		return gateway.NewHTTPGateway(gateway.HTTPConfig{
			BaseURL: cfg.Gateway.BaseURL,
			APIKey:  cfg.Gateway.APIKey,
			Timeout: cfg.Gateway.Timeout.Std(),
		})
	}
}

// NewNotifier returns an SMTP notifier when mail is configured and a log
// notifier otherwise.
func NewNotifier(cfg Config, logger *slog.Logger) (goEnroll.Notifier, func(), error) {
	if cfg.Mail == nil {
		logger.Warn("goEnroll: no mail config, verification codes are logged")
		return notify.NewLogNotifier(logger), func() {}, nil
	}
	transport, err := notify.NewTransport(*cfg.Mail)
	if err != nil {
		return nil, nil, err
	}
	n, err := notify.NewSMTPNotifier(transport, *cfg.Mail)
	if err != nil {
		transport.Close()
		return nil, nil, err
	}
	return n, n.Close, nil
}
