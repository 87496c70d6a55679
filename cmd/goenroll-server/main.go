// Command goenroll-server serves the enrollment and session API.
//
//	goenroll-server -config goenroll.yaml
//
// With dev: true and no Redis or Postgres URL it runs fully in-process:
// Redis is replaced by miniredis and accounts are kept in memory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goEnroll "github.com/MrEthical07/goEnroll"
	"github.com/MrEthical07/goEnroll/httpapi"
	"github.com/MrEthical07/goEnroll/internal/appconfig"
	"github.com/MrEthical07/goEnroll/metrics/export/otel"
	"github.com/MrEthical07/goEnroll/metrics/export/prometheus"
)

func main() {
	configPath := flag.String("config", os.Getenv("GOENROLL_CONFIG"), "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "goenroll-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, logCloser := appconfig.NewLogger(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}

	backends, err := appconfig.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	gw, err := appconfig.NewGateway(cfg)
	if err != nil {
		return err
	}
	notifier, closeNotifier, err := appconfig.NewNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	engine, err := goEnroll.New().
		WithConfig(engineCfg).
		WithRedis(backends.Redis).
		WithAccountStore(backends.Accounts).
		WithDeviceRegistry(backends.Devices).
		WithIdentityGateway(gw).
		WithNotifier(notifier).
		WithLogger(logger).
		WithAuditSink(goEnroll.NewSlogSink(logger)).
		Build()
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer engine.Close()

	metrics := prometheus.New(engine).Handler()
	if cfg.Metrics.Format == "otel" {
		collector, err := otel.NewCollector(engine)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		defer collector.Shutdown(context.Background())
		metrics = collector.Handler()
	}

	api := httpapi.New(engine, httpapi.Config{
		AllowedOrigins:    cfg.HTTP.AllowedOrigins,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Burst:             cfg.HTTP.Burst,
		TrustProxyHeaders: cfg.HTTP.TrustProxyHeaders,
		Metrics:           metrics,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("goEnroll: listening", slog.String("addr", srv.Addr), slog.Bool("dev", cfg.Dev))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("goEnroll: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
