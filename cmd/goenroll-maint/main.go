// Command goenroll-maint runs operator maintenance against the device
// registry.
//
//	goenroll-maint -config goenroll.yaml purge -days 90
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	goEnroll "github.com/MrEthical07/goEnroll"
	"github.com/MrEthical07/goEnroll/internal/appconfig"
)

func main() {
	configPath := flag.String("config", os.Getenv("GOENROLL_CONFIG"), "path to the YAML config file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	var err error
	switch flag.Arg(0) {
	case "purge":
		err = purge(*configPath, flag.Args()[1:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "goenroll-maint: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: goenroll-maint [-config file] purge -days N")
	flag.PrintDefaults()
}

func purge(configPath string, args []string) error {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	days := fs.Int("days", 90, "purge inactive bindings deactivated more than N days ago")
	timeout := fs.Duration("timeout", time.Minute, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, logCloser := appconfig.NewLogger(cfg.Logging)
	defer logCloser.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	engine, closeEngine, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeEngine()

	n, err := engine.PurgeStale(ctx, *days)
	if err != nil {
		return err
	}
	logger.Info("goEnroll: purged stale bindings", slog.Int("removed", n), slog.Int("days", *days))
	return nil
}

func buildEngine(ctx context.Context, cfg appconfig.Config, logger *slog.Logger) (*goEnroll.Engine, func(), error) {
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, nil, err
	}
	backends, err := appconfig.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	gw, err := appconfig.NewGateway(cfg)
	if err != nil {
		backends.Close()
		return nil, nil, err
	}
	engine, err := goEnroll.New().
		WithConfig(engineCfg).
		WithRedis(backends.Redis).
		WithAccountStore(backends.Accounts).
		WithDeviceRegistry(backends.Devices).
		WithIdentityGateway(gw).
		WithLogger(logger).
		WithAuditSink(goEnroll.NewSlogSink(logger)).
		Build()
	if err != nil {
		backends.Close()
		return nil, nil, fmt.Errorf("engine: %w", err)
	}
	return engine, func() {
		engine.Close()
		backends.Close()
	}, nil
}
