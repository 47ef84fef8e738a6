// dittosite serves a personal website whose pages live in a cloud file store.
//
// Usage:
//
//	dittosite init [--config path] [--force]   write a default configuration file
//	dittosite start [--config path]            run the server
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/marmos91/dittosite/internal/logger"
	"github.com/marmos91/dittosite/pkg/config"
	"github.com/marmos91/dittosite/pkg/server"
)

const usage = `DittoSite - personal CMS backed by a cloud file store

Usage:
  dittosite <command> [flags]

Commands:
  init    Write a default configuration file
  start   Start the server

Flags:
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath string
	var force bool

	flagSet := pflag.NewFlagSet("dittosite", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to the configuration file (default: "+config.GetDefaultConfigPath()+")")
	flagSet.BoolVar(&force, "force", false, "overwrite an existing configuration file (init only)")
	flagSet.BoolP("help", "h", false, "show help")
	flagSet.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		flagSet.Usage()
		return nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		flagSet.Usage()
		return fmt.Errorf("missing command")
	}

	switch rest[0] {
	case "init":
		return runInit(configPath, force)
	case "start":
		return runStart(configPath)
	default:
		flagSet.Usage()
		return fmt.Errorf("unknown command %q", rest[0])
	}
}

func runInit(configPath string, force bool) error {
	if configPath == "" {
		path, err := config.InitConfig(force)
		if err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", path)
		return nil
	}

	if err := config.InitConfigToPath(configPath, force); err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", configPath)
	return nil
}

func runStart(configPath string) error {
	// ========================================================================
	// Step 1: Configuration and logging
	// ========================================================================

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	fmt.Println("DittoSite - personal CMS backed by a cloud file store")
	logger.Info("Log level: %s", cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Step 2: Metrics (before stores, so the remote is instrumented)
	// ========================================================================

	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	// ========================================================================
	// Step 3: Registry (cache store, remote, identity)
	// ========================================================================

	reg, err := config.InitializeRegistry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}

	// ========================================================================
	// Step 4: Server and adapters
	// ========================================================================

	srv := server.New(reg)
	for _, a := range config.CreateAdapters(cfg, metricsResult) {
		if err := srv.AddAdapter(a); err != nil {
			_ = reg.Close()
			return fmt.Errorf("failed to add %s adapter: %w", a.Protocol(), err)
		}
	}

	logger.Info("Server is running on port %d. Press Ctrl+C to stop.", cfg.HTTP.Port)

	// Serve closes the registry on return
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("Server stopped gracefully")
	return nil
}
