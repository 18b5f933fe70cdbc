// Package main provides the klingvaultd daemon - the custodial wallet backend.
package main

import (
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/klingvault/internal/adapter"
	"github.com/klingon-exchange/klingvault/internal/chain"
	"github.com/klingon-exchange/klingvault/internal/config"
	"github.com/klingon-exchange/klingvault/internal/custody"
	"github.com/klingon-exchange/klingvault/internal/directory"
	"github.com/klingon-exchange/klingvault/internal/store"
	"github.com/klingon-exchange/klingvault/internal/sweep"
	"github.com/klingon-exchange/klingvault/internal/transfer"
	"github.com/klingon-exchange/klingvault/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	// Parse flags
	var (
		dataDir     = flag.String("data-dir", "~/.klingvault", "Data directory")
		configFile  = flag.String("config", "", "Config file path (default: <data-dir>/config.yaml)")
		testnet     = flag.Bool("testnet", false, "Run on testnet (separate network and data)")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	// Set up logging (initial, may be overridden by config)
	log := logging.New(&logging.Config{
		Level:      *logLevel,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("klingvaultd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	// Determine data directory (testnet uses subdirectory)
	effectiveDataDir := *dataDir
	if *testnet {
		effectiveDataDir = filepath.Join(*dataDir, "testnet")
	}

	// Load or create config file
	var cfg *config.Config
	var err error

	if *configFile != "" {
		cfg, err = config.LoadConfig(filepath.Dir(*configFile))
	} else {
		cfg, err = config.LoadConfig(effectiveDataDir)
	}
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	// Apply CLI overrides (CLI flags take precedence over config file)
	cfg.Logging.Level = *logLevel
	cfg.Storage.DataDir = effectiveDataDir
	if *testnet {
		cfg.NetworkType = chain.Testnet
	}

	// Update logging with config level
	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	log.Info("Config loaded", "path", config.ConfigPath(effectiveDataDir))

	// Initialize storage
	dataPath := expandPath(cfg.Storage.DataDir)
	st, err := store.New(&store.Config{DataDir: dataPath})
	if err != nil {
		log.Fatal("Failed to initialize storage", "error", err)
	}
	defer st.Close()
	log.Info("Storage initialized", "path", dataPath)

	// Initialize seed custody from the environment key
	seedKey, err := cfg.SeedKey()
	if err != nil {
		log.Fatal("Custody key unavailable", "error", err)
	}
	custodyService, err := custody.NewService(seedKey)
	if err != nil {
		log.Fatal("Failed to initialize custody", "error", err)
	}
	log.Info("Seed custody initialized")

	// Configure chain adapters from endpoints; they are built on first use
	registry := adapter.NewRegistry()
	enabled := cfg.EnabledChains()
	for _, symbol := range enabled {
		endpoint := cfg.EndpointFor(symbol)
		if endpoint == "" {
			continue
		}
		registry.Configure(symbol, cfg.NetworkType, endpoint)
	}
	log.Info("Chain adapters configured", "network", cfg.NetworkType, "chains", enabled)

	// Wallet directory
	dir := directory.NewService(&directory.Config{
		Store:    st,
		Custody:  custodyService,
		Registry: registry,
	})
	log.Info("Wallet directory initialized")

	// Risk guard for outbound transfers
	var risk *transfer.RiskGuard
	if cfg.Risk.MaxAmount != "" || cfg.Risk.VelocityLimit > 0 {
		maxAmount := decimal.Zero
		if cfg.Risk.MaxAmount != "" {
			maxAmount, err = decimal.NewFromString(cfg.Risk.MaxAmount)
			if err != nil {
				log.Fatal("Invalid risk.max_amount", "error", err)
			}
		}
		risk = transfer.NewRiskGuard(&transfer.RiskConfig{
			Store:          st,
			MaxAmount:      maxAmount,
			VelocityLimit:  cfg.Risk.VelocityLimit,
			VelocityWindow: cfg.Risk.VelocityWindow,
		})
		log.Info("Risk guard enabled",
			"max_amount", cfg.Risk.MaxAmount, "velocity_limit", cfg.Risk.VelocityLimit)
	}

	// Transfer engine and pending-transaction poller
	engine := transfer.NewEngine(&transfer.Config{
		Store:     st,
		Directory: dir,
		Registry:  registry,
		Risk:      risk,
	})
	poller := transfer.NewPoller(&transfer.PollerConfig{
		Engine:   engine,
		Store:    st,
		Interval: cfg.Poller.Interval,
	})
	poller.Start()

	// Sweep engine and auto-flush scheduler
	var scheduler *sweep.Scheduler
	if cfg.Sweep.Enabled {
		fallbackFees := make(map[string]decimal.Decimal)
		for symbol, fee := range cfg.Sweep.FallbackFees {
			parsed, err := decimal.NewFromString(fee)
			if err != nil {
				log.Fatal("Invalid fallback fee", "chain", symbol, "error", err)
			}
			fallbackFees[symbol] = parsed
		}
		// Internal consolidation is exempt from the risk guard.
		sweepTransfers := transfer.NewEngine(&transfer.Config{
			Store:     st,
			Directory: dir,
			Registry:  registry,
		})
		sweeper := sweep.NewEngine(&sweep.Config{
			Store:        st,
			Transfers:    sweepTransfers,
			Registry:     registry,
			Concurrency:  cfg.Sweep.Concurrency,
			FallbackFees: fallbackFees,
		})
		scheduler, err = sweep.NewScheduler(&sweep.SchedulerConfig{
			Engine:   sweeper,
			Store:    st,
			Interval: cfg.Sweep.Interval,
		})
		if err != nil {
			log.Fatal("Failed to create sweep scheduler", "error", err)
		}
		for _, symbol := range enabled {
			if err := scheduler.ScheduleAutoFlush(sweep.Target{
				Symbol:  symbol,
				Network: cfg.NetworkType,
			}); err != nil {
				log.Fatal("Failed to schedule flush", "chain", symbol, "error", err)
			}
		}
		scheduler.Start()
	}

	printBanner(log, cfg, enabled)

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info("Shutting down...")

	if scheduler != nil {
		if err := scheduler.Shutdown(); err != nil {
			log.Error("Error stopping sweep scheduler", "error", err)
		}
	}
	poller.Stop()

	log.Info("Goodbye!")
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

func printBanner(log *logging.Logger, cfg *config.Config, chains []string) {
	networkLabel := "mainnet"
	if cfg.IsTestnet() {
		networkLabel = "TESTNET"
	}

	log.Info("")
	log.Info("=================================================")
	log.Infof("  Klingvault Wallet Daemon (%s)", networkLabel)
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  Chains: %v", chains)
	log.Infof("  Poll interval: %s | Sweep: %v", cfg.Poller.Interval, cfg.Sweep.Enabled)
	log.Infof("  Data dir: %s", expandPath(cfg.Storage.DataDir))
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
