// Package config provides the daemon's YAML configuration. Chain endpoints,
// sweep policy, and risk limits all live here; nothing else in the codebase
// hardcodes an RPC URL.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/klingon-exchange/klingvault/internal/chain"
)

// SeedKeyEnv is the environment variable holding the hex-encoded 32-byte
// custody key. The key is never written to the config file.
const SeedKeyEnv = "KLINGVAULT_SEED_KEY"

// Config holds all configuration for the wallet daemon.
type Config struct {
	// NetworkType selects mainnet or testnet endpoints for every chain.
	NetworkType chain.Network `yaml:"network_type"`

	// Storage settings.
	Storage StorageConfig `yaml:"storage"`

	// Logging settings.
	Logging LoggingConfig `yaml:"logging"`

	// Chains holds per-symbol endpoint overrides. Symbols absent here fall
	// back to the built-in public endpoints.
	Chains map[string]*ChainConfig `yaml:"chains,omitempty"`

	// Poller settings for pending-transaction reconciliation.
	Poller PollerConfig `yaml:"poller"`

	// Sweep settings for hot-wallet flushes.
	Sweep SweepConfig `yaml:"sweep"`

	// Risk settings for outbound transfer policy.
	Risk RiskConfig `yaml:"risk"`
}

// ChainConfig holds the RPC endpoints for one chain.
type ChainConfig struct {
	// Enabled controls whether an adapter is configured for this chain.
	Enabled bool `yaml:"enabled"`

	// MainnetURL is the mainnet RPC or REST endpoint.
	MainnetURL string `yaml:"mainnet_url"`

	// TestnetURL is the testnet equivalent.
	TestnetURL string `yaml:"testnet_url"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// DataDir is the directory for the database and config file.
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`

	// File is the log file path (empty for stderr).
	File string `yaml:"file"`
}

// PollerConfig holds transaction poller settings.
type PollerConfig struct {
	// Interval between pending-transaction reconciliation passes.
	Interval time.Duration `yaml:"interval"`
}

// SweepConfig holds hot-wallet flush settings.
type SweepConfig struct {
	// Enabled controls whether the auto-flush scheduler runs.
	Enabled bool `yaml:"enabled"`

	// Interval between flush passes per chain.
	Interval time.Duration `yaml:"interval"`

	// Concurrency bounds parallel sweeps within one pass.
	Concurrency int `yaml:"concurrency"`

	// FallbackFees maps a chain symbol to the whole-coin fee assumed when
	// the chain's estimator is unreachable.
	FallbackFees map[string]string `yaml:"fallback_fees,omitempty"`
}

// RiskConfig holds outbound transfer policy settings.
type RiskConfig struct {
	// MaxAmount is the whole-coin amount above which transfers are refused
	// pending manual approval. Empty disables the threshold.
	MaxAmount string `yaml:"max_amount"`

	// VelocityLimit caps transfers per source address per window.
	// Zero disables the check.
	VelocityLimit int `yaml:"velocity_limit"`

	// VelocityWindow is the sliding window for the velocity limit.
	VelocityWindow time.Duration `yaml:"velocity_window"`
}

// defaultChains holds the built-in public endpoints per chain symbol.
var defaultChains = map[string]*ChainConfig{
	"BTC": {
		Enabled:    true,
		MainnetURL: "https://mempool.space/api",
		TestnetURL: "https://mempool.space/testnet/api",
	},
	"ETH": {
		Enabled:    true,
		MainnetURL: "https://ethereum-rpc.publicnode.com",
		TestnetURL: "https://ethereum-sepolia-rpc.publicnode.com",
	},
	"BSC": {
		Enabled:    true,
		MainnetURL: "https://bsc-dataseed.binance.org",
		TestnetURL: "https://data-seed-prebsc-1-s1.binance.org:8545",
	},
	"POLYGON": {
		Enabled:    true,
		MainnetURL: "https://polygon-rpc.com",
		TestnetURL: "https://rpc-amoy.polygon.technology",
	},
	"SOL": {
		Enabled:    true,
		MainnetURL: "https://api.mainnet-beta.solana.com",
		TestnetURL: "https://api.devnet.solana.com",
	},
	"TON": {
		Enabled:    true,
		MainnetURL: "https://toncenter.com/api/v2",
		TestnetURL: "https://testnet.toncenter.com/api/v2",
	},
}

// IsTestnet returns true if running on testnet.
func (c *Config) IsTestnet() bool {
	return c.NetworkType == chain.Testnet
}

// GetChainConfig returns the chain config for a symbol, falling back to the
// built-in defaults. Returns nil for unknown symbols.
func (c *Config) GetChainConfig(symbol string) *ChainConfig {
	if c.Chains != nil {
		if cfg, ok := c.Chains[symbol]; ok {
			return cfg
		}
	}
	if cfg, ok := defaultChains[symbol]; ok {
		return cfg
	}
	return nil
}

// EndpointFor returns the endpoint for a chain on the configured network.
// Returns empty for unknown or disabled chains.
func (c *Config) EndpointFor(symbol string) string {
	cfg := c.GetChainConfig(symbol)
	if cfg == nil || !cfg.Enabled {
		return ""
	}
	if c.IsTestnet() {
		return cfg.TestnetURL
	}
	return cfg.MainnetURL
}

// EnabledChains returns the symbols with an enabled chain config, defaults
// included.
func (c *Config) EnabledChains() []string {
	seen := make(map[string]bool)
	var symbols []string
	add := func(symbol string, cfg *ChainConfig) {
		if seen[symbol] || !cfg.Enabled {
			return
		}
		seen[symbol] = true
		symbols = append(symbols, symbol)
	}
	for symbol, cfg := range c.Chains {
		add(symbol, cfg)
	}
	for symbol, cfg := range defaultChains {
		if c.Chains != nil {
			if _, overridden := c.Chains[symbol]; overridden {
				continue
			}
		}
		add(symbol, cfg)
	}
	return symbols
}

// SeedKey reads the custody key from the environment.
func (c *Config) SeedKey() (string, error) {
	key := os.Getenv(SeedKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s is not set", SeedKeyEnv)
	}
	return key, nil
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		NetworkType: chain.Mainnet,
		Storage: StorageConfig{
			DataDir: "~/.klingvault",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
		Poller: PollerConfig{
			Interval: 30 * time.Second,
		},
		Sweep: SweepConfig{
			Enabled:     true,
			Interval:    10 * time.Minute,
			Concurrency: 5,
			FallbackFees: map[string]string{
				"BTC": "0.0002",
				"ETH": "0.002",
				"SOL": "0.00001",
				"TON": "0.01",
			},
		},
		Risk: RiskConfig{
			MaxAmount:      "",
			VelocityLimit:  0,
			VelocityWindow: time.Hour,
		},
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from a YAML file in the data directory.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Klingvault Wallet Daemon Configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for the given data
// directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
