package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the node settings. Protocol parameters live in the genesis
// file and change afterwards only through governance.
type Config struct {
	DataDir         string `toml:"DataDir"`
	GenesisFile     string `toml:"GenesisFile"`
	Network         string `toml:"Network"`
	BlockTimeMillis uint64 `toml:"BlockTimeMillis"`
	// BlocksPerBitcoinBlock converts bitcoin confirmations into local blocks
	// when request periods are measured.
	BlocksPerBitcoinBlock uint64 `toml:"BlocksPerBitcoinBlock"`
	MetricsAddress        string `toml:"MetricsAddress"`
	IndexerDSN            string `toml:"IndexerDSN"`
	LogEnv                string `toml:"LogEnv"`
	LogFile               string `toml:"LogFile"`
	LogLevel              string `toml:"LogLevel"`
}

// Default returns the settings of a local regtest node.
func Default() *Config {
	return &Config{
		DataDir:               "./vaultbridge-data",
		GenesisFile:           "genesis.json",
		Network:               NetworkRegtest,
		BlockTimeMillis:       6000,
		BlocksPerBitcoinBlock: 100,
		MetricsAddress:        ":9100",
		IndexerDSN:            "",
		LogEnv:                "dev",
		LogLevel:              "info",
	}
}

// Load loads the configuration from the given path, writing the defaults
// there first when the file does not exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.Network = strings.ToLower(strings.TrimSpace(cfg.Network))
	if cfg.Network == "" {
		cfg.Network = NetworkRegtest
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IndexerPath returns the SQLite DSN of the event indexer, defaulting to a
// file inside DataDir.
func (c *Config) IndexerPath() string {
	if strings.TrimSpace(c.IndexerDSN) != "" {
		return c.IndexerDSN
	}
	return filepath.Join(c.DataDir, "events.db")
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
