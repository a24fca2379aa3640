package config

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
)

const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
	NetworkRegtest = "regtest"
)

var MinBlockTimeMillis = uint64(100)

// Validate checks the settings the node cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must be provided")
	}
	if strings.TrimSpace(c.GenesisFile) == "" {
		return fmt.Errorf("config: GenesisFile must be provided")
	}
	if _, err := c.BitcoinParams(); err != nil {
		return err
	}
	if c.BlockTimeMillis < MinBlockTimeMillis {
		return fmt.Errorf("config: BlockTimeMillis must be at least %d", MinBlockTimeMillis)
	}
	if c.BlocksPerBitcoinBlock == 0 {
		return fmt.Errorf("config: BlocksPerBitcoinBlock must be greater than zero")
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown LogLevel %q", c.LogLevel)
	}
	return nil
}

// BitcoinParams maps Network onto the btcd chain parameters used for
// address encoding.
func (c *Config) BitcoinParams() (*chaincfg.Params, error) {
	switch c.Network {
	case NetworkMainnet:
		return &chaincfg.MainNetParams, nil
	case NetworkTestnet:
		return &chaincfg.TestNet3Params, nil
	case NetworkRegtest:
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("config: unknown Network %q", c.Network)
	}
}
