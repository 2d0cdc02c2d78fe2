// Package config holds the immutable process-wide configuration.
//
// Configuration is captured once at startup and passed explicitly into
// component constructors; nothing reads it through globals.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/solsticelabs/solstice/types"
)

// Config is the node configuration. SlotDuration is soft-tunable per
// network; schedules and finality depend only on slot numbers.
type Config struct {
	// SlotDuration is the wall-clock length of one slot.
	SlotDuration time.Duration
	// EpochLength is the number of slots per epoch.
	EpochLength uint64
	// PrincipalThreshold is the delegated weight above which a
	// representative is principal.
	PrincipalThreshold *uint256.Int
	// GenesisTime is the Unix timestamp of the start of slot 0.
	GenesisTime uint64
	// GenesisKey is the account that leads every slot of epoch 0.
	GenesisKey types.Pubkey
	// NetworkName namespaces gossip topics.
	NetworkName string

	ListenAddrs []string
	Bootnodes   []string
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		SlotDuration:       500 * time.Millisecond,
		EpochLength:        10,
		PrincipalThreshold: uint256.NewInt(1),
		NetworkName:        "devnet0",
		ListenAddrs:        []string{"/ip4/0.0.0.0/udp/9000/quic-v1"},
	}
}

// fileConfig is the yaml representation of Config.
type fileConfig struct {
	SlotDurationMs     uint64   `yaml:"slot_duration_ms"`
	EpochLength        uint64   `yaml:"epoch_length"`
	PrincipalThreshold string   `yaml:"principal_threshold"`
	GenesisTime        uint64   `yaml:"genesis_time"`
	GenesisKey         string   `yaml:"genesis_key"`
	NetworkName        string   `yaml:"network_name"`
	ListenAddrs        []string `yaml:"listen_addrs"`
	Bootnodes          []string `yaml:"bootnodes"`
}

// Load reads a yaml config file and merges it over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := Default()
	if fc.SlotDurationMs != 0 {
		cfg.SlotDuration = time.Duration(fc.SlotDurationMs) * time.Millisecond
	}
	if fc.EpochLength != 0 {
		cfg.EpochLength = fc.EpochLength
	}
	if fc.PrincipalThreshold != "" {
		t, err := uint256.FromDecimal(fc.PrincipalThreshold)
		if err != nil {
			return nil, fmt.Errorf("parse principal_threshold: %w", err)
		}
		cfg.PrincipalThreshold = t
	}
	if fc.GenesisTime != 0 {
		cfg.GenesisTime = fc.GenesisTime
	}
	if fc.GenesisKey != "" {
		key, err := parseHexKey(fc.GenesisKey)
		if err != nil {
			return nil, fmt.Errorf("parse genesis_key: %w", err)
		}
		cfg.GenesisKey = key
	}
	if fc.NetworkName != "" {
		cfg.NetworkName = fc.NetworkName
	}
	if len(fc.ListenAddrs) > 0 {
		cfg.ListenAddrs = fc.ListenAddrs
	}
	if len(fc.Bootnodes) > 0 {
		cfg.Bootnodes = fc.Bootnodes
	}
	return cfg, nil
}

// Validate checks the configuration for values the node cannot run with.
func (c *Config) Validate() error {
	if c.SlotDuration <= 0 {
		return fmt.Errorf("slot duration must be positive, got %s", c.SlotDuration)
	}
	if c.EpochLength == 0 {
		return fmt.Errorf("epoch length must be positive")
	}
	if c.PrincipalThreshold == nil {
		return fmt.Errorf("principal threshold not set")
	}
	return nil
}

func parseHexKey(s string) (types.Pubkey, error) {
	var key types.Pubkey
	raw, err := hex.DecodeString(s)
	if err != nil {
		return key, err
	}
	if len(raw) != len(key) {
		return key, fmt.Errorf("want %d key bytes, got %d", len(key), len(raw))
	}
	copy(key[:], raw)
	return key, nil
}
