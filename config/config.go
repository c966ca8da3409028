// Package config loads node configuration from a JSON or YAML file with an
// environment overlay, and applies the genesis section to a fresh ledger.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/tolelom/tolarena/crypto"
)

// TokenConfig registers a stake token at genesis.
type TokenConfig struct {
	Token    string `json:"token" yaml:"token"`
	FeeBP    uint16 `json:"fee_bp" yaml:"fee_bp"`
	Disabled bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// GameConfig registers a game instance at genesis.
type GameConfig struct {
	ID              string `json:"id" yaml:"id"`
	Rules           string `json:"rules" yaml:"rules"`
	MaxRandomNumber uint64 `json:"max_random_number" yaml:"max_random_number"`
	Oracle          string `json:"oracle,omitempty" yaml:"oracle,omitempty"`
	TurnTimeout     int64  `json:"turn_timeout,omitempty" yaml:"turn_timeout,omitempty"` // seconds; 0 disables claims
}

// GenesisConfig describes the ledger's initial state.
type GenesisConfig struct {
	Owner  string                       `json:"owner" yaml:"owner"`
	Alloc  map[string]map[string]uint64 `json:"alloc" yaml:"alloc"` // token → address → initial balance
	Tokens []TokenConfig                `json:"tokens" yaml:"tokens"`
	Games  []GameConfig                 `json:"games" yaml:"games"`
}

// RedisConfig enables the event relay when Addr is set.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr" env:"ADDR"`
	Password string `json:"-" yaml:"-" env:"PASSWORD"`
	DB       int    `json:"db" yaml:"db" env:"DB"`
	Prefix   string `json:"prefix" yaml:"prefix" env:"PREFIX"`
	Buffer   int    `json:"buffer" yaml:"buffer" env:"BUFFER"`
}

// Config holds all node configuration. Fields tagged json:"-" are secrets and
// only ever come from the environment.
type Config struct {
	ChainID string        `json:"chain_id" yaml:"chain_id" env:"TOLARENA_CHAIN_ID"`
	DataDir string        `json:"data_dir" yaml:"data_dir" env:"TOLARENA_DATA_DIR"`
	RPCAddr string        `json:"rpc_addr" yaml:"rpc_addr" env:"TOLARENA_RPC_ADDR"`
	Stream  bool          `json:"stream" yaml:"stream" env:"TOLARENA_STREAM"` // serve /ws
	Redis   RedisConfig   `json:"redis" yaml:"redis" envPrefix:"TOLARENA_REDIS_"`
	Genesis GenesisConfig `json:"genesis" yaml:"genesis"`

	KeystorePassword string `json:"-" yaml:"-" env:"TOLARENA_PASSWORD"`
	JWTSecret        string `json:"-" yaml:"-" env:"TOLARENA_JWT_SECRET"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		ChainID: "tolarena-dev",
		DataDir: "./data",
		RPCAddr: ":8545",
		Stream:  true,
		Redis: RedisConfig{
			Prefix: "tolarena",
			Buffer: 1024,
		},
		Genesis: GenesisConfig{
			Alloc: map[string]map[string]uint64{},
		},
	}
}

// Load reads a config file from path, picking the decoder by extension
// (.yaml/.yml or JSON otherwise), then applies the environment overlay.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays TOLARENA_* environment variables onto cfg. Unset
// variables leave the current value alone.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the fields the node cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.ChainID == "" {
		errs = append(errs, errors.New("chain_id is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.Genesis.Owner != "" && !crypto.IsAddress(c.Genesis.Owner) {
		errs = append(errs, fmt.Errorf("genesis.owner %q is not an address", c.Genesis.Owner))
	}
	if c.Redis.Addr != "" && c.Redis.Buffer <= 0 {
		errs = append(errs, errors.New("redis.buffer must be > 0"))
	}
	return errors.Join(errs...)
}

// Save writes the config to path, as YAML or indented JSON by extension.
func Save(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
