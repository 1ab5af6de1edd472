package config

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"tipjar/storage"
)

type Config struct {
	NetworkName       string           `toml:"NetworkName" yaml:"network_name"`
	Environment       string           `toml:"Environment" yaml:"environment"`
	DataDir           string           `toml:"DataDir" yaml:"data_dir"`
	StorageBackend    string           `toml:"StorageBackend" yaml:"storage_backend"`
	BlockIntervalSecs int              `toml:"BlockIntervalSecs" yaml:"block_interval_secs"`
	FaucetAmount      string           `toml:"FaucetAmount,omitempty" yaml:"faucet_amount,omitempty"`
	RPC               RPC              `toml:"rpc" yaml:"rpc"`
	Gateway           Gateway          `toml:"gateway" yaml:"gateway"`
	Logging           Logging          `toml:"logging" yaml:"logging"`
	Telemetry         Telemetry        `toml:"telemetry" yaml:"telemetry"`
	Indexer           Indexer          `toml:"indexer" yaml:"indexer"`
	Webhook           Webhook          `toml:"webhook" yaml:"webhook"`
	Genesis           []GenesisBalance `toml:"genesis" yaml:"genesis"`
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load loads the configuration from the given path. A missing file is
// replaced by a freshly generated development configuration.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if isYAML(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0].String())
		}
	}

	applyDefaults(cfg)
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "tipjar-local"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./tipjar-data"
	}
	if strings.TrimSpace(cfg.StorageBackend) == "" {
		cfg.StorageBackend = storage.BackendLevelDB
	}
	if cfg.BlockIntervalSecs == 0 {
		cfg.BlockIntervalSecs = 5
	}
	if cfg.RPC.Address == "" {
		cfg.RPC.Address = ":8545"
	}
	if cfg.RPC.MaxConnections == 0 {
		cfg.RPC.MaxConnections = 256
	}
	if cfg.RPC.ReadTimeoutSecs == 0 {
		cfg.RPC.ReadTimeoutSecs = 10
	}
	if cfg.RPC.WriteTimeoutSecs == 0 {
		cfg.RPC.WriteTimeoutSecs = 10
	}
	if cfg.Gateway.RateLimitPerSecond == 0 {
		cfg.Gateway.RateLimitPerSecond = 20
	}
	if cfg.Gateway.RateLimitBurst == 0 {
		cfg.Gateway.RateLimitBurst = 40
	}
	if cfg.Gateway.MaxRecentTips == 0 {
		cfg.Gateway.MaxRecentTips = DefaultMaxRecentTips
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Indexer.QueueSize == 0 {
		cfg.Indexer.QueueSize = 1024
	}
	if cfg.Genesis == nil {
		cfg.Genesis = []GenesisBalance{}
	}
}

// DefaultMaxRecentTips caps the limit accepted by the recent tips endpoints.
const DefaultMaxRecentTips = 500

// createDefault creates and saves a default development configuration file.
func createDefault(path string) (*Config, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate jwt secret: %w", err)
	}
	cfg := &Config{
		NetworkName:    "tipjar-local",
		Environment:    "dev",
		DataDir:        "./tipjar-data",
		StorageBackend: storage.BackendLevelDB,
		RPC: RPC{
			Address:      "127.0.0.1:8545",
			JWTSecret:    hex.EncodeToString(secret),
			JWTSecretEnv: "TIPJAR_JWT_SECRET",
		},
		Gateway: Gateway{Address: "127.0.0.1:8080"},
	}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
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
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}
