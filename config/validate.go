package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"tipjar/crypto"
	"tipjar/storage"
)

// Validate rejects configurations the daemon cannot run with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.StorageBackend)) {
	case storage.BackendLevelDB, storage.BackendBolt, storage.BackendMemory:
	default:
		return fmt.Errorf("config: unknown storage backend %q", cfg.StorageBackend)
	}
	if cfg.BlockIntervalSecs <= 0 {
		return fmt.Errorf("config: BlockIntervalSecs must be positive")
	}
	if cfg.RPC.MaxConnections < 0 {
		return fmt.Errorf("rpc: MaxConnections must not be negative")
	}
	if strings.TrimSpace(cfg.RPC.JWTSecret) == "" && !cfg.RPC.AllowInsecureCaller {
		return fmt.Errorf("rpc: JWTSecret required unless AllowInsecureCaller is set")
	}
	if cfg.Gateway.RateLimitPerSecond < 0 || cfg.Gateway.RateLimitBurst < 0 {
		return fmt.Errorf("gateway: rate limits must not be negative")
	}
	if cfg.Indexer.QueueSize < 0 {
		return fmt.Errorf("indexer: QueueSize must not be negative")
	}
	if strings.TrimSpace(cfg.Webhook.URL) != "" && strings.TrimSpace(cfg.Webhook.Secret) == "" {
		return fmt.Errorf("webhook: Secret required when URL is set")
	}
	if _, err := cfg.GenesisBalances(); err != nil {
		return err
	}
	if _, err := cfg.Faucet(); err != nil {
		return err
	}
	return nil
}

// BlockInterval returns the period between ledger height increments.
func (c *Config) BlockInterval() time.Duration {
	return time.Duration(c.BlockIntervalSecs) * time.Second
}

func parseAmount(field, raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid amount %q", field, raw)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%s: amount must not be negative", field)
	}
	return amount, nil
}

// GenesisBalances decodes the genesis allocation. Repeated addresses are summed.
func (c *Config) GenesisBalances() (map[[20]byte]*big.Int, error) {
	out := make(map[[20]byte]*big.Int, len(c.Genesis))
	for i, entry := range c.Genesis {
		account, err := crypto.ParseAccount(strings.TrimSpace(entry.Address))
		if err != nil {
			return nil, fmt.Errorf("genesis[%d]: %w", i, err)
		}
		amount, err := parseAmount(fmt.Sprintf("genesis[%d]", i), entry.Amount)
		if err != nil {
			return nil, err
		}
		if existing, ok := out[account]; ok {
			amount = new(big.Int).Add(existing, amount)
		}
		out[account] = amount
	}
	return out, nil
}

// Faucet returns the development faucet allowance, nil when disabled.
func (c *Config) Faucet() (*big.Int, error) {
	if strings.TrimSpace(c.FaucetAmount) == "" {
		return nil, nil
	}
	amount, err := parseAmount("FaucetAmount", c.FaucetAmount)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return nil, nil
	}
	return amount, nil
}
