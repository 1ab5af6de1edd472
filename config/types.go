package config

// RPC configures the JSON-RPC endpoint of the daemon.
type RPC struct {
	Address        string `toml:"Address" yaml:"address"`
	MaxConnections int    `toml:"MaxConnections" yaml:"max_connections"`
	// JWTSecret signs caller tokens (HS256). JWTSecretEnv names an environment
	// variable that overrides it.
	JWTSecret    string `toml:"JWTSecret" yaml:"jwt_secret"`
	JWTSecretEnv string `toml:"JWTSecretEnv" yaml:"jwt_secret_env"`
	// AllowInsecureCaller lets requests name their caller with a "caller"
	// parameter instead of a token. Development only.
	AllowInsecureCaller bool `toml:"AllowInsecureCaller" yaml:"allow_insecure_caller"`
	ReadTimeoutSecs     int  `toml:"ReadTimeoutSecs" yaml:"read_timeout_secs"`
	WriteTimeoutSecs    int  `toml:"WriteTimeoutSecs" yaml:"write_timeout_secs"`
}

// Gateway configures the REST read gateway.
type Gateway struct {
	Address            string  `toml:"Address" yaml:"address"`
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond" yaml:"rate_limit_per_second"`
	RateLimitBurst     int     `toml:"RateLimitBurst" yaml:"rate_limit_burst"`
	MaxRecentTips      uint64  `toml:"MaxRecentTips" yaml:"max_recent_tips"`
}

// Logging configures the structured logger.
type Logging struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint string            `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool              `toml:"Insecure" yaml:"insecure"`
	Traces   bool              `toml:"Traces" yaml:"traces"`
	Metrics  bool              `toml:"Metrics" yaml:"metrics"`
	Headers  map[string]string `toml:"Headers" yaml:"headers"`
}

// Indexer configures the SQL mirror. An empty DSN disables it.
type Indexer struct {
	DSN       string `toml:"DSN" yaml:"dsn"`
	QueueSize int    `toml:"QueueSize" yaml:"queue_size"`
}

// GenesisBalance credits Amount base units to Address when the ledger is
// first created.
type GenesisBalance struct {
	Address string `toml:"Address" yaml:"address"`
	Amount  string `toml:"Amount" yaml:"amount"`
}

// Webhook configures signed event deliveries. An empty URL disables them.
type Webhook struct {
	URL        string   `toml:"URL" yaml:"url"`
	Secret     string   `toml:"Secret" yaml:"secret"`
	SecretEnv  string   `toml:"SecretEnv" yaml:"secret_env"`
	EventTypes []string `toml:"EventTypes" yaml:"event_types"`
}
