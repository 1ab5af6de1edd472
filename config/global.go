package config

import (
	"os"
	"strings"

	telemetry "tipjar/observability/otel"
)

// Environment variables consulted after the file is decoded.
const (
	EnvEnvironment  = "TIPJAR_ENV"
	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPHeaders  = "OTEL_EXPORTER_OTLP_HEADERS"
	EnvOTLPInsecure = "OTEL_EXPORTER_OTLP_INSECURE"
)

// ApplyEnv overlays environment overrides onto cfg.
func ApplyEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	if env := strings.TrimSpace(os.Getenv(EnvEnvironment)); env != "" {
		cfg.Environment = env
	}
	if name := strings.TrimSpace(cfg.RPC.JWTSecretEnv); name != "" {
		if secret := strings.TrimSpace(os.Getenv(name)); secret != "" {
			cfg.RPC.JWTSecret = secret
		}
	}
	if name := strings.TrimSpace(cfg.Webhook.SecretEnv); name != "" {
		if secret := strings.TrimSpace(os.Getenv(name)); secret != "" {
			cfg.Webhook.Secret = secret
		}
	}
	if endpoint := strings.TrimSpace(os.Getenv(EnvOTLPEndpoint)); endpoint != "" {
		cfg.Telemetry.Endpoint = endpoint
	}
	if raw := strings.TrimSpace(os.Getenv(EnvOTLPHeaders)); raw != "" {
		if cfg.Telemetry.Headers == nil {
			cfg.Telemetry.Headers = map[string]string{}
		}
		for key, value := range telemetry.ParseHeaders(raw) {
			cfg.Telemetry.Headers[key] = value
		}
	}
	if raw := strings.ToLower(strings.TrimSpace(os.Getenv(EnvOTLPInsecure))); raw == "true" || raw == "1" {
		cfg.Telemetry.Insecure = true
	}
}
