// Package config loads gateway configuration from the environment.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Environment names. Production tightens requirements (the encryption
// master key must be present); development falls back to ephemeral keys.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

const (
	defaultHTTPPort      = 8080
	defaultKeyVersion    = 1
	defaultCacheCapacity = 1000
	defaultMCPTimeout    = 30 * time.Second

	defaultTraceRetentionMonths = 12
	defaultCleanupInterval      = 6 * time.Hour
)

// Config holds resolved gateway configuration.
type Config struct {
	Environment string
	HTTPPort    int

	// MasterKey is the 32-byte encryption master key, or nil in
	// development when ENCRYPTION_MASTER_KEY is unset.
	MasterKey  []byte
	KeyVersion int

	TenantCacheCapacity int
	MCPCallTimeout      time.Duration

	// Retention sweeps; zero disables the corresponding one.
	ConversationRetentionDays int
	TraceRetentionMonths      int
	CleanupInterval           time.Duration

	// Fallback provider credentials used when a tenant chain resolves
	// a provider without its own api_key.
	OpenAIAPIKey string
	AzureAPIKey  string
}

// IsProduction reports whether the gateway runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// Load reads configuration from environment variables. In production a
// missing or malformed ENCRYPTION_MASTER_KEY is a hard error; in
// development it is logged and the caller should fall back to an
// ephemeral key.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:          EnvDevelopment,
		HTTPPort:             defaultHTTPPort,
		KeyVersion:           defaultKeyVersion,
		TenantCacheCapacity:  defaultCacheCapacity,
		MCPCallTimeout:       defaultMCPTimeout,
		TraceRetentionMonths: defaultTraceRetentionMonths,
		CleanupInterval:      defaultCleanupInterval,
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		AzureAPIKey:          os.Getenv("AZURE_OPENAI_API_KEY"),
	}

	if env := os.Getenv("AXON_ENV"); env != "" {
		if env != EnvProduction && env != EnvDevelopment {
			return nil, fmt.Errorf("invalid AXON_ENV %q: must be %q or %q", env, EnvProduction, EnvDevelopment)
		}
		cfg.Environment = env
	}

	if port := os.Getenv("HTTP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil || p <= 0 || p > 65535 {
			return nil, fmt.Errorf("invalid HTTP_PORT %q", port)
		}
		cfg.HTTPPort = p
	}

	if raw := os.Getenv("ENCRYPTION_MASTER_KEY"); raw != "" {
		key, err := decodeMasterKey(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid ENCRYPTION_MASTER_KEY: %w", err)
		}
		cfg.MasterKey = key
	} else if cfg.IsProduction() {
		return nil, fmt.Errorf("ENCRYPTION_MASTER_KEY is required in production")
	} else {
		slog.Warn("ENCRYPTION_MASTER_KEY not set, using ephemeral key (encrypted data will not survive restart)")
	}

	if v := os.Getenv("ENCRYPTION_KEY_VERSION"); v != "" {
		version, err := strconv.Atoi(v)
		if err != nil || version < 1 {
			return nil, fmt.Errorf("invalid ENCRYPTION_KEY_VERSION %q", v)
		}
		cfg.KeyVersion = version
	}

	if v := os.Getenv("TENANT_CACHE_CAPACITY"); v != "" {
		capacity, err := strconv.Atoi(v)
		if err != nil || capacity < 1 {
			return nil, fmt.Errorf("invalid TENANT_CACHE_CAPACITY %q", v)
		}
		cfg.TenantCacheCapacity = capacity
	}

	if v := os.Getenv("MCP_CALL_TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil || timeout <= 0 {
			return nil, fmt.Errorf("invalid MCP_CALL_TIMEOUT %q", v)
		}
		cfg.MCPCallTimeout = timeout
	}

	if v := os.Getenv("CONVERSATION_RETENTION_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			return nil, fmt.Errorf("invalid CONVERSATION_RETENTION_DAYS %q", v)
		}
		cfg.ConversationRetentionDays = days
	}

	if v := os.Getenv("TRACE_RETENTION_MONTHS"); v != "" {
		months, err := strconv.Atoi(v)
		if err != nil || months < 0 {
			return nil, fmt.Errorf("invalid TRACE_RETENTION_MONTHS %q", v)
		}
		cfg.TraceRetentionMonths = months
	}

	if v := os.Getenv("CLEANUP_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil || interval <= 0 {
			return nil, fmt.Errorf("invalid CLEANUP_INTERVAL %q", v)
		}
		cfg.CleanupInterval = interval
	}

	return cfg, nil
}

// decodeMasterKey accepts a 32-byte key encoded as hex or standard
// base64.
func decodeMasterKey(raw string) ([]byte, error) {
	if key, err := hex.DecodeString(raw); err == nil {
		if len(key) != 32 {
			return nil, fmt.Errorf("decoded key is %d bytes, want 32", len(key))
		}
		return key, nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("key is neither valid hex nor base64")
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("decoded key is %d bytes, want 32", len(key))
	}
	return key, nil
}
