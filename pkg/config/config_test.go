package config

import (
	"encoding/base64"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so ambient environment
// never leaks into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"AXON_ENV", "HTTP_PORT",
		"ENCRYPTION_MASTER_KEY", "ENCRYPTION_KEY_VERSION",
		"TENANT_CACHE_CAPACITY", "MCP_CALL_TIMEOUT",
		"CONVERSATION_RETENTION_DAYS", "TRACE_RETENTION_MONTHS", "CLEANUP_INTERVAL",
		"OPENAI_API_KEY", "AZURE_OPENAI_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Nil(t, cfg.MasterKey, "development tolerates a missing master key")
	assert.Equal(t, 1, cfg.KeyVersion)
	assert.Equal(t, 1000, cfg.TenantCacheCapacity)
	assert.Equal(t, 30*time.Second, cfg.MCPCallTimeout)
	assert.Equal(t, 0, cfg.ConversationRetentionDays)
	assert.Equal(t, 12, cfg.TraceRetentionMonths)
	assert.Equal(t, 6*time.Hour, cfg.CleanupInterval)
}

func TestLoadProductionRequiresMasterKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("AXON_ENV", EnvProduction)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENCRYPTION_MASTER_KEY")
}

func TestLoadMasterKeyEncodings(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	t.Run("hex", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENCRYPTION_MASTER_KEY", hex.EncodeToString(key))

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, key, cfg.MasterKey)
	})

	t.Run("base64", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENCRYPTION_MASTER_KEY", base64.StdEncoding.EncodeToString(key))

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, key, cfg.MasterKey)
	})

	t.Run("wrong length", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENCRYPTION_MASTER_KEY", hex.EncodeToString(key[:16]))

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENCRYPTION_MASTER_KEY", "not-a-key!!")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("ENCRYPTION_KEY_VERSION", "3")
	t.Setenv("TENANT_CACHE_CAPACITY", "50")
	t.Setenv("MCP_CALL_TIMEOUT", "5s")
	t.Setenv("CONVERSATION_RETENTION_DAYS", "30")
	t.Setenv("TRACE_RETENTION_MONTHS", "6")
	t.Setenv("CLEANUP_INTERVAL", "1h")
	t.Setenv("OPENAI_API_KEY", "sk-fallback")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, 3, cfg.KeyVersion)
	assert.Equal(t, 50, cfg.TenantCacheCapacity)
	assert.Equal(t, 5*time.Second, cfg.MCPCallTimeout)
	assert.Equal(t, 30, cfg.ConversationRetentionDays)
	assert.Equal(t, 6, cfg.TraceRetentionMonths)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
	assert.Equal(t, "sk-fallback", cfg.OpenAIAPIKey)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"AXON_ENV":                    "staging",
		"HTTP_PORT":                   "0",
		"ENCRYPTION_KEY_VERSION":      "0",
		"TENANT_CACHE_CAPACITY":       "-1",
		"MCP_CALL_TIMEOUT":            "fast",
		"CONVERSATION_RETENTION_DAYS": "-5",
		"TRACE_RETENTION_MONTHS":      "x",
		"CLEANUP_INTERVAL":            "0s",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
