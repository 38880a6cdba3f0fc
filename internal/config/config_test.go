package config

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:                   8080,
		DatabaseURL:            "postgres://localhost/relayer",
		RedisURL:               "rediss://localhost:6379",
		RPCURL:                 "https://rpc.example.com",
		BundlerURL:             "https://bundler.example.com",
		EntryPointAddress:      "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789",
		SignerBackend:          "local",
		RelayerPrivateKey:      "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
		SponsorOrder:           []string{"pimlico", "stackup"},
		SponsorURLs:            []string{"https://pm-a.example.com", "https://pm-b.example.com"},
		CaptureContractAddress: "0xCCC0000000000000000000000000000000000ccc",
		SettlementURL:          "https://ledger.internal/v1/settlements",
		SettlementSecret:       "a-long-shared-secret-of-at-least-32-chars",
		SessionKeySecret:       "another-long-secret-for-session-key-material",
	}
}

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("WorkerPollInterval converts seconds to duration", func(t *testing.T) {
		cfg := &Config{WorkerPollSeconds: 5}
		assert.Equal(t, 5*time.Second, cfg.WorkerPollInterval())
	})

	t.Run("LockTTL converts seconds to duration", func(t *testing.T) {
		cfg := &Config{LockTTLSeconds: 60}
		assert.Equal(t, 60*time.Second, cfg.LockTTL())
	})

	t.Run("EntryPoint parses the configured address", func(t *testing.T) {
		cfg := validConfig()
		assert.Equal(t, common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"), cfg.EntryPoint())
	})
}

func TestLoad(t *testing.T) {
	t.Run("loads config with defaults", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/relayer")
		t.Setenv("REDIS_URL", "redis://localhost:6379")
		t.Setenv("RPC_URL", "https://rpc.example.com")
		t.Setenv("BUNDLER_URL", "https://bundler.example.com")
		t.Setenv("CAPTURE_CONTRACT_ADDRESS", "0xCCC0000000000000000000000000000000000ccc")
		t.Setenv("SETTLEMENT_URL", "https://ledger.internal/v1/settlements")
		t.Setenv("SETTLEMENT_HMAC_SECRET", "shared-secret")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, int64(1), cfg.ChainID)
		assert.Equal(t, 5, cfg.WorkerPollSeconds)
		assert.Equal(t, 10, cfg.WorkerBatchSize)
		assert.Equal(t, 60, cfg.LockTTLSeconds)
		assert.Equal(t, 60, cfg.ReconcilerSeconds)
		assert.Equal(t, 3, cfg.SettleMaxAttempts)
		assert.Equal(t, 10, cfg.ReceiptPollAttempts)
		assert.Equal(t, "local", cfg.SignerBackend)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("fails when settlement secret missing", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/relayer")
		t.Setenv("REDIS_URL", "redis://localhost:6379")
		t.Setenv("RPC_URL", "https://rpc.example.com")
		t.Setenv("BUNDLER_URL", "https://bundler.example.com")
		t.Setenv("CAPTURE_CONTRACT_ADDRESS", "0xCCC0000000000000000000000000000000000ccc")
		t.Setenv("SETTLEMENT_URL", "https://ledger.internal/v1/settlements")
		t.Setenv("SETTLEMENT_HMAC_SECRET", "")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("parses sponsor provider lists", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/relayer")
		t.Setenv("REDIS_URL", "redis://localhost:6379")
		t.Setenv("RPC_URL", "https://rpc.example.com")
		t.Setenv("BUNDLER_URL", "https://bundler.example.com")
		t.Setenv("CAPTURE_CONTRACT_ADDRESS", "0xCCC0000000000000000000000000000000000ccc")
		t.Setenv("SETTLEMENT_URL", "https://ledger.internal/v1/settlements")
		t.Setenv("SETTLEMENT_HMAC_SECRET", "shared-secret")
		t.Setenv("SPONSOR_ORDER", "pimlico,stackup")
		t.Setenv("SPONSOR_URLS", "https://pm-a.example.com,https://pm-b.example.com")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"pimlico", "stackup"}, cfg.SponsorOrder)
		assert.Len(t, cfg.SponsorURLs, 2)
	})
}

func TestValidate(t *testing.T) {
	t.Run("accepts a valid config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate(true))
	})

	t.Run("rejects invalid entrypoint address", func(t *testing.T) {
		cfg := validConfig()
		cfg.EntryPointAddress = "not-an-address"
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("local signer requires a private key", func(t *testing.T) {
		cfg := validConfig()
		cfg.RelayerPrivateKey = ""
		err := cfg.Validate(false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "RELAYER_PRIVATE_KEY")
	})

	t.Run("custody signer needs no private key", func(t *testing.T) {
		cfg := validConfig()
		cfg.SignerBackend = "custody"
		cfg.RelayerPrivateKey = ""
		assert.NoError(t, cfg.Validate(false))
	})

	t.Run("rejects unknown signer backend", func(t *testing.T) {
		cfg := validConfig()
		cfg.SignerBackend = "hsm"
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("rejects missing capture contract address", func(t *testing.T) {
		cfg := validConfig()
		cfg.CaptureContractAddress = ""
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("rejects mismatched sponsor lists", func(t *testing.T) {
		cfg := validConfig()
		cfg.SponsorURLs = cfg.SponsorURLs[:1]
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("rejects weak settlement secret in production", func(t *testing.T) {
		cfg := validConfig()
		cfg.SettlementSecret = "secret"
		assert.Error(t, cfg.Validate(true))
	})

	t.Run("allows short secret outside production", func(t *testing.T) {
		cfg := validConfig()
		cfg.SettlementSecret = "dev"
		assert.NoError(t, cfg.Validate(false))
	})

	t.Run("requires session key secret in production", func(t *testing.T) {
		cfg := validConfig()
		cfg.SessionKeySecret = ""
		assert.Error(t, cfg.Validate(true))
		assert.NoError(t, cfg.Validate(false))
	})
}
