package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "test", "password",
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Chain access
	ChainID           int64  `env:"CHAIN_ID" envDefault:"1"`
	RPCURL            string `env:"RPC_URL,required"`
	BundlerURL        string `env:"BUNDLER_URL,required"`
	EntryPointAddress string `env:"ENTRYPOINT_ADDRESS" envDefault:"0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"`

	// Signing. RELAYER_PRIVATE_KEY is the hex-encoded key for the local
	// signer; it is never logged. SMART_ACCOUNT_ADDRESS selects the
	// sponsored user-operation path when set.
	SignerBackend       string `env:"SIGNER_BACKEND" envDefault:"local"`
	RelayerPrivateKey   string `env:"RELAYER_PRIVATE_KEY"`
	SmartAccountAddress string `env:"SMART_ACCOUNT_ADDRESS"`
	CustodyEndpoint     string `env:"CUSTODY_ENDPOINT"`

	// Sponsor providers, tried in order. The two lists must be the same
	// length; keys are optional per provider (empty entry = no auth).
	SponsorOrder   []string `env:"SPONSOR_ORDER" envSeparator:"," envDefault:""`
	SponsorURLs    []string `env:"SPONSOR_URLS" envSeparator:"," envDefault:""`
	SponsorAPIKeys []string `env:"SPONSOR_API_KEYS" envSeparator:"," envDefault:""`

	// Capture target: the spender contract the worker calls to capture a
	// hold on-chain.
	CaptureContractAddress string `env:"CAPTURE_CONTRACT_ADDRESS,required"`

	// Settlement endpoint
	SettlementURL    string `env:"SETTLEMENT_URL,required"`
	SettlementSecret string `env:"SETTLEMENT_HMAC_SECRET,required"`

	// Session key encryption
	SessionKeySecret string `env:"SESSION_KEY_SECRET"`

	// Worker tuning
	WorkerPollSeconds   int `env:"WORKER_POLL_SECONDS" envDefault:"5"`
	WorkerBatchSize     int `env:"WORKER_BATCH_SIZE" envDefault:"10"`
	LockTTLSeconds      int `env:"LOCK_TTL_SECONDS" envDefault:"60"`
	ReconcilerSeconds   int `env:"RECONCILER_INTERVAL_SECONDS" envDefault:"60"`
	SettleMaxAttempts   int `env:"SETTLE_MAX_ATTEMPTS" envDefault:"3"`
	ReceiptPollAttempts int `env:"RECEIPT_POLL_ATTEMPTS" envDefault:"10"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) WorkerPollInterval() time.Duration {
	return time.Duration(c.WorkerPollSeconds) * time.Second
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c *Config) ReconcilerInterval() time.Duration {
	return time.Duration(c.ReconcilerSeconds) * time.Second
}

func (c *Config) EntryPoint() common.Address {
	return common.HexToAddress(c.EntryPointAddress)
}

func (c *Config) CaptureContract() common.Address {
	return common.HexToAddress(c.CaptureContractAddress)
}

// Validate catches misconfiguration at startup. Anything wrong here is a
// configuration error, never surfaced as a runtime failure later.
func (c *Config) Validate(isProduction bool) error {
	if !common.IsHexAddress(c.EntryPointAddress) {
		return fmt.Errorf("ENTRYPOINT_ADDRESS %q is not a valid address", c.EntryPointAddress)
	}

	switch c.SignerBackend {
	case "local":
		if c.RelayerPrivateKey == "" {
			return fmt.Errorf("RELAYER_PRIVATE_KEY is required when SIGNER_BACKEND=local")
		}
	case "custody":
		// accepted; the custody signer fails fast on first use
	default:
		return fmt.Errorf("SIGNER_BACKEND must be \"local\" or \"custody\", got %q", c.SignerBackend)
	}

	if c.SmartAccountAddress != "" && !common.IsHexAddress(c.SmartAccountAddress) {
		return fmt.Errorf("SMART_ACCOUNT_ADDRESS %q is not a valid address", c.SmartAccountAddress)
	}

	if !common.IsHexAddress(c.CaptureContractAddress) {
		return fmt.Errorf("CAPTURE_CONTRACT_ADDRESS %q is not a valid address", c.CaptureContractAddress)
	}

	if len(c.SponsorOrder) != len(c.SponsorURLs) {
		return fmt.Errorf("SPONSOR_ORDER and SPONSOR_URLS must have the same number of entries (%d vs %d)",
			len(c.SponsorOrder), len(c.SponsorURLs))
	}
	if len(c.SponsorAPIKeys) != 0 && len(c.SponsorAPIKeys) != len(c.SponsorOrder) {
		return fmt.Errorf("SPONSOR_API_KEYS must be empty or match SPONSOR_ORDER (%d vs %d)",
			len(c.SponsorAPIKeys), len(c.SponsorOrder))
	}

	if err := validateSecret("SETTLEMENT_HMAC_SECRET", c.SettlementSecret, isProduction); err != nil {
		return err
	}

	if isProduction {
		if c.SessionKeySecret == "" {
			return fmt.Errorf("SESSION_KEY_SECRET is required in production: session key material must be encrypted at rest")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string, isProduction bool) error {
	if value == "" {
		return fmt.Errorf("%s is required", name)
	}
	if !isProduction {
		return nil
	}
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
