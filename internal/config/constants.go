package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts for the operational surface
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Receipt polling: fixed interval, bounded attempts
const (
	ReceiptPollInterval = 2 * time.Second
)

// Retry backoff for settlement attempts: base * 2^attempt
const RetryBackoffBase = 500 * time.Millisecond

// Reconciler batch size per sweep
const ReconcilerBatchSize = 50

// Session key sweep interval
const SessionKeySweepInterval = 5 * time.Minute

// Outbound HTTP client timeout (sponsor providers, settlement endpoint)
const HTTPClientTimeout = 30 * time.Second
