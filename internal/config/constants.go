package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// How long revoked publishable keys are kept before the cleanup job drops them
const RevokedKeyRetention = 30 * 24 * time.Hour

// PollingInterval is the spacing the CLI is told to wait between polls.
const PollingInterval = 1500 * time.Millisecond

// Rate limits (requests per window)
const (
	CreateSessionLimitPerIP  = 10
	CreateSessionLimitWindow = time.Minute
	PollLimitPerKey          = 120
	PollLimitWindow          = time.Minute
)
