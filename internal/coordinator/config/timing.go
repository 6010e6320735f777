package config

import "time"

// Default timing configurations used throughout the coordinator
const (
	// DefaultToolTimeout bounds a single tool invocation attempt
	DefaultToolTimeout = 30 * time.Second

	// DefaultMaxRetries is how many extra attempts a network failure gets
	DefaultMaxRetries = 2

	// DefaultRetryInitialDelay is the backoff before the first retry
	DefaultRetryInitialDelay = 500 * time.Millisecond

	// DefaultRetryMaxDelay caps the exponential backoff
	DefaultRetryMaxDelay = 5 * time.Second

	// DefaultRetryMultiplier is the exponential backoff factor
	DefaultRetryMultiplier = 2.0

	// DefaultDiscoveryCacheTTL disables catalog caching; every discovery hits the host
	DefaultDiscoveryCacheTTL = time.Duration(0)

	// DefaultCatalogCacheCleanupInterval is how often expired catalog entries are swept
	DefaultCatalogCacheCleanupInterval = 1 * time.Minute

	// DefaultSessionMaxIdle disables session expiry
	DefaultSessionMaxIdle = time.Duration(0)

	// DefaultSessionCleanupInterval is how often the stale-session sweep runs when expiry is on
	DefaultSessionCleanupInterval = 5 * time.Minute

	// DefaultDecisionTimeout bounds a delegated routing decision
	DefaultDecisionTimeout = 15 * time.Second

	// DefaultShutdownTimeout is how long servers get to drain on shutdown
	DefaultShutdownTimeout = 2 * time.Second

	// DefaultSessionShards is the number of session table shards
	DefaultSessionShards = 32
)
