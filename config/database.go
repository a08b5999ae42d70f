package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"authd"`
	Password string `env:"PASSWORD"                envDefault:"authd"`
	Name     string `env:"NAME"                    envDefault:"authd"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// CacheConfig contains TTLs for Redis-backed caches.
type CacheConfig struct {
	// OrgContextTTL is the backstop TTL of cached organization contexts.
	// Membership mutations overwrite entries explicitly; the TTL only bounds staleness
	// from writers that bypass the service layer.
	OrgContextTTL time.Duration `env:"CACHE_ORG_CONTEXT_TTL" envDefault:"12h"`

	// EventChannel is the Redis Pub/Sub channel for realtime notifications.
	EventChannel string `env:"CACHE_EVENT_CHANNEL" envDefault:"authd:events"`
}

// Sanitize applies guardrails to cache configuration values.
func (c *CacheConfig) Sanitize() {
	if c.OrgContextTTL < time.Minute {
		c.OrgContextTTL = 12 * time.Hour
	}
	if c.EventChannel == "" {
		c.EventChannel = "authd:events"
	}
}
