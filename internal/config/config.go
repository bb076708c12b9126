// Package config loads environment-driven configuration for the
// compiler's ambient services: the HTTP surface, the SQLite store, the
// scheduler binaries, the optional Postgres audit ledger, and the
// optional Redis state cache.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every environment-driven setting this service reads.
type Config struct {
	Service   ServiceConfig
	Store     StoreConfig
	Scheduler SchedulerConfig
	Audit     AuditConfig
	Cache     CacheConfig
}

// ServiceConfig holds service-wide settings.
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// StoreConfig points at the SQLite job store.
type StoreConfig struct {
	Path string
}

// SchedulerConfig names the external submit/cancel/accounting
// commands and debug-mode behavior.
type SchedulerConfig struct {
	SubmitBin     string
	CancelBin     string
	AccountingBin string
	Debug         bool
	TempDir       string
}

// AuditConfig configures the Postgres-backed run ledger. An empty DSN
// disables the ledger entirely — it is enrichment, never required for
// core correctness.
type AuditConfig struct {
	DatabaseURL string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// CacheConfig configures the Redis-backed job-state cache in front of
// the scheduler's accounting command. An empty Addr disables caching.
type CacheConfig struct {
	Addr string
	TTL  time.Duration
}

// Load reads configuration from the environment for serviceName.
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("HTTP_PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Store: StoreConfig{
			Path: getEnv("JOB_STORE_PATH", "./slurmplan.db"),
		},
		Scheduler: SchedulerConfig{
			SubmitBin:     getEnv("SCHEDULER_SUBMIT_BIN", "sbatch"),
			CancelBin:     getEnv("SCHEDULER_CANCEL_BIN", "scancel"),
			AccountingBin: getEnv("SCHEDULER_ACCOUNTING_BIN", "sacct"),
			Debug:         getEnvBool("SCHEDULER_DEBUG", false),
			TempDir:       getEnv("SCHEDULER_TEMP_DIR", ""),
		},
		Audit: AuditConfig{
			DatabaseURL: getEnv("AUDIT_DATABASE_URL", ""),
			MaxConns:    getEnvInt("AUDIT_MAX_CONNS", 10),
			MinConns:    getEnvInt("AUDIT_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("AUDIT_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("AUDIT_MAX_LIFETIME", 1*time.Hour),
		},
		Cache: CacheConfig{
			Addr: getEnv("REDIS_ADDR", ""),
			TTL:  getEnvDuration("JOB_STATE_CACHE_TTL", 3*time.Second),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks the settings that must hold regardless of which
// optional subsystems are enabled.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("job store path is required")
	}
	if c.Audit.MaxConns < c.Audit.MinConns {
		return fmt.Errorf("audit max_conns must be >= min_conns")
	}
	return nil
}

// AuditEnabled reports whether the Postgres audit ledger should be
// wired up.
func (c *Config) AuditEnabled() bool {
	return c.Audit.DatabaseURL != ""
}

// CacheEnabled reports whether the Redis state cache should be wired
// up.
func (c *Config) CacheEnabled() bool {
	return c.Cache.Addr != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
