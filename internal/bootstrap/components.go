// Package bootstrap wires config, logging, the job store, and the
// optional audit/cache/rate-limit subsystems into one Components
// value, the way the teacher's common/bootstrap package assembles a
// service's dependencies in one place before main() touches any of
// them.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/lyzr/slurmplan/internal/audit"
	"github.com/lyzr/slurmplan/internal/config"
	"github.com/lyzr/slurmplan/internal/logger"
	"github.com/lyzr/slurmplan/internal/ratelimit"
	"github.com/lyzr/slurmplan/internal/scheduler"
	"github.com/lyzr/slurmplan/internal/statecache"
	"github.com/lyzr/slurmplan/internal/store"
)

// Components holds every initialized dependency a cmd/ entrypoint
// needs, plus the cleanup functions Shutdown runs in reverse order.
type Components struct {
	Config    *config.Config
	Logger    *logger.Logger
	Store     *store.Store
	Scheduler *scheduler.Adapter
	Audit     *audit.DB
	Ledger    *audit.Ledger
	Redis     *redis.Client
	Cache     *statecache.Cache
	RateLimit *ratelimit.Limiter

	// Hydrator is what store.GetJobs and the retry planner should
	// call for live state: the cache if Redis is configured,
	// otherwise the scheduler adapter directly.
	Hydrator store.StateHydrator

	cleanupFuncs []func()
}

// Setup loads configuration and initializes every component for
// serviceName. The SQLite store is mandatory; the Postgres audit
// ledger and Redis cache/rate-limiter are enrichment and are skipped
// entirely when unconfigured.
func Setup(ctx context.Context, serviceName string) (*Components, error) {
	cfg, err := config.Load(serviceName)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	log.Info("initializing service", "service", serviceName, "environment", cfg.Service.Environment)

	c := &Components{Config: cfg, Logger: log}

	c.Store, err = store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	c.addCleanup(func() {
		log.Info("closing job store")
		c.Store.Close()
	})

	schedCfg := scheduler.Config{
		SubmitBin:     cfg.Scheduler.SubmitBin,
		CancelBin:     cfg.Scheduler.CancelBin,
		AccountingBin: cfg.Scheduler.AccountingBin,
		Debug:         cfg.Scheduler.Debug,
		TempDir:       cfg.Scheduler.TempDir,
	}
	c.Scheduler = scheduler.New(schedCfg, nil, c.Store)
	c.Hydrator = c.Scheduler

	if cfg.AuditEnabled() {
		log.Info("connecting audit ledger")
		c.Audit, err = audit.Open(ctx, cfg.Audit, log)
		if err != nil {
			c.Shutdown(ctx)
			return nil, fmt.Errorf("open audit ledger: %w", err)
		}
		c.addCleanup(func() {
			log.Info("closing audit ledger")
			c.Audit.Close()
		})
		c.Ledger = audit.NewLedger(c.Audit)
	} else {
		log.Info("audit ledger disabled, AUDIT_DATABASE_URL is empty")
	}

	if cfg.CacheEnabled() {
		log.Info("connecting redis state cache", "addr", cfg.Cache.Addr)
		c.Redis = redis.NewClient(&redis.Options{Addr: cfg.Cache.Addr})
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			c.Shutdown(ctx)
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		c.addCleanup(func() {
			log.Info("closing redis client")
			c.Redis.Close()
		})
		c.Cache = statecache.New(c.Redis, c.Scheduler, cfg.Cache.TTL, log)
		c.Hydrator = c.Cache
		c.RateLimit = ratelimit.New(c.Redis, log)
	} else {
		log.Info("redis disabled, REDIS_ADDR is empty; state cache and rate limiting are off")
	}

	log.Info("service initialization complete",
		"audit", c.Audit != nil,
		"cache", c.Cache != nil,
		"rate_limit", c.RateLimit != nil,
	)
	return c, nil
}

func (c *Components) addCleanup(fn func()) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Shutdown runs every registered cleanup function in reverse order.
func (c *Components) Shutdown(ctx context.Context) {
	c.Logger.Info("shutting down components")
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		c.cleanupFuncs[i]()
	}
}
