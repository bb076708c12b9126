// Package audit keeps a Postgres-backed append-only record of each
// top-level walk invocation and the edge rewrites every retry applies.
// It is enrichment: the SQLite job store in internal/store remains the
// sole source of truth for the job/edge graph. An unconfigured audit
// database is skipped, and a failed audit write never fails a walk or a
// retry; an audit database that is configured but unreachable at
// startup makes bootstrap.Setup fail.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lyzr/slurmplan/internal/config"
	"github.com/lyzr/slurmplan/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS run_ledger (
	run_id         uuid PRIMARY KEY,
	root_node_name text NOT NULL,
	submitted_by   text NOT NULL,
	started_at     timestamptz NOT NULL,
	finished_at    timestamptz,
	job_count      int NOT NULL DEFAULT 0,
	status         text NOT NULL
);

CREATE TABLE IF NOT EXISTS retry_audit (
	id         bigserial PRIMARY KEY,
	run_id     uuid REFERENCES run_ledger(run_id),
	old_job_id text NOT NULL,
	new_job_id text NOT NULL,
	patch      jsonb NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now()
);
`

// DB wraps a pgxpool.Pool for the audit ledger.
type DB struct {
	*pgxpool.Pool
	log *logger.Logger
}

// Open connects to the audit database and applies its schema. Callers
// should skip calling Open at all when cfg.AuditEnabled() is false.
func Open(ctx context.Context, cfg config.AuditConfig, log *logger.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse audit database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create audit connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("ping audit database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply audit schema: %w", err)
	}

	log.Info("audit ledger connected")
	return &DB{Pool: pool, log: log}, nil
}

func (db *DB) Close() {
	db.log.Info("closing audit connection pool")
	db.Pool.Close()
}

func (db *DB) Health(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return db.Pool.Ping(healthCtx)
}
