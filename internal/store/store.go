package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lyzr/slurmplan/internal/errs"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	command    TEXT NOT NULL,
	preamble   TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	node_id    TEXT NOT NULL,
	node_name  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS deps (
	parent   TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	child    TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	dep_kind TEXT NOT NULL,
	UNIQUE(parent, child, dep_kind)
);

CREATE INDEX IF NOT EXISTS idx_deps_parent ON deps(parent);
CREATE INDEX IF NOT EXISTS idx_deps_child ON deps(child);

CREATE VIEW IF NOT EXISTS vw_jobs AS
SELECT
	j.id, j.command, j.preamble, j.created_at, j.updated_at, j.node_id, j.node_name,
	(SELECT GROUP_CONCAT(d.child)  FROM deps d WHERE d.parent = j.id) AS children,
	(SELECT GROUP_CONCAT(d.parent) FROM deps d WHERE d.child  = j.id) AS parents
FROM jobs j;
`

// Store wraps a SQLite database through database/sql, using the
// pure-Go modernc.org/sqlite driver so the binary needs no cgo
// toolchain.
type Store struct {
	db *sql.DB
}

// Open creates (if absent) the schema at path and returns a ready
// Store. path may be ":memory:" for tests.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.New(errs.StoreIntegrity, "opening store", err)
	}
	db.SetMaxOpenConns(1) // single-writer assumption (spec §5); avoids SQLITE_BUSY under concurrent writers
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return nil, errs.New(errs.StoreIntegrity, "enabling foreign keys", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, errs.New(errs.StoreIntegrity, "applying schema", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateJob inserts the job row and one edge per parent inside a
// single transaction, per the adapter rule: one scheduler call, then
// exactly one job row insert, then exactly one edge insert per
// parent.
func (s *Store) CreateJob(ctx context.Context, job JobRecord, parents []string, depKind string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.New(errs.StoreIntegrity, "beginning transaction", err)
	}
	defer tx.Rollback()

	now := job.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs (id, command, preamble, created_at, updated_at, node_id, node_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Command, job.Preamble, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano), job.NodeID, job.NodeName,
	)
	if err != nil {
		return errs.New(errs.StoreIntegrity, fmt.Sprintf("inserting job %s", job.ID), err)
	}

	for _, parent := range parents {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO deps (parent, child, dep_kind) VALUES (?, ?, ?)`,
			parent, job.ID, depKind,
		)
		if err != nil {
			return errs.New(errs.StoreIntegrity, fmt.Sprintf("inserting edge %s->%s", parent, job.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.New(errs.StoreIntegrity, "committing job insert", err)
	}
	return nil
}

// UpdateJob applies a partial patch to a stored job, bumping
// updated_at.
func (s *Store) UpdateJob(ctx context.Context, id string, patch JobPatch) error {
	if patch.Command == nil && patch.Preamble == nil {
		return nil
	}
	command := patch.Command
	preamble := patch.Preamble
	now := time.Now().UTC().Format(time.RFC3339Nano)

	switch {
	case command != nil && preamble != nil:
		_, err := s.db.ExecContext(ctx,
			`UPDATE jobs SET command = ?, preamble = ?, updated_at = ? WHERE id = ?`,
			*command, *preamble, now, id)
		return wrapExecErr(err, id)
	case command != nil:
		_, err := s.db.ExecContext(ctx,
			`UPDATE jobs SET command = ?, updated_at = ? WHERE id = ?`,
			*command, now, id)
		return wrapExecErr(err, id)
	default:
		_, err := s.db.ExecContext(ctx,
			`UPDATE jobs SET preamble = ?, updated_at = ? WHERE id = ?`,
			*preamble, now, id)
		return wrapExecErr(err, id)
	}
}

func wrapExecErr(err error, id string) error {
	if err == nil {
		return nil
	}
	return errs.New(errs.StoreIntegrity, fmt.Sprintf("updating job %s", id), err)
}

// DeleteJob removes a job row. Its own edges disappear via ON DELETE
// CASCADE. When cascade is true, every descendant job (reachable
// through deps.parent) is deleted first, depth-first.
func (s *Store) DeleteJob(ctx context.Context, id string, cascade bool) error {
	if cascade {
		children, err := s.childrenOf(ctx, id)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := s.DeleteJob(ctx, child, true); err != nil {
				return err
			}
		}
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return errs.New(errs.StoreIntegrity, fmt.Sprintf("deleting job %s", id), err)
	}
	return nil
}

func (s *Store) childrenOf(ctx context.Context, parentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT child FROM deps WHERE parent = ?`, parentID)
	if err != nil {
		return nil, errs.New(errs.StoreIntegrity, fmt.Sprintf("listing children of %s", parentID), err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, errs.New(errs.StoreIntegrity, "scanning child id", err)
		}
		out = append(out, child)
	}
	return out, rows.Err()
}

// UpsertEdges replaces every edge incoming to childID with the given
// parent edges, used by the retry planner to rewrite a child's
// dependency directives after one of its parents is resubmitted. Each
// edge carries its own dep_kind, so a heterogeneous parent set is
// never collapsed onto one caller-supplied kind.
func (s *Store) UpsertEdges(ctx context.Context, childID string, edges []ParentEdge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.New(errs.StoreIntegrity, "beginning transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM deps WHERE child = ?`, childID); err != nil {
		return errs.New(errs.StoreIntegrity, fmt.Sprintf("clearing edges for %s", childID), err)
	}
	for _, e := range edges {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO deps (parent, child, dep_kind) VALUES (?, ?, ?)`,
			e.ParentID, childID, e.DepKind)
		if err != nil {
			return errs.New(errs.StoreIntegrity, fmt.Sprintf("inserting edge %s->%s", e.ParentID, childID), err)
		}
	}
	return errOrCommit(tx)
}

func errOrCommit(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return errs.New(errs.StoreIntegrity, "committing edge rewrite", err)
	}
	return nil
}

// ParentsOf returns the direct parents of a job, in no particular
// order — callers that need determinism sort it themselves.
func (s *Store) ParentsOf(ctx context.Context, childID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT parent FROM deps WHERE child = ?`, childID)
	if err != nil {
		return nil, errs.New(errs.StoreIntegrity, fmt.Sprintf("listing parents of %s", childID), err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var parent string
		if err := rows.Scan(&parent); err != nil {
			return nil, errs.New(errs.StoreIntegrity, "scanning parent id", err)
		}
		out = append(out, parent)
	}
	return out, rows.Err()
}

// ChildrenOf exposes the same lookup childrenOf uses internally, for
// the retry planner's BLOCKED-child cascade.
func (s *Store) ChildrenOf(ctx context.Context, parentID string) ([]string, error) {
	return s.childrenOf(ctx, parentID)
}

// ParentEdgesOf returns the direct parents of a job together with each
// edge's stored dep_kind, in no particular order.
func (s *Store) ParentEdgesOf(ctx context.Context, childID string) ([]ParentEdge, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT parent, dep_kind FROM deps WHERE child = ?`, childID)
	if err != nil {
		return nil, errs.New(errs.StoreIntegrity, fmt.Sprintf("listing parent edges of %s", childID), err)
	}
	defer rows.Close()

	var out []ParentEdge
	for rows.Next() {
		var e ParentEdge
		if err := rows.Scan(&e.ParentID, &e.DepKind); err != nil {
			return nil, errs.New(errs.StoreIntegrity, "scanning parent edge", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetByID fetches one job's raw (non-hydrated) record.
func (s *Store) GetByID(ctx context.Context, id string) (JobRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, command, preamble, created_at, updated_at, node_id, node_name FROM jobs WHERE id = ?`, id)
	var rec JobRecord
	var created, updated string
	if err := row.Scan(&rec.ID, &rec.Command, &rec.Preamble, &created, &updated, &rec.NodeID, &rec.NodeName); err != nil {
		return JobRecord{}, errs.New(errs.StoreIntegrity, fmt.Sprintf("reading job %s", id), err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return rec, nil
}
