package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
)

// Ledger records run invocations and retry edge rewrites.
type Ledger struct {
	db *DB
}

func NewLedger(db *DB) *Ledger {
	return &Ledger{db: db}
}

// StartRun inserts an in_progress row for one top-level walk
// invocation and returns its run id.
func (l *Ledger) StartRun(ctx context.Context, rootNodeName, submittedBy string) (uuid.UUID, error) {
	runID := uuid.New()
	_, err := l.db.Exec(ctx,
		`INSERT INTO run_ledger (run_id, root_node_name, submitted_by, started_at, status)
		 VALUES ($1, $2, $3, $4, 'in_progress')`,
		runID, rootNodeName, submittedBy, time.Now().UTC(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("starting run ledger entry: %w", err)
	}
	return runID, nil
}

// FinishRun marks a run completed or failed with its final job count.
func (l *Ledger) FinishRun(ctx context.Context, runID uuid.UUID, jobCount int, status string) error {
	_, err := l.db.Exec(ctx,
		`UPDATE run_ledger SET finished_at = $2, job_count = $3, status = $4 WHERE run_id = $1`,
		runID, time.Now().UTC(), jobCount, status,
	)
	if err != nil {
		return fmt.Errorf("finishing run ledger entry: %w", err)
	}
	return nil
}

// retryPatchOp is one RFC 6902 operation describing an edge rewrite.
type retryPatchOp struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

// RecordRetry writes a JSON-Patch document describing the edges
// removed from oldJobID and added to newJobID, for later inspection.
// runID may be uuid.Nil when the retry happens outside a tracked run;
// RecordRetry then stores NULL in the nullable run_id column.
func (l *Ledger) RecordRetry(ctx context.Context, runID uuid.UUID, oldJobID, newJobID string, rewiredChildren []string) error {
	ops := []retryPatchOp{
		{Op: "remove", Path: "/edges/" + oldJobID},
		{Op: "add", Path: "/edges/" + newJobID, Value: rewiredChildren},
	}
	raw, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("marshalling retry patch: %w", err)
	}
	if _, err := jsonpatch.DecodePatch(raw); err != nil {
		return fmt.Errorf("retry patch failed RFC 6902 validation: %w", err)
	}

	var runIDArg interface{} = runID
	if runID == uuid.Nil {
		runIDArg = nil
	}
	_, err = l.db.Exec(ctx,
		`INSERT INTO retry_audit (run_id, old_job_id, new_job_id, patch) VALUES ($1, $2, $3, $4)`,
		runIDArg, oldJobID, newJobID, raw,
	)
	if err != nil {
		return fmt.Errorf("inserting retry audit entry: %w", err)
	}
	return nil
}
