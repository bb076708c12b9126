package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/lyzr/slurmplan/internal/errs"
)

var outputDirective = regexp.MustCompile(`(?m)^#SBATCH\s+--output=(\S+)`)
var errorDirective = regexp.MustCompile(`(?m)^#SBATCH\s+--error=(\S+)`)

// GetJobs runs the filter DSL against vw_jobs, ordered by created_at
// ascending, then hydrates with live scheduler state unless
// includeLiveState is false. status= filters are applied after
// hydration since status isn't a stored column.
func (s *Store) GetJobs(ctx context.Context, filters []Filter, includeLiveState bool, hydrator StateHydrator) ([]Job, error) {
	columnFilters, statusFilters := splitStatus(filters)
	where, args := buildWhere(columnFilters)

	query := `SELECT id, command, preamble, created_at, updated_at, node_id, node_name, children, parents
	          FROM vw_jobs` + where + ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.New(errs.StoreIntegrity, "querying vw_jobs", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var children, parents sql.NullString
		var created, updated string
		if err := rows.Scan(&j.ID, &j.Command, &j.Preamble, &created, &updated, &j.NodeID, &j.NodeName, &children, &parents); err != nil {
			return nil, errs.New(errs.StoreIntegrity, "scanning job row", err)
		}
		j.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		j.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		j.Children = splitCSV(children)
		j.Parents = splitCSV(parents)
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.New(errs.StoreIntegrity, "iterating job rows", err)
	}

	if includeLiveState && hydrator != nil && len(jobs) > 0 {
		ids := make([]string, len(jobs))
		for i, j := range jobs {
			ids[i] = j.ID
		}
		states, err := hydrator.State(ids)
		if err != nil {
			// SchedulerUnavailable degrades to UNKNOWN per job, it
			// never fails the query.
			states = map[string]JobState{}
		}
		for i := range jobs {
			applyState(&jobs[i], states[jobs[i].ID])
		}
	}

	if len(statusFilters) == 0 {
		return jobs, nil
	}
	filtered := jobs[:0]
	for _, j := range jobs {
		if matchesStatus(j, statusFilters) {
			filtered = append(filtered, j)
		}
	}
	return filtered, nil
}

func applyState(j *Job, state JobState) {
	if state.Status == "" {
		j.Status = "UNKNOWN"
		return
	}
	j.Status = state.Status
	j.StartAt = state.Start
	j.EndAt = state.End
	j.Workdir = state.Workdir
	j.LogOut = resolveLogPath(j.Preamble, outputDirective, j.ID, state.Workdir)
	j.LogErr = resolveLogPath(j.Preamble, errorDirective, j.ID, state.Workdir)
}

// resolveLogPath scans preamble for the given directive, substitutes
// %j/%J with the job id, and joins with workdir when the path isn't
// absolute. Log-path resolution lives here, in hydration, never in
// the store's write path — the store only ever holds the raw preamble.
func resolveLogPath(preamble string, directive *regexp.Regexp, jobID, workdir string) string {
	m := directive.FindStringSubmatch(preamble)
	if m == nil {
		return ""
	}
	path := m[1]
	path = strings.ReplaceAll(path, "%j", jobID)
	path = strings.ReplaceAll(path, "%J", jobID)
	if !strings.HasPrefix(path, "/") && workdir != "" {
		path = filepath.Join(workdir, path)
	}
	return path
}

func splitCSV(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return strings.Split(ns.String, ",")
}
