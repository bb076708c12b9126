// Package store persists submitted jobs and their dependency edges in
// a SQLite-backed database and exposes the filtered, live-state-
// hydrated query surface callers use to inspect a workflow.
package store

import "time"

// JobRecord is the row shape written at submission time: the raw,
// post-substitution facts about a job, before any scheduler state is
// known.
type JobRecord struct {
	ID        string
	Command   string
	Preamble  string
	NodeID    string
	NodeName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Job is a hydrated record: the stored facts plus the joined edge
// strings and, unless hydration was skipped, live scheduler state.
type Job struct {
	JobRecord
	Parents  []string
	Children []string

	Status   string
	StartAt  string
	EndAt    string
	Workdir  string
	LogOut   string
	LogErr   string
}

// JobState is what the scheduler adapter reports for one job id.
type JobState struct {
	Status  string
	Start   string
	End     string
	Workdir string
}

// StateHydrator is implemented by the scheduler adapter. Store never
// imports the scheduler package; this interface is the seam.
type StateHydrator interface {
	State(ids []string) (map[string]JobState, error)
}

// JobPatch carries the fields update_job may change. Nil fields are
// left untouched.
type JobPatch struct {
	Command  *string
	Preamble *string
}

// ParentEdge pairs a parent job id with the dep_kind the edge into its
// child was created with, so a heterogeneous parent set can be read
// back and rewritten without collapsing onto one caller-supplied kind.
type ParentEdge struct {
	ParentID string
	DepKind  string
}
