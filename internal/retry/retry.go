// Package retry resubmits a job with its stored command and preamble
// against its current parent set, rewires downstream edges to the new
// id, and cascades into children whose dependency was never
// satisfied.
package retry

import (
	"context"
	"sort"

	"github.com/lyzr/slurmplan/internal/errs"
	"github.com/lyzr/slurmplan/internal/lower"
	"github.com/lyzr/slurmplan/internal/store"
)

var terminalRetryable = map[string]bool{
	"FAILED":    true,
	"CANCELLED": true,
	"TIMEOUT":   true,
	"BLOCKED":   true,
}

// Store is the subset of *store.Store the planner needs; narrowed to
// an interface so tests can fake it.
type Store interface {
	GetByID(ctx context.Context, id string) (store.JobRecord, error)
	ParentsOf(ctx context.Context, childID string) ([]string, error)
	ParentEdgesOf(ctx context.Context, childID string) ([]store.ParentEdge, error)
	ChildrenOf(ctx context.Context, parentID string) ([]string, error)
	UpsertEdges(ctx context.Context, childID string, edges []store.ParentEdge) error
	DeleteJob(ctx context.Context, id string, cascade bool) error
	GetJobs(ctx context.Context, filters []store.Filter, includeLiveState bool, hydrator store.StateHydrator) ([]store.Job, error)
}

// Planner retries jobs through a store and scheduler submitter.
type Planner struct {
	store     Store
	submitter lower.Submitter
	hydrator  store.StateHydrator
	onRetry   func(oldID, newID string, children []string) // best-effort audit hook; nil is fine
}

func NewPlanner(st Store, sub lower.Submitter, hydrator store.StateHydrator) *Planner {
	return &Planner{store: st, submitter: sub, hydrator: hydrator}
}

// OnRetry registers a best-effort audit callback invoked after each
// successful resubmission with the children whose incoming edges were
// just rewritten from oldID to newID. The callback returns nothing, so
// an audit failure cannot fail the retry; the planner does not recover
// a panic raised inside it.
func (p *Planner) OnRetry(fn func(oldID, newID string, children []string)) {
	p.onRetry = fn
}

// Retry resubmits jobID. force bypasses the terminal-state check.
// depKind is the dependency kind of the resubmitted job's own parent
// edges and dependency directive; the rewritten edges into its children
// keep their stored dep_kind. Pass lower.DefaultDepKind for the common
// case.
func (p *Planner) Retry(ctx context.Context, jobID string, force bool, depKind string) (string, error) {
	if !force {
		status, err := p.liveStatus(jobID)
		if err != nil {
			return "", err
		}
		if !terminalRetryable[status] {
			return "", errs.New(errs.NotRetryable, "job "+jobID+" is not in a retryable state ("+status+")", nil)
		}
	}

	rec, err := p.store.GetByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	parents, err := p.store.ParentsOf(ctx, jobID)
	if err != nil {
		return "", err
	}

	newID, err := p.submitter.Submit(lower.SubmitRequest{
		Preamble: rec.Preamble,
		Command:  rec.Command,
		Parents:  parents,
		DepKind:  depKind,
		NodeID:   rec.NodeID,
		NodeName: rec.NodeName,
	})
	if err != nil {
		return "", err
	}

	children, err := p.store.ChildrenOf(ctx, jobID)
	if err != nil {
		return "", err
	}
	for _, child := range children {
		childEdges, err := p.store.ParentEdgesOf(ctx, child)
		if err != nil {
			return "", err
		}
		rewritten := replaceParentEdge(childEdges, jobID, newID)
		if err := p.store.UpsertEdges(ctx, child, rewritten); err != nil {
			return "", err
		}
	}

	if err := p.store.DeleteJob(ctx, jobID, false); err != nil {
		return "", err
	}

	if p.onRetry != nil {
		p.onRetry(jobID, newID, children)
	}

	for _, child := range children {
		status, err := p.liveStatus(child)
		if err != nil {
			continue
		}
		if status == "BLOCKED" {
			if _, err := p.Retry(ctx, child, true, depKind); err != nil {
				return newID, err
			}
		}
	}

	return newID, nil
}

// RetryByNode retries every job whose node_id is in nodeIDs, in
// topological order (a job's parents are retried before it whenever
// both are in the set).
func (p *Planner) RetryByNode(ctx context.Context, nodeIDs []string, force bool, depKind string) ([]string, error) {
	wanted := make(map[string]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		wanted[id] = true
	}

	filters := []store.Filter{}
	jobs, err := p.store.GetJobs(ctx, filters, false, nil)
	if err != nil {
		return nil, err
	}

	var matched []store.Job
	for _, j := range jobs {
		if wanted[j.NodeID] {
			matched = append(matched, j)
		}
	}
	ordered := topoSort(matched)

	newIDs := make([]string, 0, len(ordered))
	for _, j := range ordered {
		newID, err := p.Retry(ctx, j.ID, force, depKind)
		if err != nil {
			return newIDs, err
		}
		newIDs = append(newIDs, newID)
	}
	return newIDs, nil
}

func (p *Planner) liveStatus(jobID string) (string, error) {
	if p.hydrator == nil {
		return "UNKNOWN", nil
	}
	states, err := p.hydrator.State([]string{jobID})
	if err != nil {
		return "UNKNOWN", nil
	}
	return states[jobID].Status, nil
}

// replaceParentEdge swaps oldID for newID in one parent edge, leaving
// every edge's own dep_kind (including edges untouched by the swap)
// exactly as stored.
func replaceParentEdge(edges []store.ParentEdge, oldID, newID string) []store.ParentEdge {
	out := make([]store.ParentEdge, len(edges))
	for i, e := range edges {
		out[i] = e
		if e.ParentID == oldID {
			out[i].ParentID = newID
		}
	}
	return out
}

// topoSort orders jobs so a parent (by Parents edge, restricted to the
// given set) is retried before its children, via a stable Kahn's
// algorithm pass. Jobs outside the set are never referenced.
func topoSort(jobs []store.Job) []store.Job {
	byID := make(map[string]store.Job, len(jobs))
	inSet := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
		inSet[j.ID] = true
	}

	indegree := make(map[string]int, len(jobs))
	children := make(map[string][]string, len(jobs))
	for _, j := range jobs {
		for _, parent := range j.Parents {
			if inSet[parent] {
				indegree[j.ID]++
				children[parent] = append(children[parent], j.ID)
			}
		}
	}

	var ready []string
	for _, j := range jobs {
		if indegree[j.ID] == 0 {
			ready = append(ready, j.ID)
		}
	}
	sort.Strings(ready)

	var ordered []store.Job
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		ordered = append(ordered, byID[id])
		var next []string
		for _, child := range children[id] {
			indegree[child]--
			if indegree[child] == 0 {
				next = append(next, child)
			}
		}
		sort.Strings(next)
		ready = append(ready, next...)
	}
	return ordered
}
