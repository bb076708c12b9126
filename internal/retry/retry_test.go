package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/slurmplan/internal/lower"
	"github.com/lyzr/slurmplan/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func insertJob(t *testing.T, st *store.Store, id string, parents []string) {
	t.Helper()
	rec := store.JobRecord{
		ID: id, Command: "echo " + id, Preamble: "#!/bin/bash\n#SBATCH --job-name=" + id,
		NodeID: "node-" + id, NodeName: id, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateJob(context.Background(), rec, parents, "afterok"))
}

// fakeSubmitter hands back deterministic, incrementing ids and records
// each submission in st, as the real scheduler adapter does, so edges
// rewritten to the new id satisfy the store's foreign keys.
type fakeSubmitter struct {
	next int
	st   *store.Store
}

func (f *fakeSubmitter) Submit(req lower.SubmitRequest) (string, error) {
	f.next++
	id := fmt.Sprintf("retry-%d", f.next)
	rec := store.JobRecord{
		ID: id, Command: req.Command, Preamble: req.Preamble,
		NodeID: req.NodeID, NodeName: req.NodeName, CreatedAt: time.Now().UTC(),
	}
	if err := f.st.CreateJob(context.Background(), rec, req.Parents, req.DepKind); err != nil {
		return "", err
	}
	return id, nil
}

// fakeHydrator reports a fixed status per job id; anything unlisted
// comes back with an empty status, which Retry treats as not retryable.
type fakeHydrator struct{ statuses map[string]string }

func (f *fakeHydrator) State(ids []string) (map[string]store.JobState, error) {
	out := make(map[string]store.JobState, len(ids))
	for _, id := range ids {
		out[id] = store.JobState{Status: f.statuses[id]}
	}
	return out, nil
}

func TestRetry_RejectsNonTerminalStatusWithoutForce(t *testing.T) {
	st := openTestStore(t)
	insertJob(t, st, "j1", nil)
	hydrator := &fakeHydrator{statuses: map[string]string{"j1": "RUNNING"}}
	p := NewPlanner(st, &fakeSubmitter{st: st}, hydrator)

	_, err := p.Retry(context.Background(), "j1", false, "afterok")
	require.Error(t, err)
}

func TestRetry_ForceBypassesStatusGate(t *testing.T) {
	st := openTestStore(t)
	insertJob(t, st, "j1", nil)
	hydrator := &fakeHydrator{statuses: map[string]string{"j1": "RUNNING"}}
	p := NewPlanner(st, &fakeSubmitter{st: st}, hydrator)

	newID, err := p.Retry(context.Background(), "j1", true, "afterok")
	require.NoError(t, err)
	assert.Equal(t, "retry-1", newID)
}

func TestRetry_RewritesChildEdgesAndDeletesOldRow(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	insertJob(t, st, "parent", nil)
	insertJob(t, st, "child", []string{"parent"})

	hydrator := &fakeHydrator{statuses: map[string]string{"parent": "FAILED", "child": "PENDING"}}
	p := NewPlanner(st, &fakeSubmitter{st: st}, hydrator)

	newID, err := p.Retry(ctx, "parent", false, "afterok")
	require.NoError(t, err)

	parents, err := st.ParentsOf(ctx, "child")
	require.NoError(t, err)
	assert.Equal(t, []string{newID}, parents)

	_, err = st.GetByID(ctx, "parent")
	assert.Error(t, err, "the original row must be deleted after a successful retry")
}

func TestRetry_PreservesEachChildEdgesOwnDepKindOnRewrite(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	insertJob(t, st, "parent", nil)
	insertJob(t, st, "other-parent", nil)
	insertJob(t, st, "child", nil)
	// child depends on "parent" via afterok and on "other-parent" via
	// afterany; retrying "parent" must not clobber the second edge's kind.
	require.NoError(t, st.UpsertEdges(ctx, "child", []store.ParentEdge{
		{ParentID: "parent", DepKind: "afterok"},
		{ParentID: "other-parent", DepKind: "afterany"},
	}))

	hydrator := &fakeHydrator{statuses: map[string]string{"parent": "FAILED", "child": "PENDING"}}
	p := NewPlanner(st, &fakeSubmitter{st: st}, hydrator)

	// Retry is called with "afterany" to prove the rewritten edge keeps
	// its own stored kind rather than picking up the call's argument.
	newID, err := p.Retry(ctx, "parent", false, "afterany")
	require.NoError(t, err)

	edges, err := st.ParentEdgesOf(ctx, "child")
	require.NoError(t, err)
	byParent := make(map[string]string, len(edges))
	for _, e := range edges {
		byParent[e.ParentID] = e.DepKind
	}
	assert.Equal(t, "afterok", byParent[newID], "the rewritten edge must keep its original dep_kind")
	assert.Equal(t, "afterany", byParent["other-parent"], "an untouched edge must be left exactly as stored")
}

func TestRetry_CascadesIntoBlockedChildren(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	insertJob(t, st, "parent", nil)
	insertJob(t, st, "child", []string{"parent"})

	hydrator := &fakeHydrator{statuses: map[string]string{"parent": "FAILED", "child": "BLOCKED"}}
	p := NewPlanner(st, &fakeSubmitter{st: st}, hydrator)

	_, err := p.Retry(ctx, "parent", false, "afterok")
	require.NoError(t, err)

	// the BLOCKED child should itself have been force-retried and
	// removed, leaving no trace of the original "child" row.
	_, err = st.GetByID(ctx, "child")
	assert.Error(t, err)
}

func TestRetry_InvokesOnRetryHookWithRewiredChildren(t *testing.T) {
	st := openTestStore(t)
	insertJob(t, st, "j1", nil)
	insertJob(t, st, "c1", []string{"j1"})
	insertJob(t, st, "c2", []string{"j1"})
	hydrator := &fakeHydrator{statuses: map[string]string{"j1": "FAILED", "c1": "PENDING", "c2": "PENDING"}}
	p := NewPlanner(st, &fakeSubmitter{st: st}, hydrator)

	var gotOld, gotNew string
	var gotChildren []string
	p.OnRetry(func(oldID, newID string, children []string) {
		gotOld, gotNew, gotChildren = oldID, newID, children
	})

	newID, err := p.Retry(context.Background(), "j1", false, "afterok")
	require.NoError(t, err)
	assert.Equal(t, "j1", gotOld)
	assert.Equal(t, newID, gotNew)
	assert.ElementsMatch(t, []string{"c1", "c2"}, gotChildren, "the hook must receive the children whose edges were rewritten, not j1's own parents")
}

func TestRetryByNode_OrdersParentsBeforeChildren(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	insertJob(t, st, "a", nil)
	insertJob(t, st, "b", []string{"a"})
	// b's only incoming edge is a -> b; both node ids are passed to
	// RetryByNode below.
	require.NoError(t, st.UpsertEdges(ctx, "b", []store.ParentEdge{{ParentID: "a", DepKind: "afterok"}}))

	hydrator := &fakeHydrator{statuses: map[string]string{"a": "FAILED", "b": "FAILED"}}
	p := NewPlanner(st, &fakeSubmitter{st: st}, hydrator)

	newIDs, err := p.RetryByNode(ctx, []string{"node-a", "node-b"}, false, "afterok")
	require.NoError(t, err)
	require.Len(t, newIDs, 2)

	parents, err := st.ParentsOf(ctx, newIDs[1])
	require.NoError(t, err)
	assert.Equal(t, []string{newIDs[0]}, parents, "a is retried before b, so b's resubmission depends on a's new id")
}
