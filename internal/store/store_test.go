package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func insertJob(t *testing.T, st *Store, id string, parents []string) {
	t.Helper()
	rec := JobRecord{
		ID:        id,
		Command:   "echo " + id,
		Preamble:  "#!/bin/bash\n#SBATCH --job-name=" + id,
		NodeID:    "node-" + id,
		NodeName:  id,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateJob(context.Background(), rec, parents, "afterok"))
}

func TestCreateJob_InsertsJobAndEdges(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	insertJob(t, st, "j1", nil)
	insertJob(t, st, "j2", []string{"j1"})

	parents, err := st.ParentsOf(ctx, "j2")
	require.NoError(t, err)
	require.Equal(t, []string{"j1"}, parents)

	children, err := st.ChildrenOf(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, []string{"j2"}, children)
}

func TestDeleteJob_CascadesThroughDescendants(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	insertJob(t, st, "a", nil)
	insertJob(t, st, "b", []string{"a"})
	insertJob(t, st, "c", []string{"b"})

	require.NoError(t, st.DeleteJob(ctx, "a", true))

	for _, id := range []string{"a", "b", "c"} {
		_, err := st.GetByID(ctx, id)
		require.Error(t, err, "%s should have been deleted", id)
	}
}

func TestDeleteJob_WithoutCascadeLeavesDescendants(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	insertJob(t, st, "a", nil)
	insertJob(t, st, "b", []string{"a"})

	require.NoError(t, st.DeleteJob(ctx, "a", false))

	_, err := st.GetByID(ctx, "b")
	require.NoError(t, err, "non-cascading delete must leave the child row intact")
}

func TestUpsertEdges_ReplacesParentSet(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	insertJob(t, st, "old-parent", nil)
	insertJob(t, st, "new-parent", nil)
	insertJob(t, st, "child", []string{"old-parent"})

	require.NoError(t, st.UpsertEdges(ctx, "child", []ParentEdge{{ParentID: "new-parent", DepKind: "afterok"}}))

	parents, err := st.ParentsOf(ctx, "child")
	require.NoError(t, err)
	require.Equal(t, []string{"new-parent"}, parents)
}

func TestParentEdgesOf_PreservesPerEdgeDepKind(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	insertJob(t, st, "p1", nil)
	insertJob(t, st, "p2", nil)
	insertJob(t, st, "child", nil)

	require.NoError(t, st.UpsertEdges(ctx, "child", []ParentEdge{
		{ParentID: "p1", DepKind: "afterok"},
		{ParentID: "p2", DepKind: "afterany"},
	}))

	edges, err := st.ParentEdgesOf(ctx, "child")
	require.NoError(t, err)
	require.Len(t, edges, 2)

	byParent := make(map[string]string, len(edges))
	for _, e := range edges {
		byParent[e.ParentID] = e.DepKind
	}
	require.Equal(t, "afterok", byParent["p1"])
	require.Equal(t, "afterany", byParent["p2"])
}

func TestUpdateJob_PartialPatchLeavesOtherFieldUntouched(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	insertJob(t, st, "j1", nil)

	newCommand := "echo updated"
	require.NoError(t, st.UpdateJob(ctx, "j1", JobPatch{Command: &newCommand}))

	rec, err := st.GetByID(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, newCommand, rec.Command)
	require.Contains(t, rec.Preamble, "--job-name=j1")
}

func TestGetByID_UnknownIDErrors(t *testing.T) {
	st := openTestStore(t)
	_, err := st.GetByID(context.Background(), "nope")
	require.Error(t, err)
}
