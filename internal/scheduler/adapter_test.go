package scheduler

import (
	"context"
	"fmt"
	"testing"

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

// fakeRunner records every invocation and returns a canned response
// per binary name, so one test can drive sbatch/scancel/sacct without
// touching real processes.
type fakeRunner struct {
	calls     []string
	responses map[string]string
	errs      map[string]error
}

func (f *fakeRunner) Run(name string, args ...string) (string, error) {
	f.calls = append(f.calls, fmt.Sprintf("%s %v", name, args))
	if err, ok := f.errs[name]; ok {
		return "", err
	}
	return f.responses[name], nil
}

func TestSubmit_ParsesJobIDAndWritesStore(t *testing.T) {
	st := openTestStore(t)
	runner := &fakeRunner{responses: map[string]string{"sbatch": "Submitted batch job 4242\n"}}
	a := New(Config{}, runner, st)

	jobID, err := a.Submit(lower.SubmitRequest{
		Preamble: "#!/bin/bash\n#SBATCH --job-name=x",
		Command:  "echo hi",
		NodeID:   "n1",
		NodeName: "train",
		DepKind:  "afterok",
	})
	require.NoError(t, err)
	assert.Equal(t, "4242", jobID)

	rec, err := st.GetByID(context.Background(), "4242")
	require.NoError(t, err)
	assert.Equal(t, "echo hi", rec.Command)
	assert.Equal(t, "n1", rec.NodeID)
}

func TestSubmit_UnparsableOutputFails(t *testing.T) {
	st := openTestStore(t)
	runner := &fakeRunner{responses: map[string]string{"sbatch": "no job id here\n"}}
	a := New(Config{}, runner, st)

	_, err := a.Submit(lower.SubmitRequest{Preamble: "#!/bin/bash", Command: "echo hi"})
	require.Error(t, err)
}

func TestSubmit_DebugModeShortCircuitsWithSyntheticID(t *testing.T) {
	st := openTestStore(t)
	runner := &fakeRunner{}
	a := New(Config{Debug: true}, runner, st)

	jobID, err := a.Submit(lower.SubmitRequest{Preamble: "#!/bin/bash", Command: "echo hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)
	assert.Empty(t, runner.calls, "debug mode never shells out to the real submit binary")
}

func TestState_RemapsUnsatisfiedDependencyToBlocked(t *testing.T) {
	st := openTestStore(t)
	runner := &fakeRunner{responses: map[string]string{
		"sacct": "42|PENDING(DependencyNeverSatisfied)|Unknown|Unknown|/scratch/run\n",
	}}
	a := New(Config{}, runner, st)

	states, err := a.State([]string{"42"})
	require.NoError(t, err)
	assert.Equal(t, "BLOCKED", states["42"].Status)
}

func TestState_StripsParentheticalReasonOtherwise(t *testing.T) {
	st := openTestStore(t)
	runner := &fakeRunner{responses: map[string]string{
		"sacct": "42|CANCELLED(by user)|2026-01-01|2026-01-01|/scratch/run\n",
	}}
	a := New(Config{}, runner, st)

	states, err := a.State([]string{"42"})
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", states["42"].Status)
}

func TestState_FillsUnknownForAbsentIDs(t *testing.T) {
	st := openTestStore(t)
	runner := &fakeRunner{responses: map[string]string{"sacct": ""}}
	a := New(Config{}, runner, st)

	states, err := a.State([]string{"99"})
	require.NoError(t, err)
	assert.Equal(t, "UNKNOWN", states["99"].Status)
}

func TestCancel_InvokesCancelBinary(t *testing.T) {
	st := openTestStore(t)
	runner := &fakeRunner{}
	a := New(Config{}, runner, st)

	require.NoError(t, a.Cancel("4242"))
	require.Len(t, runner.calls, 1)
	assert.Contains(t, runner.calls[0], "scancel")
	assert.Contains(t, runner.calls[0], "4242")
}
