package scheduler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/lyzr/slurmplan/internal/errs"
	"github.com/lyzr/slurmplan/internal/idgen"
	"github.com/lyzr/slurmplan/internal/lower"
	"github.com/lyzr/slurmplan/internal/store"
)

var jobIDPattern = regexp.MustCompile(`Submitted batch job (\d+)`)

// Config names the external commands and behavior knobs the adapter
// needs. Binary names default to the Slurm commands the original
// tooling shells out to; they're configurable so tests can point at a
// fake.
type Config struct {
	SubmitBin     string
	CancelBin     string
	AccountingBin string
	Debug         bool
	TempDir       string
}

func (c Config) withDefaults() Config {
	if c.SubmitBin == "" {
		c.SubmitBin = "sbatch"
	}
	if c.CancelBin == "" {
		c.CancelBin = "scancel"
	}
	if c.AccountingBin == "" {
		c.AccountingBin = "sacct"
	}
	return c
}

// Runner abstracts process execution so tests can substitute a fake
// without touching the real scheduler binaries.
type Runner interface {
	Run(name string, args ...string) (stdout string, err error)
}

type execRunner struct{}

func (execRunner) Run(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return string(out), fmt.Errorf("%s: %w (stderr: %s)", name, err, string(exitErr.Stderr))
		}
		return string(out), fmt.Errorf("%s: %w", name, err)
	}
	return string(out), nil
}

// Adapter is the scheduler boundary: it renders scripts, shells out to
// the external submit/cancel/accounting commands, and writes each
// submission through the job store.
type Adapter struct {
	cfg    Config
	runner Runner
	store  *store.Store
}

func New(cfg Config, runner Runner, st *store.Store) *Adapter {
	if runner == nil {
		runner = execRunner{}
	}
	return &Adapter{cfg: cfg.withDefaults(), runner: runner, store: st}
}

// Submit renders req into a script, invokes the submitter, and writes
// the resulting job (plus one edge per parent) to the store in a
// single transaction. It implements lower.Submitter.
func (a *Adapter) Submit(req lower.SubmitRequest) (string, error) {
	script := RenderScript(req.Preamble, req.Parents, req.DepKind, req.Command)

	var jobID string
	if a.cfg.Debug {
		fmt.Println(script)
		jobID = idgen.Token()
	} else {
		var err error
		jobID, err = a.submitScript(script)
		if err != nil {
			return "", err
		}
	}

	record := store.JobRecord{
		ID:        jobID,
		Command:   req.Command,
		Preamble:  req.Preamble,
		NodeID:    req.NodeID,
		NodeName:  req.NodeName,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.CreateJob(context.Background(), record, req.Parents, req.DepKind); err != nil {
		return "", err
	}
	return jobID, nil
}

func (a *Adapter) submitScript(script string) (string, error) {
	f, err := os.CreateTemp(a.cfg.TempDir, "slurmplan-*.sh")
	if err != nil {
		return "", errs.New(errs.SubmitFailed, "creating script file", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(script); err != nil {
		f.Close()
		return "", errs.New(errs.SubmitFailed, "writing script file", err)
	}
	if err := f.Close(); err != nil {
		return "", errs.New(errs.SubmitFailed, "closing script file", err)
	}

	out, err := a.runner.Run(a.cfg.SubmitBin, path)
	if err != nil {
		return "", errs.New(errs.SubmitFailed, fmt.Sprintf("%s exited non-zero", a.cfg.SubmitBin), err)
	}

	m := jobIDPattern.FindStringSubmatch(out)
	if m == nil {
		return "", errs.New(errs.SubmitFailed, fmt.Sprintf("could not parse job id from output: %q", out), nil)
	}
	return m[1], nil
}

// Cancel invokes the external cancellation command, fire-and-forget.
func (a *Adapter) Cancel(jobID string) error {
	_, err := a.runner.Run(a.cfg.CancelBin, jobID)
	if err != nil {
		return errs.New(errs.SchedulerUnavailable, fmt.Sprintf("cancelling %s", jobID), err)
	}
	return nil
}

// State queries the external accounting command once for the whole id
// set and parses its pipe-separated output. It implements
// store.StateHydrator.
func (a *Adapter) State(ids []string) (map[string]store.JobState, error) {
	if len(ids) == 0 {
		return map[string]store.JobState{}, nil
	}
	out, err := a.runner.Run(a.cfg.AccountingBin,
		"-j", strings.Join(ids, ","),
		"--format", "jobid,state,start,end,workdir",
		"--noheader", "--parsable2",
	)
	if err != nil {
		return nil, errs.New(errs.SchedulerUnavailable, "querying accounting state", err)
	}

	states := make(map[string]store.JobState, len(ids))
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 5 {
			continue
		}
		id, status, start, end, workdir := fields[0], fields[1], fields[2], fields[3], fields[4]
		if strings.HasPrefix(status, "PENDING") && strings.Contains(status, "DependencyNeverSatisfied") {
			status = "BLOCKED"
		} else if strings.Contains(status, "(") {
			status = status[:strings.Index(status, "(")]
		}
		states[id] = store.JobState{Status: status, Start: start, End: end, Workdir: workdir}
	}
	for _, id := range ids {
		if _, ok := states[id]; !ok {
			states[id] = store.JobState{Status: "UNKNOWN"}
		}
	}
	return states, nil
}
