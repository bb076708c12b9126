// Command slurmplan-submit reads one YAML workflow tree file, lowers
// it into scheduler jobs, and prints the ids of the leaves it
// submitted. The YAML reader and argument parser are intentionally
// minimal: one positional file path, no flags, no pretty-printing —
// those surfaces belong to an external CLI this repo only feeds.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/lyzr/slurmplan/internal/bootstrap"
	"github.com/lyzr/slurmplan/internal/lower"
	"github.com/lyzr/slurmplan/internal/plan"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: slurmplan-submit <plan.yaml>")
		os.Exit(2)
	}

	ctx := context.Background()
	components, err := bootstrap.Setup(ctx, "slurmplan-submit")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap slurmplan-submit: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		components.Logger.Error("failed to read plan file", "path", os.Args[1], "error", err)
		os.Exit(1)
	}

	// The document carries the plan tree under "plan" (the {group:...}
	// shape ParsePlan expects) and the preamble map under "preambles".
	// Both the YAML schema and any richer CLI around this file are out
	// of scope here; this is the minimal loader the walk needs fed.
	var doc struct {
		Plan      map[string]interface{} `yaml:"plan"`
		Preambles map[string]string      `yaml:"preambles"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		components.Logger.Error("failed to parse plan YAML", "path", os.Args[1], "error", err)
		os.Exit(1)
	}

	root, err := plan.ParsePlan(doc.Plan)
	if err != nil {
		components.Logger.Error("invalid plan", "error", err)
		os.Exit(1)
	}

	var runID uuid.UUID
	if components.Ledger != nil {
		id, err := components.Ledger.StartRun(ctx, rootName(root), os.Getenv("USER"))
		if err != nil {
			components.Logger.Warn("failed to start audit run entry", "error", err)
		} else {
			runID = id
		}
	}

	submittedJobs := make([]string, 0)
	walkCtx := lower.Context{Preambles: doc.Preambles, Submitted: &submittedJobs}

	// Walk's own return value is the folded result for the root group
	// (e.g. only the last branch's ids for a top-level sequential
	// group); submittedJobs, filled via the Submitted side channel, is
	// every job the whole walk produced, which is what gets printed
	// and audited.
	_, err = lower.Walk(root, walkCtx, components.Scheduler)
	if err != nil {
		components.Logger.Error("walk failed", "error", err)
		if runID != uuid.Nil {
			finishRun(ctx, components, runID, len(submittedJobs), "failed")
		}
		os.Exit(1)
	}

	if runID != uuid.Nil {
		finishRun(ctx, components, runID, len(submittedJobs), "completed")
	}

	for _, id := range submittedJobs {
		fmt.Println(id)
	}
}

func rootName(root *plan.Group) string {
	if root.Name != "" {
		return root.Name
	}
	return "root"
}

func finishRun(ctx context.Context, c *bootstrap.Components, runID uuid.UUID, jobCount int, status string) {
	if err := c.Ledger.FinishRun(ctx, runID, jobCount, status); err != nil {
		c.Logger.Warn("failed to finish audit run entry", "run_id", runID.String(), "error", err)
	}
}
