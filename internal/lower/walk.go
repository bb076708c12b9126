package lower

import (
	"strconv"
	"strings"

	"github.com/lyzr/slurmplan/internal/errs"
	"github.com/lyzr/slurmplan/internal/idgen"
	"github.com/lyzr/slurmplan/internal/plan"
)

// Walk lowers root and returns root's folded result: the last child's
// ids for a sequential group or sequential loop, and every produced id
// for a parallel group, sweep or parallel loop. ctx.Submitted, if
// non-nil, collects every job id
// produced anywhere in the subtree in submission order; callers that
// don't care about the full accumulator may pass a fresh Context with
// Submitted left nil.
func Walk(root *plan.Group, ctx Context, sub Submitter) ([]string, error) {
	return walkGroup(root, ctx, sub)
}

// walkChild dispatches one child of a group's body. A *plan.Job child
// carries the node_id drawn by its parent's visit; a *plan.Group child
// draws its own at its own visit and nodeID is unused.
func walkChild(child plan.Node, ctx Context, nodeID string, sub Submitter) ([]string, error) {
	switch c := child.(type) {
	case *plan.Job:
		return walkJob(c, ctx, nodeID, sub)
	case *plan.Group:
		return walkGroup(c, ctx, sub)
	default:
		return nil, errs.New(errs.InvalidPlan, "unrecognized plan node", nil)
	}
}

func walkJob(job *plan.Job, ctx Context, nodeID string, sub Submitter) ([]string, error) {
	preamble, err := ctx.resolvePreamble(job.PreambleKey)
	if err != nil {
		return nil, errs.New(errs.InvalidPlan, "job "+job.Name, err)
	}
	command := substituteLeaf(job.Command, ctx)
	nodeName := joinName(ctx.NodeName, job.Name)

	req := SubmitRequest{
		PreambleKey: job.PreambleKey,
		Preamble:    preamble,
		Command:     command,
		Parents:     dedupe(ctx.DependsOn),
		DepKind:     DefaultDepKind,
		NodeID:      nodeID,
		NodeName:    nodeName,
	}

	jobID, err := sub.Submit(req)
	if err != nil {
		return nil, err
	}
	if ctx.Submitted != nil {
		*ctx.Submitted = append(*ctx.Submitted, jobID)
	}
	return []string{jobID}, nil
}

func substituteLeaf(command string, ctx Context) string {
	pairs := []string{"{group_id}", ctx.GroupID}
	if ctx.LoopIdx != nil {
		pairs = append(pairs, "{loop_idx}", strconv.Itoa(*ctx.LoopIdx))
	}
	return strings.NewReplacer(pairs...).Replace(command)
}

func walkGroup(g *plan.Group, ctx Context, sub Submitter) ([]string, error) {
	ctx.NodeName = joinName(ctx.NodeName, g.Name)
	ctx.GroupID = joinGroupID(ctx.GroupID, idgen.Token())

	switch g.Kind {
	case plan.Sequential:
		return walkSequentialBody(g.Children, ctx, idgen.Token(), sub)
	case plan.Parallel:
		return walkParallelBody(g.Children, ctx, idgen.Token(), sub)
	case plan.Sweep:
		return walkSweepBody(g, ctx, idgen.Token(), sub)
	case plan.Loop:
		return walkLoopBody(g, ctx, sub)
	default:
		return nil, errs.New(errs.InvalidPlan, "unknown group kind", nil)
	}
}

// walkSequentialBody visits children left to right, extending a local
// copy of depends_on after each one. It returns the last child's list,
// the value a further ancestor sequential group folds in next.
func walkSequentialBody(children []plan.Node, ctx Context, nodeID string, sub Submitter) ([]string, error) {
	var last []string
	for _, child := range children {
		ids, err := walkChild(child, ctx, nodeID, sub)
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			ctx.DependsOn = append(cloneStrings(ctx.DependsOn), ids...)
		}
		last = ids
	}
	return last, nil
}

// walkParallelBody visits children with independent copies of the
// entry dependency set and concatenates their results.
func walkParallelBody(children []plan.Node, ctx Context, nodeID string, sub Submitter) ([]string, error) {
	var all []string
	for _, child := range children {
		childCtx := ctx.withDependsOn(ctx.DependsOn)
		ids, err := walkChild(child, childCtx, nodeID, sub)
		if err != nil {
			return nil, err
		}
		all = append(all, ids...)
	}
	return all, nil
}

func walkSweepBody(g *plan.Group, ctx Context, nodeID string, sub Submitter) ([]string, error) {
	preamble, err := ctx.resolvePreamble(g.PreambleKey)
	if err != nil {
		return nil, errs.New(errs.InvalidPlan, "sweep group "+g.Name, err)
	}
	combos := cartesianProduct(g.Sweep)
	all := make([]string, 0, len(combos))
	for i, combo := range combos {
		command := formatSweepTemplate(g.SweepTemplate, combo, i, ctx.GroupID)
		req := SubmitRequest{
			PreambleKey: g.PreambleKey,
			Preamble:    preamble,
			Command:     command,
			Parents:     dedupe(ctx.DependsOn),
			DepKind:     DefaultDepKind,
			NodeID:      nodeID,
			NodeName:    ctx.NodeName,
		}
		jobID, err := sub.Submit(req)
		if err != nil {
			return nil, err
		}
		if ctx.Submitted != nil {
			*ctx.Submitted = append(*ctx.Submitted, jobID)
		}
		all = append(all, jobID)
	}
	return all, nil
}

// walkLoopBody runs the loop's body LoopCount times. Sequential loops
// share one node_id across iterations and chain dependencies the way
// a sequential group chains siblings, returning only the last
// iteration's list. Parallel loops draw a distinct node_id per
// iteration and give each an independent copy of the entry
// dependencies, returning the concatenation of all iterations —
// mirroring how plain sequential/parallel groups already behave, just
// applied across loop iterations instead of plan siblings.
func walkLoopBody(g *plan.Group, ctx Context, sub Submitter) ([]string, error) {
	if g.LoopKind == plan.Parallel {
		var all []string
		for i := 0; i < g.LoopCount; i++ {
			iterCtx := ctx.withDependsOn(ctx.DependsOn).withLoopIdx(i)
			ids, err := walkSequentialBody(g.Children, iterCtx, idgen.Token(), sub)
			if err != nil {
				return nil, err
			}
			all = append(all, ids...)
		}
		return all, nil
	}

	nodeID := idgen.Token()
	iterCtx := ctx
	var last []string
	for i := 0; i < g.LoopCount; i++ {
		bodyCtx := iterCtx.withLoopIdx(i)
		ids, err := walkSequentialBody(g.Children, bodyCtx, nodeID, sub)
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			iterCtx.DependsOn = append(cloneStrings(iterCtx.DependsOn), ids...)
		}
		last = ids
	}
	return last, nil
}
